// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/lamachat/internal/config"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// Input provides line editing and input history for the interactive REPL.
// USABILITY: Supports arrow keys for history navigation and line editing.
type Input struct {
	line        *liner.State
	historyFile string
}

// NewInput creates an Input with history loaded from the config directory.
func NewInput() *Input {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	in := &Input{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	in.loadHistory()
	return in
}

func (in *Input) loadHistory() {
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
}

// ReadLine reads a line of input with the given prompt.
// Supports history navigation with arrow keys.
func (in *Input) ReadLine(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

// saveHistory persists input history with owner-only permissions.
func (in *Input) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	in.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (in *Input) Close() {
	in.saveHistory()
	in.line.Close()
}
