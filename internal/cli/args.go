// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Args holds parsed CLI arguments.
type Args struct {
	Model      string
	ConfigPath string
	OllamaURL  string
	Quiet      bool
	NoMarkdown bool

	ShowVersion bool
	ShowHelp    bool
}

// ParseArgs parses the raw argument list.
func ParseArgs(raw []string) (Args, error) {
	var args Args

	for i := 0; i < len(raw); i++ {
		arg := raw[i]

		takesValue := func() (string, error) {
			if i+1 >= len(raw) {
				return "", fmt.Errorf("flag %s requires a value", arg)
			}
			i++
			return raw[i], nil
		}

		switch {
		case arg == "-m" || arg == "--model":
			v, err := takesValue()
			if err != nil {
				return args, err
			}
			args.Model = v

		case arg == "-c" || arg == "--config":
			v, err := takesValue()
			if err != nil {
				return args, err
			}
			args.ConfigPath = v

		case arg == "--url":
			v, err := takesValue()
			if err != nil {
				return args, err
			}
			args.OllamaURL = v

		case arg == "-q" || arg == "--quiet":
			args.Quiet = true

		case arg == "--no-markdown":
			args.NoMarkdown = true

		case arg == "-V" || arg == "--version":
			args.ShowVersion = true

		case arg == "-h" || arg == "--help":
			args.ShowHelp = true

		case strings.HasPrefix(arg, "-"):
			return args, fmt.Errorf("unknown flag: %s", arg)

		default:
			return args, fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	return args, nil
}

// Usage returns the top-level usage text.
func Usage() string {
	return `lamachat - terminal chat for local Ollama models

Usage:
  lamachat [flags]

Flags:
  -m, --model NAME    Use a specific model (overrides config)
  -c, --config PATH   Load configuration from an explicit file
      --url URL       Use a single Ollama endpoint (skips candidates)
  -q, --quiet         Minimal output
      --no-markdown   Disable markdown rendering of replies
  -V, --version       Print version and exit
  -h, --help          Show this help

Interactive commands (during chat):
  /help               Show available commands
  /new                Start a new chat
  /chats              List saved chats
  /open N             Open a saved chat
  /delete [N]         Delete a chat (current when omitted)
  /rename TITLE       Rename the current chat
  /models             List installed models
  /model [NAME]       Show or switch model
  /doc PATH           Attach a text file as context
  /docs               Show or clear attached documents
  /export [PATH]      Export all chats to a JSON archive
  /import PATH        Merge a JSON archive into saved chats
  /clear              Delete all chats
  /status             Show connection and session state
  /quit               Exit
  Ctrl+C              Cancel current generation
  Ctrl+D              Exit`
}
