// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import "github.com/charmbracelet/lipgloss"

// =============================================================================
// COLOR PALETTE
// =============================================================================

var (
	// Purple - assistant replies, banner
	Purple = lipgloss.AdaptiveColor{Light: "#7C3AED", Dark: "#A78BFA"}

	// Cyan - prompt, user highlights, info labels
	Cyan = lipgloss.AdaptiveColor{Light: "#0891B2", Dark: "#22D3EE"}

	// Emerald - success states, connected indicator
	Emerald = lipgloss.AdaptiveColor{Light: "#059669", Dark: "#34D399"}

	// Amber - warnings, disconnected indicator
	Amber = lipgloss.AdaptiveColor{Light: "#D97706", Dark: "#FBBF24"}

	// Rose - errors
	Rose = lipgloss.AdaptiveColor{Light: "#E11D48", Dark: "#FB7185"}

	// TextSecondary - secondary labels
	TextSecondary = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
)

// =============================================================================
// STYLES
// =============================================================================

var (
	// Prompt style
	promptStyle = lipgloss.NewStyle().
			Foreground(Cyan).
			Bold(true)

	// Welcome banner style
	welcomeStyle = lipgloss.NewStyle().
			Foreground(Purple).
			Bold(true)

	// Info style
	infoStyle = lipgloss.NewStyle().
			Foreground(TextSecondary)

	// Command style
	commandStyle = lipgloss.NewStyle().
			Foreground(Emerald)

	// Warning style
	warningStyle = lipgloss.NewStyle().
			Foreground(Amber)

	// Error style
	errorStyle = lipgloss.NewStyle().
			Foreground(Rose)

	// Section header style
	summaryHeaderStyle = lipgloss.NewStyle().
				Foreground(Cyan).
				Bold(true)
)
