// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the interactive lamachat REPL: argument parsing,
// terminal detection, liner-based input with history, styled output, and the
// slash-command surface over the conversation store.
package cli
