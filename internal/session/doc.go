// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs one streaming generation against the Ollama chat
// endpoint and resolves it through a small callback contract.
//
// A Session is ephemeral: it captures the chat id, model, full history, and
// sampling parameters at start, streams tokens in arrival order, and settles
// exactly once through OnDone or OnError. Cancelling a session aborts the
// transport read and settles through OnDone, because a user-initiated stop
// is a normal end of generation. Sessions are never persisted and enforce no
// transport timeout of their own.
package session
