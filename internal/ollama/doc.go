// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with a local
// Ollama server.
//
// The package covers the three endpoints the client needs: the root health
// check, /api/tags for the installed model list, and the streaming /api/chat
// endpoint whose newline-delimited JSON response is decoded incrementally.
//
// # Key Types
//
//   - Client: HTTP client for the Ollama API
//   - Message: chat message with role, content, and optional images
//   - StreamDecoder: chunk-boundary-safe NDJSON decoder
//   - Event: semantic token/done event emitted during streaming
//
// # Usage
//
// Create a client and stream a chat:
//
//	client := ollama.NewClient()
//	err := client.ChatStream(ctx, ollama.ChatRequest{
//	    Model:    "llava:7b",
//	    Messages: []ollama.Message{ollama.NewUserMessage("Hello")},
//	}, func(ev ollama.Event) {
//	    if !ev.Done {
//	        fmt.Print(ev.Content)
//	    }
//	})
//
// The decoder tolerates malformed individual records by dropping them;
// only transport-level failures are surfaced as errors.
package ollama
