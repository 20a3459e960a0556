// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with a local
// Ollama server.
package ollama

import "time"

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the conversation.
type Message struct {
	Role    string   `json:"role"`             // "user", "assistant", "system"
	Content string   `json:"content"`          // The message content
	Images  []string `json:"images,omitempty"` // Base64-encoded image blobs, in order
}

// ChatRequest is the request body for the /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`             // Model name (e.g., "llava:7b")
	Messages []Message `json:"messages"`          // Conversation history
	Stream   bool      `json:"stream"`            // Always true for this client
	Options  *Options  `json:"options,omitempty"` // Sampling parameters
}

// Options contains model parameters for inference.
type Options struct {
	Temperature float64 `json:"temperature,omitempty"` // 0.0-2.0, default 0.7
	NumCtx      int     `json:"num_ctx,omitempty"`     // Context window size, default 4096

	// Extras accepted by the server but not set by default.
	TopK       int      `json:"top_k,omitempty"`
	TopP       float64  `json:"top_p,omitempty"`
	NumPredict int      `json:"num_predict,omitempty"`
	Stop       []string `json:"stop,omitempty"`
	Seed       int      `json:"seed,omitempty"`
}

// =============================================================================
// MODEL TYPES
// =============================================================================

// ModelInfo contains information about an installed model.
type ModelInfo struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details,omitempty"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          []string `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// ListModelsResponse is the response from the /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// =============================================================================
// STREAMING TYPES
// =============================================================================

// Event is a semantic event emitted by the stream decoder.
//
// A token event carries a non-empty Content fragment; a done event has Done
// set and is always the last event of a stream.
type Event struct {
	Content string
	Done    bool
}

// EventCallback is called for each decoded event, synchronously and in
// arrival order.
type EventCallback func(ev Event)

// =============================================================================
// ERROR TYPES
// =============================================================================

// serverError is the JSON error body the Ollama server returns on failures.
type serverError struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER METHODS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: "assistant", Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}
