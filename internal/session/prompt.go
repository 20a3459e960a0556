// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"strings"
	"time"

	"github.com/jeranaias/lamachat/internal/ollama"
)

// DefaultPersona is the system prompt used when the config supplies none.
const DefaultPersona = "You are a helpful, friendly AI assistant. " +
	"Be concise and clear in your responses. " +
	"Use markdown formatting when appropriate."

// timeNow is swapped in tests.
var timeNow = time.Now

// systemMessage synthesizes the leading system message for a generation:
// persona, current date and time, then any document and web-search context
// attached to the conversation.
func systemMessage(req Request) ollama.Message {
	persona := req.Persona
	if persona == "" {
		persona = DefaultPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nCurrent date and time: ")
	b.WriteString(timeNow().Format("Monday, January 2, 2006 at 3:04 PM"))

	if len(req.Documents) > 0 {
		b.WriteString("\n\nThe user has attached the following documents. ")
		b.WriteString("Use them as context when answering:")
		for _, doc := range req.Documents {
			b.WriteString("\n\n---\n")
			b.WriteString(doc)
		}
	}

	if req.SearchContext != "" {
		b.WriteString("\n\nWeb search results relevant to the conversation:\n\n")
		b.WriteString(req.SearchContext)
	}

	return ollama.NewSystemMessage(b.String())
}
