// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jeranaias/lamachat/internal/ollama"
)

func newTestClient(url string) *ollama.Client {
	cfg := ollama.DefaultConfig()
	cfg.BaseURL = url
	return ollama.NewClientWithConfig(cfg)
}

func streamHandler(t *testing.T, lines ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			fmt.Fprintln(w, line)
		}
	}
}

// =============================================================================
// TERMINAL CALLBACK CONTRACT
// =============================================================================

func TestSession_TokensThenDoneOnce(t *testing.T) {
	srv := httptest.NewServer(streamHandler(t,
		`{"message":{"content":"Hello"},"done":false}`,
		`{"message":{"content":" world"},"done":false}`,
		`{"done":true}`,
	))
	defer srv.Close()

	var tokens []string
	doneCount := 0
	s := Start(context.Background(), newTestClient(srv.URL), Request{
		Model:   "llava:7b",
		History: []ollama.Message{ollama.NewUserMessage("hi")},
	}, Callbacks{
		OnToken: func(tok string) { tokens = append(tokens, tok) },
		OnDone:  func() { doneCount++ },
		OnError: func(err error) { t.Errorf("unexpected OnError: %v", err) },
	})
	s.Wait()

	got := strings.Join(tokens, "")
	if got != "Hello world" {
		t.Errorf("tokens = %q, want %q", got, "Hello world")
	}
	if doneCount != 1 {
		t.Errorf("OnDone fired %d times, want exactly 1", doneCount)
	}
}

func TestSession_NaturalEOFResolvesDone(t *testing.T) {
	// No done record; the server just closes the stream.
	srv := httptest.NewServer(streamHandler(t,
		`{"message":{"content":"partial"},"done":false}`,
	))
	defer srv.Close()

	doneCount := 0
	s := Start(context.Background(), newTestClient(srv.URL), Request{Model: "m"}, Callbacks{
		OnDone:  func() { doneCount++ },
		OnError: func(err error) { t.Errorf("unexpected OnError: %v", err) },
	})
	s.Wait()

	if doneCount != 1 {
		t.Errorf("OnDone fired %d times, want exactly 1", doneCount)
	}
}

func TestSession_ErrorBodyResolvesOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"model 'missing' not found"}`)
	}))
	defer srv.Close()

	var gotErr error
	s := Start(context.Background(), newTestClient(srv.URL), Request{Model: "missing"}, Callbacks{
		OnDone:  func() { t.Error("OnDone fired for a failed generation") },
		OnError: func(err error) { gotErr = err },
	})
	s.Wait()

	if gotErr == nil {
		t.Fatal("expected OnError, got none")
	}
	if !strings.Contains(gotErr.Error(), "model 'missing' not found") {
		t.Errorf("error = %q, want server body surfaced", gotErr)
	}
}

func TestSession_TransportFailureResolvesOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	errCount := 0
	s := Start(context.Background(), newTestClient(srv.URL), Request{Model: "m"}, Callbacks{
		OnDone:  func() { t.Error("OnDone fired for a transport failure") },
		OnError: func(err error) { errCount++ },
	})
	s.Wait()

	if errCount != 1 {
		t.Errorf("OnError fired %d times, want exactly 1", errCount)
	}
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestSession_CancelResolvesDoneNotError(t *testing.T) {
	firstToken := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl, ok := w.(http.Flusher)
		if !ok {
			t.Error("response writer is not a flusher")
			return
		}
		fmt.Fprintln(w, `{"message":{"content":"before"},"done":false}`)
		fl.Flush()
		close(firstToken)
		// Hold the stream open until the client aborts.
		<-r.Context().Done()
	}))
	defer srv.Close()

	doneCh := make(chan struct{})
	s := Start(context.Background(), newTestClient(srv.URL), Request{Model: "m"}, Callbacks{
		OnDone:  func() { close(doneCh) },
		OnError: func(err error) { t.Errorf("cancellation surfaced as OnError: %v", err) },
	})

	<-firstToken
	s.Cancel()
	s.Cancel() // idempotent

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not resolve after cancel")
	}
}

// =============================================================================
// PAYLOAD ASSEMBLY
// =============================================================================

func TestSession_PayloadShape(t *testing.T) {
	var captured ollama.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprintln(w, `{"done":true}`)
	}))
	defer srv.Close()

	history := []ollama.Message{
		ollama.NewUserMessage("first"),
		ollama.NewAssistantMessage("reply"),
		ollama.NewUserMessage("second"),
	}
	s := Start(context.Background(), newTestClient(srv.URL), Request{
		Model:         "llava:7b",
		History:       history,
		Temperature:   0.9,
		ContextWindow: 2048,
	}, Callbacks{})
	s.Wait()

	if captured.Model != "llava:7b" {
		t.Errorf("model = %q, want llava:7b", captured.Model)
	}
	if !captured.Stream {
		t.Error("stream flag not set")
	}
	if captured.Options == nil {
		t.Fatal("options missing from payload")
	}
	if captured.Options.Temperature != 0.9 || captured.Options.NumCtx != 2048 {
		t.Errorf("options = %+v, want temperature=0.9 num_ctx=2048", captured.Options)
	}

	if len(captured.Messages) != len(history)+1 {
		t.Fatalf("got %d messages, want history plus system message", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Errorf("leading message role = %q, want system", captured.Messages[0].Role)
	}
	for i, m := range history {
		if captured.Messages[i+1].Content != m.Content {
			t.Errorf("message %d = %q, want %q", i+1, captured.Messages[i+1].Content, m.Content)
		}
	}
}

func TestSystemMessage_DefaultPersonaAndDate(t *testing.T) {
	orig := timeNow
	timeNow = func() time.Time {
		return time.Date(2025, time.March, 9, 14, 30, 0, 0, time.UTC)
	}
	defer func() { timeNow = orig }()

	msg := systemMessage(Request{})

	if msg.Role != "system" {
		t.Errorf("role = %q, want system", msg.Role)
	}
	if !strings.Contains(msg.Content, DefaultPersona) {
		t.Error("default persona missing from system message")
	}
	if !strings.Contains(msg.Content, "Sunday, March 9, 2025 at 2:30 PM") {
		t.Errorf("date line missing, got %q", msg.Content)
	}
}

func TestSystemMessage_DocumentAndSearchContext(t *testing.T) {
	msg := systemMessage(Request{
		Persona:       "You are a pirate.",
		Documents:     []string{"doc alpha body", "doc beta body"},
		SearchContext: "result one\nresult two",
	})

	for _, want := range []string{
		"You are a pirate.",
		"doc alpha body",
		"doc beta body",
		"result one\nresult two",
	} {
		if !strings.Contains(msg.Content, want) {
			t.Errorf("system message missing %q", want)
		}
	}
	if strings.Contains(msg.Content, DefaultPersona) {
		t.Error("default persona used despite explicit persona")
	}
}
