// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jeranaias/lamachat/internal/ollama"
)

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks receives the lifecycle events of one generation. OnToken fires
// zero or more times, in arrival order, before the terminal event. Exactly
// one of OnDone or OnError fires, exactly once. Cancellation resolves via
// OnDone: a user-initiated stop is a clean end of generation, not a failure.
type Callbacks struct {
	OnToken func(token string)
	OnDone  func()
	OnError func(err error)
}

// =============================================================================
// REQUEST
// =============================================================================

// Request describes one generation against a chat's full history. The base
// URL and history are captured at start; a prober flipping endpoints or a
// store mutation mid-stream does not affect a running session.
type Request struct {
	ChatID  string
	Model   string
	History []ollama.Message

	Temperature   float64
	ContextWindow int

	// Persona seeds the synthesized system message. Empty selects the
	// built-in default.
	Persona string

	// Documents and SearchContext are folded into the system message when
	// present.
	Documents     []string
	SearchContext string
}

// =============================================================================
// SESSION
// =============================================================================

// Session is the ephemeral handle for one in-flight generation. It is never
// persisted and is discarded once a terminal callback has fired.
type Session struct {
	chatID    string
	startedAt time.Time
	cancel    context.CancelFunc
	settle    sync.Once
	done      chan struct{}
}

// Start launches a generation asynchronously and returns its handle. The
// request payload is the chat's full history behind a synthesized leading
// system message, with stream forced on. There is no transport timeout and
// no automatic retry.
func Start(ctx context.Context, client *ollama.Client, req Request, cb Callbacks) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		chatID:    req.ChatID,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	chatReq := ollama.ChatRequest{
		Model:    req.Model,
		Messages: append([]ollama.Message{systemMessage(req)}, req.History...),
		Stream:   true,
		Options: &ollama.Options{
			Temperature: req.Temperature,
			NumCtx:      req.ContextWindow,
		},
	}

	go s.run(ctx, client, chatReq, cb)
	return s
}

// ChatID returns the chat this session is generating into.
func (s *Session) ChatID() string {
	return s.chatID
}

// StartedAt returns when the session was launched.
func (s *Session) StartedAt() time.Time {
	return s.startedAt
}

// Cancel aborts the transport read. The session still resolves through
// OnDone; a second Cancel is a no-op.
func (s *Session) Cancel() {
	s.cancel()
}

// Wait blocks until the terminal callback has fired.
func (s *Session) Wait() {
	<-s.done
}

func (s *Session) run(ctx context.Context, client *ollama.Client, req ollama.ChatRequest, cb Callbacks) {
	defer s.cancel()

	err := client.ChatStream(ctx, req, func(ev ollama.Event) {
		if ev.Content != "" && cb.OnToken != nil {
			cb.OnToken(ev.Content)
		}
	})

	switch {
	case err == nil:
		s.finish(cb, nil)
	case errors.Is(err, context.Canceled):
		// User-initiated stop. The partial reply stands as written.
		s.finish(cb, nil)
	default:
		s.finish(cb, err)
	}
}

// finish settles the session exactly once.
func (s *Session) finish(cb Callbacks, err error) {
	s.settle.Do(func() {
		defer close(s.done)
		if err != nil {
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return
		}
		if cb.OnDone != nil {
			cb.OnDone()
		}
	})
}
