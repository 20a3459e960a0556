// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// STREAM DECODER
// =============================================================================

// StreamDecoder reassembles newline-delimited JSON records from arbitrary
// byte chunks and emits semantic events.
//
// The transport may split records at any byte boundary; the decoder keeps the
// unterminated tail of the last chunk in a residual buffer until the rest of
// the record arrives. The emitted event sequence is identical regardless of
// where the chunk boundaries fall.
//
// Malformed records are dropped and decoding continues. This is a deliberate
// tolerance policy: one bad line must never abort the whole stream.
type StreamDecoder struct {
	residual string
	done     bool
}

// streamRecord is the recognized NDJSON record shape. The message field may
// be absent entirely, which a pointer makes explicit at decode time.
type streamRecord struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// NewStreamDecoder creates a decoder with an empty residual buffer.
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{}
}

// Feed appends a chunk to the decoder and returns the events completed by it.
//
// Once a done record has been seen, Feed consumes nothing and returns nil;
// the caller's read loop should stop promptly.
func (d *StreamDecoder) Feed(chunk []byte) []Event {
	if d.done {
		return nil
	}

	buf := d.residual + string(chunk)
	lines := strings.Split(buf, "\n")

	// The last segment did not end on a record boundary; keep it.
	d.residual = lines[len(lines)-1]

	var events []Event
	for _, line := range lines[:len(lines)-1] {
		events = append(events, d.decodeLine(line)...)
		if d.done {
			break
		}
	}
	return events
}

// Finish flushes the decoder at end of stream. A non-empty residual may be a
// complete final record that lacked a trailing newline; it gets one parse
// attempt and is silently discarded on failure.
func (d *StreamDecoder) Finish() []Event {
	if d.done {
		return nil
	}
	line := d.residual
	d.residual = ""
	d.done = true

	if strings.TrimSpace(line) == "" {
		return nil
	}

	var rec streamRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return nil
	}
	return recordEvents(rec)
}

// Done reports whether a terminal done record has been decoded.
func (d *StreamDecoder) Done() bool {
	return d.done
}

// Residual returns the current undecoded tail, for session diagnostics.
func (d *StreamDecoder) Residual() string {
	return d.residual
}

// decodeLine parses one candidate record. Blank and malformed lines yield no
// events and no error.
func (d *StreamDecoder) decodeLine(line string) []Event {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	var rec streamRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		// Skip malformed lines
		return nil
	}

	if rec.Done {
		d.done = true
	}
	return recordEvents(rec)
}

// recordEvents translates a decoded record into its event sequence: a token
// event when content is present and non-empty, then a done event.
func recordEvents(rec streamRecord) []Event {
	var events []Event
	if rec.Message != nil && rec.Message.Content != "" {
		events = append(events, Event{Content: rec.Message.Content})
	}
	if rec.Done {
		events = append(events, Event{Done: true})
	}
	return events
}
