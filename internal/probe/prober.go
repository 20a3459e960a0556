// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package probe determines which candidate Ollama endpoint is reachable.
package probe

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// =============================================================================
// ENDPOINT
// =============================================================================

// Status is the reachability state of an endpoint.
type Status int

const (
	StatusUnknown Status = iota
	StatusReachable
	StatusUnreachable
)

func (s Status) String() string {
	switch s {
	case StatusReachable:
		return "reachable"
	case StatusUnreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Endpoint is a candidate network location for the inference server.
type Endpoint struct {
	URL         string
	Status      Status
	LastChecked time.Time
}

// =============================================================================
// ONE-SHOT PROBE
// =============================================================================

// DefaultTimeout bounds each individual candidate check.
const DefaultTimeout = 2 * time.Second

// Probe tries each candidate in listed order, each bounded by an independent
// timeout; the first to answer the root path with a 2xx wins and the rest are
// not tried. Returns nil when no candidate responds. Never returns an error:
// probe failures are a boolean concern, not an exceptional one.
func Probe(ctx context.Context, candidates []string, timeout time.Duration) *Endpoint {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	for _, url := range candidates {
		if ctx.Err() != nil {
			return nil
		}
		if checkOne(ctx, url, timeout) {
			return &Endpoint{URL: url, Status: StatusReachable, LastChecked: time.Now()}
		}
	}
	return nil
}

func checkOne(ctx context.Context, url string, timeout time.Duration) bool {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode <= 299
}

// =============================================================================
// RECURRING PROBER
// =============================================================================

// Prober re-checks the candidate list on a timer, independent of any
// generation in flight, and reports reachability changes through a callback.
type Prober struct {
	mu sync.Mutex

	candidates []string
	timeout    time.Duration
	interval   time.Duration

	// lastGood is the sticky preference: the most recent reachable URL is
	// tried first on the next cycle and is never dropped from the list.
	lastGood string
	active   *Endpoint

	// limiter caps probe cycles even if the configured interval is absurd.
	limiter *rate.Limiter

	onChange func(connected bool)
}

// Config holds prober configuration.
type Config struct {
	// Candidates are the base URLs to try, in preference order.
	Candidates []string

	// Timeout bounds each individual candidate check (default: 2s).
	Timeout time.Duration

	// Interval between probe cycles (default: 10s).
	Interval time.Duration

	// OnChange is invoked with the connectivity boolean after every cycle.
	OnChange func(connected bool)
}

// NewProber creates a recurring prober. It does not start probing; call Run.
func NewProber(cfg Config) *Prober {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	return &Prober{
		candidates: append([]string(nil), cfg.Candidates...),
		timeout:    timeout,
		interval:   interval,
		limiter:    rate.NewLimiter(rate.Every(time.Second), 1),
		onChange:   cfg.OnChange,
	}
}

// Active returns a copy of the currently active endpoint, or nil when none is
// reachable. The active endpoint only changes between cycles, never while a
// stream is open against it.
func (p *Prober) Active() *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil
	}
	ep := *p.active
	return &ep
}

// ActiveURL returns the active endpoint URL, or the first candidate when
// nothing has been reachable yet.
func (p *Prober) ActiveURL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil && p.active.Status == StatusReachable {
		return p.active.URL
	}
	if p.lastGood != "" {
		return p.lastGood
	}
	if len(p.candidates) > 0 {
		return p.candidates[0]
	}
	return ""
}

// Check runs one probe cycle immediately. Failures are silent; they only flip
// the connectivity signal.
func (p *Prober) Check(ctx context.Context) bool {
	ep := Probe(ctx, p.ordered(), p.timeout)

	p.mu.Lock()
	if ep != nil {
		p.active = ep
		p.lastGood = ep.URL
	} else if p.active != nil {
		p.active.Status = StatusUnreachable
		p.active.LastChecked = time.Now()
	}
	connected := ep != nil
	onChange := p.onChange
	p.mu.Unlock()

	if onChange != nil {
		onChange(connected)
	}
	return connected
}

// ordered returns the candidate list with the sticky last-good URL first.
func (p *Prober) ordered() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastGood == "" {
		return append([]string(nil), p.candidates...)
	}
	out := make([]string, 0, len(p.candidates))
	out = append(out, p.lastGood)
	for _, c := range p.candidates {
		if c != p.lastGood {
			out = append(out, c)
		}
	}
	return out
}

// Run probes immediately and then on every tick until ctx is cancelled.
// Intended to be launched as a goroutine; it never returns an error.
func (p *Prober) Run(ctx context.Context) {
	if err := p.limiter.Wait(ctx); err == nil {
		p.Check(ctx)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.limiter.Wait(ctx); err != nil {
				return
			}
			was := p.Active()
			now := p.Check(ctx)
			if was != nil && was.Status == StatusReachable && !now {
				log.Printf("PROBE_LOST | endpoint=%s", was.URL)
			}
		}
	}
}
