// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/lamachat/internal/config"
	"github.com/jeranaias/lamachat/internal/ollama"
	"github.com/jeranaias/lamachat/internal/probe"
	"github.com/jeranaias/lamachat/internal/session"
	"github.com/jeranaias/lamachat/internal/storage"
	"github.com/jeranaias/lamachat/internal/store"
)

// =============================================================================
// APP WIRING
// =============================================================================

// App holds the wired components of one interactive run.
type App struct {
	cfg    *config.Config
	client *ollama.Client
	store  *store.Store
	kv     storage.KV
	prober *probe.Prober
	input  *Input

	mu        sync.Mutex
	current   *session.Session
	wasOnline bool
}

// newApp loads configuration and wires storage, the Ollama client, and the
// connectivity prober.
func newApp(args Args) (*App, error) {
	redirectLogs()

	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(args.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		config.SetGlobal(cfg)
	} else {
		cfg = config.Global()
	}

	if args.OllamaURL != "" {
		cfg.Server.Candidates = []string{args.OllamaURL}
	}
	if args.NoMarkdown {
		cfg.UI.RenderMarkdown = false
	}

	dbPath, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	kv, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open chat storage: %w", err)
	}

	st := store.New(store.NewAdapter(kv))
	st.SetSampling(cfg.Sampling.Temperature, cfg.Sampling.ContextWindow)
	st.SetWebSearchEnabled(cfg.UI.WebSearchEnabled)

	model := args.Model
	if model == "" {
		model = cfg.DefaultModel
	}
	st.SetSelectedModel(model)

	clientCfg := ollama.DefaultConfig()
	clientCfg.BaseURL = cfg.Server.Candidates[0]
	clientCfg.Timeout = cfg.RequestTimeout()
	clientCfg.DefaultModel = cfg.DefaultModel
	client := ollama.NewClientWithConfig(clientCfg)

	app := &App{
		cfg:    cfg,
		client: client,
		store:  st,
		kv:     kv,
	}

	app.prober = probe.NewProber(probe.Config{
		Candidates: cfg.Server.Candidates,
		Timeout:    cfg.ProbeTimeout(),
		Interval:   cfg.ProbeInterval(),
		OnChange:   app.onConnectivityChange,
	})

	return app, nil
}

// redirectLogs sends structured logs to a file so they never corrupt the
// interactive prompt.
func redirectLogs() {
	dir, err := config.ConfigDir()
	if err != nil {
		return
	}
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(filepath.Join(dir, "lamachat.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return
	}
	log.SetOutput(f)
}

// onConnectivityChange follows the prober: it repoints the client at the
// active endpoint, flips the store signal, and refreshes the model list on
// reconnect. Sessions already running keep the base URL they started with.
func (a *App) onConnectivityChange(connected bool) {
	a.mu.Lock()
	cameOnline := connected && !a.wasOnline
	a.wasOnline = connected
	a.mu.Unlock()

	if connected {
		if url := a.prober.ActiveURL(); url != "" {
			a.client.SetBaseURL(url)
		}
	}
	if cameOnline {
		a.refreshModels()
	}
	a.store.SetConnected(connected)
}

// refreshModels pulls the installed model list into the store.
func (a *App) refreshModels() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.RequestTimeout())
	defer cancel()

	models, err := a.client.ListModels(ctx)
	if err != nil {
		log.Printf("MODELS_REFRESH_ERROR | error=%v", err)
		return
	}
	names := make([]string, 0, len(models))
	for _, m := range models {
		names = append(names, m.Name)
	}
	a.store.SetModels(names)
}

// activeSession returns the running session, if any.
func (a *App) activeSession() *session.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *App) setSession(s *session.Session) {
	a.mu.Lock()
	a.current = s
	a.mu.Unlock()
}

// Close releases storage and terminal resources.
func (a *App) Close() {
	if a.input != nil {
		a.input.Close()
	}
	if err := a.kv.Close(); err != nil {
		log.Printf("STORAGE_CLOSE_ERROR | error=%v", err)
	}
}
