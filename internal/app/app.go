package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"chatrelay/internal/retention"
	"chatrelay/pkg/assistant"
	"chatrelay/pkg/config"
	"chatrelay/pkg/orchestrator"
	"chatrelay/pkg/search"
	"chatrelay/pkg/state"
	"chatrelay/pkg/store"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	backend *assistant.Client
	orch    *orchestrator.Orchestrator

	retentionCancel context.CancelFunc
	srv             *http.Server
}

// New initializes resources that do not require a running context (store,
// backend client, orchestrator wiring). It does not start the retention
// scheduler or the HTTP server; call Run to start those and block until
// shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	// validate effective config early and fail fast
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	cfg := eff.Config

	// runtime key/whitelist sets
	runtimeCfg := &config.RuntimeConfig{SigningKeys: map[string]struct{}{}, WhitelistEmails: map[string]struct{}{}}
	for _, k := range cfg.Security.SigningKeys {
		runtimeCfg.SigningKeys[k] = struct{}{}
	}
	for _, e := range cfg.Security.Whitelist {
		runtimeCfg.WhitelistEmails[e] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	// runtime folder layout, then the history mirror inside it
	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("invalid data path %s: %w", eff.DBPath, err)
	}
	if err := store.Open(state.StorePath(eff.DBPath)); err != nil {
		return nil, fmt.Errorf("failed to open history mirror at %s: %w", eff.DBPath, err)
	}

	// assistant backend client; missing credentials abort startup
	backend, err := assistant.NewClient(cfg.Assistant)
	if err != nil {
		return nil, err
	}

	// tool registry: web_search against the configured provider
	searcher := search.NewClient(cfg.Search)
	tools := orchestrator.NewRegistry()
	tools.Register(search.ToolName, searcher.ToolHandler)

	var opts []orchestrator.Option
	if d := cfg.Assistant.PollInterval.Duration(); d > 0 {
		opts = append(opts, orchestrator.WithPollInterval(d))
	}
	if n := cfg.Assistant.PollMaxTicks; n > 0 {
		opts = append(opts, orchestrator.WithPollBudget(n))
	}
	orch := orchestrator.New(backend, tools, opts...)

	return &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		backend:   backend,
		orch:      orch,
	}, nil
}

// Run starts the retention scheduler and the HTTP server, and blocks until
// ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	// registered even when the cron is disabled so the admin trigger works
	retention.SetConfig(a.eff.Config.Retention)
	cancel, err := retention.Start(ctx, a.eff.Config.Retention)
	if err != nil {
		return err
	}
	a.retentionCancel = cancel

	a.printBanner()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdownHTTP()
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// Close releases resources owned by the app.
func (a *App) Close() {
	if a.retentionCancel != nil {
		a.retentionCancel()
	}
	_ = store.Close()
}
