// Package app assembles the stockchat core from configuration: fetchers,
// interpreter, dispatcher, stores and the session orchestrator.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"stockchat/internal/align"
	"stockchat/internal/config"
	"stockchat/internal/dashboard"
	"stockchat/internal/dispatch"
	"stockchat/internal/fetch"
	"stockchat/internal/interpreter"
	"stockchat/internal/news"
	"stockchat/internal/plan"
	"stockchat/internal/session"
	"stockchat/internal/store"
)

// App holds the assembled components. Cache and QueryLog are nil when their
// storage path is not configured.
type App struct {
	Orchestrator *session.Orchestrator
	Cache        *store.ParquetCache
	QueryLog     *store.SQLiteLog

	cfg *config.Config
	log *slog.Logger
}

// Build wires every component named by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, log: logger}

	if cfg.Storage.DataDir != "" {
		a.Cache = store.NewParquetCache(cfg.Storage.DataDir)
	}
	if cfg.Storage.SQLitePath != "" {
		ql, err := store.NewSQLiteLog(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening query log %s: %w", cfg.Storage.SQLitePath, err)
		}
		a.QueryLog = ql
	}

	sources, err := a.sources()
	if err != nil {
		a.Close()
		return nil, err
	}

	interp, err := interpreter.New(ctx, interpreter.Config{
		Provider:    cfg.Interpreter.Provider,
		Model:       cfg.Interpreter.Model,
		APIKey:      cfg.Interpreter.APIKey,
		BaseURL:     interpreterURL(cfg),
		Temperature: cfg.Interpreter.Temperature,
		Timeout:     cfg.Interpreter.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	policy, err := align.ParseAxisPolicy(cfg.Chart.AxisPolicy)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := session.Options{
		Interpreter: interp,
		Validator:   plan.NewValidator(cfg.Chart.DefaultMetrics),
		Dispatcher: dispatch.New(sources, dispatch.Options{
			FetchTimeout:   cfg.Dispatch.FetchTimeout,
			MaxConcurrency: cfg.Dispatch.MaxConcurrency,
		}),
		Palette:     dashboard.Palette(cfg.Chart.Palette),
		AxisPolicy:  policy,
		KeyDateDays: cfg.Chart.KeyDateDays,
	}
	if a.QueryLog != nil {
		opts.QueryLog = a.QueryLog
	}
	a.Orchestrator = session.New(opts)

	logger.Info("stockchat core ready",
		"interpreter", cfg.Interpreter.Provider,
		"history", cfg.Sources.History,
		"metrics", cfg.Sources.Metrics,
		"news", cfg.Sources.News,
		"earnings", cfg.Sources.Earnings,
		"cache", a.Cache != nil,
		"query_log", a.QueryLog != nil,
	)
	return a, nil
}

// interpreterURL returns the base URL for the configured provider. The
// remote interpreter shares the data backend unless given its own URL.
func interpreterURL(cfg *config.Config) string {
	if cfg.Interpreter.BaseURL == "" && cfg.Interpreter.Provider == "remote" {
		return cfg.Backend.BaseURL
	}
	return cfg.Interpreter.BaseURL
}

// sources builds one fetcher per action kind, sharing instances between
// kinds that name the same source.
func (a *App) sources() (fetch.Sources, error) {
	cfg := a.cfg
	var (
		yahoo   *fetch.Yahoo
		alpaca  *fetch.Alpaca
		backend *fetch.Backend
		mock    *fetch.Mock
	)
	getYahoo := func() *fetch.Yahoo {
		if yahoo == nil {
			yahoo = fetch.NewYahoo(fetch.YahooOptions{
				BaseURL:         cfg.Yahoo.BaseURL,
				RateLimitPerMin: cfg.Yahoo.RateLimitPerMin,
				Retries:         cfg.Yahoo.Retries,
				NewsCount:       cfg.Dispatch.NewsLimit,
			})
		}
		return yahoo
	}
	getAlpaca := func() *fetch.Alpaca {
		if alpaca == nil {
			alpaca = fetch.NewAlpaca(fetch.AlpacaOptions{
				APIKey:    cfg.Alpaca.APIKey,
				APISecret: cfg.Alpaca.APISecret,
				DataURL:   cfg.Alpaca.DataURL,
				Feed:      cfg.Alpaca.Feed,
				NewsLimit: cfg.Dispatch.NewsLimit,
			})
		}
		return alpaca
	}
	getBackend := func() *fetch.Backend {
		if backend == nil {
			backend = fetch.NewBackend(cfg.Backend.BaseURL)
		}
		return backend
	}
	getMock := func() *fetch.Mock {
		if mock == nil {
			mock = fetch.NewMock(time.Now())
		}
		return mock
	}

	var s fetch.Sources
	switch cfg.Sources.History {
	case "yahoo":
		s.History = getYahoo()
	case "alpaca":
		s.History = getAlpaca()
	case "backend":
		s.History = getBackend()
	case "mock":
		s.History = getMock()
	default:
		return s, fmt.Errorf("sources.history %q cannot serve history", cfg.Sources.History)
	}
	if a.Cache != nil && cfg.Sources.History != "mock" {
		s.History = fetch.NewCachedHistory(s.History, a.Cache, cfg.Storage.CacheTTL)
	}

	switch cfg.Sources.Metrics {
	case "yahoo":
		s.Metrics = getYahoo()
	case "backend":
		s.Metrics = getBackend()
	case "mock":
		s.Metrics = getMock()
	default:
		return s, fmt.Errorf("sources.metrics %q cannot serve metrics", cfg.Sources.Metrics)
	}

	switch cfg.Sources.News {
	case "yahoo":
		s.News = getYahoo()
	case "alpaca":
		s.News = getAlpaca()
	case "backend":
		s.News = getBackend()
	case "mock":
		s.News = getMock()
	case "google":
		s.News = news.NewGoogleNews(cfg.Dispatch.NewsLimit)
	default:
		return s, fmt.Errorf("sources.news %q cannot serve news", cfg.Sources.News)
	}

	switch cfg.Sources.Earnings {
	case "yahoo":
		s.Earnings = getYahoo()
	case "backend":
		s.Earnings = getBackend()
	case "mock":
		s.Earnings = getMock()
	default:
		return s, fmt.Errorf("sources.earnings %q cannot serve earnings", cfg.Sources.Earnings)
	}
	return s, nil
}

// Close stops the orchestrator and closes the stores.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Close()
	}
	if a.QueryLog != nil {
		if err := a.QueryLog.Close(); err != nil {
			a.log.Warn("closing query log", "error", err)
		}
	}
}

// DefaultConfigPath returns the config path from STOCKCHAT_CONFIG, or the
// conventional location.
func DefaultConfigPath(getenv func(string) string) string {
	if p := getenv("STOCKCHAT_CONFIG"); p != "" {
		return p
	}
	return filepath.Join("config", "stockchat.yaml")
}
