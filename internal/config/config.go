package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for stockchat.
type Config struct {
	Server      Server      `yaml:"server"`
	Logging     Logging     `yaml:"logging"`
	Interpreter Interpreter `yaml:"interpreter"`
	Sources     Sources     `yaml:"sources"`
	Alpaca      Alpaca      `yaml:"alpaca"`
	Yahoo       Yahoo       `yaml:"yahoo"`
	Backend     Backend     `yaml:"backend"`
	Dispatch    Dispatch    `yaml:"dispatch"`
	Chart       Chart       `yaml:"chart"`
	Storage     Storage     `yaml:"storage"`
}

// Server holds network listener configuration.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Logging configures the application logger.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Interpreter selects and configures the query interpreter.
type Interpreter struct {
	Provider    string        `yaml:"provider"` // openai, gemini or remote
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Sources names the fetcher used for each action kind: yahoo, alpaca,
// backend or mock. News may also come from google.
type Sources struct {
	History  string `yaml:"history"`
	Metrics  string `yaml:"metrics"`
	News     string `yaml:"news"`
	Earnings string `yaml:"earnings"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// Yahoo configures the Yahoo Finance fetcher.
type Yahoo struct {
	BaseURL         string `yaml:"base_url"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min"`
	Retries         int    `yaml:"retries"`
}

// Backend points at an existing stock data REST backend.
type Backend struct {
	BaseURL string `yaml:"base_url"`
}

// Dispatch bounds the per-action fan-out.
type Dispatch struct {
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
	MaxConcurrency int           `yaml:"max_concurrency"`
	NewsLimit      int           `yaml:"news_limit"`
}

// Chart holds presentation constants injected into the core.
type Chart struct {
	AxisPolicy     string   `yaml:"axis_policy"` // union or primary
	Palette        []string `yaml:"palette"`
	DefaultMetrics []string `yaml:"default_metrics"`
	KeyDateDays    int      `yaml:"key_date_days"`
}

// Storage holds paths for the history cache and query log.
type Storage struct {
	DataDir       string        `yaml:"data_dir"`
	SQLitePath    string        `yaml:"sqlite_path"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	PruneSchedule string        `yaml:"prune_schedule"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads a .env file when present, then the YAML configuration file at
// path (skipped when path is empty), applies environment variable overrides
// and defaults, and validates the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("STOCKCHAT_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("STOCKCHAT_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("STOCKCHAT_INTERPRETER"); v != "" {
		cfg.Interpreter.Provider = v
	}
	if v := os.Getenv("STOCKCHAT_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	// Provider keys only fill an empty api_key so one file can hold both.
	if cfg.Interpreter.APIKey == "" {
		switch cfg.Interpreter.Provider {
		case "gemini":
			cfg.Interpreter.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			cfg.Interpreter.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}

// ---------------------------------------------------------------------------
// Defaults and validation
// ---------------------------------------------------------------------------

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Interpreter.Provider == "" {
		cfg.Interpreter.Provider = "openai"
	}
	if cfg.Interpreter.Model == "" {
		switch cfg.Interpreter.Provider {
		case "gemini":
			cfg.Interpreter.Model = "gemini-2.0-flash"
		case "openai":
			cfg.Interpreter.Model = "gpt-4o-mini"
		}
	}
	if cfg.Interpreter.Temperature == 0 {
		cfg.Interpreter.Temperature = 0.3
	}
	if cfg.Interpreter.Timeout == 0 {
		cfg.Interpreter.Timeout = 30 * time.Second
	}
	if cfg.Sources.History == "" {
		cfg.Sources.History = "yahoo"
	}
	if cfg.Sources.Metrics == "" {
		cfg.Sources.Metrics = "yahoo"
	}
	if cfg.Sources.News == "" {
		cfg.Sources.News = "yahoo"
	}
	if cfg.Sources.Earnings == "" {
		cfg.Sources.Earnings = "yahoo"
	}
	if cfg.Alpaca.Feed == "" {
		cfg.Alpaca.Feed = "iex"
	}
	if cfg.Yahoo.RateLimitPerMin == 0 {
		cfg.Yahoo.RateLimitPerMin = 120
	}
	if cfg.Yahoo.Retries == 0 {
		cfg.Yahoo.Retries = 3
	}
	if cfg.Dispatch.FetchTimeout == 0 {
		cfg.Dispatch.FetchTimeout = 15 * time.Second
	}
	if cfg.Dispatch.MaxConcurrency == 0 {
		cfg.Dispatch.MaxConcurrency = 8
	}
	if cfg.Dispatch.NewsLimit == 0 {
		cfg.Dispatch.NewsLimit = 8
	}
	if cfg.Chart.AxisPolicy == "" {
		cfg.Chart.AxisPolicy = "union"
	}
	if cfg.Chart.KeyDateDays == 0 {
		cfg.Chart.KeyDateDays = 3
	}
	if cfg.Storage.CacheTTL == 0 {
		cfg.Storage.CacheTTL = 12 * time.Hour
	}
	if cfg.Storage.PruneSchedule == "" {
		cfg.Storage.PruneSchedule = "@every 1h"
	}
}

var validSources = map[string]bool{"yahoo": true, "alpaca": true, "backend": true, "mock": true, "google": true}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Interpreter.Provider {
	case "openai", "gemini":
	case "remote":
		if c.Backend.BaseURL == "" {
			errs = append(errs, errors.New("interpreter.provider remote requires backend.base_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown interpreter.provider %q", c.Interpreter.Provider))
	}

	usesBackend, usesAlpaca := false, false
	for name, src := range map[string]string{
		"history": c.Sources.History, "metrics": c.Sources.Metrics,
		"news": c.Sources.News, "earnings": c.Sources.Earnings,
	} {
		if !validSources[src] {
			errs = append(errs, fmt.Errorf("unknown sources.%s %q", name, src))
		}
		usesBackend = usesBackend || src == "backend"
		usesAlpaca = usesAlpaca || src == "alpaca"
	}
	if c.Sources.Metrics == "alpaca" || c.Sources.Earnings == "alpaca" {
		errs = append(errs, errors.New("alpaca serves only history and news"))
	}
	for name, src := range map[string]string{
		"history": c.Sources.History, "metrics": c.Sources.Metrics, "earnings": c.Sources.Earnings,
	} {
		if src == "google" {
			errs = append(errs, fmt.Errorf("sources.%s: google serves only news", name))
		}
	}
	if usesBackend && c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend sources require backend.base_url"))
	}
	if usesAlpaca && (c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "") {
		errs = append(errs, errors.New("alpaca sources require alpaca api_key and api_secret"))
	}

	switch c.Chart.AxisPolicy {
	case "union", "primary":
	default:
		errs = append(errs, fmt.Errorf("unknown chart.axis_policy %q", c.Chart.AxisPolicy))
	}
	if c.Dispatch.FetchTimeout < 0 || c.Dispatch.MaxConcurrency < 0 {
		errs = append(errs, errors.New("dispatch limits must not be negative"))
	}
	return errors.Join(errs...)
}
