// Package config loads kaleads settings from defaults, an optional
// kaleads.yaml file and KALEADS_* environment variables, in that order
// of precedence (lowest first).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides (KALEADS_LOG_LEVEL...).
const EnvPrefix = "KALEADS"

// Config is the complete kaleads configuration.
type Config struct {
	Log          LogConfig          `mapstructure:"log"`
	Ledger       LedgerConfig       `mapstructure:"ledger"`
	Clients      ClientsConfig      `mapstructure:"clients"`
	Prompts      PromptsConfig      `mapstructure:"prompts"`
	Search       SearchConfig       `mapstructure:"search"`
	Inspect      InspectConfig      `mapstructure:"inspect"`
	Inference    InferenceConfig    `mapstructure:"inference"`
	Cascade      CascadeConfig      `mapstructure:"cascade"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Quality      QualityConfig      `mapstructure:"quality"`
	Feedback     FeedbackConfig     `mapstructure:"feedback"`
	HTTP         HTTPConfig         `mapstructure:"http"`
}

// LogConfig controls logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `mapstructure:"level"`
	// Development switches to human-readable console output.
	Development bool `mapstructure:"development"`
}

// LedgerConfig controls the session ledger.
type LedgerConfig struct {
	// Driver is "sqlite" (persistent) or "memory".
	Driver  string `mapstructure:"driver"`
	DataDir string `mapstructure:"data_dir"`
	// MaxHistory caps entries returned per contact; 0 is unlimited.
	MaxHistory int `mapstructure:"max_history"`
}

// ClientsConfig points at the client context files.
type ClientsConfig struct {
	Dir string `mapstructure:"dir"`
}

// PromptsConfig optionally overrides the embedded prompt catalogue.
type PromptsConfig struct {
	File string `mapstructure:"file"`
}

// SearchConfig controls the web search service.
type SearchConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	BaseURL           string  `mapstructure:"base_url"`
	MaxResults        int     `mapstructure:"max_results"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
	UserAgent         string  `mapstructure:"user_agent"`
}

// InspectConfig controls site inspection.
type InspectConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Mode is "http" (raw HTML) or "browser" (headless Chrome).
	Mode              string        `mapstructure:"mode"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	BrowserURL        string        `mapstructure:"browser_url"`
	BrowserBin        string        `mapstructure:"browser_bin"`
	Headless          bool          `mapstructure:"headless"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
}

// InferenceConfig controls the language model service.
type InferenceConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	APIKey            string  `mapstructure:"api_key"`
	Model             string  `mapstructure:"model"`
	Temperature       float32 `mapstructure:"temperature"`
	RequestsPerMinute int     `mapstructure:"requests_per_minute"`
}

// CascadeConfig holds per-tier strategy timeouts.
type CascadeConfig struct {
	ContextTimeout   time.Duration `mapstructure:"context_timeout"`
	SearchTimeout    time.Duration `mapstructure:"search_timeout"`
	InspectTimeout   time.Duration `mapstructure:"inspect_timeout"`
	InferenceTimeout time.Duration `mapstructure:"inference_timeout"`
	// Retry allows one immediate retry of a transient transport failure.
	Retry bool `mapstructure:"retry"`
}

// OrchestratorConfig bounds a generation run.
type OrchestratorConfig struct {
	Deadline time.Duration `mapstructure:"deadline"`
}

// QualityConfig is the scoring policy.
type QualityConfig struct {
	// Weights and Penalties override the built-in per-field values.
	Weights   map[string]int `mapstructure:"weights"`
	Penalties map[string]int `mapstructure:"penalties"`
	// Expression, when set, replaces the weighted formula with a CEL
	// expression evaluated over the same inputs.
	Expression string `mapstructure:"expression"`
}

// FeedbackConfig controls the feedback analyzer.
type FeedbackConfig struct {
	Threshold     float64       `mapstructure:"threshold"`
	Refine        bool          `mapstructure:"refine"`
	RefineTimeout time.Duration `mapstructure:"refine_timeout"`
}

// HTTPConfig controls the REST surface.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Ledger: LedgerConfig{
			Driver:  "sqlite",
			DataDir: filepath.Join(homeDir(), ".kaleads"),
		},
		Clients: ClientsConfig{Dir: filepath.Join(homeDir(), ".kaleads", "clients")},
		Search: SearchConfig{
			Enabled:           true,
			BaseURL:           "https://html.duckduckgo.com/html/",
			MaxResults:        8,
			RequestsPerSecond: 1,
			Burst:             2,
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		},
		Inspect: InspectConfig{
			Enabled:           true,
			Mode:              "http",
			RequestsPerSecond: 2,
			Headless:          true,
			SettleDelay:       time.Second,
		},
		Inference: InferenceConfig{
			Model:             "gemini-2.5-flash",
			Temperature:       0.2,
			RequestsPerMinute: 60,
		},
		Cascade: CascadeConfig{
			ContextTimeout:   time.Second,
			SearchTimeout:    8 * time.Second,
			InspectTimeout:   10 * time.Second,
			InferenceTimeout: 20 * time.Second,
			Retry:            true,
		},
		Orchestrator: OrchestratorConfig{Deadline: 60 * time.Second},
		Feedback: FeedbackConfig{
			Threshold:     0.75,
			RefineTimeout: 15 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:         "127.0.0.1:8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 90 * time.Second,
		},
	}
}

// SetDefaults registers every default with v so that env overrides work
// for keys absent from the config file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)

	v.SetDefault("ledger.driver", d.Ledger.Driver)
	v.SetDefault("ledger.data_dir", d.Ledger.DataDir)
	v.SetDefault("ledger.max_history", d.Ledger.MaxHistory)

	v.SetDefault("clients.dir", d.Clients.Dir)
	v.SetDefault("prompts.file", d.Prompts.File)

	v.SetDefault("search.enabled", d.Search.Enabled)
	v.SetDefault("search.base_url", d.Search.BaseURL)
	v.SetDefault("search.max_results", d.Search.MaxResults)
	v.SetDefault("search.requests_per_second", d.Search.RequestsPerSecond)
	v.SetDefault("search.burst", d.Search.Burst)
	v.SetDefault("search.user_agent", d.Search.UserAgent)

	v.SetDefault("inspect.enabled", d.Inspect.Enabled)
	v.SetDefault("inspect.mode", d.Inspect.Mode)
	v.SetDefault("inspect.requests_per_second", d.Inspect.RequestsPerSecond)
	v.SetDefault("inspect.browser_url", d.Inspect.BrowserURL)
	v.SetDefault("inspect.browser_bin", d.Inspect.BrowserBin)
	v.SetDefault("inspect.headless", d.Inspect.Headless)
	v.SetDefault("inspect.settle_delay", d.Inspect.SettleDelay)

	v.SetDefault("inference.enabled", d.Inference.Enabled)
	v.SetDefault("inference.api_key", d.Inference.APIKey)
	v.SetDefault("inference.model", d.Inference.Model)
	v.SetDefault("inference.temperature", d.Inference.Temperature)
	v.SetDefault("inference.requests_per_minute", d.Inference.RequestsPerMinute)

	v.SetDefault("cascade.context_timeout", d.Cascade.ContextTimeout)
	v.SetDefault("cascade.search_timeout", d.Cascade.SearchTimeout)
	v.SetDefault("cascade.inspect_timeout", d.Cascade.InspectTimeout)
	v.SetDefault("cascade.inference_timeout", d.Cascade.InferenceTimeout)
	v.SetDefault("cascade.retry", d.Cascade.Retry)

	v.SetDefault("orchestrator.deadline", d.Orchestrator.Deadline)

	v.SetDefault("quality.weights", map[string]int{})
	v.SetDefault("quality.penalties", map[string]int{})
	v.SetDefault("quality.expression", "")

	v.SetDefault("feedback.threshold", d.Feedback.Threshold)
	v.SetDefault("feedback.refine", d.Feedback.Refine)
	v.SetDefault("feedback.refine_timeout", d.Feedback.RefineTimeout)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
}

// NewViper returns a viper instance with defaults, env binding and, if
// file is non-empty, that config file. With an empty file it looks for
// kaleads.yaml in the working directory and ConfigDir, and a missing
// file is not an error.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The Gemini key is commonly exported without our prefix.
	_ = v.BindEnv("inference.api_key", EnvPrefix+"_INFERENCE_API_KEY", "GEMINI_API_KEY")

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("kaleads")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(ConfigDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", describe(file), err)
		}
	}
	return v, nil
}

// Load unmarshals v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// ConfigDir returns the user's kaleads config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "kaleads")
	}
	return filepath.Join(homeDir(), ".config", "kaleads")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func describe(file string) string {
	if file == "" {
		return "kaleads.yaml"
	}
	return file
}
