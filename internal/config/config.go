// Package config loads and validates the daemon's YAML settings file,
// overlaying environment variable overrides, and optionally watching
// the file for hot-reloadable changes.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the ports the daemon listens on.
type ServerConfig struct {
	WebhookPort string `yaml:"webhook_port"`
	MetricsPort string `yaml:"metrics_port"`
}

// TelemetryConfig selects and tunes the telemetry backend adapter.
type TelemetryConfig struct {
	Backend  string        `yaml:"backend"`
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
	AuthToken string       `yaml:"auth_token"`
}

// StoreConfig selects and tunes the signature store adapter.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Database   string `yaml:"database"`
	SSLMode    string `yaml:"ssl_mode"`
	RedisAddr  string `yaml:"redis_addr"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

// DiagnosisConfig selects and tunes the diagnosis backend and the
// per-call/daily budget enforced before invoking it.
type DiagnosisConfig struct {
	Backend          string        `yaml:"backend"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	MaxTokens        int           `yaml:"max_tokens"`
	Temperature      float32       `yaml:"temperature"`
	DailyBudgetUSD   float64       `yaml:"daily_budget_usd"`
	PerCallBudgetUSD float64       `yaml:"per_call_budget_usd"`
	AWSRegion        string        `yaml:"aws_region"`
}

// NotificationConfig selects the notification backend and its sink.
type NotificationConfig struct {
	Backend         string `yaml:"backend"`
	SlackWebhookURL string `yaml:"slack_webhook_url"`
	SlackChannel    string `yaml:"slack_channel"`
	MarkdownDir     string `yaml:"markdown_dir"`
}

// PollConfig controls the daemon's poll cadence and page size.
type PollConfig struct {
	Interval      time.Duration `yaml:"interval"`
	WindowMinutes int           `yaml:"window_minutes"`
	Limit         int           `yaml:"limit"`
}

// LoggingConfig controls log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// WebhookConfig controls the HTTP management surface.
type WebhookConfig struct {
	Port        string `yaml:"port"`
	Path        string `yaml:"path"`
	RequireAuth bool   `yaml:"require_auth"`
	AuthToken   string `yaml:"auth_token"`
}

// Config is the daemon's full settings tree, loaded from YAML and
// overlaid with environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Store        StoreConfig        `yaml:"store"`
	Diagnosis    DiagnosisConfig    `yaml:"diagnosis"`
	Notification NotificationConfig `yaml:"notification"`
	Poll         PollConfig         `yaml:"poll"`
	Logging      LoggingConfig      `yaml:"logging"`
	Webhook      WebhookConfig      `yaml:"webhook"`
	RunMode      string             `yaml:"run_mode"`
}

func applyDefaults(config *Config) {
	if config.Telemetry.Backend == "" {
		config.Telemetry.Backend = "signoz"
	}
	if config.Telemetry.Endpoint == "" {
		config.Telemetry.Endpoint = "http://localhost:8085"
	}
	if config.Telemetry.Timeout == 0 {
		config.Telemetry.Timeout = 30 * time.Second
	}
	if config.Store.Backend == "" {
		config.Store.Backend = "postgres"
	}
	if config.Store.Host == "" {
		config.Store.Host = "localhost"
	}
	if config.Store.Port == 0 {
		config.Store.Port = 5432
	}
	if config.Store.SSLMode == "" {
		config.Store.SSLMode = "disable"
	}
	if config.Diagnosis.Backend == "" {
		config.Diagnosis.Backend = "anthropic"
	}
	if config.Diagnosis.Timeout == 0 {
		config.Diagnosis.Timeout = 120 * time.Second
	}
	if config.Diagnosis.MaxTokens == 0 {
		config.Diagnosis.MaxTokens = 4096
	}
	if config.Diagnosis.DailyBudgetUSD == 0 {
		config.Diagnosis.DailyBudgetUSD = 50.0
	}
	if config.Diagnosis.PerCallBudgetUSD == 0 {
		config.Diagnosis.PerCallBudgetUSD = 2.0
	}
	if config.Notification.Backend == "" {
		config.Notification.Backend = "stdout"
	}
	if config.Poll.Interval == 0 {
		config.Poll.Interval = 5 * time.Minute
	}
	if config.Poll.WindowMinutes == 0 {
		config.Poll.WindowMinutes = 60
	}
	if config.Poll.Limit == 0 {
		config.Poll.Limit = 100
	}
	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Logging.Format == "" {
		config.Logging.Format = "json"
	}
	if config.RunMode == "" {
		config.RunMode = "daemon"
	}
}

var validDiagnosisBackends = map[string]bool{"anthropic": true, "bedrock": true}

func validate(config *Config) error {
	applyDefaults(config)

	if !validDiagnosisBackends[config.Diagnosis.Backend] {
		return fmt.Errorf("unsupported diagnosis backend: %s", config.Diagnosis.Backend)
	}
	if config.Diagnosis.Model == "" {
		return fmt.Errorf("diagnosis model is required")
	}
	if config.Diagnosis.Temperature < 0.0 || config.Diagnosis.Temperature > 1.0 {
		return fmt.Errorf("diagnosis temperature must be between 0.0 and 1.0")
	}
	if config.Diagnosis.MaxTokens <= 0 {
		return fmt.Errorf("diagnosis max tokens must be greater than 0")
	}
	if config.Diagnosis.DailyBudgetUSD <= 0 {
		return fmt.Errorf("daily budget must be greater than 0")
	}
	if config.Poll.WindowMinutes <= 0 {
		return fmt.Errorf("poll window_minutes must be greater than 0")
	}
	return nil
}

// Load reads, parses, defaults, and validates the YAML config file at
// path, then overlays any set environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := loadFromEnv(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func loadFromEnv(config *Config) error {
	if v := os.Getenv("DIAGNOSIS_BACKEND"); v != "" {
		config.Diagnosis.Backend = v
	}
	if v := os.Getenv("DIAGNOSIS_MODEL"); v != "" {
		config.Diagnosis.Model = v
	}
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		config.Server.WebhookPort = v
	}
	if v := os.Getenv("METRICS_PORT"); v != "" {
		config.Server.MetricsPort = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("RUN_MODE"); v != "" {
		config.RunMode = v
	}
	if v := os.Getenv("DAILY_BUDGET_USD"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid DAILY_BUDGET_USD: %w", err)
		}
		config.Diagnosis.DailyBudgetUSD = parsed
	}
	return nil
}

// Watch invokes onChange each time the file at path is rewritten,
// reloading and validating it first. Load errors are delivered to
// onChange's error argument rather than panicking the watcher goroutine,
// so the daemon can keep running on the last-known-good config.
func Watch(path string, onChange func(*Config, error)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}

	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				onChange(cfg, err)
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return watcher, nil
}
