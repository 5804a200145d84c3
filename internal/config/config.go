// Package config loads the taskmesh server configuration from defaults,
// an optional YAML file, and environment variables, in that priority
// order (each layer overrides the one before it), matching the
// three-layer convention used throughout the gomind framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the taskmesh server.
type Config struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`

	HTTP       HTTPConfig       `yaml:"http"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Security   SecurityConfig   `yaml:"security"`
	Executor   ExecutorConfig   `yaml:"executor"`
	Logging    LoggingConfig    `yaml:"logging"`
	Adapters   AdaptersConfig   `yaml:"adapters"`
}

// HTTPConfig tunes the public API server.
type HTTPConfig struct {
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// RedisConfig points at the event store / queue / pub-sub backend.
type RedisConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// WebhookConfig controls outbound webhook delivery (§4.5).
type WebhookConfig struct {
	SigningSecret string        `yaml:"signing_secret"`
	MaxRetries    int           `yaml:"max_retries"`
	Timeout       time.Duration `yaml:"timeout"`
	Workers       int           `yaml:"workers"`
}

// SecurityConfig controls the permission/approval/rate-limit layer (§4.6).
type SecurityConfig struct {
	ApprovalTTL       time.Duration `yaml:"approval_ttl"`
	PerUserRateWindow time.Duration `yaml:"per_user_rate_window"`
}

// ExecutorConfig controls the execution engine (§4.8).
type ExecutorConfig struct {
	MaxConcurrency      int           `yaml:"max_concurrency"`
	DefaultStepTimeout  time.Duration `yaml:"default_step_timeout"`
	GlobalRateWindow    time.Duration `yaml:"global_rate_window"`
}

// LoggingConfig controls the SimpleLogger instantiated at startup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AdaptersConfig names the credential env vars each external adapter
// looks for; an unset credential makes that adapter degrade to mock.
type AdaptersConfig struct {
	SlackWebhookURL    string `yaml:"-"`
	JiraURL            string `yaml:"-"`
	JiraAPIToken       string `yaml:"-"`
	GitHubToken        string `yaml:"-"`
	SMTPAddr           string `yaml:"-"`
	ConfluenceURL      string `yaml:"-"`
	ConfluenceAPIToken string `yaml:"-"`
	DatadogAPIKey      string `yaml:"-"`
	SonarqubeToken     string `yaml:"-"`
	JenkinsURL         string `yaml:"-"`
	JenkinsAPIToken    string `yaml:"-"`
}

// Default returns the built-in defaults, before env/file overlays.
func Default() *Config {
	return &Config{
		Name: "taskmeshd",
		Port: 8080,
		HTTP: HTTPConfig{
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			URL:      "redis://localhost:6379/0",
			PoolSize: 10,
		},
		Telemetry: TelemetryConfig{
			Enabled: false,
		},
		Webhook: WebhookConfig{
			MaxRetries: 5,
			Timeout:    10 * time.Second,
			Workers:    4,
		},
		Security: SecurityConfig{
			ApprovalTTL:       24 * time.Hour,
			PerUserRateWindow: time.Hour,
		},
		Executor: ExecutorConfig{
			MaxConcurrency:     8,
			DefaultStepTimeout: 30 * time.Second,
			GlobalRateWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds a Config from defaults, then an optional YAML file at
// path (skipped if path is empty or the file does not exist), then
// environment variables — each layer overriding the previous one.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("config: load file %s: %w", path, err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("TASKMESH_NAME"); v != "" {
		c.Name = v
	}
	if v := os.Getenv("TASKMESH_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("TASKMESH_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("TASKMESH_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := os.Getenv("TASKMESH_TELEMETRY_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("TASKMESH_WEBHOOK_SIGNING_SECRET"); v != "" {
		c.Webhook.SigningSecret = v
	}
	if v := os.Getenv("TASKMESH_WEBHOOK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Webhook.MaxRetries = n
		}
	}
	if v := os.Getenv("TASKMESH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("TASKMESH_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("TASKMESH_EXECUTOR_MAX_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Executor.MaxConcurrency = n
		}
	}

	// Adapter credentials degrade the adapter to mock when unset — see
	// pkg/adapters.
	c.Adapters.SlackWebhookURL = os.Getenv("TASKMESH_SLACK_WEBHOOK_URL")
	c.Adapters.JiraURL = os.Getenv("TASKMESH_JIRA_URL")
	c.Adapters.JiraAPIToken = os.Getenv("TASKMESH_JIRA_API_TOKEN")
	c.Adapters.GitHubToken = os.Getenv("TASKMESH_GITHUB_TOKEN")
	c.Adapters.SMTPAddr = os.Getenv("TASKMESH_SMTP_ADDR")
	c.Adapters.ConfluenceURL = os.Getenv("TASKMESH_CONFLUENCE_URL")
	c.Adapters.ConfluenceAPIToken = os.Getenv("TASKMESH_CONFLUENCE_API_TOKEN")
	c.Adapters.DatadogAPIKey = os.Getenv("TASKMESH_DATADOG_API_KEY")
	c.Adapters.SonarqubeToken = os.Getenv("TASKMESH_SONARQUBE_TOKEN")
	c.Adapters.JenkinsURL = os.Getenv("TASKMESH_JENKINS_URL")
	c.Adapters.JenkinsAPIToken = os.Getenv("TASKMESH_JENKINS_API_TOKEN")
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate rejects configurations that cannot produce a working server.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Webhook.MaxRetries < 0 {
		return fmt.Errorf("webhook.max_retries cannot be negative")
	}
	if c.Executor.MaxConcurrency <= 0 {
		return fmt.Errorf("executor.max_concurrency must be positive")
	}
	return nil
}
