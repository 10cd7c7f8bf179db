// Package config loads and validates poller configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PROGRESS_JOB_ID or
// PROGRESS_SERVER_BASE_URL.
const EnvPrefix = "PROGRESS"

// Config captures all poller configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Job     JobConfig     `mapstructure:"job"`
	Poll    PollConfig    `mapstructure:"poll"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Report  ReportConfig  `mapstructure:"report"`
	Render  RenderConfig  `mapstructure:"render"`
}

// ServerConfig locates the progress endpoint.
type ServerConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// JobConfig carries the job to watch. An empty ID means no session starts.
type JobConfig struct {
	ID string `mapstructure:"id"`
}

// PollConfig governs the tick loop.
type PollConfig struct {
	Interval               time.Duration `mapstructure:"interval"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
}

// HTTPConfig configures the progress HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// MetricsConfig controls the optional Prometheus exposition server.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig enables the Postgres poll history when DSN is set.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig enables outcome notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Report providers.
const (
	ReportNone  = "none"
	ReportLocal = "local"
	ReportGCS   = "gcs"
)

// ReportConfig selects where session reports are written.
type ReportConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
}

// RenderConfig shapes the terminal page.
type RenderConfig struct {
	Width  int  `mapstructure:"width"`
	Inline bool `mapstructure:"inline"`
}

// Load builds a Config from defaults, an optional file at path, and
// PROGRESS_* environment variables.
func Load(path string) (Config, error) {
	v := New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	return FromViper(v)
}

// New returns a Viper instance with defaults and environment binding applied.
// Callers may bind command-line flags to it before calling FromViper.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// FromViper unmarshals and validates v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Report.Provider = strings.ToLower(strings.TrimSpace(cfg.Report.Provider))
	cfg.Job.ID = strings.TrimSpace(cfg.Job.ID)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.base_url", "http://localhost:8000")
	v.SetDefault("job.id", "")
	v.SetDefault("poll.interval", "1000ms")
	v.SetDefault("poll.max_consecutive_failures", 0)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.user_agent", "progresswatch/1.0")
	v.SetDefault("logging.development", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("report.provider", ReportNone)
	v.SetDefault("report.base_dir", "reports")
	v.SetDefault("report.gcs_bucket", "")
	v.SetDefault("render.width", 30)
	v.SetDefault("render.inline", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server.base_url must be an absolute http(s) URL, got %q", c.Server.BaseURL)
	}
	if c.Poll.Interval <= 0 {
		return fmt.Errorf("poll.interval must be > 0")
	}
	if c.Poll.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("poll.max_consecutive_failures must be >= 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Render.Width <= 0 {
		return fmt.Errorf("render.width must be > 0")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	switch c.Report.Provider {
	case ReportNone, "":
	case ReportLocal:
		if c.Report.BaseDir == "" {
			return fmt.Errorf("report.base_dir must be set when report.provider is local")
		}
	case ReportGCS:
		if c.Report.GCSBucket == "" {
			return fmt.Errorf("report.gcs_bucket must be set when report.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown report.provider %q", c.Report.Provider)
	}
	return nil
}

// HTTPTimeout converts the HTTP timeout to a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NotifyEnabled reports whether Pub/Sub outcome notifications are configured.
func (c Config) NotifyEnabled() bool {
	return c.PubSub.ProjectID != "" && c.PubSub.TopicName != ""
}
