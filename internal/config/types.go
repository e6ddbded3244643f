package config

import "time"

// Config represents the complete lanes configuration.
type Config struct {
	Include  []string               `yaml:"include,omitempty"`
	Service  ServiceConfig          `yaml:"service"`
	State    StateConfig            `yaml:"state"`
	API      APIConfig              `yaml:"api,omitempty"`
	History  HistoryConfig          `yaml:"history,omitempty"`
	Queues   map[string]QueueConfig `yaml:"queues"`
	Webhooks *WebhooksConfig        `yaml:"webhooks,omitempty"`

	// Files lists every file that contributed to this config, root first.
	Files []string `yaml:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	LogLevel        string        `yaml:"log_level"`
	LogFormat       string        `yaml:"log_format"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StateConfig defines where the task history database lives.
type StateConfig struct {
	Path string `yaml:"path"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	APIKey  string `yaml:"api_key"`
}

// HistoryConfig controls the settled-task log and the event ring buffer.
type HistoryConfig struct {
	Retention time.Duration `yaml:"retention"`
	RingSize  int           `yaml:"ring_size"`
}

// QueueConfig defines one queued command. Zero values fall back to the
// dispatcher defaults.
type QueueConfig struct {
	Owner         string        `yaml:"owner"`
	Command       []string      `yaml:"command"`
	Length        int           `yaml:"length,omitempty"`
	Overflow      string        `yaml:"overflow,omitempty"`
	Failure       string        `yaml:"failure,omitempty"`
	RetryCount    int           `yaml:"retry_count,omitempty"`
	RetryInterval time.Duration `yaml:"retry_interval,omitempty"`
	Timeout       time.Duration `yaml:"timeout,omitempty"`
	MaxQueueTime  time.Duration `yaml:"max_queue_time,omitempty"`
	Priority      string        `yaml:"priority,omitempty"` // sort key, e.g. "-level"
	Default       any           `yaml:"default,omitempty"`
	// KillAfter terminates a command that runs this long. Timeout only
	// stops waiting for it.
	KillAfter time.Duration `yaml:"kill_after,omitempty"`
	// Schedule pushes Args onto the queue periodically.
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig pushes a task every Every plus up to Jitter. A push is
// skipped while MaxOutstanding tasks (default 1) are still buffered.
type ScheduleConfig struct {
	Every          time.Duration `yaml:"every"`
	Jitter         time.Duration `yaml:"jitter,omitempty"`
	Args           []any         `yaml:"args,omitempty"`
	MaxOutstanding int           `yaml:"max_outstanding,omitempty"`
}

// WebhooksConfig defines the signed inbound webhook listener.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint pushes each verified request body onto Queue.
type WebhookEndpoint struct {
	Path  string `yaml:"path"`
	Queue string `yaml:"queue"`
	// Owner defaults to the queue's configured owner.
	Owner           string `yaml:"owner,omitempty"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	// MaxBodySize accepts plain bytes or a KB/MB/GB suffix. Default 1MB.
	MaxBodySize string `yaml:"max_body_size,omitempty"`
	// RateLimit caps verified requests per second. Zero disables it.
	RateLimit float64 `yaml:"rate_limit,omitempty"`
	RateBurst int     `yaml:"rate_burst,omitempty"`
}

// DefaultWebhookListen is used when a webhooks block omits listen.
const DefaultWebhookListen = "127.0.0.1:8081"

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "lanes",
			LogLevel:        "info",
			LogFormat:       "json",
			ShutdownTimeout: 10 * time.Second,
		},
		State: StateConfig{
			Path: "./data/lanes.db",
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
		History: HistoryConfig{
			Retention: 7 * 24 * time.Hour,
			RingSize:  256,
		},
		Queues: make(map[string]QueueConfig),
	}
}
