// Package config loads gateway configuration from a YAML file with
// environment variable overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Redis     RedisConfig     `yaml:"redis"`
	Models    ModelsConfig    `yaml:"models"`
	Segmenter SegmenterConfig `yaml:"segmenter"`
	Session   SessionConfig   `yaml:"session"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig configures the WebSocket listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadLimit       int64         `yaml:"read_limit"`
	FrameRate       float64       `yaml:"frame_rate"`
	FrameBurst      int           `yaml:"frame_burst"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// RedisConfig configures the optional Redis conversation store. When Addr is
// empty the gateway keeps conversations in memory.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// ModelsConfig selects capability implementations.
type ModelsConfig struct {
	// WhisperAPIKey enables the OpenAI-compatible transcriber when set.
	// Falls back to the OPENAI_API_KEY environment variable.
	WhisperAPIKey  string        `yaml:"whisper_api_key"`
	WhisperBaseURL string        `yaml:"whisper_base_url"`
	WhisperModel   string        `yaml:"whisper_model"`
	SampleRate     int           `yaml:"sample_rate"`
	InvokeTimeout  time.Duration `yaml:"invoke_timeout"`
}

// SegmenterConfig configures utterance segmentation.
type SegmenterConfig struct {
	HangoverChunks int `yaml:"hangover_chunks"`
	MaxBufferBytes int `yaml:"max_buffer_bytes"`
}

// SessionConfig configures per-session behavior.
type SessionConfig struct {
	QueueSize int    `yaml:"queue_size"`
	MediaDir  string `yaml:"media_dir"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadLimit:       1 << 20,
			FrameRate:       100,
			FrameBurst:      200,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "attune-gateway",
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		Models: ModelsConfig{
			WhisperModel: "whisper-1",
			SampleRate:   16000,
		},
		Session: SessionConfig{
			QueueSize: 64,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from path, layered over Default. An empty path
// returns the defaults with environment overrides applied.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the operator's flag
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers environment overrides on top of file values. Secrets are
// expected from the environment rather than the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("ATTUNE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ATTUNE_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("ATTUNE_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if c.Models.WhisperAPIKey == "" {
		c.Models.WhisperAPIKey = os.Getenv("OPENAI_API_KEY")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func (c *Config) validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.ReadLimit <= 0 {
		return fmt.Errorf("server.read_limit must be positive, got %d", c.Server.ReadLimit)
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint must be set when telemetry is enabled")
	}
	if c.Segmenter.HangoverChunks < 0 {
		return fmt.Errorf("segmenter.hangover_chunks must not be negative, got %d", c.Segmenter.HangoverChunks)
	}
	if c.Session.QueueSize <= 0 {
		return fmt.Errorf("session.queue_size must be positive, got %d", c.Session.QueueSize)
	}
	return nil
}
