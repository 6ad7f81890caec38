package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. SKETCHHIVE_HTTP_ADDRESS
const EnvPrefix = "SKETCHHIVE"

// Config represents the application configuration
type Config struct {
	// Service information
	Service struct {
		Name        string `yaml:"name"`
		Version     string `yaml:"version"`
		Environment string `yaml:"environment"`
	} `yaml:"service"`

	HTTP      HTTPConfig      `yaml:"http"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Log       LogConfig       `yaml:"log"`
	Canvas    CanvasConfig    `yaml:"canvas"`
	RateLimit RateLimitConfig `yaml:"rate_limit" split_words:"true"`
	Health    HealthConfig    `yaml:"health"`
}

// HTTPConfig represents HTTP server configuration
type HTTPConfig struct {
	Address         string        `yaml:"address" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true" validate:"gt=0"`
	EnableCORS      bool          `yaml:"enable_cors" split_words:"true"`
	AllowedOrigins  []string      `yaml:"allowed_origins" split_words:"true"`
	StaticDir       string        `yaml:"static_dir" split_words:"true"`

	// TrustForwardedFor takes the client address from X-Forwarded-For.
	// Enable only behind a proxy that sets the header.
	TrustForwardedFor bool `yaml:"trust_forwarded_for" split_words:"true"`
}

// WebSocketConfig represents WebSocket connection configuration
type WebSocketConfig struct {
	Path              string        `yaml:"path" validate:"required,startswith=/"`
	ReadBufferSize    int           `yaml:"read_buffer_size" split_words:"true" validate:"gt=0"`
	WriteBufferSize   int           `yaml:"write_buffer_size" split_words:"true" validate:"gt=0"`
	MaxMessageSize    int64         `yaml:"max_message_size" split_words:"true" validate:"gt=0"`
	PongWait          time.Duration `yaml:"pong_wait" split_words:"true" validate:"gt=0"`
	PingPeriod        time.Duration `yaml:"ping_period" split_words:"true" validate:"gt=0,ltfield=PongWait"`
	WriteWait         time.Duration `yaml:"write_wait" split_words:"true" validate:"gt=0"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" split_words:"true" validate:"gt=0"`
	SendQueueSize     int           `yaml:"send_queue_size" split_words:"true" validate:"gt=0"`
	EnableCompression bool          `yaml:"enable_compression" split_words:"true"`
}

// GRPCConfig represents the operational gRPC server configuration
type GRPCConfig struct {
	Enabled              bool          `yaml:"enabled"`
	Address              string        `yaml:"address" validate:"required_if=Enabled true"`
	KeepAliveTime        time.Duration `yaml:"keepalive_time" split_words:"true"`
	KeepAliveTimeout     time.Duration `yaml:"keepalive_timeout" split_words:"true"`
	MaxConcurrentStreams int           `yaml:"max_concurrent_streams" split_words:"true" validate:"gte=0"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// CanvasConfig represents the shared canvas behavior
type CanvasConfig struct {
	MaxEvents         int    `yaml:"max_events" split_words:"true" validate:"gt=0"`
	PurgeOnDisconnect bool   `yaml:"purge_on_disconnect" split_words:"true"`
	NamePolicy        string `yaml:"name_policy" split_words:"true" validate:"oneof=suffix reject"`
	ColorAttempts     int    `yaml:"color_attempts" split_words:"true" validate:"gt=0"`
}

// RateLimitConfig represents per-client inbound message limits
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled"`
	MessagesPerSecond float64       `yaml:"messages_per_second" split_words:"true" validate:"required_if=Enabled true,gte=0"`
	BurstSize         int           `yaml:"burst_size" split_words:"true" validate:"required_if=Enabled true,gte=0"`
	ExpirationTime    time.Duration `yaml:"expiration_time" split_words:"true" validate:"gte=0"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" split_words:"true" validate:"gte=0"`
}

// HealthConfig represents health checking configuration
type HealthConfig struct {
	CheckInterval time.Duration `yaml:"check_interval" split_words:"true" validate:"gt=0"`
}

// Default returns the built-in configuration
func Default() *Config {
	config := &Config{
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			EnableCORS:      true,
		},
		WebSocket: WebSocketConfig{
			Path:             "/ws",
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
			MaxMessageSize:   64 * 1024,
			PongWait:         60 * time.Second,
			PingPeriod:       30 * time.Second,
			WriteWait:        10 * time.Second,
			HandshakeTimeout: 10 * time.Second,
			SendQueueSize:    1024,
		},
		GRPC: GRPCConfig{
			Enabled:              false,
			Address:              ":9090",
			KeepAliveTime:        30 * time.Second,
			KeepAliveTimeout:     10 * time.Second,
			MaxConcurrentStreams: 100,
		},
		Log: LogConfig{
			Level: "INFO",
		},
		Canvas: CanvasConfig{
			MaxEvents:         8000,
			PurgeOnDisconnect: true,
			NamePolicy:        "suffix",
			ColorAttempts:     2000,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 200,
			BurstSize:         400,
			ExpirationTime:    10 * time.Minute,
			CleanupInterval:   5 * time.Minute,
		},
		Health: HealthConfig{
			CheckInterval: 15 * time.Second,
		},
	}
	config.Service.Name = "sketchhive"
	config.Service.Version = "dev"
	config.Service.Environment = "development"
	return config
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists), a local .env file and SKETCHHIVE_* environment variables, in that
// order of precedence.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			// Defaults only
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	_ = godotenv.Load()

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	config.Log.Level = strings.ToUpper(config.Log.Level)
	config.Canvas.NamePolicy = strings.ToLower(config.Canvas.NamePolicy)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvironmentOverrides applies environment overrides
func applyEnvironmentOverrides(config *Config) error {
	// PORT is what most hosting platforms hand out
	if port := os.Getenv("PORT"); port != "" {
		config.HTTP.Address = ":" + port
	}

	if err := envconfig.Process(EnvPrefix, config); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that every setting is usable
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
