package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration.
type Config struct {
	Realtime   RealtimeConfig   `yaml:"realtime" toml:"realtime"`
	Generation GenerationConfig `yaml:"generation" toml:"generation"`
	HTTP       HTTPConfig       `yaml:"http" toml:"http"`
	Logging    LogConfig        `yaml:"logging" toml:"logging"`
	Tracing    TracingConfig    `yaml:"tracing" toml:"tracing"`
	DevServer  DevServerConfig  `yaml:"devserver" toml:"devserver"`
}

// RealtimeConfig holds push-channel client configuration.
type RealtimeConfig struct {
	BaseURL           string        `envconfig:"WS_BASE_URL" default:"ws://localhost:8000" yaml:"base_url" toml:"base_url"`
	TenantID          string        `envconfig:"TENANT_ID" yaml:"tenant_id" toml:"tenant_id"`
	Token             string        `envconfig:"AUTH_TOKEN" yaml:"-" toml:"-"`
	SubscribeEvents   []string      `envconfig:"WS_SUBSCRIBE" yaml:"subscribe_events" toml:"subscribe_events"`
	AutoConnect       bool          `envconfig:"WS_AUTO_CONNECT" default:"true" yaml:"auto_connect" toml:"auto_connect"`
	KeepAlive         time.Duration `envconfig:"WS_KEEPALIVE" default:"30s" yaml:"keep_alive" toml:"keep_alive"`
	MaxReconnectTries int           `envconfig:"WS_MAX_RECONNECT" default:"0" yaml:"max_reconnect" toml:"max_reconnect"`
}

// GenerationConfig holds streaming generation configuration.
type GenerationConfig struct {
	APIBaseURL    string `envconfig:"API_BASE_URL" default:"http://localhost:8000/api" yaml:"api_base_url" toml:"api_base_url"`
	ContentKind   string `envconfig:"GEN_CONTENT_KIND" default:"article" yaml:"content_kind" toml:"content_kind"`
	Model         string `envconfig:"GEN_MODEL" yaml:"model" toml:"model"`
	GenerateAsset bool   `envconfig:"GEN_ASSET" default:"false" yaml:"generate_asset" toml:"generate_asset"`
	AssetStyle    string `envconfig:"GEN_ASSET_STYLE" yaml:"asset_style" toml:"asset_style"`
	AssetWidth    int    `envconfig:"GEN_ASSET_WIDTH" default:"1024" yaml:"asset_width" toml:"asset_width"`
	AssetHeight   int    `envconfig:"GEN_ASSET_HEIGHT" default:"1024" yaml:"asset_height" toml:"asset_height"`
	SanitizeHTML  bool   `envconfig:"GEN_SANITIZE_HTML" default:"true" yaml:"sanitize_html" toml:"sanitize_html"`
}

// HTTPConfig holds outbound HTTP client configuration.
type HTTPConfig struct {
	ConnectTimeout    time.Duration `envconfig:"HTTP_CONNECT_TIMEOUT" default:"15s" yaml:"connect_timeout" toml:"connect_timeout"`
	RetryMax          int           `envconfig:"HTTP_RETRY_MAX" default:"2" yaml:"retry_max" toml:"retry_max"`
	RequestsPerSecond float64       `envconfig:"HTTP_RPS" default:"0" yaml:"requests_per_second" toml:"requests_per_second"`
	BreakerFailures   uint32        `envconfig:"HTTP_BREAKER_FAILURES" default:"5" yaml:"breaker_failures" toml:"breaker_failures"`
	BreakerTimeout    time.Duration `envconfig:"HTTP_BREAKER_TIMEOUT" default:"30s" yaml:"breaker_timeout" toml:"breaker_timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" default:"false" yaml:"development" toml:"development"`
}

// TracingConfig holds OpenTelemetry configuration.
type TracingConfig struct {
	Enabled  bool   `envconfig:"TRACING_ENABLED" default:"false" yaml:"enabled" toml:"enabled"`
	Exporter string `envconfig:"TRACING_EXPORTER" default:"stdout" yaml:"exporter" toml:"exporter"`
}

// DevServerConfig holds mock server configuration.
type DevServerConfig struct {
	Port              string `envconfig:"PORT" default:"8000" yaml:"port" toml:"port"`
	Host              string `envconfig:"HOST" default:"127.0.0.1" yaml:"host" toml:"host"`
	RequestsPerSecond int    `envconfig:"RATE_LIMIT_RPS" default:"50" yaml:"requests_per_second" toml:"requests_per_second"`
	Burst             int    `envconfig:"RATE_LIMIT_BURST" default:"100" yaml:"burst" toml:"burst"`
	// Tokens maps bearer token to tenant ID, "*" for any tenant
	Tokens     map[string]string `envconfig:"DEV_TOKENS" default:"dev-token:*" yaml:"tokens" toml:"tokens"`
	ChunkDelay time.Duration     `envconfig:"DEV_CHUNK_DELAY" default:"40ms" yaml:"chunk_delay" toml:"chunk_delay"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadFile reads a YAML or TOML file on top of Default and then applies
// environment variables that are explicitly set.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := overlayEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Realtime: RealtimeConfig{
			BaseURL:     "ws://localhost:8000",
			AutoConnect: true,
			KeepAlive:   30 * time.Second,
		},
		Generation: GenerationConfig{
			APIBaseURL:   "http://localhost:8000/api",
			ContentKind:  "article",
			AssetWidth:   1024,
			AssetHeight:  1024,
			SanitizeHTML: true,
		},
		HTTP: HTTPConfig{
			ConnectTimeout:  15 * time.Second,
			RetryMax:        2,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Logging: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
		DevServer: DevServerConfig{
			Port:              "8000",
			Host:              "127.0.0.1",
			RequestsPerSecond: 50,
			Burst:             100,
			Tokens:            map[string]string{"dev-token": "*"},
			ChunkDelay:        40 * time.Millisecond,
		},
	}
}

// overlayEnv applies set environment variables to cfg. Defaults are not
// applied here so that values from the file survive.
func overlayEnv(cfg *Config) error {
	var env Config
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	set := func(key string) bool {
		_, ok := os.LookupEnv(key)
		return ok
	}

	if set("WS_BASE_URL") {
		cfg.Realtime.BaseURL = env.Realtime.BaseURL
	}
	if set("TENANT_ID") {
		cfg.Realtime.TenantID = env.Realtime.TenantID
	}
	if set("AUTH_TOKEN") {
		cfg.Realtime.Token = env.Realtime.Token
	}
	if set("WS_SUBSCRIBE") {
		cfg.Realtime.SubscribeEvents = env.Realtime.SubscribeEvents
	}
	if set("WS_AUTO_CONNECT") {
		cfg.Realtime.AutoConnect = env.Realtime.AutoConnect
	}
	if set("WS_KEEPALIVE") {
		cfg.Realtime.KeepAlive = env.Realtime.KeepAlive
	}
	if set("API_BASE_URL") {
		cfg.Generation.APIBaseURL = env.Generation.APIBaseURL
	}
	if set("GEN_MODEL") {
		cfg.Generation.Model = env.Generation.Model
	}
	if set("GEN_ASSET") {
		cfg.Generation.GenerateAsset = env.Generation.GenerateAsset
	}
	if set("LOG_LEVEL") {
		cfg.Logging.Level = env.Logging.Level
	}
	if set("LOG_DEV") {
		cfg.Logging.Development = env.Logging.Development
	}
	if set("TRACING_ENABLED") {
		cfg.Tracing.Enabled = env.Tracing.Enabled
	}
	if set("PORT") {
		cfg.DevServer.Port = env.DevServer.Port
	}
	if set("DEV_TOKENS") {
		cfg.DevServer.Tokens = env.DevServer.Tokens
	}
	if set("DEV_CHUNK_DELAY") {
		cfg.DevServer.ChunkDelay = env.DevServer.ChunkDelay
	}
	return nil
}
