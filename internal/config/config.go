package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/tausound/server/internal/engine"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Player    PlayerConfig    `yaml:"player"`
	Recorder  RecorderConfig  `yaml:"recorder"`
	Engine    EngineConfig    `yaml:"engine"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Port           int      `yaml:"port" env:"PORT"`
	Host           string   `yaml:"host" env:"HOST"`
	AuthToken      string   `yaml:"auth_token" env:"AUTH_TOKEN"`
	JWTSecret      string   `yaml:"jwt_secret" env:"JWT_SECRET"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
	MaxConnections int      `yaml:"max_connections" env:"MAX_CONNECTIONS"`
}

type PlayerConfig struct {
	SubscriptionInterval time.Duration `yaml:"subscription_interval" env:"SUBSCRIPTION_INTERVAL"`
	LogLevel             string        `yaml:"log_level" env:"LOG_LEVEL"`
	ResourceDir          string        `yaml:"resource_dir" env:"RESOURCE_DIR"`
}

type RecorderConfig struct {
	SubscriptionInterval time.Duration `yaml:"subscription_interval" env:"SUBSCRIPTION_INTERVAL"`
	LogLevel             string        `yaml:"log_level" env:"LOG_LEVEL"`
	RecordDir            string        `yaml:"record_dir" env:"DIR"`
}

type EngineConfig struct {
	SampleRate int           `yaml:"sample_rate" env:"SAMPLE_RATE"`
	Tick       time.Duration `yaml:"tick" env:"TICK"`
	FeedBuffer int           `yaml:"feed_buffer" env:"FEED_BUFFER"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
}

// envOverrides mirrors Config with the environment variable prefixes each
// section is read from, e.g. TAU_SERVER_PORT or TAU_RECORD_DIR.
type envOverrides struct {
	Server    *ServerConfig    `envPrefix:"SERVER_"`
	Auth      *authEnv
	Player    *PlayerConfig    `envPrefix:"PLAYER_"`
	Recorder  *RecorderConfig  `envPrefix:"RECORD_"`
	Engine    *EngineConfig    `envPrefix:"ENGINE_"`
	Logging   *LoggingConfig   `envPrefix:"LOG_"`
	Telemetry *TelemetryConfig `envPrefix:"OTEL_"`
}

// authEnv carries the credentials that are also accepted without the
// SERVER_ prefix.
type authEnv struct {
	Token     string `env:"AUTH_TOKEN"`
	JWTSecret string `env:"JWT_SECRET"`
}

const (
	DefaultPort                 = 8080
	DefaultSubscriptionInterval = 100 * time.Millisecond
	DefaultSampleRate           = 44100
	DefaultTick                 = 20 * time.Millisecond
	DefaultFeedBuffer           = 8192
	DefaultMaxConnections       = 64

	envPrefix = "TAU_"
)

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           DefaultPort,
			Host:           "127.0.0.1",
			MaxConnections: DefaultMaxConnections,
		},
		Player: PlayerConfig{
			SubscriptionInterval: DefaultSubscriptionInterval,
			LogLevel:             "info",
			ResourceDir:          defaultDir("resources"),
		},
		Recorder: RecorderConfig{
			SubscriptionInterval: DefaultSubscriptionInterval,
			LogLevel:             "info",
			RecordDir:            defaultDir("recordings"),
		},
		Engine: EngineConfig{
			SampleRate: DefaultSampleRate,
			Tick:       DefaultTick,
			FeedBuffer: DefaultFeedBuffer,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "tau-server",
		},
	}
}

func defaultDir(name string) string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "tau", name)
	}
	return filepath.Join(os.TempDir(), "tau-"+name)
}

// Load reads the YAML file at path over the defaults, then applies TAU_*
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		cfg, err := Load(path)
		if err == nil || !errors.Is(err, os.ErrNotExist) {
			return cfg, err
		}
	}
	cfg := defaultConfig()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	o := envOverrides{
		Server:    &c.Server,
		Auth:      &authEnv{},
		Player:    &c.Player,
		Recorder:  &c.Recorder,
		Engine:    &c.Engine,
		Logging:   &c.Logging,
		Telemetry: &c.Telemetry,
	}
	if err := env.ParseWithOptions(&o, env.Options{Prefix: envPrefix}); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	if o.Auth.Token != "" {
		c.Server.AuthToken = o.Auth.Token
	}
	if o.Auth.JWTSecret != "" {
		c.Server.JWTSecret = o.Auth.JWTSecret
	}
	return nil
}

// Validate reports the first setting the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Server.MaxConnections < 0 {
		return fmt.Errorf("server.max_connections must not be negative")
	}
	if c.Player.SubscriptionInterval < 0 || c.Recorder.SubscriptionInterval < 0 {
		return fmt.Errorf("subscription_interval must not be negative")
	}
	if c.Engine.SampleRate <= 0 {
		return fmt.Errorf("engine.sample_rate must be positive")
	}
	if c.Engine.Tick <= 0 {
		return fmt.Errorf("engine.tick must be positive")
	}
	for name, level := range map[string]string{"player": c.Player.LogLevel, "recorder": c.Recorder.LogLevel} {
		if _, ok := engine.ParseLogLevel(level); !ok {
			return fmt.Errorf("%s.log_level %q unknown", name, level)
		}
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q: want text or json", c.Logging.Format)
	}
	return nil
}

// ListenAddr is the host:port the server binds.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GenerateToken returns a random 128-bit hex token for ad-hoc auth.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
