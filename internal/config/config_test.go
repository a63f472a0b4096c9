package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
  host: "0.0.0.0"
  allowed_origins:
    - "http://localhost:3000"
player:
  subscription_interval: 250ms
  resource_dir: "/srv/audio"
recorder:
  record_dir: "/srv/takes"
logging:
  format: json
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("Server.AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Player.SubscriptionInterval != 250*time.Millisecond {
		t.Errorf("Player.SubscriptionInterval = %v, want 250ms", cfg.Player.SubscriptionInterval)
	}
	if cfg.Player.ResourceDir != "/srv/audio" {
		t.Errorf("Player.ResourceDir = %q", cfg.Player.ResourceDir)
	}
	if cfg.Recorder.RecordDir != "/srv/takes" {
		t.Errorf("Recorder.RecordDir = %q", cfg.Recorder.RecordDir)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Recorder.SubscriptionInterval != DefaultSubscriptionInterval {
		t.Errorf("Recorder.SubscriptionInterval = %v, want default", cfg.Recorder.SubscriptionInterval)
	}
	if cfg.Engine.SampleRate != DefaultSampleRate {
		t.Errorf("Engine.SampleRate = %d, want %d", cfg.Engine.SampleRate, DefaultSampleRate)
	}
	if cfg.Server.MaxConnections != DefaultMaxConnections {
		t.Errorf("Server.MaxConnections = %d, want %d", cfg.Server.MaxConnections, DefaultMaxConnections)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}

	if cfg.Server.Port != DefaultPort {
		t.Errorf("Server.Port = %d, want default %d", cfg.Server.Port, DefaultPort)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want default %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format = %q, want default text", cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath); err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
	if _, err := LoadOrDefault(cfgPath); err == nil {
		t.Fatal("LoadOrDefault() should only swallow a missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 9090\n  auth_token: from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TAU_SERVER_PORT", "7070")
	t.Setenv("TAU_JWT_SECRET", "s3cret")
	t.Setenv("TAU_RECORD_DIR", "/data/takes")
	t.Setenv("TAU_LOG_LEVEL", "debug")
	t.Setenv("TAU_PLAYER_SUBSCRIPTION_INTERVAL", "1s")
	t.Setenv("TAU_OTEL_ENDPOINT", "localhost:4318")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want env 7070", cfg.Server.Port)
	}
	if cfg.Server.AuthToken != "from-file" {
		t.Errorf("Server.AuthToken = %q, unset env must keep file value", cfg.Server.AuthToken)
	}
	if cfg.Server.JWTSecret != "s3cret" {
		t.Errorf("Server.JWTSecret = %q, want s3cret", cfg.Server.JWTSecret)
	}
	if cfg.Recorder.RecordDir != "/data/takes" {
		t.Errorf("Recorder.RecordDir = %q", cfg.Recorder.RecordDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Player.SubscriptionInterval != time.Second {
		t.Errorf("Player.SubscriptionInterval = %v, want 1s", cfg.Player.SubscriptionInterval)
	}
	if cfg.Telemetry.Endpoint != "localhost:4318" {
		t.Errorf("Telemetry.Endpoint = %q", cfg.Telemetry.Endpoint)
	}
}

func TestEnvAuthToken(t *testing.T) {
	t.Setenv("TAU_AUTH_TOKEN", "abc")
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.AuthToken != "abc" {
		t.Errorf("Server.AuthToken = %q, want abc", cfg.Server.AuthToken)
	}
}

func TestEnvInvalidValue(t *testing.T) {
	t.Setenv("TAU_SERVER_PORT", "eighty")
	if _, err := LoadOrDefault(""); err == nil {
		t.Fatal("non-numeric TAU_SERVER_PORT should fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"zero port", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"negative connections", func(c *Config) { c.Server.MaxConnections = -1 }, true},
		{"negative interval", func(c *Config) { c.Recorder.SubscriptionInterval = -time.Second }, true},
		{"zero interval disables progress", func(c *Config) { c.Player.SubscriptionInterval = 0 }, false},
		{"zero sample rate", func(c *Config) { c.Engine.SampleRate = 0 }, true},
		{"zero tick", func(c *Config) { c.Engine.Tick = 0 }, true},
		{"unknown format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"unknown engine log level", func(c *Config) { c.Recorder.LogLevel = "loud" }, true},
		{"engine log level nothing", func(c *Config) { c.Player.LogLevel = "nothing" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListenAddr(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("ListenAddr() = %q, want 127.0.0.1:8080", got)
	}
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if len(tok) != 32 { // 16 bytes = 32 hex chars
		t.Errorf("token length = %d, want 32", len(tok))
	}

	// Tokens should be unique.
	tok2, _ := GenerateToken()
	if tok == tok2 {
		t.Error("two generated tokens should not be identical")
	}
}
