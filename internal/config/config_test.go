package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "secret_key: test-key\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Terminal.BridgeURL != "http://127.0.0.1:18812" {
		t.Errorf("bridge url = %s", cfg.Terminal.BridgeURL)
	}
	if cfg.CacheTTL() != 60*time.Minute {
		t.Errorf("cache ttl = %v", cfg.CacheTTL())
	}
	if cfg.Data.Retries != 3 {
		t.Errorf("retries = %d", cfg.Data.Retries)
	}
	if cfg.BackoffBase() != 2*time.Second {
		t.Errorf("backoff base = %v", cfg.BackoffBase())
	}
	if cfg.Build.Workers != 2 || cfg.Build.QueueSize != 16 {
		t.Errorf("build = %+v", cfg.Build)
	}
	if cfg.WatchdogInterval() != 10*time.Second {
		t.Errorf("watchdog interval = %v", cfg.WatchdogInterval())
	}
	if cfg.HeartbeatMaxAge() != time.Minute {
		t.Errorf("heartbeat max age = %v", cfg.HeartbeatMaxAge())
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("web port = %d", cfg.Web.Port)
	}
	if cfg.Database.Path != "data/robopilot.db" {
		t.Errorf("db path = %s", cfg.Database.Path)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
secret_key: test-key
terminal:
  bridge_url: http://127.0.0.1:9000
  login: "12345"
data:
  cache_ttl_minutes: 5
  retries: 1
watchdog:
  enabled: true
  interval_seconds: 30
web:
  port: 9999
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Terminal.BridgeURL != "http://127.0.0.1:9000" {
		t.Errorf("bridge url = %s", cfg.Terminal.BridgeURL)
	}
	if cfg.CacheTTL() != 5*time.Minute {
		t.Errorf("cache ttl = %v", cfg.CacheTTL())
	}
	if cfg.WatchdogInterval() != 30*time.Second {
		t.Errorf("watchdog interval = %v", cfg.WatchdogInterval())
	}
	if cfg.Web.Port != 9999 {
		t.Errorf("web port = %d", cfg.Web.Port)
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("TERMINAL_LOGIN", "99999")
	t.Setenv("TERMINAL_PASSWORD", "env-secret")
	t.Setenv("SECRET_KEY", "env-key")

	path := writeConfig(t, "terminal:\n  login: \"11111\"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Terminal.Login != "99999" {
		t.Errorf("login = %s, env must win", cfg.Terminal.Login)
	}
	if cfg.Terminal.Password != "env-secret" {
		t.Errorf("password not taken from env")
	}
	if cfg.SecretKey != "env-key" {
		t.Errorf("secret key not taken from env")
	}
}

func TestValidateRequirements(t *testing.T) {
	if _, err := Load(writeConfig(t, "web:\n  port: 1\n")); err == nil {
		t.Error("missing secret_key accepted")
	}
	if _, err := Load(writeConfig(t, "secret_key: k\ninsight:\n  enabled: true\n")); err == nil {
		t.Error("insight enabled without api key accepted")
	}
	if _, err := Load(writeConfig(t, "secret_key: k\ntelegram:\n  enabled: true\n")); err == nil {
		t.Error("telegram enabled without token accepted")
	}
}

func TestMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
