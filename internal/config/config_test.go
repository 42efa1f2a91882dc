package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesFileThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessioncore.toml")
	doc := `
[server]
host = "127.0.0.1"
port = 9090
workers = 8

[rtc]
server_url = "http://rtc.internal:7880"
api_key = "filekey"
api_secret = "filesecret"

[microservices]
registration_timeout = 15
join_timeout = 45

[logging]
level = "debug"
format = "json"

[log_shipper]
enabled = true
endpoint = "amqp://file/"
source_name = "sessioncore-test"
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("RTC_API_KEY", "envkey")
	t.Setenv("SERVER_HOST", "0.0.0.0")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Rtc.APIKey != "envkey" {
		t.Errorf("env override for api key not applied: got %q", cfg.Rtc.APIKey)
	}
	if cfg.Rtc.APISecret != "filesecret" {
		t.Errorf("file value for api secret clobbered: got %q", cfg.Rtc.APISecret)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("env override for host not applied: got %q", cfg.Server.Host)
	}
	if cfg.Server.Workers != 8 {
		t.Errorf("got workers %d, want 8", cfg.Server.Workers)
	}
	if cfg.JoinTimeoutDuration().Seconds() != 45 {
		t.Errorf("got join timeout %v, want 45s", cfg.JoinTimeoutDuration())
	}
}

func TestLoadRejectsNonPositiveWorkers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessioncore.toml")
	if err := os.WriteFile(path, []byte("[server]\nworkers = 0\n"), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for zero workers, got nil")
	}
}

func TestLoadWithoutPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("got default port %d, want 8080", cfg.Server.Port)
	}
}
