package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.LLMProvider != "auto" {
		t.Fatalf("LLMProvider = %q, want %q", cfg.LLMProvider, "auto")
	}
	if cfg.TokenTTL != time.Hour {
		t.Fatalf("TokenTTL = %s, want 1h", cfg.TokenTTL)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ONESKY_BIND_ADDR", ":9191")
	t.Setenv("ONESKY_TOKEN_TTL", "30m")
	t.Setenv("ONESKY_CONCURRENT_CAPABILITIES", "true")
	t.Setenv("ONESKY_CORS_ORIGINS", "http://localhost:5173, https://onesky.example")
	t.Setenv("ONESKY_LLM_PROVIDER", " Mock ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" {
		t.Fatalf("BindAddr = %q, want :9191", cfg.BindAddr)
	}
	if cfg.TokenTTL != 30*time.Minute {
		t.Fatalf("TokenTTL = %s, want 30m", cfg.TokenTTL)
	}
	if !cfg.ConcurrentCapabilities {
		t.Fatalf("ConcurrentCapabilities = false, want true")
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://onesky.example" {
		t.Fatalf("CORSOrigins = %#v", cfg.CORSOrigins)
	}
	if cfg.LLMProvider != "mock" {
		t.Fatalf("LLMProvider = %q, want mock", cfg.LLMProvider)
	}
}

func TestLoadSplitsCORSOrigins(t *testing.T) {
	clearEnv(t)
	t.Setenv("ONESKY_CORS_ORIGINS", "http://a.example,http://b.example,,http://c.example ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"http://a.example", "http://b.example", "http://c.example"}
	if diff := cmp.Diff(want, cfg.CORSOrigins); diff != "" {
		t.Fatalf("CORSOrigins mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEmptyEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("ONESKY_BIND_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want default", cfg.BindAddr)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "onesky.yaml")
	body := "bind_addr: \":7000\"\nreply_model: file-model\nlog_format: console\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("ONESKY_CONFIG", path)
	t.Setenv("ONESKY_BIND_ADDR", ":7001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":7001" {
		t.Fatalf("BindAddr = %q, want env to win over file", cfg.BindAddr)
	}
	if cfg.ReplyModel != "file-model" {
		t.Fatalf("ReplyModel = %q, want file value", cfg.ReplyModel)
	}
	if cfg.LogFormat != "console" {
		t.Fatalf("LogFormat = %q, want console", cfg.LogFormat)
	}
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string][2]string{
		"provider":        {"ONESKY_LLM_PROVIDER", "anthropic"},
		"openai_key":      {"ONESKY_LLM_PROVIDER", "openai"},
		"session_timeout": {"ONESKY_SESSION_INACTIVITY_TIMEOUT", "1s"},
		"log_format":      {"ONESKY_LOG_FORMAT", "xml"},
		"duration":        {"ONESKY_SHUTDOWN_TIMEOUT", "soon"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("Load() error = nil, want error for %s=%s", kv[0], kv[1])
			}
		})
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, envPrefix) {
			continue
		}
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}
