package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestInit(t *testing.T) {
	viper.Reset()

	Init()

	if viper.GetInt("version") != 1 {
		t.Errorf("expected version default 1, got %d", viper.GetInt("version"))
	}
	if got := viper.GetString("provider"); got != "anthropic" {
		t.Errorf("expected provider default anthropic, got %q", got)
	}
	if got := viper.GetDuration("request_timeout"); got != 30*time.Second {
		t.Errorf("expected request_timeout default 30s, got %v", got)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	viper.Reset()
	Init()

	// Load with no config file should fall back to defaults.
	cfg, err := Load("")
	if err != nil {
		t.Errorf("Load() with no config file should not error: %v", err)
	}
	if cfg == nil {
		t.Fatal("expected config to be returned")
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
	if cfg.Manifest == "" {
		t.Error("expected manifest to fall back to the default path")
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	viper.Reset()

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := []byte("provider: gemini\nrequest_timeout: 5s\nmanifest: /tmp/servers.json\n")
	if err := os.WriteFile(configPath, content, 0600); err != nil {
		t.Fatal(err)
	}

	Init()

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Provider != "gemini" {
		t.Errorf("expected provider gemini, got %q", cfg.Provider)
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected request_timeout 5s, got %v", cfg.RequestTimeout)
	}
	if cfg.Manifest != "/tmp/servers.json" {
		t.Errorf("expected configured manifest path, got %q", cfg.Manifest)
	}
}

func TestLoad_ExplicitPathNotFound(t *testing.T) {
	viper.Reset()
	Init()

	_, err := Load("/non/existent/path/config.yaml")
	if err == nil {
		t.Error("Load() with non-existent explicit path should error")
	}
}
