package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestProcessSettingsDefaults(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		s := Settings{ConfigDir: "/tmp/cfg", ModsDir: "/tmp/mods"}
		if err := processSettingsDefaults(&s); err != nil {
			t.Fatalf("processSettingsDefaults() unexpected error: %v", err)
		}

		if s.APIURL != defaultAPIURL {
			t.Errorf("APIURL = %s, want %s", s.APIURL, defaultAPIURL)
		}
		if s.UserAgent == "" {
			t.Error("Expected UserAgent to have a default value")
		}
		if s.Concurrency != defaultConcurrent {
			t.Errorf("Concurrency = %d, want %d", s.Concurrency, defaultConcurrent)
		}
		if s.MaxRetries != defaultRetries {
			t.Errorf("MaxRetries = %d, want %d", s.MaxRetries, defaultRetries)
		}
		if s.CacheTTL != 24*time.Hour {
			t.Errorf("CacheTTL = %v, want 24h", s.CacheTTL)
		}
		if s.DatabasePath != filepath.Join("/tmp/cfg", "mods.db") {
			t.Errorf("DatabasePath = %s", s.DatabasePath)
		}
		if s.StorePath != filepath.Join("/tmp/cfg", "config.toml") {
			t.Errorf("StorePath = %s", s.StorePath)
		}
	})

	t.Run("respects existing values", func(t *testing.T) {
		s := Settings{
			APIURL:      "http://localhost:8080",
			UserAgent:   "custom-agent",
			Concurrency: 9,
			Timeout:     time.Second,
			MaxRetries:  -1,
			ConfigDir:   "/c",
			ModsDir:     "/m",
		}
		if err := processSettingsDefaults(&s); err != nil {
			t.Fatal(err)
		}
		if s.APIURL != "http://localhost:8080" || s.UserAgent != "custom-agent" {
			t.Errorf("explicit values overwritten: %+v", s)
		}
		if s.Concurrency != 9 || s.Timeout != time.Second {
			t.Errorf("explicit values overwritten: %+v", s)
		}
		if s.MaxRetries != 0 {
			t.Errorf("MaxRetries = %d, want 0 for negative input", s.MaxRetries)
		}
	})
}

func TestLoadSettingsFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VSMM_CONFIG_DIR", filepath.Join(dir, "cfg"))
	t.Setenv("VSMM_MODS_DIR", filepath.Join(dir, "mods"))
	t.Setenv("VSMM_CONCURRENCY", "2")
	t.Setenv("VSMM_TIMEOUT", "5s")

	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("LoadSettings() unexpected error: %v", err)
	}
	if s.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", s.Concurrency)
	}
	if s.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", s.Timeout)
	}
	for _, d := range []string{s.ConfigDir, s.ModsDir} {
		if _, err := os.Stat(d); err != nil {
			t.Errorf("directory %s was not created: %v", d, err)
		}
	}
}

func TestLoadSettingsFromDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VSMM_CONFIG_DIR", filepath.Join(dir, "cfg"))
	env := "VSMM_MODS_DIR=" + filepath.Join(dir, "envmods") + "\nVSMM_USER_AGENT=from-dotenv\n"
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte(env), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSettings(dir)
	if err != nil {
		t.Fatalf("LoadSettings() unexpected error: %v", err)
	}
	if s.UserAgent != "from-dotenv" {
		t.Errorf("UserAgent = %s, want from-dotenv", s.UserAgent)
	}
	if s.ModsDir != filepath.Join(dir, "envmods") {
		t.Errorf("ModsDir = %s", s.ModsDir)
	}
}
