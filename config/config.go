package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vintage-mod-manager/logger"

	"github.com/spf13/viper"
)

const (
	appName           = "vintage-mod-manager"
	defaultAPIURL     = "https://mods.vintagestory.at"
	defaultUserAgent  = "vintage-mod-manager/dev"
	defaultConcurrent = 4
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultCacheTTL   = 24 * time.Hour
)

// Settings holds process settings loaded by Viper from a .env file and/or
// environment variables. The persisted document lives in Store.
type Settings struct {
	APIURL      string        `mapstructure:"VSMM_API_URL"`
	UserAgent   string        `mapstructure:"VSMM_USER_AGENT"`
	ModsDir     string        `mapstructure:"VSMM_MODS_DIR"`
	ConfigDir   string        `mapstructure:"VSMM_CONFIG_DIR"`
	Concurrency int           `mapstructure:"VSMM_CONCURRENCY"`
	Timeout     time.Duration `mapstructure:"VSMM_TIMEOUT"`
	MaxRetries  int           `mapstructure:"VSMM_MAX_RETRIES"`
	MetricsFile string        `mapstructure:"VSMM_METRICS_FILE"`
	CacheTTL    time.Duration `mapstructure:"VSMM_CACHE_TTL"`

	DatabasePath string `mapstructure:"-"` // derived from ConfigDir
	StorePath    string `mapstructure:"-"` // derived from ConfigDir
}

var settingKeys = []string{
	"VSMM_API_URL",
	"VSMM_USER_AGENT",
	"VSMM_MODS_DIR",
	"VSMM_CONFIG_DIR",
	"VSMM_CONCURRENCY",
	"VSMM_TIMEOUT",
	"VSMM_MAX_RETRIES",
	"VSMM_METRICS_FILE",
	"VSMM_CACHE_TTL",
}

// LoadSettings reads settings from <path>/.env and the environment.
func LoadSettings(path string) (Settings, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Settings{}, fmt.Errorf("read .env file: %w", err)
		}
		logger.Log.Debug("No .env file found, relying on environment variables")
	}

	v.AutomaticEnv()
	for _, key := range settingKeys {
		if err := v.BindEnv(key); err != nil {
			logger.Log.Warnw("Unable to bind env var", "key", key, "error", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unable to decode settings: %w", err)
	}

	if err := processSettingsDefaults(&s); err != nil {
		return Settings{}, err
	}
	if err := ensureDirs(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// processSettingsDefaults fills in defaults and derived paths.
func processSettingsDefaults(s *Settings) error {
	if s.APIURL == "" {
		s.APIURL = defaultAPIURL
	}
	if s.UserAgent == "" {
		s.UserAgent = defaultUserAgent
	}
	if s.Concurrency < 1 {
		if s.Concurrency < 0 {
			logger.Log.Warnw("Invalid VSMM_CONCURRENCY, using default", "value", s.Concurrency, "default", defaultConcurrent)
		}
		s.Concurrency = defaultConcurrent
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultTimeout
	}
	if s.MaxRetries < 0 {
		logger.Log.Warnw("Negative VSMM_MAX_RETRIES, disabling retries", "value", s.MaxRetries)
		s.MaxRetries = 0
	} else if s.MaxRetries == 0 {
		s.MaxRetries = defaultRetries
	}
	if s.CacheTTL <= 0 {
		s.CacheTTL = defaultCacheTTL
	}

	if s.ConfigDir == "" || s.ModsDir == "" {
		userDir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate user config directory: %w", err)
		}
		if s.ConfigDir == "" {
			s.ConfigDir = filepath.Join(userDir, appName)
		}
		if s.ModsDir == "" {
			s.ModsDir = filepath.Join(userDir, "VintagestoryData", "Mods")
		}
	}

	s.DatabasePath = filepath.Join(s.ConfigDir, "mods.db")
	s.StorePath = filepath.Join(s.ConfigDir, "config.toml")
	return nil
}

// ensureDirs creates the config and mods directories when missing.
func ensureDirs(s *Settings) error {
	for _, dir := range []string{s.ConfigDir, s.ModsDir} {
		if dir == "" {
			return fmt.Errorf("directory setting is empty")
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			logger.Log.Infow("Directory does not exist, creating it", "path", dir)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("create %s: %w", dir, err)
			}
		} else if err != nil {
			return fmt.Errorf("check %s: %w", dir, err)
		}
	}
	return nil
}
