package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Catalog wire formats understood by the catalog client.
const (
	FormatJSON = "json"
	FormatHTML = "html"
)

// Config holds everything the sync engine needs at construction time.
// Multiple engines with different configs can coexist in one process.
type Config struct {
	DatabasePath    string `toml:"database_path"`
	DownloadDir     string `toml:"download_dir"`
	CatalogURL      string `toml:"catalog_url"`
	CatalogFormat   string `toml:"catalog_format"`
	Workers         int    `toml:"workers"`
	HTTPTimeoutSecs int    `toml:"http_timeout_secs"`
}

const (
	defaultWorkers     = 4
	defaultTimeoutSecs = 60
)

// HTTPTimeout returns the configured HTTP timeout as a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// Default returns the default configuration, rooted under the user cache
// directory when available.
func Default() Config {
	cfg := Config{
		DatabasePath:    "vacsync.db",
		DownloadDir:     "downloads",
		CatalogFormat:   FormatJSON,
		Workers:         defaultWorkers,
		HTTPTimeoutSecs: defaultTimeoutSecs,
	}
	if cacheDir, err := os.UserCacheDir(); err == nil {
		appDir := filepath.Join(cacheDir, "vacsync")
		cfg.DatabasePath = filepath.Join(appDir, "vacsync.db")
		cfg.DownloadDir = filepath.Join(appDir, "downloads")
	}
	return cfg
}

// DefaultPath returns the default location of the config file.
func DefaultPath() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "vacsync", "config.toml")
	}
	return "config.toml"
}

// Load reads the config file at path, falling back to defaults when it does
// not exist. A .env file in the working directory and VACSYNC_* environment
// variables override file values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	// Missing .env is fine; explicit env vars still apply.
	_ = godotenv.Load()
	applyEnv(&cfg)

	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.HTTPTimeoutSecs <= 0 {
		cfg.HTTPTimeoutSecs = defaultTimeoutSecs
	}
	if cfg.CatalogFormat != FormatJSON && cfg.CatalogFormat != FormatHTML {
		return Config{}, fmt.Errorf("unsupported catalog_format %q", cfg.CatalogFormat)
	}

	return cfg, nil
}

// Save writes the config file, creating parent directories as needed.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("VACSYNC_DATABASE_PATH")); v != "" {
		cfg.DatabasePath = v
	}
	if v := strings.TrimSpace(os.Getenv("VACSYNC_DOWNLOAD_DIR")); v != "" {
		cfg.DownloadDir = v
	}
	if v := strings.TrimSpace(os.Getenv("VACSYNC_CATALOG_URL")); v != "" {
		cfg.CatalogURL = v
	}
	if v := strings.TrimSpace(os.Getenv("VACSYNC_CATALOG_FORMAT")); v != "" {
		cfg.CatalogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("VACSYNC_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("VACSYNC_HTTP_TIMEOUT_SECS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPTimeoutSecs = n
		}
	}
}
