// Package config provides configuration loading for instasave.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roelfdiedericks/instasave/internal/logging"
	"github.com/roelfdiedericks/instasave/internal/paths"
)

const (
	DefaultDataDir          = "~/.instasave"
	DefaultTimezone         = "America/Sao_Paulo"
	DefaultCaption          = "👾 Powered by @Instasave_downloader_bot"
	DefaultInstagramURL     = "https://www.instagram.com"
	DefaultAppID            = "936619743392459"
	DefaultPostDocID        = "8845758582119845"
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	DefaultArtifactTTL      = "30m"
	DefaultSweepSchedule    = "@every 10m"
	DefaultMaxDownloadBytes = 50 * 1024 * 1024
	DefaultPollTimeout      = "10s"
)

// Config represents the merged instasave configuration
type Config struct {
	Telegram  TelegramConfig  `toml:"telegram" yaml:"telegram"`
	Instagram InstagramConfig `toml:"instagram" yaml:"instagram"`
	Storage   StorageConfig   `toml:"storage" yaml:"storage"`
	Ledger    LedgerConfig    `toml:"ledger" yaml:"ledger"`
	Log       LogConfig       `toml:"log" yaml:"log"`
}

type TelegramConfig struct {
	BotToken    string `toml:"bot_token" yaml:"bot_token"`
	Caption     string `toml:"caption" yaml:"caption"`
	PollTimeout string `toml:"poll_timeout" yaml:"poll_timeout"`
}

type InstagramConfig struct {
	Username  string `toml:"username" yaml:"username"`
	Password  string `toml:"password" yaml:"password"`
	BaseURL   string `toml:"base_url" yaml:"base_url"`
	AppID     string `toml:"app_id" yaml:"app_id"`
	PostDocID string `toml:"post_doc_id" yaml:"post_doc_id"`
	UserAgent string `toml:"user_agent" yaml:"user_agent"`
}

type StorageConfig struct {
	DataDir          string `toml:"data_dir" yaml:"data_dir"`
	ArtifactTTL      string `toml:"artifact_ttl" yaml:"artifact_ttl"`
	SweepSchedule    string `toml:"sweep_schedule" yaml:"sweep_schedule"`
	MaxDownloadBytes *int64 `toml:"max_download_bytes" yaml:"max_download_bytes"` // 0 disables the cap
}

type LedgerConfig struct {
	Timezone string `toml:"timezone" yaml:"timezone"`
}

type LogConfig struct {
	Level string `toml:"level" yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{
			Caption:     DefaultCaption,
			PollTimeout: DefaultPollTimeout,
		},
		Instagram: InstagramConfig{
			BaseURL:   DefaultInstagramURL,
			AppID:     DefaultAppID,
			PostDocID: DefaultPostDocID,
			UserAgent: DefaultUserAgent,
		},
		Storage: StorageConfig{
			DataDir:          DefaultDataDir,
			ArtifactTTL:      DefaultArtifactTTL,
			SweepSchedule:    DefaultSweepSchedule,
			MaxDownloadBytes: int64Ptr(DefaultMaxDownloadBytes),
		},
		Ledger: LedgerConfig{
			Timezone: DefaultTimezone,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads the TOML file at path (if it exists), overlays the environment
// and fills anything still unset from Default().
// An empty path means ./instasave.toml or ~/.instasave/instasave.toml.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := paths.ConfigPath()
		if err != nil {
			return nil, err
		}
		path = found
	}

	var cfg Config
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
			}
			logging.L_debug("config: file not found, using environment", "path", path)
		} else {
			if err := decodeFile(path, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
			logging.L_debug("config: loaded file", "path", path)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	// pointer fields set in the file keep their value, even 0
	if err := mergo.Merge(&cfg, Default(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	dataDir, err := paths.ExpandTilde(cfg.Storage.DataDir)
	if err != nil {
		return nil, err
	}
	cfg.Storage.DataDir = dataDir

	return &cfg, nil
}

// decodeFile parses TOML, or YAML when the file ends in .yaml / .yml.
func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
}

// applyEnv overlays environment variables. Set variables win over the file.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	set(&c.Instagram.Username, "INSTAGRAM_USERNAME")
	set(&c.Instagram.Password, "INSTAGRAM_PASSWORD")
	set(&c.Storage.DataDir, "INSTASAVE_DATA_DIR")
	set(&c.Ledger.Timezone, "INSTASAVE_TIMEZONE")
	set(&c.Log.Level, "INSTASAVE_LOG_LEVEL")
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram bot token not configured (TELEGRAM_BOT_TOKEN)"))
	}
	if c.Instagram.Username == "" {
		errs = append(errs, errors.New("instagram username not configured (INSTAGRAM_USERNAME)"))
	}
	if c.Instagram.Password == "" {
		errs = append(errs, errors.New("instagram password not configured (INSTAGRAM_PASSWORD)"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if _, err := time.ParseDuration(c.Storage.ArtifactTTL); err != nil {
		errs = append(errs, fmt.Errorf("invalid artifact_ttl %q: %w", c.Storage.ArtifactTTL, err))
	}
	return errors.Join(errs...)
}

// Location returns the ledger timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Ledger.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Ledger.Timezone, err)
	}
	return loc, nil
}

// ArtifactTTL returns how long a temporary artifact may live before the sweep removes it.
func (c *Config) ArtifactTTL() time.Duration {
	d, err := time.ParseDuration(c.Storage.ArtifactTTL)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(DefaultArtifactTTL)
	}
	return d
}

func int64Ptr(v int64) *int64 { return &v }

// MaxDownloadBytes returns the artifact size cap; 0 or less means unlimited.
func (c *Config) MaxDownloadBytes() int64 {
	if c.Storage.MaxDownloadBytes == nil {
		return DefaultMaxDownloadBytes
	}
	return *c.Storage.MaxDownloadBytes
}

// PollTimeout returns the Telegram long-poll timeout.
func (c *Config) PollTimeout() time.Duration {
	d, err := time.ParseDuration(c.Telegram.PollTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
