package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"podkeep/internal/theme"
)

// EnvPrefix prefixes environment variables overriding config keys,
// e.g. PODKEEP_DATABASE_PATH.
const EnvPrefix = "PODKEEP"

// Config represents the persisted application configuration.
type Config struct {
	DownloadRoot       string `yaml:"download_root" mapstructure:"download_root"`
	DatabasePath       string `yaml:"database_path" mapstructure:"database_path"`
	LogPath            string `yaml:"log_path" mapstructure:"log_path"`
	LogLevel           string `yaml:"log_level" mapstructure:"log_level"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	Proxy              string `yaml:"proxy,omitempty" mapstructure:"proxy"`
	TLSVerify          bool   `yaml:"tls_verify" mapstructure:"tls_verify"`
	FeedTimeoutSeconds int    `yaml:"feed_timeout_seconds" mapstructure:"feed_timeout_seconds"`
	ColorTheme         string `yaml:"color_theme" mapstructure:"color_theme"`
	Schedule           string `yaml:"schedule" mapstructure:"schedule"`
}

// Defaults returns the baseline configuration used on first run.
func Defaults() Config {
	return Config{
		DownloadRoot:       ".",
		DatabasePath:       "feeds.db",
		LogPath:            filepath.Join(BaseDir(), "podkeep.log"),
		LogLevel:           "info",
		UserAgent:          "podkeep/dev",
		TLSVerify:          true,
		FeedTimeoutSeconds: 15,
		ColorTheme:         theme.Default,
		Schedule:           "@every 6h",
	}
}

// BaseDir is where the default config and log file live.
func BaseDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".podkeep"
	}
	return filepath.Join(home, ".podkeep")
}

// DefaultPath is the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(BaseDir(), "config.yaml")
}

// Ensure loads configuration from path. When the file does not exist it is
// created from Defaults, asking for the download directory if prompt is set.
func Ensure(ctx context.Context, path string, prompt bool) (Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg = Defaults()
	if err := bootstrap(ctx, &cfg, prompt); err != nil {
		return Config{}, err
	}
	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}
	return Load(path)
}

// Load reads the YAML file at path and applies PODKEEP_* environment
// overrides. A missing file yields an error matching fs.ErrNotExist.
func Load(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, Defaults())

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return normalize(cfg)
}

// Save writes configuration back to disk, ensuring directory permissions are restrictive.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("download_root", d.DownloadRoot)
	v.SetDefault("database_path", d.DatabasePath)
	v.SetDefault("log_path", d.LogPath)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("proxy", d.Proxy)
	v.SetDefault("tls_verify", d.TLSVerify)
	v.SetDefault("feed_timeout_seconds", d.FeedTimeoutSeconds)
	v.SetDefault("color_theme", d.ColorTheme)
	v.SetDefault("schedule", d.Schedule)
}

func normalize(cfg Config) (Config, error) {
	var err error
	if cfg.DownloadRoot, err = expandPath(strings.TrimSpace(cfg.DownloadRoot)); err != nil {
		return Config{}, err
	}
	if cfg.DownloadRoot == "" {
		cfg.DownloadRoot = "."
	}
	if cfg.DatabasePath, err = expandPath(strings.TrimSpace(cfg.DatabasePath)); err != nil {
		return Config{}, err
	}
	if cfg.DatabasePath == "" {
		return Config{}, errors.New("database_path cannot be empty")
	}
	if cfg.LogPath, err = expandPath(strings.TrimSpace(cfg.LogPath)); err != nil {
		return Config{}, err
	}
	if strings.TrimSpace(cfg.ColorTheme) == "" {
		cfg.ColorTheme = theme.Default
	}
	if cfg.FeedTimeoutSeconds <= 0 {
		cfg.FeedTimeoutSeconds = Defaults().FeedTimeoutSeconds
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = Defaults().Schedule
	}
	return cfg, nil
}

func bootstrap(ctx context.Context, cfg *Config, prompt bool) error {
	if fromEnv := strings.TrimSpace(os.Getenv(EnvPrefix + "_DOWNLOAD_ROOT")); fromEnv != "" {
		return useDownloadRoot(cfg, fromEnv)
	}
	if !prompt {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	input := &survey.Input{
		Message: "Choose a download directory",
		Default: cfg.DownloadRoot,
	}
	var answer string
	if err := survey.AskOne(input, &answer, survey.WithValidator(survey.Required)); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return fmt.Errorf("initialisation interrupted")
		}
		return err
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	return useDownloadRoot(cfg, answer)
}

func useDownloadRoot(cfg *Config, dir string) error {
	resolved, err := expandPath(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return fmt.Errorf("create download directory: %w", err)
	}
	cfg.DownloadRoot = resolved
	return nil
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
