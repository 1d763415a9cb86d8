package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProfileEnv   = "WBP_SETTINGS"
	ConfigDirEnv = "WBP_CONFIG_DIR"

	DefaultProfile    = "development"
	DefaultModelName  = "all-MiniLM-L6-v2"
	DefaultModelOrg   = "sentence-transformers"
	DefaultModelURL   = "https://huggingface.co"
	DefaultServerPort = "8080"
)

type Config struct {
	Profile string `yaml:"-"`

	DBDriver      string `yaml:"db_driver"`
	DBDSN         string `yaml:"db_dsn"`
	ServerPort    string `yaml:"server_port"`
	SessionSecret string `yaml:"session_secret"`
	MediaRoot     string `yaml:"media_root"`
	LogLevel      string `yaml:"log_level"`

	CacheBackend string `yaml:"cache_backend"`
	CacheDir     string `yaml:"cache_dir"`

	ModelName     string `yaml:"model_name"`
	ModelCacheDir string `yaml:"model_cache_dir"`
	ModelBaseURL  string `yaml:"model_base_url"`
	ModelOrg      string `yaml:"model_org"`

	OverrunStatuses []string `yaml:"overrun_statuses"`
}

// Load reads the settings profile named by WBP_SETTINGS, then applies
// .env and environment overrides on top of it. DB_DSN is required.
func Load() (*Config, error) {
	cfg, err := LoadSettings()
	if err != nil {
		return nil, err
	}
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	return cfg, nil
}

// LoadSettings is Load for commands that never open the database.
func LoadSettings() (*Config, error) {
	_ = godotenv.Load()

	profile := os.Getenv(ProfileEnv)
	if profile == "" {
		profile = DefaultProfile
	}
	dir := os.Getenv(ConfigDirEnv)
	if dir == "" {
		dir = "configs"
	}

	cfg := &Config{Profile: profile}
	if err := cfg.readProfile(filepath.Join(dir, profile+".yaml")); err != nil {
		return nil, err
	}

	override(&cfg.DBDriver, "DB_DRIVER")
	override(&cfg.DBDSN, "DB_DSN")
	override(&cfg.ServerPort, "SERVER_PORT")
	override(&cfg.SessionSecret, "SESSION_SECRET")
	override(&cfg.MediaRoot, "MEDIA_ROOT")
	override(&cfg.LogLevel, "LOG_LEVEL")
	override(&cfg.CacheBackend, "CACHE_BACKEND")
	override(&cfg.CacheDir, "CACHE_DIR")
	override(&cfg.ModelName, "MODEL_NAME")
	override(&cfg.ModelCacheDir, "MODEL_CACHE_DIR")
	override(&cfg.ModelBaseURL, "MODEL_BASE_URL")
	override(&cfg.ModelOrg, "MODEL_ORG")
	if v := os.Getenv("BUDGET_OVERRUN_STATUSES"); v != "" {
		cfg.OverrunStatuses = splitList(v)
	}

	cfg.applyDefaults()

	switch cfg.DBDriver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	switch cfg.CacheBackend {
	case "memory", "badger":
	default:
		return nil, fmt.Errorf("unsupported CACHE_BACKEND %q", cfg.CacheBackend)
	}

	return cfg, nil
}

// ValidateServer checks settings only the HTTP service needs.
func (c *Config) ValidateServer() error {
	if c.SessionSecret == "" {
		return errors.New("SESSION_SECRET is not set")
	}
	return nil
}

func (c *Config) LogLevelValue() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevelValue()}))
}

// a missing profile file is fine, a broken one is not
func (c *Config) readProfile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings profile %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to decode settings profile %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DBDriver == "" {
		c.DBDriver = inferDriver(c.DBDSN)
	}
	if c.ServerPort == "" {
		c.ServerPort = DefaultServerPort
	}
	if c.MediaRoot == "" {
		c.MediaRoot = "media"
	}
	if c.CacheBackend == "" {
		c.CacheBackend = "memory"
	}
	if c.ModelName == "" {
		c.ModelName = DefaultModelName
	}
	if c.ModelCacheDir == "" {
		c.ModelCacheDir = "ai_models"
	}
	if c.ModelBaseURL == "" {
		c.ModelBaseURL = DefaultModelURL
	}
	if c.ModelOrg == "" {
		c.ModelOrg = DefaultModelOrg
	}
	if len(c.OverrunStatuses) == 0 {
		c.OverrunStatuses = []string{"OVERRUN_APPROVED"}
	}
}

func inferDriver(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"),
		strings.HasPrefix(dsn, "postgresql://"),
		strings.Contains(dsn, "host="):
		return "postgres"
	default:
		return "sqlite"
	}
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
