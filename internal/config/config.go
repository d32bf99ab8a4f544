package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Store selects and configures the session store backend.
type Store struct {
	Backend        string `toml:"backend"`
	RedisAddr      string `toml:"redis_addr"`
	RedisPassword  string `toml:"redis_password"`
	RedisDB        int    `toml:"redis_db"`
	RedisKeyPrefix string `toml:"redis_key_prefix"`
}

// Detectors configures the detector gateway that fronts the video emotion,
// content moderation, speech-to-text and sentiment capabilities.
type Detectors struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxWaitSeconds      int    `toml:"max_wait_seconds"`
	LanguageCode        string `toml:"language_code"`
	MaxSpeakers         int    `toml:"max_speakers"`
}

// Moderation contains content moderation thresholds.
type Moderation struct {
	MinConfidence float64 `toml:"min_confidence"`
}

// LLM contains reasoning provider connection and sampling settings.
type LLM struct {
	Provider       string  `toml:"provider"`
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Referer        string  `toml:"referer"`
	Title          string  `toml:"title"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Temperature    float64 `toml:"temperature"`
	MaxTokens      int     `toml:"max_tokens"`
	MaxAttempts    int     `toml:"max_attempts"`
	RetryBaseMS    int     `toml:"retry_base_ms"`
	RetryMaxMS     int     `toml:"retry_max_ms"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Failed         bool   `toml:"failed"`
}

// Retention controls the scheduled janitor.
type Retention struct {
	Schedule    string `toml:"schedule"`
	SessionDays int    `toml:"session_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Vigil.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories and API bind address
//   - Store: session store backend (sqlite or redis)
//   - Detectors: detector gateway endpoint, polling cadence and ceiling
//   - Moderation: moderation label retention threshold
//   - LLM: reasoning provider (openrouter or gemini) and call parameters
//   - Notifications: ntfy push notification settings
//   - Retention: janitor schedule and session retention
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Store         Store         `toml:"store"`
	Detectors     Detectors     `toml:"detectors"`
	Moderation    Moderation    `toml:"moderation"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Retention     Retention     `toml:"retention"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path of ~/.config/vigil/config.toml.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vigil/config.toml")
}

// Load reads the config at path, or the first of the default path and
// ./vigil.toml that exists when path is empty. A missing file yields defaults.
// It returns the config, the path consulted, and whether that file existed.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locate(path)
	if err != nil {
		return nil, "", false, err
	}
	cfg := Default()
	if exists {
		if err := decodeFile(resolved, &cfg); err != nil {
			return nil, "", false, err
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeFile(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	if err := toml.NewDecoder(file).Decode(cfg); err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return fmt.Errorf("parse config %s:%d:%d: %w", path, row, col, err)
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func locate(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		switch _, err := os.Stat(expanded); {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vigil.toml")
	if err != nil {
		return "", false, err
	}
	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath is the SQLite session database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "sessions.db")
}

// SocketPath is the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.LogDir, "vigil.sock")
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "vigild.lock")
}

// PIDPath is the daemon PID file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "vigil.pid")
}

// PollInterval is the detector job polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Detectors.PollIntervalSeconds) * time.Second
}

// MaxWait is the ceiling applied to every asynchronous detector job.
func (c *Config) MaxWait() time.Duration {
	return time.Duration(c.Detectors.MaxWaitSeconds) * time.Second
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
// The empty string passes through unchanged.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return "", nil
	}
	if rest, ok := strings.CutPrefix(pathValue, "~"); ok && (rest == "" || rest[0] == '/' || rest[0] == '\\') {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		pathValue = filepath.Join(home, rest)
	}
	absolute, err := filepath.Abs(pathValue)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the reasoning client settings in a provider neutral form.
type LLMConfig struct {
	Provider       string
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
	Temperature    float64
	MaxTokens      int
	MaxAttempts    int
	RetryBase      time.Duration
	RetryMax       time.Duration
}

// GetLLM returns the reasoning connection settings.
func (c *Config) GetLLM() LLMConfig {
	return LLMConfig{
		Provider:       strings.TrimSpace(c.LLM.Provider),
		APIKey:         strings.TrimSpace(c.LLM.APIKey),
		BaseURL:        strings.TrimSpace(c.LLM.BaseURL),
		Model:          strings.TrimSpace(c.LLM.Model),
		Referer:        strings.TrimSpace(c.LLM.Referer),
		Title:          strings.TrimSpace(c.LLM.Title),
		TimeoutSeconds: c.LLM.TimeoutSeconds,
		Temperature:    c.LLM.Temperature,
		MaxTokens:      c.LLM.MaxTokens,
		MaxAttempts:    c.LLM.MaxAttempts,
		RetryBase:      time.Duration(c.LLM.RetryBaseMS) * time.Millisecond,
		RetryMax:       time.Duration(c.LLM.RetryMaxMS) * time.Millisecond,
	}
}
