package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeStore()
	c.normalizeDetectors()
	c.normalizeLLM()
	c.normalizeNotifications()
	c.normalizeRetention()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeStore() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	c.Store.RedisAddr = strings.TrimSpace(c.Store.RedisAddr)
	if c.Store.RedisAddr == "" {
		if value, ok := os.LookupEnv("VIGIL_REDIS_ADDR"); ok {
			c.Store.RedisAddr = strings.TrimSpace(value)
		} else {
			c.Store.RedisAddr = defaultRedisAddr
		}
	}
	if c.Store.RedisPassword == "" {
		if value, ok := os.LookupEnv("VIGIL_REDIS_PASSWORD"); ok {
			c.Store.RedisPassword = value
		}
	}
	if strings.TrimSpace(c.Store.RedisKeyPrefix) == "" {
		c.Store.RedisKeyPrefix = defaultRedisKeyPrefix
	}
}

func (c *Config) normalizeDetectors() {
	c.Detectors.BaseURL = strings.TrimRight(strings.TrimSpace(c.Detectors.BaseURL), "/")
	if c.Detectors.BaseURL == "" {
		c.Detectors.BaseURL = defaultDetectorsBaseURL
	}
	c.Detectors.APIKey = strings.TrimSpace(c.Detectors.APIKey)
	if c.Detectors.APIKey == "" {
		if value, ok := os.LookupEnv("VIGIL_DETECTORS_API_KEY"); ok {
			c.Detectors.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Detectors.TimeoutSeconds <= 0 {
		c.Detectors.TimeoutSeconds = defaultDetectorsTimeout
	}
	c.Detectors.LanguageCode = strings.TrimSpace(c.Detectors.LanguageCode)
	if c.Detectors.LanguageCode == "" {
		c.Detectors.LanguageCode = defaultLanguageCode
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Provider == "" {
		c.LLM.Provider = defaultLLMProvider
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	switch c.LLM.Provider {
	case "gemini":
		if c.LLM.Model == "" {
			c.LLM.Model = defaultGeminiModel
		}
	default:
		if c.LLM.BaseURL == "" {
			c.LLM.BaseURL = defaultOpenRouterBaseURL
		}
		if c.LLM.Model == "" {
			c.LLM.Model = defaultOpenRouterModel
		}
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		envKeys := []string{"VIGIL_LLM_API_KEY", "OPENROUTER_API_KEY"}
		if c.LLM.Provider == "gemini" {
			envKeys = []string{"VIGIL_LLM_API_KEY", "GEMINI_API_KEY"}
		}
		for _, key := range envKeys {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.LLM.APIKey = strings.TrimSpace(value)
				break
			}
		}
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultLLMMaxTokens
	}
	if c.LLM.MaxAttempts <= 0 {
		c.LLM.MaxAttempts = defaultLLMMaxAttempts
	}
	if c.LLM.RetryBaseMS <= 0 {
		c.LLM.RetryBaseMS = defaultLLMRetryBaseMS
	}
	if c.LLM.RetryMaxMS <= 0 {
		c.LLM.RetryMaxMS = defaultLLMRetryMaxMS
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeRetention() {
	c.Retention.Schedule = strings.TrimSpace(c.Retention.Schedule)
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = defaultRetentionSchedule
	}
	if c.Retention.SessionDays < 0 {
		c.Retention.SessionDays = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
