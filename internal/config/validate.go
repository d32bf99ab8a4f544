package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateDetectors(); err != nil {
		return err
	}
	if err := c.validateModeration(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "sqlite":
		return nil
	case "redis":
		if strings.TrimSpace(c.Store.RedisAddr) == "" {
			return errors.New("store.redis_addr must be set when store.backend is redis")
		}
		if c.Store.RedisDB < 0 {
			return errors.New("store.redis_db must be non-negative")
		}
		return nil
	default:
		return fmt.Errorf("store.backend: unsupported value %q (want sqlite or redis)", c.Store.Backend)
	}
}

func (c *Config) validateDetectors() error {
	parsed, err := url.Parse(c.Detectors.BaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("detectors.base_url must be an absolute URL, got %q", c.Detectors.BaseURL)
	}
	if c.Detectors.PollIntervalSeconds <= 0 {
		return errors.New("detectors.poll_interval_seconds must be positive")
	}
	if c.Detectors.MaxWaitSeconds <= 0 {
		return errors.New("detectors.max_wait_seconds must be positive")
	}
	if c.Detectors.MaxWaitSeconds < c.Detectors.PollIntervalSeconds {
		return errors.New("detectors.max_wait_seconds must be at least poll_interval_seconds")
	}
	if c.Detectors.MaxSpeakers < 1 || c.Detectors.MaxSpeakers > 10 {
		return errors.New("detectors.max_speakers must be between 1 and 10")
	}
	return nil
}

func (c *Config) validateModeration() error {
	if c.Moderation.MinConfidence < 0 || c.Moderation.MinConfidence > 1 {
		return errors.New("moderation.min_confidence must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateLLM() error {
	switch c.LLM.Provider {
	case "openrouter", "gemini":
	default:
		return fmt.Errorf("llm.provider: unsupported value %q (want openrouter or gemini)", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	if c.LLM.RetryMaxMS < c.LLM.RetryBaseMS {
		return errors.New("llm.retry_max_ms must be at least retry_base_ms")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if _, err := cron.ParseStandard(c.Retention.Schedule); err != nil {
		return fmt.Errorf("retention.schedule: %w", err)
	}
	return nil
}
