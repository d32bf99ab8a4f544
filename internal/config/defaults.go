package config

const (
	defaultDataDir              = "~/.local/share/vigil"
	defaultLogDir               = "~/.local/share/vigil/logs"
	defaultLogRetentionDays     = 30
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultAPIBind              = "127.0.0.1:7490"
	defaultStoreBackend         = "sqlite"
	defaultRedisAddr            = "127.0.0.1:6379"
	defaultRedisKeyPrefix       = "vigil:"
	defaultDetectorsBaseURL     = "http://127.0.0.1:8600"
	defaultDetectorsTimeout     = 30
	defaultPollIntervalSeconds  = 5
	defaultMaxWaitSeconds       = 1800
	defaultLanguageCode         = "en-US"
	defaultMaxSpeakers          = 5
	defaultModerationThreshold  = 0.5
	defaultLLMProvider          = "openrouter"
	defaultOpenRouterBaseURL    = "https://openrouter.ai/api/v1/chat/completions"
	defaultOpenRouterModel      = "anthropic/claude-3.5-sonnet"
	defaultGeminiModel          = "gemini-1.5-flash"
	defaultLLMReferer           = "https://github.com/vigil-health/vigil"
	defaultLLMTitle             = "Vigil Session Analysis"
	defaultLLMTimeoutSeconds    = 90
	defaultLLMTemperature       = 0.1
	defaultLLMMaxTokens         = 2048
	defaultLLMMaxAttempts       = 3
	defaultLLMRetryBaseMS       = 1000
	defaultLLMRetryMaxMS        = 10000
	defaultNotifyRequestTimeout = 10
	defaultRetentionSchedule    = "@daily"
	defaultSessionRetentionDays = 0
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Backend:        defaultStoreBackend,
			RedisAddr:      defaultRedisAddr,
			RedisKeyPrefix: defaultRedisKeyPrefix,
		},
		Detectors: Detectors{
			BaseURL:             defaultDetectorsBaseURL,
			TimeoutSeconds:      defaultDetectorsTimeout,
			PollIntervalSeconds: defaultPollIntervalSeconds,
			MaxWaitSeconds:      defaultMaxWaitSeconds,
			LanguageCode:        defaultLanguageCode,
			MaxSpeakers:         defaultMaxSpeakers,
		},
		Moderation: Moderation{
			MinConfidence: defaultModerationThreshold,
		},
		LLM: LLM{
			Provider:       defaultLLMProvider,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
			Temperature:    defaultLLMTemperature,
			MaxTokens:      defaultLLMMaxTokens,
			MaxAttempts:    defaultLLMMaxAttempts,
			RetryBaseMS:    defaultLLMRetryBaseMS,
			RetryMaxMS:     defaultLLMRetryMaxMS,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Failed:         true,
		},
		Retention: Retention{
			Schedule:    defaultRetentionSchedule,
			SessionDays: defaultSessionRetentionDays,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
