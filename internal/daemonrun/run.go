package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"vigil/internal/aggregate"
	"vigil/internal/config"
	"vigil/internal/daemon"
	"vigil/internal/detect"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/notifications"
	"vigil/internal/pipeline"
	"vigil/internal/preflight"
	"vigil/internal/services/gemini"
	"vigil/internal/services/llm"
	"vigil/internal/session"
	"vigil/internal/stage"
	"vigil/internal/stream"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vigil daemon runtime loop and blocks until the context is
// cancelled or the process receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if opts.Development {
		cfg.Logging.Format = "console"
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	logHub := logging.NewStreamHub(4096)
	logger, err := logging.NewFromConfig(cfg, logHub)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logConfigSnapshot(logger, cfg)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := openStore(signalCtx, cfg)
	if err != nil {
		logger.Error("open session store", logging.Error(err))
		return err
	}

	gateway := detect.NewGateway(detect.ConfigFrom(cfg), detect.WithLogger(logger))
	reasoner, closeReasoner, err := newReasoner(signalCtx, cfg)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("init reasoning backend: %w", err)
	}
	defer closeReasoner()

	llmCfg := cfg.GetLLM()
	aggregator := aggregate.New(reasoner, aggregate.Options{
		Temperature: &llmCfg.Temperature,
		MaxTokens:   llmCfg.MaxTokens,
		Backoff: llm.Backoff{
			MaxAttempts: llmCfg.MaxAttempts,
			BaseDelay:   llmCfg.RetryBase,
			MaxDelay:    llmCfg.RetryMax,
		},
		Logger: logger,
	})

	registry := stream.NewRegistry(logger)
	runner := pipeline.NewRunner(store, gateway.Suite(), aggregator, registry, pipeline.Options{
		MinModerationConfidence: cfg.Moderation.MinConfidence,
		Logger:                  logger,
	})
	notifier := notifications.NewService(cfg)
	manager := pipeline.NewManager(store, runner, notifier, logger)

	preflight.LogResults(logger, preflight.RunAll(signalCtx, cfg))

	d, err := daemon.New(cfg, logger, daemon.Dependencies{
		Store:        store,
		StoreBackend: cfg.Store.Backend,
		Manager:      manager,
		Registry:     registry,
		LogHub:       logHub,
		Notifier:     notifier,
		Health:       []stage.HealthChecker{gateway, reasoner},
	})
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger, ipc.WithShutdown(cancel))
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file, api_bind, and session store access"),
			logging.String(logging.FieldImpact, "no sessions will be analyzed"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("vigil daemon shutting down")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "redis":
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		store, err := session.OpenRedis(openCtx, session.RedisOptions{
			Addr:      cfg.Store.RedisAddr,
			Password:  cfg.Store.RedisPassword,
			DB:        cfg.Store.RedisDB,
			KeyPrefix: cfg.Store.RedisKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "", "sqlite":
		store, err := session.OpenSQLite(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

// reasoningBackend is what the aggregator calls plus readiness reporting.
type reasoningBackend interface {
	aggregate.Reasoner
	stage.HealthChecker
}

func newReasoner(ctx context.Context, cfg *config.Config) (reasoningBackend, func(), error) {
	llmCfg := cfg.GetLLM()
	switch strings.ToLower(llmCfg.Provider) {
	case "gemini":
		client, err := gemini.NewClient(ctx, gemini.Config{APIKey: llmCfg.APIKey, Model: llmCfg.Model})
		if err != nil {
			return nil, nil, err
		}
		return client, func() { _ = client.Close() }, nil
	case "", "openrouter":
		client := llm.NewClient(llm.Config{
			APIKey:         llmCfg.APIKey,
			BaseURL:        llmCfg.BaseURL,
			Model:          llmCfg.Model,
			Referer:        llmCfg.Referer,
			Title:          llmCfg.Title,
			TimeoutSeconds: llmCfg.TimeoutSeconds,
		})
		return client, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported llm provider %q", llmCfg.Provider)
	}
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	llmCfg := cfg.GetLLM()
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("store_backend", cfg.Store.Backend),
		logging.String("detector_gateway", cfg.Detectors.BaseURL),
		logging.Bool("detector_key_present", strings.TrimSpace(cfg.Detectors.APIKey) != ""),
		logging.String("llm_provider", llmCfg.Provider),
		logging.String("llm_model", llmCfg.Model),
		logging.Bool("llm_key_present", llmCfg.APIKey != ""),
		logging.Float64("moderation_min_confidence", cfg.Moderation.MinConfidence),
		logging.Bool("notifications_enabled", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.String("retention_schedule", cfg.Retention.Schedule),
	)
}
