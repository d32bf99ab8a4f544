package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"vigil/internal/config"
	"vigil/internal/detect"
	"vigil/internal/stage"
)

const (
	gatewayCheckTimeout = 5 * time.Second
	llmCheckTimeout     = 30 * time.Second
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckGateway verifies the detector gateway answers its health endpoint.
func CheckGateway(ctx context.Context, cfg *config.Config) Result {
	const name = "Detector gateway"
	if cfg == nil || strings.TrimSpace(cfg.Detectors.BaseURL) == "" {
		return Result{Name: name, Detail: "detectors.base_url not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, gatewayCheckTimeout)
	defer cancel()

	gwCfg := detect.ConfigFrom(cfg)
	gwCfg.TimeoutSeconds = int(gatewayCheckTimeout / time.Second)
	health := detect.NewGateway(gwCfg).HealthCheck(checkCtx)
	if !health.Ready {
		return Result{Name: name, Detail: summarizeError(checkCtx, health.Detail)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", gwCfg.BaseURL)}
}

// CheckLLMConfig verifies the reasoning provider is usable without calling it.
func CheckLLMConfig(cfg config.LLMConfig) Result {
	const name = "Reasoning provider"
	switch cfg.Provider {
	case "openrouter", "gemini":
	default:
		return Result{Name: name, Detail: fmt.Sprintf("unsupported provider %q", cfg.Provider)}
	}
	if cfg.APIKey == "" {
		return Result{Name: name, Detail: cfg.Provider + " API key missing; reasoning stages will degrade"}
	}
	model := cfg.Model
	if model == "" {
		model = "default model"
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%s)", cfg.Provider, model)}
}

// CheckHealth runs a live health check with a bounded timeout. It is used
// for the reasoning backends, whose checks spend a real request.
func CheckHealth(ctx context.Context, name string, checker stage.HealthChecker) Result {
	if checker == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, llmCheckTimeout)
	defer cancel()
	health := checker.HealthCheck(checkCtx)
	if !health.Ready {
		return Result{Name: name, Detail: summarizeError(checkCtx, health.Detail)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// summarizeError produces a readable detail for failed network checks.
func summarizeError(ctx context.Context, detail string) string {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "health check timed out (service unresponsive)"
	}
	if strings.TrimSpace(detail) == "" {
		return "health check failed"
	}
	return detail
}
