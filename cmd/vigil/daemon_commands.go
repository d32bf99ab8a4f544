package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/api"
	"vigil/internal/daemonctl"
	"vigil/internal/session"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the vigil daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx), 10*time.Second)
			if err != nil {
				return err
			}
			if result.Launched {
				fmt.Fprintln(stdout, "Daemon not running, launching...")
			}
			printStartResult(stdout, result, "Daemon started")
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the vigil daemon (active analyses are marked failed)",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 35*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if !result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.PID)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the vigil daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(ctx.socketPath(), ctx.configValue(), exe, daemonLaunchOptions(ctx), 35*time.Second, 10*time.Second)
			if err != nil {
				return err
			}
			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Stopping daemon process (pid %d)...\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			printStartResult(stdout, result.Start, "Daemon restarted")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, detector and session status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			p := newStatusPrinter(stdout)

			p.section("Daemon")
			p.lines(daemonLines(snapshot, p.colorize))
			p.section("Backends")
			p.lines(backendLines(snapshot, p.colorize))
			p.section("Sessions")
			rows := buildSessionCountRows(snapshot.Counts)
			if len(rows) == 0 {
				fmt.Fprintln(stdout, "No sessions recorded")
				return nil
			}
			printTable(stdout, []string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
			return nil
		},
	}

	for _, cmd := range []*cobra.Command{startCmd, restartCmd} {
		cmd.Flags().StringVar(&ctx.logLevel, "log-level", "", "Daemon log level override (debug, info, warn, error)")
	}

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func printStartResult(stdout interface{ Write([]byte) (int, error) }, result daemonctl.StartResult, started string) {
	switch result.State {
	case daemonctl.StartStateStarted:
		fmt.Fprintln(stdout, started)
	case daemonctl.StartStateAlreadyRunning:
		fmt.Fprintln(stdout, "Daemon already running")
	case daemonctl.StartStateRequested:
		if strings.TrimSpace(result.Message) != "" {
			fmt.Fprintln(stdout, result.Message)
			return
		}
		fmt.Fprintln(stdout, "Start request sent")
	}
}

func daemonLines(snapshot *daemonctl.StatusSnapshot, colorize bool) []string {
	status := snapshot.Daemon
	if !status.Running {
		return []string{renderStatusLine("Vigil", statusWarn, "Not running (run `vigil start`)", colorize)}
	}
	lines := []string{
		renderStatusLine("Vigil", statusOK, "Running (pid "+strconv.Itoa(status.PID)+")", colorize),
		renderStatusLine("Store", statusInfo, storeDetail(status.StoreBackend, status.DatabasePath), colorize),
	}
	if status.APIAddress != "" {
		lines = append(lines, renderStatusLine("API", statusInfo, "http://"+status.APIAddress, colorize))
	}
	active := "None"
	if len(status.Active) > 0 {
		active = strings.Join(status.Active, ", ")
	}
	lines = append(lines,
		renderStatusLine("Active analyses", statusInfo, active, colorize),
		renderStatusLine("Finished / failed", statusInfo, fmt.Sprintf("%d / %d", status.Finished, status.Failed), colorize),
		renderStatusLine("Observers", statusInfo, strconv.Itoa(status.Observers), colorize),
	)
	if status.LastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, status.LastError, colorize))
	}
	return lines
}

func storeDetail(backend, path string) string {
	if path == "" {
		return backend
	}
	return backend + " (" + path + ")"
}

// backendLines prefers live health from the daemon and falls back to the
// offline preflight checks.
func backendLines(snapshot *daemonctl.StatusSnapshot, colorize bool) []string {
	var checks []api.HealthCheck
	if len(snapshot.Daemon.Health) > 0 {
		checks = snapshot.Daemon.Health
	} else {
		for _, result := range snapshot.Preflight {
			checks = append(checks, api.HealthCheck{Name: result.Name, Ready: result.Passed, Detail: result.Detail})
		}
	}
	if len(checks) == 0 {
		return []string{renderStatusLine("Checks", statusInfo, "No checks available", colorize)}
	}
	lines := make([]string, 0, len(checks))
	for _, check := range checks {
		kind := statusOK
		detail := strings.TrimSpace(check.Detail)
		if !check.Ready {
			kind = statusError
		}
		if detail == "" {
			detail = "ready"
		}
		lines = append(lines, renderStatusLine(check.Name, kind, detail, colorize))
	}
	return lines
}

// buildSessionCountRows orders statuses along the pipeline with failed last.
func buildSessionCountRows(counts map[string]int) [][]string {
	if len(counts) == 0 {
		return nil
	}
	order := make(map[string]int, len(session.Pipeline)+1)
	for i, status := range session.Pipeline {
		order[string(status)] = i
	}
	order[string(session.StatusFailed)] = len(session.Pipeline)

	keys := make([]string, 0, len(counts))
	for status := range counts {
		keys = append(keys, status)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return keys[i] < keys[j]
	})
	rows := make([][]string, 0, len(keys))
	for _, status := range keys {
		label := status
		if parsed, ok := session.ParseStatus(status); ok {
			label = api.StatusLabel(parsed)
		}
		rows = append(rows, []string{label, strconv.Itoa(counts[status])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{ConfigPath: ctx.configPath(), LogLevel: ctx.logLevel}
}
