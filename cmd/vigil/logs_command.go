package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vigil/internal/api"
	"vigil/internal/ipc"
	"vigil/internal/logging"
	"vigil/internal/logs"
)

type logsOptions struct {
	follow    bool
	lines     int
	sessionID string
	component string
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Long: "Display daemon logs from the HTTP API, falling back to IPC and, when the " +
			"daemon is stopped, to the log file in log_dir.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts.sessionID = strings.TrimSpace(opts.sessionID)
			opts.component = strings.TrimSpace(opts.component)

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := streamLogsFromAPI(cmd, cfg.Paths.APIBind, opts); !errors.Is(err, logs.ErrAPIUnavailable) {
				return err
			}

			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				return tailLogFile(cmd, filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName), opts)
			}
			defer client.Close()
			return streamLogsFromIPC(cmd, client, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 20, "Number of recent lines to show")
	cmd.Flags().StringVar(&opts.sessionID, "session", "", "Only show events for this session")
	cmd.Flags().StringVar(&opts.component, "component", "", "Only show events from this component")
	return cmd
}

func streamLogsFromAPI(cmd *cobra.Command, bind string, opts logsOptions) error {
	client, err := logs.NewStreamClient(bind)
	if err != nil || client == nil {
		return logs.ErrAPIUnavailable
	}
	query := logs.StreamQuery{
		Limit:     opts.lines,
		Tail:      true,
		Follow:    opts.follow,
		SessionID: opts.sessionID,
		Component: opts.component,
	}
	printed := false
	err = client.Stream(cmd.Context(), query, func(events []api.LogEvent) {
		printed = printEvents(cmd, events) || printed
	})
	switch {
	case err != nil && !printed && logs.IsAPIUnavailable(err):
		return logs.ErrAPIUnavailable
	case err != nil:
		return err
	case !printed && !opts.follow:
		fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
	}
	return nil
}

func streamLogsFromIPC(cmd *cobra.Command, client *ipc.Client, opts logsOptions) error {
	req := ipc.LogTailRequest{
		Limit:     opts.lines,
		Tail:      true,
		SessionID: opts.sessionID,
		Component: opts.component,
	}
	printed := false
	for {
		resp, err := client.LogTail(req)
		if err != nil {
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		printed = printEvents(cmd, resp.Events) || printed
		if !opts.follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		if resp.Next > req.Since {
			req.Since = resp.Next
		}
		req.Follow = true
		req.Tail = false
		req.WaitMillis = 1000
		req.Limit = 0
		select {
		case <-cmd.Context().Done():
			return nil
		default:
		}
	}
}

// tailLogFile reads the daemon's JSON log directly. Lines that are not JSON
// are printed unchanged.
func tailLogFile(cmd *cobra.Command, path string, opts logsOptions) error {
	out := cmd.OutOrStdout()
	tailOpts := logs.TailOptions{Offset: -1, Limit: opts.lines}
	if opts.sessionID != "" || opts.component != "" {
		// Filters apply after reading, so scan the whole file.
		tailOpts = logs.TailOptions{Offset: 0}
	}
	printed := false
	for {
		result, err := logs.Tail(cmd.Context(), path, tailOpts)
		if err != nil && cmd.Context().Err() == nil {
			return fmt.Errorf("tail log file: %w", err)
		}
		var events []string
		for _, line := range result.Lines {
			evt, parseErr := logs.ParseLine(line)
			if parseErr != nil {
				events = append(events, line)
				continue
			}
			if logs.Matches(evt, opts.sessionID, opts.component) {
				events = append(events, formatLogEvent(evt))
			}
		}
		if tailOpts.Offset == 0 && !tailOpts.Follow && opts.lines > 0 && len(events) > opts.lines {
			events = events[len(events)-opts.lines:]
		}
		for _, line := range events {
			fmt.Fprintln(out, line)
			printed = true
		}
		if !opts.follow || cmd.Context().Err() != nil {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		tailOpts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: time.Second}
	}
}

func printEvents(cmd *cobra.Command, events []ipc.LogEvent) bool {
	for _, evt := range events {
		fmt.Fprintln(cmd.OutOrStdout(), formatLogEvent(evt))
	}
	return len(events) > 0
}

func formatLogEvent(evt ipc.LogEvent) string {
	ts := evt.Timestamp
	if parsed, err := time.Parse(time.RFC3339Nano, evt.Timestamp); err == nil {
		ts = parsed.Local().Format("2006-01-02 15:04:05")
	}
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if c := strings.TrimSpace(evt.Component); c != "" {
		parts = append(parts, "["+c+"]")
	}
	if subject := composeSubject(evt.SessionID, evt.Stage); subject != "" {
		parts = append(parts, subject)
	}
	line := strings.Join(parts, " ")
	if msg := strings.TrimSpace(evt.Message); msg != "" {
		line += " - " + msg
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(line)
	for _, key := range keys {
		value := strings.TrimSpace(evt.Fields[key])
		if value == "" {
			continue
		}
		b.WriteString("\n    - ")
		b.WriteString(key)
		b.WriteString(": ")
		b.WriteString(value)
	}
	return b.String()
}

func composeSubject(sessionID, stage string) string {
	sessionID = strings.TrimSpace(sessionID)
	stage = strings.TrimSpace(stage)
	switch {
	case sessionID != "" && stage != "":
		return fmt.Sprintf("Session %s (%s)", sessionID, stage)
	case sessionID != "":
		return "Session " + sessionID
	default:
		return stage
	}
}
