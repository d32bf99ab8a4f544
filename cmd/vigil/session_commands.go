package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/analysis"
	"vigil/internal/ipc"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:     "session",
		Aliases: []string{"sessions"},
		Short:   "Create, inspect and control analysis sessions",
	}

	sessionCmd.AddCommand(newSessionCreateCommand(ctx))
	sessionCmd.AddCommand(newSessionStartCommand(ctx))
	sessionCmd.AddCommand(newSessionListCommand(ctx))
	sessionCmd.AddCommand(newSessionShowCommand(ctx))
	sessionCmd.AddCommand(newSessionCancelCommand(ctx))
	sessionCmd.AddCommand(newSessionRetryCommand(ctx))
	sessionCmd.AddCommand(newSessionWatchCommand(ctx))
	return sessionCmd
}

func newSessionCreateCommand(ctx *commandContext) *cobra.Command {
	var (
		patientID string
		videoRef  string
		audioRef  string
		start     bool
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a recorded session for analysis",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionCreate(ipc.SessionCreateRequest{
					PatientID: patientID,
					VideoRef:  videoRef,
					AudioRef:  audioRef,
					Start:     start,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return emitJSON(cmd.OutOrStdout(), resp.Session)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Created session %s for patient %s\n", resp.Session.ID, resp.Session.PatientID)
				if start {
					fmt.Fprintln(out, "Analysis started; follow it with `vigil session watch "+resp.Session.ID+"`")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&patientID, "patient", "", "Patient identifier")
	cmd.Flags().StringVar(&videoRef, "video", "", "Storage reference of the session recording")
	cmd.Flags().StringVar(&audioRef, "audio", "", "Storage reference of a separate audio track (defaults to the video)")
	cmd.Flags().BoolVar(&start, "start", false, "Start the analysis immediately")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("video")
	return cmd
}

func newSessionStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "Start the analysis of a pending session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionStart(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Session %s started (%s)\n", resp.Session.ID, resp.Session.StatusLabel)
				return nil
			})
		},
	}
}

func newSessionCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionCancel(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cancellation requested for session %s (%s)\n", resp.Session.ID, resp.Session.StatusLabel)
				return nil
			})
		},
	}
}

func newSessionRetryCommand(ctx *commandContext) *cobra.Command {
	var start bool
	cmd := &cobra.Command{
		Use:   "retry <id>",
		Short: "Create a new session from a failed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionRetry(args[0], start)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retry of %s created as session %s\n", args[0], resp.Session.ID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&start, "start", false, "Start the new session immediately")
	return cmd
}

func newSessionListCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses  []string
		patientID string
		limit     int
		asJSON    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionList(ipc.SessionListRequest{
					Statuses:  statuses,
					PatientID: patientID,
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return emitJSON(cmd.OutOrStdout(), resp.Sessions)
				}
				out := cmd.OutOrStdout()
				if len(resp.Sessions) == 0 {
					fmt.Fprintln(out, "No sessions found")
					return nil
				}
				printTable(out,
					[]string{"ID", "Patient", "Status", "Progress", "Updated"},
					buildSessionRows(resp.Sessions),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&patientID, "patient", "", "Only list sessions of this patient")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of sessions (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func buildSessionRows(list []ipc.Session) [][]string {
	rows := make([][]string, 0, len(list))
	for _, s := range list {
		label := s.StatusLabel
		if label == "" {
			label = s.Status
		}
		rows = append(rows, []string{
			s.ID,
			s.PatientID,
			label,
			formatProgress(s.Progress),
			s.UpdatedAt,
		})
	}
	return rows
}

func formatProgress(value float64) string {
	return strconv.FormatFloat(value*100, 'f', 0, 64) + "%"
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session with its analysis results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SessionShow(args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return emitJSON(cmd.OutOrStdout(), resp.Session)
				}
				out := cmd.OutOrStdout()
				renderSessionDetail(out, resp.Session, shouldColorize(out))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func renderSessionDetail(out io.Writer, detail ipc.SessionDetail, colorize bool) {
	p := &statusPrinter{out: out, colorize: colorize}
	p.section("Session "+detail.ID)
	p.line("Patient", statusInfo, detail.PatientID)
	p.line("Status", sessionStatusKind(detail.Status), detail.StatusLabel)
	progress := formatProgress(detail.Progress)
	if detail.ProgressMessage != "" {
		progress += " " + detail.ProgressMessage
	}
	p.line("Progress", statusInfo, progress)
	p.line("Video", statusInfo, detail.VideoRef)
	if detail.AudioRef != "" {
		p.line("Audio", statusInfo, detail.AudioRef)
	}
	if detail.ErrorMessage != "" {
		p.line("Error", statusError, detail.ErrorMessage)
	}

	if len(detail.EmotionSummary) > 0 {
		p.section("Emotions")
		printTable(out, []string{"Emotion", "Mean confidence"}, emotionRows(detail.EmotionSummary), []columnAlignment{alignLeft, alignRight})
	}

	if detail.Audio != nil && detail.Audio.OverallSentiment != nil {
		p.section("Audio")
		p.line("Segments", statusInfo, strconv.Itoa(len(detail.Audio.Segments)))
		p.line("Sentiment", statusInfo, string(detail.Audio.OverallSentiment.Sentiment))
	}

	if len(detail.Indicators) > 0 {
		p.section("Clinical indicators")
		rows := make([][]string, 0, len(detail.Indicators))
		for _, indicator := range detail.Indicators {
			rows = append(rows, []string{indicator.Type, formatConfidence(indicator.Confidence), strings.Join(indicator.Evidence, "; ")})
		}
		printTable(out, []string{"Indicator", "Confidence", "Evidence"}, rows, []columnAlignment{alignLeft, alignRight, alignLeft})
	}

	if check := detail.InjuryCheck; check != nil {
		p.section("Injury check")
		kind := statusOK
		if check.HasSignals {
			kind = riskKind(check.Severity)
		}
		p.line("Summary", kind, check.Summary)
		if check.Severity != "" {
			p.line("Severity", riskKind(check.Severity), string(check.Severity))
		}
		if check.ClinicalRationale != "" {
			p.line("Rationale", statusInfo, check.ClinicalRationale)
		}
		if check.ErrorMessage != "" {
			p.line("Error", statusWarn, check.ErrorMessage)
		}
	}

	if agg := detail.Aggregate; agg != nil {
		p.section("Assessment")
		p.line("Risk level", riskKind(agg.RiskLevel), string(agg.RiskLevel))
		p.line("Summary", statusInfo, agg.ClinicalSummary)
		for _, rec := range agg.Recommendations {
			p.line("Recommendation", statusInfo, rec)
		}
		printEvidence(out, agg.CrossReferencedEvidence)
	}
}

func printEvidence(out io.Writer, entries []analysis.EvidenceEntry) {
	if len(entries) == 0 {
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		supporting := make([]string, 0, len(entry.SupportingSources))
		for _, src := range entry.SupportingSources {
			supporting = append(supporting, string(src))
		}
		rows = append(rows, []string{string(entry.Source), entry.Finding, strings.Join(supporting, ", ")})
	}
	printTable(out, []string{"Source", "Finding", "Supported by"}, rows, nil)
}

// emotionRows sorts by confidence, highest first.
func emotionRows(summary map[string]float64) [][]string {
	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if summary[names[i]] != summary[names[j]] {
			return summary[names[i]] > summary[names[j]]
		}
		return names[i] < names[j]
	})
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, formatConfidence(summary[name])})
	}
	return rows
}

func formatConfidence(value float64) string {
	return strconv.FormatFloat(value, 'f', 1, 64)
}
