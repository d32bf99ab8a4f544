package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"vigil/internal/api"
	"vigil/internal/ipc"
	"vigil/internal/session"
	"vigil/internal/stream"
)

func newSessionWatchCommand(ctx *commandContext) *cobra.Command {
	var showEmotions bool
	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow a session's progress live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var address string
			err := ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				address = status.APIAddress
				return nil
			})
			if err != nil {
				return err
			}
			if strings.TrimSpace(address) == "" {
				return errors.New("daemon api server is disabled; set paths.api_bind to watch sessions")
			}
			return watchSession(cmd.Context(), cmd.OutOrStdout(), address, args[0], showEmotions)
		},
	}
	cmd.Flags().BoolVar(&showEmotions, "emotions", false, "Print every emotion update")
	return cmd
}

func analysisURL(address, id string) string {
	u := url.URL{Scheme: "ws", Host: address, Path: "/ws/analysis/" + url.PathEscape(id)}
	return u.String()
}

// watchSession prints observer messages until the session completes,
// fails, or ctx ends.
func watchSession(ctx context.Context, out io.Writer, address, id string, showEmotions bool) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, analysisURL(address, id), nil)
	if err != nil {
		return fmt.Errorf("connect to analysis stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read analysis stream: %w", err)
		}
		done, err := printStreamMessage(out, data, showEmotions)
		if err != nil || done {
			return err
		}
	}
}

// printStreamMessage renders one observer message and reports whether the
// stream has reached its end.
func printStreamMessage(out io.Writer, data []byte, showEmotions bool) (bool, error) {
	var envelope struct {
		Type stream.MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return false, fmt.Errorf("decode stream message: %w", err)
	}

	switch envelope.Type {
	case stream.TypeStatusUpdate:
		var msg stream.StatusUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return false, err
		}
		line := fmt.Sprintf("[%s] %s", formatProgress(msg.Progress), api.StatusLabel(msg.Status))
		if msg.Message != "" {
			line += ": " + msg.Message
		}
		fmt.Fprintln(out, line)
		return msg.Status.IsTerminal(), nil
	case stream.TypeEmotionUpdate:
		if !showEmotions {
			return false, nil
		}
		var msg stream.EmotionUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return false, err
		}
		parts := make([]string, 0, len(msg.Emotions))
		for _, e := range msg.Emotions {
			parts = append(parts, fmt.Sprintf("%s=%s", e.Emotion, formatConfidence(e.Confidence)))
		}
		primary := "-"
		if msg.PrimaryEmotion != nil {
			primary = string(msg.PrimaryEmotion.Emotion)
		}
		fmt.Fprintf(out, "  emotions @%dms primary=%s %s\n", msg.TimestampMS, primary, strings.Join(parts, " "))
	case stream.TypeTranscriptionUpdate:
		var msg stream.TranscriptionUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return false, err
		}
		fmt.Fprintf(out, "  %.1fs-%.1fs %s\n", msg.StartTime, msg.EndTime, msg.Text)
	case stream.TypeComplete:
		var msg stream.Complete
		if err := json.Unmarshal(data, &msg); err != nil {
			return false, err
		}
		if msg.Results != nil && msg.Results.Status == session.StatusCompleted {
			fmt.Fprintf(out, "Session %s completed; run `vigil session show %s` for results\n", msg.Results.ID, msg.Results.ID)
		}
		return true, nil
	case stream.TypeError:
		var msg stream.Error
		if err := json.Unmarshal(data, &msg); err != nil {
			return false, err
		}
		return true, errors.New(msg.Message)
	}
	return false, nil
}
