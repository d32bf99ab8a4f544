package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"vigil/internal/logging"
	"vigil/internal/poll"
)

const (
	kindFaces      = "face-detection"
	kindModeration = "content-moderation"
	kindTranscribe = "transcription"
)

// Job status values reported by the gateway.
const (
	JobInProgress = "IN_PROGRESS"
	JobSucceeded  = "SUCCEEDED"
	JobFailed     = "FAILED"
)

type jobRequest struct {
	MediaRef      string  `json:"media_ref"`
	ClientToken   string  `json:"client_token"`
	LanguageCode  string  `json:"language_code,omitempty"`
	MaxSpeakers   int     `json:"max_speakers,omitempty"`
	MinConfidence float64 `json:"min_confidence,omitempty"`
}

type jobStarted struct {
	JobID string `json:"job_id"`
}

// jobPage is the common envelope of every job poll response. Result holds
// the kind-specific payload for this page.
type jobPage struct {
	Status        string          `json:"status"`
	StatusMessage string          `json:"status_message"`
	NextToken     string          `json:"next_token"`
	Result        json.RawMessage `json:"result"`
}

func defaultToken() string { return uuid.NewString() }

func (g *Gateway) startJob(ctx context.Context, kind string, req jobRequest) (string, error) {
	req.ClientToken = g.newToken()
	var started jobStarted
	if err := g.do(ctx, "POST", "/v1/"+kind+"/jobs", req, &started); err != nil {
		return "", fmt.Errorf("start %s job: %w", kind, err)
	}
	if strings.TrimSpace(started.JobID) == "" {
		return "", fmt.Errorf("start %s job: gateway returned no job id", kind)
	}
	g.logger.Debug("detector job started",
		logging.String("kind", kind),
		logging.String("job_id", started.JobID),
	)
	return started.JobID, nil
}

func (g *Gateway) fetchPage(ctx context.Context, kind, jobID, nextToken string) (jobPage, error) {
	path := "/v1/" + kind + "/jobs/" + url.PathEscape(jobID)
	if nextToken != "" {
		path += "?next_token=" + url.QueryEscape(nextToken)
	}
	var page jobPage
	if err := g.do(ctx, "GET", path, nil, &page); err != nil {
		return page, fmt.Errorf("poll %s job %s: %w", kind, jobID, err)
	}
	return page, nil
}

// runJob starts a job, waits for it to leave IN_PROGRESS, and hands each
// result page to onPage in order. Only the wait for the first completed page
// is bounded by MaxWait; following pages are fetched straight away.
func (g *Gateway) runJob(ctx context.Context, kind string, req jobRequest, onPage func(json.RawMessage) error) error {
	jobID, err := g.startJob(ctx, kind, req)
	if err != nil {
		return err
	}

	var first jobPage
	err = poll.Until(ctx, kind+" job "+jobID, g.cfg.PollInterval, g.cfg.MaxWait, func(ctx context.Context) (bool, error) {
		page, err := g.fetchPage(ctx, kind, jobID, "")
		if err != nil {
			return false, err
		}
		switch strings.ToUpper(page.Status) {
		case JobInProgress, "":
			return false, nil
		case JobFailed:
			return false, fmt.Errorf("%w: %s job %s: %s", errJobFailed, kind, jobID, fallback(page.StatusMessage, "unknown error"))
		default:
			first = page
			return true, nil
		}
	})
	if err != nil {
		return err
	}

	page := first
	pages := 1
	for {
		if err := onPage(page.Result); err != nil {
			return err
		}
		if page.NextToken == "" {
			break
		}
		page, err = g.fetchPage(ctx, kind, jobID, page.NextToken)
		if err != nil {
			return err
		}
		pages++
	}
	g.logger.Debug("detector job finished",
		logging.String("kind", kind),
		logging.String("job_id", jobID),
		logging.Int("pages", pages),
	)
	return nil
}

func fallback(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
