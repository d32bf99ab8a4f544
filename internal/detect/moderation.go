package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"vigil/internal/analysis"
)

type moderationRecord struct {
	Timestamp *int64 `json:"timestamp"`
	Label     struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
		ParentName string  `json:"parent_name"`
	} `json:"moderation_label"`
}

type moderationPage struct {
	Labels []moderationRecord `json:"labels"`
}

// DetectModeration runs a content moderation job over the video and returns
// the labels at or above the configured minimum confidence.
func (g *Gateway) DetectModeration(ctx context.Context, videoRef string) ([]analysis.ModerationLabel, error) {
	req := jobRequest{MediaRef: videoRef, MinConfidence: g.cfg.MinConfidence * 100}
	var labels []analysis.ModerationLabel
	err := g.runJob(ctx, kindModeration, req, func(raw json.RawMessage) error {
		var page moderationPage
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &page); err != nil {
				return fmt.Errorf("decode moderation page: %w", err)
			}
		}
		for _, rec := range page.Labels {
			name := strings.TrimSpace(rec.Label.Name)
			if name == "" {
				continue
			}
			labels = append(labels, analysis.ModerationLabel{
				Name:        name,
				Confidence:  analysis.FromPercent(rec.Label.Confidence),
				TimestampMS: rec.Timestamp,
				ParentName:  strings.TrimSpace(rec.Label.ParentName),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return analysis.RetainLabels(labels, g.cfg.MinConfidence), nil
}

type moderationAdapter struct{ g *Gateway }

func (a moderationAdapter) Analyze(ctx context.Context, videoRef string) ([]analysis.ModerationLabel, error) {
	return a.g.DetectModeration(ctx, videoRef)
}
