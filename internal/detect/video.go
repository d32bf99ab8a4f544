package detect

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"vigil/internal/analysis"
)

type faceRecord struct {
	Timestamp int64 `json:"timestamp"`
	Face      struct {
		BoundingBox analysis.BoundingBox `json:"bounding_box"`
		Emotions    []struct {
			Type       string  `json:"type"`
			Confidence float64 `json:"confidence"`
		} `json:"emotions"`
	} `json:"face"`
}

type facePage struct {
	Faces []faceRecord `json:"faces"`
}

// DetectFaces runs a face detection job and calls visit for every detection.
// Emotion confidences are converted from percentages; unknown emotion types
// are dropped.
func (g *Gateway) DetectFaces(ctx context.Context, videoRef string, visit func(analysis.FaceDetection) error) error {
	req := jobRequest{MediaRef: videoRef}
	return g.runJob(ctx, kindFaces, req, func(raw json.RawMessage) error {
		var page facePage
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &page); err != nil {
				return fmt.Errorf("decode face page: %w", err)
			}
		}
		sort.SliceStable(page.Faces, func(i, j int) bool {
			return page.Faces[i].Timestamp < page.Faces[j].Timestamp
		})
		for _, rec := range page.Faces {
			if err := visit(faceFromRecord(rec)); err != nil {
				return err
			}
		}
		return nil
	})
}

func faceFromRecord(rec faceRecord) analysis.FaceDetection {
	det := analysis.FaceDetection{
		TimestampMS: rec.Timestamp,
		BoundingBox: rec.Face.BoundingBox.Clamped(),
		Emotions:    make([]analysis.EmotionScore, 0, len(rec.Face.Emotions)),
	}
	for _, e := range rec.Face.Emotions {
		emotion, ok := analysis.ParseDetectorEmotion(e.Type)
		if !ok {
			continue
		}
		det.Emotions = append(det.Emotions, analysis.EmotionScore{
			Emotion:    emotion,
			Confidence: analysis.FromPercent(e.Confidence),
		})
	}
	return det
}

type faceAdapter struct{ g *Gateway }

func (a faceAdapter) Analyze(ctx context.Context, videoRef string, visit func(analysis.FaceDetection) error) error {
	return a.g.DetectFaces(ctx, videoRef, visit)
}
