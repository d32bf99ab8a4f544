package detect

import (
	"context"
	"encoding/json"
	"fmt"

	"vigil/internal/analysis"
)

type transcriptionPage struct {
	Transcript *Transcript `json:"transcript"`
}

// Transcribe runs a speech-to-text job and returns ordered segments.
func (g *Gateway) Transcribe(ctx context.Context, audioRef string) ([]analysis.TranscriptionSegment, error) {
	req := jobRequest{
		MediaRef:     audioRef,
		LanguageCode: g.cfg.LanguageCode,
		MaxSpeakers:  g.cfg.MaxSpeakers,
	}
	var transcript Transcript
	found := false
	err := g.runJob(ctx, kindTranscribe, req, func(raw json.RawMessage) error {
		if len(raw) == 0 {
			return nil
		}
		var page transcriptionPage
		if err := json.Unmarshal(raw, &page); err != nil {
			return fmt.Errorf("decode transcript: %w", err)
		}
		if page.Transcript != nil {
			transcript.Results.Items = append(transcript.Results.Items, page.Transcript.Results.Items...)
			if page.Transcript.Results.SpeakerLabels != nil {
				transcript.Results.SpeakerLabels = page.Transcript.Results.SpeakerLabels
			}
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: transcription job returned no transcript", errJobFailed)
	}
	return transcript.Segments(), nil
}
