package detect

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"vigil/internal/analysis"
	"vigil/internal/logging"
)

const (
	// MaxSentimentBytes is the largest text the sentiment detector accepts.
	MaxSentimentBytes = 5000
	// SentimentTruncateRunes is the length oversized text is cut to.
	SentimentTruncateRunes = 4500
	// MaxBatchSize bounds a single batch request.
	MaxBatchSize = 25
)

type sentimentScores struct {
	Positive float64 `json:"positive"`
	Negative float64 `json:"negative"`
	Neutral  float64 `json:"neutral"`
	Mixed    float64 `json:"mixed"`
}

type sentimentResponse struct {
	Sentiment      string          `json:"sentiment"`
	SentimentScore sentimentScores `json:"sentiment_score"`
}

type batchResponse struct {
	Results []struct {
		Index int `json:"index"`
		sentimentResponse
	} `json:"results"`
	Errors []struct {
		Index        int    `json:"index"`
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"errors"`
}

// Score returns the sentiment of text. Text larger than MaxSentimentBytes is
// truncated first.
func (g *Gateway) Score(ctx context.Context, text string) (analysis.SentimentResult, error) {
	body := map[string]string{"text": truncateForSentiment(text), "language_code": languageOnly(g.cfg.LanguageCode)}
	var resp sentimentResponse
	if err := g.do(ctx, "POST", "/v1/sentiment", body, &resp); err != nil {
		return analysis.SentimentResult{}, fmt.Errorf("score sentiment: %w", err)
	}
	return resp.toResult(), nil
}

// ScoreBatch scores texts in requests of at most MaxBatchSize. Items the
// detector rejects come back nil.
func (g *Gateway) ScoreBatch(ctx context.Context, texts []string) ([]*analysis.SentimentResult, error) {
	out := make([]*analysis.SentimentResult, len(texts))
	for offset := 0; offset < len(texts); offset += MaxBatchSize {
		end := min(offset+MaxBatchSize, len(texts))
		chunk := make([]string, 0, end-offset)
		for _, text := range texts[offset:end] {
			chunk = append(chunk, truncateForSentiment(text))
		}
		body := map[string]any{"texts": chunk, "language_code": languageOnly(g.cfg.LanguageCode)}
		var resp batchResponse
		if err := g.do(ctx, "POST", "/v1/sentiment/batch", body, &resp); err != nil {
			return nil, fmt.Errorf("score sentiment batch: %w", err)
		}
		for _, item := range resp.Results {
			if item.Index < 0 || item.Index >= len(chunk) {
				continue
			}
			result := item.toResult()
			out[offset+item.Index] = &result
		}
		for _, item := range resp.Errors {
			g.logger.Debug("sentiment batch item rejected",
				logging.Int("index", offset+item.Index),
				logging.String("error_code", item.ErrorCode),
				logging.String("error_message", item.ErrorMessage),
			)
		}
	}
	return out, nil
}

func (r sentimentResponse) toResult() analysis.SentimentResult {
	label, ok := analysis.ParseSentimentLabel(r.Sentiment)
	if !ok {
		label = analysis.SentimentNeutral
	}
	return analysis.SentimentResult{
		Sentiment: label,
		Positive:  r.SentimentScore.Positive,
		Negative:  r.SentimentScore.Negative,
		Neutral:   r.SentimentScore.Neutral,
		Mixed:     r.SentimentScore.Mixed,
	}.Clamped()
}

func truncateForSentiment(text string) string {
	if len(text) <= MaxSentimentBytes {
		return text
	}
	if utf8.RuneCountInString(text) <= SentimentTruncateRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:SentimentTruncateRunes])
}

// languageOnly turns "en-US" into "en".
func languageOnly(code string) string {
	code = strings.TrimSpace(code)
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	if code == "" {
		return "en"
	}
	return strings.ToLower(code)
}
