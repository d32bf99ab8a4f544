package aggregate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"vigil/internal/services"
	"vigil/internal/services/llm"
)

// ParseKind tags how much of a reasoning response could be used.
type ParseKind int

const (
	// Unrecoverable means nothing usable was found.
	Unrecoverable ParseKind = iota
	// PartiallyRecovered means the payload was not clean JSON but the
	// required fields were extracted.
	PartiallyRecovered
	// Parsed means the response decoded as strict JSON.
	Parsed
)

func (k ParseKind) String() string {
	switch k {
	case Parsed:
		return "parsed"
	case PartiallyRecovered:
		return "partially_recovered"
	default:
		return "unrecoverable"
	}
}

// ParseResult is the tagged outcome of parsing one response.
type ParseResult[T any] struct {
	Kind  ParseKind
	Value T
	// Err explains an Unrecoverable result.
	Err error
}

// response is a reply shape that can tell whether the fields its contract
// requires were present.
type response interface {
	complete() bool
}

// fieldExtractor fills target from raw text using pattern matching and
// reports whether every required field was found.
type fieldExtractor[T response] func(raw string, target *T) bool

// parseResponse runs the three parse strategies in order. A decode that
// lacks the required fields falls through to the next strategy, so null,
// {} or a refusal object never count as a verdict.
func parseResponse[T response](raw string, extract fieldExtractor[T]) ParseResult[T] {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ParseResult[T]{Kind: Unrecoverable, Err: fmt.Errorf("%w: empty response", services.ErrMalformedResponse)}
	}
	var value T
	if err := json.Unmarshal([]byte(trimmed), &value); err == nil && value.complete() {
		return ParseResult[T]{Kind: Parsed, Value: value}
	}

	var recovered T
	if err := llm.DecodeLLMJSON(trimmed, &recovered); err == nil && recovered.complete() {
		return ParseResult[T]{Kind: PartiallyRecovered, Value: recovered}
	}

	var extracted T
	if extract != nil && extract(trimmed, &extracted) {
		return ParseResult[T]{Kind: PartiallyRecovered, Value: extracted}
	}
	return ParseResult[T]{
		Kind: Unrecoverable,
		Err:  fmt.Errorf("%w: required fields missing: %s", services.ErrMalformedResponse, llm.Snippet(trimmed)),
	}
}

func fieldPattern(field, value string) *regexp.Regexp {
	return regexp.MustCompile(`"` + regexp.QuoteMeta(field) + `"\s*:\s*` + value)
}

const (
	stringValue = `"((?:[^"\\]|\\.)*)"`
	boolValue   = `(true|false)`
	numberValue = `(-?[0-9]+(?:\.[0-9]+)?)`
	arrayValue  = `\[([^\]]*)\]`
)

var quotedItem = regexp.MustCompile(stringValue)

func extractString(raw, field string) (string, bool) {
	m := fieldPattern(field, stringValue).FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return unescape(m[1]), true
}

func extractBool(raw, field string) (bool, bool) {
	m := fieldPattern(field, boolValue).FindStringSubmatch(raw)
	if m == nil {
		return false, false
	}
	return m[1] == "true", true
}

func extractNumber(raw, field string) (float64, bool) {
	m := fieldPattern(field, numberValue).FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func extractStrings(raw, field string) []string {
	m := fieldPattern(field, arrayValue).FindStringSubmatch(raw)
	if m == nil {
		return nil
	}
	items := quotedItem.FindAllStringSubmatch(m[1], -1)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(unescape(item[1])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}
