package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")

	// ErrFatalStage marks a stage failure that terminates the session.
	ErrFatalStage = errors.New("fatal stage failure")
	// ErrDegradedStage marks a stage failure the pipeline absorbs; the
	// corresponding result field is left absent or annotated.
	ErrDegradedStage = errors.New("degraded stage")
	// ErrMalformedResponse marks reasoning output that could not be parsed
	// into the expected structure.
	ErrMalformedResponse = errors.New("malformed response")
)

var markers = []error{
	ErrFatalStage,
	ErrDegradedStage,
	ErrMalformedResponse,
	ErrTimeout,
	ErrTransient,
	ErrNotFound,
	ErrConfiguration,
	ErrValidation,
	ErrExternalTool,
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return err != nil && (errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout))
}

// ErrorDetails is the log-friendly breakdown of a classified error.
type ErrorDetails struct {
	Kind    string
	Message string
	Hint    string
}

// Details classifies err against the known markers. Kind is "unknown" when
// no marker matches.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	out := ErrorDetails{Kind: "unknown", Message: err.Error(), Hint: "check daemon logs for details"}
	for _, marker := range markers {
		if errors.Is(err, marker) {
			out.Kind = kindName(marker)
			out.Message = strings.TrimSpace(strings.TrimPrefix(err.Error(), marker.Error()+":"))
			out.Hint = hintFor(marker)
			break
		}
	}
	return out
}

// FailureMessage renders err as the human readable message stored on a
// failed session. It never returns an empty string.
func FailureMessage(err error) string {
	if err == nil {
		return "analysis failed"
	}
	msg := Details(err).Message
	if strings.TrimSpace(msg) == "" {
		return "analysis failed"
	}
	return msg
}

func kindName(marker error) string {
	switch marker {
	case ErrFatalStage:
		return "fatal_stage"
	case ErrDegradedStage:
		return "degraded_stage"
	case ErrMalformedResponse:
		return "malformed_response"
	case ErrTimeout:
		return "timeout"
	case ErrTransient:
		return "transient"
	case ErrNotFound:
		return "not_found"
	case ErrConfiguration:
		return "configuration"
	case ErrValidation:
		return "validation"
	case ErrExternalTool:
		return "external"
	default:
		return "unknown"
	}
}

func hintFor(marker error) string {
	switch marker {
	case ErrConfiguration:
		return "review vigil config (vigil config validate)"
	case ErrTimeout:
		return "detector job exceeded detectors.max_wait_seconds"
	case ErrTransient:
		return "provider was unavailable; retry the session"
	case ErrMalformedResponse:
		return "reasoning model returned unexpected output"
	case ErrNotFound:
		return "verify the session or media reference exists"
	default:
		return "check daemon logs for details"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
