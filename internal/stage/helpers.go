package stage

import (
	"errors"
	"net/url"
	"strings"

	"vigil/internal/services"
)

// ValidateRef checks a media reference before it is handed to a detector.
// References are opaque to the pipeline but must be non-empty and, when they
// look like URLs, carry a scheme and location.
// On failure it returns a services.ErrValidation suitable for stage policies.
func ValidateRef(stageName, kind, ref string) error {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return services.Wrap(
			services.ErrValidation, stageName, "validate "+kind+" reference",
			"No "+kind+" reference supplied for this session", errors.New("empty reference"))
	}
	if strings.Contains(ref, "://") {
		parsed, err := url.Parse(ref)
		if err != nil || parsed.Scheme == "" || (parsed.Host == "" && parsed.Path == "") {
			if err == nil {
				err = errors.New("missing scheme or location")
			}
			return services.Wrap(
				services.ErrValidation, stageName, "validate "+kind+" reference",
				"The "+kind+" reference is not a valid location", err)
		}
	}
	return nil
}
