package stage

import (
	"context"
	"errors"
	"testing"

	"vigil/internal/services"
)

func TestValidateRef_Valid(t *testing.T) {
	for _, ref := range []string{"s3://bucket/session.mp4", "recordings/session.mp4", "file:///tmp/a.wav"} {
		if err := ValidateRef("uploading", "video", ref); err != nil {
			t.Fatalf("unexpected error for %q: %v", ref, err)
		}
	}
}

func TestValidateRef_Empty(t *testing.T) {
	err := ValidateRef("uploading", "video", "  ")
	if err == nil {
		t.Fatal("expected error for empty reference")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation marker, got %v", err)
	}
}

func TestValidateRef_Invalid(t *testing.T) {
	if err := ValidateRef("uploading", "audio", "s3://"); err == nil {
		t.Fatal("expected error for reference without location")
	}
}

type fixedChecker Health

func (f fixedChecker) HealthCheck(context.Context) Health { return Health(f) }

func TestCheckAll(t *testing.T) {
	records := CheckAll(context.Background(),
		fixedChecker(Healthy("video")),
		nil,
		fixedChecker(Unhealthy("llm", "no key")),
	)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if AllReady(records) {
		t.Fatal("expected not all ready")
	}
	if !AllReady(records[:1]) {
		t.Fatal("expected first record ready")
	}
}
