package capture

import (
	"context"

	"clipdeck/internal/settings"
)

// Constraints shape a desktop capture request.
type Constraints struct {
	MaxWidth    int
	MaxHeight   int
	FrameRate   int
	SystemAudio bool // loopback audio from the same source
}

// ConstraintsFor derives capture constraints from a settings snapshot.
// When region cropping is active the maximum supported resolution is
// requested regardless of the output preset, because the crop stage needs
// full detail to downsample cleanly.
func ConstraintsFor(s settings.Settings) Constraints {
	c := Constraints{
		FrameRate:   settings.MaxFrameRate,
		SystemAudio: s.SystemAudio,
	}

	if s.CropEnabled() {
		c.MaxWidth = settings.MaxCaptureWidth
		c.MaxHeight = settings.MaxCaptureHeight
		return c
	}

	c.MaxWidth, c.MaxHeight = s.Resolution.Dimensions()
	return c
}

// Acquirer obtains a live desktop stream for a source id. Failures are
// descriptive; no partial streams are cached.
type Acquirer interface {
	AcquireDesktop(ctx context.Context, sourceID string, c Constraints) (*Composite, error)
}
