package crop

import (
	"fmt"
	"io"

	"clipdeck/internal/settings"
)

// NewLive assembles the production crop stage: frames from src are cropped
// to the live region bounds every frame and streamed into videoOut as raw
// rgba. It returns the cropper and the fixed output size the encoder must
// expect. The output size is frozen here; only the source rectangle follows
// the bounds cell afterwards.
func NewLive(src Source, videoOut io.WriteCloser, bounds *settings.BoundsCell, snap settings.Settings, captureW, displayW, displayH, fps int) (*Cropper, int, int, error) {
	b, ok := bounds.Get()
	if !ok && !snap.LockAspect {
		return nil, 0, 0, fmt.Errorf("no region to crop")
	}
	if ok && displayW > 0 && displayH > 0 {
		b = b.ClampToDisplay(displayW, displayH)
	}

	outW, outH := OutputSize(snap, b)
	if outW <= 0 || outH <= 0 {
		return nil, 0, 0, fmt.Errorf("invalid crop output size %dx%d", outW, outH)
	}

	c, err := New(Config{
		Source:   src,
		Sink:     NewWriterSink(videoOut, outW, outH),
		Bounds:   bounds,
		Scale:    ScaleFactor(captureW, displayW),
		DisplayW: displayW,
		DisplayH: displayH,
		OutW:     outW,
		OutH:     outH,
		FPS:      fps,
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return c, outW, outH, nil
}
