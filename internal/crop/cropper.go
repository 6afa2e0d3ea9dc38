package crop

import (
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"clipdeck/internal/capture"
	"clipdeck/internal/settings"
)

// Source yields decoded frames from the raw full-resolution capture.
type Source interface {
	NextFrame() (*image.RGBA, error)
	Stop() error
}

// Sink receives the redrawn output. Draw resamples the sr sub-rectangle of
// the frame to fill dr on the output canvas.
type Sink interface {
	Draw(frame *image.RGBA, sr image.Rectangle, dr image.Rectangle)
	Close() error
}

// Config wires a Cropper.
type Config struct {
	Source Source
	Sink   Sink
	// Raw is the underlying full-resolution stream; it is owned by the
	// cropper and released with it.
	Raw *capture.Composite
	// Bounds is the live region cell, re-read every frame.
	Bounds *settings.BoundsCell
	// Scale is the capture/display scale factor.
	Scale float64
	// DisplayW/DisplayH clamp the live bounds each frame.
	DisplayW, DisplayH int
	// OutW/OutH is the fixed output canvas size.
	OutW, OutH int
	FPS        int
}

// Cropper runs the redraw loop. The source, the loop, and the raw stream
// are torn down together by Close; leaving any of them alive is a leak.
type Cropper struct {
	cfg Config

	mu        sync.Mutex
	started   bool
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func New(cfg Config) (*Cropper, error) {
	if cfg.Source == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("cropper needs a source and a sink")
	}
	if cfg.OutW <= 0 || cfg.OutH <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", cfg.OutW, cfg.OutH)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = settings.MaxFrameRate
	}
	if cfg.Scale <= 0 {
		cfg.Scale = 1.0
	}
	return &Cropper{
		cfg:  cfg,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}, nil
}

// Run drives the redraw loop until Close. Call in a goroutine.
func (c *Cropper) Run() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	defer close(c.done)

	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			if err := c.Step(); err != nil {
				slog.Warn("crop step failed", "error", err)
				return
			}
		}
	}
}

// Step redraws one frame: read the current bounds, map them into capture
// pixels, and resample onto the output canvas.
func (c *Cropper) Step() error {
	frame, err := c.cfg.Source.NextFrame()
	if err != nil {
		return fmt.Errorf("failed to read frame: %w", err)
	}

	sr := c.currentSourceRect(frame)
	dr := image.Rect(0, 0, c.cfg.OutW, c.cfg.OutH)
	c.cfg.Sink.Draw(frame, sr, dr)
	return nil
}

func (c *Cropper) currentSourceRect(frame *image.RGBA) image.Rectangle {
	bounds, ok := c.cfg.Bounds.Get()
	if !ok {
		return frame.Bounds()
	}

	if c.cfg.DisplayW > 0 && c.cfg.DisplayH > 0 {
		bounds = bounds.ClampToDisplay(c.cfg.DisplayW, c.cfg.DisplayH)
	}
	return SourceRect(bounds, c.cfg.Scale)
}

// Close stops the loop, detaches the frame source, closes the sink, and
// releases the raw stream.
func (c *Cropper) Close() {
	c.closeOnce.Do(func() {
		close(c.quit)

		// Stop the source first: a Step blocked waiting for a frame only
		// unblocks once the source dies, and the loop cannot exit before
		// that.
		if err := c.cfg.Source.Stop(); err != nil {
			slog.Warn("failed to stop crop source", "error", err)
		}

		c.mu.Lock()
		started := c.started
		c.mu.Unlock()
		if started {
			<-c.done
		}

		if err := c.cfg.Sink.Close(); err != nil {
			slog.Warn("failed to close crop sink", "error", err)
		}
		if c.cfg.Raw != nil {
			c.cfg.Raw.Release()
		}
	})
}
