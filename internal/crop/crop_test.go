package crop

import (
	"image"
	"testing"

	"clipdeck/internal/capture"
	"clipdeck/internal/settings"
)

func TestScaleFactor(t *testing.T) {
	cases := []struct {
		captureW, displayW int
		want               float64
	}{
		{1920, 1920, 1.0},
		{2560, 1280, 2.0},
		{1280, 2560, 0.5},
		{0, 1920, 1.0},
		{1920, 0, 1.0},
	}
	for _, c := range cases {
		if got := ScaleFactor(c.captureW, c.displayW); got != c.want {
			t.Errorf("ScaleFactor(%d, %d) = %v, want %v", c.captureW, c.displayW, got, c.want)
		}
	}
}

func TestSourceRect(t *testing.T) {
	b := settings.RegionBounds{X: 100, Y: 100, W: 400, H: 225}

	if got := SourceRect(b, 1.0); got != image.Rect(100, 100, 500, 325) {
		t.Fatalf("SourceRect scale 1.0 = %v", got)
	}
	if got := SourceRect(b, 2.0); got != image.Rect(200, 200, 1000, 650) {
		t.Fatalf("SourceRect scale 2.0 = %v", got)
	}
}

func TestOutputSizeEvenFloor(t *testing.T) {
	snap := settings.Default()
	snap.LockAspect = false

	w, h := OutputSize(snap, settings.RegionBounds{W: 401, H: 226})
	if w != 400 || h != 226 {
		t.Fatalf("OutputSize = %dx%d, want 400x226 (odd width floored)", w, h)
	}

	w, h = OutputSize(snap, settings.RegionBounds{W: 401, H: 227})
	if w != 400 || h != 226 {
		t.Fatalf("OutputSize = %dx%d, want 400x226 (both floored)", w, h)
	}
}

func TestOutputSizeAspectLock(t *testing.T) {
	snap := settings.Default()
	snap.LockAspect = true
	snap.Aspect = "16:9"
	snap.Resolution = settings.Res1080p

	w, h := OutputSize(snap, settings.RegionBounds{W: 401, H: 226})
	if w != 1920 || h != 1080 {
		t.Fatalf("OutputSize with 16:9 lock = %dx%d, want 1920x1080", w, h)
	}
}

// --- redraw loop ---

type fakeSource struct {
	frame   *image.RGBA
	stopped bool
}

func (s *fakeSource) NextFrame() (*image.RGBA, error) { return s.frame, nil }
func (s *fakeSource) Stop() error                     { s.stopped = true; return nil }

type fakeSink struct {
	draws  []drawCall
	closed bool
}

type drawCall struct {
	sr, dr image.Rectangle
}

func (s *fakeSink) Draw(frame *image.RGBA, sr, dr image.Rectangle) {
	s.draws = append(s.draws, drawCall{sr: sr, dr: dr})
}

func (s *fakeSink) Close() error { s.closed = true; return nil }

func TestStepMapsRegionToOutput(t *testing.T) {
	cell := &settings.BoundsCell{}
	cell.Set(settings.RegionBounds{X: 100, Y: 100, W: 400, H: 225})

	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 1920, 1080))}
	sink := &fakeSink{}

	c, err := New(Config{
		Source:   src,
		Sink:     sink,
		Bounds:   cell,
		Scale:    1.0,
		DisplayW: 1920,
		DisplayH: 1080,
		OutW:     640,
		OutH:     360,
		FPS:      60,
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Step(); err != nil {
		t.Fatal(err)
	}

	if len(sink.draws) != 1 {
		t.Fatalf("draw calls = %d, want 1", len(sink.draws))
	}
	if got := sink.draws[0].sr; got != image.Rect(100, 100, 500, 325) {
		t.Fatalf("source rect = %v, want (100,100)-(500,325)", got)
	}
	if got := sink.draws[0].dr; got != image.Rect(0, 0, 640, 360) {
		t.Fatalf("dest rect = %v, want full 640x360 canvas", got)
	}
}

func TestStepTracksLiveBounds(t *testing.T) {
	cell := &settings.BoundsCell{}
	cell.Set(settings.RegionBounds{X: 0, Y: 0, W: 400, H: 225})

	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 1920, 1080))}
	sink := &fakeSink{}

	c, err := New(Config{
		Source:   src,
		Sink:     sink,
		Bounds:   cell,
		Scale:    1.0,
		DisplayW: 1920,
		DisplayH: 1080,
		OutW:     400,
		OutH:     224,
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Step()
	// The user drags the region; the very next frame follows it.
	cell.Set(settings.RegionBounds{X: 300, Y: 200, W: 400, H: 225})
	c.Step()

	if got := sink.draws[0].sr; got != image.Rect(0, 0, 400, 225) {
		t.Fatalf("first frame rect = %v", got)
	}
	if got := sink.draws[1].sr; got != image.Rect(300, 200, 700, 425) {
		t.Fatalf("second frame rect = %v, want moved region", got)
	}
}

func TestStepScalesForHiDPI(t *testing.T) {
	cell := &settings.BoundsCell{}
	cell.Set(settings.RegionBounds{X: 100, Y: 100, W: 400, H: 225})

	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 3840, 2160))}
	sink := &fakeSink{}

	c, err := New(Config{
		Source:   src,
		Sink:     sink,
		Bounds:   cell,
		Scale:    2.0,
		DisplayW: 1920,
		DisplayH: 1080,
		OutW:     640,
		OutH:     360,
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Step()
	if got := sink.draws[0].sr; got != image.Rect(200, 200, 1000, 650) {
		t.Fatalf("scaled source rect = %v, want (200,200)-(1000,650)", got)
	}
}

func TestStepClampsOutOfBoundsRegion(t *testing.T) {
	cell := &settings.BoundsCell{}
	cell.Set(settings.RegionBounds{X: 1800, Y: 1000, W: 400, H: 225})

	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 1920, 1080))}
	sink := &fakeSink{}

	c, err := New(Config{
		Source:   src,
		Sink:     sink,
		Bounds:   cell,
		Scale:    1.0,
		DisplayW: 1920,
		DisplayH: 1080,
		OutW:     400,
		OutH:     224,
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Step()
	sr := sink.draws[0].sr
	if sr.Max.X > 1920 || sr.Max.Y > 1080 {
		t.Fatalf("source rect %v exceeds the display", sr)
	}
}

func TestStepFallsBackToFullFrame(t *testing.T) {
	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 1920, 1080))}
	sink := &fakeSink{}

	c, err := New(Config{
		Source: src,
		Sink:   sink,
		Bounds: &settings.BoundsCell{}, // no region set
		OutW:   1920,
		OutH:   1080,
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Step()
	if got := sink.draws[0].sr; got != image.Rect(0, 0, 1920, 1080) {
		t.Fatalf("rect without a region = %v, want the full frame", got)
	}
}

func TestCloseTearsEverythingDown(t *testing.T) {
	src := &fakeSource{frame: image.NewRGBA(image.Rect(0, 0, 100, 100))}
	sink := &fakeSink{}
	raw := &capture.Composite{Video: &capture.FuncTrack{TrackKind: capture.TrackVideo}}

	c, err := New(Config{
		Source: src,
		Sink:   sink,
		Bounds: &settings.BoundsCell{},
		Raw:    raw,
		OutW:   100,
		OutH:   100,
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Close()
	c.Close() // idempotent

	if !src.stopped {
		t.Fatal("source not stopped")
	}
	if !sink.closed {
		t.Fatal("sink not closed")
	}
	if !raw.Released() {
		t.Fatal("raw stream not released")
	}
}
