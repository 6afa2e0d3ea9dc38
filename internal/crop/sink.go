package crop

import (
	"image"
	"io"
	"log/slog"
)

// WriterSink composes cropped frames onto a fixed-size rgba canvas and
// streams each composed frame to a writer, typically the encoder's video
// input.
type WriterSink struct {
	w      io.WriteCloser
	canvas *image.RGBA
	failed bool
}

func NewWriterSink(w io.WriteCloser, outW, outH int) *WriterSink {
	return &WriterSink{
		w:      w,
		canvas: image.NewRGBA(image.Rect(0, 0, outW, outH)),
	}
}

// Draw resamples the sr sub-rectangle of the frame to fill dr on the
// canvas, then emits the whole canvas as one raw frame.
func (s *WriterSink) Draw(frame *image.RGBA, sr, dr image.Rectangle) {
	if sr.Dx() > 0 && sr.Dy() > 0 && dr.Dx() > 0 && dr.Dy() > 0 {
		for y := 0; y < dr.Dy(); y++ {
			srcY := sr.Min.Y + y*sr.Dy()/dr.Dy()
			for x := 0; x < dr.Dx(); x++ {
				srcX := sr.Min.X + x*sr.Dx()/dr.Dx()
				if !(image.Pt(srcX, srcY).In(frame.Rect)) {
					continue
				}
				si := frame.PixOffset(srcX, srcY)
				di := s.canvas.PixOffset(dr.Min.X+x, dr.Min.Y+y)
				copy(s.canvas.Pix[di:di+4], frame.Pix[si:si+4])
			}
		}
	}

	if s.failed {
		return
	}
	if _, err := s.w.Write(s.canvas.Pix); err != nil {
		s.failed = true
		slog.Warn("failed to write composed frame", "error", err)
	}
}

func (s *WriterSink) Close() error { return s.w.Close() }
