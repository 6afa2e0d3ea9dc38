package capture

import (
	"context"
	"time"
)

// Chunk is one timestamped slice of encoded media bytes. Chunks are
// delivered in strict temporal order by the encoder.
type Chunk struct {
	Data []byte
	At   time.Time
}

// EncoderOptions configure one encoder instance.
type EncoderOptions struct {
	MimeType           string
	VideoBitsPerSecond int
	FrameRate          int
}

// Encoder is the raw encoder primitive: given a live stream it produces
// timestamped binary chunks on a fixed interval and reports its negotiated
// container format.
type Encoder interface {
	// Start begins chunk delivery at the given granularity.
	Start(interval time.Duration) error

	// Chunks returns the ordered delivery channel. It is closed after the
	// final flushed chunk once Stop completes.
	Chunks() <-chan Chunk

	// Stop flushes remaining data. It must not return before the encoder
	// has actually finalized; a premature return risks dropped tail frames.
	Stop(ctx context.Context) error

	// MimeType reports the negotiated container/codec.
	MimeType() string
}

// EncoderFactory builds an encoder around a composite stream.
type EncoderFactory func(stream *Composite, opts EncoderOptions) (Encoder, error)

// FormatProber answers whether a container/codec profile is supported,
// used to pick the best available output format.
type FormatProber interface {
	Supports(mimeType string) bool
}
