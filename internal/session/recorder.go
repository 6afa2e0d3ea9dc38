// Package session wraps one composite stream with an encoder and collects
// its chunks.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clipdeck/internal/capture"
	"clipdeck/internal/clock"

	"github.com/google/uuid"
)

// ChunkInterval is the encoder's chunk granularity.
const ChunkInterval = time.Second

// ManualCap is the hard limit on manual and standalone audio recordings, a
// safety cap against unbounded disk usage.
const ManualCap = 1800 * time.Second

// Options configure one recorder session.
type Options struct {
	MimeType      string
	BitsPerSecond int
	FrameRate     int
	Clock         clock.Clock
}

// Recorder owns one live session: a composite stream, an encoder, and the
// ordered chunks collected so far.
type Recorder struct {
	ID        uuid.UUID
	StartedAt time.Time

	stream *capture.Composite
	enc    capture.Encoder
	clk    clock.Clock

	mu      sync.Mutex
	chunks  []capture.Chunk
	stopped bool

	collectDone chan struct{}
}

// Start builds an encoder around the stream and begins collecting chunks.
func Start(stream *capture.Composite, factory capture.EncoderFactory, opts Options) (*Recorder, error) {
	if stream == nil {
		return nil, fmt.Errorf("failed to start session: nil stream")
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}

	enc, err := factory(stream, capture.EncoderOptions{
		MimeType:           opts.MimeType,
		VideoBitsPerSecond: opts.BitsPerSecond,
		FrameRate:          opts.FrameRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	if err := enc.Start(ChunkInterval); err != nil {
		return nil, fmt.Errorf("failed to start encoder: %w", err)
	}

	r := &Recorder{
		ID:          uuid.New(),
		StartedAt:   clk.Now(),
		stream:      stream,
		enc:         enc,
		clk:         clk,
		collectDone: make(chan struct{}),
	}

	go r.collect()

	slog.Debug("session started", "id", r.ID, "mime", enc.MimeType())
	return r, nil
}

func (r *Recorder) collect() {
	defer close(r.collectDone)
	for chunk := range r.enc.Chunks() {
		r.mu.Lock()
		r.chunks = append(r.chunks, chunk)
		r.mu.Unlock()
	}
}

// Stop flushes the encoder and returns the complete ordered chunk list. It
// does not return until the encoder actually signals completion, so no tail
// frames are dropped. The stream itself stays alive; releasing it is the
// owner's decision (rotation reuses it).
func (r *Recorder) Stop(ctx context.Context) ([]capture.Chunk, error) {
	r.mu.Lock()
	if r.stopped {
		chunks := append([]capture.Chunk(nil), r.chunks...)
		r.mu.Unlock()
		return chunks, nil
	}
	r.stopped = true
	r.mu.Unlock()

	err := r.enc.Stop(ctx)

	// The chunk channel closes after the final flushed chunk.
	select {
	case <-r.collectDone:
	case <-ctx.Done():
		return nil, fmt.Errorf("session stop interrupted: %w", ctx.Err())
	}

	r.mu.Lock()
	chunks := append([]capture.Chunk(nil), r.chunks...)
	r.mu.Unlock()

	if err != nil {
		// Encoder failure mid-session is treated as a stop with whatever
		// chunks were collected.
		slog.Warn("encoder reported error on stop", "id", r.ID, "error", err)
	}

	slog.Debug("session stopped", "id", r.ID, "chunks", len(chunks))
	return chunks, nil
}

// Elapsed is the session's running time.
func (r *Recorder) Elapsed() time.Duration {
	return r.clk.Now().Sub(r.StartedAt)
}

// MimeType reports the encoder's negotiated format.
func (r *Recorder) MimeType() string { return r.enc.MimeType() }

// Stream returns the composite the session records from.
func (r *Recorder) Stream() *capture.Composite { return r.stream }
