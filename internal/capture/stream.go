// Package capture models live capture streams and the encoder primitive
// that turns them into timestamped byte chunks.
package capture

import (
	"log/slog"
	"sync"
)

type TrackKind string

const (
	TrackVideo TrackKind = "video"
	TrackAudio TrackKind = "audio"
)

// Track is one live capture track. Stop releases the underlying capture
// handle and must be idempotent.
type Track interface {
	Kind() TrackKind
	Stop() error
}

// Composite is the merged video+audio stream handed to an encoder. Either
// track may be nil. It is owned exclusively by the active recorder session
// and released when the session ends or restarts.
type Composite struct {
	Video Track
	Audio Track

	mu       sync.Mutex
	released bool
}

// Release stops every track. Safe to call more than once.
func (c *Composite) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.released {
		return
	}
	c.released = true

	if c.Video != nil {
		if err := c.Video.Stop(); err != nil {
			slog.Warn("failed to stop video track", "error", err)
		}
	}
	if c.Audio != nil {
		if err := c.Audio.Stop(); err != nil {
			slog.Warn("failed to stop audio track", "error", err)
		}
	}
}

// Released reports whether Release has run.
func (c *Composite) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.released
}

// FuncTrack adapts a stop function into a Track.
type FuncTrack struct {
	TrackKind TrackKind
	OnStop    func() error

	once sync.Once
	err  error
}

func (t *FuncTrack) Kind() TrackKind { return t.TrackKind }

func (t *FuncTrack) Stop() error {
	t.once.Do(func() {
		if t.OnStop != nil {
			t.err = t.OnStop()
		}
	})
	return t.err
}
