// Package replay owns the recording state machine: the perpetually
// rotating instant-replay buffer, manual recording, and clip saves.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clipdeck/internal/capture"
	"clipdeck/internal/clock"
	"clipdeck/internal/notify"
	"clipdeck/internal/post"
	"clipdeck/internal/session"
	"clipdeck/internal/settings"
)

// Status is the controller's externally visible state. Exactly one value
// holds at a time and drives which operations are legal.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusBuffering Status = "buffering"
)

// Transition is the typed result of a state-machine call. Illegal calls
// are rejected without corrupting state; callers gate buttons on Status
// but the controller guards itself too.
type Transition int

const (
	Applied Transition = iota
	Rejected
)

// saveDebounce rejects a second save fired within this window of the last.
const saveDebounce = 3 * time.Second

// restartPause lets OS-level capture handles fully release before the
// pipeline is rebuilt.
const restartPause = 200 * time.Millisecond

// AcquireFunc obtains a composite stream for a source id, shaped by a
// settings snapshot.
type AcquireFunc func(ctx context.Context, sourceID string, snap settings.Settings) (*capture.Composite, error)

// Saver hands finished chunks to the post-processing pipeline.
type Saver interface {
	SaveVideo(chunks [][]byte, mimeType, prefix string) *post.Task
}

// Deps are the controller's collaborators.
type Deps struct {
	Acquire    AcquireFunc
	NewEncoder capture.EncoderFactory
	Prober     capture.FormatProber
	Saver      Saver
	Notifier   notify.Notifier
	Settings   func() settings.Settings
	Clock      clock.Clock
}

// State is the live readout for a HUD.
type State struct {
	Status         Status `json:"status"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	BufferSeconds  int    `json:"bufferSeconds"`
	// EstimatedBufferBytes approximates the rolling buffer's memory
	// footprint while buffering, from the preset bitrate and length.
	EstimatedBufferBytes int64 `json:"estimatedBufferBytes"`
}

// Controller keeps at most one live stream/session system-wide and cycles
// it through rotations while buffering. All mutating operations serialize
// on one mutex; overlapping calls are prevented by state gating, not by
// callers.
type Controller struct {
	deps Deps

	mu       sync.Mutex
	status   Status
	sourceID string

	stream *capture.Composite
	sess   *session.Recorder
	opts   session.Options

	completed     []capture.Chunk
	completedMime string

	sinceRotation  int
	rotationPeriod int
	bufferEstimate int64

	lastSave time.Time
	inflight *post.TaskSet

	ticker  clock.Ticker
	quit    chan struct{}
	runDone chan struct{}
}

func NewController(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.Log{}
	}
	return &Controller{
		deps:     deps,
		status:   StatusIdle,
		inflight: post.NewTaskSet(),
	}
}

// Status returns the current state machine status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// State returns the HUD readout.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := State{Status: c.status, BufferSeconds: c.rotationPeriod}
	switch c.status {
	case StatusBuffering:
		st.ElapsedSeconds = c.sinceRotation
		st.EstimatedBufferBytes = c.bufferEstimate
	case StatusRecording:
		if c.sess != nil {
			st.ElapsedSeconds = int(c.sess.Elapsed().Seconds())
		}
	}
	return st
}

// InFlightSaves reports post-processing jobs not yet completed.
func (c *Controller) InFlightSaves() int {
	return c.inflight.Len()
}

// StartBuffering acquires a stream and begins rotating a session so a
// completed clip of known length is always available. Legal only from
// Idle.
func (c *Controller) StartBuffering(ctx context.Context, sourceID string) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusIdle {
		return Rejected, nil
	}

	snap := c.deps.Settings()
	if err := c.acquireAndStartLocked(ctx, sourceID, snap); err != nil {
		err = fmt.Errorf("failed to start recording: %w", err)
		c.deps.Notifier.Error("start buffering", err)
		return Applied, err
	}

	c.sourceID = sourceID
	c.completed = nil
	c.completedMime = ""
	c.sinceRotation = 0
	c.rotationPeriod = snap.BufferSeconds
	c.bufferEstimate = session.EstimateMemory(snap.Resolution, snap.BufferSeconds)
	c.status = StatusBuffering
	c.startTickLoopLocked()

	slog.Info("buffering started", "source", sourceID, "rotationPeriod", c.rotationPeriod, "estimatedBytes", c.bufferEstimate)
	return Applied, nil
}

// acquireAndStartLocked builds the composite stream and a session on it.
func (c *Controller) acquireAndStartLocked(ctx context.Context, sourceID string, snap settings.Settings) error {
	stream, err := c.deps.Acquire(ctx, sourceID, snap)
	if err != nil {
		return err
	}

	c.opts = session.Options{
		MimeType:      session.SelectMimeType(c.deps.Prober),
		BitsPerSecond: session.BitrateFor(snap.Resolution),
		FrameRate:     settings.MaxFrameRate,
		Clock:         c.deps.Clock,
	}

	sess, err := session.Start(stream, c.deps.NewEncoder, c.opts)
	if err != nil {
		stream.Release()
		return err
	}

	c.stream = stream
	c.sess = sess
	return nil
}

func (c *Controller) startTickLoopLocked() {
	c.ticker = c.deps.Clock.NewTicker(time.Second)
	c.quit = make(chan struct{})
	c.runDone = make(chan struct{})
	go c.run(c.ticker, c.quit, c.runDone)
}

// stopTickLoopLocked clears the timer before any stream teardown so a tick
// can never fire against a released stream.
func (c *Controller) stopTickLoopLocked() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	if c.quit != nil {
		close(c.quit)
		c.quit = nil
	}
}

func (c *Controller) run(ticker clock.Ticker, quit chan struct{}, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-quit:
			return
		case <-ticker.C():
			c.Tick()
		}
	}
}

// Tick advances the controller by one second. Driven by the internal
// ticker in production and called directly by tests.
func (c *Controller) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.status {
	case StatusBuffering:
		c.sinceRotation++
		if c.sinceRotation >= c.rotationPeriod {
			c.rotateLocked()
		}
	case StatusRecording:
		if c.sess != nil && c.sess.Elapsed() >= session.ManualCap {
			slog.Info("manual recording hit hard cap, stopping")
			c.finishManualLocked()
		}
	}
}

// rotateLocked stops the current session, promotes its chunks to the
// completed slot, and immediately starts a fresh session on the same
// stream. The stream is never released mid-rotation; the handoff gap is
// bounded by one encoder flush.
func (c *Controller) rotateLocked() {
	chunks, err := c.sess.Stop(context.Background())
	if err != nil {
		slog.Warn("rotation stop reported error", "error", err)
	}

	c.completed = chunks
	c.completedMime = c.sess.MimeType()
	c.sinceRotation = 0

	sess, err := session.Start(c.sess.Stream(), c.deps.NewEncoder, c.opts)
	if err != nil {
		// Cannot keep buffering without a session; land safely in Idle.
		err = fmt.Errorf("failed to restart session after rotation: %w", err)
		c.deps.Notifier.Error("rotation", err)
		c.stopTickLoopLocked()
		c.stream.Release()
		c.stream = nil
		c.sess = nil
		c.status = StatusIdle
		return
	}
	c.sess = sess

	slog.Debug("rotation complete", "completedChunks", len(c.completed))
}

// SaveClip saves the most recent completed rotation without interrupting
// buffering. Legal only from Buffering. A rotation due in the same tick is
// processed first, so the saved clip is the just-completed segment.
func (c *Controller) SaveClip() (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusBuffering {
		return Rejected, nil
	}

	now := c.deps.Clock.Now()
	if !c.lastSave.IsZero() && now.Sub(c.lastSave) < saveDebounce {
		return Rejected, fmt.Errorf("please wait before saving another clip")
	}

	if c.sinceRotation >= c.rotationPeriod {
		c.rotateLocked()
		if c.status != StatusBuffering {
			return Applied, fmt.Errorf("buffering stopped during rotation")
		}
	}

	if len(c.completed) > 0 {
		// The current session keeps running uninterrupted; the rotation
		// counter completes naturally. Clip length == rotationPeriod.
		clip := c.completed
		mime := c.completedMime
		c.completed = nil
		c.completedMime = ""
		c.dispatchSaveLocked(clip, mime, "clip")
		c.lastSave = now
		return Applied, nil
	}

	// No completed rotation yet: cut the running session short. The stop
	// releases the stream, so buffering restarts on a fresh acquisition.
	chunks, err := c.sess.Stop(context.Background())
	if err != nil {
		slog.Warn("save stop reported error", "error", err)
	}
	mime := c.sess.MimeType()
	c.stream.Release()
	c.stream = nil
	c.sess = nil

	if len(chunks) == 0 {
		c.deps.Notifier.Error("save clip", fmt.Errorf("buffer is empty"))
	} else {
		c.dispatchSaveLocked(chunks, mime, "clip")
		c.lastSave = now
	}

	// Restart rotation before returning so the caller still sees
	// Buffering.
	snap := c.deps.Settings()
	if err := c.acquireAndStartLocked(context.Background(), c.sourceID, snap); err != nil {
		err = fmt.Errorf("failed to restart buffering after save: %w", err)
		c.deps.Notifier.Error("save clip", err)
		c.stopTickLoopLocked()
		c.status = StatusIdle
		return Applied, err
	}
	c.sinceRotation = 0
	return Applied, nil
}

// dispatchSaveLocked hands chunks to the pipeline without blocking on file
// writes; completion flows back through the notifier.
func (c *Controller) dispatchSaveLocked(chunks []capture.Chunk, mimeType, prefix string) {
	data := make([][]byte, len(chunks))
	for i, ch := range chunks {
		data[i] = ch.Data
	}

	task := c.deps.Saver.SaveVideo(data, mimeType, prefix)
	c.inflight.Track(task)

	notifier := c.deps.Notifier
	go func() {
		path, err := task.Wait()
		if err != nil {
			notifier.Error("save clip", err)
			return
		}
		notifier.Saved(path)
	}()
}

// StopBuffering cancels rotation and discards all chunks. Legal only from
// Buffering.
func (c *Controller) StopBuffering() (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusBuffering {
		return Rejected, nil
	}

	c.stopTickLoopLocked()
	c.teardownSessionLocked()
	c.completed = nil
	c.completedMime = ""
	c.status = StatusIdle

	slog.Info("buffering stopped")
	return Applied, nil
}

func (c *Controller) teardownSessionLocked() {
	if c.sess != nil {
		if _, err := c.sess.Stop(context.Background()); err != nil {
			slog.Warn("session stop reported error", "error", err)
		}
		c.sess = nil
	}
	if c.stream != nil {
		c.stream.Release()
		c.stream = nil
	}
}

// RestartBuffering rebuilds the capture pipeline after a settings change
// that requires it (aspect lock toggled, region appearing). Legal only
// from Buffering. Failure to re-acquire leaves the controller in Idle; no
// automatic retry.
func (c *Controller) RestartBuffering(ctx context.Context) (Transition, error) {
	c.mu.Lock()

	if c.status != StatusBuffering {
		c.mu.Unlock()
		return Rejected, nil
	}

	sourceID := c.sourceID
	c.stopTickLoopLocked()
	c.teardownSessionLocked()
	c.completed = nil
	c.completedMime = ""
	c.status = StatusIdle
	c.mu.Unlock()

	// Give OS-level capture handles time to fully release.
	c.deps.Clock.Sleep(restartPause)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusIdle {
		// Something else claimed the controller during the pause.
		return Rejected, nil
	}

	snap := c.deps.Settings()
	if err := c.acquireAndStartLocked(ctx, sourceID, snap); err != nil {
		err = fmt.Errorf("failed to restart buffering: %w", err)
		c.deps.Notifier.Error("restart buffering", err)
		return Applied, err
	}

	c.sinceRotation = 0
	c.rotationPeriod = snap.BufferSeconds
	c.bufferEstimate = session.EstimateMemory(snap.Resolution, snap.BufferSeconds)
	c.status = StatusBuffering
	c.startTickLoopLocked()

	slog.Info("buffering restarted", "source", sourceID, "estimatedBytes", c.bufferEstimate)
	return Applied, nil
}

// StartManualRecording begins a one-shot recording with the hard duration
// cap. Legal only from Idle; an active buffer must be stopped first.
func (c *Controller) StartManualRecording(ctx context.Context, sourceID string) (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusIdle {
		return Rejected, nil
	}

	snap := c.deps.Settings()
	if err := c.acquireAndStartLocked(ctx, sourceID, snap); err != nil {
		err = fmt.Errorf("failed to start recording: %w", err)
		c.deps.Notifier.Error("start recording", err)
		return Applied, err
	}

	c.sourceID = sourceID
	c.status = StatusRecording
	c.startTickLoopLocked()

	slog.Info("manual recording started", "source", sourceID)
	return Applied, nil
}

// StopManualRecording stops the one-shot recording and post-processes it.
// Legal only from Recording.
func (c *Controller) StopManualRecording() (Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusRecording {
		return Rejected, nil
	}

	c.finishManualLocked()
	return Applied, nil
}

func (c *Controller) finishManualLocked() {
	c.stopTickLoopLocked()

	chunks, err := c.sess.Stop(context.Background())
	if err != nil {
		slog.Warn("manual stop reported error", "error", err)
	}
	mime := c.sess.MimeType()

	c.stream.Release()
	c.stream = nil
	c.sess = nil

	if len(chunks) == 0 {
		c.deps.Notifier.Error("save recording", fmt.Errorf("no data recorded"))
	} else {
		c.dispatchSaveLocked(chunks, mime, "recording")
	}

	c.status = StatusIdle
	slog.Info("manual recording stopped", "chunks", len(chunks))
}
