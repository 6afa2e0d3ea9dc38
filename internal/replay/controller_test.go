package replay

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"clipdeck/internal/capture"
	"clipdeck/internal/clock"
	"clipdeck/internal/post"
	"clipdeck/internal/session"
	"clipdeck/internal/settings"
)

// --- fakes ---

type fakeEncoder struct {
	mime string
	out  chan capture.Chunk

	mu      sync.Mutex
	stopped bool
}

func (e *fakeEncoder) Start(time.Duration) error { return nil }

func (e *fakeEncoder) Chunks() <-chan capture.Chunk { return e.out }

func (e *fakeEncoder) Stop(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.stopped {
		e.stopped = true
		close(e.out)
	}
	return nil
}

func (e *fakeEncoder) MimeType() string { return e.mime }

func (e *fakeEncoder) Emit(data []byte) {
	e.out <- capture.Chunk{Data: data, At: time.Now()}
}

type encoderFactory struct {
	mu      sync.Mutex
	created []*fakeEncoder
	failMsg string
}

func (f *encoderFactory) factory(stream *capture.Composite, opts capture.EncoderOptions) (capture.Encoder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMsg != "" {
		return nil, fmt.Errorf("%s", f.failMsg)
	}
	enc := &fakeEncoder{mime: opts.MimeType, out: make(chan capture.Chunk, 256)}
	f.created = append(f.created, enc)
	return enc, nil
}

func (f *encoderFactory) latest() *fakeEncoder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[len(f.created)-1]
}

type fakeAcquire struct {
	mu       sync.Mutex
	acquired int
	streams  []*capture.Composite
	failMsg  string
}

func (f *fakeAcquire) acquire(ctx context.Context, sourceID string, snap settings.Settings) (*capture.Composite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failMsg != "" {
		return nil, fmt.Errorf("%s", f.failMsg)
	}
	f.acquired++
	comp := &capture.Composite{
		Video: &capture.FuncTrack{TrackKind: capture.TrackVideo},
	}
	f.streams = append(f.streams, comp)
	return comp, nil
}

func (f *fakeAcquire) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired
}

func (f *fakeAcquire) stream(i int) *capture.Composite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

type fakeSaver struct {
	mu    sync.Mutex
	calls []saveCall
}

type saveCall struct {
	chunks [][]byte
	mime   string
	prefix string
}

func (f *fakeSaver) SaveVideo(chunks [][]byte, mimeType, prefix string) *post.Task {
	f.mu.Lock()
	f.calls = append(f.calls, saveCall{chunks: chunks, mime: mimeType, prefix: prefix})
	f.mu.Unlock()

	task := post.NewTask()
	task.Finish("/recordings/clips/fake.mp4", nil)
	return task
}

func (f *fakeSaver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSaver) call(i int) saveCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fakeNotifier struct {
	mu     sync.Mutex
	saved  []string
	errors []string
}

func (f *fakeNotifier) Saved(path string) {
	f.mu.Lock()
	f.saved = append(f.saved, path)
	f.mu.Unlock()
}

func (f *fakeNotifier) Error(op string, err error) {
	f.mu.Lock()
	f.errors = append(f.errors, op+": "+err.Error())
	f.mu.Unlock()
}

func (f *fakeNotifier) errorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.errors)
}

type alwaysProber struct{}

func (alwaysProber) Supports(string) bool { return true }

// --- harness ---

type harness struct {
	ctrl     *Controller
	acquire  *fakeAcquire
	encoders *encoderFactory
	saver    *fakeSaver
	notifier *fakeNotifier
	clk      *clock.Mock
	snap     settings.Settings
}

func newHarness(bufferSeconds int) *harness {
	h := &harness{
		acquire:  &fakeAcquire{},
		encoders: &encoderFactory{},
		saver:    &fakeSaver{},
		notifier: &fakeNotifier{},
		clk:      clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	h.snap = settings.Default()
	h.snap.BufferSeconds = bufferSeconds

	h.ctrl = NewController(Deps{
		Acquire:    h.acquire.acquire,
		NewEncoder: h.encoders.factory,
		Prober:     alwaysProber{},
		Saver:      h.saver,
		Notifier:   h.notifier,
		Settings:   func() settings.Settings { return h.snap },
		Clock:      h.clk,
	})
	return h
}

// advance simulates n seconds of capture: one chunk emitted per second,
// then one controller tick.
func (h *harness) advance(n int) {
	for i := 0; i < n; i++ {
		h.encoders.latest().Emit([]byte{byte(i)})
		h.clk.Advance(time.Second)
		h.ctrl.Tick()
	}
}

// --- tests ---

func TestStartBufferingFromIdle(t *testing.T) {
	h := newHarness(30)

	tr, err := h.ctrl.StartBuffering(context.Background(), "screen:0")
	if tr != Applied || err != nil {
		t.Fatalf("StartBuffering = (%v, %v), want (Applied, nil)", tr, err)
	}
	if got := h.ctrl.Status(); got != StatusBuffering {
		t.Fatalf("status = %v, want buffering", got)
	}

	// Second start is an illegal transition and must no-op.
	tr, err = h.ctrl.StartBuffering(context.Background(), "screen:0")
	if tr != Rejected || err != nil {
		t.Fatalf("second StartBuffering = (%v, %v), want (Rejected, nil)", tr, err)
	}
	if h.acquire.count() != 1 {
		t.Fatalf("acquired %d streams, want 1", h.acquire.count())
	}
}

func TestRotationProducesCompletedSegment(t *testing.T) {
	h := newHarness(3)
	h.ctrl.StartBuffering(context.Background(), "screen:0")

	h.advance(3)

	st := h.ctrl.State()
	if st.Status != StatusBuffering {
		t.Fatalf("status = %v, want buffering", st.Status)
	}
	if st.ElapsedSeconds != 0 {
		t.Fatalf("rotation counter = %d, want 0 after rotation", st.ElapsedSeconds)
	}
	// Rotation reuses the same stream, no re-acquisition.
	if h.acquire.count() != 1 {
		t.Fatalf("acquired %d streams across rotation, want 1", h.acquire.count())
	}
	if h.acquire.stream(0).Released() {
		t.Fatal("stream was released mid-rotation")
	}

	// The completed segment is consumed by the next save.
	if _, err := h.ctrl.SaveClip(); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}
	if h.saver.callCount() != 1 {
		t.Fatalf("saver calls = %d, want 1", h.saver.callCount())
	}
	if got := len(h.saver.call(0).chunks); got != 3 {
		t.Fatalf("clip chunks = %d, want 3 (one full rotation)", got)
	}
}

func TestSaveClipKeepsBufferingAndCounter(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")

	h.advance(30) // one rotation at 30s
	h.advance(5)  // 5s into the next rotation

	if _, err := h.ctrl.SaveClip(); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}

	st := h.ctrl.State()
	if st.Status != StatusBuffering {
		t.Fatalf("status = %v, want buffering after save", st.Status)
	}
	if st.ElapsedSeconds != 5 {
		t.Fatalf("rotation counter = %d, want 5 (left to complete naturally)", st.ElapsedSeconds)
	}
	if got := len(h.saver.call(0).chunks); got != 30 {
		t.Fatalf("clip chunks = %d, want 30", got)
	}
	// The running session was not interrupted.
	if h.acquire.count() != 1 {
		t.Fatalf("acquired %d streams, want 1", h.acquire.count())
	}
}

func TestSaveClipBeforeFirstRotation(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")

	h.advance(5)

	if _, err := h.ctrl.SaveClip(); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}

	if got := len(h.saver.call(0).chunks); got != 5 {
		t.Fatalf("clip chunks = %d, want 5 (seconds since start)", got)
	}
	// The early stop released the stream; buffering restarted on a fresh
	// acquisition before returning.
	if h.acquire.count() != 2 {
		t.Fatalf("acquired %d streams, want 2", h.acquire.count())
	}
	if !h.acquire.stream(0).Released() {
		t.Fatal("old stream not released by early-save stop")
	}
	if got := h.ctrl.Status(); got != StatusBuffering {
		t.Fatalf("status = %v, want buffering", got)
	}
}

func TestSaveClipEmptyBuffer(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")

	// No chunks accumulated, no completed rotation.
	if _, err := h.ctrl.SaveClip(); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}

	if h.saver.callCount() != 0 {
		t.Fatalf("saver called %d times for an empty buffer, want 0", h.saver.callCount())
	}
	if h.notifier.errorCount() != 1 {
		t.Fatalf("error callbacks = %d, want exactly 1", h.notifier.errorCount())
	}
	if got := h.ctrl.Status(); got != StatusBuffering {
		t.Fatalf("status = %v, want buffering restarted", got)
	}
}

func TestSaveClipDebounce(t *testing.T) {
	h := newHarness(3)
	h.ctrl.StartBuffering(context.Background(), "screen:0")
	h.advance(3)

	if _, err := h.ctrl.SaveClip(); err != nil {
		t.Fatalf("first SaveClip: %v", err)
	}

	h.advance(1)
	if tr, err := h.ctrl.SaveClip(); tr != Rejected || err == nil {
		t.Fatalf("rapid second SaveClip = (%v, %v), want rejection", tr, err)
	}

	h.advance(3)
	if _, err := h.ctrl.SaveClip(); err != nil {
		t.Fatalf("SaveClip after debounce window: %v", err)
	}
}

func TestStopBufferingDiscardsChunks(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")
	h.advance(10)

	tr, err := h.ctrl.StopBuffering()
	if tr != Applied || err != nil {
		t.Fatalf("StopBuffering = (%v, %v)", tr, err)
	}

	if got := h.ctrl.Status(); got != StatusIdle {
		t.Fatalf("status = %v, want idle", got)
	}
	if h.saver.callCount() != 0 {
		t.Fatal("stop must discard chunks, not save them")
	}
	if !h.acquire.stream(0).Released() {
		t.Fatal("stream not released on stop")
	}
}

func TestRestartBuffering(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")
	h.advance(10)

	tr, err := h.ctrl.RestartBuffering(context.Background())
	if tr != Applied || err != nil {
		t.Fatalf("RestartBuffering = (%v, %v)", tr, err)
	}

	if got := h.ctrl.Status(); got != StatusBuffering {
		t.Fatalf("status = %v, want buffering", got)
	}
	if h.acquire.count() != 2 {
		t.Fatalf("acquired %d streams, want 2 (fresh acquisition)", h.acquire.count())
	}
	if !h.acquire.stream(0).Released() {
		t.Fatal("old stream not released before restart")
	}
	if got := h.ctrl.State().ElapsedSeconds; got != 0 {
		t.Fatalf("rotation counter = %d, want 0 after restart", got)
	}
}

func TestRestartBufferingFailureLandsIdle(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")

	h.acquire.mu.Lock()
	h.acquire.failMsg = "device gone"
	h.acquire.mu.Unlock()

	tr, err := h.ctrl.RestartBuffering(context.Background())
	if tr != Applied || err == nil {
		t.Fatalf("RestartBuffering = (%v, %v), want applied with error", tr, err)
	}
	if got := h.ctrl.Status(); got != StatusIdle {
		t.Fatalf("status = %v, want idle after failed restart", got)
	}
	if h.notifier.errorCount() == 0 {
		t.Fatal("restart failure not surfaced")
	}
}

func TestManualRecordingCap(t *testing.T) {
	h := newHarness(30)

	tr, err := h.ctrl.StartManualRecording(context.Background(), "screen:0")
	if tr != Applied || err != nil {
		t.Fatalf("StartManualRecording = (%v, %v)", tr, err)
	}

	h.encoders.latest().Emit([]byte("frame"))
	h.clk.Advance(session.ManualCap)
	h.ctrl.Tick()

	if got := h.ctrl.Status(); got != StatusIdle {
		t.Fatalf("status = %v, want idle after hard cap", got)
	}
	if h.saver.callCount() != 1 {
		t.Fatalf("saver calls = %d, want 1 (capped recording saved)", h.saver.callCount())
	}
	if got := h.saver.call(0).prefix; got != "recording" {
		t.Fatalf("save prefix = %q, want \"recording\"", got)
	}
}

func TestManualStop(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartManualRecording(context.Background(), "screen:0")
	h.advance(3)

	tr, err := h.ctrl.StopManualRecording()
	if tr != Applied || err != nil {
		t.Fatalf("StopManualRecording = (%v, %v)", tr, err)
	}
	if got := h.ctrl.Status(); got != StatusIdle {
		t.Fatalf("status = %v, want idle", got)
	}
	if got := len(h.saver.call(0).chunks); got != 3 {
		t.Fatalf("saved chunks = %d, want 3", got)
	}
	if !h.acquire.stream(0).Released() {
		t.Fatal("stream not released after manual stop")
	}
}

func TestMutualExclusion(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")

	tr, err := h.ctrl.StartManualRecording(context.Background(), "screen:0")
	if tr != Rejected || err != nil {
		t.Fatalf("StartManualRecording while buffering = (%v, %v), want (Rejected, nil)", tr, err)
	}
	if got := h.ctrl.Status(); got != StatusBuffering {
		t.Fatalf("status = %v, want buffering unchanged", got)
	}

	h.ctrl.StopBuffering()
	tr, err = h.ctrl.StartManualRecording(context.Background(), "screen:0")
	if tr != Applied || err != nil {
		t.Fatalf("StartManualRecording after stop = (%v, %v)", tr, err)
	}
}

func TestIllegalTransitionsNoOp(t *testing.T) {
	h := newHarness(30)

	if tr, _ := h.ctrl.SaveClip(); tr != Rejected {
		t.Fatal("SaveClip from idle must be rejected")
	}
	if tr, _ := h.ctrl.StopBuffering(); tr != Rejected {
		t.Fatal("StopBuffering from idle must be rejected")
	}
	if tr, _ := h.ctrl.StopManualRecording(); tr != Rejected {
		t.Fatal("StopManualRecording from idle must be rejected")
	}
	if tr, _ := h.ctrl.RestartBuffering(context.Background()); tr != Rejected {
		t.Fatal("RestartBuffering from idle must be rejected")
	}
	if got := h.ctrl.Status(); got != StatusIdle {
		t.Fatalf("status corrupted to %v by illegal transitions", got)
	}
}

func TestAcquisitionFailureStaysIdle(t *testing.T) {
	h := newHarness(30)
	h.acquire.failMsg = "permission denied"

	tr, err := h.ctrl.StartBuffering(context.Background(), "screen:0")
	if tr != Applied || err == nil {
		t.Fatalf("StartBuffering = (%v, %v), want applied with error", tr, err)
	}
	if got := h.ctrl.Status(); got != StatusIdle {
		t.Fatalf("status = %v, want idle", got)
	}
	if h.notifier.errorCount() != 1 {
		t.Fatalf("error callbacks = %d, want 1", h.notifier.errorCount())
	}
}

func TestStateReportsMemoryEstimate(t *testing.T) {
	h := newHarness(30)
	h.snap.Resolution = settings.Res1080p

	h.ctrl.StartBuffering(context.Background(), "screen:0")

	st := h.ctrl.State()
	if st.EstimatedBufferBytes <= 0 {
		t.Fatal("buffering must report a memory estimate")
	}
	if want := session.EstimateMemory(settings.Res1080p, 30); st.EstimatedBufferBytes != want {
		t.Fatalf("estimate = %d, want %d", st.EstimatedBufferBytes, want)
	}

	h.ctrl.StopBuffering()
	if got := h.ctrl.State().EstimatedBufferBytes; got != 0 {
		t.Fatalf("idle estimate = %d, want 0", got)
	}
}

func TestEndToEndBufferScenario(t *testing.T) {
	h := newHarness(30)
	h.ctrl.StartBuffering(context.Background(), "screen:0")

	h.advance(35) // rotation at 30s, then 5 more seconds

	if _, err := h.ctrl.SaveClip(); err != nil {
		t.Fatalf("SaveClip: %v", err)
	}

	if h.saver.callCount() != 1 {
		t.Fatalf("saved files = %d, want exactly 1", h.saver.callCount())
	}
	if got := len(h.saver.call(0).chunks); got != 30 {
		t.Fatalf("clip represents %d seconds, want 30", got)
	}

	st := h.ctrl.State()
	if st.Status != StatusBuffering {
		t.Fatalf("status = %v, want buffering continues", st.Status)
	}
	if st.ElapsedSeconds != 5 {
		t.Fatalf("rotation counter = %d, want 5 seconds since rotation", st.ElapsedSeconds)
	}

	// In-flight saves drain.
	deadline := time.After(2 * time.Second)
	for h.ctrl.InFlightSaves() > 0 {
		select {
		case <-deadline:
			t.Fatal("post-processing task never completed")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
