package clock

import (
	"sync"
	"time"
)

// Clock abstracts time so rotation and cap logic can be driven by a fake
// during unit tests.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the recording code needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real implements Clock using the actual system time.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

func (Real) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Mock implements Clock for tests. Now starts at a fixed instant and moves
// only when Advance is called. Sleep returns immediately and tickers never
// fire on their own; tests drive the code under test directly.
type Mock struct {
	mu  sync.Mutex
	now time.Time
}

func NewMock(start time.Time) *Mock {
	return &Mock{now: start}
}

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Mock) Sleep(time.Duration) {}

func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *Mock) NewTicker(time.Duration) Ticker {
	return &mockTicker{ch: make(chan time.Time)}
}

// mockTicker never fires. Like time.Ticker, Stop does not close the channel.
type mockTicker struct {
	ch chan time.Time
}

func (t *mockTicker) C() <-chan time.Time { return t.ch }
func (t *mockTicker) Stop()               {}
