// Package hotkey registers global keyboard shortcuts while the replay
// buffer runs in the background.
package hotkey

import (
	"log/slog"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// Manager binds global key combinations to callbacks.
type Manager struct {
	mu       sync.Mutex
	bindings []binding
	running  bool
}

type binding struct {
	keys     []string
	callback func()
}

func NewManager() *Manager {
	return &Manager{}
}

// Bind registers a combination such as ["ctrl", "f10"]. Must be called
// before Start.
func (m *Manager) Bind(keys []string, callback func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, binding{keys: keys, callback: callback})
}

// Start installs the hooks and blocks processing events until Stop.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	bindings := m.bindings
	m.mu.Unlock()

	for _, b := range bindings {
		b := b
		hook.Register(hook.KeyDown, b.keys, func(e hook.Event) {
			go b.callback()
		})
		slog.Info("registered global hotkey", "keys", strings.Join(b.keys, "+"))
	}

	s := hook.Start()
	<-hook.Process(s)

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

// Stop removes the hooks and unblocks Start.
func (m *Manager) Stop() {
	hook.End()
}
