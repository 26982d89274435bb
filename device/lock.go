package device

import (
	"log/slog"
	"sync"
)

// HeldLock is a named system resource kept while the player is active.
// Acquire and Release are idempotent.
type HeldLock struct {
	name   string
	logger *slog.Logger

	mu   sync.Mutex
	held bool
}

// NewLock returns a released lock.
func NewLock(name string, logger *slog.Logger) *HeldLock {
	if logger == nil {
		logger = slog.Default()
	}
	resourceHeld.WithLabelValues(name).Set(0)
	return &HeldLock{name: name, logger: logger}
}

func (l *HeldLock) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return
	}
	l.held = true
	resourceHeld.WithLabelValues(l.name).Set(1)
	l.logger.Debug("Resource acquired", slog.String("resource", l.name))
}

func (l *HeldLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return
	}
	l.held = false
	resourceHeld.WithLabelValues(l.name).Set(0)
	l.logger.Debug("Resource released", slog.String("resource", l.name))
}

func (l *HeldLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// Name returns the resource name.
func (l *HeldLock) Name() string {
	return l.name
}
