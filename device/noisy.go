package device

import (
	"log/slog"
	"sync"
)

// Noisy delivers "output becoming noisy" events, such as headphones being
// unplugged, to the one registered handler.
type Noisy struct {
	mu      sync.Mutex
	handler func()
	logger  *slog.Logger
}

// NewNoisy returns a source with no handler.
func NewNoisy(logger *slog.Logger) *Noisy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Noisy{logger: logger}
}

func (n *Noisy) Register(handler func()) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = handler
	resourceHeld.WithLabelValues("noisy_listener").Set(1)
}

func (n *Noisy) Unregister() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handler = nil
	resourceHeld.WithLabelValues("noisy_listener").Set(0)
}

// Registered reports whether a handler is installed.
func (n *Noisy) Registered() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.handler != nil
}

// Trigger runs the handler and reports whether one was registered.
func (n *Noisy) Trigger() bool {
	n.mu.Lock()
	h := n.handler
	n.mu.Unlock()
	if h == nil {
		n.logger.Debug("Noisy event with no listener")
		return false
	}
	n.logger.Info("Audio output becoming noisy")
	h()
	return true
}
