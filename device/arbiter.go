package device

import (
	"log/slog"
	"sync"

	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/playback"
)

type holder struct {
	listener  playback.FocusListener
	transient bool
}

// Arbiter shares the audio output between in-process clients. The most
// recent requester holds the focus; transient holders hand it back to the
// client below them when they abandon it.
type Arbiter struct {
	mu     sync.Mutex
	stack  []holder
	logger *slog.Logger
}

// NewArbiter returns an arbiter with no focus holder.
func NewArbiter(log *slog.Logger) *Arbiter {
	if log == nil {
		log = slog.Default()
	}
	return &Arbiter{logger: logger.WithComponent(log, "focus")}
}

// Request grants l the focus permanently. The previous holder loses it for
// good and leaves the stack.
func (a *Arbiter) Request(l playback.FocusListener) bool {
	a.mu.Lock()
	a.remove(l)
	var losers []playback.FocusListener
	for _, h := range a.stack {
		losers = append(losers, h.listener)
	}
	a.stack = []holder{{listener: l}}
	a.mu.Unlock()

	for _, loser := range losers {
		loser.OnFocusChange(playback.FocusLoss)
	}
	a.logger.Debug("Focus granted", slog.Int("displaced", len(losers)))
	return true
}

// RequestTransient grants l the focus until it abandons it. The previous
// holder is told to pause, or to lower its volume when mayDuck is set.
func (a *Arbiter) RequestTransient(l playback.FocusListener, mayDuck bool) bool {
	a.mu.Lock()
	a.remove(l)
	var prev playback.FocusListener
	if n := len(a.stack); n > 0 {
		prev = a.stack[n-1].listener
	}
	a.stack = append(a.stack, holder{listener: l, transient: true})
	a.mu.Unlock()

	if prev != nil {
		change := playback.FocusLossTransient
		if mayDuck {
			change = playback.FocusLossTransientCanDuck
		}
		prev.OnFocusChange(change)
	}
	a.logger.Debug("Transient focus granted", slog.Bool("duck", mayDuck))
	return true
}

// Abandon releases l's focus. When l was on top, the next holder regains it.
func (a *Arbiter) Abandon(l playback.FocusListener) bool {
	a.mu.Lock()
	n := len(a.stack)
	wasTop := n > 0 && a.stack[n-1].listener == l
	a.remove(l)
	var next playback.FocusListener
	if wasTop && len(a.stack) > 0 {
		next = a.stack[len(a.stack)-1].listener
	}
	a.mu.Unlock()

	if next != nil {
		next.OnFocusChange(playback.FocusGain)
	}
	return true
}

// Holder returns the current focus holder, if any.
func (a *Arbiter) Holder() playback.FocusListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.stack) == 0 {
		return nil
	}
	return a.stack[len(a.stack)-1].listener
}

func (a *Arbiter) remove(l playback.FocusListener) {
	kept := a.stack[:0]
	for _, h := range a.stack {
		if h.listener != l {
			kept = append(kept, h)
		}
	}
	a.stack = kept
}

// Interruption is an external client of the arbiter, such as a
// notification sound or a voice call, that briefly takes the output.
type Interruption struct {
	arbiter *Arbiter
	name    string
	logger  *slog.Logger

	mu     sync.Mutex
	active bool
}

// NewInterruption returns a client named name.
func NewInterruption(a *Arbiter, name string) *Interruption {
	return &Interruption{arbiter: a, name: name, logger: a.logger.With("client", name)}
}

// Begin takes the focus transiently.
func (i *Interruption) Begin(mayDuck bool) bool {
	i.mu.Lock()
	i.active = true
	i.mu.Unlock()
	i.logger.Info("Interruption started", slog.Bool("duck", mayDuck))
	return i.arbiter.RequestTransient(i, mayDuck)
}

// End gives the focus back.
func (i *Interruption) End() bool {
	i.mu.Lock()
	wasActive := i.active
	i.active = false
	i.mu.Unlock()
	if !wasActive {
		return false
	}
	i.logger.Info("Interruption ended")
	return i.arbiter.Abandon(i)
}

// Active reports whether the interruption holds or waits for the focus.
func (i *Interruption) Active() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// OnFocusChange ends the interruption when another client takes the
// output for good.
func (i *Interruption) OnFocusChange(change playback.FocusChange) {
	i.logger.Debug("Interruption focus change", slog.String("change", change.String()))
	if change == playback.FocusLoss {
		i.mu.Lock()
		i.active = false
		i.mu.Unlock()
	}
}
