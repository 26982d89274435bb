// Package playback implements the player state machine.
//
// The Engine owns the output device and the shared-output focus. It is
// driven from a single goroutine: commands, focus changes and device events
// must all be delivered on that goroutine. The Engine does no locking.
package playback

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/queue"
	sentryhelper "github.com/aposazhennikov/local-audio-player/sentry_helper"
)

// ErrNoSource is returned by Play for an entry without a playable file.
var ErrNoSource = errors.New("playback: entry has no source")

// TrackResolver looks up the current version of a queued track.
type TrackResolver interface {
	TrackByMediaID(mediaID string) (*catalog.Track, bool)
}

// Resources groups the system resources held while playing.
type Resources struct {
	WakeLock    Lock
	NetworkLock Lock
	Foreground  Lock
	Noisy       NoisySource
}

// Options configures an Engine.
type Options struct {
	Device Device
	// Arbiter defaults to one that always grants focus.
	Arbiter FocusArbiter
	// FocusListener is what the engine registers with the arbiter. It must
	// forward changes to OnFocusChange on the engine goroutine. Defaults to
	// the engine itself.
	FocusListener FocusListener
	Tracks        TrackResolver
	Resources     Resources
	// OnNoisy runs when the noisy source fires. Defaults to Pause.
	OnNoisy func()
	Logger  *slog.Logger
	Sentry  *sentryhelper.SentryHelper
}

// Engine is the playback state machine.
type Engine struct {
	device        Device
	arbiter       FocusArbiter
	focusListener FocusListener
	tracks        TrackResolver
	res           Resources
	onNoisy       func()
	callback      Callback
	logger        *slog.Logger
	sentry        *sentryhelper.SentryHelper

	state           State
	focus           FocusLevel
	playOnFocusGain bool
	position        int
	mediaID         string
	prepared        bool
	noisyRegistered bool
}

// NewEngine creates an idle engine.
func NewEngine(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Arbiter == nil {
		opts.Arbiter = grantAll{}
	}
	e := &Engine{
		device:  opts.Device,
		arbiter: opts.Arbiter,
		tracks:  opts.Tracks,
		res:     withDefaults(opts.Resources),
		onNoisy: opts.OnNoisy,
		logger:  logger.WithComponent(opts.Logger, "playback"),
		sentry:  opts.Sentry,
		state:   StateIdle,
	}
	e.focusListener = opts.FocusListener
	if e.focusListener == nil {
		e.focusListener = e
	}
	if e.onNoisy == nil {
		e.onNoisy = func() {
			if e.IsPlaying() {
				e.Pause()
			}
		}
	}
	return e
}

// SetCallback installs the receiver of status, completion and error up-calls.
func (e *Engine) SetCallback(cb Callback) {
	e.callback = cb
}

// State returns the play state.
func (e *Engine) State() State { return e.state }

// Focus returns the focus level.
func (e *Engine) Focus() FocusLevel { return e.focus }

// MediaID returns the flat id of the loaded track.
func (e *Engine) MediaID() string { return e.mediaID }

// ResumePosition returns the remembered position in milliseconds.
func (e *Engine) ResumePosition() int { return e.position }

// WasPlaying reports whether playback resumes on the next focus gain.
func (e *Engine) WasPlaying() bool { return e.playOnFocusGain }

// IsPlaying reports whether the engine is playing or about to.
func (e *Engine) IsPlaying() bool {
	return e.playOnFocusGain || e.device.IsPlaying()
}

// Position returns the live position of the loaded track in milliseconds.
func (e *Engine) Position() int {
	if e.prepared {
		return e.device.Position()
	}
	return e.position
}

// Play starts or resumes entry.
func (e *Engine) Play(entry queue.Entry) error {
	source, mediaID, err := e.resolve(entry)
	if err != nil {
		return err
	}

	e.playOnFocusGain = true
	e.requestFocus()
	e.registerNoisy()
	commandsTotal.WithLabelValues("play").Inc()

	changed := mediaID != e.mediaID
	if changed {
		e.position = 0
		e.mediaID = mediaID
	}

	if e.state == StatePaused && !changed && e.prepared {
		e.configure()
		return nil
	}

	e.setState(StateStopped)
	e.relaxResources(false)
	e.device.Reset()
	e.prepared = false

	logger.LogPlaybackEvent(e.logger, slog.LevelInfo, "Loading track", mediaID, StateBuffering.String(),
		slog.String("source", source))
	if err := e.device.Load(source); err != nil {
		e.OnError(fmt.Sprintf("load %s: %v", source, err))
		return err
	}
	e.setState(StateBuffering)
	e.report()
	return nil
}

func (e *Engine) resolve(entry queue.Entry) (string, string, error) {
	if entry.Track == nil {
		return "", "", ErrNoSource
	}
	mediaID := entry.Track.MediaID()
	source := entry.Track.Source
	if e.tracks != nil {
		if t, ok := e.tracks.TrackByMediaID(mediaID); ok {
			source = t.Source
		}
	}
	if source == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNoSource, mediaID)
	}
	return source, mediaID, nil
}

// Pause pauses playback and gives up the focus. Playback does not resume on
// a later focus gain.
func (e *Engine) Pause() {
	commandsTotal.WithLabelValues("pause").Inc()
	e.playOnFocusGain = false
	e.pause()
}

func (e *Engine) pause() {
	if !e.state.active() {
		e.logger.Debug("Pause ignored", slog.String("state", e.state.String()))
		return
	}
	if e.device.IsPlaying() {
		e.device.Pause()
	}
	e.position = e.Position()
	e.setState(StatePaused)
	e.relaxResources(false)
	e.abandonFocus()
	e.unregisterNoisy()
	e.report()
}

// Stop halts playback and releases the device. The status is reported
// only when notify is set.
func (e *Engine) Stop(notify bool) {
	commandsTotal.WithLabelValues("stop").Inc()
	e.position = e.Position()
	e.setState(StateStopped)
	if notify {
		e.report()
	}
	e.abandonFocus()
	e.unregisterNoisy()
	e.relaxResources(true)
	e.playOnFocusGain = false
}

// SeekTo moves to positionMs. Without a prepared device the position is
// kept for the next start.
func (e *Engine) SeekTo(positionMs int) {
	commandsTotal.WithLabelValues("seek").Inc()
	if positionMs < 0 {
		positionMs = 0
	}
	if !e.prepared {
		e.position = positionMs
		return
	}
	if e.device.IsPlaying() {
		e.setState(StateBuffering)
	}
	e.device.SeekTo(positionMs)
	e.report()
}

// OnFocusChange applies a change reported by the arbiter.
func (e *Engine) OnFocusChange(change FocusChange) {
	e.logger.Debug("Focus change", slog.String("change", change.String()), slog.String("state", e.state.String()))

	switch change {
	case FocusGain:
		e.focus = FocusFull
	case FocusLoss, FocusLossTransient, FocusLossTransientCanDuck:
		canDuck := change == FocusLossTransientCanDuck
		if canDuck {
			e.focus = FocusDuck
		} else {
			e.focus = FocusNone
		}
		if e.state == StatePlaying && !canDuck {
			e.playOnFocusGain = true
		}
	default:
		e.logger.Warn("Ignoring unknown focus change", slog.Int("change", int(change)))
	}
	e.configure()
}

// OnPrepared marks the loaded source ready and applies the focus level.
func (e *Engine) OnPrepared() {
	e.prepared = true
	e.configure()
}

// OnSeekComplete resumes playback interrupted by a seek.
func (e *Engine) OnSeekComplete() {
	e.position = e.device.Position()
	if e.state == StateBuffering {
		e.device.Start()
		e.setState(StatePlaying)
	}
	e.report()
}

// OnCompletion handles the end of the loaded track.
func (e *Engine) OnCompletion() {
	e.position = 0
	if e.callback != nil {
		e.callback.OnCompletion()
	}
}

// OnError moves to StateError, reports message and stops.
func (e *Engine) OnError(message string) {
	e.logger.Error("Playback error", slog.String("media_id", e.mediaID), slog.String("error", message))
	e.sentry.CaptureExceptionWithContext(errors.New(message),
		map[string]string{"component": "playback", "operation": "device"},
		map[string]interface{}{"media_id": e.mediaID, "position_ms": e.position})

	e.setState(StateError)
	if e.callback != nil {
		e.callback.OnError(message)
	}
	e.Stop(false)
}

// configure applies the focus level to the device and resumes playback
// that is waiting for focus.
func (e *Engine) configure() {
	if e.focus == FocusNone {
		if e.state == StatePlaying {
			e.pause()
			return
		}
		// A prepared track waiting for focus stays BUFFERING and keeps its
		// resources until focus returns, or Pause or Stop.
		e.report()
		return
	}

	if e.focus == FocusDuck {
		e.device.SetVolume(VolumeDuck)
	} else {
		e.device.SetVolume(VolumeNormal)
	}

	if e.playOnFocusGain && e.prepared {
		if e.device.Position() == e.position {
			e.device.Start()
			e.setState(StatePlaying)
		} else {
			e.device.SeekTo(e.position)
			e.setState(StateBuffering)
		}
		e.registerNoisy()
		e.playOnFocusGain = false
	}
	e.report()
}

func (e *Engine) setState(s State) {
	prev := e.state
	if prev == s {
		return
	}
	e.state = s
	stateTransitions.WithLabelValues(s.String()).Inc()
	e.sentry.AddBreadcrumb("playback", "state "+s.String(), sentry.LevelInfo, map[string]interface{}{
		"from":     prev.String(),
		"media_id": e.mediaID,
	})

	switch {
	case s.active() && !prev.active():
		e.res.WakeLock.Acquire()
		e.res.NetworkLock.Acquire()
		e.res.Foreground.Acquire()
	case !s.active() && prev.active():
		e.relaxResources(false)
	}
}

func (e *Engine) relaxResources(releaseDevice bool) {
	e.res.Foreground.Release()
	e.res.WakeLock.Release()
	e.res.NetworkLock.Release()
	if releaseDevice {
		e.device.Reset()
		e.prepared = false
	}
}

func (e *Engine) requestFocus() {
	if e.focus == FocusFull {
		return
	}
	if e.arbiter.Request(e.focusListener) {
		e.focus = FocusFull
	} else {
		e.logger.Warn("Audio focus denied")
	}
}

func (e *Engine) abandonFocus() {
	if e.focus == FocusNone {
		return
	}
	if e.arbiter.Abandon(e.focusListener) {
		e.focus = FocusNone
	}
}

func (e *Engine) registerNoisy() {
	if e.noisyRegistered {
		return
	}
	e.res.Noisy.Register(e.onNoisy)
	e.noisyRegistered = true
}

func (e *Engine) unregisterNoisy() {
	if !e.noisyRegistered {
		return
	}
	e.res.Noisy.Unregister()
	e.noisyRegistered = false
}

func (e *Engine) report() {
	if e.callback != nil {
		e.callback.OnPlaybackStatusChanged(e.state)
	}
}

type grantAll struct{}

func (grantAll) Request(FocusListener) bool { return true }
func (grantAll) Abandon(FocusListener) bool { return true }

type noLock struct{}

func (noLock) Acquire()   {}
func (noLock) Release()   {}
func (noLock) Held() bool { return false }

type noNoisy struct{}

func (noNoisy) Register(func()) {}
func (noNoisy) Unregister()     {}

func withDefaults(r Resources) Resources {
	if r.WakeLock == nil {
		r.WakeLock = noLock{}
	}
	if r.NetworkLock == nil {
		r.NetworkLock = noLock{}
	}
	if r.Foreground == nil {
		r.Foreground = noLock{}
	}
	if r.Noisy == nil {
		r.Noisy = noNoisy{}
	}
	return r
}
