package playback

// State is the play state reported to the callback.
type State int

const (
	StateIdle State = iota
	StateStopped
	StatePaused
	StateBuffering
	StatePlaying
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStopped:
		return "stopped"
	case StatePaused:
		return "paused"
	case StateBuffering:
		return "buffering"
	case StatePlaying:
		return "playing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// active reports whether s holds the wake, network and foreground resources.
func (s State) active() bool {
	return s == StateBuffering || s == StatePlaying
}

// FocusLevel is how much of the shared audio output the engine holds.
type FocusLevel int

const (
	FocusNone FocusLevel = iota
	FocusDuck
	FocusFull
)

func (f FocusLevel) String() string {
	switch f {
	case FocusNone:
		return "none"
	case FocusDuck:
		return "duck"
	case FocusFull:
		return "full"
	default:
		return "unknown"
	}
}

// FocusChange is a notification from the focus arbiter.
type FocusChange int

const (
	FocusGain FocusChange = iota + 1
	FocusLoss
	FocusLossTransient
	FocusLossTransientCanDuck
)

func (c FocusChange) String() string {
	switch c {
	case FocusGain:
		return "gain"
	case FocusLoss:
		return "loss"
	case FocusLossTransient:
		return "loss_transient"
	case FocusLossTransientCanDuck:
		return "loss_transient_can_duck"
	default:
		return "unknown"
	}
}

// Output volumes for each focus level.
const (
	VolumeDuck   = 0.2
	VolumeNormal = 1.0
)

// Device is the audio output. Load prepares asynchronously and reports
// through a DeviceListener; the other methods act on the loaded source.
type Device interface {
	Load(source string) error
	Start()
	Pause()
	SeekTo(positionMs int)
	// Position returns the playback position in milliseconds.
	Position() int
	IsPlaying() bool
	SetVolume(volume float64)
	// Reset unloads the current source and frees the decoder.
	Reset()
}

// DeviceListener receives device events. Events must be delivered on the
// goroutine that drives the Engine.
type DeviceListener interface {
	OnPrepared()
	OnSeekComplete()
	OnCompletion()
	OnError(message string)
}

// FocusListener receives focus changes from a FocusArbiter.
type FocusListener interface {
	OnFocusChange(change FocusChange)
}

// FocusArbiter grants the shared audio output to one listener at a time.
type FocusArbiter interface {
	Request(l FocusListener) bool
	Abandon(l FocusListener) bool
}

// Lock is a held system resource.
type Lock interface {
	Acquire()
	Release()
	Held() bool
}

// NoisySource reports that the audio output is about to become noisy, for
// example when headphones are unplugged.
type NoisySource interface {
	Register(onNoisy func())
	Unregister()
}

// Callback receives the engine's up-calls.
type Callback interface {
	OnPlaybackStatusChanged(state State)
	OnCompletion()
	OnError(message string)
}
