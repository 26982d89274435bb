// Package device provides the audio output and the system resources the
// playback engine negotiates with.
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"

	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/playback"
	sentryhelper "github.com/aposazhennikov/local-audio-player/sentry_helper"
)

const (
	// DefaultSampleRate is the output rate of the speaker.
	DefaultSampleRate = 44100
	bufferDuration    = 100 * time.Millisecond
	resampleQuality   = 4
)

// ErrUnsupportedFormat is returned by Load for files the decoders cannot play.
var ErrUnsupportedFormat = errors.New("device: unsupported audio format")

type loadedTrack struct {
	source   string
	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	gain     *effects.Volume
	finished atomic.Bool
}

// Speaker plays one track at a time on the system audio output.
type Speaker struct {
	mu          sync.Mutex
	sampleRate  beep.SampleRate
	initialized bool
	listener    playback.DeviceListener
	logger      *slog.Logger
	sentry      *sentryhelper.SentryHelper

	// generation is bumped on every load and reset so events of a replaced
	// track are dropped.
	generation uint64
	track      *loadedTrack
	volume     float64
}

// NewSpeaker returns a speaker that opens the audio output on first Load.
func NewSpeaker(sampleRate int, log *slog.Logger, sentry *sentryhelper.SentryHelper) *Speaker {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if log == nil {
		log = slog.Default()
	}
	return &Speaker{
		sampleRate: beep.SampleRate(sampleRate),
		logger:     logger.WithComponent(log, "speaker"),
		sentry:     sentry,
		volume:     playback.VolumeNormal,
	}
}

// SetListener installs the receiver of device events. Events are delivered
// from short-lived goroutines; the listener must hand them to the engine
// goroutine.
func (s *Speaker) SetListener(l playback.DeviceListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
}

func (s *Speaker) initLocked() error {
	if s.initialized {
		return nil
	}
	if err := speaker.Init(s.sampleRate, s.sampleRate.N(bufferDuration)); err != nil {
		s.sentry.CaptureError(err, "speaker", "init")
		return fmt.Errorf("init audio output: %w", err)
	}
	s.initialized = true
	s.logger.Info("Audio output opened", slog.Int("sample_rate", int(s.sampleRate)))
	return nil
}

// Load opens source and queues it paused on the output. OnPrepared follows
// once the decoder is ready.
func (s *Speaker) Load(source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
	if err := s.initLocked(); err != nil {
		return err
	}

	streamer, format, err := openSource(source)
	if err != nil {
		return err
	}

	var src beep.Streamer = streamer
	if format.SampleRate != s.sampleRate {
		src = beep.Resample(resampleQuality, format.SampleRate, s.sampleRate, streamer)
	}

	t := &loadedTrack{source: source, streamer: streamer, format: format}
	t.ctrl = &beep.Ctrl{Streamer: src, Paused: true}
	t.gain = &effects.Volume{Streamer: t.ctrl, Base: 2}
	applyVolume(t.gain, s.volume)

	s.generation++
	gen := s.generation
	s.track = t

	speaker.Play(beep.Seq(t.gain, beep.Callback(func() {
		// Runs on the speaker goroutine with the speaker locked.
		t.finished.Store(true)
		go s.notify(gen, func(l playback.DeviceListener) { l.OnCompletion() })
	})))

	s.logger.Debug("Track loaded",
		slog.String("source", source),
		slog.Int("sample_rate", int(format.SampleRate)),
		slog.Duration("length", format.SampleRate.D(streamer.Len())))

	go s.notify(gen, func(l playback.DeviceListener) { l.OnPrepared() })
	return nil
}

// openSource decodes the header of an MP3 or WAV file.
func openSource(source string) (beep.StreamSeekCloser, beep.Format, error) {
	f, err := os.Open(source)
	if err != nil {
		return nil, beep.Format{}, fmt.Errorf("open %s: %w", source, err)
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(source)); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		f.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", source, err)
	}
	return streamer, format, nil
}

func (s *Speaker) notify(gen uint64, fn func(playback.DeviceListener)) {
	s.mu.Lock()
	l := s.listener
	current := gen == s.generation
	s.mu.Unlock()

	if l == nil || !current {
		return
	}
	fn(l)
}

// Start resumes output of the loaded track.
func (s *Speaker) Start() {
	s.setPaused(false)
}

// Pause halts output, keeping the position.
func (s *Speaker) Pause() {
	s.setPaused(true)
}

func (s *Speaker) setPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return
	}
	speaker.Lock()
	s.track.ctrl.Paused = paused
	speaker.Unlock()
}

// SeekTo moves the loaded track to positionMs and reports OnSeekComplete.
func (s *Speaker) SeekTo(positionMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.track
	if t == nil {
		return
	}
	gen := s.generation

	n := t.format.SampleRate.N(time.Duration(positionMs) * time.Millisecond)
	if n >= t.streamer.Len() {
		n = t.streamer.Len() - 1
	}
	if n < 0 {
		n = 0
	}

	speaker.Lock()
	err := t.streamer.Seek(n)
	speaker.Unlock()

	if err != nil {
		s.sentry.CaptureError(err, "speaker", "seek")
		msg := fmt.Sprintf("seek %s: %v", t.source, err)
		go s.notify(gen, func(l playback.DeviceListener) { l.OnError(msg) })
		return
	}
	go s.notify(gen, func(l playback.DeviceListener) { l.OnSeekComplete() })
}

// Position returns the position of the loaded track in milliseconds.
func (s *Speaker) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil {
		return 0
	}
	speaker.Lock()
	p := s.track.streamer.Position()
	speaker.Unlock()
	return int(s.track.format.SampleRate.D(p) / time.Millisecond)
}

// IsPlaying reports whether the loaded track is being output.
func (s *Speaker) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.track == nil || s.track.finished.Load() {
		return false
	}
	speaker.Lock()
	defer speaker.Unlock()
	return !s.track.ctrl.Paused
}

// SetVolume sets the output gain; 1 is unchanged, 0 is silent.
func (s *Speaker) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = volume
	if s.track == nil {
		return
	}
	speaker.Lock()
	applyVolume(s.track.gain, volume)
	speaker.Unlock()
}

// Reset stops output and closes the loaded track.
func (s *Speaker) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Speaker) resetLocked() {
	s.generation++
	if s.track == nil {
		return
	}
	speaker.Clear()
	if err := s.track.streamer.Close(); err != nil {
		s.logger.Debug("Closing decoder failed", slog.String("source", s.track.source), slog.String("error", err.Error()))
	}
	s.track = nil
}

// applyVolume maps a linear gain onto the base-2 exponent effects.Volume uses.
func applyVolume(v *effects.Volume, gain float64) {
	if gain <= 0 {
		v.Silent = true
		return
	}
	v.Silent = false
	v.Volume = math.Log2(gain)
}
