package playback_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/playback"
	"github.com/aposazhennikov/local-audio-player/queue"
)

type fakeDevice struct {
	loads    []string
	loadErr  error
	starts   int
	pauses   int
	resets   int
	seeks    []int
	position int
	playing  bool
	volume   float64
}

func (d *fakeDevice) Load(source string) error {
	d.loads = append(d.loads, source)
	return d.loadErr
}
func (d *fakeDevice) Start()   { d.starts++; d.playing = true }
func (d *fakeDevice) Pause()   { d.pauses++; d.playing = false }
func (d *fakeDevice) Reset()   { d.resets++; d.playing = false; d.position = 0 }
func (d *fakeDevice) SeekTo(ms int) {
	d.seeks = append(d.seeks, ms)
	d.position = ms
}
func (d *fakeDevice) Position() int          { return d.position }
func (d *fakeDevice) IsPlaying() bool        { return d.playing }
func (d *fakeDevice) SetVolume(v float64)    { d.volume = v }

type fakeArbiter struct {
	deny     bool
	requests int
	abandons int
}

func (a *fakeArbiter) Request(playback.FocusListener) bool {
	a.requests++
	return !a.deny
}

func (a *fakeArbiter) Abandon(playback.FocusListener) bool {
	a.abandons++
	return true
}

type fakeLock struct{ held bool }

func (l *fakeLock) Acquire()   { l.held = true }
func (l *fakeLock) Release()   { l.held = false }
func (l *fakeLock) Held() bool { return l.held }

type fakeNoisy struct{ handler func() }

func (n *fakeNoisy) Register(h func()) { n.handler = h }
func (n *fakeNoisy) Unregister()       { n.handler = nil }

type recorder struct {
	states      []playback.State
	completions int
	errors      []string
}

func (r *recorder) OnPlaybackStatusChanged(s playback.State) { r.states = append(r.states, s) }
func (r *recorder) OnCompletion()                            { r.completions++ }
func (r *recorder) OnError(msg string)                       { r.errors = append(r.errors, msg) }

func (r *recorder) last() playback.State {
	if len(r.states) == 0 {
		return -1
	}
	return r.states[len(r.states)-1]
}

type harness struct {
	engine  *playback.Engine
	device  *fakeDevice
	arbiter *fakeArbiter
	wake    *fakeLock
	network *fakeLock
	fg      *fakeLock
	noisy   *fakeNoisy
	rec     *recorder
}

func newHarness() *harness {
	h := &harness{
		device:  &fakeDevice{},
		arbiter: &fakeArbiter{},
		wake:    &fakeLock{},
		network: &fakeLock{},
		fg:      &fakeLock{},
		noisy:   &fakeNoisy{},
		rec:     &recorder{},
	}
	h.engine = playback.NewEngine(playback.Options{
		Device:  h.device,
		Arbiter: h.arbiter,
		Resources: playback.Resources{
			WakeLock:    h.wake,
			NetworkLock: h.network,
			Foreground:  h.fg,
			Noisy:       h.noisy,
		},
	})
	h.engine.SetCallback(h.rec)
	return h
}

func (h *harness) held() bool {
	return h.wake.held && h.network.held && h.fg.held
}

func (h *harness) released() bool {
	return !h.wake.held && !h.network.held && !h.fg.held
}

func entry(id int64) queue.Entry {
	tr := &catalog.Track{ID: id, Source: "/music/track.mp3"}
	return queue.Entry{Track: tr, MediaID: tr.MediaID()}
}

// startPlaying loads e and delivers the prepared event.
func (h *harness) startPlaying(t *testing.T, e queue.Entry) {
	t.Helper()
	require.NoError(t, h.engine.Play(e))
	h.engine.OnPrepared()
	require.Equal(t, playback.StatePlaying, h.engine.State())
}

func TestPlayPauseResume(t *testing.T) {
	h := newHarness()
	a := entry(1)

	require.NoError(t, h.engine.Play(a))
	assert.Equal(t, playback.StateBuffering, h.engine.State())
	assert.Equal(t, playback.FocusFull, h.engine.Focus())
	assert.True(t, h.held())
	assert.NotNil(t, h.noisy.handler)

	h.engine.OnPrepared()
	assert.Equal(t, playback.StatePlaying, h.engine.State())
	assert.Equal(t, playback.VolumeNormal, h.device.volume)
	assert.Equal(t, 1, h.device.starts)

	h.device.position = 1500
	h.engine.Pause()
	assert.Equal(t, playback.StatePaused, h.engine.State())
	assert.Equal(t, 1500, h.engine.ResumePosition())
	assert.True(t, h.released())
	assert.Nil(t, h.noisy.handler)
	assert.Equal(t, playback.FocusNone, h.engine.Focus())
	assert.Equal(t, 1, h.arbiter.abandons)

	require.NoError(t, h.engine.Play(a))
	assert.Equal(t, playback.StatePlaying, h.engine.State())
	assert.Equal(t, 1500, h.engine.ResumePosition())
	assert.Len(t, h.device.loads, 1)
	assert.Empty(t, h.device.seeks)
	assert.True(t, h.held())

	assert.Equal(t, []playback.State{
		playback.StateBuffering,
		playback.StatePlaying,
		playback.StatePaused,
		playback.StatePlaying,
	}, h.rec.states)
}

func TestFocusLossAndRegain(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))
	h.device.position = 4200

	h.engine.OnFocusChange(playback.FocusLossTransient)
	assert.Equal(t, playback.StatePaused, h.engine.State())
	assert.Equal(t, playback.FocusNone, h.engine.Focus())
	assert.True(t, h.engine.WasPlaying())
	assert.Equal(t, 4200, h.engine.ResumePosition())
	assert.True(t, h.released())
	assert.Zero(t, h.arbiter.abandons)

	h.engine.OnFocusChange(playback.FocusGain)
	assert.Equal(t, playback.StatePlaying, h.engine.State())
	assert.Equal(t, playback.FocusFull, h.engine.Focus())
	assert.False(t, h.engine.WasPlaying())
	assert.Equal(t, 2, h.device.starts)
	assert.True(t, h.held())
	assert.NotNil(t, h.noisy.handler)
}

func TestUserPauseDoesNotResumeOnGain(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))

	h.engine.OnFocusChange(playback.FocusLossTransient)
	h.engine.Pause()
	assert.False(t, h.engine.WasPlaying())

	h.engine.OnFocusChange(playback.FocusGain)
	assert.Equal(t, playback.StatePaused, h.engine.State())
	assert.Equal(t, 1, h.device.starts)
}

func TestDuckLowersVolume(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))

	h.engine.OnFocusChange(playback.FocusLossTransientCanDuck)
	assert.Equal(t, playback.StatePlaying, h.engine.State())
	assert.Equal(t, playback.FocusDuck, h.engine.Focus())
	assert.Equal(t, playback.VolumeDuck, h.device.volume)
	assert.False(t, h.engine.WasPlaying())

	h.engine.OnFocusChange(playback.FocusGain)
	assert.Equal(t, playback.VolumeNormal, h.device.volume)
	assert.Equal(t, playback.StatePlaying, h.engine.State())
}

func TestPlayOtherTrackReloads(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))
	h.device.position = 9000
	h.engine.Pause()

	require.NoError(t, h.engine.Play(entry(2)))
	assert.Equal(t, playback.StateBuffering, h.engine.State())
	assert.Equal(t, "2", h.engine.MediaID())
	assert.Zero(t, h.engine.ResumePosition())
	assert.Len(t, h.device.loads, 2)

	h.engine.OnPrepared()
	assert.Equal(t, playback.StatePlaying, h.engine.State())
	assert.Empty(t, h.device.seeks)
}

func TestSeekWhilePlaying(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))

	h.engine.SeekTo(30000)
	assert.Equal(t, playback.StateBuffering, h.engine.State())
	assert.Equal(t, []int{30000}, h.device.seeks)

	h.engine.OnSeekComplete()
	assert.Equal(t, playback.StatePlaying, h.engine.State())
	assert.Equal(t, 30000, h.engine.ResumePosition())
	assert.True(t, h.held())
}

func TestSeekBeforePreparedIsApplied(t *testing.T) {
	h := newHarness()
	require.NoError(t, h.engine.Play(entry(1)))

	h.engine.SeekTo(12000)
	assert.Empty(t, h.device.seeks)
	assert.Equal(t, 12000, h.engine.ResumePosition())

	h.engine.OnPrepared()
	assert.Equal(t, playback.StateBuffering, h.engine.State())
	assert.Equal(t, []int{12000}, h.device.seeks)

	h.engine.OnSeekComplete()
	assert.Equal(t, playback.StatePlaying, h.engine.State())
}

func TestStopReleasesEverything(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))
	resets := h.device.resets

	h.engine.Stop(true)
	assert.Equal(t, playback.StateStopped, h.engine.State())
	assert.Equal(t, playback.StateStopped, h.rec.last())
	assert.True(t, h.released())
	assert.Nil(t, h.noisy.handler)
	assert.Equal(t, playback.FocusNone, h.engine.Focus())
	assert.Equal(t, resets+1, h.device.resets)
	assert.False(t, h.engine.IsPlaying())

	count := len(h.rec.states)
	h.engine.Stop(false)
	assert.Len(t, h.rec.states, count)
}

func TestDeviceErrorStops(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))

	h.engine.OnError("decoder exploded")
	assert.Equal(t, []string{"decoder exploded"}, h.rec.errors)
	assert.Equal(t, playback.StateStopped, h.engine.State())
	assert.True(t, h.released())
	assert.Nil(t, h.noisy.handler)
}

func TestLoadFailure(t *testing.T) {
	h := newHarness()
	h.device.loadErr = errors.New("no such file")

	err := h.engine.Play(entry(1))
	assert.Error(t, err)
	assert.Len(t, h.rec.errors, 1)
	assert.Equal(t, playback.StateStopped, h.engine.State())
	assert.True(t, h.released())
}

func TestCompletionResetsPosition(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))
	h.engine.SeekTo(5000)
	h.engine.OnSeekComplete()

	h.engine.OnCompletion()
	assert.Zero(t, h.engine.ResumePosition())
	assert.Equal(t, 1, h.rec.completions)
}

func TestFocusDeniedWaitsForGain(t *testing.T) {
	h := newHarness()
	h.arbiter.deny = true

	require.NoError(t, h.engine.Play(entry(1)))
	h.engine.OnPrepared()
	assert.Equal(t, playback.FocusNone, h.engine.Focus())
	assert.Zero(t, h.device.starts)
	assert.Equal(t, playback.StateBuffering, h.engine.State())
	assert.True(t, h.held())

	h.engine.OnFocusChange(playback.FocusGain)
	assert.Equal(t, playback.StatePlaying, h.engine.State())
	assert.True(t, h.held())
}

func TestPauseWhileWaitingForFocusReleases(t *testing.T) {
	h := newHarness()
	h.arbiter.deny = true

	require.NoError(t, h.engine.Play(entry(1)))
	h.engine.OnPrepared()
	require.True(t, h.held())

	h.engine.Pause()
	assert.Equal(t, playback.StatePaused, h.engine.State())
	assert.True(t, h.released())
	assert.Nil(t, h.noisy.handler)

	h.engine.OnFocusChange(playback.FocusGain)
	assert.Equal(t, playback.StatePaused, h.engine.State())
	assert.Zero(t, h.device.starts)
}

func TestNoisyOutputPauses(t *testing.T) {
	h := newHarness()
	h.startPlaying(t, entry(1))
	require.NotNil(t, h.noisy.handler)

	h.noisy.handler()
	assert.Equal(t, playback.StatePaused, h.engine.State())
	assert.False(t, h.engine.WasPlaying())
}

func TestPauseIgnoredWhenIdle(t *testing.T) {
	h := newHarness()
	h.engine.Pause()
	assert.Equal(t, playback.StateIdle, h.engine.State())
	assert.Empty(t, h.rec.states)
}

func TestPlayWithoutTrack(t *testing.T) {
	h := newHarness()
	assert.ErrorIs(t, h.engine.Play(queue.Entry{}), playback.ErrNoSource)
	assert.ErrorIs(t, h.engine.Play(queue.Entry{Track: &catalog.Track{ID: 3}}), playback.ErrNoSource)
	assert.Empty(t, h.device.loads)
}

type resolver map[string]*catalog.Track

func (r resolver) TrackByMediaID(id string) (*catalog.Track, bool) {
	t, ok := r[id]
	return t, ok
}

func TestResolverSuppliesSource(t *testing.T) {
	dev := &fakeDevice{}
	e := playback.NewEngine(playback.Options{
		Device: dev,
		Tracks: resolver{"7": {ID: 7, Source: "/new/location.mp3"}},
	})

	require.NoError(t, e.Play(queue.Entry{Track: &catalog.Track{ID: 7, Source: "/old.mp3"}}))
	assert.Equal(t, []string{"/new/location.mp3"}, dev.loads)
}
