// Package session runs the player: it owns the playback engine and the
// queue and serializes every command and device event on one goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/samber/lo"

	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/mediaid"
	"github.com/aposazhennikov/local-audio-player/playback"
	"github.com/aposazhennikov/local-audio-player/queue"
	sentryhelper "github.com/aposazhennikov/local-audio-player/sentry_helper"
	"github.com/aposazhennikov/local-audio-player/sequence"
)

var (
	ErrClosed             = errors.New("session: closed")
	ErrInvalidArgument    = errors.New("session: invalid argument")
	ErrUnknownCommand     = errors.New("session: unknown command")
	ErrNotPlayable        = errors.New("session: media id is not playable")
	ErrUnknownMedia       = errors.New("session: unknown media id")
	ErrCatalogUnavailable = errors.New("session: catalog unavailable")
	ErrNothingQueued      = errors.New("session: nothing queued")
)

// Options configures a Session.
type Options struct {
	Catalog *catalog.Catalog
	Device  playback.Device
	// Arbiter defaults to one that always grants focus.
	Arbiter   playback.FocusArbiter
	Resources playback.Resources
	Shuffle   bool
	Repeat    RepeatMode
	// Rand drives shuffling. Nil means a time-seeded source.
	Rand   *rand.Rand
	Logger *slog.Logger
	Sentry *sentryhelper.SentryHelper
}

// Session is the controller behind the transport.
type Session struct {
	catalog *catalog.Catalog
	engine  *playback.Engine
	queue   *queue.Queue
	loop    *Loop
	logger  *slog.Logger
	sentry  *sentryhelper.SentryHelper

	// Owned by the loop goroutine.
	repeat    RepeatMode
	lastError string

	mu         sync.RWMutex
	status     Status
	nowPlaying []queue.Entry
	subs       map[int]chan Status
	nextSub    int
	closed     bool

	closeOnce sync.Once
}

// New creates a session and starts its loop. Catalog completions are
// dispatched onto the loop. Call DeviceListener to wire the device.
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Session{
		catalog: opts.Catalog,
		queue:   queue.New(opts.Rand),
		loop:    NewLoop(),
		logger:  logger.WithComponent(opts.Logger, "session"),
		sentry:  opts.Sentry,
		repeat:  opts.Repeat,
		subs:    make(map[int]chan Status),
	}
	if err := s.queue.SetShuffle(opts.Shuffle); err != nil {
		s.logger.Warn("Failed to set initial shuffle mode", slog.String("error", err.Error()))
	}

	s.engine = playback.NewEngine(playback.Options{
		Device:        opts.Device,
		Arbiter:       opts.Arbiter,
		FocusListener: focusRelay{s},
		Tracks:        opts.Catalog,
		Resources:     opts.Resources,
		OnNoisy:       s.onNoisy,
		Logger:        opts.Logger,
		Sentry:        opts.Sentry,
	})
	s.engine.SetCallback(engineCallback{s})
	s.catalog.SetDispatcher(func(fn func()) {
		if !s.loop.Post(fn) {
			fn()
		}
	})

	s.status = s.snapshot()
	s.loop.Start()
	return s
}

// Post runs fn on the session goroutine.
func (s *Session) Post(fn func()) bool {
	return s.loop.Post(fn)
}

// DeviceListener returns the listener the output device reports to. Every
// event is handed to the session goroutine.
func (s *Session) DeviceListener() playback.DeviceListener {
	return deviceRelay{s}
}

// Do runs req on the session goroutine and waits for its result.
func (s *Session) Do(ctx context.Context, req Request) error {
	result := make(chan error, 1)
	done := func(err error) { result <- err }
	if !s.loop.Post(func() { s.handle(req, done) }) {
		return ErrClosed
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns a fresh status taken on the session goroutine.
func (s *Session) Status(ctx context.Context) (Status, error) {
	result := make(chan Status, 1)
	if !s.loop.Post(func() { result <- s.snapshot() }) {
		return s.LastStatus(), ErrClosed
	}
	select {
	case st := <-result:
		return st, nil
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

// NowPlaying returns the entries of the current queue in queue order.
func (s *Session) NowPlaying() []queue.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]queue.Entry(nil), s.nowPlaying...)
}

// Close stops playback, releases the device and ends the loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.loop.Post(func() {
			s.engine.Stop(false)
			s.logger.Info("Session closed")
		})
		s.loop.Stop()
		s.closeSubscribers()
	})
}

func (s *Session) handle(req Request, done func(error)) {
	s.logger.Debug("Command", slog.String("command", req.Command.String()), slog.String("media_id", req.MediaID))
	s.sentry.AddBreadcrumb("session", req.Command.String(), sentry.LevelInfo, map[string]interface{}{
		"media_id": req.MediaID,
	})

	switch req.Command {
	case CmdPlay:
		e, ok := s.queue.Current()
		if !ok {
			done(ErrNothingQueued)
			return
		}
		done(s.play(e))

	case CmdPlayFromMediaID:
		if s.catalog.IsInitialized() {
			done(s.playFromMediaID(req.MediaID))
			return
		}
		s.catalog.RetrieveAsync(func(ok bool) {
			if !ok {
				done(ErrCatalogUnavailable)
				return
			}
			done(s.playFromMediaID(req.MediaID))
		})

	case CmdPause:
		s.engine.Pause()
		done(nil)

	case CmdStop:
		s.engine.Stop(true)
		done(nil)

	case CmdSeek:
		if req.PositionMs < 0 {
			done(fmt.Errorf("%w: negative position %d", ErrInvalidArgument, req.PositionMs))
			return
		}
		s.engine.SeekTo(req.PositionMs)
		done(nil)

	case CmdSkipNext:
		done(s.skip(true))

	case CmdSkipPrev:
		done(s.skip(false))

	case CmdShuffle:
		if err := s.queue.SetShuffle(req.Enabled); err != nil {
			done(err)
			return
		}
		s.refreshStatus()
		done(nil)

	case CmdRepeat:
		s.repeat = req.Repeat
		s.refreshStatus()
		done(nil)

	default:
		done(fmt.Errorf("%w: %s", ErrUnknownCommand, req.Command))
	}
}

func (s *Session) play(e queue.Entry) error {
	s.lastError = ""
	return s.engine.Play(e)
}

func (s *Session) skip(forward bool) error {
	var (
		e   queue.Entry
		err error
	)
	if forward {
		e, err = s.queue.Next()
		if errors.Is(err, sequence.ErrNoNextPosition) && s.repeat == RepeatAll {
			e, err = s.queue.Restart()
		}
	} else {
		e, err = s.queue.Prev()
	}
	if err != nil {
		return err
	}
	return s.play(e)
}

// playFromMediaID replaces the queue with the browse context of mediaID and
// starts the selected track.
func (s *Session) playFromMediaID(mediaID string) error {
	musicID, ok := mediaid.MusicID(mediaID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotPlayable, mediaID)
	}
	h := mediaid.Hierarchy(mediaID)

	// Ids listed under now playing are the queue's own; selecting one moves
	// the cursor and keeps the queue and its order.
	if pos := s.queue.IndexOf(mediaID); pos >= 0 {
		e, err := s.queue.SkipTo(pos)
		if err != nil {
			return err
		}
		s.logger.Info("Skipped within queue", slog.String("media_id", mediaID), slog.Int("position", pos))
		s.refreshStatus()
		return s.play(e)
	}

	tracks := s.contextTracks(h)
	start := -1
	for i, t := range tracks {
		if t.MediaID() == musicID {
			start = i
			break
		}
	}
	if start < 0 {
		t, ok := s.catalog.TrackByMediaID(musicID)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownMedia, mediaID)
		}
		tracks, start = []*catalog.Track{t}, 0
	}

	entries := lo.Map(tracks, func(t *catalog.Track, _ int) queue.Entry {
		return queue.Entry{Track: t, MediaID: mediaid.Create(t.MediaID(), h...)}
	})
	if err := s.queue.Replace(entries, start); err != nil {
		return err
	}
	s.publishNowPlaying()

	s.logger.Info("Queue replaced",
		slog.String("context", mediaid.Category(mediaID)),
		slog.Int("length", len(entries)),
		slog.Int("start", start))

	e, _ := s.queue.Current()
	return s.play(e)
}

// contextTracks returns the tracks listed under the browse category h.
func (s *Session) contextTracks(h []string) []*catalog.Track {
	if len(h) == 0 {
		return nil
	}
	switch h[0] {
	case mediaid.ByAlbum:
		if len(h) == 2 {
			return s.catalog.TracksByAlbum(h[1])
		}
	case mediaid.ByArtist:
		if len(h) == 2 {
			return s.catalog.TracksByArtist(h[1])
		}
	case mediaid.BySong:
		return s.catalog.SortedTracks()
	case mediaid.ByPlaylist:
		if len(h) == 2 {
			if h[1] == mediaid.NowPlaying {
				return lo.Map(s.queue.Entries(), func(e queue.Entry, _ int) *catalog.Track { return e.Track })
			}
			return s.catalog.PlaylistTracks(h[1])
		}
	case mediaid.BySearch:
		if len(h) == 2 {
			return s.catalog.SearchByTitle(h[1])
		}
	}
	return nil
}

func (s *Session) publishNowPlaying() {
	entries := s.queue.Entries()
	s.mu.Lock()
	s.nowPlaying = entries
	s.mu.Unlock()
	s.catalog.SetNowPlaying(lo.Map(entries, func(e queue.Entry, _ int) *catalog.Track { return e.Track }))
}

// advance moves on after the loaded track finished.
func (s *Session) advance() {
	var (
		e   queue.Entry
		err error
	)
	if s.repeat == RepeatOne {
		var ok bool
		if e, ok = s.queue.Current(); !ok {
			err = queue.ErrEmpty
		}
	} else {
		e, err = s.queue.Next()
		if errors.Is(err, sequence.ErrNoNextPosition) && s.repeat == RepeatAll {
			e, err = s.queue.Restart()
		}
	}
	if err != nil {
		s.logger.Info("Queue finished", slog.String("reason", err.Error()))
		s.engine.Stop(true)
		return
	}
	if err := s.play(e); err != nil {
		s.logger.Warn("Failed to play next entry", slog.String("media_id", e.MediaID), slog.String("error", err.Error()))
	}
}

func (s *Session) onNoisy() {
	s.loop.Post(func() {
		if s.engine.IsPlaying() {
			s.logger.Info("Output became noisy, pausing")
			s.engine.Pause()
		}
	})
}

func (s *Session) refreshStatus() {
	s.publish(s.snapshot())
}

func (s *Session) snapshot() Status {
	st := Status{
		State:       s.engine.State().String(),
		MediaID:     s.engine.MediaID(),
		PositionMs:  s.engine.Position(),
		QueueIndex:  s.queue.Index(),
		QueueLength: s.queue.Len(),
		Shuffle:     s.queue.Shuffle(),
		Repeat:      s.repeat.String(),
		Focus:       s.engine.Focus().String(),
		Error:       s.lastError,
		UpdatedAt:   time.Now(),
	}
	if e, ok := s.queue.Current(); ok && e.Track != nil {
		st.MediaID = e.MediaID
		st.TrackID = e.Track.ID
		st.Title = e.Track.Title
		st.Artist = e.Track.Artist
		st.Album = e.Track.Album
		st.DurationMs = e.Track.Duration.Milliseconds()
	}
	return st
}

type engineCallback struct{ s *Session }

func (c engineCallback) OnPlaybackStatusChanged(playback.State) {
	c.s.refreshStatus()
}

func (c engineCallback) OnCompletion() {
	c.s.advance()
}

func (c engineCallback) OnError(message string) {
	c.s.lastError = message
	c.s.refreshStatus()
}

type deviceRelay struct{ s *Session }

func (r deviceRelay) OnPrepared()     { r.s.loop.Post(r.s.engine.OnPrepared) }
func (r deviceRelay) OnSeekComplete() { r.s.loop.Post(r.s.engine.OnSeekComplete) }
func (r deviceRelay) OnCompletion()   { r.s.loop.Post(r.s.engine.OnCompletion) }

func (r deviceRelay) OnError(message string) {
	r.s.loop.Post(func() { r.s.engine.OnError(message) })
}

type focusRelay struct{ s *Session }

func (r focusRelay) OnFocusChange(change playback.FocusChange) {
	r.s.loop.Post(func() { r.s.engine.OnFocusChange(change) })
}
