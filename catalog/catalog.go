// Package catalog indexes the local music directory.
//
// A scan walks the directory, extracts metadata from every supported audio
// file and builds all lookup maps into a fresh index, which is then
// published atomically. Queries never block and return empty results until
// the first successful scan has been published.
package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/mediaid"
	"github.com/aposazhennikov/local-audio-player/playlist"
	sentryhelper "github.com/aposazhennikov/local-audio-player/sentry_helper"
)

// Supported audio file formats.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
	".aac":  true,
}

// IsAudioFile reports whether path has a supported audio extension.
func IsAudioFile(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// State is the lifecycle state of a Catalog.
type State int32

const (
	NotInitialized State = iota
	Initializing
	Initialized
)

func (s State) String() string {
	switch s {
	case NotInitialized:
		return "not_initialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	default:
		return "unknown"
	}
}

// Options configures a Catalog.
type Options struct {
	// Root is the music directory.
	Root      string
	Extractor Extractor
	// Access defaults to CheckReadable.
	Access AccessCheck
	// Workers bounds concurrent metadata extraction. Defaults to 4.
	Workers int
	// Dispatch delivers RetrieveAsync completions. When nil they run on the
	// scanning goroutine.
	Dispatch func(func())
	Logger   *slog.Logger
	Sentry   *sentryhelper.SentryHelper
}

// Catalog is the track index of one music directory.
type Catalog struct {
	root      string
	extractor Extractor
	access    AccessCheck
	workers   int
	logger    *slog.Logger
	sentry    *sentryhelper.SentryHelper

	dispatch atomic.Pointer[func(func())]

	state  atomic.Int32
	idx    atomic.Pointer[index]
	nextID atomic.Int64

	// mu guards the state transitions driven by RetrieveAsync and Invalidate
	// together with waiters and stale.
	mu      sync.Mutex
	waiters []func(bool)
	stale   bool

	// scanMu keeps scans from overlapping.
	scanMu sync.Mutex

	nowPlaying atomic.Pointer[[]*Track]
}

// New creates a catalog in the NotInitialized state.
func New(opts Options) *Catalog {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Access == nil {
		opts.Access = CheckReadable
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.Extractor == nil {
		opts.Extractor = NewTagExtractor(nil, opts.Logger)
	}

	c := &Catalog{
		root:      opts.Root,
		extractor: opts.Extractor,
		access:    opts.Access,
		workers:   opts.Workers,
		logger:    logger.WithComponent(opts.Logger, "catalog"),
		sentry:    opts.Sentry,
	}
	if opts.Dispatch != nil {
		c.SetDispatcher(opts.Dispatch)
	}
	empty := []*Track{}
	c.nowPlaying.Store(&empty)
	return c
}

// SetDispatcher replaces the function that delivers RetrieveAsync completions.
func (c *Catalog) SetDispatcher(dispatch func(func())) {
	c.dispatch.Store(&dispatch)
}

// Root returns the music directory.
func (c *Catalog) Root() string {
	return c.root
}

// State returns the lifecycle state.
func (c *Catalog) State() State {
	return State(c.state.Load())
}

// IsInitialized reports whether queries see a published index.
func (c *Catalog) IsInitialized() bool {
	return c.State() == Initialized
}

// RetrieveAsync makes sure the index is loaded and reports the outcome to
// onDone. An initialized catalog answers immediately on the calling
// goroutine. Otherwise a scan is started, or onDone joins the scan already
// in flight.
func (c *Catalog) RetrieveAsync(onDone func(success bool)) {
	c.mu.Lock()
	switch c.State() {
	case Initialized:
		c.mu.Unlock()
		if onDone != nil {
			onDone(true)
		}
		return
	case Initializing:
		if onDone != nil {
			c.waiters = append(c.waiters, onDone)
		}
		c.mu.Unlock()
		c.logger.Debug("Joining scan in progress")
		return
	}

	if onDone != nil {
		c.waiters = append(c.waiters, onDone)
	}
	c.state.Store(int32(Initializing))
	c.mu.Unlock()

	go c.retrieve()
}

// Refresh drops the published index and rescans.
func (c *Catalog) Refresh(onDone func(success bool)) {
	c.Invalidate()
	c.RetrieveAsync(onDone)
}

// Invalidate returns an initialized catalog to NotInitialized. Queries see
// empty results until the next successful scan. A scan in flight is rerun
// before its result is published.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.State() {
	case Initialized:
		c.state.Store(int32(NotInitialized))
		c.logger.Info("Catalog invalidated")
	case Initializing:
		c.stale = true
	}
}

func (c *Catalog) retrieve() {
	for {
		idx, ok := c.build(c.root)

		c.mu.Lock()
		if c.stale {
			c.stale = false
			c.mu.Unlock()
			c.logger.Debug("Directory changed during scan, rescanning")
			continue
		}
		if ok {
			c.publish(idx)
		} else {
			c.state.Store(int32(NotInitialized))
		}
		waiters := c.waiters
		c.waiters = nil
		c.mu.Unlock()

		for _, w := range waiters {
			c.complete(w, ok)
		}
		return
	}
}

func (c *Catalog) complete(onDone func(bool), ok bool) {
	if d := c.dispatch.Load(); d != nil && *d != nil {
		(*d)(func() { onDone(ok) })
		return
	}
	onDone(ok)
}

// publish must be called with mu held.
func (c *Catalog) publish(idx *index) {
	c.idx.Store(idx)
	c.state.Store(int32(Initialized))
	tracksIndexed.Set(float64(len(idx.tracks)))
}

// Scan synchronously rebuilds the index from root and publishes it. It
// returns false, leaving the catalog NotInitialized, when root may not be
// read.
func (c *Catalog) Scan(root string) bool {
	idx, ok := c.build(root)

	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.publish(idx)
	} else if c.State() != Initializing {
		c.state.Store(int32(NotInitialized))
	}
	return ok
}

type extraction struct {
	md  Metadata
	err error
}

func (c *Catalog) build(root string) (*index, bool) {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	start := time.Now()
	defer func() { scanDuration.Observe(time.Since(start).Seconds()) }()

	if err := c.access(root); err != nil {
		if errors.Is(err, ErrAccessDenied) {
			c.logger.Warn("No permission to read music directory", slog.String("root", root))
		} else {
			c.logger.Error("Music directory check failed", slog.String("root", root), slog.String("error", err.Error()))
			c.sentry.CaptureError(err, "catalog", "access_check")
		}
		return nil, false
	}

	if _, err := os.Stat(root); os.IsNotExist(err) {
		c.logger.Error("Music directory does not exist", slog.String("root", root))
		return newIndex(), true
	}

	files, playlists, err := c.walk(root)
	if err != nil {
		c.logger.Error("Failed to walk music directory", slog.String("root", root), slog.String("error", err.Error()))
		c.sentry.CaptureError(err, "catalog", "walk")
		return nil, false
	}

	results := c.extractAll(files)

	idx := newIndex()
	for i, path := range files {
		r := results[i]
		if r.err != nil {
			filesSkipped.WithLabelValues("extraction").Inc()
			c.logger.Debug("Skipping file without readable metadata", slog.String("path", path), slog.String("error", r.err.Error()))
			continue
		}
		idx.insert(newTrack(c.nextID.Add(1), path, r.md))
	}

	for _, path := range playlists {
		entries, err := playlist.Read(path)
		if err != nil {
			filesSkipped.WithLabelValues("playlist").Inc()
			c.logger.Warn("Skipping unreadable playlist", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		name := playlist.Name(path)
		if isNowPlaying(name) {
			continue
		}
		if missing := idx.addPlaylist(name, entries); missing > 0 {
			c.logger.Debug("Playlist references files outside the index",
				slog.String("playlist", name), slog.Int("missing", missing))
		}
	}

	logger.LogScanEvent(c.logger, slog.LevelInfo, "Scan finished", root,
		slog.Int("tracks", len(idx.tracks)),
		slog.Int("skipped", len(files)-len(idx.tracks)),
		slog.Int("playlists", len(idx.playlists)),
		slog.Duration("elapsed", time.Since(start)))

	return idx, true
}

// walk lists audio files and playlists under root in lexical order.
func (c *Catalog) walk(root string) ([]string, []string, error) {
	var files, playlists []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			filesSkipped.WithLabelValues("access").Inc()
			c.logger.Warn("Error accessing file or directory", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		switch {
		case IsAudioFile(path):
			files = append(files, abs)
		case playlist.IsPlaylist(path):
			playlists = append(playlists, abs)
		default:
			filesSkipped.WithLabelValues("unsupported").Inc()
			c.logger.Debug("Skipping unsupported file", slog.String("path", path))
		}
		return nil
	})

	return files, playlists, err
}

// extractAll reads metadata with a bounded pool. Results keep the order of files.
func (c *Catalog) extractAll(files []string) []extraction {
	results := make([]extraction, len(files))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(c.workers, len(files)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				md, err := c.extractor.Extract(files[i])
				results[i] = extraction{md: md, err: err}
			}
		}()
	}
	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// view returns the published index, or nil while not initialized.
func (c *Catalog) view() *index {
	if c.State() != Initialized {
		return nil
	}
	return c.idx.Load()
}

// Track returns the track with the given id.
func (c *Catalog) Track(id int64) (*Track, bool) {
	idx := c.view()
	if idx == nil {
		return nil, false
	}
	t, ok := idx.byID[id]
	return t, ok
}

// TrackByMediaID returns the track whose flat browse id is mediaID.
func (c *Catalog) TrackByMediaID(mediaID string) (*Track, bool) {
	idx := c.view()
	if idx == nil {
		return nil, false
	}
	t, ok := idx.byMediaID[mediaID]
	return t, ok
}

// TrackBySource returns the track read from the given file.
func (c *Catalog) TrackBySource(path string) (*Track, bool) {
	idx := c.view()
	if idx == nil {
		return nil, false
	}
	t, ok := idx.bySource[filepath.Clean(path)]
	return t, ok
}

// AllTracks returns every track in scan order.
func (c *Catalog) AllTracks() []*Track {
	idx := c.view()
	if idx == nil {
		return []*Track{}
	}
	return clone(idx.tracks)
}

// SortedTracks returns every track ordered by sort key, then scan order.
func (c *Catalog) SortedTracks() []*Track {
	idx := c.view()
	if idx == nil {
		return []*Track{}
	}
	return idx.sorted()
}

// TracksByAlbum returns the tracks of album in scan order.
func (c *Catalog) TracksByAlbum(album string) []*Track {
	idx := c.view()
	if idx == nil {
		return []*Track{}
	}
	return clone(idx.byAlbum[album])
}

// TracksByArtist returns the tracks of artist in scan order.
func (c *Catalog) TracksByArtist(artist string) []*Track {
	idx := c.view()
	if idx == nil {
		return []*Track{}
	}
	out := []*Track{}
	for _, t := range idx.tracks {
		if t.Artist == artist {
			out = append(out, t)
		}
	}
	return out
}

// ArtistAlbums returns the albums of artist sorted by name.
func (c *Catalog) ArtistAlbums(artist string) []Album {
	idx := c.view()
	if idx == nil {
		return []Album{}
	}
	return idx.albumsOf(artist)
}

// AllArtists returns the artist names sorted.
func (c *Catalog) AllArtists() []string {
	idx := c.view()
	if idx == nil {
		return []string{}
	}
	return idx.artists()
}

// AllAlbums returns every album sorted by name.
func (c *Catalog) AllAlbums() []Album {
	idx := c.view()
	if idx == nil {
		return []Album{}
	}
	return idx.albums()
}

// AllPlaylists returns the playlist names, the now playing queue first.
func (c *Catalog) AllPlaylists() []string {
	idx := c.view()
	if idx == nil {
		return []string{}
	}
	return append([]string{mediaid.NowPlaying}, idx.playlistNames()...)
}

// PlaylistTracks returns the tracks of the named playlist.
func (c *Catalog) PlaylistTracks(name string) []*Track {
	idx := c.view()
	if idx == nil {
		return []*Track{}
	}
	if isNowPlaying(name) {
		return clone(*c.nowPlaying.Load())
	}
	return clone(idx.playlists[name])
}

// SetNowPlaying replaces the contents of the now playing playlist.
func (c *Catalog) SetNowPlaying(tracks []*Track) {
	cp := clone(tracks)
	c.nowPlaying.Store(&cp)
}

// SearchByTitle returns the tracks whose title contains query, ignoring
// case. An empty query matches nothing.
func (c *Catalog) SearchByTitle(query string) []*Track {
	idx := c.view()
	if idx == nil {
		return []*Track{}
	}
	found := idx.searchTitle(query)
	if found == nil {
		return []*Track{}
	}
	return found
}

// SetSortKey assigns the ordering key of a track.
func (c *Catalog) SetSortKey(id int64, key int64) error {
	t, ok := c.Track(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTrack, strconv.FormatInt(id, 10))
	}
	t.SetSortKey(key)
	return nil
}

// ErrUnknownTrack is returned for ids missing from the published index.
var ErrUnknownTrack = errors.New("catalog: unknown track")
