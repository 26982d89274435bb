package catalog

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aposazhennikov/local-audio-player/playlist"
)

// DefaultDebounce is how long the watcher waits for the directory to settle
// before it rescans.
const DefaultDebounce = 2 * time.Second

// Watcher rescans the catalog when audio files or playlists change under
// its root. Bursts of events are coalesced into one rescan.
type Watcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger

	// OnRescan, when set, receives the outcome of every rescan.
	OnRescan func(success bool)

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewWatcher subscribes to every directory under the catalog root. A
// non-positive debounce selects DefaultDebounce.
func NewWatcher(c *Catalog, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		c.sentry.CaptureError(err, "catalog", "watcher_create")
		return nil, err
	}

	w := &Watcher{
		catalog:  c,
		watcher:  fw,
		debounce: debounce,
		logger:   c.logger.With("subcomponent", "watcher"),
		done:     make(chan struct{}),
	}
	if err := w.addTree(c.root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins processing events.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("Cannot watch directory", slog.String("path", path), slog.String("error", err.Error()))
		}
		return nil
	})
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if IsAudioFile(ev.Name) || playlist.IsPlaylist(ev.Name) {
		return true
	}
	// A removed or renamed directory can no longer be stat'ed.
	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		return filepath.Ext(ev.Name) == ""
	}
	if ev.Has(fsnotify.Create) {
		info, err := os.Stat(ev.Name)
		return err == nil && info.IsDir()
	}
	return false
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						w.logger.Warn("Cannot watch new directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
					}
				}
			}
			w.logger.Debug("Directory change", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))

			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.logger.Info("Music directory changed, rescanning")
			w.catalog.Refresh(w.OnRescan)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", slog.String("error", err.Error()))
			w.catalog.sentry.CaptureError(err, "catalog", "watch")
		}
	}
}
