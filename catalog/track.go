package catalog

import (
	"image"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Unknown replaces tag values the file does not carry.
const Unknown = "UNKNOWN"

// Track is an indexed audio file. Everything except the sort key is fixed
// once the track is published in an index.
type Track struct {
	ID       int64
	Title    string
	Album    string
	Artist   string
	Duration time.Duration
	// Source is the absolute path of the audio file.
	Source string
	// Artwork is the embedded cover, already resized. May be nil.
	Artwork image.Image

	sortKey atomic.Pointer[int64]
}

// MediaID returns the flat browse id of the track.
func (t *Track) MediaID() string {
	return strconv.FormatInt(t.ID, 10)
}

// SortKey returns the user-assigned ordering key, if one was set.
func (t *Track) SortKey() (int64, bool) {
	k := t.sortKey.Load()
	if k == nil {
		return 0, false
	}
	return *k, true
}

// SetSortKey assigns the ordering key.
func (t *Track) SetSortKey(key int64) {
	t.sortKey.Store(&key)
}

// ClearSortKey removes the ordering key.
func (t *Track) ClearSortKey() {
	t.sortKey.Store(nil)
}

func newTrack(id int64, path string, md Metadata) *Track {
	t := &Track{
		ID:       id,
		Title:    strings.TrimSpace(md.Title),
		Album:    strings.TrimSpace(md.Album),
		Artist:   strings.TrimSpace(md.Artist),
		Duration: md.Duration,
		Source:   path,
		Artwork:  md.Artwork,
	}
	if t.Title == "" {
		base := filepath.Base(path)
		t.Title = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if t.Album == "" {
		t.Album = Unknown
	}
	if t.Artist == "" {
		t.Artist = Unknown
	}
	return t
}

// Album summarizes one album of the index.
type Album struct {
	Name       string
	Artist     string
	TrackCount int
	// Representative is the first track of the album in scan order.
	Representative *Track
}
