package catalog

import (
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/aposazhennikov/local-audio-player/mediaid"
)

type artistAlbum struct {
	representative *Track
	count          int
}

// index holds every mapping derived from one scan. It is filled by a single
// goroutine and never mutated after it is published.
type index struct {
	tracks       []*Track
	byID         map[int64]*Track
	byMediaID    map[string]*Track
	bySource     map[string]*Track
	byAlbum      map[string][]*Track
	artistAlbums map[string]map[string]*artistAlbum
	playlists    map[string][]*Track
}

func newIndex() *index {
	return &index{
		byID:         make(map[int64]*Track),
		byMediaID:    make(map[string]*Track),
		bySource:     make(map[string]*Track),
		byAlbum:      make(map[string][]*Track),
		artistAlbums: make(map[string]map[string]*artistAlbum),
		playlists:    make(map[string][]*Track),
	}
}

func (x *index) insert(t *Track) {
	x.tracks = append(x.tracks, t)
	x.byID[t.ID] = t
	x.byMediaID[t.MediaID()] = t
	x.bySource[t.Source] = t
	x.byAlbum[t.Album] = append(x.byAlbum[t.Album], t)

	albums, ok := x.artistAlbums[t.Artist]
	if !ok {
		albums = make(map[string]*artistAlbum)
		x.artistAlbums[t.Artist] = albums
	}
	if a, ok := albums[t.Album]; ok {
		a.count++
	} else {
		albums[t.Album] = &artistAlbum{representative: t, count: 1}
	}
}

// addPlaylist resolves the entries of a playlist file against the index.
// Entries that do not name an indexed track are dropped.
func (x *index) addPlaylist(name string, sources []string) int {
	tracks := lo.FilterMap(sources, func(src string, _ int) (*Track, bool) {
		t, ok := x.bySource[src]
		return t, ok
	})
	x.playlists[name] = tracks
	return len(sources) - len(tracks)
}

func (x *index) artists() []string {
	names := lo.Keys(x.artistAlbums)
	sort.Strings(names)
	return names
}

func (x *index) albums() []Album {
	names := lo.Keys(x.byAlbum)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) Album {
		tracks := x.byAlbum[name]
		return Album{
			Name:           name,
			Artist:         tracks[0].Artist,
			TrackCount:     len(tracks),
			Representative: tracks[0],
		}
	})
}

func (x *index) albumsOf(artist string) []Album {
	albums := x.artistAlbums[artist]
	names := lo.Keys(albums)
	sort.Strings(names)
	return lo.Map(names, func(name string, _ int) Album {
		a := albums[name]
		return Album{
			Name:           name,
			Artist:         artist,
			TrackCount:     a.count,
			Representative: a.representative,
		}
	})
}

func (x *index) playlistNames() []string {
	names := lo.Keys(x.playlists)
	sort.Strings(names)
	return names
}

func (x *index) searchTitle(query string) []*Track {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}
	return lo.Filter(x.tracks, func(t *Track, _ int) bool {
		return strings.Contains(strings.ToLower(t.Title), q)
	})
}

// sorted returns the tracks ordered by sort key. Tracks with a key come
// first; ties and keyless tracks keep scan order.
func (x *index) sorted() []*Track {
	out := clone(x.tracks)
	sort.SliceStable(out, func(i, j int) bool {
		ki, iok := out[i].SortKey()
		kj, jok := out[j].SortKey()
		switch {
		case iok && jok:
			return ki < kj
		default:
			return iok && !jok
		}
	})
	return out
}

func clone(tracks []*Track) []*Track {
	if len(tracks) == 0 {
		return []*Track{}
	}
	out := make([]*Track, len(tracks))
	copy(out, tracks)
	return out
}

// isNowPlaying reports whether name is the reserved queue playlist.
func isNowPlaying(name string) bool {
	return name == mediaid.NowPlaying
}
