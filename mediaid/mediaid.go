// Package mediaid builds and parses hierarchical browse ids.
//
// A browse id is a category path joined with CategorySeparator, optionally
// followed by LeafSeparator and a track id:
//
//	__BY_ALBUM__ \x1f Suede \x1e 42
package mediaid

import "strings"

// Well-known category ids.
const (
	Root       = "__ROOT__"
	ByArtist   = "__BY_ARTIST__"
	ByAlbum    = "__BY_ALBUM__"
	BySong     = "__BY_SONG__"
	ByPlaylist = "__BY_PLAYLIST__"
	BySearch   = "__BY_SEARCH__"
	NowPlaying = "__NOW_PLAYING__"
)

const (
	// CategorySeparator joins the segments of a category path.
	CategorySeparator = '\x1f'
	// LeafSeparator separates the category path from the track id.
	LeafSeparator = '\x1e'
)

// Create returns the id of musicID within the given category path. An empty
// musicID yields a browsable category id.
func Create(musicID string, categories ...string) string {
	var b strings.Builder
	for i, c := range categories {
		if i > 0 {
			b.WriteByte(CategorySeparator)
		}
		b.WriteString(c)
	}
	if musicID != "" {
		b.WriteByte(LeafSeparator)
		b.WriteString(musicID)
	}
	return b.String()
}

// BrowseCategory returns the id of a single value inside a category, e.g.
// the albums of one artist.
func BrowseCategory(categoryType, value string) string {
	return Create("", categoryType, value)
}

// MusicID returns the track id carried by mediaID, if any.
func MusicID(mediaID string) (string, bool) {
	i := strings.IndexByte(mediaID, LeafSeparator)
	if i < 0 {
		return "", false
	}
	return mediaID[i+1:], true
}

// Category returns mediaID without its leaf part.
func Category(mediaID string) string {
	if i := strings.IndexByte(mediaID, LeafSeparator); i >= 0 {
		return mediaID[:i]
	}
	return mediaID
}

// Hierarchy splits the category path of mediaID into its segments.
func Hierarchy(mediaID string) []string {
	return strings.Split(Category(mediaID), string(CategorySeparator))
}

// IsBrowsable reports whether mediaID names a category rather than a track.
func IsBrowsable(mediaID string) bool {
	return strings.IndexByte(mediaID, LeafSeparator) < 0
}
