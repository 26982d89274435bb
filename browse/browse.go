// Package browse turns the catalog into the tree of nodes clients navigate.
package browse

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/logger"
	"github.com/aposazhennikov/local-audio-player/mediaid"
	"github.com/aposazhennikov/local-audio-player/queue"
)

// Node is one entry of a browse listing.
type Node struct {
	MediaID    string `json:"media_id"`
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle,omitempty"`
	Browsable  bool   `json:"browsable"`
	Playable   bool   `json:"playable"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	TrackCount int    `json:"track_count,omitempty"`
	// ArtworkID is the id of the track whose cover represents the node.
	ArtworkID int64 `json:"artwork_id,omitempty"`
}

// QueueSource exposes the queue being played.
type QueueSource interface {
	NowPlaying() []queue.Entry
}

// Builder answers browse requests.
type Builder struct {
	catalog *catalog.Catalog
	queue   QueueSource
	logger  *slog.Logger
}

// NewBuilder returns a builder over c. q may be nil.
func NewBuilder(c *catalog.Catalog, q QueueSource, log *slog.Logger) *Builder {
	return &Builder{catalog: c, queue: q, logger: logger.WithComponent(log, "browse")}
}

// LoadChildren sends the children of parentID to send exactly once. When
// the catalog is not loaded yet the answer is deferred until the load
// finishes; a failed load sends an empty list.
func (b *Builder) LoadChildren(parentID string, send func([]Node)) {
	if !b.catalog.IsInitialized() {
		b.logger.Debug("Catalog not ready, deferring", slog.String("parent", parentID))
		b.catalog.RetrieveAsync(func(ok bool) {
			if !ok {
				b.logger.Warn("Catalog unavailable", slog.String("parent", parentID))
				send([]Node{})
				return
			}
			b.LoadChildren(parentID, send)
		})
		return
	}
	send(b.children(parentID))
}

// Children is the blocking form of LoadChildren.
func (b *Builder) Children(ctx context.Context, parentID string) ([]Node, error) {
	result := make(chan []Node, 1)
	b.LoadChildren(parentID, func(nodes []Node) { result <- nodes })
	select {
	case nodes := <-result:
		return nodes, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *Builder) children(parentID string) []Node {
	if parentID == mediaid.Root {
		return []Node{
			{MediaID: mediaid.ByArtist, Title: "Artists", Browsable: true},
			{MediaID: mediaid.ByAlbum, Title: "Albums", Browsable: true},
			{MediaID: mediaid.BySong, Title: "Songs", Browsable: true},
			{MediaID: mediaid.ByPlaylist, Title: "Playlists", Browsable: true},
		}
	}

	h := mediaid.Hierarchy(parentID)
	switch {
	case len(h) == 1 && h[0] == mediaid.ByArtist:
		return lo.Map(b.catalog.AllArtists(), func(artist string, _ int) Node {
			return Node{
				MediaID:   mediaid.BrowseCategory(mediaid.ByArtist, artist),
				Title:     artist,
				Browsable: true,
			}
		})

	case len(h) == 2 && h[0] == mediaid.ByArtist:
		return lo.Map(b.catalog.ArtistAlbums(h[1]), func(a catalog.Album, _ int) Node {
			return albumNode(a)
		})

	case len(h) == 1 && h[0] == mediaid.ByAlbum:
		return lo.Map(b.catalog.AllAlbums(), func(a catalog.Album, _ int) Node {
			return albumNode(a)
		})

	case len(h) == 2 && h[0] == mediaid.ByAlbum:
		return trackNodes(b.catalog.TracksByAlbum(h[1]), mediaid.ByAlbum, h[1])

	case h[0] == mediaid.BySong:
		return trackNodes(b.catalog.SortedTracks(), mediaid.BySong, mediaid.BySong)

	case len(h) == 1 && h[0] == mediaid.ByPlaylist:
		return lo.Map(b.catalog.AllPlaylists(), func(name string, _ int) Node {
			title := name
			if name == mediaid.NowPlaying {
				title = "Now Playing"
			}
			return Node{
				MediaID:    mediaid.BrowseCategory(mediaid.ByPlaylist, name),
				Title:      title,
				Browsable:  true,
				TrackCount: len(b.playlist(name)),
			}
		})

	case len(h) == 2 && h[0] == mediaid.ByPlaylist:
		if entries := b.liveQueue(h[1]); len(entries) > 0 {
			return lo.Map(entries, func(e queue.Entry, _ int) Node {
				n := TrackNode(e.Track)
				n.MediaID = e.MediaID
				return n
			})
		}
		return trackNodes(b.catalog.PlaylistTracks(h[1]), mediaid.ByPlaylist, h[1])

	case len(h) == 2 && h[0] == mediaid.BySearch:
		return trackNodes(b.catalog.SearchByTitle(h[1]), mediaid.BySearch, h[1])
	}

	b.logger.Warn("Unknown browse id", slog.String("parent", parentID))
	return []Node{}
}

// liveQueue returns the session queue when name is the now playing list.
// Its entries keep the browse ids they were queued under.
func (b *Builder) liveQueue(name string) []queue.Entry {
	if name != mediaid.NowPlaying || b.queue == nil {
		return nil
	}
	return b.queue.NowPlaying()
}

// playlist returns the tracks of a playlist, reading the live queue for the
// now playing list.
func (b *Builder) playlist(name string) []*catalog.Track {
	if entries := b.liveQueue(name); len(entries) > 0 {
		return lo.Map(entries, func(e queue.Entry, _ int) *catalog.Track { return e.Track })
	}
	return b.catalog.PlaylistTracks(name)
}

func albumNode(a catalog.Album) Node {
	n := Node{
		MediaID:    mediaid.BrowseCategory(mediaid.ByAlbum, a.Name),
		Title:      a.Name,
		Subtitle:   a.Artist,
		Browsable:  true,
		TrackCount: a.TrackCount,
	}
	if a.Representative != nil && a.Representative.Artwork != nil {
		n.ArtworkID = a.Representative.ID
	}
	return n
}

// TrackNode returns the playable node of t inside the given category path.
func TrackNode(t *catalog.Track, categories ...string) Node {
	n := Node{
		MediaID:    mediaid.Create(t.MediaID(), categories...),
		Title:      t.Title,
		Subtitle:   t.Artist,
		Playable:   true,
		DurationMs: t.Duration.Milliseconds(),
	}
	if t.Artwork != nil {
		n.ArtworkID = t.ID
	}
	return n
}

func trackNodes(tracks []*catalog.Track, categories ...string) []Node {
	return lo.Map(tracks, func(t *catalog.Track, _ int) Node {
		return TrackNode(t, categories...)
	})
}
