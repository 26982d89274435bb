package browse_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aposazhennikov/local-audio-player/browse"
	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/mediaid"
	"github.com/aposazhennikov/local-audio-player/queue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var pipeExtractor = catalog.ExtractorFunc(func(path string) (catalog.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return catalog.Metadata{}, err
	}
	parts := strings.Split(strings.TrimSpace(string(data)), "|")
	return catalog.Metadata{Title: parts[0], Album: parts[1], Artist: parts[2], Duration: 3 * time.Minute}, nil
})

func library(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"a/1.mp3":  "Animal Nitrate|Suede|Suede",
		"a/2.mp3":  "So Young|Suede|Suede",
		"b/1.mp3":  "Trash|Coming Up|Suede",
		"c/1.mp3":  "Parklife|Parklife|Blur",
		"mix.m3u":  "c/1.mp3\na/2.mp3\n",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

type staticQueue []queue.Entry

func (q staticQueue) NowPlaying() []queue.Entry { return q }

func children(t *testing.T, b *browse.Builder, id string) []browse.Node {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	nodes, err := b.Children(ctx, id)
	require.NoError(t, err)
	return nodes
}

func nodeTitles(nodes []browse.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Title
	}
	return out
}

func TestDeferredUntilCatalogLoads(t *testing.T) {
	dir := library(t)
	release := make(chan struct{})
	c := catalog.New(catalog.Options{
		Root: dir,
		Extractor: catalog.ExtractorFunc(func(path string) (catalog.Metadata, error) {
			<-release
			return pipeExtractor.Extract(path)
		}),
	})
	b := browse.NewBuilder(c, nil, nil)

	got := make(chan []browse.Node, 1)
	albumID := mediaid.BrowseCategory(mediaid.ByAlbum, "Suede")
	b.LoadChildren(albumID, func(nodes []browse.Node) { got <- nodes })

	select {
	case <-got:
		t.Fatal("children sent before the catalog finished loading")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	select {
	case nodes := <-got:
		require.Len(t, nodes, 2)
		assert.Equal(t, []string{"Animal Nitrate", "So Young"}, nodeTitles(nodes))
		for _, n := range nodes {
			assert.True(t, n.Playable)
			assert.False(t, n.Browsable)
			assert.Equal(t, []string{mediaid.ByAlbum, "Suede"}, mediaid.Hierarchy(n.MediaID))
			musicID, ok := mediaid.MusicID(n.MediaID)
			require.True(t, ok)
			_, found := c.TrackByMediaID(musicID)
			assert.True(t, found)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("children never sent")
	}
}

func TestFailedLoadSendsEmpty(t *testing.T) {
	c := catalog.New(catalog.Options{
		Root:   t.TempDir(),
		Access: func(string) error { return catalog.ErrAccessDenied },
	})
	b := browse.NewBuilder(c, nil, nil)

	nodes := children(t, b, mediaid.Root)
	assert.NotNil(t, nodes)
	assert.Empty(t, nodes)
}

func TestTree(t *testing.T) {
	c := catalog.New(catalog.Options{Root: library(t), Extractor: pipeExtractor})
	b := browse.NewBuilder(c, nil, nil)

	root := children(t, b, mediaid.Root)
	assert.Equal(t, []string{"Artists", "Albums", "Songs", "Playlists"}, nodeTitles(root))

	artists := children(t, b, mediaid.ByArtist)
	assert.Equal(t, []string{"Blur", "Suede"}, nodeTitles(artists))
	assert.Equal(t, mediaid.BrowseCategory(mediaid.ByArtist, "Suede"), artists[1].MediaID)

	suedeAlbums := children(t, b, artists[1].MediaID)
	assert.Equal(t, []string{"Coming Up", "Suede"}, nodeTitles(suedeAlbums))
	assert.Equal(t, 2, suedeAlbums[1].TrackCount)
	assert.True(t, suedeAlbums[1].Browsable)

	albums := children(t, b, mediaid.ByAlbum)
	assert.Equal(t, []string{"Coming Up", "Parklife", "Suede"}, nodeTitles(albums))

	songs := children(t, b, mediaid.BySong)
	require.Len(t, songs, 4)
	for _, n := range songs {
		assert.Equal(t, []string{mediaid.BySong, mediaid.BySong}, mediaid.Hierarchy(n.MediaID))
		assert.Equal(t, int64(180000), n.DurationMs)
	}

	playlists := children(t, b, mediaid.ByPlaylist)
	assert.Equal(t, []string{"Now Playing", "mix"}, nodeTitles(playlists))
	assert.Equal(t, 2, playlists[1].TrackCount)

	mix := children(t, b, playlists[1].MediaID)
	assert.Equal(t, []string{"Parklife", "So Young"}, nodeTitles(mix))

	search := children(t, b, mediaid.BrowseCategory(mediaid.BySearch, "PARK"))
	assert.Equal(t, []string{"Parklife"}, nodeTitles(search))

	assert.Empty(t, children(t, b, "__NOPE__"))
}

func TestNowPlayingListsQueue(t *testing.T) {
	c := catalog.New(catalog.Options{Root: library(t), Extractor: pipeExtractor})
	require.True(t, c.Scan(c.Root()))
	tracks := c.AllTracks()

	q := staticQueue{
		{Track: tracks[3], MediaID: mediaid.Create(tracks[3].MediaID(), mediaid.BySearch, "o")},
		{Track: tracks[0], MediaID: mediaid.Create(tracks[0].MediaID(), mediaid.BySearch, "o")},
	}
	b := browse.NewBuilder(c, q, nil)

	nodes := children(t, b, mediaid.BrowseCategory(mediaid.ByPlaylist, mediaid.NowPlaying))
	assert.Equal(t, []string{tracks[3].Title, tracks[0].Title}, nodeTitles(nodes))
	assert.Equal(t, q[0].MediaID, nodes[0].MediaID)
	assert.Equal(t, q[1].MediaID, nodes[1].MediaID)
	assert.True(t, nodes[0].Playable)

	playlists := children(t, b, mediaid.ByPlaylist)
	for _, n := range playlists {
		if n.MediaID == mediaid.BrowseCategory(mediaid.ByPlaylist, mediaid.NowPlaying) {
			assert.Equal(t, 2, n.TrackCount)
		}
	}

	empty := browse.NewBuilder(c, staticQueue{}, nil)
	assert.Empty(t, children(t, empty, mediaid.BrowseCategory(mediaid.ByPlaylist, mediaid.NowPlaying)))
}

func TestChildrenHonoursContext(t *testing.T) {
	release := make(chan struct{})
	dir := library(t)
	c := catalog.New(catalog.Options{
		Root: dir,
		Extractor: catalog.ExtractorFunc(func(path string) (catalog.Metadata, error) {
			<-release
			return pipeExtractor.Extract(path)
		}),
	})
	b := browse.NewBuilder(c, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Children(ctx, mediaid.Root)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.Eventually(t, c.IsInitialized, 5*time.Second, 10*time.Millisecond)
}
