package queue_test

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/queue"
	"github.com/aposazhennikov/local-audio-player/sequence"
)

func entries(n int) []queue.Entry {
	out := make([]queue.Entry, n)
	for i := range out {
		tr := &catalog.Track{ID: int64(i + 1)}
		out[i] = queue.Entry{Track: tr, MediaID: tr.MediaID()}
	}
	return out
}

func TestEmptyQueue(t *testing.T) {
	q := queue.New(nil)

	_, ok := q.Current()
	assert.False(t, ok)
	assert.Equal(t, -1, q.Index())
	_, err := q.Next()
	assert.ErrorIs(t, err, queue.ErrEmpty)
	_, err = q.Prev()
	assert.ErrorIs(t, err, queue.ErrEmpty)
	_, err = q.Restart()
	assert.ErrorIs(t, err, queue.ErrEmpty)
	assert.ErrorIs(t, q.Replace(nil, 0), queue.ErrEmpty)
}

func TestLinearQueue(t *testing.T) {
	q := queue.New(nil)
	require.NoError(t, q.Replace(entries(3), 1))

	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, int64(2), cur.Track.ID)

	next, err := q.Next()
	require.NoError(t, err)
	assert.Equal(t, int64(3), next.Track.ID)

	_, err = q.Next()
	assert.ErrorIs(t, err, sequence.ErrNoNextPosition)

	first, err := q.Restart()
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Track.ID)

	_, err = q.Prev()
	assert.ErrorIs(t, err, sequence.ErrNoPreviousPosition)

	e, err := q.SkipTo(2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.Track.ID)
	_, err = q.SkipTo(5)
	assert.ErrorIs(t, err, sequence.ErrOutOfRange)

	assert.Equal(t, 1, q.IndexOf("2"))
	assert.Equal(t, -1, q.IndexOf("9"))
}

func TestReplaceRejectsBadStart(t *testing.T) {
	q := queue.New(nil)
	err := q.Replace(entries(2), 2)
	assert.ErrorIs(t, err, sequence.ErrOutOfRange)
}

func TestShuffleKeepsCurrentAndVisitsAll(t *testing.T) {
	q := queue.New(rand.New(rand.NewSource(5)))
	require.NoError(t, q.Replace(entries(8), 3))
	require.NoError(t, q.SetShuffle(true))
	assert.True(t, q.Shuffle())

	cur, _ := q.Current()
	assert.Equal(t, int64(4), cur.Track.ID)

	ids := []int{int(cur.Track.ID)}
	for {
		e, err := q.Next()
		if err != nil {
			assert.ErrorIs(t, err, sequence.ErrNoNextPosition)
			break
		}
		ids = append(ids, int(e.Track.ID))
	}
	sort.Ints(ids)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, ids)

	require.NoError(t, q.SetShuffle(false))
	before, _ := q.Current()
	next, err := q.Next()
	if before.Track.ID == 8 {
		assert.Error(t, err)
	} else {
		require.NoError(t, err)
		assert.Equal(t, before.Track.ID+1, next.Track.ID)
	}
}

func TestShuffledSkipToKeepsOrder(t *testing.T) {
	q := queue.New(rand.New(rand.NewSource(11)))
	require.NoError(t, q.SetShuffle(true))
	require.NoError(t, q.Replace(entries(6), 0))

	first, _ := q.Current()
	order := []int64{first.Track.ID}
	for {
		e, err := q.Next()
		if err != nil {
			break
		}
		order = append(order, e.Track.ID)
	}
	require.Len(t, order, 6)

	e, err := q.SkipTo(int(order[2] - 1))
	require.NoError(t, err)
	assert.Equal(t, order[2], e.Track.ID)
	for _, want := range order[3:] {
		next, err := q.Next()
		require.NoError(t, err)
		assert.Equal(t, want, next.Track.ID)
	}

	back, err := q.SkipTo(int(order[0] - 1))
	require.NoError(t, err)
	assert.Equal(t, order[0], back.Track.ID)
	_, err = q.Prev()
	assert.ErrorIs(t, err, sequence.ErrNoPreviousPosition)

	_, err = q.SkipTo(6)
	assert.ErrorIs(t, err, sequence.ErrOutOfRange)
}

func TestEntriesIsACopy(t *testing.T) {
	q := queue.New(nil)
	require.NoError(t, q.Replace(entries(2), 0))

	got := q.Entries()
	got[0] = queue.Entry{}
	cur, _ := q.Current()
	assert.NotNil(t, cur.Track)
	assert.Equal(t, 2, q.Len())
}
