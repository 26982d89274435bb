// Package queue holds the ordered list of tracks being played.
package queue

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/aposazhennikov/local-audio-player/catalog"
	"github.com/aposazhennikov/local-audio-player/sequence"
)

// ErrEmpty is returned when the queue has no entries.
var ErrEmpty = errors.New("queue: empty")

// Entry is one queued track and the browse id it was selected from.
type Entry struct {
	Track   *catalog.Track
	MediaID string
}

// Queue pairs the queued entries with a cursor. It is not safe for
// concurrent use.
type Queue struct {
	entries []Entry
	seq     sequence.Sequence
	shuffle bool
	rnd     *rand.Rand
}

// New returns an empty queue. A nil rnd is replaced with a time-seeded source.
func New(rnd *rand.Rand) *Queue {
	if rnd == nil {
		rnd = sequence.NewRand()
	}
	return &Queue{rnd: rnd}
}

// Replace swaps in a new list of entries with start under the cursor.
func (q *Queue) Replace(entries []Entry, start int) error {
	if len(entries) == 0 {
		q.Clear()
		return ErrEmpty
	}
	seq, err := sequence.New(len(entries), q.shuffle, start, q.rnd)
	if err != nil {
		return fmt.Errorf("replace queue: %w", err)
	}
	q.entries = append([]Entry(nil), entries...)
	q.seq = seq
	return nil
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.entries = nil
	q.seq = nil
}

// Len returns the number of entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// Entries returns a copy of the entries in queue order.
func (q *Queue) Entries() []Entry {
	return append([]Entry(nil), q.entries...)
}

// Index returns the queue position under the cursor, or -1 when empty.
func (q *Queue) Index() int {
	if q.seq == nil {
		return -1
	}
	return q.seq.Position()
}

// Current returns the entry under the cursor.
func (q *Queue) Current() (Entry, bool) {
	if q.seq == nil {
		return Entry{}, false
	}
	return q.entries[q.seq.Position()], true
}

// Next advances the cursor.
func (q *Queue) Next() (Entry, error) {
	if q.seq == nil {
		return Entry{}, ErrEmpty
	}
	if err := q.seq.Next(); err != nil {
		return Entry{}, err
	}
	e, _ := q.Current()
	return e, nil
}

// Prev moves the cursor back.
func (q *Queue) Prev() (Entry, error) {
	if q.seq == nil {
		return Entry{}, ErrEmpty
	}
	if err := q.seq.Prev(); err != nil {
		return Entry{}, err
	}
	e, _ := q.Current()
	return e, nil
}

// Restart moves the cursor back to the beginning. A shuffled queue draws a
// new order.
func (q *Queue) Restart() (Entry, error) {
	if q.seq == nil {
		return Entry{}, ErrEmpty
	}
	q.seq.Reset()
	e, _ := q.Current()
	return e, nil
}

// SkipTo places the queue position under the cursor. A shuffled queue keeps
// its drawn order and moves the cursor to where position sits in it.
func (q *Queue) SkipTo(position int) (Entry, error) {
	if q.seq == nil {
		return Entry{}, ErrEmpty
	}
	if position < 0 || position >= len(q.entries) {
		return Entry{}, sequence.ErrOutOfRange
	}
	logical := position
	if s, ok := q.seq.(*sequence.Shuffled); ok {
		for i, p := range s.Order() {
			if p == position {
				logical = i
				break
			}
		}
	}
	if err := q.seq.SetCurrent(logical); err != nil {
		return Entry{}, err
	}
	e, _ := q.Current()
	return e, nil
}

// IndexOf returns the position of the first entry with the given browse id.
func (q *Queue) IndexOf(mediaID string) int {
	for i, e := range q.entries {
		if e.MediaID == mediaID {
			return i
		}
	}
	return -1
}

// Shuffle reports whether the queue plays in random order.
func (q *Queue) Shuffle() bool {
	return q.shuffle
}

// SetShuffle switches the order mode. The current entry stays under the
// cursor.
func (q *Queue) SetShuffle(on bool) error {
	if q.shuffle == on {
		return nil
	}
	q.shuffle = on
	if q.seq == nil {
		return nil
	}
	seq, err := sequence.New(len(q.entries), on, q.seq.Position(), q.rnd)
	if err != nil {
		return err
	}
	q.seq = seq
	return nil
}
