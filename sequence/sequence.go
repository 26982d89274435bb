// Package sequence provides cursors over play queue positions.
//
// A Sequence walks the logical positions 0..n-1 of a queue. The linear
// variant maps every logical position onto the same queue position; the
// shuffled variant maps them through a random permutation drawn at
// construction and on every Reset.
package sequence

import (
	"errors"
	"math/rand"
	"time"
)

var (
	// ErrEmpty is returned when a sequence is requested for an empty queue.
	ErrEmpty = errors.New("sequence: length must be at least 1")
	// ErrNoNextPosition is returned by Next on the last logical position.
	ErrNoNextPosition = errors.New("sequence: no next position")
	// ErrNoPreviousPosition is returned by Prev on the first logical position.
	ErrNoPreviousPosition = errors.New("sequence: no previous position")
	// ErrOutOfRange is returned when a position lies outside [0, Len()).
	ErrOutOfRange = errors.New("sequence: position out of range")
)

// Sequence is a cursor over the positions of a play queue.
type Sequence interface {
	// Len returns the number of positions.
	Len() int
	// Current returns the logical cursor.
	Current() int
	// Position returns the queue position under the cursor.
	Position() int
	// SetCurrent moves the logical cursor.
	SetCurrent(i int) error
	HasNext() bool
	HasPrev() bool
	Next() error
	Prev() error
	// Reset moves the cursor back to logical 0.
	Reset()
}

// NewRand returns a time-seeded source for shuffled sequences.
func NewRand() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// New builds a linear or shuffled sequence over length positions with the
// queue position start under the cursor. A linear sequence places the cursor
// on start; a shuffled one moves start to the head of its permutation so the
// rest of the queue follows in random order.
func New(length int, shuffle bool, start int, rnd *rand.Rand) (Sequence, error) {
	if length < 1 {
		return nil, ErrEmpty
	}
	if start < 0 || start >= length {
		return nil, ErrOutOfRange
	}

	if !shuffle {
		l, err := NewLinear(length)
		if err != nil {
			return nil, err
		}
		if err := l.SetCurrent(start); err != nil {
			return nil, err
		}
		return l, nil
	}

	s, err := NewShuffled(length, rnd)
	if err != nil {
		return nil, err
	}
	s.moveToFront(start)
	return s, nil
}

// Linear visits queue positions in order.
type Linear struct {
	length  int
	current int
}

// NewLinear returns a linear sequence with the cursor at 0.
func NewLinear(length int) (*Linear, error) {
	if length < 1 {
		return nil, ErrEmpty
	}
	return &Linear{length: length}, nil
}

func (l *Linear) Len() int      { return l.length }
func (l *Linear) Current() int  { return l.current }
func (l *Linear) Position() int { return l.current }
func (l *Linear) HasNext() bool { return l.current < l.length-1 }
func (l *Linear) HasPrev() bool { return l.current > 0 }
func (l *Linear) Reset()        { l.current = 0 }

func (l *Linear) SetCurrent(i int) error {
	if i < 0 || i >= l.length {
		return ErrOutOfRange
	}
	l.current = i
	return nil
}

func (l *Linear) Next() error {
	if !l.HasNext() {
		return ErrNoNextPosition
	}
	l.current++
	return nil
}

func (l *Linear) Prev() error {
	if !l.HasPrev() {
		return ErrNoPreviousPosition
	}
	l.current--
	return nil
}

// Shuffled visits queue positions in a random permutation.
type Shuffled struct {
	cursor Linear
	order  []int
	rnd    *rand.Rand
}

// NewShuffled returns a shuffled sequence with the cursor at logical 0.
// A nil rnd is replaced with a time-seeded source.
func NewShuffled(length int, rnd *rand.Rand) (*Shuffled, error) {
	if length < 1 {
		return nil, ErrEmpty
	}
	if rnd == nil {
		rnd = NewRand()
	}
	s := &Shuffled{
		cursor: Linear{length: length},
		order:  make([]int, length),
		rnd:    rnd,
	}
	s.shuffle()
	return s, nil
}

func (s *Shuffled) Len() int               { return s.cursor.Len() }
func (s *Shuffled) Current() int           { return s.cursor.Current() }
func (s *Shuffled) Position() int          { return s.order[s.cursor.current] }
func (s *Shuffled) SetCurrent(i int) error { return s.cursor.SetCurrent(i) }
func (s *Shuffled) HasNext() bool          { return s.cursor.HasNext() }
func (s *Shuffled) HasPrev() bool          { return s.cursor.HasPrev() }
func (s *Shuffled) Next() error            { return s.cursor.Next() }
func (s *Shuffled) Prev() error            { return s.cursor.Prev() }

// Reset moves the cursor to logical 0 and draws a fresh permutation.
func (s *Shuffled) Reset() {
	s.cursor.Reset()
	s.shuffle()
}

// Order returns a copy of the current permutation.
func (s *Shuffled) Order() []int {
	out := make([]int, len(s.order))
	copy(out, s.order)
	return out
}

// shuffle refills order with a Fisher-Yates permutation of 0..n-1.
func (s *Shuffled) shuffle() {
	for i := range s.order {
		s.order[i] = i
	}
	for i := len(s.order) - 1; i > 0; i-- {
		j := s.rnd.Intn(i + 1)
		s.order[i], s.order[j] = s.order[j], s.order[i]
	}
}

func (s *Shuffled) moveToFront(position int) {
	for i, p := range s.order {
		if p == position {
			s.order[0], s.order[i] = s.order[i], s.order[0]
			return
		}
	}
}
