package session

import "time"

// Status is a snapshot of what the player is doing.
type Status struct {
	State       string    `json:"state"`
	MediaID     string    `json:"media_id,omitempty"`
	TrackID     int64     `json:"track_id,omitempty"`
	Title       string    `json:"title,omitempty"`
	Artist      string    `json:"artist,omitempty"`
	Album       string    `json:"album,omitempty"`
	PositionMs  int       `json:"position_ms"`
	DurationMs  int64     `json:"duration_ms,omitempty"`
	QueueIndex  int       `json:"queue_index"`
	QueueLength int       `json:"queue_length"`
	Shuffle     bool      `json:"shuffle"`
	Repeat      string    `json:"repeat"`
	Focus       string    `json:"focus"`
	Error       string    `json:"error,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Subscribe returns a channel that receives every published status and a
// function that ends the subscription. A slow reader only sees the latest
// status.
func (s *Session) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// LastStatus returns the most recently published status.
func (s *Session) LastStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) publish(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = st
	for _, ch := range s.subs {
		select {
		case ch <- st:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}
