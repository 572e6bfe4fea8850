// ABOUTME: Session-unique placeholder IDs for optimistic messages

package delivery

import "sync"

// localSequence hands out negative IDs, unique for the life of the
// session. Server IDs are positive, so the two ranges never meet.
type localSequence struct {
	mu   sync.Mutex
	last int64
}

func (s *localSequence) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last--
	return s.last
}
