package receiver

import (
	"sync"

	"github.com/qiniu/venueops/internal/alerting/model"
)

const defaultSeenCapacity = 10000

// BuildIdempotencyKey identifies one lifecycle step of one order.
func BuildIdempotencyKey(ev *model.OrderEvent) string {
	return ev.OrderID + "|" + string(ev.Type)
}

// seenSet remembers the most recent keys; the oldest is forgotten first.
type seenSet struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	next  int
}

func newSeenSet(capacity int) *seenSet {
	if capacity <= 0 {
		capacity = defaultSeenCapacity
	}
	return &seenSet{keys: make(map[string]struct{}, capacity), order: make([]string, capacity)}
}

// MarkSeen records key and reports false when it was already present.
func (s *seenSet) MarkSeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	if old := s.order[s.next]; old != "" {
		delete(s.keys, old)
	}
	s.order[s.next] = key
	s.next = (s.next + 1) % len(s.order)
	s.keys[key] = struct{}{}
	return true
}

func (s *seenSet) AlreadySeen(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}
