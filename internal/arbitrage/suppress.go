package arbitrage

import (
	"sync"
	"time"
)

// suppressor keeps a pair from re-alerting on every poll tick while a spread
// persists. A pair becomes eligible again once its window expires or the scan
// observes the spread closed. Safe for concurrent use.
type suppressor struct {
	seen   map[string]time.Time // canonical pair key -> last alert time
	window time.Duration
	mu     sync.Mutex
}

func newSuppressor(window time.Duration) *suppressor {
	return &suppressor{
		seen:   make(map[string]time.Time),
		window: window,
	}
}

// shouldEmit reports whether the pair is outside its suppression window and
// records the emission when it is.
func (s *suppressor) shouldEmit(pairKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if last, ok := s.seen[pairKey]; ok && now.Sub(last) < s.window {
		return false
	}
	s.seen[pairKey] = now
	return true
}

// clear drops the pair so the next spread crossing alerts immediately.
func (s *suppressor) clear(pairKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, pairKey)
}

// sweep removes expired entries so the map does not grow with dead pairs.
func (s *suppressor) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, ts := range s.seen {
		if now.Sub(ts) >= s.window {
			delete(s.seen, key)
		}
	}
}
