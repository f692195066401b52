package usage

import (
	"context"
	"sync"
	"time"
)

type counter struct {
	day   string
	count int
}

// MemoryStore keeps counters and prepaid grants in process memory. Entries
// from earlier days are swept the first time a new day is seen.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
	grants   map[string]*counter
	today    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		counters: make(map[string]*counter),
		grants:   make(map[string]*counter),
	}
}

func (s *MemoryStore) Increment(_ context.Context, session, day string, limit int, _ time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rollover(day)
	c, ok := s.counters[session]
	if !ok || c.day != day {
		c = &counter{day: day}
		s.counters[session] = c
	}
	if c.count >= limit {
		return c.count, false, nil
	}
	c.count++
	return c.count, true, nil
}

func (s *MemoryStore) Count(_ context.Context, session, day string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[session]; ok && c.day == day {
		return c.count, nil
	}
	return 0, nil
}

func (s *MemoryStore) Grant(_ context.Context, session, day, item string, n int, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollover(day)
	s.grants[grantKey(session, item)] = &counter{day: day, count: n}
	return nil
}

func (s *MemoryStore) Redeem(_ context.Context, session, day, item string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantKey(session, item)]
	if !ok || g.day != day || g.count <= 0 {
		return false, nil
	}
	g.count--
	return true, nil
}

// rollover drops entries from other days. Callers hold mu.
func (s *MemoryStore) rollover(day string) {
	if day == s.today {
		return
	}
	s.today = day
	for key, c := range s.counters {
		if c.day != day {
			delete(s.counters, key)
		}
	}
	for key, g := range s.grants {
		if g.day != day {
			delete(s.grants, key)
		}
	}
}

func (s *MemoryStore) tracked() (sessions, grants int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters), len(s.grants)
}

func grantKey(session, item string) string {
	return session + "\x00" + item
}
