package store

import (
	"context"
	"sync"
	"time"

	"github.com/telhawk-systems/cloudguard/common/models"
)

// MemoryStore keeps events in a map keyed by id. Expired events are hidden
// from queries.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]models.ActivityEvent
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events: make(map[string]models.ActivityEvent),
		now:    time.Now,
	}
}

// WithClock replaces the clock used for expiry.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Put(ctx context.Context, ev *models.ActivityEvent) error {
	if err := ctx.Err(); err != nil {
		return unavailable("put", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = *ev
	return nil
}

func (s *MemoryStore) QueryByIdentityAndWindow(ctx context.Context, identity string, from, to int64) ([]models.ActivityEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("query", err)
	}
	now := s.now().Unix()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ActivityEvent
	for _, ev := range s.events {
		if ev.TTL > 0 && ev.TTL < now {
			continue
		}
		if ev.InWindow(identity, from, to) && ev.IsFailedConsoleLogin() {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Len returns the number of stored events, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
