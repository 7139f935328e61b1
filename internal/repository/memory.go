package repository

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/telhawk-systems/feedgen/internal/models"
)

// MemoryEventStore is an in-process EventStore. Events are kept in
// (time_us, id) order so range scans are a binary search.
type MemoryEventStore struct {
	mu     sync.RWMutex
	events []*models.Event
	byURI  map[string]struct{}
	nextID int64
}

// NewMemoryEventStore returns an empty store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		byURI:  make(map[string]struct{}),
		nextID: 1,
	}
}

func (s *MemoryEventStore) InsertIfAbsent(ctx context.Context, e *models.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byURI[e.URI]; ok {
		return false, nil
	}

	stored := *e
	stored.StorageID = s.nextID
	s.nextID++

	pos := stored.Position()
	i := sort.Search(len(s.events), func(i int) bool {
		return pos.Before(s.events[i].Position())
	})
	s.events = append(s.events, nil)
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = &stored
	s.byURI[stored.URI] = struct{}{}

	e.StorageID = stored.StorageID
	return true, nil
}

func (s *MemoryEventStore) QueryRange(ctx context.Context, collection string, after models.Cursor, limit int) ([]*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.events), func(i int) bool {
		return after.Before(s.events[i].Position())
	})

	out := make([]*models.Event, 0)
	for _, e := range s.events[start:] {
		if len(out) >= limit {
			break
		}
		if collection != "" && e.Collection != collection {
			continue
		}
		out = append(out, clone(e))
	}
	return out, nil
}

func (s *MemoryEventStore) QueryLatestBefore(ctx context.Context, q LatestQuery) ([]*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(q.TextContains)
	out := make([]*models.Event, 0)
	for i := len(s.events) - 1; i >= 0 && len(out) < q.Limit; i-- {
		e := s.events[i]
		if q.Collection != "" && e.Collection != q.Collection {
			continue
		}
		if q.Before != nil && e.TimeUS >= *q.Before {
			continue
		}
		if q.DID != "" && e.DID != q.DID {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Text), needle) {
			continue
		}
		out = append(out, clone(e))
	}
	return out, nil
}

func (s *MemoryEventStore) QueryMostRecent(ctx context.Context, collection string) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.events) - 1; i >= 0; i-- {
		if collection == "" || s.events[i].Collection == collection {
			return clone(s.events[i]), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryEventStore) Count(ctx context.Context, collection string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if collection == "" {
		return int64(len(s.events)), nil
	}
	var n int64
	for _, e := range s.events {
		if e.Collection == collection {
			n++
		}
	}
	return n, nil
}

func (s *MemoryEventStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryEventStore) Describe() string {
	return "memory"
}

func (s *MemoryEventStore) Close() {}

func clone(e *models.Event) *models.Event {
	c := *e
	if e.Langs != nil {
		c.Langs = append([]string(nil), e.Langs...)
	}
	return &c
}
