package repositories

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Repository keeps values by id for the lifetime of the process.
type Repository[V any] interface {
	Put(ctx context.Context, id string, value V) error
	// Get returns the value and marks it as recently used.
	Get(ctx context.Context, id string) (V, error)
	Delete(ctx context.Context, id string) (V, error)
	// Sweep removes every value not used since before and returns them.
	Sweep(ctx context.Context, before time.Time) ([]V, error)
	Len() int
}

type entry[V any] struct {
	value V
	mu    sync.Mutex
	seen  time.Time
}

func (e *entry[V]) touch(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seen = now
}

func (e *entry[V]) lastSeen() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seen
}

type InMemory[V any] struct {
	entries *sync.Map
	now     func() time.Time
}

func New[V any]() *InMemory[V] {
	return &InMemory[V]{
		entries: &sync.Map{},
		now:     time.Now,
	}
}

func (s *InMemory[V]) Put(ctx context.Context, id string, value V) error {
	s.entries.Store(id, &entry[V]{value: value, seen: s.now()})
	return nil
}

func (s *InMemory[V]) Get(ctx context.Context, id string) (V, error) {
	value, ok := s.entries.Load(id)
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	e := value.(*entry[V])
	e.touch(s.now())
	return e.value, nil
}

func (s *InMemory[V]) Delete(ctx context.Context, id string) (V, error) {
	value, ok := s.entries.LoadAndDelete(id)
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return value.(*entry[V]).value, nil
}

func (s *InMemory[V]) Sweep(ctx context.Context, before time.Time) ([]V, error) {
	var evicted []V
	s.entries.Range(func(key, value any) bool {
		if err := ctx.Err(); err != nil {
			return false
		}
		e := value.(*entry[V])
		if !e.lastSeen().Before(before) {
			return true
		}
		// a concurrent Delete may have won the entry already
		if _, loaded := s.entries.LoadAndDelete(key); loaded {
			evicted = append(evicted, e.value)
		}
		return true
	})
	return evicted, ctx.Err()
}

func (s *InMemory[V]) Len() int {
	n := 0
	s.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
