package binding

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/pztrick/television/internal/domain"
)

// MemoryStore is an in-process EntityStore for single-instance deployments and tests.
type MemoryStore[T any] struct {
	model    *model
	mu       sync.RWMutex
	entities map[int64]T
	nextPK   int64
}

var _ domain.EntityStore[struct{ ID int64 }] = (*MemoryStore[struct{ ID int64 }])(nil)

// NewMemoryStore creates an empty store. T follows the same rules as a bound model.
func NewMemoryStore[T any]() (*MemoryStore[T], error) {
	m, err := inspect[T]()
	if err != nil {
		return nil, err
	}
	return &MemoryStore[T]{model: m, entities: make(map[int64]T), nextPK: 1}, nil
}

func (s *MemoryStore[T]) List(_ context.Context) ([]T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pks := make([]int64, 0, len(s.entities))
	for pk := range s.entities {
		pks = append(pks, pk)
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i] > pks[j] })

	out := make([]T, 0, len(pks))
	for _, pk := range pks {
		out = append(out, s.entities[pk])
	}
	return out, nil
}

func (s *MemoryStore[T]) Get(_ context.Context, pk int64) (T, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[pk]
	if !ok {
		var zero T
		return zero, fmt.Errorf("pk %d: %w", pk, domain.ErrEntityNotFound)
	}
	return e, nil
}

// Create assigns the next primary key, ignoring any pk set on entity.
func (s *MemoryStore[T]) Create(_ context.Context, entity T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := s.nextPK
	s.nextPK++
	v := reflect.ValueOf(&entity).Elem()
	s.model.setPK(v, pk)
	s.entities[pk] = entity
	return entity, nil
}

func (s *MemoryStore[T]) Update(_ context.Context, pk int64, entity T) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[pk]; !ok {
		var zero T
		return zero, fmt.Errorf("pk %d: %w", pk, domain.ErrEntityNotFound)
	}
	s.model.setPK(reflect.ValueOf(&entity).Elem(), pk)
	s.entities[pk] = entity
	return entity, nil
}

func (s *MemoryStore[T]) Delete(_ context.Context, pk int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[pk]; !ok {
		return fmt.Errorf("pk %d: %w", pk, domain.ErrEntityNotFound)
	}
	delete(s.entities, pk)
	return nil
}
