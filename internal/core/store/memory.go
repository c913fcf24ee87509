package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	lock    sync.RWMutex
	records map[string]*Record

	// onChange is called with the lock held after every successful mutation.
	onChange func() error
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Create(ctx context.Context, r *Record) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if r.ID == "" {
		return fmt.Errorf("creating record: empty id")
	}
	if _, ok := s.records[r.ID]; ok {
		return fmt.Errorf("creating record: %w", &ExistsError{ID: r.ID})
	}
	c := r.Clone()
	s.records[r.ID] = &c
	if err := s.changed(); err != nil {
		delete(s.records, r.ID)
		return err
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("fetching record %s: %w", id, ErrNotFound)
	}
	c := r.Clone()
	return &c, nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fn func(r *Record) error) (*Record, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("updating record %s: %w", id, ErrNotFound)
	}
	// Work on a copy so a failing fn leaves the stored record untouched.
	c := r.Clone()
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.ID = id
	s.records[id] = &c
	if err := s.changed(); err != nil {
		s.records[id] = r
		return nil, err
	}
	out := c.Clone()
	return &out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	r, ok := s.records[id]
	if !ok {
		return fmt.Errorf("deleting record %s: %w", id, ErrNotFound)
	}
	delete(s.records, id)
	if err := s.changed(); err != nil {
		s.records[id] = r
		return err
	}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]Record, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		if f.matches(r) {
			out = append(out, r.Clone())
		}
	}
	sortRecords(out, f.OrderBy)
	return out, nil
}

func (s *MemoryStore) changed() error {
	if s.onChange == nil {
		return nil
	}
	return s.onChange()
}

// snapshot returns all records unsorted. Callers must hold the lock.
func (s *MemoryStore) snapshot() []Record {
	out := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	return out
}
