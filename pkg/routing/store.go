package routing

import (
	"sort"
	"sync"
)

// RangeFunc is used by Range to iterate over stored tables.
type RangeFunc func(src int, tbl *Table) (next bool)

// Store keeps the routing tables of every node, keyed by source pid.
type Store interface {
	// Put stores tbl under tbl.Src. It reports false if a table for that
	// source was already held, in which case nothing is changed.
	Put(tbl *Table) (added bool, err error)

	// Get returns the table computed by src, or nil.
	Get(src int) *Table

	// Range iterates over tables in ascending source order until `next` is false.
	Range(rangeFunc RangeFunc) error

	// Count returns the number of tables stored.
	Count() int

	// Close safely closes the store.
	Close() error
}

type inMemoryStore struct {
	sync.RWMutex
	tables map[int]*Table
}

// InMemoryStore returns an in-memory Store implementation.
func InMemoryStore() Store {
	return &inMemoryStore{tables: map[int]*Table{}}
}

func (s *inMemoryStore) Put(tbl *Table) (bool, error) {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.tables[tbl.Src]; ok {
		return false, nil
	}
	s.tables[tbl.Src] = tbl
	return true, nil
}

func (s *inMemoryStore) Get(src int) *Table {
	s.RLock()
	tbl := s.tables[src]
	s.RUnlock()
	return tbl
}

func (s *inMemoryStore) Range(rangeFunc RangeFunc) error {
	s.RLock()
	srcs := make([]int, 0, len(s.tables))
	for src := range s.tables {
		srcs = append(srcs, src)
	}
	s.RUnlock()
	sort.Ints(srcs)

	for _, src := range srcs {
		if !rangeFunc(src, s.Get(src)) {
			break
		}
	}
	return nil
}

func (s *inMemoryStore) Count() int {
	s.RLock()
	count := len(s.tables)
	s.RUnlock()
	return count
}

func (s *inMemoryStore) Close() error {
	return nil
}
