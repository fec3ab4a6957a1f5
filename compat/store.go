package compat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrEmptyTable is returned when a refresh yields no entries. The previous
// table is kept.
var ErrEmptyTable = errors.New("version table refresh returned no entries")

// Source fetches the full version table from the catalog.
type Source interface {
	FetchGameVersions(ctx context.Context) ([]Entry, error)
}

// TableStore publishes the current version table to concurrent readers.
//
// Refreshes are serialized. A new table replaces the old one in a single
// pointer swap, so readers see either the old table or the new one.
type TableStore struct {
	mu  sync.Mutex
	cur atomic.Pointer[Table]
}

// NewTableStore starts with initial, typically the cached table.
func NewTableStore(initial Table) *TableStore {
	s := &TableStore{}
	s.cur.Store(&initial)
	return s
}

// Current returns the published table.
func (s *TableStore) Current() Table {
	return *s.cur.Load()
}

// Refresh fetches a new table from src and publishes it. On error the
// previous table stays in place and is returned along with the error.
func (s *TableStore) Refresh(ctx context.Context, src Source) (Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := src.FetchGameVersions(ctx)
	if err != nil {
		return s.Current(), fmt.Errorf("refresh version table: %w", err)
	}
	if len(entries) == 0 {
		return s.Current(), ErrEmptyTable
	}

	next := NewTable(entries)
	s.cur.Store(&next)
	return next, nil
}
