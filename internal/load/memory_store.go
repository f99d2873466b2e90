package load

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/paddock-io/paddock/internal/schema"
)

// MemoryStore is an in-memory Store for loader and pipeline tests. Rows
// are kept per table keyed by their unique key tuple, so repeated loads
// exercise the same idempotence the SQL upsert gives.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]map[string]schema.Row
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory load store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables: make(map[string]map[string]schema.Row),
	}
}

// Clear deletes all rows from the given tables.
func (s *MemoryStore) Clear(_ context.Context, tables []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range tables {
		delete(s.tables, table)
	}

	return nil
}

// Upsert inserts or replaces rows by unique key.
func (s *MemoryStore) Upsert(_ context.Context, contract schema.Contract, rows []schema.Row) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	table, ok := s.tables[contract.Table]
	if !ok {
		table = make(map[string]schema.Row)
		s.tables[contract.Table] = table
	}

	for _, row := range rows {
		parts := make([]string, len(contract.UniqueKey))
		for i, col := range contract.UniqueKey {
			parts[i] = fmt.Sprintf("%v", row[col])
		}

		table[strings.Join(parts, "\x1f")] = row
	}

	return len(rows), nil
}

// RowCount returns the distinct row count of a table. Test helper.
func (s *MemoryStore) RowCount(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tables[table])
}
