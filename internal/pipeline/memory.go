package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"citysync/internal/store"
)

// MemoryStore is a concurrency-safe in-memory Store with the same
// reconciliation semantics as the Postgres store: last write wins on a
// natural-key conflict, full-key conflicts are no-ops, append-only
// tables accept duplicates. Surrogate city ids are assigned in insertion
// order starting at 1. Used by the job tests and as a dry-run backend.
type MemoryStore struct {
	mu sync.RWMutex

	// key: table name
	tables  map[string]*memTable
	cityIDs map[string]int
}

type memTable struct {
	rows  [][]any
	index map[string]int
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:  make(map[string]*memTable),
		cityIDs: make(map[string]int),
	}
}

func (m *MemoryStore) table(name string) *memTable {
	t, ok := m.tables[name]
	if !ok {
		t = &memTable{index: make(map[string]int)}
		m.tables[name] = t
	}
	return t
}

func rowKey(keyIdx []int, row []any) string {
	var b strings.Builder
	for _, i := range keyIdx {
		fmt.Fprintf(&b, "%v\x00", row[i])
	}
	return b.String()
}

// ReconcileBatch applies a batch with insert-or-update semantics.
func (m *MemoryStore) ReconcileBatch(_ context.Context, spec store.TableSpec, rows [][]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.table(spec.Name)
	keyIdx := spec.KeyIndexes()
	overwrite := len(spec.KeyColumns) < len(spec.Columns)

	for i, row := range rows {
		if len(row) != len(spec.Columns) {
			return fmt.Errorf("reconcile %s: row %d has %d values, want %d",
				spec.Name, i, len(row), len(spec.Columns))
		}

		if spec.AppendOnly() {
			t.rows = append(t.rows, row)
			continue
		}

		key := rowKey(keyIdx, row)
		if pos, ok := t.index[key]; ok {
			if overwrite {
				t.rows[pos] = row
			}
			continue
		}

		t.index[key] = len(t.rows)
		t.rows = append(t.rows, row)

		if spec.Name == store.Cities.Name {
			name, _ := row[0].(string)
			m.cityIDs[name] = len(m.cityIDs) + 1
		}
	}
	return nil
}

// ListCities returns the seeded cities in id order.
func (m *MemoryStore) ListCities(_ context.Context) ([]store.City, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[store.Cities.Name]
	if !ok {
		return nil, nil
	}

	cities := make([]store.City, 0, len(t.rows))
	for _, row := range t.rows {
		name, _ := row[0].(string)
		cities = append(cities, store.City{
			ID:        m.cityIDs[name],
			Name:      name,
			Latitude:  asFloat(row[2]),
			Longitude: asFloat(row[3]),
		})
	}
	return cities, nil
}

// ListAirportCodes returns the seeded IATA codes, sorted.
func (m *MemoryStore) ListAirportCodes(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[store.Airports.Name]
	if !ok {
		return nil, nil
	}

	codes := make([]string, 0, len(t.rows))
	for _, row := range t.rows {
		code, _ := row[0].(string)
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

// Rows returns a copy of a table's rows in insertion order.
func (m *MemoryStore) Rows(table string) [][]any {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tables[table]
	if !ok {
		return nil
	}

	out := make([][]any, len(t.rows))
	copy(out, t.rows)
	return out
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	default:
		return 0
	}
}
