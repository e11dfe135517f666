package inventory

import (
	"context"
	"sort"
	"sync"

	"github.com/anusha9573/SmartRefridgerator/pkg/types"
)

// MemoryLedger is an in-process Ledger. Each operation holds the lock for its
// whole read-modify-write, which makes it atomic per call.
type MemoryLedger struct {
	mu      sync.Mutex
	records map[string]types.InventoryRecord
}

// NewMemoryLedger returns an empty ledger, optionally seeded with records.
func NewMemoryLedger(seed ...types.InventoryRecord) *MemoryLedger {
	m := &MemoryLedger{records: make(map[string]types.InventoryRecord, len(seed))}
	for _, rec := range seed {
		m.records[rec.Name] = rec
	}
	return m
}

// Find implements Ledger.
func (m *MemoryLedger) Find(ctx context.Context, name string) (types.InventoryRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.InventoryRecord{}, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	return rec, ok, nil
}

// Increment implements Ledger.
func (m *MemoryLedger) Increment(ctx context.Context, name string, n int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		rec = types.InventoryRecord{Name: name}
	}
	rec.Quantity += n
	m.records[name] = rec
	return rec.Quantity, nil
}

// Decrement implements Ledger.
func (m *MemoryLedger) Decrement(ctx context.Context, name string, n int) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		return 0, false, nil
	}
	rec.Quantity = max(0, rec.Quantity-n)
	m.records[name] = rec
	return rec.Quantity, true, nil
}

// List implements Ledger. Records are sorted by name.
func (m *MemoryLedger) List(ctx context.Context) ([]types.InventoryRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]types.InventoryRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Close implements Ledger.
func (m *MemoryLedger) Close(context.Context) error {
	return nil
}
