// Package inventorytest provides an in-memory inventory store for tests.
package inventorytest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/gofrs/uuid"

	"github.com/vasiliy-maslov/restaurant-pos/internal/inventory"
)

// Memory implements inventory.Repository and inventory.TxStore. InTx restores
// the previous state when fn fails, so rollbacks behave like the database.
type Memory struct {
	mu      sync.Mutex
	items   map[uuid.UUID]inventory.Item
	entries []inventory.Transaction

	// BeforeApply runs at the start of every ApplyEntries call. Tests use it
	// to move a balance underneath the caller.
	BeforeApply func(m *Memory)
	LockCalls   int
	ApplyCalls  int
}

func New(items ...inventory.Item) *Memory {
	m := &Memory{items: make(map[uuid.UUID]inventory.Item, len(items))}
	for _, item := range items {
		m.items[item.ID] = item
	}
	return m
}

// Item returns the current state of an item, or the zero value.
func (m *Memory) Item(id uuid.UUID) inventory.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items[id]
}

// Set overwrites an item's stored state without writing a ledger row.
func (m *Memory) Set(item inventory.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// Entries returns every appended ledger row, oldest first.
func (m *Memory) Entries() []inventory.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inventory.Transaction, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m *Memory) LockItems(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]inventory.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockCalls++

	out := make(map[uuid.UUID]inventory.Item, len(ids))
	for _, id := range ids {
		if item, ok := m.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (m *Memory) ApplyEntries(_ context.Context, entries []inventory.Transaction) error {
	if m.BeforeApply != nil {
		m.BeforeApply(m)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ApplyCalls++

	staged := make(map[uuid.UUID]inventory.Item)
	for _, e := range entries {
		if err := inventory.Verify(e); err != nil {
			return err
		}
		item, ok := staged[e.ItemID]
		if !ok {
			item, ok = m.items[e.ItemID]
			if !ok {
				return inventory.ErrItemNotFound
			}
		}
		if !item.Quantity.Equal(e.BalanceBefore) {
			return fmt.Errorf("%w: item %s no longer at %s", inventory.ErrStaleBalance, e.ItemID, e.BalanceBefore)
		}
		item.Quantity = e.BalanceAfter
		item.UpdatedAt = e.CreatedAt
		staged[e.ItemID] = item
	}

	for id, item := range staged {
		m.items[id] = item
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *Memory) InsertItem(_ context.Context, item *inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.items {
		if existing.Name == item.Name {
			return inventory.ErrItemExists
		}
	}
	m.items[item.ID] = *item
	return nil
}

func (m *Memory) UpdateDetails(_ context.Context, item *inventory.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.items[item.ID]
	if !ok {
		return inventory.ErrItemNotFound
	}
	current.Name = item.Name
	current.Unit = item.Unit
	current.MinQuantity = item.MinQuantity
	current.UpdatedAt = item.UpdatedAt
	m.items[item.ID] = current
	return nil
}

func (m *Memory) HasTransactions(_ context.Context, itemID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ItemID == itemID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) GetItem(_ context.Context, id uuid.UUID) (*inventory.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, inventory.ErrItemNotFound
	}
	return &item, nil
}

func (m *Memory) ListItems(_ context.Context, lowOnly bool) ([]inventory.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inventory.Item, 0, len(m.items))
	for _, item := range m.items {
		if lowOnly && !item.IsLow() {
			continue
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) ListTransactions(_ context.Context, filter inventory.TransactionFilter) ([]inventory.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inventory.Transaction, 0)
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if filter.ItemID != nil && e.ItemID != *filter.ItemID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if !filter.From.IsZero() && e.CreatedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !e.CreatedAt.Before(filter.To) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) History(_ context.Context, itemID uuid.UUID) ([]inventory.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]inventory.Transaction, 0)
	for _, e := range m.entries {
		if e.ItemID == itemID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) InTx(_ context.Context, fn func(tx inventory.TxStore) error) error {
	m.mu.Lock()
	items := make(map[uuid.UUID]inventory.Item, len(m.items))
	for id, item := range m.items {
		items[id] = item
	}
	n := len(m.entries)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.items = items
		m.entries = m.entries[:n]
		m.mu.Unlock()
		return err
	}
	return nil
}
