// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/warp/premium-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	rows      map[generic.CommissionID]generic.Commission
	seq       map[generic.CommissionID]int
	next      int
	documents map[docKey][]byte
	now       func() time.Time
}

type docKey struct {
	Kind string
	ID   string
}

func NewMemory() *Memory {
	return &Memory{
		rows:      make(map[generic.CommissionID]generic.Commission),
		seq:       make(map[generic.CommissionID]int),
		documents: make(map[docKey][]byte),
		now:       time.Now,
	}
}

func (m *Memory) Save(_ context.Context, rows []generic.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(rows)
}

func (m *Memory) Delete(_ context.Context, ids []generic.CommissionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLocked(ids)
}

func (m *Memory) Find(_ context.Context, filter generic.Filter) ([]generic.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findLocked(filter), nil
}

func (m *Memory) Get(_ context.Context, id generic.CommissionID) (generic.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) MarkInvoiced(_ context.Context, ids []generic.CommissionID, invoiceLine string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markLocked(ids, invoiceLine)
}

// saveLocked checks every row before writing any (atomic batch).
func (m *Memory) saveLocked(rows []generic.Commission) error {
	for _, c := range rows {
		if c.ID == "" {
			return errors.New("commission row without id")
		}
		if existing, ok := m.rows[c.ID]; ok && existing.IsInvoiced() {
			return &generic.InvoicedCommissionError{CommissionID: c.ID, InvoiceLine: existing.InvoiceLine}
		}
	}
	for _, c := range rows {
		if existing, ok := m.rows[c.ID]; ok {
			c.CreatedAt = existing.CreatedAt
		} else {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = m.now()
			}
			m.seq[c.ID] = m.next
			m.next++
		}
		m.rows[c.ID] = c
	}
	return nil
}

func (m *Memory) deleteLocked(ids []generic.CommissionID) error {
	for _, id := range ids {
		c, ok := m.rows[id]
		if !ok {
			return errors.Wrapf(generic.ErrNotFound, "commission %s", id)
		}
		if c.IsInvoiced() {
			return &generic.InvoicedCommissionError{CommissionID: id, InvoiceLine: c.InvoiceLine}
		}
	}
	for _, id := range ids {
		delete(m.rows, id)
		delete(m.seq, id)
	}
	return nil
}

func (m *Memory) findLocked(filter generic.Filter) []generic.Commission {
	var result []generic.Commission
	for _, c := range m.rows {
		if filter.Matches(c) {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return m.seq[result[i].ID] < m.seq[result[j].ID]
	})
	return result
}

func (m *Memory) getLocked(id generic.CommissionID) (generic.Commission, error) {
	c, ok := m.rows[id]
	if !ok {
		return generic.Commission{}, errors.Wrapf(generic.ErrNotFound, "commission %s", id)
	}
	return c, nil
}

func (m *Memory) markLocked(ids []generic.CommissionID, invoiceLine string) error {
	for _, id := range ids {
		c, err := m.getLocked(id)
		if err != nil {
			return err
		}
		if c.IsInvoiced() {
			return &generic.InvoicedCommissionError{CommissionID: id, InvoiceLine: c.InvoiceLine}
		}
	}
	for _, id := range ids {
		c := m.rows[id]
		c.InvoiceLine = invoiceLine
		m.rows[id] = c
	}
	return nil
}

// =============================================================================
// DOCUMENTS
// =============================================================================

func (m *Memory) PutDocument(_ context.Context, kind, id string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[docKey{Kind: kind, ID: id}] = append([]byte(nil), body...)
	return nil
}

func (m *Memory) GetDocument(_ context.Context, kind, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.documents[docKey{Kind: kind, ID: id}]
	if !ok {
		return nil, errors.Wrapf(generic.ErrNotFound, "%s %s", kind, id)
	}
	return append([]byte(nil), body...), nil
}

func (m *Memory) ListDocuments(_ context.Context, kind string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for k := range m.documents {
		if k.Kind == kind {
			ids = append(ids, k.ID)
		}
	}
	sort.Strings(ids)
	result := make([][]byte, 0, len(ids))
	for _, id := range ids {
		result = append(result, append([]byte(nil), m.documents[docKey{Kind: kind, ID: id}]...))
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(_ context.Context, fn func(generic.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	rows := make(map[generic.CommissionID]generic.Commission, len(tm.rows))
	for k, v := range tm.rows {
		rows[k] = v
	}
	seq := make(map[generic.CommissionID]int, len(tm.seq))
	for k, v := range tm.seq {
		seq[k] = v
	}
	return memorySnapshot{rows: rows, seq: seq, next: tm.next}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.rows = s.rows
	tm.seq = s.seq
	tm.next = s.next
}

type memorySnapshot struct {
	rows map[generic.CommissionID]generic.Commission
	seq  map[generic.CommissionID]int
	next int
}

// txMemoryView runs under the parent's write lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) Save(_ context.Context, rows []generic.Commission) error {
	return tv.parent.saveLocked(rows)
}

func (tv *txMemoryView) Delete(_ context.Context, ids []generic.CommissionID) error {
	return tv.parent.deleteLocked(ids)
}

func (tv *txMemoryView) Find(_ context.Context, filter generic.Filter) ([]generic.Commission, error) {
	return tv.parent.findLocked(filter), nil
}

func (tv *txMemoryView) Get(_ context.Context, id generic.CommissionID) (generic.Commission, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) MarkInvoiced(_ context.Context, ids []generic.CommissionID, invoiceLine string) error {
	return tv.parent.markLocked(ids, invoiceLine)
}
