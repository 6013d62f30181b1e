// Package store provides an in-memory implementation of the ledger storage
// interfaces for tests and development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/magtrack/ledger"
)

// =============================================================================
// MEMORY STORE - Implements every storage interface
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	entries   []ledger.Entry
	magazines map[ledger.MagazineID]ledger.Magazine
	products  map[ledger.ProductID]ledger.Product
	recons    map[ledger.ReconciliationID]ledger.Reconciliation
	audits    []ledger.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{
		magazines: make(map[ledger.MagazineID]ledger.Magazine),
		products:  make(map[ledger.ProductID]ledger.Product),
		recons:    make(map[ledger.ReconciliationID]ledger.Reconciliation),
	}
}

// =============================================================================
// ENTRY STORE (ledger.Store)
// =============================================================================

func (m *Memory) Append(_ context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLocked(e)
	return nil
}

func (m *Memory) AppendBatch(_ context.Context, es []ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range es {
		m.appendLocked(e)
	}
	return nil
}

func (m *Memory) appendLocked(e ledger.Entry) {
	// Insertion keeps chronological order by OccurredAt, creation order for ties.
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].OccurredAt.After(e.OccurredAt)
	})
	m.entries = append(m.entries, ledger.Entry{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = e
}

func (m *Memory) EntriesByPair(_ context.Context, mag ledger.MagazineID, p ledger.ProductID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.ProductID == p && e.Magazine() == mag {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) EntriesByMagazine(_ context.Context, mag ledger.MagazineID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.Magazine() == mag {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) EntriesByProduct(_ context.Context, p ledger.ProductID) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.ProductID == p {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) EntriesInRange(_ context.Context, from, to time.Time) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Entry
	for _, e := range m.entries {
		if !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) Entries(_ context.Context) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Entry, len(m.entries))
	copy(out, m.entries)
	// Newest first for listing parity with the sqlite store.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return out, nil
}

func (m *Memory) GetEntry(_ context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore)
// =============================================================================

// WithTx simulates a storage transaction with a snapshot + rollback on error.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	entries []ledger.Entry
	recons  map[ledger.ReconciliationID]ledger.Reconciliation
}

func (m *Memory) snapshot() memorySnapshot {
	entries := make([]ledger.Entry, len(m.entries))
	copy(entries, m.entries)
	recons := make(map[ledger.ReconciliationID]ledger.Reconciliation, len(m.recons))
	for k, v := range m.recons {
		recons[k] = v
	}
	return memorySnapshot{entries: entries, recons: recons}
}

func (m *Memory) restore(s memorySnapshot) {
	m.entries = s.entries
	m.recons = s.recons
}

// txView writes directly against the parent (already locked by WithTx);
// rollback is handled by the snapshot.
type txView struct {
	parent *Memory
}

func (tv *txView) Append(_ context.Context, e ledger.Entry) error {
	tv.parent.appendLocked(e)
	return nil
}

func (tv *txView) AppendBatch(_ context.Context, es []ledger.Entry) error {
	for _, e := range es {
		tv.parent.appendLocked(e)
	}
	return nil
}

func (tv *txView) EntriesByPair(ctx context.Context, mag ledger.MagazineID, p ledger.ProductID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range tv.parent.entries {
		if e.ProductID == p && e.Magazine() == mag {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tv *txView) EntriesByMagazine(ctx context.Context, mag ledger.MagazineID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range tv.parent.entries {
		if e.Magazine() == mag {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tv *txView) EntriesByProduct(ctx context.Context, p ledger.ProductID) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range tv.parent.entries {
		if e.ProductID == p {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tv *txView) EntriesInRange(ctx context.Context, from, to time.Time) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range tv.parent.entries {
		if !e.OccurredAt.Before(from) && !e.OccurredAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tv *txView) Entries(ctx context.Context) ([]ledger.Entry, error) {
	out := make([]ledger.Entry, len(tv.parent.entries))
	copy(out, tv.parent.entries)
	return out, nil
}

func (tv *txView) GetEntry(ctx context.Context, id ledger.EntryID) (*ledger.Entry, error) {
	for _, e := range tv.parent.entries {
		if e.ID == id {
			cp := e
			return &cp, nil
		}
	}
	return nil, nil
}

func (tv *txView) SaveReconciliation(_ context.Context, r ledger.Reconciliation) error {
	tv.parent.recons[r.ID] = r
	return nil
}

func (tv *txView) GetReconciliation(_ context.Context, id ledger.ReconciliationID) (*ledger.Reconciliation, error) {
	if r, ok := tv.parent.recons[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (tv *txView) ListReconciliations(ctx context.Context, f ledger.ReconciliationFilter) ([]ledger.Reconciliation, error) {
	return tv.parent.listReconsLocked(f), nil
}

func (tv *txView) HasUnresolved(_ context.Context, mag ledger.MagazineID, p ledger.ProductID) (bool, error) {
	return tv.parent.hasUnresolvedLocked(mag, p), nil
}

func (tv *txView) MarkResolved(_ context.Context, id ledger.ReconciliationID, resolvedBy, notes string, at time.Time) error {
	return tv.parent.markResolvedLocked(id, resolvedBy, notes, at)
}

// =============================================================================
// CATALOG STORE (ledger.CatalogStore)
// =============================================================================

func (m *Memory) SaveMagazine(_ context.Context, mag ledger.Magazine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.magazines {
		if existing.Code == mag.Code {
			return &ledger.DuplicateKeyError{Entity: "magazine", Key: "code", Value: mag.Code}
		}
	}
	m.magazines[mag.ID] = mag
	return nil
}

func (m *Memory) UpdateMagazine(_ context.Context, mag ledger.Magazine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.magazines[mag.ID]; !ok {
		return &ledger.NotFoundError{Entity: "magazine", ID: string(mag.ID)}
	}
	for id, existing := range m.magazines {
		if id != mag.ID && existing.Code == mag.Code {
			return &ledger.DuplicateKeyError{Entity: "magazine", Key: "code", Value: mag.Code}
		}
	}
	m.magazines[mag.ID] = mag
	return nil
}

func (m *Memory) GetMagazine(_ context.Context, id ledger.MagazineID) (*ledger.Magazine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if mag, ok := m.magazines[id]; ok {
		return &mag, nil
	}
	return nil, nil
}

func (m *Memory) ListMagazines(_ context.Context) ([]ledger.Magazine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Magazine, 0, len(m.magazines))
	for _, mag := range m.magazines {
		out = append(out, mag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) DeleteMagazine(_ context.Context, id ledger.MagazineID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.magazines[id]; !ok {
		return &ledger.NotFoundError{Entity: "magazine", ID: string(id)}
	}
	for _, e := range m.entries {
		if e.Magazine() == id {
			return ledger.ErrReferentialIntegrity
		}
	}
	delete(m.magazines, id)
	return nil
}

func (m *Memory) ArchiveMagazine(_ context.Context, id ledger.MagazineID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mag, ok := m.magazines[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "magazine", ID: string(id)}
	}
	mag.Archived = true
	mag.UpdatedAt = time.Now().UTC()
	m.magazines[id] = mag
	return nil
}

func (m *Memory) SaveProduct(_ context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.products {
		if existing.UNNumber == p.UNNumber {
			return &ledger.DuplicateKeyError{Entity: "product", Key: "un_number", Value: p.UNNumber}
		}
	}
	m.products[p.ID] = p
	return nil
}

func (m *Memory) UpdateProduct(_ context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[p.ID]; !ok {
		return &ledger.NotFoundError{Entity: "product", ID: string(p.ID)}
	}
	for id, existing := range m.products {
		if id != p.ID && existing.UNNumber == p.UNNumber {
			return &ledger.DuplicateKeyError{Entity: "product", Key: "un_number", Value: p.UNNumber}
		}
	}
	m.products[p.ID] = p
	return nil
}

func (m *Memory) GetProduct(_ context.Context, id ledger.ProductID) (*ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.products[id]; ok {
		return &p, nil
	}
	return nil, nil
}

func (m *Memory) ListProducts(_ context.Context) ([]ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) DeleteProduct(_ context.Context, id ledger.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.products[id]; !ok {
		return &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	for _, e := range m.entries {
		if e.ProductID == id {
			return ledger.ErrReferentialIntegrity
		}
	}
	delete(m.products, id)
	return nil
}

func (m *Memory) ArchiveProduct(_ context.Context, id ledger.ProductID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "product", ID: string(id)}
	}
	p.Archived = true
	p.UpdatedAt = time.Now().UTC()
	m.products[id] = p
	return nil
}

// =============================================================================
// RECONCILIATION STORE (ledger.ReconciliationStore)
// =============================================================================

func (m *Memory) SaveReconciliation(_ context.Context, r ledger.Reconciliation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recons[r.ID] = r
	return nil
}

func (m *Memory) GetReconciliation(_ context.Context, id ledger.ReconciliationID) (*ledger.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.recons[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (m *Memory) ListReconciliations(_ context.Context, f ledger.ReconciliationFilter) ([]ledger.Reconciliation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReconsLocked(f), nil
}

func (m *Memory) listReconsLocked(f ledger.ReconciliationFilter) []ledger.Reconciliation {
	var out []ledger.Reconciliation
	for _, r := range m.recons {
		if f.MagazineID != nil && r.MagazineID != *f.MagazineID {
			continue
		}
		if f.ProductID != nil && r.ProductID != *f.ProductID {
			continue
		}
		if f.UnresolvedOnly && r.Resolved {
			continue
		}
		if f.From != nil && r.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && r.Date.After(*f.To) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

func (m *Memory) HasUnresolved(_ context.Context, mag ledger.MagazineID, p ledger.ProductID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasUnresolvedLocked(mag, p), nil
}

func (m *Memory) hasUnresolvedLocked(mag ledger.MagazineID, p ledger.ProductID) bool {
	for _, r := range m.recons {
		if r.MagazineID == mag && r.ProductID == p && !r.Resolved {
			return true
		}
	}
	return false
}

func (m *Memory) MarkResolved(_ context.Context, id ledger.ReconciliationID, resolvedBy, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markResolvedLocked(id, resolvedBy, notes, at)
}

func (m *Memory) markResolvedLocked(id ledger.ReconciliationID, resolvedBy, notes string, at time.Time) error {
	r, ok := m.recons[id]
	if !ok {
		return &ledger.NotFoundError{Entity: "reconciliation", ID: string(id)}
	}
	if r.Resolved {
		return ledger.ErrAlreadyResolved
	}
	r.Resolved = true
	r.ResolvedBy = resolvedBy
	r.ResolutionNotes = notes
	r.ResolvedAt = &at
	m.recons[id] = r
	return nil
}

// =============================================================================
// AUDIT LOG (ledger.AuditLog)
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	m.audits = append(m.audits, e)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, f ledger.AuditFilter) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.AuditEntry
	for _, e := range m.audits {
		if f.ActorID != nil && e.ActorID != *f.ActorID {
			continue
		}
		if f.Entity != nil && e.Entity != *f.Entity {
			continue
		}
		if f.EntityID != nil && e.EntityID != *f.EntityID {
			continue
		}
		if len(f.Actions) > 0 && !containsAction(f.Actions, e.Action) {
			continue
		}
		if f.From != nil && e.Timestamp.Before(*f.From) {
			continue
		}
		if f.To != nil && e.Timestamp.After(*f.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func containsAction(actions []ledger.AuditAction, a ledger.AuditAction) bool {
	for _, v := range actions {
		if v == a {
			return true
		}
	}
	return false
}
