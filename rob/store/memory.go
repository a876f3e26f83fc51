// Package store provides an in-memory rob.TxStore for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/harborline/voyage-engine/rob"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu      sync.RWMutex
	reports map[rob.ReportID]*rob.Report
	ledger  map[string][]rob.LedgerEntry // keyed by PartitionKey.String()
	dosing  map[rob.DosingEventID]*rob.DosingEvent
	seq     int64
}

func NewMemory() *Memory {
	return &Memory{
		reports: make(map[rob.ReportID]*rob.Report),
		ledger:  make(map[string][]rob.LedgerEntry),
		dosing:  make(map[rob.DosingEventID]*rob.DosingEvent),
	}
}

// =============================================================================
// REPORT STORE
// =============================================================================

func (m *Memory) SaveReport(_ context.Context, r *rob.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveReportLocked(r)
}

func (m *Memory) saveReportLocked(r *rob.Report) error {
	// Full replace of master + child lines; the stored copy never aliases
	// the caller's slices.
	m.reports[r.ID] = cloneReport(r)
	return nil
}

func (m *Memory) GetReport(_ context.Context, id rob.ReportID) (*rob.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getReportLocked(id), nil
}

func (m *Memory) getReportLocked(id rob.ReportID) *rob.Report {
	r, ok := m.reports[id]
	if !ok || r.Status == rob.StatusDeleted {
		return nil
	}
	return cloneReport(r)
}

func (m *Memory) MarkSubmitted(_ context.Context, id rob.ReportID, durationHrs float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.markSubmittedLocked(id, durationHrs)
}

func (m *Memory) markSubmittedLocked(id rob.ReportID, durationHrs float64) error {
	r, ok := m.reports[id]
	if !ok || r.Status == rob.StatusDeleted {
		return rob.ErrReportNotFound
	}
	r.Status = rob.StatusSubmitted
	r.DurationHrs = durationHrs
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) SoftDeleteReport(_ context.Context, id rob.ReportID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.softDeleteLocked(id)
}

func (m *Memory) softDeleteLocked(id rob.ReportID) error {
	r, ok := m.reports[id]
	if !ok || r.Status == rob.StatusDeleted {
		return rob.ErrReportNotFound
	}
	r.Status = rob.StatusDeleted
	r.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) LatestSubmitted(_ context.Context, shipID rob.ShipID) (*rob.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestSubmittedLocked(shipID), nil
}

func (m *Memory) latestSubmittedLocked(shipID rob.ShipID) *rob.Report {
	var latest *rob.Report
	for _, r := range m.reports {
		if r.ShipID != shipID || r.Status != rob.StatusSubmitted {
			continue
		}
		if latest == nil || r.UTC.After(latest.UTC) {
			latest = r
		}
	}
	if latest == nil {
		return nil
	}
	return cloneReport(latest)
}

func (m *Memory) LatestBefore(_ context.Context, shipID rob.ShipID, before time.Time, excludeID rob.ReportID) (*rob.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestBeforeLocked(shipID, before, excludeID), nil
}

func (m *Memory) latestBeforeLocked(shipID rob.ShipID, before time.Time, excludeID rob.ReportID) *rob.Report {
	var latest *rob.Report
	for _, r := range m.reports {
		if r.ShipID != shipID || r.Status == rob.StatusDeleted || r.ID == excludeID {
			continue
		}
		if !r.UTC.Before(before) {
			continue
		}
		if latest == nil || r.UTC.After(latest.UTC) {
			latest = r
		}
	}
	if latest == nil {
		return nil
	}
	return cloneReport(latest)
}

func (m *Memory) ListReports(_ context.Context, shipID rob.ShipID) ([]rob.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listReportsLocked(shipID), nil
}

func (m *Memory) listReportsLocked(shipID rob.ShipID) []rob.Report {
	var result []rob.Report
	for _, r := range m.reports {
		if r.ShipID != shipID || r.Status == rob.StatusDeleted {
			continue
		}
		result = append(result, *cloneReport(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UTC.Before(result[j].UTC) })
	return result
}

// =============================================================================
// LEDGER STORE - Append-only
// =============================================================================

func (m *Memory) AppendLedgerEntry(_ context.Context, e *rob.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLedgerLocked(e)
}

func (m *Memory) appendLedgerLocked(e *rob.LedgerEntry) error {
	m.seq++
	e.Seq = m.seq
	k := e.Partition.String()
	m.ledger[k] = append(m.ledger[k], *e)
	return nil
}

func (m *Memory) LatestLedgerEntry(_ context.Context, key rob.PartitionKey) (*rob.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.latestLedgerLocked(key), nil
}

func (m *Memory) latestLedgerLocked(key rob.PartitionKey) *rob.LedgerEntry {
	chain := m.ledger[key.String()]
	if len(chain) == 0 {
		return nil
	}
	head := chain[len(chain)-1]
	return &head
}

func (m *Memory) LedgerHistory(_ context.Context, key rob.PartitionKey) ([]rob.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ledgerHistoryLocked(key), nil
}

func (m *Memory) ledgerHistoryLocked(key rob.PartitionKey) []rob.LedgerEntry {
	chain := m.ledger[key.String()]
	result := make([]rob.LedgerEntry, len(chain))
	copy(result, chain)
	return result
}

func (m *Memory) ConsumptionsSince(_ context.Context, key rob.PartitionKey, since time.Time) ([]rob.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consumptionsSinceLocked(key, since), nil
}

func (m *Memory) consumptionsSinceLocked(key rob.PartitionKey, since time.Time) []rob.LedgerEntry {
	var result []rob.LedgerEntry
	for _, e := range m.ledger[key.String()] {
		if e.Consumed.IsPositive() && !e.EventTimestamp.Before(since) {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].EventTimestamp.Equal(result[j].EventTimestamp) {
			return result[i].Seq < result[j].Seq
		}
		return result[i].EventTimestamp.Before(result[j].EventTimestamp)
	})
	return result
}

// =============================================================================
// DOSING STORE
// =============================================================================

func (m *Memory) SaveDosingEvent(_ context.Context, e *rob.DosingEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveDosingLocked(e)
}

func (m *Memory) saveDosingLocked(e *rob.DosingEvent) error {
	m.dosing[e.ID] = cloneDosing(e)
	return nil
}

func (m *Memory) GetDosingEvent(_ context.Context, id rob.DosingEventID) (*rob.DosingEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getDosingLocked(id), nil
}

func (m *Memory) getDosingLocked(id rob.DosingEventID) *rob.DosingEvent {
	e, ok := m.dosing[id]
	if !ok {
		return nil
	}
	return cloneDosing(e)
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

// WithTx executes fn under the store lock with snapshot + rollback on error.
// Holding the lock for the whole read-compute-append sequence is the memory
// analog of the single-writer serialization the SQLite store gets from its
// database transaction.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(rob.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	reports map[rob.ReportID]*rob.Report
	ledger  map[string][]rob.LedgerEntry
	dosing  map[rob.DosingEventID]*rob.DosingEvent
	seq     int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		reports: make(map[rob.ReportID]*rob.Report, len(tm.reports)),
		ledger:  make(map[string][]rob.LedgerEntry, len(tm.ledger)),
		dosing:  make(map[rob.DosingEventID]*rob.DosingEvent, len(tm.dosing)),
		seq:     tm.seq,
	}
	for id, r := range tm.reports {
		s.reports[id] = cloneReport(r)
	}
	for k, chain := range tm.ledger {
		s.ledger[k] = append([]rob.LedgerEntry{}, chain...)
	}
	for id, e := range tm.dosing {
		s.dosing[id] = cloneDosing(e)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.reports = s.reports
	tm.ledger = s.ledger
	tm.dosing = s.dosing
	tm.seq = s.seq
}

// txMemoryView routes Store calls to the parent's unlocked internals while
// WithTx holds the lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) SaveReport(_ context.Context, r *rob.Report) error {
	return tv.parent.saveReportLocked(r)
}

func (tv *txMemoryView) GetReport(_ context.Context, id rob.ReportID) (*rob.Report, error) {
	return tv.parent.getReportLocked(id), nil
}

func (tv *txMemoryView) MarkSubmitted(_ context.Context, id rob.ReportID, durationHrs float64) error {
	return tv.parent.markSubmittedLocked(id, durationHrs)
}

func (tv *txMemoryView) SoftDeleteReport(_ context.Context, id rob.ReportID) error {
	return tv.parent.softDeleteLocked(id)
}

func (tv *txMemoryView) LatestSubmitted(_ context.Context, shipID rob.ShipID) (*rob.Report, error) {
	return tv.parent.latestSubmittedLocked(shipID), nil
}

func (tv *txMemoryView) LatestBefore(_ context.Context, shipID rob.ShipID, before time.Time, excludeID rob.ReportID) (*rob.Report, error) {
	return tv.parent.latestBeforeLocked(shipID, before, excludeID), nil
}

func (tv *txMemoryView) ListReports(_ context.Context, shipID rob.ShipID) ([]rob.Report, error) {
	return tv.parent.listReportsLocked(shipID), nil
}

func (tv *txMemoryView) AppendLedgerEntry(_ context.Context, e *rob.LedgerEntry) error {
	return tv.parent.appendLedgerLocked(e)
}

func (tv *txMemoryView) LatestLedgerEntry(_ context.Context, key rob.PartitionKey) (*rob.LedgerEntry, error) {
	return tv.parent.latestLedgerLocked(key), nil
}

func (tv *txMemoryView) LedgerHistory(_ context.Context, key rob.PartitionKey) ([]rob.LedgerEntry, error) {
	return tv.parent.ledgerHistoryLocked(key), nil
}

func (tv *txMemoryView) ConsumptionsSince(_ context.Context, key rob.PartitionKey, since time.Time) ([]rob.LedgerEntry, error) {
	return tv.parent.consumptionsSinceLocked(key, since), nil
}

func (tv *txMemoryView) SaveDosingEvent(_ context.Context, e *rob.DosingEvent) error {
	return tv.parent.saveDosingLocked(e)
}

func (tv *txMemoryView) GetDosingEvent(_ context.Context, id rob.DosingEventID) (*rob.DosingEvent, error) {
	return tv.parent.getDosingLocked(id), nil
}

// =============================================================================
// CLONE HELPERS
// =============================================================================

func cloneReport(r *rob.Report) *rob.Report {
	c := *r
	c.ConsumptionLines = append([]rob.ConsumptionLine{}, r.ConsumptionLines...)
	c.BunkerLines = append([]rob.BunkerLine{}, r.BunkerLines...)
	c.MachineryLines = append([]rob.MachineryLine{}, r.MachineryLines...)
	if r.CargoLoadedMT != nil {
		v := *r.CargoLoadedMT
		c.CargoLoadedMT = &v
	}
	if r.CargoDischargedMT != nil {
		v := *r.CargoDischargedMT
		c.CargoDischargedMT = &v
	}
	return &c
}

func cloneDosing(e *rob.DosingEvent) *rob.DosingEvent {
	c := *e
	c.Allocations = append([]rob.LotAllocation{}, e.Allocations...)
	c.MachineryIDs = append([]string{}, e.MachineryIDs...)
	return &c
}
