/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements rob.TxStore using SQLite. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  The ledger_entries table is append-only:
  - No UPDATE statements on ledger_entries
  - No DELETE statements on ledger_entries
  - Corrections via compensating rows only
  The seq column (AUTOINCREMENT) is the chain's insertion sequence; reading
  the chain head is ORDER BY seq DESC LIMIT 1.

KEY TABLES:
  reports:            Report masters (mutable while draft, soft-deleted)
  consumption_lines:  Child lines, replaced wholesale on every save
  bunker_lines:       BDN receipt lines, same replace semantics
  machinery_lines:    Machinery counters, same replace semantics
  ledger_entries:     Immutable ROB postings, one row per (partition, event)
  dosing_events:      Additive dosing intake
  dosing_allocations: Per-lot allocations of a dosing event

CONCURRENCY:
  Uses sync.RWMutex around the handle plus WAL mode. WithTx holds the write
  lock for the whole read-compute-append sequence, which is what serializes
  two producers posting against the same partition key.

USAGE:
  store, err := sqlite.New("./data/voyage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - rob/store.go: interface definitions
  - rob/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/harborline/voyage-engine/rob"
)

const localLayout = "2006-01-02T15:04:05"

// Store implements rob.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: the store serializes writers itself, and pooled
	// connections would each see a different ":memory:" database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Report masters
	CREATE TABLE IF NOT EXISTS reports (
		id TEXT PRIMARY KEY,
		ship_id TEXT NOT NULL,
		type_key TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		utc_time TEXT NOT NULL,
		local_time TEXT NOT NULL,
		offset_minutes INTEGER NOT NULL DEFAULT 0,
		duration_hrs REAL NOT NULL DEFAULT 0,
		voyage_id TEXT,
		voyage_leg_id TEXT,
		cargo_loaded TEXT,
		cargo_discharged TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Sequencer hot path: latest submitted report per ship
	CREATE INDEX IF NOT EXISTS idx_reports_ship_status_utc
		ON reports(ship_id, status, utc_time DESC);
	CREATE INDEX IF NOT EXISTS idx_reports_ship_utc
		ON reports(ship_id, utc_time);

	-- Child lines: replaced wholesale on every report save
	CREATE TABLE IF NOT EXISTS consumption_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL,
		category TEXT NOT NULL,
		item_type TEXT NOT NULL,
		lot_ref TEXT,
		quantity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_consumption_lines_report
		ON consumption_lines(report_id);

	CREATE TABLE IF NOT EXISTS bunker_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL,
		category TEXT NOT NULL,
		item_type TEXT NOT NULL,
		lot_ref TEXT NOT NULL,
		quantity TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_bunker_lines_report
		ON bunker_lines(report_id);

	CREATE TABLE IF NOT EXISTS machinery_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		report_id TEXT NOT NULL,
		machinery_id TEXT NOT NULL,
		class TEXT NOT NULL,
		running_hours REAL NOT NULL DEFAULT 0,
		power REAL,
		rpm REAL
	);
	CREATE INDEX IF NOT EXISTS idx_machinery_lines_report
		ON machinery_lines(report_id);

	-- Append-only ROB ledger. seq is the chain's insertion sequence.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		partition_key TEXT NOT NULL,
		ship_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		ref TEXT NOT NULL,
		category TEXT NOT NULL,
		event_at TEXT NOT NULL,
		bunkered TEXT NOT NULL,
		consumed TEXT NOT NULL,
		initial TEXT NOT NULL,
		final TEXT NOT NULL,
		causal_kind TEXT NOT NULL,
		causal_ref TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Chain-head lookup (hot path on every posting)
	CREATE INDEX IF NOT EXISTS idx_ledger_partition_seq
		ON ledger_entries(partition_key, seq DESC);
	-- Depletion timeline queries
	CREATE INDEX IF NOT EXISTS idx_ledger_partition_event
		ON ledger_entries(partition_key, event_at);
	-- Causal event tracking
	CREATE INDEX IF NOT EXISTS idx_ledger_causal
		ON ledger_entries(causal_kind, causal_ref);

	-- Dosing intake
	CREATE TABLE IF NOT EXISTS dosing_events (
		id TEXT PRIMARY KEY,
		ship_id TEXT NOT NULL,
		event_at TEXT NOT NULL,
		additive_type TEXT NOT NULL,
		dosing_qty TEXT NOT NULL,
		machinery_json TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dosing_ship
		ON dosing_events(ship_id, event_at);

	CREATE TABLE IF NOT EXISTS dosing_allocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		lot_ref TEXT NOT NULL,
		category TEXT NOT NULL,
		item_type TEXT,
		quantity TEXT NOT NULL,
		blended_qty TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_dosing_allocations_event
		ON dosing_allocations(event_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the subset of *sql.DB / *sql.Tx the store queries through.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// REPORT STORE (rob.ReportStore interface)
// =============================================================================

// SaveReport upserts the master and replaces all child lines.
func (s *Store) SaveReport(ctx context.Context, r *rob.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.saveReportTx(ctx, tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) saveReportTx(ctx context.Context, q dbtx, r *rob.Report) error {
	query := `
		INSERT INTO reports
		(id, ship_id, type_key, status, utc_time, local_time, offset_minutes,
		 duration_hrs, voyage_id, voyage_leg_id, cargo_loaded, cargo_discharged,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type_key = excluded.type_key,
			status = excluded.status,
			utc_time = excluded.utc_time,
			local_time = excluded.local_time,
			offset_minutes = excluded.offset_minutes,
			duration_hrs = excluded.duration_hrs,
			voyage_id = excluded.voyage_id,
			voyage_leg_id = excluded.voyage_leg_id,
			cargo_loaded = excluded.cargo_loaded,
			cargo_discharged = excluded.cargo_discharged,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		r.ID, r.ShipID, r.TypeKey, r.Status,
		r.UTC.UTC().Format(time.RFC3339),
		r.Local.Format(localLayout),
		r.OffsetMinutes,
		r.DurationHrs,
		nullString(r.VoyageID),
		nullString(r.VoyageLegID),
		nullQuantity(r.CargoLoadedMT),
		nullQuantity(r.CargoDischargedMT),
		r.CreatedAt.UTC().Format(time.RFC3339),
		r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}

	// Child lines are replaced wholesale: delete-all, re-insert.
	for _, table := range []string{"consumption_lines", "bunker_lines", "machinery_lines"} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table+" WHERE report_id = ?", r.ID); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, line := range r.ConsumptionLines {
		_, err := q.ExecContext(ctx,
			`INSERT INTO consumption_lines (report_id, category, item_type, lot_ref, quantity)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ID, line.Category, line.ItemType, nullString(string(line.LotRef)), line.Quantity.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert consumption line: %w", err)
		}
	}
	for _, line := range r.BunkerLines {
		_, err := q.ExecContext(ctx,
			`INSERT INTO bunker_lines (report_id, category, item_type, lot_ref, quantity)
			 VALUES (?, ?, ?, ?, ?)`,
			r.ID, line.Category, line.ItemType, line.LotRef, line.Quantity.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert bunker line: %w", err)
		}
	}
	for _, line := range r.MachineryLines {
		_, err := q.ExecContext(ctx,
			`INSERT INTO machinery_lines (report_id, machinery_id, class, running_hours, power, rpm)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			r.ID, line.MachineryID, line.Class, line.RunningHours, line.Power, line.RPM,
		)
		if err != nil {
			return fmt.Errorf("failed to insert machinery line: %w", err)
		}
	}

	return nil
}

// GetReport returns a report with its child lines, or nil if absent or
// soft-deleted.
func (s *Store) GetReport(ctx context.Context, id rob.ReportID) (*rob.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getReport(ctx, s.db, id)
}

func (s *Store) getReport(ctx context.Context, q dbtx, id rob.ReportID) (*rob.Report, error) {
	query := reportSelect + ` WHERE id = ? AND status != 'deleted'`
	r, err := scanReport(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, q, r); err != nil {
		return nil, err
	}
	return r, nil
}

// MarkSubmitted flips a draft to submitted and records the derived duration.
func (s *Store) MarkSubmitted(ctx context.Context, id rob.ReportID, durationHrs float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markSubmitted(ctx, s.db, id, durationHrs)
}

func (s *Store) markSubmitted(ctx context.Context, q dbtx, id rob.ReportID, durationHrs float64) error {
	res, err := q.ExecContext(ctx,
		`UPDATE reports SET status = 'submitted', duration_hrs = ?, updated_at = ?
		 WHERE id = ? AND status = 'draft'`,
		durationHrs, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark submitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rob.ErrReportNotFound
	}
	return nil
}

// SoftDeleteReport marks the report deleted. Ledger rows already posted are
// immutable history and stay.
func (s *Store) SoftDeleteReport(ctx context.Context, id rob.ReportID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.softDeleteReport(ctx, s.db, id)
}

func (s *Store) softDeleteReport(ctx context.Context, q dbtx, id rob.ReportID) error {
	res, err := q.ExecContext(ctx,
		`UPDATE reports SET status = 'deleted', updated_at = ?
		 WHERE id = ? AND status != 'deleted'`,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("failed to soft delete report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return rob.ErrReportNotFound
	}
	return nil
}

// LatestSubmitted returns the ship's most recent submitted report by UTC time.
func (s *Store) LatestSubmitted(ctx context.Context, shipID rob.ShipID) (*rob.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestSubmitted(ctx, s.db, shipID)
}

func (s *Store) latestSubmitted(ctx context.Context, q dbtx, shipID rob.ShipID) (*rob.Report, error) {
	query := reportSelect + `
		WHERE ship_id = ? AND status = 'submitted'
		ORDER BY utc_time DESC LIMIT 1`
	r, err := scanReport(q.QueryRowContext(ctx, query, shipID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, q, r); err != nil {
		return nil, err
	}
	return r, nil
}

// LatestBefore returns the ship's most recent non-deleted report strictly
// before the given instant, excluding the report under submission.
func (s *Store) LatestBefore(ctx context.Context, shipID rob.ShipID, before time.Time, excludeID rob.ReportID) (*rob.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestBefore(ctx, s.db, shipID, before, excludeID)
}

func (s *Store) latestBefore(ctx context.Context, q dbtx, shipID rob.ShipID, before time.Time, excludeID rob.ReportID) (*rob.Report, error) {
	query := reportSelect + `
		WHERE ship_id = ? AND status != 'deleted' AND utc_time < ? AND id != ?
		ORDER BY utc_time DESC LIMIT 1`
	r, err := scanReport(q.QueryRowContext(ctx, query,
		shipID, before.UTC().Format(time.RFC3339), excludeID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadChildren(ctx, q, r); err != nil {
		return nil, err
	}
	return r, nil
}

// ListReports returns the ship's non-deleted reports ordered by UTC time.
func (s *Store) ListReports(ctx context.Context, shipID rob.ShipID) ([]rob.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listReports(ctx, s.db, shipID)
}

func (s *Store) listReports(ctx context.Context, q dbtx, shipID rob.ShipID) ([]rob.Report, error) {
	query := reportSelect + `
		WHERE ship_id = ? AND status != 'deleted'
		ORDER BY utc_time ASC`
	rows, err := q.QueryContext(ctx, query, shipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}

	var reports []rob.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range reports {
		if err := s.loadChildren(ctx, q, &reports[i]); err != nil {
			return nil, err
		}
	}
	return reports, nil
}

const reportSelect = `
	SELECT id, ship_id, type_key, status, utc_time, local_time, offset_minutes,
	       duration_hrs, voyage_id, voyage_leg_id, cargo_loaded, cargo_discharged,
	       created_at, updated_at
	FROM reports`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*rob.Report, error) {
	var (
		r                       rob.Report
		utcTime, localTime      string
		createdAt, updatedAt    string
		voyageID, voyageLegID   sql.NullString
		cargoLoaded, cargoDisch sql.NullString
	)

	err := row.Scan(
		&r.ID, &r.ShipID, &r.TypeKey, &r.Status, &utcTime, &localTime, &r.OffsetMinutes,
		&r.DurationHrs, &voyageID, &voyageLegID, &cargoLoaded, &cargoDisch,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.UTC, _ = time.Parse(time.RFC3339, utcTime)
	r.Local, _ = time.Parse(localLayout, localTime)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	r.VoyageID = voyageID.String
	r.VoyageLegID = voyageLegID.String
	if cargoLoaded.Valid {
		v, err := rob.ParseQuantity(cargoLoaded.String)
		if err != nil {
			return nil, fmt.Errorf("report %s cargo_loaded: %w", r.ID, err)
		}
		r.CargoLoadedMT = &v
	}
	if cargoDisch.Valid {
		v, err := rob.ParseQuantity(cargoDisch.String)
		if err != nil {
			return nil, fmt.Errorf("report %s cargo_discharged: %w", r.ID, err)
		}
		r.CargoDischargedMT = &v
	}
	return &r, nil
}

func (s *Store) loadChildren(ctx context.Context, q dbtx, r *rob.Report) error {
	rows, err := q.QueryContext(ctx,
		`SELECT category, item_type, lot_ref, quantity FROM consumption_lines
		 WHERE report_id = ? ORDER BY id`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to load consumption lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line rob.ConsumptionLine
		var lotRef sql.NullString
		var qty string
		if err := rows.Scan(&line.Category, &line.ItemType, &lotRef, &qty); err != nil {
			return err
		}
		line.LotRef = rob.LotRef(lotRef.String)
		if line.Quantity, err = rob.ParseQuantity(qty); err != nil {
			return fmt.Errorf("consumption line of report %s: %w", r.ID, err)
		}
		r.ConsumptionLines = append(r.ConsumptionLines, line)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	brows, err := q.QueryContext(ctx,
		`SELECT category, item_type, lot_ref, quantity FROM bunker_lines
		 WHERE report_id = ? ORDER BY id`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to load bunker lines: %w", err)
	}
	defer brows.Close()
	for brows.Next() {
		var line rob.BunkerLine
		var qty string
		if err := brows.Scan(&line.Category, &line.ItemType, &line.LotRef, &qty); err != nil {
			return err
		}
		if line.Quantity, err = rob.ParseQuantity(qty); err != nil {
			return fmt.Errorf("bunker line of report %s: %w", r.ID, err)
		}
		r.BunkerLines = append(r.BunkerLines, line)
	}
	if err := brows.Err(); err != nil {
		return err
	}

	mrows, err := q.QueryContext(ctx,
		`SELECT machinery_id, class, running_hours, power, rpm FROM machinery_lines
		 WHERE report_id = ? ORDER BY id`, r.ID)
	if err != nil {
		return fmt.Errorf("failed to load machinery lines: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var line rob.MachineryLine
		var power, rpm sql.NullFloat64
		if err := mrows.Scan(&line.MachineryID, &line.Class, &line.RunningHours, &power, &rpm); err != nil {
			return err
		}
		if power.Valid {
			line.Power = &power.Float64
		}
		if rpm.Valid {
			line.RPM = &rpm.Float64
		}
		r.MachineryLines = append(r.MachineryLines, line)
	}
	return mrows.Err()
}

// =============================================================================
// LEDGER STORE (rob.LedgerStore interface) - Append-only
// =============================================================================

// AppendLedgerEntry inserts a row and reads back its insertion sequence.
func (s *Store) AppendLedgerEntry(ctx context.Context, e *rob.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLedgerEntry(ctx, s.db, e)
}

func (s *Store) appendLedgerEntry(ctx context.Context, q dbtx, e *rob.LedgerEntry) error {
	res, err := q.ExecContext(ctx,
		`INSERT INTO ledger_entries
		 (id, partition_key, ship_id, kind, ref, category, event_at,
		  bunkered, consumed, initial, final, causal_kind, causal_ref, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Partition.String(),
		e.Partition.ShipID,
		e.Partition.Kind,
		e.Partition.Ref,
		e.Category,
		e.EventTimestamp.UTC().Format(time.RFC3339),
		e.Bunkered.String(),
		e.Consumed.String(),
		e.Initial.String(),
		e.Final.String(),
		e.CausalKind,
		e.CausalRef,
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read insertion sequence: %w", err)
	}
	e.Seq = seq
	return nil
}

// LatestLedgerEntry returns the chain head for a partition key.
func (s *Store) LatestLedgerEntry(ctx context.Context, key rob.PartitionKey) (*rob.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestLedgerEntry(ctx, s.db, key)
}

func (s *Store) latestLedgerEntry(ctx context.Context, q dbtx, key rob.PartitionKey) (*rob.LedgerEntry, error) {
	query := ledgerSelect + ` WHERE partition_key = ? ORDER BY seq DESC LIMIT 1`
	entries, err := queryLedgerEntries(ctx, q, query, key.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return &entries[0], nil
}

// LedgerHistory returns the full chain ordered by insertion sequence.
func (s *Store) LedgerHistory(ctx context.Context, key rob.PartitionKey) ([]rob.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledgerHistory(ctx, s.db, key)
}

func (s *Store) ledgerHistory(ctx context.Context, q dbtx, key rob.PartitionKey) ([]rob.LedgerEntry, error) {
	query := ledgerSelect + ` WHERE partition_key = ? ORDER BY seq ASC`
	return queryLedgerEntries(ctx, q, query, key.String())
}

// ConsumptionsSince returns depletion rows at or after the given instant.
func (s *Store) ConsumptionsSince(ctx context.Context, key rob.PartitionKey, since time.Time) ([]rob.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.consumptionsSince(ctx, s.db, key, since)
}

func (s *Store) consumptionsSince(ctx context.Context, q dbtx, key rob.PartitionKey, since time.Time) ([]rob.LedgerEntry, error) {
	query := ledgerSelect + `
		WHERE partition_key = ? AND event_at >= ? AND CAST(consumed AS REAL) > 0
		ORDER BY event_at ASC, seq ASC`
	return queryLedgerEntries(ctx, q, query, key.String(), since.UTC().Format(time.RFC3339))
}

const ledgerSelect = `
	SELECT seq, id, ship_id, kind, ref, category, event_at,
	       bunkered, consumed, initial, final, causal_kind, causal_ref, created_at
	FROM ledger_entries`

func queryLedgerEntries(ctx context.Context, q dbtx, query string, args ...any) ([]rob.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []rob.LedgerEntry
	for rows.Next() {
		var (
			e                                  rob.LedgerEntry
			eventAt, createdAt                 string
			bunkered, consumed, initial, final string
		)
		err := rows.Scan(
			&e.Seq, &e.ID, &e.Partition.ShipID, &e.Partition.Kind, &e.Partition.Ref,
			&e.Category, &eventAt, &bunkered, &consumed, &initial, &final,
			&e.CausalKind, &e.CausalRef, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.EventTimestamp, _ = time.Parse(time.RFC3339, eventAt)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		for _, col := range []struct {
			dst *rob.Quantity
			raw string
		}{{&e.Bunkered, bunkered}, {&e.Consumed, consumed}, {&e.Initial, initial}, {&e.Final, final}} {
			if *col.dst, err = rob.ParseQuantity(col.raw); err != nil {
				return nil, fmt.Errorf("ledger entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// DOSING STORE (rob.DosingStore interface)
// =============================================================================

func (s *Store) SaveDosingEvent(ctx context.Context, e *rob.DosingEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.saveDosingTx(ctx, tx, e); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) saveDosingTx(ctx context.Context, q dbtx, e *rob.DosingEvent) error {
	machineryJSON, _ := json.Marshal(e.MachineryIDs)

	_, err := q.ExecContext(ctx,
		`INSERT INTO dosing_events
		 (id, ship_id, event_at, additive_type, dosing_qty, machinery_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		e.ID, e.ShipID,
		e.Timestamp.UTC().Format(time.RFC3339),
		e.AdditiveTypeID,
		e.DosingQuantity.String(),
		string(machineryJSON),
		e.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save dosing event: %w", err)
	}

	for _, a := range e.Allocations {
		_, err := q.ExecContext(ctx,
			`INSERT INTO dosing_allocations
			 (event_id, lot_ref, category, item_type, quantity, blended_qty)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, a.LotRef, a.Category, nullString(a.ItemType),
			a.Quantity.String(), a.BlendedQuantity.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to save dosing allocation: %w", err)
		}
	}
	return nil
}

func (s *Store) GetDosingEvent(ctx context.Context, id rob.DosingEventID) (*rob.DosingEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDosingEvent(ctx, s.db, id)
}

func (s *Store) getDosingEvent(ctx context.Context, q dbtx, id rob.DosingEventID) (*rob.DosingEvent, error) {
	var (
		e                  rob.DosingEvent
		eventAt, createdAt string
		dosingQty          string
		machineryJSON      sql.NullString
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, ship_id, event_at, additive_type, dosing_qty, machinery_json, created_at
		 FROM dosing_events WHERE id = ?`, id,
	).Scan(&e.ID, &e.ShipID, &eventAt, &e.AdditiveTypeID, &dosingQty, &machineryJSON, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.Timestamp, _ = time.Parse(time.RFC3339, eventAt)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if e.DosingQuantity, err = rob.ParseQuantity(dosingQty); err != nil {
		return nil, fmt.Errorf("dosing event %s: %w", e.ID, err)
	}
	if machineryJSON.Valid && machineryJSON.String != "" {
		json.Unmarshal([]byte(machineryJSON.String), &e.MachineryIDs)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT lot_ref, category, item_type, quantity, blended_qty
		 FROM dosing_allocations WHERE event_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load dosing allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a rob.LotAllocation
		var itemType sql.NullString
		var qty, blended string
		if err := rows.Scan(&a.LotRef, &a.Category, &itemType, &qty, &blended); err != nil {
			return nil, err
		}
		a.ItemType = itemType.String
		if a.Quantity, err = rob.ParseQuantity(qty); err != nil {
			return nil, fmt.Errorf("dosing allocation %s/%s: %w", e.ID, a.LotRef, err)
		}
		if a.BlendedQuantity, err = rob.ParseQuantity(blended); err != nil {
			return nil, fmt.Errorf("dosing allocation %s/%s: %w", e.ID, a.LotRef, err)
		}
		e.Allocations = append(e.Allocations, a)
	}
	return &e, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (rob.TxStore interface)
// =============================================================================

// WithTx executes fn within one database transaction, holding the write lock
// for the duration of the read-compute-append sequence.
func (s *Store) WithTx(ctx context.Context, fn func(store rob.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) SaveReport(ctx context.Context, r *rob.Report) error {
	return ts.parent.saveReportTx(ctx, ts.tx, r)
}

func (ts *txStore) GetReport(ctx context.Context, id rob.ReportID) (*rob.Report, error) {
	return ts.parent.getReport(ctx, ts.tx, id)
}

func (ts *txStore) MarkSubmitted(ctx context.Context, id rob.ReportID, durationHrs float64) error {
	return ts.parent.markSubmitted(ctx, ts.tx, id, durationHrs)
}

func (ts *txStore) SoftDeleteReport(ctx context.Context, id rob.ReportID) error {
	return ts.parent.softDeleteReport(ctx, ts.tx, id)
}

func (ts *txStore) LatestSubmitted(ctx context.Context, shipID rob.ShipID) (*rob.Report, error) {
	return ts.parent.latestSubmitted(ctx, ts.tx, shipID)
}

func (ts *txStore) LatestBefore(ctx context.Context, shipID rob.ShipID, before time.Time, excludeID rob.ReportID) (*rob.Report, error) {
	return ts.parent.latestBefore(ctx, ts.tx, shipID, before, excludeID)
}

func (ts *txStore) ListReports(ctx context.Context, shipID rob.ShipID) ([]rob.Report, error) {
	return ts.parent.listReports(ctx, ts.tx, shipID)
}

func (ts *txStore) AppendLedgerEntry(ctx context.Context, e *rob.LedgerEntry) error {
	return ts.parent.appendLedgerEntry(ctx, ts.tx, e)
}

func (ts *txStore) LatestLedgerEntry(ctx context.Context, key rob.PartitionKey) (*rob.LedgerEntry, error) {
	return ts.parent.latestLedgerEntry(ctx, ts.tx, key)
}

func (ts *txStore) LedgerHistory(ctx context.Context, key rob.PartitionKey) ([]rob.LedgerEntry, error) {
	return ts.parent.ledgerHistory(ctx, ts.tx, key)
}

func (ts *txStore) ConsumptionsSince(ctx context.Context, key rob.PartitionKey, since time.Time) ([]rob.LedgerEntry, error) {
	return ts.parent.consumptionsSince(ctx, ts.tx, key, since)
}

func (ts *txStore) SaveDosingEvent(ctx context.Context, e *rob.DosingEvent) error {
	return ts.parent.saveDosingTx(ctx, ts.tx, e)
}

func (ts *txStore) GetDosingEvent(ctx context.Context, id rob.DosingEventID) (*rob.DosingEvent, error) {
	return ts.parent.getDosingEvent(ctx, ts.tx, id)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). This is the one deliberate
// exception to append-only, reachable only from dev tooling.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"ledger_entries", "dosing_allocations", "dosing_events",
		"consumption_lines", "bunker_lines", "machinery_lines", "reports",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullQuantity(q *rob.Quantity) sql.NullString {
	if q == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: q.String(), Valid: true}
}
