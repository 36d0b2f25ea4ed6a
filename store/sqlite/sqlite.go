/*
Package sqlite provides a SQLite-backed implementation of incentive.Store.

PURPOSE:
  Persists plans, calculations, approvals, calculation revisions and the
  audit log. In production, the same patterns apply to PostgreSQL - only
  minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  incentive.Store:     Plans, calculations, approvals, transactions
  incentive.AuditSink: Append-only audit log

CONDITIONAL WRITES:
  SaveCalculation with expectedVersion > 0 issues
      UPDATE ... WHERE id = ? AND version = ?
  and treats zero affected rows as a ConcurrencyConflictError.
  Inserts rely on the primary key and on idx_calculations_live, a partial
  unique index over (employee, plan, period) for non-superseded rows.
  Constraint violations surface as ConcurrencyConflictError as well.

KEY TABLES:
  plans:                 Plan definitions (config_json)
  calculations:          One row per aggregate, versioned
  calculation_revisions: Prior figures of aggregates recalculated in place
  approvals:             Approval chain records, children of calculations
  audit_log:             Append-only audit records

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) and a single connection.
  A single connection keeps ":memory:" databases shared across calls and
  serializes writers.

USAGE:
  store, err := sqlite.New("./data/incentives.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := incentive.NewEngine(store, incentive.WithAuditSink(store))

SEE ALSO:
  - incentive/store.go: Interface definitions
  - incentive/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/incentive-engine/incentive"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = time.RFC3339Nano
)

// Store implements incentive.Store and incentive.AuditSink using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	conn
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs the queries against a querier. Store uses it over the pool,
// txStore over an open transaction.
type conn struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db, conn: conn{q: db}}
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

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Plans
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Calculations (aggregate root, versioned)
	CREATE TABLE IF NOT EXISTS calculations (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		plan_id TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		target_value TEXT NOT NULL,
		actual_value TEXT NOT NULL,
		achievement_pct TEXT NOT NULL,
		applied_slab_id TEXT,
		currency TEXT NOT NULL,
		gross_amount TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		prorata_factor TEXT,
		status TEXT NOT NULL,
		calculated_at TEXT NOT NULL,
		calculated_by TEXT,
		rejection_reason TEXT,
		adjustment_reason TEXT,
		cancellation_reason TEXT,
		payment_reference TEXT,
		version INTEGER NOT NULL,
		superseded INTEGER NOT NULL DEFAULT 0
	);

	-- CRITICAL: at most one live calculation per (employee, plan, period)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_calculations_live
		ON calculations(employee_id, plan_id, period_start, period_end)
		WHERE superseded = 0;

	CREATE INDEX IF NOT EXISTS idx_calculations_employee
		ON calculations(employee_id, calculated_at);
	CREATE INDEX IF NOT EXISTS idx_calculations_status
		ON calculations(status);

	-- Prior revisions of calculations rewritten in place
	CREATE TABLE IF NOT EXISTS calculation_revisions (
		calculation_id TEXT NOT NULL REFERENCES calculations(id),
		version INTEGER NOT NULL,
		revision_json TEXT NOT NULL,
		archived_at TEXT NOT NULL,
		PRIMARY KEY (calculation_id, version)
	);

	-- Approvals (children of calculations)
	CREATE TABLE IF NOT EXISTS approvals (
		id TEXT PRIMARY KEY,
		calculation_id TEXT NOT NULL REFERENCES calculations(id),
		level INTEGER NOT NULL,
		approver_id TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		decided_at TEXT,
		delegated_to_id TEXT,
		comments TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_calculation
		ON approvals(calculation_id, level, created_at);

	-- Pending approvals drive the escalation scan (hot path)
	CREATE INDEX IF NOT EXISTS idx_approvals_pending
		ON approvals(created_at) WHERE status = 'pending';

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id TEXT,
		old_value TEXT,
		new_value TEXT,
		reason TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_entity
		ON audit_log(entity_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. Nothing fn wrote is kept
// if it returns an error.
func (s *Store) WithTx(ctx context.Context, fn func(incentive.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{conn: conn{q: sqlTx}}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	conn
}

// WithTx joins the enclosing transaction.
func (ts *txStore) WithTx(_ context.Context, fn func(incentive.Store) error) error {
	return fn(ts)
}

// =============================================================================
// PLANS
// =============================================================================

// SavePlan inserts or replaces a plan. Plan codes are unique.
func (s *Store) SavePlan(ctx context.Context, p incentive.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	configJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode plan %s: %w", p.ID, err)
	}

	query := `
		INSERT INTO plans (id, code, name, status, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			name = excluded.name,
			status = excluded.status,
			config_json = excluded.config_json,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx, query, p.ID, p.Code, p.Name, string(p.Status), string(configJSON), now, now)
	if isUniqueConstraintError(err) {
		return &incentive.ValidationError{Field: "code", Message: "plan code " + p.Code + " already in use"}
	}
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

// ListPlans returns all plans ordered by code.
func (s *Store) ListPlans(ctx context.Context) ([]incentive.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT config_json FROM plans ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer rows.Close()

	var plans []incentive.Plan
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var p incentive.Plan
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to decode plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

func (s *Store) LoadPlan(ctx context.Context, id string) (*incentive.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LoadPlan(ctx, id)
}

func (c conn) LoadPlan(ctx context.Context, id string) (*incentive.Plan, error) {
	var raw string
	err := c.q.QueryRowContext(ctx, "SELECT config_json FROM plans WHERE id = ?", id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incentive.NotFound("plan", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}
	var p incentive.Plan
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to decode plan %s: %w", id, err)
	}
	return &p, nil
}

// =============================================================================
// CALCULATIONS
// =============================================================================

const calculationColumns = `
	id, employee_id, plan_id, period_start, period_end, target_value, actual_value,
	achievement_pct, applied_slab_id, currency, gross_amount, net_amount, prorata_factor,
	status, calculated_at, calculated_by, rejection_reason, adjustment_reason,
	cancellation_reason, payment_reference, version, superseded`

func (s *Store) LoadCalculation(ctx context.Context, id string) (*incentive.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LoadCalculation(ctx, id)
}

func (c conn) LoadCalculation(ctx context.Context, id string) (*incentive.Calculation, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+calculationColumns+" FROM calculations WHERE id = ?", id)
	calc, err := scanCalculation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incentive.NotFound("calculation", id)
	}
	return calc, err
}

func (s *Store) FindLiveCalculation(ctx context.Context, employeeID, planID string, period incentive.DateRange) (*incentive.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.FindLiveCalculation(ctx, employeeID, planID, period)
}

func (c conn) FindLiveCalculation(ctx context.Context, employeeID, planID string, period incentive.DateRange) (*incentive.Calculation, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT `+calculationColumns+` FROM calculations
		WHERE employee_id = ? AND plan_id = ? AND period_start = ? AND period_end = ? AND superseded = 0`,
		employeeID, planID, period.Start.Format(dateLayout), period.End.Format(dateLayout))
	calc, err := scanCalculation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return calc, err
}

func (s *Store) SaveCalculation(ctx context.Context, calc *incentive.Calculation, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.SaveCalculation(ctx, calc, expectedVersion)
}

func (c conn) SaveCalculation(ctx context.Context, calc *incentive.Calculation, expectedVersion int) error {
	conflict := &incentive.ConcurrencyConflictError{Entity: "calculation", ID: calc.ID, ExpectedVersion: expectedVersion}
	args := calculationArgs(calc)

	if expectedVersion == 0 {
		_, err := c.q.ExecContext(ctx, `
			INSERT INTO calculations (`+calculationColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			args...)
		if isUniqueConstraintError(err) {
			return conflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert calculation: %w", err)
		}
		return nil
	}

	// id moves from the head of the argument list to the WHERE clause
	updateArgs := append(append([]any{}, args[1:]...), calc.ID, expectedVersion)
	res, err := c.q.ExecContext(ctx, `
		UPDATE calculations SET
			employee_id = ?, plan_id = ?, period_start = ?, period_end = ?,
			target_value = ?, actual_value = ?, achievement_pct = ?, applied_slab_id = ?,
			currency = ?, gross_amount = ?, net_amount = ?, prorata_factor = ?,
			status = ?, calculated_at = ?, calculated_by = ?, rejection_reason = ?,
			adjustment_reason = ?, cancellation_reason = ?, payment_reference = ?,
			version = ?, superseded = ?
		WHERE id = ? AND version = ?`,
		updateArgs...)
	if isUniqueConstraintError(err) {
		return conflict
	}
	if err != nil {
		return fmt.Errorf("failed to update calculation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update calculation: %w", err)
	}
	if n == 0 {
		return conflict
	}
	return nil
}

func calculationArgs(calc *incentive.Calculation) []any {
	var prorata sql.NullString
	if calc.ProrataFactor != nil {
		prorata = sql.NullString{String: calc.ProrataFactor.String(), Valid: true}
	}
	superseded := 0
	if calc.Superseded {
		superseded = 1
	}
	return []any{
		calc.ID,
		calc.EmployeeID,
		calc.PlanID,
		calc.Period.Start.Format(dateLayout),
		calc.Period.End.Format(dateLayout),
		calc.TargetValue.String(),
		calc.ActualValue.String(),
		calc.AchievementPercentage.Value.String(),
		nullString(calc.AppliedSlabID),
		calc.GrossIncentive.Currency,
		calc.GrossIncentive.Amount.String(),
		calc.NetIncentive.Amount.String(),
		prorata,
		string(calc.Status),
		calc.CalculatedAt.UTC().Format(timeLayout),
		nullString(calc.CalculatedBy),
		nullString(calc.RejectionReason),
		nullString(calc.AdjustmentReason),
		nullString(calc.CancellationReason),
		nullString(calc.PaymentReference),
		calc.Version,
		superseded,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCalculation(row rowScanner) (*incentive.Calculation, error) {
	var (
		calc                                      incentive.Calculation
		periodStart, periodEnd                    string
		target, actual, achievement               string
		currency, gross, net                      string
		status, calculatedAt                      string
		slabID, prorata, calculatedBy             sql.NullString
		rejection, adjustment, cancellation, pref sql.NullString
		superseded                                int
	)

	err := row.Scan(
		&calc.ID, &calc.EmployeeID, &calc.PlanID, &periodStart, &periodEnd,
		&target, &actual, &achievement, &slabID, &currency, &gross, &net, &prorata,
		&status, &calculatedAt, &calculatedBy, &rejection, &adjustment,
		&cancellation, &pref, &calc.Version, &superseded,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan calculation: %w", err)
	}

	if calc.Period.Start, err = time.Parse(dateLayout, periodStart); err != nil {
		return nil, fmt.Errorf("calculation %s: bad period_start: %w", calc.ID, err)
	}
	if calc.Period.End, err = time.Parse(dateLayout, periodEnd); err != nil {
		return nil, fmt.Errorf("calculation %s: bad period_end: %w", calc.ID, err)
	}
	if calc.CalculatedAt, err = time.Parse(timeLayout, calculatedAt); err != nil {
		return nil, fmt.Errorf("calculation %s: bad calculated_at: %w", calc.ID, err)
	}

	decimals := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{target, &calc.TargetValue},
		{actual, &calc.ActualValue},
		{achievement, &calc.AchievementPercentage.Value},
		{gross, &calc.GrossIncentive.Amount},
		{net, &calc.NetIncentive.Amount},
	}
	for _, d := range decimals {
		if *d.dst, err = decimal.NewFromString(d.raw); err != nil {
			return nil, fmt.Errorf("calculation %s: bad decimal %q: %w", calc.ID, d.raw, err)
		}
	}
	if prorata.Valid {
		f, err := decimal.NewFromString(prorata.String)
		if err != nil {
			return nil, fmt.Errorf("calculation %s: bad prorata_factor: %w", calc.ID, err)
		}
		calc.ProrataFactor = &f
	}

	calc.GrossIncentive.Currency = currency
	calc.NetIncentive.Currency = currency
	calc.AppliedSlabID = slabID.String
	calc.Status = incentive.CalculationStatus(status)
	calc.CalculatedBy = calculatedBy.String
	calc.RejectionReason = rejection.String
	calc.AdjustmentReason = adjustment.String
	calc.CancellationReason = cancellation.String
	calc.PaymentReference = pref.String
	calc.Superseded = superseded != 0
	return &calc, nil
}

// ListCalculations returns calculations, optionally filtered by employee, oldest first.
func (s *Store) ListCalculations(ctx context.Context, employeeID string) ([]incentive.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + calculationColumns + " FROM calculations"
	var args []any
	if employeeID != "" {
		query += " WHERE employee_id = ?"
		args = append(args, employeeID)
	}
	query += " ORDER BY calculated_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query calculations: %w", err)
	}
	defer rows.Close()

	var out []incentive.Calculation
	for rows.Next() {
		calc, err := scanCalculation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *calc)
	}
	return out, rows.Err()
}

func (s *Store) ArchiveRevision(ctx context.Context, rev *incentive.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.ArchiveRevision(ctx, rev)
}

func (c conn) ArchiveRevision(ctx context.Context, rev *incentive.Calculation) error {
	raw, err := json.Marshal(rev)
	if err != nil {
		return fmt.Errorf("failed to encode revision: %w", err)
	}
	_, err = c.q.ExecContext(ctx, `
		INSERT INTO calculation_revisions (calculation_id, version, revision_json, archived_at)
		VALUES (?, ?, ?, ?)`,
		rev.ID, rev.Version, string(raw), time.Now().UTC().Format(timeLayout))
	if isUniqueConstraintError(err) {
		return &incentive.ConcurrencyConflictError{Entity: "calculation", ID: rev.ID, ExpectedVersion: rev.Version}
	}
	if err != nil {
		return fmt.Errorf("failed to archive revision: %w", err)
	}
	return nil
}

func (s *Store) ListRevisions(ctx context.Context, calculationID string) ([]incentive.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.ListRevisions(ctx, calculationID)
}

func (c conn) ListRevisions(ctx context.Context, calculationID string) ([]incentive.Calculation, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT revision_json FROM calculation_revisions WHERE calculation_id = ? ORDER BY version ASC",
		calculationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer rows.Close()

	var out []incentive.Calculation
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rev incentive.Calculation
		if err := json.Unmarshal([]byte(raw), &rev); err != nil {
			return nil, fmt.Errorf("failed to decode revision: %w", err)
		}
		out = append(out, rev)
	}
	return out, rows.Err()
}

// =============================================================================
// APPROVALS
// =============================================================================

const approvalColumns = `id, calculation_id, level, approver_id, status, created_at, decided_at, delegated_to_id, comments`

func (s *Store) LoadApproval(ctx context.Context, id string) (*incentive.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LoadApproval(ctx, id)
}

func (c conn) LoadApproval(ctx context.Context, id string) (*incentive.Approval, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+approvalColumns+" FROM approvals WHERE id = ?", id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, incentive.NotFound("approval", id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) LoadApprovals(ctx context.Context, calculationID string) ([]incentive.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.LoadApprovals(ctx, calculationID)
}

func (c conn) LoadApprovals(ctx context.Context, calculationID string) ([]incentive.Approval, error) {
	return c.queryApprovals(ctx,
		"SELECT "+approvalColumns+" FROM approvals WHERE calculation_id = ? ORDER BY level ASC, created_at ASC",
		calculationID)
}

func (s *Store) SaveApproval(ctx context.Context, a incentive.Approval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.SaveApproval(ctx, a)
}

func (c conn) SaveApproval(ctx context.Context, a incentive.Approval) error {
	var decidedAt sql.NullString
	if a.DecidedAt != nil {
		decidedAt = sql.NullString{String: a.DecidedAt.UTC().Format(timeLayout), Valid: true}
	}

	query := `
		INSERT INTO approvals (` + approvalColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			approver_id = excluded.approver_id,
			status = excluded.status,
			decided_at = excluded.decided_at,
			delegated_to_id = excluded.delegated_to_id,
			comments = excluded.comments
	`

	_, err := c.q.ExecContext(ctx, query,
		a.ID, a.CalculationID, a.Level, a.ApproverID, string(a.Status),
		a.CreatedAt.UTC().Format(timeLayout), decidedAt,
		nullString(a.DelegatedToID), nullString(a.Comments),
	)
	if err != nil {
		return fmt.Errorf("failed to save approval: %w", err)
	}
	return nil
}

func (s *Store) ListPendingApprovals(ctx context.Context) ([]incentive.Approval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.ListPendingApprovals(ctx)
}

func (c conn) ListPendingApprovals(ctx context.Context) ([]incentive.Approval, error) {
	return c.queryApprovals(ctx,
		"SELECT "+approvalColumns+" FROM approvals WHERE status = 'pending' ORDER BY id ASC")
}

func (c conn) queryApprovals(ctx context.Context, query string, args ...any) ([]incentive.Approval, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var out []incentive.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanApproval(row rowScanner) (incentive.Approval, error) {
	var (
		a                             incentive.Approval
		status, createdAt             string
		decidedAt, delegated, comment sql.NullString
	)
	err := row.Scan(&a.ID, &a.CalculationID, &a.Level, &a.ApproverID, &status,
		&createdAt, &decidedAt, &delegated, &comment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return a, err
		}
		return a, fmt.Errorf("failed to scan approval: %w", err)
	}

	a.Status = incentive.ApprovalStatus(status)
	if a.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return a, fmt.Errorf("approval %s: bad created_at: %w", a.ID, err)
	}
	if decidedAt.Valid {
		t, err := time.Parse(timeLayout, decidedAt.String)
		if err != nil {
			return a, fmt.Errorf("approval %s: bad decided_at: %w", a.ID, err)
		}
		a.DecidedAt = &t
	}
	a.DelegatedToID = delegated.String
	a.Comments = comment.String
	return a, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// Record appends an audit record.
func (s *Store) Record(ctx context.Context, rec incentive.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, entity_type, entity_id, action, actor_id, old_value, new_value, reason, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EntityType, rec.EntityID, rec.Action, nullString(rec.ActorID),
		nullString(rec.OldValue), nullString(rec.NewValue), nullString(rec.Reason),
		rec.At.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit: %w", err)
	}
	return nil
}

// AuditTrail returns the records for one entity in the order they were written.
// An empty entityID returns everything.
func (s *Store) AuditTrail(ctx context.Context, entityID string) ([]incentive.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, entity_type, entity_id, action, actor_id, old_value, new_value, reason, at FROM audit_log"
	var args []any
	if entityID != "" {
		query += " WHERE entity_id = ?"
		args = append(args, entityID)
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var out []incentive.AuditRecord
	for rows.Next() {
		var (
			rec                            incentive.AuditRecord
			actor, oldValue, newValue, why sql.NullString
			at                             string
		)
		if err := rows.Scan(&rec.ID, &rec.EntityType, &rec.EntityID, &rec.Action,
			&actor, &oldValue, &newValue, &why, &at); err != nil {
			return nil, err
		}
		rec.ActorID = actor.String
		rec.OldValue = oldValue.String
		rec.NewValue = newValue.String
		rec.Reason = why.String
		rec.At, _ = time.Parse(timeLayout, at)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

var (
	_ incentive.Store     = (*Store)(nil)
	_ incentive.AuditSink = (*Store)(nil)
	_ incentive.Store     = (*txStore)(nil)
)
