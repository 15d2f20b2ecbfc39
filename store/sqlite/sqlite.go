/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements leave.TxStore (balances, requests, holidays, audit log) and
  auth.UserStore using SQLite. store/postgres implements the same
  contract for PostgreSQL with only dialect differences.

KEY TABLES:
  leave_balances: One row per employee, annual/sick/casual quotas (REAL,
                  CHECK >= 0). Leave quantities are multiples of 0.5 and
                  are exact in REAL.
  leave_requests: Requests with status, snapshot and decision fields.
  holidays:       Dates excluded from business-day counting.
  users:          Accounts, unique lower-cased email.
  audit_log:      Append-only record of every state change.

CONDITIONAL DEBIT:
  TryDebit is a single statement:

    UPDATE leave_balances SET annual = annual - ?
     WHERE employee_id = ? AND annual >= ?

  and reports RowsAffected() == 1. There is no read before the write.
  TransitionRequest likewise updates only WHERE status = <from>.

INDEXES:
  - idx_requests_employee_active: overlap checks (hot path of submit)
  - idx_requests_status_created:  dashboard listing

CONCURRENCY:
  Uses sync.RWMutex for thread-safety: writers and transactions take the
  write lock, mirroring SQLite's single writer. SQLITE_BUSY / SQLITE_LOCKED
  (another process holding the database) surface as
  generic.ErrTransactionAborted.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := leave.NewLedger(store)

MIGRATION:
  Schema is auto-migrated on New() with CREATE ... IF NOT EXISTS.

SEE ALSO:
  - leave/store.go: Interface definitions
  - leave/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// timeLayout is fixed-width so that TEXT ordering is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const dateLayout = "2006-01-02"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, now: time.Now}
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

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT PRIMARY KEY,
		annual REAL NOT NULL DEFAULT 0 CHECK (annual >= 0),
		sick REAL NOT NULL DEFAULT 0 CHECK (sick >= 0),
		casual REAL NOT NULL DEFAULT 0 CHECK (casual >= 0),
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		is_half_day INTEGER NOT NULL DEFAULT 0,
		half_day_part TEXT,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		approver_id TEXT,
		days_requested REAL NOT NULL,
		snapshot_annual REAL NOT NULL,
		snapshot_sick REAL NOT NULL,
		snapshot_casual REAL NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		decided_at TEXT,
		CHECK (end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee_active
		ON leave_requests(employee_id, status, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_requests_status_created
		ON leave_requests(status, created_at DESC);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date ON holidays(date);

	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		reference_id TEXT,
		details TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_reference
		ON audit_log(reference_id) WHERE reference_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) GetOrCreateBalance(ctx context.Context, employeeID generic.EntityID) (leave.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateBalance(ctx, s.db, employeeID)
}

func (s *Store) getOrCreateBalance(ctx context.Context, q querier, employeeID generic.EntityID) (leave.Balance, error) {
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO leave_balances (employee_id, annual, sick, casual, updated_at)
		VALUES (?, 0, 0, 0, ?)
	`, string(employeeID), s.stamp())
	if err != nil {
		return leave.Balance{}, fmt.Errorf("failed to create balance: %w", err)
	}
	return s.getBalance(ctx, q, employeeID)
}

func (s *Store) getBalance(ctx context.Context, q querier, employeeID generic.EntityID) (leave.Balance, error) {
	var annual, sick, casual float64
	var updatedAt string
	err := q.QueryRowContext(ctx, `
		SELECT annual, sick, casual, updated_at FROM leave_balances WHERE employee_id = ?
	`, string(employeeID)).Scan(&annual, &sick, &casual, &updatedAt)
	if err == sql.ErrNoRows {
		return leave.Balance{}, fmt.Errorf("balance %s: %w", employeeID, generic.ErrNotFound)
	}
	if err != nil {
		return leave.Balance{}, fmt.Errorf("failed to get balance: %w", err)
	}
	return leave.Balance{
		EmployeeID: employeeID,
		Annual:     generic.Days(annual),
		Sick:       generic.Days(sick),
		Casual:     generic.Days(casual),
		UpdatedAt:  parseTime(updatedAt),
	}, nil
}

func (s *Store) TryDebit(ctx context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tryDebit(ctx, s.db, employeeID, t, days)
}

func (s *Store) tryDebit(ctx context.Context, q querier, employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	col, err := balanceColumn(t)
	if err != nil {
		return false, err
	}
	amount := days.Float64()
	res, err := q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE leave_balances SET %[1]s = %[1]s - ?, updated_at = ? WHERE employee_id = ? AND %[1]s >= ?`, col),
		amount, s.stamp(), string(employeeID), amount)
	if err != nil {
		return false, fmt.Errorf("failed to debit balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to debit balance: %w", err)
	}
	return n == 1, nil
}

func (s *Store) CreditBalance(ctx context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditBalance(ctx, s.db, employeeID, t, days)
}

func (s *Store) creditBalance(ctx context.Context, q querier, employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	col, err := balanceColumn(t)
	if err != nil {
		return leave.Balance{}, err
	}
	if !days.IsPositive() {
		return leave.Balance{}, fmt.Errorf("credit %s: %w", days, generic.ErrInvalidAmount)
	}
	if _, err := s.getOrCreateBalance(ctx, q, employeeID); err != nil {
		return leave.Balance{}, err
	}
	_, err = q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE leave_balances SET %[1]s = %[1]s + ?, updated_at = ? WHERE employee_id = ?`, col),
		days.Float64(), s.stamp(), string(employeeID))
	if err != nil {
		return leave.Balance{}, fmt.Errorf("failed to credit balance: %w", err)
	}
	return s.getBalance(ctx, q, employeeID)
}

// balanceColumn maps a paid type to its column. Column names never come
// from input.
func balanceColumn(t leave.Type) (string, error) {
	switch t {
	case leave.TypeAnnual:
		return "annual", nil
	case leave.TypeSick:
		return "sick", nil
	case leave.TypeCasual:
		return "casual", nil
	default:
		return "", fmt.Errorf("%s has no balance: %w", t, generic.ErrInvalidType)
	}
}

// =============================================================================
// REQUEST STORE
// =============================================================================

const requestColumns = `id, employee_id, type, start_date, end_date, is_half_day, half_day_part,
	reason, status, approver_id, days_requested, snapshot_annual, snapshot_sick, snapshot_casual,
	created_at, updated_at, decided_at`

func (s *Store) CreateRequest(ctx context.Context, req leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createRequest(ctx, s.db, req)
}

func (s *Store) createRequest(ctx context.Context, q querier, req leave.Request) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(req.ID), string(req.EmployeeID), string(req.Type),
		req.Period.Start.String(), req.Period.End.String(),
		req.IsHalfDay, nullString(string(req.HalfDayPart)),
		req.Reason, string(req.Status), nullString(string(req.ApproverID)),
		req.DaysRequested.Float64(),
		req.BalanceSnapshot.Annual.Float64(), req.BalanceSnapshot.Sick.Float64(), req.BalanceSnapshot.Casual.Float64(),
		formatTime(req.CreatedAt), formatTime(req.UpdatedAt), nullTime(req.DecidedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("request %s: %w", req.ID, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRequest(ctx, s.db, id)
}

func (s *Store) getRequest(ctx context.Context, q querier, id generic.RequestID) (leave.Request, error) {
	row := q.QueryRowContext(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, string(id))
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return leave.Request{}, fmt.Errorf("request %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return leave.Request{}, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

func (s *Store) FindOverlapping(ctx context.Context, employeeID generic.EntityID, p generic.Period) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findOverlapping(ctx, s.db, employeeID, p)
}

func (s *Store) findOverlapping(ctx context.Context, q querier, employeeID generic.EntityID, p generic.Period) (*leave.Request, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE employee_id = ?
		  AND status IN ('pending', 'approved')
		  AND start_date <= ? AND end_date >= ?
		ORDER BY created_at, rowid
		LIMIT 1
	`, string(employeeID), p.End.String(), p.Start.String())
	req, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping request: %w", err)
	}
	return &req, nil
}

func (s *Store) TransitionRequest(ctx context.Context, id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionRequest(ctx, s.db, id, from, to, approverID, at)
}

func (s *Store) transitionRequest(ctx context.Context, q querier, id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	stamp := formatTime(at)
	res, err := q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, approver_id = ?, updated_at = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`, string(to), nullString(string(approverID)), stamp, stamp, string(id), string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update request status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update request status: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ListRequests(ctx context.Context, lq leave.Query) ([]leave.Request, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listRequests(ctx, s.db, lq)
}

func (s *Store) listRequests(ctx context.Context, q querier, lq leave.Query) ([]leave.Request, int, error) {
	where, args := requestFilter(lq)

	var total int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM leave_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests` + where + ` ORDER BY created_at DESC, rowid DESC`
	pageArgs := append([]any{}, args...)
	if lq.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		pageArgs = append(pageArgs, lq.Limit, lq.Offset)
	}

	rows, err := q.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	items := []leave.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan request: %w", err)
		}
		items = append(items, req)
	}
	return items, total, rows.Err()
}

// requestFilter builds the WHERE clause of a list query.
func requestFilter(lq leave.Query) (string, []any) {
	var conds []string
	var args []any
	if lq.Status != "" && lq.Status != leave.StatusAll {
		conds = append(conds, "status = ?")
		args = append(args, string(lq.Status))
	}
	if lq.EmployeeID != "" {
		conds = append(conds, "employee_id = ?")
		args = append(args, string(lq.EmployeeID))
	}
	if lq.From != nil {
		conds = append(conds, "end_date >= ?")
		args = append(args, lq.From.String())
	}
	if lq.To != nil {
		conds = append(conds, "start_date <= ?")
		args = append(args, lq.To.String())
	}
	if lq.Search != "" {
		pattern := "%" + escapeLike(strings.ToLower(lq.Search)) + "%"
		conds = append(conds, `(LOWER(reason) LIKE ? ESCAPE '\' OR type LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func (s *Store) CountByStatus(ctx context.Context, employeeID generic.EntityID) (leave.StatusCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countByStatus(ctx, s.db, employeeID)
}

func (s *Store) countByStatus(ctx context.Context, q querier, employeeID generic.EntityID) (leave.StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM leave_requests`
	var args []any
	if employeeID != "" {
		query += ` WHERE employee_id = ?`
		args = append(args, string(employeeID))
	}
	query += ` GROUP BY status`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return leave.StatusCounts{}, fmt.Errorf("failed to count requests: %w", err)
	}
	defer rows.Close()

	var counts leave.StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return leave.StatusCounts{}, err
		}
		counts.Add(leave.Status(status), n)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (leave.Request, error) {
	var (
		req                              leave.Request
		id, employeeID, typ, start, end  string
		halfDayPart, approverID, decided sql.NullString
		status, createdAt, updatedAt     string
		days, snapAnnual, snapSick       float64
		snapCasual                       float64
	)
	err := row.Scan(&id, &employeeID, &typ, &start, &end, &req.IsHalfDay, &halfDayPart,
		&req.Reason, &status, &approverID, &days, &snapAnnual, &snapSick, &snapCasual,
		&createdAt, &updatedAt, &decided)
	if err != nil {
		return leave.Request{}, err
	}

	req.ID = generic.RequestID(id)
	req.EmployeeID = generic.EntityID(employeeID)
	req.Type = leave.Type(typ)
	req.Period = generic.Period{Start: parseDate(start), End: parseDate(end)}
	req.HalfDayPart = leave.HalfDayPart(halfDayPart.String)
	req.Status = leave.Status(status)
	req.ApproverID = generic.EntityID(approverID.String)
	req.DaysRequested = generic.Days(days)
	req.BalanceSnapshot = leave.BalanceSnapshot{
		Annual: generic.Days(snapAnnual),
		Sick:   generic.Days(snapSick),
		Casual: generic.Days(snapCasual),
	}
	req.CreatedAt = parseTime(createdAt)
	req.UpdatedAt = parseTime(updatedAt)
	if decided.Valid {
		t := parseTime(decided.String)
		req.DecidedAt = &t
	}
	return req, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// ListHolidays returns all holidays ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listHolidays(ctx, s.db)
}

func (s *Store) listHolidays(ctx context.Context, q querier) ([]generic.Holiday, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, date, name, recurring FROM holidays ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	holidays := []generic.Holiday{}
	for rows.Next() {
		var h generic.Holiday
		var date string
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date = parseDate(date)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// SaveHoliday inserts or replaces a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveHoliday(ctx, s.db, h)
}

func (s *Store) saveHoliday(ctx context.Context, q querier, h generic.Holiday) error {
	_, err := q.ExecContext(ctx, `
		INSERT OR REPLACE INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, h.ID, h.Date.String(), h.Name, h.Recurring, s.stamp())
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// DeleteHoliday removes a holiday.
func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteHoliday(ctx, s.db, id)
}

func (s *Store) deleteHoliday(ctx context.Context, q querier, id string) error {
	res, err := q.ExecContext(ctx, `DELETE FROM holidays WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("holiday %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendAudit(ctx, s.db, entry)
}

func (s *Store) appendAudit(ctx context.Context, q querier, e generic.AuditEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, entity_id, reference_id, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, formatTime(e.Timestamp), string(e.ActorID), string(e.Action), string(e.EntityID),
		nullString(string(e.ReferenceID)), e.Details)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryAudit(ctx, s.db, filter)
}

func (s *Store) queryAudit(ctx context.Context, q querier, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var conds []string
	var args []any
	if filter.EntityID != "" {
		conds = append(conds, "entity_id = ?")
		args = append(args, string(filter.EntityID))
	}
	if filter.ReferenceID != "" {
		conds = append(conds, "reference_id = ?")
		args = append(args, string(filter.ReferenceID))
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, string(a))
		}
		conds = append(conds, "action IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT id, timestamp, actor_id, action, entity_id, reference_id, details FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp, rowid"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []generic.AuditEntry{}
	for rows.Next() {
		var e generic.AuditEntry
		var ts, actor, action, entity string
		var ref sql.NullString
		if err := rows.Scan(&e.ID, &ts, &actor, &action, &entity, &ref, &e.Details); err != nil {
			return nil, err
		}
		e.Timestamp = parseTime(ts)
		e.ActorID = generic.EntityID(actor)
		e.Action = generic.AuditAction(action)
		e.EntityID = generic.EntityID(entity)
		e.ReferenceID = generic.RequestID(ref.String)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(u.ID), auth.NormalizeEmail(u.Email), u.Name, string(u.Role), u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("user %s: %w", u.Email, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id generic.EntityID) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUser(ctx, `id = ?`, string(id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUser(ctx, `email = ?`, auth.NormalizeEmail(email))
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, name, role, password_hash, created_at FROM users ORDER BY name, email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []auth.User{}
	for rows.Next() {
		var u auth.User
		var id, role, createdAt string
		if err := rows.Scan(&id, &u.Email, &u.Name, &role, &u.PasswordHash, &createdAt); err != nil {
			return nil, err
		}
		u.ID = generic.EntityID(id)
		u.Role = leave.Role(role)
		u.CreatedAt = parseTime(createdAt)
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdatePassword(ctx context.Context, id generic.EntityID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, string(id))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, cond string, arg any) (auth.User, error) {
	var u auth.User
	var id, role, createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, role, password_hash, created_at FROM users WHERE `+cond, arg,
	).Scan(&id, &u.Email, &u.Name, &role, &u.PasswordHash, &createdAt)
	if err == sql.ErrNoRows {
		return auth.User{}, fmt.Errorf("user %v: %w", arg, generic.ErrNotFound)
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.ID = generic.EntityID(id)
	u.Role = leave.Role(role)
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return abortError(ctx, "begin", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx, parent: s}
	if err := fn(txStore); err != nil {
		if isBusyError(err) {
			return &generic.TransactionAbortedError{Op: "tx", Err: err}
		}
		// The driver rolls back on context expiry; later statements fail with ErrTxDone.
		if ctx.Err() != nil && errors.Is(err, sql.ErrTxDone) {
			return &generic.TransactionAbortedError{Op: "tx", Err: ctx.Err()}
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return abortError(ctx, "commit", err)
	}
	return nil
}

// abortError classifies begin/commit failures: context expiry and lock
// contention are retryable aborts, anything else is returned as is.
func abortError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &generic.TransactionAbortedError{Op: op, Err: ctxErr}
	}
	if isBusyError(err) || errors.Is(err, context.DeadlineExceeded) {
		return &generic.TransactionAbortedError{Op: op, Err: err}
	}
	return err
}

type txStore struct {
	tx     *sql.Tx
	parent *Store
}

func (ts *txStore) GetOrCreateBalance(ctx context.Context, employeeID generic.EntityID) (leave.Balance, error) {
	return ts.parent.getOrCreateBalance(ctx, ts.tx, employeeID)
}

func (ts *txStore) TryDebit(ctx context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	return ts.parent.tryDebit(ctx, ts.tx, employeeID, t, days)
}

func (ts *txStore) CreditBalance(ctx context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	return ts.parent.creditBalance(ctx, ts.tx, employeeID, t, days)
}

func (ts *txStore) CreateRequest(ctx context.Context, req leave.Request) error {
	return ts.parent.createRequest(ctx, ts.tx, req)
}

func (ts *txStore) GetRequest(ctx context.Context, id generic.RequestID) (leave.Request, error) {
	return ts.parent.getRequest(ctx, ts.tx, id)
}

func (ts *txStore) FindOverlapping(ctx context.Context, employeeID generic.EntityID, p generic.Period) (*leave.Request, error) {
	return ts.parent.findOverlapping(ctx, ts.tx, employeeID, p)
}

func (ts *txStore) TransitionRequest(ctx context.Context, id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	return ts.parent.transitionRequest(ctx, ts.tx, id, from, to, approverID, at)
}

func (ts *txStore) ListRequests(ctx context.Context, q leave.Query) ([]leave.Request, int, error) {
	return ts.parent.listRequests(ctx, ts.tx, q)
}

func (ts *txStore) CountByStatus(ctx context.Context, employeeID generic.EntityID) (leave.StatusCounts, error) {
	return ts.parent.countByStatus(ctx, ts.tx, employeeID)
}

func (ts *txStore) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	return ts.parent.listHolidays(ctx, ts.tx)
}

func (ts *txStore) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	return ts.parent.saveHoliday(ctx, ts.tx, h)
}

func (ts *txStore) DeleteHoliday(ctx context.Context, id string) error {
	return ts.parent.deleteHoliday(ctx, ts.tx, id)
}

func (ts *txStore) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	return ts.parent.appendAudit(ctx, ts.tx, entry)
}

func (ts *txStore) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	return ts.parent.queryAudit(ctx, ts.tx, filter)
}

var (
	_ leave.TxStore  = (*Store)(nil)
	_ leave.Store    = (*txStore)(nil)
	_ auth.UserStore = (*Store)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

func (s *Store) stamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseDate(s string) generic.TimePoint {
	t, _ := time.Parse(dateLayout, s)
	return generic.DateOf(t)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isBusyError(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
