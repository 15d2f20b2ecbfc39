/*
Package postgres provides a PostgreSQL-backed implementation of the storage interfaces.

PURPOSE:
  Same contract as store/sqlite (leave.TxStore and auth.UserStore) for
  deployments that share one database between several server processes.

LOCKING:
  Processes do not share memory, so the database does all the work:
  - TryDebit is one conditional UPDATE. Under READ COMMITTED a second
    writer waits for the first, then re-evaluates "quota >= days"
    against the committed row.
  - GetOrCreateBalance takes the balance row FOR UPDATE inside a
    transaction. Submissions of one employee therefore run one at a
    time and the overlap check cannot race.
  - TransitionRequest updates only WHERE status = <from>.

ERRORS:
  SQLSTATE 40001 (serialization_failure), 40P01 (deadlock_detected) and
  55P03 (lock_not_available) surface as generic.ErrTransactionAborted.
  23505 (unique_violation) becomes generic.ErrAlreadyExists.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - migrations/: Schema, applied by Migrate on New
  - store/sqlite: Embedded single-file implementation
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// Store implements all storage interfaces using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to databaseURL and applies pending migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{pool: pool, now: time.Now}, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) GetOrCreateBalance(ctx context.Context, employeeID generic.EntityID) (leave.Balance, error) {
	return s.getOrCreateBalance(ctx, s.pool, employeeID, false)
}

// getOrCreateBalance locks the row when called inside a transaction.
func (s *Store) getOrCreateBalance(ctx context.Context, q querier, employeeID generic.EntityID, lock bool) (leave.Balance, error) {
	_, err := q.Exec(ctx, `
		INSERT INTO leave_balances (employee_id, updated_at) VALUES ($1, $2)
		ON CONFLICT (employee_id) DO NOTHING
	`, string(employeeID), s.now().UTC())
	if err != nil {
		return leave.Balance{}, fmt.Errorf("failed to create balance: %w", err)
	}

	query := `SELECT annual, sick, casual, updated_at FROM leave_balances WHERE employee_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	return scanBalance(q.QueryRow(ctx, query, string(employeeID)), employeeID)
}

func scanBalance(row pgx.Row, employeeID generic.EntityID) (leave.Balance, error) {
	var annual, sick, casual float64
	var updatedAt time.Time
	if err := row.Scan(&annual, &sick, &casual, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.Balance{}, fmt.Errorf("balance %s: %w", employeeID, generic.ErrNotFound)
		}
		return leave.Balance{}, fmt.Errorf("failed to get balance: %w", err)
	}
	return leave.Balance{
		EmployeeID: employeeID,
		Annual:     generic.Days(annual),
		Sick:       generic.Days(sick),
		Casual:     generic.Days(casual),
		UpdatedAt:  updatedAt.UTC(),
	}, nil
}

func (s *Store) TryDebit(ctx context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	return s.tryDebit(ctx, s.pool, employeeID, t, days)
}

func (s *Store) tryDebit(ctx context.Context, q querier, employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	col, err := balanceColumn(t)
	if err != nil {
		return false, err
	}
	tag, err := q.Exec(ctx,
		fmt.Sprintf(`UPDATE leave_balances SET %[1]s = %[1]s - $1, updated_at = $2 WHERE employee_id = $3 AND %[1]s >= $1`, col),
		days.Float64(), s.now().UTC(), string(employeeID))
	if err != nil {
		return false, fmt.Errorf("failed to debit balance: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) CreditBalance(ctx context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	return s.creditBalance(ctx, s.pool, employeeID, t, days)
}

func (s *Store) creditBalance(ctx context.Context, q querier, employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	col, err := balanceColumn(t)
	if err != nil {
		return leave.Balance{}, err
	}
	if !days.IsPositive() {
		return leave.Balance{}, fmt.Errorf("credit %s: %w", days, generic.ErrInvalidAmount)
	}
	row := q.QueryRow(ctx,
		fmt.Sprintf(`INSERT INTO leave_balances (employee_id, %[1]s, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (employee_id) DO UPDATE SET %[1]s = leave_balances.%[1]s + EXCLUDED.%[1]s, updated_at = EXCLUDED.updated_at
			RETURNING annual, sick, casual, updated_at`, col),
		string(employeeID), days.Float64(), s.now().UTC())
	return scanBalance(row, employeeID)
}

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
	return s.createRequest(ctx, s.pool, req)
}

func (s *Store) createRequest(ctx context.Context, q querier, req leave.Request) error {
	_, err := q.Exec(ctx, `
		INSERT INTO leave_requests (`+requestColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		string(req.ID), string(req.EmployeeID), string(req.Type),
		req.Period.Start.Time, req.Period.End.Time,
		req.IsHalfDay, nullString(string(req.HalfDayPart)),
		req.Reason, string(req.Status), nullString(string(req.ApproverID)),
		req.DaysRequested.Float64(),
		req.BalanceSnapshot.Annual.Float64(), req.BalanceSnapshot.Sick.Float64(), req.BalanceSnapshot.Casual.Float64(),
		req.CreatedAt.UTC(), req.UpdatedAt.UTC(), req.DecidedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("request %s: %w", req.ID, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id generic.RequestID) (leave.Request, error) {
	return s.getRequest(ctx, s.pool, id)
}

func (s *Store) getRequest(ctx context.Context, q querier, id generic.RequestID) (leave.Request, error) {
	req, err := scanRequest(q.QueryRow(ctx, `SELECT `+requestColumns+` FROM leave_requests WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return leave.Request{}, fmt.Errorf("request %s: %w", id, generic.ErrNotFound)
	}
	if err != nil {
		return leave.Request{}, fmt.Errorf("failed to get request: %w", err)
	}
	return req, nil
}

func (s *Store) FindOverlapping(ctx context.Context, employeeID generic.EntityID, p generic.Period) (*leave.Request, error) {
	return s.findOverlapping(ctx, s.pool, employeeID, p)
}

func (s *Store) findOverlapping(ctx context.Context, q querier, employeeID generic.EntityID, p generic.Period) (*leave.Request, error) {
	req, err := scanRequest(q.QueryRow(ctx, `
		SELECT `+requestColumns+` FROM leave_requests
		WHERE employee_id = $1
		  AND status IN ('pending', 'approved')
		  AND start_date <= $2 AND end_date >= $3
		ORDER BY seq
		LIMIT 1
	`, string(employeeID), p.End.Time, p.Start.Time))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find overlapping request: %w", err)
	}
	return &req, nil
}

func (s *Store) TransitionRequest(ctx context.Context, id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	return s.transitionRequest(ctx, s.pool, id, from, to, approverID, at)
}

func (s *Store) transitionRequest(ctx context.Context, q querier, id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	tag, err := q.Exec(ctx, `
		UPDATE leave_requests
		SET status = $1, approver_id = $2, updated_at = $3, decided_at = $3
		WHERE id = $4 AND status = $5
	`, string(to), nullString(string(approverID)), at.UTC(), string(id), string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update request status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListRequests(ctx context.Context, lq leave.Query) ([]leave.Request, int, error) {
	return s.listRequests(ctx, s.pool, lq)
}

func (s *Store) listRequests(ctx context.Context, q querier, lq leave.Query) ([]leave.Request, int, error) {
	where, args := requestFilter(lq)

	var total int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM leave_requests`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	query := `SELECT ` + requestColumns + ` FROM leave_requests` + where + ` ORDER BY created_at DESC, seq DESC`
	if lq.Limit > 0 {
		args = append(args, lq.Limit, lq.Offset)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}

	rows, err := q.Query(ctx, query, args...)
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

func requestFilter(lq leave.Query) (string, []any) {
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if lq.Status != "" && lq.Status != leave.StatusAll {
		conds = append(conds, "status = "+arg(string(lq.Status)))
	}
	if lq.EmployeeID != "" {
		conds = append(conds, "employee_id = "+arg(string(lq.EmployeeID)))
	}
	if lq.From != nil {
		conds = append(conds, "end_date >= "+arg(lq.From.Time))
	}
	if lq.To != nil {
		conds = append(conds, "start_date <= "+arg(lq.To.Time))
	}
	if lq.Search != "" {
		p := arg("%" + escapeLike(lq.Search) + "%")
		conds = append(conds, "(reason ILIKE "+p+" OR type ILIKE "+p+")")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) CountByStatus(ctx context.Context, employeeID generic.EntityID) (leave.StatusCounts, error) {
	return s.countByStatus(ctx, s.pool, employeeID)
}

func (s *Store) countByStatus(ctx context.Context, q querier, employeeID generic.EntityID) (leave.StatusCounts, error) {
	query := `SELECT status, COUNT(*) FROM leave_requests`
	var args []any
	if employeeID != "" {
		query += ` WHERE employee_id = $1`
		args = append(args, string(employeeID))
	}
	query += ` GROUP BY status`

	rows, err := q.Query(ctx, query, args...)
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

func scanRequest(row pgx.Row) (leave.Request, error) {
	var (
		req                                    leave.Request
		id, employeeID, typ, status            string
		start, end, createdAt, updated         time.Time
		halfDayPart, approverID                *string
		decidedAt                              *time.Time
		days, snapAnnual, snapSick, snapCasual float64
	)
	err := row.Scan(&id, &employeeID, &typ, &start, &end, &req.IsHalfDay, &halfDayPart,
		&req.Reason, &status, &approverID, &days, &snapAnnual, &snapSick, &snapCasual,
		&createdAt, &updated, &decidedAt)
	if err != nil {
		return leave.Request{}, err
	}

	req.ID = generic.RequestID(id)
	req.EmployeeID = generic.EntityID(employeeID)
	req.Type = leave.Type(typ)
	req.Period = generic.Period{Start: generic.DateOf(start), End: generic.DateOf(end)}
	if halfDayPart != nil {
		req.HalfDayPart = leave.HalfDayPart(*halfDayPart)
	}
	req.Status = leave.Status(status)
	if approverID != nil {
		req.ApproverID = generic.EntityID(*approverID)
	}
	req.DaysRequested = generic.Days(days)
	req.BalanceSnapshot = leave.BalanceSnapshot{
		Annual: generic.Days(snapAnnual),
		Sick:   generic.Days(snapSick),
		Casual: generic.Days(snapCasual),
	}
	req.CreatedAt = createdAt.UTC()
	req.UpdatedAt = updated.UTC()
	if decidedAt != nil {
		t := decidedAt.UTC()
		req.DecidedAt = &t
	}
	return req, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) ListHolidays(ctx context.Context) ([]generic.Holiday, error) {
	return s.listHolidays(ctx, s.pool)
}

func (s *Store) listHolidays(ctx context.Context, q querier) ([]generic.Holiday, error) {
	rows, err := q.Query(ctx, `SELECT id, date, name, recurring FROM holidays ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	holidays := []generic.Holiday{}
	for rows.Next() {
		var h generic.Holiday
		var date time.Time
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date = generic.DateOf(date)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

func (s *Store) SaveHoliday(ctx context.Context, h generic.Holiday) error {
	return s.saveHoliday(ctx, s.pool, h)
}

func (s *Store) saveHoliday(ctx context.Context, q querier, h generic.Holiday) error {
	_, err := q.Exec(ctx, `
		INSERT INTO holidays (id, date, name, recurring) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET date = EXCLUDED.date, name = EXCLUDED.name, recurring = EXCLUDED.recurring
	`, h.ID, h.Date.Time, h.Name, h.Recurring)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (s *Store) DeleteHoliday(ctx context.Context, id string) error {
	return s.deleteHoliday(ctx, s.pool, id)
}

func (s *Store) deleteHoliday(ctx context.Context, q querier, id string) error {
	tag, err := q.Exec(ctx, `DELETE FROM holidays WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("holiday %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, entry generic.AuditEntry) error {
	return s.appendAudit(ctx, s.pool, entry)
}

func (s *Store) appendAudit(ctx context.Context, q querier, e generic.AuditEntry) error {
	_, err := q.Exec(ctx, `
		INSERT INTO audit_log (id, timestamp, actor_id, action, entity_id, reference_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.Timestamp.UTC(), string(e.ActorID), string(e.Action), string(e.EntityID),
		nullString(string(e.ReferenceID)), e.Details)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (s *Store) QueryAudit(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	return s.queryAudit(ctx, s.pool, filter)
}

func (s *Store) queryAudit(ctx context.Context, q querier, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	var conds []string
	var args []any
	if filter.EntityID != "" {
		args = append(args, string(filter.EntityID))
		conds = append(conds, fmt.Sprintf("entity_id = $%d", len(args)))
	}
	if filter.ReferenceID != "" {
		args = append(args, string(filter.ReferenceID))
		conds = append(conds, fmt.Sprintf("reference_id = $%d", len(args)))
	}
	if len(filter.Actions) > 0 {
		actions := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			actions[i] = string(a)
		}
		args = append(args, actions)
		conds = append(conds, fmt.Sprintf("action = ANY($%d)", len(args)))
	}

	query := `SELECT id, timestamp, actor_id, action, entity_id, reference_id, details FROM audit_log`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp, seq"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	entries := []generic.AuditEntry{}
	for rows.Next() {
		var e generic.AuditEntry
		var actor, action, entity string
		var ref *string
		if err := rows.Scan(&e.ID, &e.Timestamp, &actor, &action, &entity, &ref, &e.Details); err != nil {
			return nil, err
		}
		e.Timestamp = e.Timestamp.UTC()
		e.ActorID = generic.EntityID(actor)
		e.Action = generic.AuditAction(action)
		e.EntityID = generic.EntityID(entity)
		if ref != nil {
			e.ReferenceID = generic.RequestID(*ref)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// USERS
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u auth.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, email, name, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(u.ID), auth.NormalizeEmail(u.Email), u.Name, string(u.Role), u.PasswordHash, u.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, generic.ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id generic.EntityID) (auth.User, error) {
	return s.getUser(ctx, `id = $1`, string(id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (auth.User, error) {
	return s.getUser(ctx, `email = $1`, auth.NormalizeEmail(email))
}

func (s *Store) ListUsers(ctx context.Context) ([]auth.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, email, name, role, password_hash, created_at FROM users ORDER BY name, email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []auth.User{}
	for rows.Next() {
		var u auth.User
		var id, role string
		if err := rows.Scan(&id, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		u.ID = generic.EntityID(id)
		u.Role = leave.Role(role)
		u.CreatedAt = u.CreatedAt.UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Store) UpdatePassword(ctx context.Context, id generic.EntityID, hash string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, string(id))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", id, generic.ErrNotFound)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, cond string, arg string) (auth.User, error) {
	var u auth.User
	var id, role string
	err := s.pool.QueryRow(ctx,
		`SELECT id, email, name, role, password_hash, created_at FROM users WHERE `+cond, arg,
	).Scan(&id, &u.Email, &u.Name, &role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.User{}, fmt.Errorf("user %s: %w", arg, generic.ErrNotFound)
	}
	if err != nil {
		return auth.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	u.ID = generic.EntityID(id)
	u.Role = leave.Role(role)
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a READ COMMITTED transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return abortError(ctx, "begin", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := fn(&txStore{tx: tx, parent: s}); err != nil {
		if isAbort(err) || (ctx.Err() != nil && !generic.IsClientError(err) && !generic.IsNotFound(err)) {
			return abortError(ctx, "tx", err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return abortError(ctx, "commit", err)
	}
	return nil
}

func abortError(ctx context.Context, op string, err error) error {
	if isAbort(err) || ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return &generic.TransactionAbortedError{Op: op, Err: err}
	}
	return err
}

type txStore struct {
	tx     pgx.Tx
	parent *Store
}

func (ts *txStore) GetOrCreateBalance(ctx context.Context, employeeID generic.EntityID) (leave.Balance, error) {
	return ts.parent.getOrCreateBalance(ctx, ts.tx, employeeID, true)
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

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isAbort(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01", "55P03":
		return true
	}
	return false
}
