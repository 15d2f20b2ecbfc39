/*
ledger.go - Leave request ledger: submission, listing, withdrawal, grants

PURPOSE:
  Validates and persists leave submissions and serves the queries the
  dashboard needs. Decisions live in approval.go.

SUBMISSION CHECKS (in order, first failure wins):
  1. Type is one of annual, sick, casual, unpaid, other   -> InvalidType
  2. Both dates parse and end >= start                    -> InvalidDateRange
  3. Half day: same date, part AM or PM                   -> HalfDayMismatch
  4. Days requested (0.5, or business days) > 0           -> ZeroDuration
  5. No pending/approved request of the employee overlaps -> OverlappingRequest
  6. Paid types: balance covers the days                  -> InsufficientBalance

  Checks 1-4 touch no state. Checks 5-6 and the insert run in one store
  transaction, which also creates the zero balance on first submission.

ADVISORY BALANCE CHECK:
  Check 6 reads a balance that may change before the request is decided.
  The Coordinator re-checks with TryDebit at approval time; only that
  check is authoritative. The observed balance is stored as the request's
  BalanceSnapshot and never read again for calculations.

LISTING:
  Status defaults to pending and accepts "all". Page clamped to
  [1, MaxPage], limit clamped to [5, 100] with default 10. Newest
  submission first. Counts per status are returned with every page.

SEE ALSO:
  - approval.go: Approve / reject transaction
  - store.go: Persistence contract
*/
package leave

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

const (
	DefaultPageLimit = 10
	MinPageLimit     = 5
	MaxPageLimit     = 100

	// MaxPage keeps (page-1)*limit far from integer overflow.
	MaxPage = 1_000_000
)

// Ledger owns leave submissions and the read side of the ledger.
type Ledger struct {
	store TxStore
	opts  options
}

// NewLedger creates a ledger over store.
func NewLedger(store TxStore, opts ...Option) *Ledger {
	return &Ledger{store: store, opts: buildOptions(opts)}
}

// =============================================================================
// SUBMIT
// =============================================================================

// SubmitInput is a raw leave submission. Dates are "YYYY-MM-DD" or RFC 3339.
type SubmitInput struct {
	EmployeeID  generic.EntityID
	Type        string
	StartDate   string
	EndDate     string
	IsHalfDay   bool
	HalfDayPart string
	Reason      string
}

// Submit validates in and records a pending request.
func (l *Ledger) Submit(ctx context.Context, in SubmitInput) (Request, error) {
	if in.EmployeeID == "" {
		return Request{}, fmt.Errorf("submit: missing employee: %w", generic.ErrUnauthenticated)
	}

	calendar, err := l.calendar(ctx)
	if err != nil {
		return Request{}, fmt.Errorf("submit: load holidays: %w", err)
	}

	sub, err := validateSubmission(in, calendar)
	if err != nil {
		return Request{}, err
	}

	now := l.opts.now().UTC()
	req := Request{
		ID:            generic.RequestID(l.opts.newID()),
		EmployeeID:    in.EmployeeID,
		Type:          sub.leaveType,
		Period:        sub.period,
		IsHalfDay:     in.IsHalfDay,
		HalfDayPart:   sub.halfDayPart,
		Reason:        in.Reason,
		Status:        StatusPending,
		DaysRequested: sub.days,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = runTx(ctx, l.store, l.opts.txTimeout, "submit", func(tx Store) error {
		balance, err := tx.GetOrCreateBalance(ctx, req.EmployeeID)
		if err != nil {
			return fmt.Errorf("get balance: %w", err)
		}

		existing, err := tx.FindOverlapping(ctx, req.EmployeeID, req.Period)
		if err != nil {
			return fmt.Errorf("find overlapping: %w", err)
		}
		if existing != nil {
			return &generic.OverlapError{
				ExistingID:     existing.ID,
				Existing:       existing.Period,
				ExistingStatus: string(existing.Status),
			}
		}

		if req.Type.IsPaid() {
			available := balance.Available(req.Type)
			if available.LessThan(req.DaysRequested) {
				return &generic.InsufficientBalanceError{
					EntityID:  req.EmployeeID,
					LeaveType: string(req.Type),
					Available: available,
					Requested: req.DaysRequested,
				}
			}
		}

		req.BalanceSnapshot = balance.Snapshot()
		if err := tx.CreateRequest(ctx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		return tx.AppendAudit(ctx, generic.AuditEntry{
			ID:          l.opts.newID(),
			Timestamp:   now,
			ActorID:     req.EmployeeID,
			Action:      generic.AuditRequestSubmitted,
			EntityID:    req.EmployeeID,
			ReferenceID: req.ID,
			Details:     fmt.Sprintf("%s %s %s days", req.Type, req.Period, req.DaysRequested.Value),
		})
	})
	if err != nil {
		if !generic.IsClientError(err) {
			l.opts.logger.Error("leave submission failed",
				zap.String("employee_id", string(req.EmployeeID)),
				zap.Error(err))
		}
		return Request{}, err
	}

	l.opts.logger.Info("leave submitted",
		zap.String("request_id", string(req.ID)),
		zap.String("employee_id", string(req.EmployeeID)),
		zap.String("type", string(req.Type)),
		zap.String("period", req.Period.String()),
		zap.Float64("days", req.DaysRequested.Float64()))
	return req, nil
}

type submission struct {
	leaveType   Type
	period      generic.Period
	halfDayPart HalfDayPart
	days        generic.Amount
}

// validateSubmission runs the stateless checks in order.
func validateSubmission(in SubmitInput, calendar generic.HolidayCalendar) (submission, error) {
	var s submission

	t, err := ParseType(in.Type)
	if err != nil {
		return s, fmt.Errorf("%q: %w", in.Type, err)
	}
	s.leaveType = t

	start, err := generic.ParseDate(in.StartDate)
	if err != nil {
		return s, fmt.Errorf("start date %q: %w", in.StartDate, generic.ErrInvalidDateRange)
	}
	end, err := generic.ParseDate(in.EndDate)
	if err != nil {
		return s, fmt.Errorf("end date %q: %w", in.EndDate, generic.ErrInvalidDateRange)
	}
	s.period = generic.Period{Start: start, End: end}
	if err := s.period.Validate(); err != nil {
		return s, fmt.Errorf("end date must be on or after start date: %w", err)
	}

	if in.IsHalfDay {
		if !s.period.SingleDay() {
			return s, fmt.Errorf("half-day spans %s: %w", s.period, generic.ErrHalfDayMismatch)
		}
		part := HalfDayPart(in.HalfDayPart)
		if part != HalfDayAM && part != HalfDayPM {
			return s, fmt.Errorf("half-day part %q: %w", in.HalfDayPart, generic.ErrHalfDayMismatch)
		}
		s.halfDayPart = part
	}

	s.days = DaysRequested(s.period, in.IsHalfDay, calendar)
	if !s.days.IsPositive() {
		return s, fmt.Errorf("%s: %w", s.period, generic.ErrZeroDuration)
	}
	return s, nil
}

// DaysRequested is 0.5 for a half day, otherwise the business days of p.
func DaysRequested(p generic.Period, halfDay bool, calendar generic.HolidayCalendar) generic.Amount {
	if halfDay {
		return generic.Days(0.5)
	}
	return generic.NewAmountFromInt(p.BusinessDays(calendar), generic.UnitDays)
}

func (l *Ledger) calendar(ctx context.Context) (generic.HolidayCalendar, error) {
	if l.opts.calendar != nil {
		return l.opts.calendar, nil
	}
	holidays, err := l.store.ListHolidays(ctx)
	if err != nil {
		return nil, err
	}
	return generic.NewHolidaySet(holidays), nil
}

// =============================================================================
// LIST
// =============================================================================

// ListFilter is a raw list request.
type ListFilter struct {
	Status     string // pending (default), approved, rejected, cancelled, all
	EmployeeID generic.EntityID
	From       string // optional date
	To         string // optional date
	Query      string
	Page       int
	Limit      int
}

// ListResult is one page of requests with per-status counts.
type ListResult struct {
	Items  []Request
	Counts StatusCounts
	Page   int
	Limit  int
	Total  int
}

// List returns requests matching f, newest submission first.
func (l *Ledger) List(ctx context.Context, f ListFilter) (ListResult, error) {
	status, err := ParseStatusFilter(strings.TrimSpace(f.Status))
	if err != nil {
		return ListResult{}, fmt.Errorf("status %q: %w", f.Status, err)
	}

	page, limit := NormalizePage(f.Page, f.Limit)
	q := Query{
		Status:     status,
		EmployeeID: f.EmployeeID,
		Search:     strings.TrimSpace(f.Query),
		Offset:     (page - 1) * limit,
		Limit:      limit,
	}
	if f.From != "" {
		from, err := generic.ParseDate(f.From)
		if err != nil {
			return ListResult{}, fmt.Errorf("from %q: %w", f.From, generic.ErrInvalidDateRange)
		}
		q.From = &from
	}
	if f.To != "" {
		to, err := generic.ParseDate(f.To)
		if err != nil {
			return ListResult{}, fmt.Errorf("to %q: %w", f.To, generic.ErrInvalidDateRange)
		}
		q.To = &to
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return ListResult{}, fmt.Errorf("to before from: %w", generic.ErrInvalidDateRange)
	}

	items, total, err := l.store.ListRequests(ctx, q)
	if err != nil {
		return ListResult{}, fmt.Errorf("list requests: %w", err)
	}
	counts, err := l.store.CountByStatus(ctx, f.EmployeeID)
	if err != nil {
		return ListResult{}, fmt.Errorf("count requests: %w", err)
	}
	if items == nil {
		items = []Request{}
	}

	return ListResult{Items: items, Counts: counts, Page: page, Limit: limit, Total: total}, nil
}

// NormalizePage applies the paging defaults and bounds.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < MinPageLimit {
		limit = MinPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	return page, limit
}

// Matches reports whether r passes the filters of q (paging aside).
// Stores that cannot push the filter down use it directly.
func (q Query) Matches(r Request) bool {
	if q.Status != StatusAll && q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.EmployeeID != "" && r.EmployeeID != q.EmployeeID {
		return false
	}
	if q.From != nil && r.Period.End.Before(*q.From) {
		return false
	}
	if q.To != nil && r.Period.Start.After(*q.To) {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		if !strings.Contains(strings.ToLower(r.Reason), needle) &&
			!strings.Contains(string(r.Type), needle) {
			return false
		}
	}
	return true
}

// =============================================================================
// READ / WITHDRAW
// =============================================================================

// Get returns one request visible to actor.
func (l *Ledger) Get(ctx context.Context, id generic.RequestID, actor Actor) (Request, error) {
	req, err := l.store.GetRequest(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if !actor.CanAccess(req) {
		return Request{}, fmt.Errorf("request %s: %w", id, generic.ErrForbidden)
	}
	return req, nil
}

// Cancel withdraws a pending request. Allowed for its owner and for
// admin/hr. No balance effect: only approved paid leave consumes balance.
func (l *Ledger) Cancel(ctx context.Context, id generic.RequestID, actor Actor) (Request, error) {
	var out Request
	err := runTx(ctx, l.store, l.opts.txTimeout, "cancel", func(tx Store) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if !actor.CanAccess(req) {
			return fmt.Errorf("request %s: %w", id, generic.ErrForbidden)
		}
		if req.Status != StatusPending {
			return fmt.Errorf("request %s is %s: %w", id, req.Status, generic.ErrNotPending)
		}

		now := l.opts.now().UTC()
		ok, err := tx.TransitionRequest(ctx, id, StatusPending, StatusCancelled, "", now)
		if err != nil {
			return fmt.Errorf("cancel request: %w", err)
		}
		if !ok {
			return fmt.Errorf("request %s: %w", id, generic.ErrNotPending)
		}

		if err := tx.AppendAudit(ctx, generic.AuditEntry{
			ID:          l.opts.newID(),
			Timestamp:   now,
			ActorID:     actor.ID,
			Action:      generic.AuditRequestCancelled,
			EntityID:    req.EmployeeID,
			ReferenceID: id,
		}); err != nil {
			return err
		}

		out, err = tx.GetRequest(ctx, id)
		return err
	})
	if err != nil {
		return Request{}, err
	}

	l.opts.logger.Info("leave cancelled",
		zap.String("request_id", string(id)),
		zap.String("actor_id", string(actor.ID)))
	return out, nil
}

// History returns the audit trail of a request.
func (l *Ledger) History(ctx context.Context, id generic.RequestID, actor Actor) ([]generic.AuditEntry, error) {
	if !actor.Role.CanDecide() {
		return nil, fmt.Errorf("history: %w", generic.ErrForbidden)
	}
	if _, err := l.store.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	return l.store.QueryAudit(ctx, generic.AuditFilter{ReferenceID: id})
}

// =============================================================================
// BALANCES
// =============================================================================

// Balance returns the employee's balance, creating it with zeros if absent.
func (l *Ledger) Balance(ctx context.Context, employeeID generic.EntityID) (Balance, error) {
	return l.store.GetOrCreateBalance(ctx, employeeID)
}

// Grant credits days of a paid leave type to an employee.
func (l *Ledger) Grant(ctx context.Context, actor Actor, employeeID generic.EntityID, leaveType string, days generic.Amount) (Balance, error) {
	if !actor.Role.CanDecide() {
		return Balance{}, fmt.Errorf("grant: %w", generic.ErrForbidden)
	}
	t, err := ParseType(leaveType)
	if err != nil {
		return Balance{}, fmt.Errorf("%q: %w", leaveType, err)
	}
	if !t.IsPaid() {
		return Balance{}, fmt.Errorf("%s has no balance: %w", t, generic.ErrInvalidType)
	}
	if !days.IsPositive() {
		return Balance{}, fmt.Errorf("grant %s: %w", days, generic.ErrInvalidAmount)
	}
	if !days.IsHalfDayMultiple() {
		return Balance{}, fmt.Errorf("grant %s: not a multiple of half a day: %w", days, generic.ErrInvalidAmount)
	}

	var out Balance
	err = runTx(ctx, l.store, l.opts.txTimeout, "grant", func(tx Store) error {
		if _, err := tx.GetOrCreateBalance(ctx, employeeID); err != nil {
			return err
		}
		b, err := tx.CreditBalance(ctx, employeeID, t, days)
		if err != nil {
			return err
		}
		out = b
		return tx.AppendAudit(ctx, generic.AuditEntry{
			ID:        l.opts.newID(),
			Timestamp: l.opts.now().UTC(),
			ActorID:   actor.ID,
			Action:    generic.AuditBalanceGranted,
			EntityID:  employeeID,
			Details:   fmt.Sprintf("%s +%s", t, days.Value),
		})
	})
	if err != nil {
		return Balance{}, err
	}

	l.opts.logger.Info("balance granted",
		zap.String("employee_id", string(employeeID)),
		zap.String("type", string(t)),
		zap.Float64("days", days.Float64()),
		zap.String("actor_id", string(actor.ID)))
	return out, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// Holidays returns the holiday calendar ordered by date.
func (l *Ledger) Holidays(ctx context.Context) ([]generic.Holiday, error) {
	return l.store.ListHolidays(ctx)
}

// AddHoliday records a holiday. Only admin and hr may change the calendar.
func (l *Ledger) AddHoliday(ctx context.Context, actor Actor, date, name string, recurring bool) (generic.Holiday, error) {
	if !actor.Role.CanDecide() {
		return generic.Holiday{}, fmt.Errorf("add holiday: %w", generic.ErrForbidden)
	}
	d, err := generic.ParseDate(date)
	if err != nil {
		return generic.Holiday{}, fmt.Errorf("holiday date %q: %w", date, generic.ErrInvalidDateRange)
	}
	h := generic.Holiday{
		ID:        l.opts.newID(),
		Date:      d,
		Name:      strings.TrimSpace(name),
		Recurring: recurring,
	}
	if err := l.store.SaveHoliday(ctx, h); err != nil {
		return generic.Holiday{}, err
	}
	return h, nil
}

// RemoveHoliday deletes a holiday. Requests already submitted keep the
// day count computed at submission.
func (l *Ledger) RemoveHoliday(ctx context.Context, actor Actor, id string) error {
	if !actor.Role.CanDecide() {
		return fmt.Errorf("remove holiday: %w", generic.ErrForbidden)
	}
	return l.store.DeleteHoliday(ctx, id)
}
