/*
store.go - Persistence contract of the leave ledger

PURPOSE:
  Defines the interface between the leave domain and the database.
  Implementations: leave/store (memory), store/sqlite, store/postgres.

BALANCE WRITES:
  Balances are decreased through TryDebit only. TryDebit is ONE
  conditional write (SQL: UPDATE ... SET x = x - ? WHERE ... AND x >= ?,
  then RowsAffected). A read followed by a write would let two
  concurrent approvals both pass the check and overdraw the balance.
  CreditBalance only increases a quota.

STATUS WRITES:
  TransitionRequest is a compare-and-set on the status column: it only
  changes rows whose status still equals `from`. Two deciders racing on
  the same request cannot both succeed.

TRANSACTIONS:
  TxStore.WithTx runs fn against a transactional view. fn returning an
  error rolls back every write made through that view.
*/
package leave

import (
	"context"
	"time"

	"github.com/warp/leave-ledger/generic"
)

// BalanceStore persists per-employee quotas.
type BalanceStore interface {
	// GetOrCreateBalance returns the balance, inserting zeros if absent.
	GetOrCreateBalance(ctx context.Context, employeeID generic.EntityID) (Balance, error)

	// TryDebit decrements the quota for t by days only if it is >= days.
	// Returns false, with no mutation, when the quota is insufficient or
	// no balance row exists.
	TryDebit(ctx context.Context, employeeID generic.EntityID, t Type, days generic.Amount) (bool, error)

	// CreditBalance increases the quota for t by days and returns the result.
	CreditBalance(ctx context.Context, employeeID generic.EntityID, t Type, days generic.Amount) (Balance, error)
}

// RequestStore persists leave requests.
type RequestStore interface {
	CreateRequest(ctx context.Context, req Request) error

	// GetRequest returns generic.ErrNotFound (wrapped) for unknown ids.
	GetRequest(ctx context.Context, id generic.RequestID) (Request, error)

	// FindOverlapping returns one pending or approved request of the
	// employee overlapping p, or nil.
	FindOverlapping(ctx context.Context, employeeID generic.EntityID, p generic.Period) (*Request, error)

	// TransitionRequest moves a request from `from` to `to`, recording the
	// approver (may be empty) and time. Returns false if the request's
	// status was no longer `from`.
	TransitionRequest(ctx context.Context, id generic.RequestID, from, to Status, approverID generic.EntityID, at time.Time) (bool, error)

	// ListRequests returns one page of matching requests, newest first,
	// and the total number of matches.
	ListRequests(ctx context.Context, q Query) ([]Request, int, error)

	// CountByStatus counts requests per status, optionally for one employee.
	CountByStatus(ctx context.Context, employeeID generic.EntityID) (StatusCounts, error)
}

// HolidayStore persists the holiday calendar.
type HolidayStore interface {
	ListHolidays(ctx context.Context) ([]generic.Holiday, error)
	SaveHoliday(ctx context.Context, h generic.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
}

// Store is everything the ledger reads and writes.
type Store interface {
	BalanceStore
	RequestStore
	HolidayStore
	generic.AuditLog
}

// TxStore adds transactions.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	// If fn returns nil, transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// QUERIES
// =============================================================================

// Query is a normalised list query as handed to the store.
type Query struct {
	Status     Status // StatusAll for no filter
	EmployeeID generic.EntityID
	From       *generic.TimePoint // requests ending on or after From
	To         *generic.TimePoint // requests starting on or before To
	Search     string             // case-insensitive substring of reason or type
	Offset     int
	Limit      int
}

// StatusCounts is the number of requests per status.
type StatusCounts struct {
	Pending   int `json:"pending"`
	Approved  int `json:"approved"`
	Rejected  int `json:"rejected"`
	Cancelled int `json:"cancelled"`
	All       int `json:"all"`
}

// Add counts n requests of status s.
func (c *StatusCounts) Add(s Status, n int) {
	switch s {
	case StatusPending:
		c.Pending += n
	case StatusApproved:
		c.Approved += n
	case StatusRejected:
		c.Rejected += n
	case StatusCancelled:
		c.Cancelled += n
	}
	c.All += n
}
