// Package leave implements the leave balance ledger and its approval
// protocol on top of the generic primitives.
package leave

import (
	"time"

	"github.com/warp/leave-ledger/generic"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// Type is the category of a leave request.
type Type string

const (
	TypeAnnual Type = "annual"
	TypeSick   Type = "sick"
	TypeCasual Type = "casual"
	TypeUnpaid Type = "unpaid"
	TypeOther  Type = "other"
)

// Types lists every leave type in display order.
var Types = []Type{TypeAnnual, TypeSick, TypeCasual, TypeUnpaid, TypeOther}

// PaidTypes are the types that draw down a balance.
var PaidTypes = []Type{TypeAnnual, TypeSick, TypeCasual}

// ParseType validates s as a leave type.
func ParseType(s string) (Type, error) {
	for _, t := range Types {
		if string(t) == s {
			return t, nil
		}
	}
	return "", generic.ErrInvalidType
}

// IsPaid reports whether the type consumes a balance.
func (t Type) IsPaid() bool {
	return t == TypeAnnual || t == TypeSick || t == TypeCasual
}

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of a request.
//
//	pending ──approve──► approved
//	   │ ────reject───► rejected
//	   └─────cancel───► cancelled
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"

	// StatusAll is the list filter meaning "any status". Never stored.
	StatusAll Status = "all"
)

// Statuses lists every storable status.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusCancelled}

// ActiveStatuses are the statuses that block overlapping submissions.
var ActiveStatuses = []Status{StatusPending, StatusApproved}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// ParseStatusFilter accepts a storable status or "all". Empty means pending.
func ParseStatusFilter(s string) (Status, error) {
	if s == "" {
		return StatusPending, nil
	}
	if Status(s) == StatusAll {
		return StatusAll, nil
	}
	for _, st := range Statuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", generic.ErrInvalidStatus
}

// HalfDayPart tags which half of the day a half-day request covers.
type HalfDayPart string

const (
	HalfDayAM HalfDayPart = "AM"
	HalfDayPM HalfDayPart = "PM"
)

// =============================================================================
// BALANCE
// =============================================================================

// Balance holds an employee's remaining paid leave, in days.
// Every field is always >= 0.
type Balance struct {
	EmployeeID generic.EntityID
	Annual     generic.Amount
	Sick       generic.Amount
	Casual     generic.Amount
	UpdatedAt  time.Time
}

// NewBalance returns the all-zero balance created on first use.
func NewBalance(employeeID generic.EntityID, now time.Time) Balance {
	return Balance{
		EmployeeID: employeeID,
		Annual:     generic.ZeroDays(),
		Sick:       generic.ZeroDays(),
		Casual:     generic.ZeroDays(),
		UpdatedAt:  now,
	}
}

// Available returns the quota for a paid type, zero for the others.
func (b Balance) Available(t Type) generic.Amount {
	switch t {
	case TypeAnnual:
		return b.Annual
	case TypeSick:
		return b.Sick
	case TypeCasual:
		return b.Casual
	default:
		return generic.ZeroDays()
	}
}

// Snapshot copies the three quotas for the audit record of a submission.
func (b Balance) Snapshot() BalanceSnapshot {
	return BalanceSnapshot{Annual: b.Annual, Sick: b.Sick, Casual: b.Casual}
}

// BalanceSnapshot is the balance observed when a request was submitted.
// It is audit data only and is never used for later calculations.
type BalanceSnapshot struct {
	Annual generic.Amount
	Sick   generic.Amount
	Casual generic.Amount
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is a leave request.
type Request struct {
	ID              generic.RequestID
	EmployeeID      generic.EntityID
	Type            Type
	Period          generic.Period
	IsHalfDay       bool
	HalfDayPart     HalfDayPart // empty unless IsHalfDay
	Reason          string
	Status          Status
	ApproverID      generic.EntityID // set by approve/reject only
	DaysRequested   generic.Amount
	BalanceSnapshot BalanceSnapshot
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DecidedAt       *time.Time
}

// =============================================================================
// IDENTITY
// =============================================================================

// Role is the caller's role as established by authentication.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleHR       Role = "hr"
	RoleEmployee Role = "employee"
)

// ParseRole validates s as a role.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleHR, RoleEmployee:
		return Role(s), true
	}
	return "", false
}

// CanDecide reports whether the role may approve, reject, list and grant.
func (r Role) CanDecide() bool {
	return r == RoleAdmin || r == RoleHR
}

// Actor is the verified caller of an operation.
type Actor struct {
	ID   generic.EntityID
	Role Role
}

// CanAccess reports whether the actor may see or withdraw the request.
func (a Actor) CanAccess(req Request) bool {
	return a.Role.CanDecide() || (a.ID != "" && a.ID == req.EmployeeID)
}

// Decision is the outcome chosen by an approver.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)
