/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request bodies carry go-playground/validator tags for shape checks
  (required fields, email format, lengths). Domain rules such as leave
  type, date order and half-day consistency are left to the leave
  package so they surface with their own error kinds.

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse construction
*/
package api

import (
	"time"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// CreateUserRequest is the body of POST /api/users.
type CreateUserRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin hr employee"`
}

// ResetPasswordRequest is the body of POST /api/users/{id}/password.
type ResetPasswordRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// SubmitLeaveRequest is the body of POST /api/leaves.
type SubmitLeaveRequest struct {
	Type        string `json:"type"`
	StartDate   string `json:"startDate" validate:"required"`
	EndDate     string `json:"endDate" validate:"required"`
	IsHalfDay   bool   `json:"isHalfDay"`
	HalfDayPart string `json:"halfDayPart"`
	Reason      string `json:"reason" validate:"max=1000"`
}

// GrantRequest is the body of POST /api/balances/{employeeID}/grant.
type GrantRequest struct {
	Type string  `json:"type" validate:"required"`
	Days float64 `json:"days" validate:"required,gt=0,lte=366"`
}

// HolidayRequest is the body of POST /api/holidays.
type HolidayRequest struct {
	Date      string `json:"date" validate:"required"`
	Name      string `json:"name" validate:"required,max=200"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// UserDTO represents an account without its password hash.
type UserDTO struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoginResponse is returned by a successful login. The token is also set
// as the auth_token cookie.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      UserDTO   `json:"user"`
}

// SnapshotDTO is the balance observed at submission.
type SnapshotDTO struct {
	Annual float64 `json:"annual"`
	Sick   float64 `json:"sick"`
	Casual float64 `json:"casual"`
}

// LeaveDTO represents a leave request in API responses.
type LeaveDTO struct {
	ID              string      `json:"id"`
	EmployeeID      string      `json:"employeeId"`
	Type            string      `json:"type"`
	StartDate       string      `json:"startDate"`
	EndDate         string      `json:"endDate"`
	IsHalfDay       bool        `json:"isHalfDay"`
	HalfDayPart     string      `json:"halfDayPart,omitempty"`
	Reason          string      `json:"reason"`
	Status          string      `json:"status"`
	ApproverID      string      `json:"approverId,omitempty"`
	DaysRequested   float64     `json:"daysRequested"`
	BalanceSnapshot SnapshotDTO `json:"balanceSnapshot"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	DecidedAt       *time.Time  `json:"decidedAt,omitempty"`
}

// ListLeavesResponse is one page of the leave list.
type ListLeavesResponse struct {
	Items  []LeaveDTO         `json:"items"`
	Counts leave.StatusCounts `json:"counts"`
	Page   int                `json:"page"`
	Limit  int                `json:"limit"`
	Total  int                `json:"total"`
}

// BalanceDTO represents an employee's remaining days.
type BalanceDTO struct {
	EmployeeID   string    `json:"employeeId"`
	EmployeeName string    `json:"employeeName,omitempty"`
	Annual       float64   `json:"annual"`
	Sick         float64   `json:"sick"`
	Casual       float64   `json:"casual"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

type AuditEntryDTO struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	ActorID   string    `json:"actorId"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
}

// ErrorResponse is the body of every error.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Code      string    `json:"code,omitempty"`
	Details   any       `json:"details,omitempty"`
	Retryable bool      `json:"retryable,omitempty"`
	Available *float64  `json:"available,omitempty"`
	Requested *float64  `json:"requested,omitempty"`
	Existing  *LeaveRef `json:"existing,omitempty"`
}

// LeaveRef points at the request that blocks an overlapping submission.
type LeaveRef struct {
	ID        string `json:"id"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	Status    string `json:"status"`
}

// FieldError is one failed validation rule.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toUserDTO(u auth.User) UserDTO {
	return UserDTO{
		ID:        string(u.ID),
		Email:     u.Email,
		Name:      u.Name,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt,
	}
}

func toUserDTOs(us []auth.User) []UserDTO {
	out := make([]UserDTO, 0, len(us))
	for _, u := range us {
		out = append(out, toUserDTO(u))
	}
	return out
}

func toLeaveDTO(r leave.Request) LeaveDTO {
	return LeaveDTO{
		ID:            string(r.ID),
		EmployeeID:    string(r.EmployeeID),
		Type:          string(r.Type),
		StartDate:     r.Period.Start.String(),
		EndDate:       r.Period.End.String(),
		IsHalfDay:     r.IsHalfDay,
		HalfDayPart:   string(r.HalfDayPart),
		Reason:        r.Reason,
		Status:        string(r.Status),
		ApproverID:    string(r.ApproverID),
		DaysRequested: r.DaysRequested.Float64(),
		BalanceSnapshot: SnapshotDTO{
			Annual: r.BalanceSnapshot.Annual.Float64(),
			Sick:   r.BalanceSnapshot.Sick.Float64(),
			Casual: r.BalanceSnapshot.Casual.Float64(),
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		DecidedAt: r.DecidedAt,
	}
}

func toLeaveDTOs(rs []leave.Request) []LeaveDTO {
	out := make([]LeaveDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toLeaveDTO(r))
	}
	return out
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	return BalanceDTO{
		EmployeeID: string(b.EmployeeID),
		Annual:     b.Annual.Float64(),
		Sick:       b.Sick.Float64(),
		Casual:     b.Casual.Float64(),
		UpdatedAt:  b.UpdatedAt,
	}
}

func toHolidayDTO(h generic.Holiday) HolidayDTO {
	return HolidayDTO{
		ID:        h.ID,
		Date:      h.Date.String(),
		Name:      h.Name,
		Recurring: h.Recurring,
	}
}

func toAuditEntryDTO(e generic.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		ActorID:   string(e.ActorID),
		Action:    string(e.Action),
		Details:   e.Details,
	}
}
