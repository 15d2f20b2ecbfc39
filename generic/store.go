/*
store.go - Audit log contract

PURPOSE:
  Every state change of the leave ledger (submission, decision,
  cancellation, grant) leaves one append-only audit entry recording who
  did what when. The entry is written in the same store transaction as
  the change it describes, so a rolled-back approval leaves no trace.

IMPLEMENTATIONS:
  - leave/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: audit_log table
  - store/postgres/postgres.go: audit_log table

SEE ALSO:
  - leave/store.go: Balance and request persistence
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Separate from requests, tracks who did what when
// =============================================================================

// AuditEntry records who did what when.
type AuditEntry struct {
	ID          string
	Timestamp   time.Time
	ActorID     EntityID // who performed the action
	Action      AuditAction
	EntityID    EntityID  // whose balance or request was affected
	ReferenceID RequestID // empty for balance grants
	Details     string
}

type AuditAction string

const (
	AuditRequestSubmitted AuditAction = "request_submitted"
	AuditRequestApproved  AuditAction = "request_approved"
	AuditRequestRejected  AuditAction = "request_rejected"
	AuditRequestCancelled AuditAction = "request_cancelled"
	AuditBalanceGranted   AuditAction = "balance_granted"
)

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	QueryAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// AuditFilter narrows QueryAudit. Zero fields match everything.
// Results are ordered oldest first.
type AuditFilter struct {
	EntityID    EntityID
	ReferenceID RequestID
	Actions     []AuditAction
}

// Matches reports whether e passes the filter.
func (f AuditFilter) Matches(e AuditEntry) bool {
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.ReferenceID != "" && e.ReferenceID != f.ReferenceID {
		return false
	}
	if len(f.Actions) == 0 {
		return true
	}
	for _, a := range f.Actions {
		if a == e.Action {
			return true
		}
	}
	return false
}
