/*
approval.go - Approval coordinator: the authoritative pending -> decided step

PURPOSE:
  Moves a pending request to approved or rejected. On approval of a
  paid type it debits the employee's balance in the SAME store
  transaction as the status flip. Either both happen or neither does.

INVARIANTS:
  - No approval can overdraw a balance: the debit is TryDebit, a single
    conditional write, never read-check-write.
  - status=approved implies exactly one debit of DaysRequested for paid
    types and none for unpaid/other.
  - Decisions are final. A second decide returns NotPending and debits
    nothing.

TRANSACTION (approve, paid type):
  BEGIN
    load request                      -> NotFound / NotPending
    TryDebit(employee, type, days)    -> false: InsufficientBalance, ROLLBACK
    TransitionRequest(pending->approved) -> false: NotPending, ROLLBACK
    append audit entry
  COMMIT

  The transition is conditional on status=pending so that two
  concurrent approvals of the same request cannot both commit, even when
  the balance would cover both debits.

TIMEOUT:
  Each decide runs under the coordinator's transaction timeout. A store
  that gives up (deadline, lock contention, serialization failure)
  surfaces as TransactionAborted. Nothing was applied and the caller may
  retry.

IDENTITY:
  The actor is an explicit parameter. Only admin and hr may decide;
  anyone else gets Forbidden before the store is touched.

SEE ALSO:
  - ledger.go: Submission and the advisory balance check
  - store.go: TryDebit and TransitionRequest contracts
*/
package leave

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/leave-ledger/generic"
)

// Coordinator decides pending requests.
type Coordinator struct {
	store TxStore
	opts  options
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store TxStore, opts ...Option) *Coordinator {
	return &Coordinator{store: store, opts: buildOptions(opts)}
}

// Approve is Decide with DecisionApprove.
func (c *Coordinator) Approve(ctx context.Context, id generic.RequestID, actor Actor) (Request, error) {
	return c.Decide(ctx, id, actor, DecisionApprove)
}

// Reject is Decide with DecisionReject.
func (c *Coordinator) Reject(ctx context.Context, id generic.RequestID, actor Actor) (Request, error) {
	return c.Decide(ctx, id, actor, DecisionReject)
}

// Decide applies decision to the request and returns the updated record.
func (c *Coordinator) Decide(ctx context.Context, id generic.RequestID, actor Actor, decision Decision) (Request, error) {
	if !actor.Role.CanDecide() || actor.ID == "" {
		return Request{}, fmt.Errorf("decide %s: role %q: %w", id, actor.Role, generic.ErrForbidden)
	}

	var target Status
	var action generic.AuditAction
	switch decision {
	case DecisionApprove:
		target, action = StatusApproved, generic.AuditRequestApproved
	case DecisionReject:
		target, action = StatusRejected, generic.AuditRequestRejected
	default:
		return Request{}, fmt.Errorf("unknown decision %q", decision)
	}

	var out Request
	err := runTx(ctx, c.store, c.opts.txTimeout, "decide", func(tx Store) error {
		req, err := tx.GetRequest(ctx, id)
		if err != nil {
			return err
		}
		if req.Status != StatusPending {
			return fmt.Errorf("request %s is %s: %w", id, req.Status, generic.ErrNotPending)
		}

		if decision == DecisionApprove && req.Type.IsPaid() {
			ok, err := tx.TryDebit(ctx, req.EmployeeID, req.Type, req.DaysRequested)
			if err != nil {
				return fmt.Errorf("debit balance: %w", err)
			}
			if !ok {
				ib := &generic.InsufficientBalanceError{
					EntityID:  req.EmployeeID,
					LeaveType: string(req.Type),
					Requested: req.DaysRequested,
				}
				// Informational only: the debit above is the authoritative check.
				if b, err := tx.GetOrCreateBalance(ctx, req.EmployeeID); err == nil {
					ib.Available = b.Available(req.Type)
				}
				return ib
			}
		}

		now := c.opts.now().UTC()
		ok, err := tx.TransitionRequest(ctx, id, StatusPending, target, actor.ID, now)
		if err != nil {
			return fmt.Errorf("transition request: %w", err)
		}
		if !ok {
			return fmt.Errorf("request %s: %w", id, generic.ErrNotPending)
		}

		if err := tx.AppendAudit(ctx, generic.AuditEntry{
			ID:          c.opts.newID(),
			Timestamp:   now,
			ActorID:     actor.ID,
			Action:      action,
			EntityID:    req.EmployeeID,
			ReferenceID: id,
			Details:     fmt.Sprintf("%s %s days", req.Type, req.DaysRequested.Value),
		}); err != nil {
			return fmt.Errorf("audit: %w", err)
		}

		out, err = tx.GetRequest(ctx, id)
		return err
	})
	if err != nil {
		fields := []zap.Field{
			zap.String("request_id", string(id)),
			zap.String("decision", string(decision)),
			zap.String("actor_id", string(actor.ID)),
			zap.Error(err),
		}
		switch {
		case generic.IsRetryable(err):
			c.opts.logger.Warn("leave decision aborted", fields...)
		case generic.IsClientError(err), generic.IsNotFound(err):
			c.opts.logger.Info("leave decision refused", fields...)
		default:
			c.opts.logger.Error("leave decision failed", fields...)
		}
		return Request{}, err
	}

	c.opts.logger.Info("leave decided",
		zap.String("request_id", string(id)),
		zap.String("status", string(out.Status)),
		zap.String("employee_id", string(out.EmployeeID)),
		zap.Float64("days", out.DaysRequested.Float64()),
		zap.String("actor_id", string(actor.ID)))
	return out, nil
}
