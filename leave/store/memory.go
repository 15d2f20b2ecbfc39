// Package store provides an in-memory leave.TxStore (for testing/dev).
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	balances map[generic.EntityID]leave.Balance
	requests map[generic.RequestID]storedRequest
	seq      int64
	holidays map[string]generic.Holiday
	audit    []generic.AuditEntry
	users    map[generic.EntityID]auth.User
	now      func() time.Time
}

type storedRequest struct {
	leave.Request
	seq int64 // insertion order, tie-break for equal CreatedAt
}

func NewMemory() *Memory {
	return &Memory{
		balances: make(map[generic.EntityID]leave.Balance),
		requests: make(map[generic.RequestID]storedRequest),
		holidays: make(map[string]generic.Holiday),
		users:    make(map[generic.EntityID]auth.User),
		now:      time.Now,
	}
}

// =============================================================================
// BALANCES
// =============================================================================

func (m *Memory) GetOrCreateBalance(_ context.Context, employeeID generic.EntityID) (leave.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateBalanceLocked(employeeID), nil
}

func (m *Memory) getOrCreateBalanceLocked(employeeID generic.EntityID) leave.Balance {
	b, ok := m.balances[employeeID]
	if !ok {
		b = leave.NewBalance(employeeID, m.now().UTC())
		m.balances[employeeID] = b
	}
	return b
}

// TryDebit compares and decrements under one lock hold.
func (m *Memory) TryDebit(_ context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tryDebitLocked(employeeID, t, days)
}

func (m *Memory) tryDebitLocked(employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	if !t.IsPaid() {
		return false, fmt.Errorf("debit %s: %w", t, generic.ErrInvalidType)
	}
	b, ok := m.balances[employeeID]
	if !ok || b.Available(t).LessThan(days) {
		return false, nil
	}
	setQuota(&b, t, b.Available(t).Sub(days))
	b.UpdatedAt = m.now().UTC()
	m.balances[employeeID] = b
	return true, nil
}

func (m *Memory) CreditBalance(_ context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creditBalanceLocked(employeeID, t, days)
}

func (m *Memory) creditBalanceLocked(employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	if !t.IsPaid() {
		return leave.Balance{}, fmt.Errorf("credit %s: %w", t, generic.ErrInvalidType)
	}
	if !days.IsPositive() {
		return leave.Balance{}, fmt.Errorf("credit %s: %w", days, generic.ErrInvalidAmount)
	}
	b := m.getOrCreateBalanceLocked(employeeID)
	setQuota(&b, t, b.Available(t).Add(days))
	b.UpdatedAt = m.now().UTC()
	m.balances[employeeID] = b
	return b, nil
}

func setQuota(b *leave.Balance, t leave.Type, v generic.Amount) {
	switch t {
	case leave.TypeAnnual:
		b.Annual = v
	case leave.TypeSick:
		b.Sick = v
	case leave.TypeCasual:
		b.Casual = v
	}
}

// =============================================================================
// REQUESTS
// =============================================================================

func (m *Memory) CreateRequest(_ context.Context, req leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createRequestLocked(req)
}

func (m *Memory) createRequestLocked(req leave.Request) error {
	if _, exists := m.requests[req.ID]; exists {
		return fmt.Errorf("request %s: %w", req.ID, generic.ErrAlreadyExists)
	}
	m.seq++
	m.requests[req.ID] = storedRequest{Request: req, seq: m.seq}
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id generic.RequestID) (leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) getRequestLocked(id generic.RequestID) (leave.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return leave.Request{}, fmt.Errorf("request %s: %w", id, generic.ErrNotFound)
	}
	return r.Request, nil
}

func (m *Memory) FindOverlapping(_ context.Context, employeeID generic.EntityID, p generic.Period) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findOverlappingLocked(employeeID, p), nil
}

func (m *Memory) findOverlappingLocked(employeeID generic.EntityID, p generic.Period) *leave.Request {
	var found *storedRequest
	for _, r := range m.requests {
		if r.EmployeeID != employeeID {
			continue
		}
		if r.Status != leave.StatusPending && r.Status != leave.StatusApproved {
			continue
		}
		if !r.Period.Overlaps(p) {
			continue
		}
		if found == nil || r.seq < found.seq {
			r := r
			found = &r
		}
	}
	if found == nil {
		return nil
	}
	out := found.Request
	return &out
}

func (m *Memory) TransitionRequest(_ context.Context, id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionRequestLocked(id, from, to, approverID, at)
}

func (m *Memory) transitionRequestLocked(id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	r, ok := m.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.ApproverID = approverID
	r.UpdatedAt = at
	decided := at
	r.DecidedAt = &decided
	m.requests[id] = r
	return true, nil
}

func (m *Memory) ListRequests(_ context.Context, q leave.Query) ([]leave.Request, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items, total := m.listRequestsLocked(q)
	return items, total, nil
}

func (m *Memory) listRequestsLocked(q leave.Query) ([]leave.Request, int) {
	var matched []storedRequest
	for _, r := range m.requests {
		if q.Matches(r.Request) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].seq > matched[j].seq
	})

	total := len(matched)
	if q.Offset >= total {
		return []leave.Request{}, total
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	items := make([]leave.Request, 0, end-q.Offset)
	for _, r := range matched[q.Offset:end] {
		items = append(items, r.Request)
	}
	return items, total
}

func (m *Memory) CountByStatus(_ context.Context, employeeID generic.EntityID) (leave.StatusCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countByStatusLocked(employeeID), nil
}

func (m *Memory) countByStatusLocked(employeeID generic.EntityID) leave.StatusCounts {
	var c leave.StatusCounts
	for _, r := range m.requests {
		if employeeID != "" && r.EmployeeID != employeeID {
			continue
		}
		c.Add(r.Status, 1)
	}
	return c
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) ListHolidays(_ context.Context) ([]generic.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHolidaysLocked(), nil
}

func (m *Memory) listHolidaysLocked() []generic.Holiday {
	out := make([]generic.Holiday, 0, len(m.holidays))
	for _, h := range m.holidays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func (m *Memory) SaveHoliday(_ context.Context, h generic.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.holidays[h.ID] = h
	return nil
}

func (m *Memory) DeleteHoliday(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.holidays[id]; !ok {
		return fmt.Errorf("holiday %s: %w", id, generic.ErrNotFound)
	}
	delete(m.holidays, id)
	return nil
}

// =============================================================================
// AUDIT
// =============================================================================

func (m *Memory) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queryAuditLocked(filter), nil
}

func (m *Memory) queryAuditLocked(filter generic.AuditFilter) []generic.AuditEntry {
	out := []generic.AuditEntry{}
	for _, e := range m.audit {
		if filter.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) CreateUser(_ context.Context, u auth.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return fmt.Errorf("user %s: %w", u.Email, generic.ErrAlreadyExists)
		}
	}
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id generic.EntityID) (auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return auth.User{}, fmt.Errorf("user %s: %w", id, generic.ErrNotFound)
	}
	return u, nil
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, fmt.Errorf("user %s: %w", email, generic.ErrNotFound)
}

func (m *Memory) ListUsers(_ context.Context) ([]auth.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]auth.User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].Email < users[j].Email
	})
	return users, nil
}

func (m *Memory) UpdatePassword(_ context.Context, id generic.EntityID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("user %s: %w", id, generic.ErrNotFound)
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialised by the store mutex.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &generic.TransactionAbortedError{Op: "begin", Err: err}
	}

	snapshot := tm.snapshot()
	txStore := &txMemoryView{parent: tm.Memory}

	if err := fn(txStore); err != nil {
		tm.restore(snapshot)
		return err
	}

	// The deadline covers the whole transaction, commit included.
	if err := ctx.Err(); err != nil {
		tm.restore(snapshot)
		return &generic.TransactionAbortedError{Op: "commit", Err: err}
	}
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	balances := make(map[generic.EntityID]leave.Balance, len(tm.balances))
	for k, v := range tm.balances {
		balances[k] = v
	}
	requests := make(map[generic.RequestID]storedRequest, len(tm.requests))
	for k, v := range tm.requests {
		requests[k] = v
	}
	holidays := make(map[string]generic.Holiday, len(tm.holidays))
	for k, v := range tm.holidays {
		holidays[k] = v
	}
	return memorySnapshot{
		balances: balances,
		requests: requests,
		holidays: holidays,
		audit:    append([]generic.AuditEntry{}, tm.audit...),
		seq:      tm.seq,
	}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.balances = s.balances
	tm.requests = s.requests
	tm.holidays = s.holidays
	tm.audit = s.audit
	tm.seq = s.seq
}

type memorySnapshot struct {
	balances map[generic.EntityID]leave.Balance
	requests map[generic.RequestID]storedRequest
	holidays map[string]generic.Holiday
	audit    []generic.AuditEntry
	seq      int64
}

// txMemoryView runs with the parent's lock already held by WithTx.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) GetOrCreateBalance(_ context.Context, employeeID generic.EntityID) (leave.Balance, error) {
	return tv.parent.getOrCreateBalanceLocked(employeeID), nil
}

func (tv *txMemoryView) TryDebit(_ context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (bool, error) {
	return tv.parent.tryDebitLocked(employeeID, t, days)
}

func (tv *txMemoryView) CreditBalance(_ context.Context, employeeID generic.EntityID, t leave.Type, days generic.Amount) (leave.Balance, error) {
	return tv.parent.creditBalanceLocked(employeeID, t, days)
}

func (tv *txMemoryView) CreateRequest(_ context.Context, req leave.Request) error {
	return tv.parent.createRequestLocked(req)
}

func (tv *txMemoryView) GetRequest(_ context.Context, id generic.RequestID) (leave.Request, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txMemoryView) FindOverlapping(_ context.Context, employeeID generic.EntityID, p generic.Period) (*leave.Request, error) {
	return tv.parent.findOverlappingLocked(employeeID, p), nil
}

func (tv *txMemoryView) TransitionRequest(_ context.Context, id generic.RequestID, from, to leave.Status, approverID generic.EntityID, at time.Time) (bool, error) {
	return tv.parent.transitionRequestLocked(id, from, to, approverID, at)
}

func (tv *txMemoryView) ListRequests(_ context.Context, q leave.Query) ([]leave.Request, int, error) {
	items, total := tv.parent.listRequestsLocked(q)
	return items, total, nil
}

func (tv *txMemoryView) CountByStatus(_ context.Context, employeeID generic.EntityID) (leave.StatusCounts, error) {
	return tv.parent.countByStatusLocked(employeeID), nil
}

func (tv *txMemoryView) ListHolidays(_ context.Context) ([]generic.Holiday, error) {
	return tv.parent.listHolidaysLocked(), nil
}

func (tv *txMemoryView) SaveHoliday(_ context.Context, h generic.Holiday) error {
	tv.parent.holidays[h.ID] = h
	return nil
}

func (tv *txMemoryView) DeleteHoliday(_ context.Context, id string) error {
	if _, ok := tv.parent.holidays[id]; !ok {
		return fmt.Errorf("holiday %s: %w", id, generic.ErrNotFound)
	}
	delete(tv.parent.holidays, id)
	return nil
}

func (tv *txMemoryView) AppendAudit(_ context.Context, entry generic.AuditEntry) error {
	tv.parent.audit = append(tv.parent.audit, entry)
	return nil
}

func (tv *txMemoryView) QueryAudit(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	return tv.parent.queryAuditLocked(filter), nil
}

var (
	_ leave.TxStore  = (*TxMemory)(nil)
	_ leave.Store    = (*txMemoryView)(nil)
	_ auth.UserStore = (*Memory)(nil)
)
