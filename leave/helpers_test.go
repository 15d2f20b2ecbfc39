package leave_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/leave/store"
	"github.com/warp/leave-ledger/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var (
	hr       = leave.Actor{ID: "hr-1", Role: leave.RoleHR}
	admin    = leave.Actor{ID: "admin-1", Role: leave.RoleAdmin}
	employee = leave.Actor{ID: "emp-1", Role: leave.RoleEmployee}
	coworker = leave.Actor{ID: "emp-2", Role: leave.RoleEmployee}
)

// forEachStore runs fn against every TxStore implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s leave.TxStore)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, store.NewTxMemory())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, s)
	})
}

// steppingClock advances one second per call so creation order is total.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

type harness struct {
	ledger      *leave.Ledger
	coordinator *leave.Coordinator
	store       leave.TxStore
}

func newHarness(s leave.TxStore) *harness {
	clock := leave.WithClock(steppingClock())
	return &harness{
		ledger:      leave.NewLedger(s, clock),
		coordinator: leave.NewCoordinator(s, clock),
		store:       s,
	}
}

func (h *harness) grant(t *testing.T, emp generic.EntityID, leaveType string, days float64) {
	t.Helper()
	_, err := h.ledger.Grant(context.Background(), hr, emp, leaveType, generic.Days(days))
	require.NoError(t, err)
}

func (h *harness) submit(t *testing.T, emp generic.EntityID, leaveType, start, end string) leave.Request {
	t.Helper()
	req, err := h.ledger.Submit(context.Background(), leave.SubmitInput{
		EmployeeID: emp,
		Type:       leaveType,
		StartDate:  start,
		EndDate:    end,
		Reason:     "family trip",
	})
	require.NoError(t, err)
	return req
}

func (h *harness) balance(t *testing.T, emp generic.EntityID) leave.Balance {
	t.Helper()
	b, err := h.ledger.Balance(context.Background(), emp)
	require.NoError(t, err)
	return b
}

func newMemoryStore() leave.TxStore {
	return store.NewTxMemory()
}
