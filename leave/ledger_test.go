package leave_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// March 2025: the 1st is a Saturday, the 3rd a Monday.

func TestSubmit_RecordsPendingRequest(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		// GIVEN: an employee with 5 annual days
		h := newHarness(s)
		h.grant(t, "emp-1", "annual", 5)

		// WHEN: submitting Mon..Wed
		req := h.submit(t, "emp-1", "annual", "2025-03-03", "2025-03-05")

		// THEN: the request is pending, counts business days and snapshots the balance
		assert.Equal(t, leave.StatusPending, req.Status)
		assert.Equal(t, 3.0, req.DaysRequested.Float64())
		assert.Equal(t, 5.0, req.BalanceSnapshot.Annual.Float64())
		assert.Empty(t, req.ApproverID)

		stored, err := s.GetRequest(context.Background(), req.ID)
		require.NoError(t, err)
		assert.Equal(t, req.ID, stored.ID)
		assert.Equal(t, "2025-03-03", stored.Period.Start.String())
		assert.Equal(t, "2025-03-05", stored.Period.End.String())
		assert.Equal(t, "family trip", stored.Reason)

		// Submission does not touch the balance.
		assert.Equal(t, 5.0, h.balance(t, "emp-1").Annual.Float64())
	})
}

func TestSubmit_ValidationOrder(t *testing.T) {
	tests := []struct {
		name string
		in   leave.SubmitInput
		want error
	}{
		{"unknown type", leave.SubmitInput{Type: "vacation", StartDate: "bad", EndDate: "bad"}, generic.ErrInvalidType},
		{"unparseable start", leave.SubmitInput{Type: "unpaid", StartDate: "03/03/2025", EndDate: "2025-03-03"}, generic.ErrInvalidDateRange},
		{"end before start", leave.SubmitInput{Type: "unpaid", StartDate: "2025-03-05", EndDate: "2025-03-03"}, generic.ErrInvalidDateRange},
		{"half day over two days", leave.SubmitInput{Type: "unpaid", StartDate: "2025-03-03", EndDate: "2025-03-04", IsHalfDay: true, HalfDayPart: "AM"}, generic.ErrHalfDayMismatch},
		{"half day without part", leave.SubmitInput{Type: "unpaid", StartDate: "2025-03-03", EndDate: "2025-03-03", IsHalfDay: true}, generic.ErrHalfDayMismatch},
		{"weekend only", leave.SubmitInput{Type: "unpaid", StartDate: "2025-03-08", EndDate: "2025-03-09"}, generic.ErrZeroDuration},
	}

	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				tt.in.EmployeeID = "emp-1"
				_, err := h.ledger.Submit(context.Background(), tt.in)
				assert.ErrorIs(t, err, tt.want)
			})
		}

		res, err := h.ledger.List(context.Background(), leave.ListFilter{Status: "all"})
		require.NoError(t, err)
		assert.Zero(t, res.Total, "rejected submissions must not be stored")
	})
}

func TestSubmit_RequiresEmployee(t *testing.T) {
	h := newHarness(newMemoryStore())
	_, err := h.ledger.Submit(context.Background(), leave.SubmitInput{Type: "unpaid", StartDate: "2025-03-03", EndDate: "2025-03-03"})
	assert.ErrorIs(t, err, generic.ErrUnauthenticated)
}

func TestSubmit_HalfDay(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		h.grant(t, "emp-1", "sick", 1)

		req, err := h.ledger.Submit(context.Background(), leave.SubmitInput{
			EmployeeID:  "emp-1",
			Type:        "sick",
			StartDate:   "2025-03-10",
			EndDate:     "2025-03-10",
			IsHalfDay:   true,
			HalfDayPart: "PM",
		})
		require.NoError(t, err)
		assert.Equal(t, 0.5, req.DaysRequested.Float64())
		assert.Equal(t, leave.HalfDayPM, req.HalfDayPart)
		assert.True(t, req.IsHalfDay)
	})
}

func TestSubmit_Overlap(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		// GIVEN: a pending request over 03-01..03-05
		h := newHarness(s)
		h.grant(t, "emp-1", "annual", 10)
		first := h.submit(t, "emp-1", "annual", "2025-03-01", "2025-03-05")

		// WHEN: submitting 03-04..03-06
		_, err := h.ledger.Submit(context.Background(), leave.SubmitInput{
			EmployeeID: "emp-1", Type: "annual", StartDate: "2025-03-04", EndDate: "2025-03-06",
		})

		// THEN: it overlaps the first
		require.ErrorIs(t, err, generic.ErrOverlappingRequest)
		var oe *generic.OverlapError
		require.True(t, errors.As(err, &oe))
		assert.Equal(t, first.ID, oe.ExistingID)

		// Adjacent range and other employees are fine.
		h.submit(t, "emp-1", "annual", "2025-03-06", "2025-03-08")
		h.submit(t, "emp-2", "unpaid", "2025-03-04", "2025-03-06")
	})
}

func TestSubmit_RejectedRequestsDoNotBlock(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		first := h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-05")
		_, err := h.coordinator.Reject(context.Background(), first.ID, hr)
		require.NoError(t, err)

		h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-05")
	})
}

func TestSubmit_AdvisoryBalanceCheck(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		h.grant(t, "emp-1", "annual", 2)

		_, err := h.ledger.Submit(context.Background(), leave.SubmitInput{
			EmployeeID: "emp-1", Type: "annual", StartDate: "2025-03-03", EndDate: "2025-03-05",
		})
		require.ErrorIs(t, err, generic.ErrInsufficientBalance)
		var ib *generic.InsufficientBalanceError
		require.True(t, errors.As(err, &ib))
		assert.Equal(t, 2.0, ib.Available.Float64())
		assert.Equal(t, 3.0, ib.Requested.Float64())

		// Unpaid leave has no balance to check.
		req := h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-05")
		assert.Equal(t, 2.0, req.BalanceSnapshot.Annual.Float64())
	})
}

func TestSubmit_FirstSubmissionCreatesZeroBalance(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		req := h.submit(t, "emp-new", "other", "2025-03-03", "2025-03-03")
		assert.True(t, req.BalanceSnapshot.Annual.IsZero())

		b := h.balance(t, "emp-new")
		assert.True(t, b.Annual.IsZero())
		assert.True(t, b.Sick.IsZero())
		assert.True(t, b.Casual.IsZero())
	})
}

func TestSubmit_HolidaysAreNotCounted(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		_, err := h.ledger.AddHoliday(context.Background(), hr, "2025-03-04", "Founders Day", false)
		require.NoError(t, err)

		req := h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-05")
		assert.Equal(t, 2.0, req.DaysRequested.Float64())

		_, err = h.ledger.Submit(context.Background(), leave.SubmitInput{
			EmployeeID: "emp-2", Type: "unpaid", StartDate: "2025-03-04", EndDate: "2025-03-04",
		})
		assert.ErrorIs(t, err, generic.ErrZeroDuration)
	})
}

// =============================================================================
// LIST
// =============================================================================

func TestList_DefaultsToPendingWithCounts(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		a := h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-03")
		h.submit(t, "emp-1", "unpaid", "2025-03-04", "2025-03-04")
		c := h.submit(t, "emp-2", "unpaid", "2025-03-05", "2025-03-05")
		_, err := h.coordinator.Approve(context.Background(), a.ID, hr)
		require.NoError(t, err)

		res, err := h.ledger.List(context.Background(), leave.ListFilter{})
		require.NoError(t, err)

		assert.Equal(t, 1, res.Page)
		assert.Equal(t, leave.DefaultPageLimit, res.Limit)
		assert.Equal(t, 2, res.Total)
		require.Len(t, res.Items, 2)
		assert.Equal(t, c.ID, res.Items[0].ID, "newest first")
		assert.Equal(t, leave.StatusCounts{Pending: 2, Approved: 1, All: 3}, res.Counts)

		mine, err := h.ledger.List(context.Background(), leave.ListFilter{Status: "all", EmployeeID: "emp-2"})
		require.NoError(t, err)
		assert.Equal(t, 1, mine.Total)
		assert.Equal(t, leave.StatusCounts{Pending: 1, All: 1}, mine.Counts)
	})
}

func TestList_Paging(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		for i := 0; i < 12; i++ {
			day := fmt.Sprintf("2025-04-%02d", i+1)
			if _, err := h.ledger.Submit(context.Background(), leave.SubmitInput{
				EmployeeID: "emp-1", Type: "other", StartDate: day, EndDate: day,
			}); err != nil {
				// Weekends are refused with ZeroDuration.
				require.ErrorIs(t, err, generic.ErrZeroDuration)
			}
		}

		first, err := h.ledger.List(context.Background(), leave.ListFilter{Limit: 5, Page: 1})
		require.NoError(t, err)
		second, err := h.ledger.List(context.Background(), leave.ListFilter{Limit: 5, Page: 2})
		require.NoError(t, err)

		// April 1-12 2025 has 9 business days.
		assert.Equal(t, 9, first.Total)
		assert.Len(t, first.Items, 5)
		assert.Len(t, second.Items, 4)
		assert.NotEqual(t, first.Items[0].ID, second.Items[0].ID)
		assert.True(t, first.Items[4].CreatedAt.After(second.Items[0].CreatedAt))
	})
}

func TestList_Search(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		_, err := h.ledger.Submit(context.Background(), leave.SubmitInput{
			EmployeeID: "emp-1", Type: "unpaid", StartDate: "2025-03-03", EndDate: "2025-03-03", Reason: "Dentist appointment",
		})
		require.NoError(t, err)
		h.grant(t, "emp-2", "sick", 2)
		_, err = h.ledger.Submit(context.Background(), leave.SubmitInput{
			EmployeeID: "emp-2", Type: "sick", StartDate: "2025-03-03", EndDate: "2025-03-03", Reason: "flu",
		})
		require.NoError(t, err)

		byReason, err := h.ledger.List(context.Background(), leave.ListFilter{Query: "DENTIST"})
		require.NoError(t, err)
		require.Len(t, byReason.Items, 1)
		assert.Equal(t, generic.EntityID("emp-1"), byReason.Items[0].EmployeeID)

		byType, err := h.ledger.List(context.Background(), leave.ListFilter{Query: "sick"})
		require.NoError(t, err)
		require.Len(t, byType.Items, 1)
		assert.Equal(t, leave.TypeSick, byType.Items[0].Type)

		literal, err := h.ledger.List(context.Background(), leave.ListFilter{Query: "%"})
		require.NoError(t, err)
		assert.Empty(t, literal.Items)
		assert.NotNil(t, literal.Items)
	})
}

func TestList_DateWindow(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-05")
		h.submit(t, "emp-1", "unpaid", "2025-03-17", "2025-03-18")

		res, err := h.ledger.List(context.Background(), leave.ListFilter{From: "2025-03-05", To: "2025-03-10"})
		require.NoError(t, err)
		require.Len(t, res.Items, 1)
		assert.Equal(t, "2025-03-03", res.Items[0].Period.Start.String())

		_, err = h.ledger.List(context.Background(), leave.ListFilter{From: "2025-03-10", To: "2025-03-01"})
		assert.ErrorIs(t, err, generic.ErrInvalidDateRange)
	})
}

func TestList_InvalidStatus(t *testing.T) {
	h := newHarness(newMemoryStore())
	_, err := h.ledger.List(context.Background(), leave.ListFilter{Status: "archived"})
	assert.ErrorIs(t, err, generic.ErrInvalidStatus)
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, limit         int
		wantPage, wantLimit int
	}{
		{0, 0, 1, 10},
		{-3, 1, 1, 5},
		{2, 50, 2, 50},
		{4, 1000, 4, 100},
		{100000000000000000, 100, leave.MaxPage, 100},
	}
	for _, tt := range tests {
		page, limit := leave.NormalizePage(tt.page, tt.limit)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantLimit, limit)
	}
}

// =============================================================================
// GET / CANCEL / HISTORY
// =============================================================================

func TestGet_Visibility(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		req := h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-03")

		_, err := h.ledger.Get(context.Background(), req.ID, employee)
		assert.NoError(t, err)
		_, err = h.ledger.Get(context.Background(), req.ID, hr)
		assert.NoError(t, err)
		_, err = h.ledger.Get(context.Background(), req.ID, coworker)
		assert.ErrorIs(t, err, generic.ErrForbidden)
		_, err = h.ledger.Get(context.Background(), "missing", hr)
		assert.ErrorIs(t, err, generic.ErrNotFound)
	})
}

func TestCancel(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		// GIVEN: a pending paid request
		h := newHarness(s)
		h.grant(t, "emp-1", "annual", 5)
		req := h.submit(t, "emp-1", "annual", "2025-03-03", "2025-03-05")

		// WHEN: a coworker tries, then the owner cancels
		_, err := h.ledger.Cancel(context.Background(), req.ID, coworker)
		require.ErrorIs(t, err, generic.ErrForbidden)

		cancelled, err := h.ledger.Cancel(context.Background(), req.ID, employee)
		require.NoError(t, err)

		// THEN: it is cancelled, the balance untouched, and it can no longer be decided
		assert.Equal(t, leave.StatusCancelled, cancelled.Status)
		assert.Empty(t, cancelled.ApproverID)
		assert.Equal(t, 5.0, h.balance(t, "emp-1").Annual.Float64())

		_, err = h.ledger.Cancel(context.Background(), req.ID, employee)
		assert.ErrorIs(t, err, generic.ErrNotPending)
		_, err = h.coordinator.Approve(context.Background(), req.ID, hr)
		assert.ErrorIs(t, err, generic.ErrNotPending)

		// The dates are free again.
		h.submit(t, "emp-1", "annual", "2025-03-03", "2025-03-05")
	})
}

func TestHistory(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		req := h.submit(t, "emp-1", "unpaid", "2025-03-03", "2025-03-03")
		_, err := h.coordinator.Reject(context.Background(), req.ID, hr)
		require.NoError(t, err)

		entries, err := h.ledger.History(context.Background(), req.ID, admin)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, generic.AuditRequestSubmitted, entries[0].Action)
		assert.Equal(t, generic.AuditRequestRejected, entries[1].Action)
		assert.Equal(t, hr.ID, entries[1].ActorID)

		_, err = h.ledger.History(context.Background(), req.ID, employee)
		assert.ErrorIs(t, err, generic.ErrForbidden)
	})
}

// =============================================================================
// GRANTS AND HOLIDAYS
// =============================================================================

func TestGrant(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		ctx := context.Background()

		_, err := h.ledger.Grant(ctx, employee, "emp-1", "annual", generic.Days(5))
		assert.ErrorIs(t, err, generic.ErrForbidden)
		_, err = h.ledger.Grant(ctx, hr, "emp-1", "unpaid", generic.Days(5))
		assert.ErrorIs(t, err, generic.ErrInvalidType)
		_, err = h.ledger.Grant(ctx, hr, "emp-1", "annual", generic.Days(0))
		assert.ErrorIs(t, err, generic.ErrInvalidAmount)
		_, err = h.ledger.Grant(ctx, hr, "emp-1", "annual", generic.Days(1.25))
		assert.ErrorIs(t, err, generic.ErrInvalidAmount)

		b, err := h.ledger.Grant(ctx, hr, "emp-1", "annual", generic.Days(5))
		require.NoError(t, err)
		assert.Equal(t, 5.0, b.Annual.Float64())
		b, err = h.ledger.Grant(ctx, admin, "emp-1", "annual", generic.Days(2.5))
		require.NoError(t, err)
		assert.Equal(t, 7.5, b.Annual.Float64())
		assert.True(t, b.Sick.IsZero())

		entries, err := s.QueryAudit(ctx, generic.AuditFilter{EntityID: "emp-1", Actions: []generic.AuditAction{generic.AuditBalanceGranted}})
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})
}

func TestHolidays(t *testing.T) {
	forEachStore(t, func(t *testing.T, s leave.TxStore) {
		h := newHarness(s)
		ctx := context.Background()

		_, err := h.ledger.AddHoliday(ctx, employee, "2025-12-25", "Christmas", true)
		assert.ErrorIs(t, err, generic.ErrForbidden)
		_, err = h.ledger.AddHoliday(ctx, hr, "Dec 25", "Christmas", true)
		assert.ErrorIs(t, err, generic.ErrInvalidDateRange)

		xmas, err := h.ledger.AddHoliday(ctx, hr, "2024-12-25", " Christmas ", true)
		require.NoError(t, err)
		assert.Equal(t, "Christmas", xmas.Name)

		// Recurring: Thursday 2025-12-25 is excluded too.
		req := h.submit(t, "emp-1", "unpaid", "2025-12-24", "2025-12-26")
		assert.Equal(t, 2.0, req.DaysRequested.Float64())

		list, err := h.ledger.Holidays(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.True(t, list[0].Recurring)

		require.NoError(t, h.ledger.RemoveHoliday(ctx, hr, xmas.ID))
		assert.ErrorIs(t, h.ledger.RemoveHoliday(ctx, hr, xmas.ID), generic.ErrNotFound)
	})
}

func TestQueryMatches(t *testing.T) {
	from, err := generic.ParseDate("2025-03-05")
	require.NoError(t, err)
	req := leave.Request{
		EmployeeID: "emp-1",
		Type:       leave.TypeCasual,
		Status:     leave.StatusApproved,
		Reason:     "Moving house",
		Period: generic.Period{
			Start: generic.NewTimePoint(2025, 3, 3),
			End:   generic.NewTimePoint(2025, 3, 5),
		},
	}

	assert.True(t, leave.Query{Status: leave.StatusAll}.Matches(req))
	assert.False(t, leave.Query{Status: leave.StatusPending}.Matches(req))
	assert.True(t, leave.Query{Search: strings.ToUpper("house")}.Matches(req))
	assert.True(t, leave.Query{Search: "casual"}.Matches(req))
	assert.True(t, leave.Query{From: &from}.Matches(req))
	assert.False(t, leave.Query{EmployeeID: "emp-2"}.Matches(req))
}
