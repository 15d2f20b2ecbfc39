/*
handlers_test.go - HTTP tests for the leave API

Tests for:
- Login from inside and outside the office network
- Submit, approve and balance flow through the router
- Error kind to status mapping (422, 400, 409, 404, 403, 401, 503)
- List query parameters and per-role access
- Employee directory and admin password reset
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/leave/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// httptest requests come from 192.0.2.1.
const testOffice = "192.0.2.0/24"

type testUsers interface {
	leave.TxStore
	auth.UserStore
}

type testServer struct {
	router http.Handler
	authn  *auth.Authenticator
	tokens *auth.Tokens
	ledger *leave.Ledger
}

func newTestServer(t *testing.T, s testUsers) *testServer {
	t.Helper()
	return newTestServerWithOptions(t, s, Options{})
}

func newTestServerWithOptions(t *testing.T, s testUsers, opts Options) *testServer {
	t.Helper()
	network, err := auth.ParseOfficeNetwork(testOffice)
	require.NoError(t, err)
	tokens := auth.NewTokens("test-secret", time.Hour)
	authn := auth.NewAuthenticator(s, tokens, network)

	ledger := leave.NewLedger(s)
	h := NewHandler(ledger, leave.NewCoordinator(s), authn, nil, opts)
	return &testServer{router: NewRouter(h), authn: authn, tokens: tokens, ledger: ledger}
}

// user creates an account and returns it with a bearer token.
func (ts *testServer) user(t *testing.T, email string, role leave.Role) (auth.User, string) {
	t.Helper()
	u, err := ts.authn.CreateUser(context.Background(), email, "Test "+string(role), "password1", role)
	require.NoError(t, err)
	token, err := ts.tokens.Generate(u)
	require.NoError(t, err)
	return u, token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) grant(t *testing.T, token string, emp generic.EntityID, leaveType string, days float64) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/balances/"+string(emp)+"/grant", token, GrantRequest{Type: leaveType, Days: days})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) submit(t *testing.T, token string, body SubmitLeaveRequest) LeaveDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/leaves", token, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[LeaveDTO](t, rec)
}

// abortingStore fails every transaction as the database would under lock contention.
type abortingStore struct {
	*store.TxMemory
}

func (abortingStore) WithTx(context.Context, func(leave.Store) error) error {
	return &generic.TransactionAbortedError{Op: "test", Err: errors.New("lock wait timeout")}
}

// =============================================================================
// AUTH
// =============================================================================

func TestLogin_SetsCookieAndReturnsToken(t *testing.T) {
	// GIVEN: an HR account
	ts := newTestServer(t, store.NewTxMemory())
	hrUser, _ := ts.user(t, "hr@example.com", leave.RoleHR)

	// WHEN: logging in from the office network
	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "HR@example.com", Password: "password1"})

	// THEN: token and cookie are issued
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[LoginResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, string(hrUser.ID), resp.User.ID)
	assert.Equal(t, "hr", resp.User.Role)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, resp.Token, cookie.Value)

	// AND: the cookie alone authenticates
	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(cookie)
	me := httptest.NewRecorder()
	ts.router.ServeHTTP(me, req)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "hr@example.com", decode[UserDTO](t, me).Email)
}

func TestLogin_OutsideOfficeNetwork(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())
	ts.user(t, "hr@example.com", leave.RoleHR)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"hr@example.com","password":"password1"}`))
	req.RemoteAddr = "198.51.100.20:4000"
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Access restricted", decode[ErrorResponse](t, rec).Error)
}

func TestLogin_ForwardedForDecidesBehindProxy(t *testing.T) {
	ts := newTestServerWithOptions(t, store.NewTxMemory(), Options{TrustProxy: true})
	ts.user(t, "hr@example.com", leave.RoleHR)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"hr@example.com","password":"password1"}`))
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.1")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogin_ForwardedForIgnoredWithoutProxy(t *testing.T) {
	// GIVEN: a server that is reached directly
	ts := newTestServer(t, store.NewTxMemory())
	ts.user(t, "hr@example.com", leave.RoleHR)

	// WHEN: an outside client claims an office address
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
		strings.NewReader(`{"email":"hr@example.com","password":"password1"}`))
	req.RemoteAddr = "198.51.100.20:4000"
	req.Header.Set("X-Forwarded-For", "192.0.2.5")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	// THEN: the peer address decides
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLogin_BadCredentials(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())
	ts.user(t, "hr@example.com", leave.RoleHR)

	rec := ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "hr@example.com", Password: "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ValidationFailed", decode[ErrorResponse](t, rec).Code)
}

func TestAuthenticate_RequiresToken(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/leaves/mine", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/leaves/mine", "garbage", nil).Code)
}

func TestCreateUser_AdminOnly(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())
	_, adminToken := ts.user(t, "admin@example.com", leave.RoleAdmin)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	body := CreateUserRequest{Email: "new@example.com", Name: "New", Password: "password1", Role: "employee"}

	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/users", hrToken, body).Code)

	rec := ts.do(t, http.MethodPost, "/api/users", adminToken, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "employee", decode[UserDTO](t, rec).Role)

	// duplicate email
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/users", adminToken, body).Code)

	body.Role = "superuser"
	body.Email = "other@example.com"
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/users", adminToken, body).Code)
}

func TestUserDirectoryAndPasswordReset(t *testing.T) {
	// GIVEN: an admin, an HR user and an employee
	ts := newTestServer(t, store.NewTxMemory())
	_, adminToken := ts.user(t, "admin@example.com", leave.RoleAdmin)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	emp, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)

	t.Run("directory lists names for deciders", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/users", hrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		users := decode[[]UserDTO](t, rec)
		require.Len(t, users, 3)
		assert.Equal(t, "Test admin", users[0].Name)
		assert.Equal(t, "Test employee", users[1].Name)

		assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/api/users", empToken, nil).Code)
	})

	t.Run("admin resets a password", func(t *testing.T) {
		path := "/api/users/" + string(emp.ID) + "/password"
		body := ResetPasswordRequest{Password: "brand-new-pw"}

		assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, path, hrToken, body).Code)
		assert.Equal(t, http.StatusBadRequest,
			ts.do(t, http.MethodPost, path, adminToken, ResetPasswordRequest{Password: "short"}).Code)
		assert.Equal(t, http.StatusNotFound,
			ts.do(t, http.MethodPost, "/api/users/ghost/password", adminToken, body).Code)

		rec := ts.do(t, http.MethodPost, path, adminToken, body)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "emp@example.com", Password: "brand-new-pw"})
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = ts.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Email: "emp@example.com", Password: "password1"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

// =============================================================================
// SUBMIT AND DECIDE
// =============================================================================

func TestSubmitApproveFlow(t *testing.T) {
	// GIVEN: an employee with 5 annual days
	ts := newTestServer(t, store.NewTxMemory())
	emp, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	ts.grant(t, hrToken, emp.ID, "annual", 5)

	// WHEN: the employee submits Mon-Wed and HR approves
	created := ts.submit(t, empToken, SubmitLeaveRequest{
		Type: "annual", StartDate: "2025-03-03", EndDate: "2025-03-05", Reason: "family trip",
	})
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, 3.0, created.DaysRequested)
	assert.Equal(t, string(emp.ID), created.EmployeeID)
	assert.Equal(t, 5.0, created.BalanceSnapshot.Annual)

	rec := ts.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/approve", hrToken, nil)

	// THEN: the request is approved and the balance debited
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[LeaveDTO](t, rec)
	assert.Equal(t, "approved", approved.Status)
	assert.NotEmpty(t, approved.ApproverID)
	assert.NotNil(t, approved.DecidedAt)

	bal := ts.do(t, http.MethodGet, "/api/balances/me", empToken, nil)
	require.Equal(t, http.StatusOK, bal.Code)
	assert.Equal(t, 2.0, decode[BalanceDTO](t, bal).Annual)

	// AND: a second decision conflicts
	again := ts.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/reject", hrToken, nil)
	assert.Equal(t, http.StatusConflict, again.Code)
	assert.Equal(t, "NotPending", decode[ErrorResponse](t, again).Code)

	// AND: the history shows both steps
	hist := ts.do(t, http.MethodGet, "/api/leaves/"+created.ID+"/history", hrToken, nil)
	require.Equal(t, http.StatusOK, hist.Code)
	assert.Len(t, decode[[]AuditEntryDTO](t, hist), 2)
}

func TestApprove_InsufficientBalanceCarriesAmounts(t *testing.T) {
	// GIVEN: two pending 2-day requests against 3 sick days
	ts := newTestServer(t, store.NewTxMemory())
	emp, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	ts.grant(t, hrToken, emp.ID, "sick", 3)
	first := ts.submit(t, empToken, SubmitLeaveRequest{Type: "sick", StartDate: "2025-03-03", EndDate: "2025-03-04"})
	second := ts.submit(t, empToken, SubmitLeaveRequest{Type: "sick", StartDate: "2025-03-10", EndDate: "2025-03-11"})

	// WHEN: both are approved
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/leaves/"+first.ID+"/approve", hrToken, nil).Code)
	rec := ts.do(t, http.MethodPost, "/api/leaves/"+second.ID+"/approve", hrToken, nil)

	// THEN: the second fails with the amounts and stays pending
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "InsufficientBalance", resp.Code)
	require.NotNil(t, resp.Available)
	require.NotNil(t, resp.Requested)
	assert.Equal(t, 1.0, *resp.Available)
	assert.Equal(t, 2.0, *resp.Requested)

	get := ts.do(t, http.MethodGet, "/api/leaves/"+second.ID, empToken, nil)
	assert.Equal(t, "pending", decode[LeaveDTO](t, get).Status)
}

func TestSubmit_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())
	emp, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	ts.grant(t, hrToken, emp.ID, "annual", 10)
	existing := ts.submit(t, empToken, SubmitLeaveRequest{Type: "annual", StartDate: "2025-03-03", EndDate: "2025-03-05"})

	tests := []struct {
		name     string
		body     SubmitLeaveRequest
		wantCode int
		wantKind string
	}{
		{"unknown type", SubmitLeaveRequest{Type: "vacation", StartDate: "2025-04-01", EndDate: "2025-04-01"}, http.StatusUnprocessableEntity, "InvalidType"},
		{"end before start", SubmitLeaveRequest{Type: "annual", StartDate: "2025-04-02", EndDate: "2025-04-01"}, http.StatusBadRequest, "InvalidDateRange"},
		{"unparseable date", SubmitLeaveRequest{Type: "annual", StartDate: "April 1", EndDate: "2025-04-01"}, http.StatusBadRequest, "InvalidDateRange"},
		{"half day over two dates", SubmitLeaveRequest{Type: "annual", StartDate: "2025-04-01", EndDate: "2025-04-02", IsHalfDay: true, HalfDayPart: "AM"}, http.StatusBadRequest, "HalfDayMismatch"},
		{"weekend only", SubmitLeaveRequest{Type: "annual", StartDate: "2025-04-05", EndDate: "2025-04-06"}, http.StatusBadRequest, "ZeroDuration"},
		{"too many days", SubmitLeaveRequest{Type: "sick", StartDate: "2025-04-01", EndDate: "2025-04-01"}, http.StatusBadRequest, "InsufficientBalance"},
		{"overlap", SubmitLeaveRequest{Type: "annual", StartDate: "2025-03-05", EndDate: "2025-03-06"}, http.StatusConflict, "OverlappingRequest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/leaves", empToken, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Equal(t, tt.wantKind, decode[ErrorResponse](t, rec).Code)
		})
	}

	t.Run("overlap names the existing request", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/leaves", empToken,
			SubmitLeaveRequest{Type: "annual", StartDate: "2025-03-04", EndDate: "2025-03-04"})
		resp := decode[ErrorResponse](t, rec)
		require.NotNil(t, resp.Existing)
		assert.Equal(t, existing.ID, resp.Existing.ID)
		assert.Equal(t, "2025-03-03", resp.Existing.StartDate)
		assert.Equal(t, "pending", resp.Existing.Status)
	})

	t.Run("reason too long", func(t *testing.T) {
		rec := ts.do(t, http.MethodPost, "/api/leaves", empToken, SubmitLeaveRequest{
			Type: "unpaid", StartDate: "2025-05-01", EndDate: "2025-05-01", Reason: strings.Repeat("x", 1001),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "ValidationFailed", decode[ErrorResponse](t, rec).Code)
	})
}

func TestAccessRules(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())
	_, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)
	_, otherToken := ts.user(t, "other@example.com", leave.RoleEmployee)
	created := ts.submit(t, empToken, SubmitLeaveRequest{Type: "unpaid", StartDate: "2025-03-03", EndDate: "2025-03-03"})

	// employees cannot decide or list everyone
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/approve", empToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodGet, "/api/leaves", empToken, nil).Code)

	// another employee cannot see or cancel it
	rec := ts.do(t, http.MethodGet, "/api/leaves/"+created.ID, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Forbidden", decode[ErrorResponse](t, rec).Code)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/cancel", otherToken, nil).Code)

	// unknown ids are 404
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/leaves/nope", empToken, nil).Code)

	// the owner can cancel once
	rec = ts.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/cancel", empToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[LeaveDTO](t, rec).Status)
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/leaves/"+created.ID+"/cancel", empToken, nil).Code)
}

func TestTransactionAborted_IsRetryable(t *testing.T) {
	ts := newTestServer(t, abortingStore{store.NewTxMemory()})
	_, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)

	rec := ts.do(t, http.MethodPost, "/api/leaves", empToken,
		SubmitLeaveRequest{Type: "unpaid", StartDate: "2025-03-03", EndDate: "2025-03-03"})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	resp := decode[ErrorResponse](t, rec)
	assert.True(t, resp.Retryable)
	assert.Equal(t, "TransactionAborted", resp.Code)
}

// =============================================================================
// LIST
// =============================================================================

func TestListLeaves_QueryParameters(t *testing.T) {
	// GIVEN: six one-day unpaid requests, one of them rejected
	ts := newTestServer(t, store.NewTxMemory())
	_, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	var ids []string
	for i := 0; i < 6; i++ {
		day := fmt.Sprintf("2025-03-%02d", 3+i)
		if i == 5 {
			day = "2025-03-10"
		}
		ids = append(ids, ts.submit(t, empToken, SubmitLeaveRequest{
			Type: "unpaid", StartDate: day, EndDate: day, Reason: fmt.Sprintf("errand %d", i),
		}).ID)
	}
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/leaves/"+ids[0]+"/reject", hrToken, nil).Code)

	t.Run("defaults to pending", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/leaves", hrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[ListLeavesResponse](t, rec)
		assert.Equal(t, 5, resp.Total)
		assert.Equal(t, 1, resp.Page)
		assert.Equal(t, leave.DefaultPageLimit, resp.Limit)
		assert.Equal(t, leave.StatusCounts{Pending: 5, Rejected: 1, All: 6}, resp.Counts)
	})

	t.Run("paging clamps the limit", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/leaves?status=all&page=2&limit=1", hrToken, nil)
		resp := decode[ListLeavesResponse](t, rec)
		assert.Equal(t, leave.MinPageLimit, resp.Limit)
		assert.Equal(t, 6, resp.Total)
		assert.Len(t, resp.Items, 1)
	})

	t.Run("search and date window", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/leaves?status=all&q=ERRAND%203", hrToken, nil)
		resp := decode[ListLeavesResponse](t, rec)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, ids[3], resp.Items[0].ID)

		rec = ts.do(t, http.MethodGet, "/api/leaves?from=2025-03-06&to=2025-03-07", hrToken, nil)
		assert.Equal(t, 2, decode[ListLeavesResponse](t, rec).Total)
	})

	t.Run("bad parameters", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/leaves?status=archived", hrToken, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "InvalidStatus", decode[ErrorResponse](t, rec).Code)

		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/leaves?page=two", hrToken, nil).Code)
		assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/leaves?from=2025-03-09&to=2025-03-01", hrToken, nil).Code)
	})

	t.Run("huge page is clamped", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/leaves?status=all&page=100000000000000000&limit=100", hrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[ListLeavesResponse](t, rec)
		assert.Equal(t, leave.MaxPage, resp.Page)
		assert.Equal(t, 6, resp.Total)
		assert.Empty(t, resp.Items)
	})

	t.Run("mine defaults to every status", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/leaves/mine", empToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 6, decode[ListLeavesResponse](t, rec).Total)
	})

	t.Run("register pdf", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/leaves/report.pdf?status=all", hrToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")))
	})
}

// =============================================================================
// BALANCES AND HOLIDAYS
// =============================================================================

func TestGrant_Validation(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())
	emp, _ := ts.user(t, "emp@example.com", leave.RoleEmployee)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	path := "/api/balances/" + string(emp.ID) + "/grant"

	rec := ts.do(t, http.MethodPost, path, hrToken, GrantRequest{Type: "unpaid", Days: 2})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodPost, path, hrToken, GrantRequest{Type: "annual", Days: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// quarter days cannot be stored exactly
	rec = ts.do(t, http.MethodPost, path, hrToken, GrantRequest{Type: "annual", Days: 1.25})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidAmount", decode[ErrorResponse](t, rec).Code)

	ts.grant(t, hrToken, emp.ID, "casual", 1.5)
	rec = ts.do(t, http.MethodGet, "/api/balances/"+string(emp.ID), hrToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	bal := decode[BalanceDTO](t, rec)
	assert.Equal(t, 1.5, bal.Casual)
	assert.Equal(t, 0.0, bal.Annual)
	assert.Equal(t, "Test employee", bal.EmployeeName)
}

func TestHolidays_ExcludedFromDayCount(t *testing.T) {
	// GIVEN: a holiday on Tuesday
	ts := newTestServer(t, store.NewTxMemory())
	_, empToken := ts.user(t, "emp@example.com", leave.RoleEmployee)
	_, hrToken := ts.user(t, "hr@example.com", leave.RoleHR)
	rec := ts.do(t, http.MethodPost, "/api/holidays", hrToken, HolidayRequest{Date: "2025-03-04", Name: "Founders Day"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	hol := decode[HolidayDTO](t, rec)

	// WHEN: submitting Monday to Wednesday
	created := ts.submit(t, empToken, SubmitLeaveRequest{Type: "unpaid", StartDate: "2025-03-03", EndDate: "2025-03-05"})

	// THEN: the holiday is not counted
	assert.Equal(t, 2.0, created.DaysRequested)

	list := ts.do(t, http.MethodGet, "/api/holidays", empToken, nil)
	assert.Len(t, decode[[]HolidayDTO](t, list), 1)
	assert.Equal(t, http.StatusForbidden, ts.do(t, http.MethodDelete, "/api/holidays/"+hol.ID, empToken, nil).Code)
	assert.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/holidays/"+hol.ID, hrToken, nil).Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, store.NewTxMemory())
	rec := ts.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", generic.ErrInvalidType), http.StatusUnprocessableEntity},
		{generic.ErrZeroDuration, http.StatusBadRequest},
		{&generic.InsufficientBalanceError{}, http.StatusBadRequest},
		{&generic.OverlapError{}, http.StatusConflict},
		{generic.ErrNotPending, http.StatusConflict},
		{generic.ErrNotFound, http.StatusNotFound},
		{generic.ErrForbidden, http.StatusForbidden},
		{generic.ErrUnauthenticated, http.StatusUnauthorized},
		{&generic.TransactionAbortedError{Op: "decide", Err: context.DeadlineExceeded}, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestInternalErrorsHideDetails(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, Options{})
	rec := httptest.NewRecorder()
	h.writeDomainError(rec, httptest.NewRequest(http.MethodGet, "/", nil), errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}
