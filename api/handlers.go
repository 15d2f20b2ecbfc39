/*
handlers.go - HTTP API handlers for the leave ledger

PURPOSE:
  Exposes the leave ledger and approval coordinator via REST API. Handles
  HTTP request/response, JSON serialization, and delegates to the leave
  package for every rule.

ENDPOINTS:
  Auth:
    POST   /api/auth/login             Issue a token (office network only)
    POST   /api/auth/logout            Clear the session cookie
    GET    /api/auth/me                Current identity

  Users:
    GET    /api/users                  Directory (admin, hr)
    POST   /api/users                  Create an account (admin)
    POST   /api/users/{id}/password    Reset a password (admin)

  Leaves:
    POST   /api/leaves                 Submit a request for the caller
    GET    /api/leaves                 List with status, dates, search, paging
    GET    /api/leaves/report.pdf      Leave register for the same filter
    GET    /api/leaves/mine            Caller's own requests
    GET    /api/leaves/{id}            One request
    GET    /api/leaves/{id}/history    Audit trail
    POST   /api/leaves/{id}/approve    Approve (debits paid balance)
    POST   /api/leaves/{id}/reject     Reject
    POST   /api/leaves/{id}/cancel     Withdraw a pending request

  Balances:
    GET    /api/balances/me            Caller's balance
    GET    /api/balances/{employeeID}  Employee balance
    POST   /api/balances/{employeeID}/grant  Credit days

  Holidays:
    GET    /api/holidays               Holiday calendar
    POST   /api/holidays               Add holiday
    DELETE /api/holidays/{id}          Remove holiday

REQUEST FLOW:
  1. Parse HTTP request (body size capped, validator tags checked)
  2. Take the actor from the request context (set by authenticate)
  3. Call the leave package
  4. Serialize response
  5. Map errors through writeDomainError

SEE ALSO:
  - dto.go: Request/response data structures
  - errors.go: Error kind to status mapping
  - middleware.go: Authentication and role checks
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/auth"
	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/report"
)

// DefaultMaxBodyBytes caps JSON bodies when Options leaves it unset.
const DefaultMaxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Options tunes the HTTP surface.
type Options struct {
	MaxBodyBytes  int64
	SecureCookies bool
	CORSOrigins   []string
	// TrustProxy makes login read the client address from proxy headers.
	TrustProxy bool
	// Health reports store reachability for GET /health. Nil means always up.
	Health func(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	ledger      *leave.Ledger
	coordinator *leave.Coordinator
	auth        *auth.Authenticator
	logger      *zap.Logger
	validate    *validator.Validate
	opts        Options
}

// NewHandler creates a handler over the ledger, the approval coordinator
// and the authenticator.
func NewHandler(ledger *leave.Ledger, coordinator *leave.Coordinator, authn *auth.Authenticator, logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{
		ledger:      ledger,
		coordinator: coordinator,
		auth:        authn,
		logger:      logger,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		opts:        opts,
	}
}

// decodeJSON reads a capped body into dst and runs its validator tags.
// It writes the error response itself and reports whether to continue.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// actor is only called behind authenticate, so a missing actor is a wiring bug.
func actor(r *http.Request) leave.Actor {
	a, _ := ActorFrom(r.Context())
	return a
}

// =============================================================================
// HEALTH
// =============================================================================

// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	clientIP := auth.ClientIP(r, h.opts.TrustProxy)
	user, token, err := h.auth.Login(r.Context(), clientIP, req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrOutsideOfficeNetwork):
		h.logger.Warn("login outside office network", zap.String("client_ip", clientIP))
		writeError(w, http.StatusForbidden, "Access restricted", nil)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	case err != nil:
		h.writeDomainError(w, r, err)
		return
	}

	ttl := h.auth.TokenTTL()
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, LoginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(ttl).UTC(),
		User:      toUserDTO(user),
	})
}

// POST /api/auth/logout
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.GetUser(r.Context(), actor(r).ID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(u))
}

// POST /api/users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	role, _ := leave.ParseRole(req.Role)

	u, err := h.auth.CreateUser(r.Context(), req.Email, req.Name, req.Password, role)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("user created",
		zap.String("user_id", string(u.ID)),
		zap.String("role", string(u.Role)),
		zap.String("actor_id", string(actor(r).ID)))
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

// GET /api/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.auth.Users(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTOs(users))
}

// POST /api/users/{id}/password
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	id := generic.EntityID(chi.URLParam(r, "id"))
	if err := h.auth.ResetPassword(r.Context(), id, req.Password); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	h.logger.Info("password reset",
		zap.String("user_id", string(id)),
		zap.String("actor_id", string(actor(r).ID)))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// POST /api/leaves
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	created, err := h.ledger.Submit(r.Context(), leave.SubmitInput{
		EmployeeID:  actor(r).ID,
		Type:        req.Type,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		IsHalfDay:   req.IsHalfDay,
		HalfDayPart: req.HalfDayPart,
		Reason:      req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(created))
}

// listFilter reads the list query parameters. defaultStatus applies when
// the status parameter is absent.
func listFilter(q url.Values, defaultStatus string) (leave.ListFilter, error) {
	f := leave.ListFilter{
		Status:     q.Get("status"),
		EmployeeID: generic.EntityID(q.Get("employee_id")),
		From:       q.Get("from"),
		To:         q.Get("to"),
		Query:      q.Get("q"),
	}
	if !q.Has("status") {
		f.Status = defaultStatus
	}
	var err error
	if s := q.Get("page"); s != "" {
		if f.Page, err = strconv.Atoi(s); err != nil {
			return f, fmt.Errorf("page %q: not a number", s)
		}
	}
	if s := q.Get("limit"); s != "" {
		if f.Limit, err = strconv.Atoi(s); err != nil {
			return f, fmt.Errorf("limit %q: not a number", s)
		}
	}
	return f, nil
}

func (h *Handler) writeList(w http.ResponseWriter, r *http.Request, f leave.ListFilter) {
	res, err := h.ledger.List(r.Context(), f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListLeavesResponse{
		Items:  toLeaveDTOs(res.Items),
		Counts: res.Counts,
		Page:   res.Page,
		Limit:  res.Limit,
		Total:  res.Total,
	})
}

// GET /api/leaves
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r.URL.Query(), "")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter", err)
		return
	}
	h.writeList(w, r, f)
}

// GET /api/leaves/mine
func (h *Handler) MyLeaves(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r.URL.Query(), string(leave.StatusAll))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter", err)
		return
	}
	f.EmployeeID = actor(r).ID
	h.writeList(w, r, f)
}

// GET /api/leaves/report.pdf
func (h *Handler) LeaveReport(w http.ResponseWriter, r *http.Request) {
	f, err := listFilter(r.URL.Query(), "")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid query parameter", err)
		return
	}

	users, err := h.auth.Users(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	reg := report.Register{
		Title:       "Leave register",
		Filter:      describeFilter(r.URL.Query()),
		GeneratedAt: time.Now(),
		Names:       make(map[generic.EntityID]string, len(users)),
	}
	for _, u := range users {
		reg.Names[u.ID] = u.Name
	}
	f.Limit = leave.MaxPageLimit
	for f.Page = 1; ; f.Page++ {
		res, err := h.ledger.List(r.Context(), f)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		reg.Counts = res.Counts
		reg.Requests = append(reg.Requests, res.Items...)
		if len(res.Items) == 0 || len(reg.Requests) >= res.Total {
			break
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="leave-register.pdf"`)
	if err := report.WriteRegister(w, reg); err != nil {
		h.logger.Error("write leave register", zap.Error(err))
	}
}

func describeFilter(q url.Values) string {
	var parts []string
	for _, key := range []string{"status", "employee_id", "from", "to", "q"} {
		if v := q.Get(key); v != "" {
			parts = append(parts, key+"="+v)
		}
	}
	return strings.Join(parts, " ")
}

// GET /api/leaves/{id}
func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))
	req, err := h.ledger.Get(r.Context(), id, actor(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(req))
}

// GET /api/leaves/{id}/history
func (h *Handler) LeaveHistory(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))
	entries, err := h.ledger.History(r.Context(), id, actor(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toAuditEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// POST /api/leaves/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionApprove)
}

// POST /api/leaves/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, leave.DecisionReject)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, d leave.Decision) {
	id := generic.RequestID(chi.URLParam(r, "id"))
	decided, err := h.coordinator.Decide(r.Context(), id, actor(r), d)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(decided))
}

// POST /api/leaves/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := generic.RequestID(chi.URLParam(r, "id"))
	cancelled, err := h.ledger.Cancel(r.Context(), id, actor(r))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(cancelled))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GET /api/balances/me
func (h *Handler) MyBalance(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, actor(r).ID)
}

// GET /api/balances/{employeeID}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, generic.EntityID(chi.URLParam(r, "employeeID")))
}

func (h *Handler) writeBalance(w http.ResponseWriter, r *http.Request, employeeID generic.EntityID) {
	b, err := h.ledger.Balance(r.Context(), employeeID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dto := toBalanceDTO(b)
	// Balances may exist for ids without an account.
	if u, err := h.auth.GetUser(r.Context(), employeeID); err == nil {
		dto.EmployeeName = u.Name
	} else if !generic.IsNotFound(err) {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// POST /api/balances/{employeeID}/grant
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	employeeID := generic.EntityID(chi.URLParam(r, "employeeID"))

	b, err := h.ledger.Grant(r.Context(), actor(r), employeeID, req.Type, generic.Days(req.Days))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.ledger.Holidays(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := make([]HolidayDTO, 0, len(holidays))
	for _, hol := range holidays {
		dtos = append(dtos, toHolidayDTO(hol))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	hol, err := h.ledger.AddHoliday(r.Context(), actor(r), req.Date, req.Name, req.Recurring)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(hol))
}

// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.ledger.RemoveHoliday(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
