/*
Package auth establishes who is calling: user records, password hashing,
JWT issuance and parsing, and the office-network gate on login.

TOKENS:
  HS256 JWTs carrying the user id (sub), email, name and role. Clients
  send them as "Authorization: Bearer <token>" or in the auth_token
  cookie set by login.

LOGIN:
  Login is refused outside the office network (see network.go), then
  checks the bcrypt hash. Unknown email and wrong password produce the
  same error.

SEE ALSO:
  - network.go: ALLOWED_IPS matching
  - api/middleware.go: Token extraction and role checks
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/leave-ledger/generic"
	"github.com/warp/leave-ledger/leave"
)

// CookieName is the cookie that carries the session token.
const CookieName = "auth_token"

// DefaultTokenTTL matches the cookie lifetime of a dashboard session.
const DefaultTokenTTL = 8 * time.Hour

var (
	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for malformed, expired or forged tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrOutsideOfficeNetwork is returned when login comes from a
	// non-allowed address.
	ErrOutsideOfficeNetwork = errors.New("login is only available from the office network")
)

// =============================================================================
// USERS
// =============================================================================

// User is an account that can sign in.
type User struct {
	ID           generic.EntityID
	Email        string
	Name         string
	Role         leave.Role
	PasswordHash string
	CreatedAt    time.Time
}

// Actor is the identity handed to the leave domain.
func (u User) Actor() leave.Actor {
	return leave.Actor{ID: u.ID, Role: u.Role}
}

// UserStore persists users. Emails are stored lower-cased and unique.
type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id generic.EntityID) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)

	// ListUsers returns every account ordered by name.
	ListUsers(ctx context.Context) ([]User, error)

	// UpdatePassword replaces the hash of an existing account.
	UpdatePassword(ctx context.Context, id generic.EntityID, hash string) error
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// NewUser builds a user with a fresh id and a hashed password.
func NewUser(email, name, password string, role leave.Role) (User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return User{
		ID:           generic.EntityID(uuid.NewString()),
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// =============================================================================
// TOKENS
// =============================================================================

// Claims is the JWT payload.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into a domain identity.
func (c Claims) Actor() (leave.Actor, error) {
	role, ok := leave.ParseRole(c.Role)
	if !ok || c.Subject == "" {
		return leave.Actor{}, ErrInvalidToken
	}
	return leave.Actor{ID: generic.EntityID(c.Subject), Role: role}, nil
}

// Tokens issues and verifies HS256 tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens.
func (t *Tokens) TTL() time.Duration { return t.ttl }

func (t *Tokens) Generate(u User) (string, error) {
	now := t.now()
	claims := Claims{
		Email: u.Email,
		Name:  u.Name,
		Role:  string(u.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(u.ID),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

func (t *Tokens) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// =============================================================================
// LOGIN
// =============================================================================

// Authenticator checks credentials and issues tokens.
type Authenticator struct {
	users   UserStore
	tokens  *Tokens
	network *OfficeNetwork
}

func NewAuthenticator(users UserStore, tokens *Tokens, network *OfficeNetwork) *Authenticator {
	return &Authenticator{users: users, tokens: tokens, network: network}
}

// Login verifies the client address and the credentials, and returns the
// user with a signed token.
func (a *Authenticator) Login(ctx context.Context, clientIP, email, password string) (User, string, error) {
	if !a.network.Allows(clientIP) {
		return User{}, "", fmt.Errorf("%s: %w", clientIP, ErrOutsideOfficeNetwork)
	}

	u, err := a.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, generic.ErrNotFound) {
			return User{}, "", ErrInvalidCredentials
		}
		return User{}, "", err
	}
	if err := CheckPassword(u.PasswordHash, password); err != nil {
		return User{}, "", ErrInvalidCredentials
	}

	token, err := a.tokens.Generate(u)
	if err != nil {
		return User{}, "", fmt.Errorf("sign token: %w", err)
	}
	return u, token, nil
}

// Verify parses a token into a domain identity.
func (a *Authenticator) Verify(token string) (leave.Actor, error) {
	claims, err := a.tokens.Parse(token)
	if err != nil {
		return leave.Actor{}, err
	}
	return claims.Actor()
}

// TokenTTL is the lifetime of issued tokens.
func (a *Authenticator) TokenTTL() time.Duration { return a.tokens.TTL() }

// CreateUser registers a new account.
func (a *Authenticator) CreateUser(ctx context.Context, email, name, password string, role leave.Role) (User, error) {
	u, err := NewUser(email, name, password, role)
	if err != nil {
		return User{}, err
	}
	if err := a.users.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// EnsureUser creates the account unless the email is already registered.
// Used to bootstrap the first admin.
func (a *Authenticator) EnsureUser(ctx context.Context, email, name, password string, role leave.Role) (User, bool, error) {
	existing, err := a.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, generic.ErrNotFound) {
		return User{}, false, err
	}
	u, err := a.CreateUser(ctx, email, name, password, role)
	if err != nil {
		return User{}, false, err
	}
	return u, true, nil
}

// Users returns the account directory.
func (a *Authenticator) Users(ctx context.Context) ([]User, error) {
	return a.users.ListUsers(ctx)
}

// ResetPassword sets a new password for an account. Tokens already issued
// stay valid until they expire.
func (a *Authenticator) ResetPassword(ctx context.Context, id generic.EntityID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return a.users.UpdatePassword(ctx, id, hash)
}

// GetUser loads one account.
func (a *Authenticator) GetUser(ctx context.Context, id generic.EntityID) (User, error) {
	return a.users.GetUser(ctx, id)
}
