package access

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role claim values.
const (
	RoleDoorStaff     = "door_staff"
	RoleAuthenticated = "authenticated"
	RoleAdmin         = "admin"
	RoleService       = "service_role"
)

const staffIssuer = "ticketgate"

// Claims covers both identity provider tokens (admins) and the staff
// session tokens this service issues.
type Claims struct {
	Email     string `json:"email,omitempty"`
	Role      string `json:"role"`
	EventID   string `json:"event_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and parses HS256 tokens with the secret shared with the
// identity provider.
type Tokens struct {
	key []byte
	now func() time.Time
}

func NewTokens(secret []byte, now func() time.Time) *Tokens {
	if now == nil {
		now = time.Now
	}
	return &Tokens{key: secret, now: now}
}

// IssueStaff signs a door staff session token.
func (t *Tokens) IssueStaff(s *DeviceSession) (string, error) {
	claims := &Claims{
		Email:     s.Email,
		Role:      RoleDoorStaff,
		EventID:   s.EventID,
		SessionID: s.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    staffIssuer,
			Subject:   s.CredentialID,
			IssuedAt:  jwt.NewNumericDate(t.now()),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

// IssueAdmin signs an admin token the way the identity provider does.
// Used by local tooling and tests. Each token gets its own jti so logging
// one out leaves the admin's other tokens alone.
func (t *Tokens) IssueAdmin(subject, email string, ttl time.Duration) (string, error) {
	now := t.now()
	claims := &Claims{
		Email: email,
		Role:  RoleAuthenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.key)
}

func (t *Tokens) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return t.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, ErrUnauthenticated
	}
	return claims, nil
}
