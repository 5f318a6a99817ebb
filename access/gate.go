// Package access decides who may open a gate scanner: authenticated admins
// for any event, door staff only for the one event their PIN is bound to.
package access

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ticketgate-backend/models"
	"ticketgate-backend/store"
)

var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrDenied          = errors.New("invalid credentials or expired access")
	ErrWrongEvent      = errors.New("session is not valid for this event")
	ErrExpired         = errors.New("access has expired")
)

const DefaultSessionTTL = 12 * time.Hour

// State of a device session.
type State int

const (
	StateUnauthenticated State = iota
	StateAdmin
	StateStaff
	StateDenied
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAdmin:
		return "admin-authenticated"
	case StateStaff:
		return "staff-authenticated"
	case StateDenied:
		return "denied"
	default:
		return fmt.Sprintf("unknown state: %d", s)
	}
}

// DeviceSession is the identity a gate device acts under. Staff sessions
// carry the single event they are bound to.
type DeviceSession struct {
	ID           string    `json:"id"`
	State        State     `json:"-"`
	Subject      string    `json:"subject,omitempty"`
	Email        string    `json:"email,omitempty"`
	EventID      string    `json:"event_id,omitempty"`
	CredentialID string    `json:"credential_id,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *DeviceSession) IsAdmin() bool {
	return s != nil && s.State == StateAdmin
}

// CredentialStore is the door staff table as seen by the gate.
type CredentialStore interface {
	FindStaffCredential(ctx context.Context, email, code, eventID string, now time.Time) (*models.StaffCredential, error)
	GetStaffCredential(ctx context.Context, id string) (*models.StaffCredential, error)
	TouchStaffCredential(ctx context.Context, id string, at time.Time) error
}

type Gate struct {
	creds      CredentialStore
	tokens     *Tokens
	logger     *slog.Logger
	now        func() time.Time
	sessionTTL time.Duration

	mu      sync.Mutex
	revoked map[string]time.Time // session id -> token expiry

	touches sync.WaitGroup
}

type Config struct {
	Secret     []byte
	SessionTTL time.Duration
	Now        func() time.Time
}

func NewGate(creds CredentialStore, cfg Config, logger *slog.Logger) *Gate {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Gate{
		creds:      creds,
		tokens:     NewTokens(cfg.Secret, now),
		logger:     logger,
		now:        now,
		sessionTTL: ttl,
		revoked:    make(map[string]time.Time),
	}
}

func (g *Gate) Tokens() *Tokens {
	return g.tokens
}

// LoginStaff verifies an email + PIN pair and binds a new session to the
// credential's event. When eventID is set the credential must belong to it.
// A failed verification returns a denied session alongside ErrDenied.
// There is no lockout on repeated failures.
func (g *Gate) LoginStaff(ctx context.Context, email, code, eventID string) (*DeviceSession, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	denied := &DeviceSession{State: StateDenied, Email: email, EventID: eventID}
	if email == "" || code == "" {
		return denied, "", ErrDenied
	}

	now := g.now()
	cred, err := g.creds.FindStaffCredential(ctx, email, code, eventID, now)
	if errors.Is(err, store.ErrNotFound) {
		g.logger.Info("staff login denied", "email", email, "event_id", eventID)
		return denied, "", ErrDenied
	}
	if err != nil {
		return nil, "", fmt.Errorf("verify staff credential: %w", err)
	}

	expiresAt := now.Add(g.sessionTTL)
	if cred.ExpiresAt.Before(expiresAt) {
		expiresAt = cred.ExpiresAt
	}
	session := &DeviceSession{
		ID:           uuid.NewString(),
		State:        StateStaff,
		Email:        cred.Email,
		EventID:      cred.EventID,
		CredentialID: cred.ID,
		ExpiresAt:    expiresAt,
	}

	token, err := g.tokens.IssueStaff(session)
	if err != nil {
		return nil, "", fmt.Errorf("sign staff session: %w", err)
	}

	g.touch(cred.ID, now)
	g.logger.Info("staff login", "email", email, "event_id", cred.EventID, "session_id", session.ID)
	return session, token, nil
}

// touch records credential usage without holding up the login.
func (g *Gate) touch(id string, at time.Time) {
	g.touches.Add(1)
	go func() {
		defer g.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.creds.TouchStaffCredential(ctx, id, at); err != nil {
			g.logger.Warn("failed to record staff credential usage", "staff_id", id, "error", err)
		}
	}()
}

// Wait blocks until background usage updates finish.
func (g *Gate) Wait() {
	g.touches.Wait()
}

// Identify resolves a bearer token into a device session. Admin tokens come
// from the identity provider; staff tokens were issued by LoginStaff.
func (g *Gate) Identify(ctx context.Context, bearer string) (*DeviceSession, error) {
	bearer = strings.TrimSpace(strings.TrimPrefix(bearer, "Bearer "))
	if bearer == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := g.tokens.Parse(bearer)
	if err != nil {
		return nil, err
	}

	session := &DeviceSession{
		ID:      sessionKey(claims),
		Subject: claims.Subject,
		Email:   claims.Email,
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	switch claims.Role {
	case RoleDoorStaff:
		if claims.Issuer != staffIssuer || claims.EventID == "" {
			return nil, ErrDenied
		}
		session.State = StateStaff
		session.EventID = claims.EventID
		session.CredentialID = claims.Subject
	case RoleAuthenticated, RoleAdmin, RoleService:
		session.State = StateAdmin
	default:
		return nil, ErrDenied
	}

	if session.ID == "" || g.isRevoked(session.ID) {
		return nil, ErrUnauthenticated
	}
	return session, nil
}

// sessionKey names the single token a logout revokes. Provider tokens
// without a session_id fall back to the jti, then to subject plus issue
// time, never to the bare subject.
func sessionKey(claims *Claims) string {
	switch {
	case claims.SessionID != "":
		return claims.SessionID
	case claims.ID != "":
		return claims.ID
	case claims.Subject != "" && claims.IssuedAt != nil:
		return fmt.Sprintf("%s@%d", claims.Subject, claims.IssuedAt.Unix())
	default:
		return ""
	}
}

// Authorize is the hard boundary in front of a gate: staff sessions reach
// only the event they were bound to, and only while their credential is
// still active and unexpired. A staff session whose credential lapsed
// moves to denied.
func (g *Gate) Authorize(ctx context.Context, s *DeviceSession, eventID string) error {
	if s == nil {
		return ErrUnauthenticated
	}

	switch s.State {
	case StateAdmin:
		return nil
	case StateStaff:
	case StateDenied:
		return ErrDenied
	default:
		return ErrUnauthenticated
	}

	if s.EventID != eventID {
		return ErrWrongEvent
	}

	now := g.now()
	if !now.Before(s.ExpiresAt) {
		s.State = StateDenied
		return ErrExpired
	}

	cred, err := g.creds.GetStaffCredential(ctx, s.CredentialID)
	if errors.Is(err, store.ErrNotFound) {
		s.State = StateDenied
		return ErrDenied
	}
	if err != nil {
		return fmt.Errorf("load staff credential: %w", err)
	}
	if cred.EventID != eventID {
		return ErrWrongEvent
	}
	if !now.Before(cred.ExpiresAt) {
		s.State = StateDenied
		return ErrExpired
	}
	if !cred.IsActive {
		s.State = StateDenied
		return ErrDenied
	}
	return nil
}

// Logout returns the device to unauthenticated. The token stays revoked
// until it would have expired anyway.
func (g *Gate) Logout(s *DeviceSession) {
	if s == nil || s.ID == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	for id, exp := range g.revoked {
		if !now.Before(exp) {
			delete(g.revoked, id)
		}
	}
	exp := s.ExpiresAt
	if exp.IsZero() {
		exp = now.Add(g.sessionTTL)
	}
	g.revoked[s.ID] = exp
	s.State = StateUnauthenticated
}

func (g *Gate) isRevoked(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.revoked[sessionID]
	return ok
}

// GenerateAccessCode returns a random six digit PIN.
func GenerateAccessCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
