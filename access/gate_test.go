package access

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketgate-backend/models"
	"ticketgate-backend/store"
)

var secret = []byte("test-secret")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGate(t *testing.T) (*Gate, *store.Memory, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 10, 15, 18, 0, 0, 0, time.UTC)}
	creds := store.NewMemory()
	creds.PutStaff(models.StaffCredential{
		ID:         "s1",
		EventID:    "E1",
		Email:      "a@b.com",
		AccessCode: "482913",
		IsActive:   true,
		ExpiresAt:  clock.Now().Add(6 * time.Hour),
	})
	g := NewGate(creds, Config{Secret: secret, Now: clock.Now}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return g, creds, clock
}

func TestGate_StaffBoundToOneEvent(t *testing.T) {
	g, creds, clock := newGate(t)
	ctx := context.Background()

	session, token, err := g.LoginStaff(ctx, "A@B.com ", "482913", "")
	require.NoError(t, err)
	g.Wait()
	assert.Equal(t, StateStaff, session.State)
	assert.Equal(t, "E1", session.EventID)
	assert.True(t, session.ExpiresAt.Equal(clock.Now().Add(6*time.Hour)), "session never outlives its credential")

	identified, err := g.Identify(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, session.ID, identified.ID)

	assert.NoError(t, g.Authorize(ctx, identified, "E1"))
	assert.ErrorIs(t, g.Authorize(ctx, identified, "E2"), ErrWrongEvent)

	cred, err := creds.GetStaffCredential(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, cred.UsageCount)

	clock.Advance(7 * time.Hour)
	assert.ErrorIs(t, g.Authorize(ctx, identified, "E1"), ErrExpired)
	_, err = g.Identify(ctx, token)
	assert.ErrorIs(t, err, ErrExpired)

	_, _, err = g.LoginStaff(ctx, "a@b.com", "482913", "E1")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestGate_LoginDenied(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	cases := []struct {
		name, email, code, event string
	}{
		{"wrong pin", "a@b.com", "000000", ""},
		{"unknown email", "x@y.com", "482913", ""},
		{"other event requested", "a@b.com", "482913", "E2"},
		{"blank", " ", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session, token, err := g.LoginStaff(ctx, tc.email, tc.code, tc.event)
			assert.ErrorIs(t, err, ErrDenied)
			require.NotNil(t, session)
			assert.Equal(t, StateDenied, session.State)
			assert.Empty(t, session.ID)
			assert.Empty(t, token)
			assert.ErrorIs(t, g.Authorize(ctx, session, "E1"), ErrDenied)
		})
	}
}

func TestGate_DeactivatedCredentialLosesGate(t *testing.T) {
	g, creds, _ := newGate(t)
	ctx := context.Background()

	session, _, err := g.LoginStaff(ctx, "a@b.com", "482913", "E1")
	require.NoError(t, err)
	g.Wait()

	require.NoError(t, creds.SetStaffCredentialActive(ctx, "s1", false))
	assert.ErrorIs(t, g.Authorize(ctx, session, "E1"), ErrDenied)
	assert.Equal(t, StateDenied, session.State)

	session, _, err = g.LoginStaff(ctx, "a@b.com", "482913", "E1")
	assert.ErrorIs(t, err, ErrDenied)
	assert.Equal(t, StateDenied, session.State)
}

func TestGate_DeletedCredentialDeniesSession(t *testing.T) {
	g, creds, _ := newGate(t)
	ctx := context.Background()

	session, token, err := g.LoginStaff(ctx, "a@b.com", "482913", "E1")
	require.NoError(t, err)
	g.Wait()

	require.NoError(t, creds.DeleteStaffCredential(ctx, "s1"))
	identified, err := g.Identify(ctx, token)
	require.NoError(t, err)
	assert.ErrorIs(t, g.Authorize(ctx, identified, "E1"), ErrDenied)
	assert.Equal(t, StateDenied, identified.State)
	assert.Equal(t, StateStaff, session.State)
}

func TestGate_ExpiredSessionIsDenied(t *testing.T) {
	g, _, clock := newGate(t)
	ctx := context.Background()

	session, _, err := g.LoginStaff(ctx, "a@b.com", "482913", "E1")
	require.NoError(t, err)
	g.Wait()

	assert.ErrorIs(t, g.Authorize(ctx, session, "E2"), ErrWrongEvent)
	assert.Equal(t, StateStaff, session.State)

	clock.Advance(7 * time.Hour)
	assert.ErrorIs(t, g.Authorize(ctx, session, "E1"), ErrExpired)
	assert.Equal(t, StateDenied, session.State)
	assert.ErrorIs(t, g.Authorize(ctx, session, "E1"), ErrDenied)
}

func TestGate_AdminReachesAnyEvent(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	token, err := g.Tokens().IssueAdmin("user-1", "owner@example.com", time.Hour)
	require.NoError(t, err)

	session, err := g.Identify(ctx, "Bearer "+token)
	require.NoError(t, err)
	assert.True(t, session.IsAdmin())
	assert.NoError(t, g.Authorize(ctx, session, "E1"))
	assert.NoError(t, g.Authorize(ctx, session, "E2"))
}

func TestGate_RejectsBadTokens(t *testing.T) {
	g, _, clock := newGate(t)
	ctx := context.Background()

	_, err := g.Identify(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = g.Identify(ctx, "Bearer not-a-jwt")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	forged, err := NewTokens([]byte("other-secret"), clock.Now).IssueAdmin("user-1", "x@example.com", time.Hour)
	require.NoError(t, err)
	_, err = g.Identify(ctx, forged)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.ErrorIs(t, g.Authorize(ctx, nil, "E1"), ErrUnauthenticated)
	assert.ErrorIs(t, g.Authorize(ctx, &DeviceSession{State: StateDenied}, "E1"), ErrDenied)
}

func TestGate_LogoutRevokesToken(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	session, token, err := g.LoginStaff(ctx, "a@b.com", "482913", "")
	require.NoError(t, err)
	g.Wait()

	g.Logout(session)
	assert.Equal(t, StateUnauthenticated, session.State)
	assert.ErrorIs(t, g.Authorize(ctx, session, "E1"), ErrUnauthenticated)

	_, err = g.Identify(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestGate_AdminLogoutRevokesOnlyThatToken(t *testing.T) {
	g, _, clock := newGate(t)
	ctx := context.Background()

	sign := func(claims *Claims) string {
		t.Helper()
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
		require.NoError(t, err)
		return token
	}
	providerToken := func(jti string, issued time.Time) string {
		return sign(&Claims{
			Email: "owner@example.com",
			Role:  RoleAuthenticated,
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        jti,
				Subject:   "user-1",
				IssuedAt:  jwt.NewNumericDate(issued),
				ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
			},
		})
	}

	cases := []struct {
		name          string
		first, second string
	}{
		{"distinct jti", providerToken("jti-1", clock.Now()), providerToken("jti-2", clock.Now())},
		{"no jti, distinct iat", providerToken("", clock.Now()), providerToken("", clock.Now().Add(time.Minute))},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, err := g.Identify(ctx, "Bearer "+tc.first)
			require.NoError(t, err)
			second, err := g.Identify(ctx, "Bearer "+tc.second)
			require.NoError(t, err)
			assert.NotEqual(t, first.ID, second.ID)
			assert.NotEqual(t, "user-1", first.ID)

			g.Logout(first)
			_, err = g.Identify(ctx, tc.first)
			assert.ErrorIs(t, err, ErrUnauthenticated)

			again, err := g.Identify(ctx, tc.second)
			require.NoError(t, err)
			assert.NoError(t, g.Authorize(ctx, again, "E1"))
		})
	}
}

func TestGate_IssuedAdminTokensAreIndependent(t *testing.T) {
	g, _, _ := newGate(t)
	ctx := context.Background()

	a, err := g.Tokens().IssueAdmin("user-1", "owner@example.com", time.Hour)
	require.NoError(t, err)
	b, err := g.Tokens().IssueAdmin("user-1", "owner@example.com", time.Hour)
	require.NoError(t, err)

	sa, err := g.Identify(ctx, a)
	require.NoError(t, err)
	g.Logout(sa)

	_, err = g.Identify(ctx, a)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = g.Identify(ctx, b)
	assert.NoError(t, err)
}

func TestGenerateAccessCode(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateAccessCode()
		require.NoError(t, err)
		assert.Len(t, code, 6)
		assert.NotEqual(t, byte('0'), code[0])
	}
}
