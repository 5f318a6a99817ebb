package store

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database only when TEST_DATABASE_URL is set.
func TestPostgres_MarkCheckedInRace(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, dbURL)
	require.NoError(t, err)
	defer pool.Close()

	pg := NewPostgres(pool)
	require.NoError(t, pg.Migrate(ctx))

	eventID := uuid.NewString()
	ticketID := uuid.NewString()
	code := "IT-" + ticketID[:8]

	_, err = pool.Exec(ctx, `INSERT INTO events (id, title) VALUES ($1, 'integration')`, eventID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx,
		`INSERT INTO tickets (id, event_id, ticket_code, attendee_name) VALUES ($1, $2, $3, 'Ada')`,
		ticketID, eventID, code)
	require.NoError(t, err)
	defer pool.Exec(ctx, `DELETE FROM events WHERE id = $1`, eventID)

	ticket, err := pg.FindTicketByCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, "General", ticket.Tier())
	assert.False(t, ticket.Validated)

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := pg.MarkCheckedIn(ctx, ticketID, time.Now())
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	stats, err := pg.TicketStats(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 1, stats.Validated)
}
