package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ticketgate-backend/models"
)

//go:embed schema.sql
var schemaSQL string

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Connect opens a pool and verifies it answers.
func Connect(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.Ping(ctx)
}

const ticketColumns = `
	t.id, t.event_id, t.ticket_code, t.attendee_name, tt.name,
	t.validated, t.checked_in_at, t.created_at`

func scanTicket(row pgx.Row, t *models.Ticket) error {
	return row.Scan(
		&t.ID,
		&t.EventID,
		&t.TicketCode,
		&t.AttendeeName,
		&t.TierName,
		&t.Validated,
		&t.CheckedInAt,
		&t.CreatedAt,
	)
}

func (p *Postgres) FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	query := `
		SELECT` + ticketColumns + `
		FROM tickets t
		LEFT JOIN ticket_tiers tt ON tt.id = t.tier_id
		WHERE t.ticket_code = $1 AND t.deleted_at IS NULL
	`

	var ticket models.Ticket
	if err := scanTicket(p.db.QueryRow(ctx, query, code), &ticket); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find ticket %q: %w", code, err)
	}
	return &ticket, nil
}

func (p *Postgres) MarkCheckedIn(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	// The validated = false predicate makes this the single check-then-set:
	// of two concurrent callers only one can match the row.
	updateQuery := `
		UPDATE tickets
		SET validated = true, checked_in_at = $2
		WHERE id = $1 AND validated = false AND deleted_at IS NULL
	`

	tag, err := p.db.Exec(ctx, updateQuery, ticketID, at)
	if err != nil {
		return false, fmt.Errorf("mark ticket %s checked in: %w", ticketID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) TicketStats(ctx context.Context, eventID string) (models.TicketStats, error) {
	query := `
		SELECT count(*), count(*) FILTER (WHERE validated)
		FROM tickets
		WHERE event_id = $1 AND deleted_at IS NULL
	`

	var stats models.TicketStats
	if err := p.db.QueryRow(ctx, query, eventID).Scan(&stats.Total, &stats.Validated); err != nil {
		return stats, fmt.Errorf("ticket stats for event %s: %w", eventID, err)
	}
	return stats, nil
}

func (p *Postgres) ListCheckins(ctx context.Context, eventID string) ([]models.Ticket, error) {
	query := `
		SELECT` + ticketColumns + `
		FROM tickets t
		LEFT JOIN ticket_tiers tt ON tt.id = t.tier_id
		WHERE t.event_id = $1 AND t.validated AND t.deleted_at IS NULL
		ORDER BY t.checked_in_at DESC
	`

	rows, err := p.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list checkins for event %s: %w", eventID, err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		var ticket models.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, fmt.Errorf("scan checkin row: %w", err)
		}
		tickets = append(tickets, ticket)
	}
	return tickets, rows.Err()
}

func (p *Postgres) SoftDeleteTicket(ctx context.Context, ticketID, deletedBy, reason string, at time.Time) error {
	query := `
		UPDATE tickets
		SET deleted_at = $2, deleted_by = $3, delete_reason = NULLIF($4, '')
		WHERE id = $1 AND deleted_at IS NULL
	`

	tag, err := p.db.Exec(ctx, query, ticketID, at, deletedBy, reason)
	if err != nil {
		return fmt.Errorf("soft delete ticket %s: %w", ticketID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RestoreTicket(ctx context.Context, ticketID string) error {
	query := `
		UPDATE tickets
		SET deleted_at = NULL, deleted_by = NULL, delete_reason = NULL
		WHERE id = $1 AND deleted_at IS NOT NULL
	`

	tag, err := p.db.Exec(ctx, query, ticketID)
	if err != nil {
		return fmt.Errorf("restore ticket %s: %w", ticketID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) ListArchivedTickets(ctx context.Context) ([]models.ArchivedTicket, error) {
	query := `
		SELECT` + ticketColumns + `, t.deleted_at, COALESCE(t.deleted_by, ''), t.delete_reason
		FROM tickets t
		LEFT JOIN ticket_tiers tt ON tt.id = t.tier_id
		WHERE t.deleted_at IS NOT NULL
		ORDER BY t.deleted_at DESC
	`

	rows, err := p.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list archived tickets: %w", err)
	}
	defer rows.Close()

	archived := []models.ArchivedTicket{}
	for rows.Next() {
		var a models.ArchivedTicket
		err := rows.Scan(
			&a.ID,
			&a.EventID,
			&a.TicketCode,
			&a.AttendeeName,
			&a.TierName,
			&a.Validated,
			&a.CheckedInAt,
			&a.CreatedAt,
			&a.DeletedAt,
			&a.DeletedBy,
			&a.DeleteReason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archived ticket row: %w", err)
		}
		archived = append(archived, a)
	}
	return archived, rows.Err()
}

func (p *Postgres) DeleteArchivedTicket(ctx context.Context, ticketID string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM tickets WHERE id = $1 AND deleted_at IS NOT NULL`, ticketID)
	if err != nil {
		return fmt.Errorf("delete archived ticket %s: %w", ticketID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) PurgeArchivedTickets(ctx context.Context, before time.Time) ([]string, error) {
	rows, err := p.db.Query(ctx, `DELETE FROM tickets WHERE deleted_at IS NOT NULL AND deleted_at < $1 RETURNING id`, before)
	if err != nil {
		return nil, fmt.Errorf("purge archived tickets: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("purge archived tickets: %w", err)
	}
	return ids, nil
}

const staffColumns = `
	id, event_id, user_email, access_code, name, phone,
	is_active, expires_at, last_used_at, usage_count, created_at`

func scanStaff(row pgx.Row, s *models.StaffCredential) error {
	return row.Scan(
		&s.ID,
		&s.EventID,
		&s.Email,
		&s.AccessCode,
		&s.Name,
		&s.Phone,
		&s.IsActive,
		&s.ExpiresAt,
		&s.LastUsedAt,
		&s.UsageCount,
		&s.CreatedAt,
	)
}

func (p *Postgres) FindStaffCredential(ctx context.Context, email, code, eventID string, now time.Time) (*models.StaffCredential, error) {
	query := `
		SELECT` + staffColumns + `
		FROM door_staff
		WHERE lower(user_email) = lower($1)
		  AND access_code = $2
		  AND is_active
		  AND expires_at > $3
		  AND ($4 = '' OR event_id = $4)
		ORDER BY expires_at DESC
		LIMIT 1
	`

	var cred models.StaffCredential
	if err := scanStaff(p.db.QueryRow(ctx, query, email, code, now, eventID), &cred); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find staff credential: %w", err)
	}
	return &cred, nil
}

func (p *Postgres) GetStaffCredential(ctx context.Context, id string) (*models.StaffCredential, error) {
	var cred models.StaffCredential
	err := scanStaff(p.db.QueryRow(ctx, `SELECT`+staffColumns+` FROM door_staff WHERE id = $1`, id), &cred)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get staff credential %s: %w", id, err)
	}
	return &cred, nil
}

func (p *Postgres) TouchStaffCredential(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE door_staff
		SET last_used_at = $2, usage_count = usage_count + 1
		WHERE id = $1
	`

	if _, err := p.db.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("touch staff credential %s: %w", id, err)
	}
	return nil
}

func (p *Postgres) CreateStaffCredential(ctx context.Context, cred *models.StaffCredential) (*models.StaffCredential, error) {
	query := `
		INSERT INTO door_staff (id, event_id, user_email, access_code, name, phone, is_active, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING` + staffColumns

	var created models.StaffCredential
	err := scanStaff(p.db.QueryRow(ctx, query,
		cred.ID,
		cred.EventID,
		cred.Email,
		cred.AccessCode,
		cred.Name,
		cred.Phone,
		cred.IsActive,
		cred.ExpiresAt,
	), &created)
	if err != nil {
		return nil, fmt.Errorf("create staff credential: %w", err)
	}
	return &created, nil
}

func (p *Postgres) ListStaffCredentials(ctx context.Context, eventID string) ([]models.StaffCredential, error) {
	query := `SELECT` + staffColumns + ` FROM door_staff WHERE event_id = $1 ORDER BY created_at DESC`

	rows, err := p.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list staff for event %s: %w", eventID, err)
	}
	defer rows.Close()

	staff := []models.StaffCredential{}
	for rows.Next() {
		var cred models.StaffCredential
		if err := scanStaff(rows, &cred); err != nil {
			return nil, fmt.Errorf("scan staff row: %w", err)
		}
		staff = append(staff, cred)
	}
	return staff, rows.Err()
}

func (p *Postgres) SetStaffCredentialActive(ctx context.Context, id string, active bool) error {
	tag, err := p.db.Exec(ctx, `UPDATE door_staff SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set staff %s active=%t: %w", id, active, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteStaffCredential(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, `DELETE FROM door_staff WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete staff %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	query := `SELECT id, title, venue, starts_at, created_by FROM events WHERE id = $1`

	var event models.Event
	err := p.db.QueryRow(ctx, query, eventID).Scan(
		&event.ID,
		&event.Title,
		&event.Venue,
		&event.StartsAt,
		&event.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

func (p *Postgres) RecordAudit(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (id, user_id, action, table_name, record_id, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := p.db.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Action,
		entry.TableName,
		entry.RecordID,
		entry.IPAddress,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit %s %s: %w", entry.Action, entry.RecordID, err)
	}
	return nil
}

func (p *Postgres) ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	query := `
		SELECT id, user_id, action, table_name, record_id, ip_address, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	logs := []models.AuditLog{}
	for rows.Next() {
		var l models.AuditLog
		err := rows.Scan(
			&l.ID,
			&l.UserID,
			&l.Action,
			&l.TableName,
			&l.RecordID,
			&l.IPAddress,
			&l.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit log row: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
