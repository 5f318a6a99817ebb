package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ticketgate-backend/models"
)

type memTicket struct {
	ticket       models.Ticket
	deletedAt    *time.Time
	deletedBy    string
	deleteReason *string
}

// Memory is a mutex-guarded Store used by tests and local demos. The
// conditional update is atomic under the write lock, matching the
// guarantee the SQL predicate gives in Postgres.
type Memory struct {
	mu      sync.RWMutex
	tickets map[string]*memTicket // by id
	codes   map[string]string     // ticket code -> id
	staff   map[string]*models.StaffCredential
	events  map[string]*models.Event
	audit   []models.AuditLog
}

func NewMemory() *Memory {
	return &Memory{
		tickets: make(map[string]*memTicket),
		codes:   make(map[string]string),
		staff:   make(map[string]*models.StaffCredential),
		events:  make(map[string]*models.Event),
	}
}

// --- Seeding ---

func (m *Memory) PutEvent(e models.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[e.ID] = &e
}

func (m *Memory) PutTicket(t models.Ticket) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickets[t.ID] = &memTicket{ticket: t}
	m.codes[t.TicketCode] = t.ID
}

func (m *Memory) PutStaff(s models.StaffCredential) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[s.ID] = &s
}

// Ticket returns a copy of the stored ticket regardless of deletion.
func (m *Memory) Ticket(id string) (models.Ticket, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.tickets[id]
	if !ok {
		return models.Ticket{}, false
	}
	return mt.ticket, true
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// --- Tickets ---

func (m *Memory) FindTicketByCode(ctx context.Context, code string) (*models.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.codes[code]
	if !ok {
		return nil, ErrNotFound
	}
	mt := m.tickets[id]
	if mt == nil || mt.deletedAt != nil {
		return nil, ErrNotFound
	}
	t := mt.ticket
	return &t, nil
}

func (m *Memory) MarkCheckedIn(ctx context.Context, ticketID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tickets[ticketID]
	if !ok || mt.deletedAt != nil || mt.ticket.Validated {
		return false, nil
	}
	mt.ticket.Validated = true
	mt.ticket.CheckedInAt = &at
	return true, nil
}

func (m *Memory) TicketStats(ctx context.Context, eventID string) (models.TicketStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stats models.TicketStats
	for _, mt := range m.tickets {
		if mt.ticket.EventID != eventID || mt.deletedAt != nil {
			continue
		}
		stats.Total++
		if mt.ticket.Validated {
			stats.Validated++
		}
	}
	return stats, nil
}

func (m *Memory) ListCheckins(ctx context.Context, eventID string) ([]models.Ticket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tickets := []models.Ticket{}
	for _, mt := range m.tickets {
		if mt.ticket.EventID == eventID && mt.ticket.Validated && mt.deletedAt == nil {
			tickets = append(tickets, mt.ticket)
		}
	}
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CheckedInAt.After(*tickets[j].CheckedInAt)
	})
	return tickets, nil
}

func (m *Memory) SoftDeleteTicket(ctx context.Context, ticketID, deletedBy, reason string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tickets[ticketID]
	if !ok || mt.deletedAt != nil {
		return ErrNotFound
	}
	mt.deletedAt = &at
	mt.deletedBy = deletedBy
	if reason != "" {
		mt.deleteReason = &reason
	}
	return nil
}

func (m *Memory) RestoreTicket(ctx context.Context, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tickets[ticketID]
	if !ok || mt.deletedAt == nil {
		return ErrNotFound
	}
	mt.deletedAt = nil
	mt.deletedBy = ""
	mt.deleteReason = nil
	return nil
}

func (m *Memory) ListArchivedTickets(ctx context.Context) ([]models.ArchivedTicket, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	archived := []models.ArchivedTicket{}
	for _, mt := range m.tickets {
		if mt.deletedAt == nil {
			continue
		}
		archived = append(archived, models.ArchivedTicket{
			Ticket:       mt.ticket,
			DeletedAt:    *mt.deletedAt,
			DeletedBy:    mt.deletedBy,
			DeleteReason: mt.deleteReason,
		})
	}
	sort.Slice(archived, func(i, j int) bool {
		return archived[i].DeletedAt.After(archived[j].DeletedAt)
	})
	return archived, nil
}

func (m *Memory) DeleteArchivedTicket(ctx context.Context, ticketID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mt, ok := m.tickets[ticketID]
	if !ok || mt.deletedAt == nil {
		return ErrNotFound
	}
	delete(m.tickets, ticketID)
	delete(m.codes, mt.ticket.TicketCode)
	return nil
}

func (m *Memory) PurgeArchivedTickets(ctx context.Context, before time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	purged := []string{}
	for id, mt := range m.tickets {
		if mt.deletedAt != nil && mt.deletedAt.Before(before) {
			delete(m.tickets, id)
			delete(m.codes, mt.ticket.TicketCode)
			purged = append(purged, id)
		}
	}
	sort.Strings(purged)
	return purged, nil
}

// --- Staff ---

func (m *Memory) FindStaffCredential(ctx context.Context, email, code, eventID string, now time.Time) (*models.StaffCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *models.StaffCredential
	for _, s := range m.staff {
		if !strings.EqualFold(s.Email, email) || s.AccessCode != code || !s.Usable(now) {
			continue
		}
		if eventID != "" && s.EventID != eventID {
			continue
		}
		if best == nil || s.ExpiresAt.After(best.ExpiresAt) {
			best = s
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cred := *best
	return &cred, nil
}

func (m *Memory) GetStaffCredential(ctx context.Context, id string) (*models.StaffCredential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.staff[id]
	if !ok {
		return nil, ErrNotFound
	}
	cred := *s
	return &cred, nil
}

func (m *Memory) TouchStaffCredential(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.staff[id]
	if !ok {
		return ErrNotFound
	}
	s.LastUsedAt = &at
	s.UsageCount++
	return nil
}

func (m *Memory) CreateStaffCredential(ctx context.Context, cred *models.StaffCredential) (*models.StaffCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := *cred
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now()
	}
	m.staff[created.ID] = &created
	out := created
	return &out, nil
}

func (m *Memory) ListStaffCredentials(ctx context.Context, eventID string) ([]models.StaffCredential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	staff := []models.StaffCredential{}
	for _, s := range m.staff {
		if s.EventID == eventID {
			staff = append(staff, *s)
		}
	}
	sort.Slice(staff, func(i, j int) bool {
		return staff[i].CreatedAt.After(staff[j].CreatedAt)
	})
	return staff, nil
}

func (m *Memory) SetStaffCredentialActive(ctx context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.staff[id]
	if !ok {
		return ErrNotFound
	}
	s.IsActive = active
	return nil
}

func (m *Memory) DeleteStaffCredential(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.staff[id]; !ok {
		return ErrNotFound
	}
	delete(m.staff, id)
	return nil
}

// --- Events ---

func (m *Memory) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.events[eventID]
	if !ok {
		return nil, ErrNotFound
	}
	event := *e
	return &event, nil
}

// --- Audit ---

func (m *Memory) RecordAudit(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *entry)
	return nil
}

func (m *Memory) ListAuditLogs(ctx context.Context, limit int) ([]models.AuditLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logs := make([]models.AuditLog, len(m.audit))
	copy(logs, m.audit)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].CreatedAt.After(logs[j].CreatedAt)
	})
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}
