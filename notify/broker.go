// Package notify fans check-in activity out to other systems: a RabbitMQ
// topic exchange for downstream consumers and email for door staff.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"ticketgate-backend/models"
)

// Routing keys
const (
	TopicTicketValidated = "ticket.validated"
	TopicStaffLogin      = "staff.login"
)

// TicketValidatedMessage is published once per successful check-in.
type TicketValidatedMessage struct {
	EventID      string `json:"event_id"`
	TicketCode   string `json:"ticket_code"`
	AttendeeName string `json:"attendee_name"`
	TierName     string `json:"tier_name"`
	Source       string `json:"source,omitempty"`
	CheckedInAt  int64  `json:"checked_in_at"` // Unix timestamp
}

// Broker publishes JSON messages to a topic exchange, redialing when the
// connection has dropped.
type Broker struct {
	url      string
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

func NewBroker(url, exchange string, logger *slog.Logger) (*Broker, error) {
	b := &Broker{url: url, exchange: exchange, logger: logger}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Broker) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		b.exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
	}

	b.conn = conn
	b.channel = ch
	return nil
}

func (b *Broker) ensureConnection() error {
	if b.conn == nil || b.conn.IsClosed() || b.channel == nil || b.channel.IsClosed() {
		b.logger.Info("reconnecting to rabbitmq", "exchange", b.exchange)
		return b.connect()
	}
	return nil
}

// Publish sends message as JSON under key.
func (b *Broker) Publish(ctx context.Context, key string, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", key, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureConnection(); err != nil {
		return err
	}

	err = b.channel.PublishWithContext(ctx,
		b.exchange,
		key,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

func (b *Broker) TicketValidated(ctx context.Context, eventID string, outcome models.ScanOutcome) error {
	return b.Publish(ctx, TopicTicketValidated, NewTicketValidatedMessage(eventID, outcome))
}

func (b *Broker) StaffLogin(ctx context.Context, cred *models.StaffCredential) error {
	return b.Publish(ctx, TopicStaffLogin, map[string]interface{}{
		"staff_id": cred.ID,
		"event_id": cred.EventID,
		"email":    cred.Email,
	})
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel != nil {
		b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

func NewTicketValidatedMessage(eventID string, o models.ScanOutcome) TicketValidatedMessage {
	return TicketValidatedMessage{
		EventID:      eventID,
		TicketCode:   o.TicketCode,
		AttendeeName: o.AttendeeName,
		TierName:     o.TierName,
		Source:       o.Source,
		CheckedInAt:  o.Timestamp.Unix(),
	}
}

// Discard drops every notification. Used when RabbitMQ or MailerSend is not
// configured.
type Discard struct{}

func (Discard) TicketValidated(ctx context.Context, eventID string, outcome models.ScanOutcome) error {
	return nil
}

func (Discard) StaffLogin(ctx context.Context, cred *models.StaffCredential) error {
	return nil
}

func (Discard) SendStaffAccess(ctx context.Context, cred *models.StaffCredential, eventTitle string) error {
	return nil
}

func (Discard) Close() error {
	return nil
}
