package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/service"
)

// Consumer appends every booking event from the queue to an audit log.
type Consumer struct {
	url   string
	queue string
	log   logrus.FieldLogger // operational messages
	audit logrus.FieldLogger // one entry per event
}

// NewConsumer returns a consumer writing events to audit.
func NewConsumer(url, queue string, log, audit logrus.FieldLogger) *Consumer {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if audit == nil {
		audit = log
	}
	return &Consumer{url: url, queue: queue, log: log, audit: audit}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.WithError(err).Warnf("booking-consumer: dial failed; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.WithError(err).Warn("booking-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("booking-consumer: set QoS failed")
	}
	if _, err := declare(ch, c.queue); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(d.MessageId, d.Body); err != nil {
				c.log.WithError(err).WithField("message_id", d.MessageId).Error("booking-consumer: handle message failed")
				_ = d.Nack(false, false) // reject without requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle decodes one message body and writes it to the audit log.
func (c *Consumer) Handle(messageID string, body []byte) error {
	var ev service.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	c.audit.WithFields(logrus.Fields{
		"message_id":     messageID,
		"event":          ev.Type,
		"booking_id":     ev.BookingID,
		"slot_id":        ev.SlotID,
		"event_day_id":   ev.EventDayID,
		"institution_id": ev.InstitutionID,
		"status":         ev.Status,
		"headcount":      ev.Headcount,
		"total_cents":    ev.TotalCents,
		"occurred_at":    ev.OccurredAt.Format(time.RFC3339),
	}).Info("booking event")
	return nil
}

// OpenAuditLog returns a JSON logger appending to path, creating the
// directory when needed.
func OpenAuditLog(path string) (*logrus.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("mkdir audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open audit log: %w", err)
	}
	l := logrus.New()
	l.SetOutput(f)
	l.SetFormatter(&logrus.JSONFormatter{})
	return l, f, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
