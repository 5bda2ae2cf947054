package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/school-show-booking/internal/service"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

const (
	// DefaultDialTimeout bounds the TCP connect and AMQP handshake.
	DefaultDialTimeout = 3 * time.Second
	// DefaultRedialBackoff is how long publishes fail fast after a
	// failed dial before the broker is tried again.
	DefaultRedialBackoff = 10 * time.Second
)

// Publisher sends service events to a durable queue.  The connection is
// opened lazily and re-dialled after a failed publish.  Publishes are
// serialised, so a dial is bounded by DialTimeout and by the caller's
// context, and a failed dial is not retried for RedialBackoff.
type Publisher struct {
	url   string
	queue string
	log   logrus.FieldLogger

	DialTimeout   time.Duration
	RedialBackoff time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	dial     func(ctx context.Context) (channel, error)
	now      func() time.Time
	nextDial time.Time
}

var _ service.Publisher = (*Publisher)(nil)

// NewPublisher returns a publisher for url and queue.  No connection is
// made until the first event.
func NewPublisher(url, queue string, log logrus.FieldLogger) *Publisher {
	if queue == "" {
		queue = DefaultQueue
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	p := &Publisher{
		url:           url,
		queue:         queue,
		log:           log,
		DialTimeout:   DefaultDialTimeout,
		RedialBackoff: DefaultRedialBackoff,
		now:           time.Now,
	}
	p.dial = p.dialBroker
	return p
}

// Publish implements service.Publisher.  Messages are persistent and
// carry a fresh uuid as MessageId.
func (p *Publisher) Publish(ctx context.Context, ev service.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Headers: amqp.Table{
			headerEventType: ev.Type,
			headerBookingID: int64(ev.BookingID),
		},
		Body: body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rabbitmq connect: %w", err)
		}
		if now := p.now(); now.Before(p.nextDial) {
			return fmt.Errorf("rabbitmq connect: broker unavailable, next attempt at %s", p.nextDial.Format(time.RFC3339))
		}
		if p.ch, err = p.dial(ctx); err != nil {
			p.ch = nil
			p.nextDial = p.now().Add(p.RedialBackoff)
			return fmt.Errorf("rabbitmq connect: %w", err)
		}
		p.nextDial = time.Time{}
	}
	if err := p.ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	p.log.WithFields(logrus.Fields{"event": ev.Type, "message_id": msg.MessageId}).Debug("event published")
	return nil
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) dialBroker(ctx context.Context) (channel, error) {
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      contextDialer(ctx, p.DialTimeout),
	})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := declare(ch, p.queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return ch, nil
}

// contextDialer connects within timeout or until ctx ends, and leaves a
// deadline on the socket for the AMQP handshake.  The client clears it
// once the connection is open.
func contextDialer(ctx context.Context, timeout time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(timeout)
		if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
			deadline = dl
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

// declare makes sure the durable queue exists.
func declare(ch *amqp.Channel, queue string) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
}
