// Package events mirrors pipeline activities onto an AMQP topic exchange
// so external consumers (CRM sync, analytics) can observe conversations
// without touching the transcript store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"botpipe/pkg/logger"
	"botpipe/pkg/models"
)

// Envelope is the published event shape. CorrelationID carries the
// conversation id so consumers can group events per conversation.
type Envelope struct {
	ID            string           `json:"id"`
	CorrelationID string           `json:"correlation_id"`
	Kind          string           `json:"kind"` // "inbound", "send", "update", "delete"
	EmittedAt     time.Time        `json:"emitted_at"`
	Activity      *models.Activity `json:"activity"`
}

// Publisher publishes activity envelopes by routing key.
type Publisher interface {
	Publish(ctx context.Context, key string, env Envelope) error
	Close() error
}

type amqpPublisher struct {
	conn     *amqp091.Connection
	exchange string
}

// DialOptions configures the broker connection.
type DialOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	RetryDelay    time.Duration
}

const maxDialBackoff = 30 * time.Second

// Dial connects to the broker with exponential backoff and declares the
// durable topic exchange. It respects ctx cancellation between attempts.
func Dial(ctx context.Context, opts DialOptions) (Publisher, error) {
	attempts := opts.RetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = time.Second
	}

	var conn *amqp091.Connection
	var lastErr error
	for i := 1; i <= attempts; i++ {
		c, err := amqp091.Dial(opts.URL)
		if err == nil {
			conn = c
			if i > 1 {
				logger.Info("amqp_connected", "attempt", i)
			}
			break
		}
		lastErr = err
		sleep := delay * time.Duration(1<<(i-1))
		if sleep > maxDialBackoff {
			sleep = maxDialBackoff
		}
		logger.Warn("amqp_dial_failed", "attempt", i, "sleep", sleep.String(), "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-time.After(sleep):
		}
	}
	if conn == nil {
		return nil, fmt.Errorf("failed to connect to broker after %d attempts: %w", attempts, lastErr)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(opts.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return &amqpPublisher{conn: conn, exchange: opts.Exchange}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	if env.EmittedAt.IsZero() {
		env.EmittedAt = time.Now().UTC()
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     env.ID,
		CorrelationId: env.CorrelationID,
		Timestamp:     env.EmittedAt,
		Body:          body,
	})
	if err == nil {
		logger.Debug("activity_event_published", "key", key, "exchange", p.exchange)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	return p.conn.Close()
}
