// Package broker keeps publish jobs in per-platform RabbitMQ queues.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/models"
)

// Message is the body of one queued job.
type Message struct {
	JobID      string                `json:"job_id"`
	Platform   models.Platform       `json:"platform"`
	Payload    models.PublishRequest `json:"payload"`
	EnqueuedAt time.Time             `json:"enqueued_at"`
}

// MessageFromRecord builds the queue message for rec.
func MessageFromRecord(rec models.JobRecord) Message {
	return Message{
		JobID:      rec.ID,
		Platform:   rec.Platform,
		Payload:    rec.Payload,
		EnqueuedAt: rec.CreatedAt,
	}
}

// QueueName is the durable queue that holds jobs for p.
func QueueName(prefix string, p models.Platform) string {
	return fmt.Sprintf("%s.%s", prefix, p)
}

// RoutingKey routes a job to the queue of p.
func RoutingKey(p models.Platform) string {
	return fmt.Sprintf("event.publish.%s", p)
}

// RabbitMQ publishes jobs to a topic exchange bound to one durable queue per
// platform and hands them out to consumers.
type RabbitMQ struct {
	url          string
	exchangeName string
	queuePrefix  string
	platforms    []models.Platform

	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel // transactional, publishing only

	// pubMu serialises transactions on channel.
	pubMu sync.Mutex
}

// NewRabbitMQ connects and declares the exchange and the per-platform queues.
func NewRabbitMQ(url, exchangeName, queuePrefix string, platforms []models.Platform) (*RabbitMQ, error) {
	b := &RabbitMQ{
		url:          url,
		exchangeName: exchangeName,
		queuePrefix:  queuePrefix,
		platforms:    platforms,
	}

	conn, channel, err := b.connect()
	if err != nil {
		return nil, err
	}
	b.conn = conn
	b.channel = channel

	go b.handleReconnect(conn)

	log.Info().
		Str("exchange", exchangeName).
		Str("queue_prefix", queuePrefix).
		Int("platforms", len(platforms)).
		Msg("RabbitMQ broker initialized")

	return b, nil
}

func (b *RabbitMQ) connect() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := b.declare(channel); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, err
	}

	if err := channel.Tx(); err != nil {
		channel.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to enable transactions: %w", err)
	}

	return conn, channel, nil
}

func (b *RabbitMQ) declare(channel *amqp.Channel) error {
	err := channel.ExchangeDeclare(
		b.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	for _, p := range b.platforms {
		queue := QueueName(b.queuePrefix, p)
		if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", queue, err)
		}
		if err := channel.QueueBind(queue, RoutingKey(p), b.exchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue %s: %w", queue, err)
		}
	}
	return nil
}

// Enqueue publishes one message per record in a single transaction: either
// every platform queue receives its job or none does.
func (b *RabbitMQ) Enqueue(ctx context.Context, records []models.JobRecord) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.RLock()
	channel := b.channel
	b.mu.RUnlock()
	if channel == nil || channel.IsClosed() {
		return fmt.Errorf("RabbitMQ channel is closed")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, rec := range records {
		body, err := json.Marshal(MessageFromRecord(rec))
		if err != nil {
			channel.TxRollback()
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		err = channel.PublishWithContext(
			ctx,
			b.exchangeName,           // exchange
			RoutingKey(rec.Platform), // routing key
			false,                    // mandatory
			false,                    // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				MessageId:    rec.ID,
			},
		)
		if err != nil {
			if rbErr := channel.TxRollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("Failed to roll back publish transaction")
			}
			return fmt.Errorf("failed to publish job %s: %w", rec.ID, err)
		}
	}

	if err := channel.TxCommit(); err != nil {
		return fmt.Errorf("failed to commit publish transaction: %w", err)
	}

	log.Info().
		Str("exchange", b.exchangeName).
		Int("jobs", len(records)).
		Msg("Jobs published to RabbitMQ")

	return nil
}

// Depth reports ready messages and consumers of the queue of p.
func (b *RabbitMQ) Depth(ctx context.Context, p models.Platform) (messages, consumers int, err error) {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return 0, 0, fmt.Errorf("RabbitMQ connection is closed")
	}

	// A failed inspect closes the channel, so it never shares one.
	channel, err := conn.Channel()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	queue, err := channel.QueueInspect(QueueName(b.queuePrefix, p))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to inspect queue: %w", err)
	}
	return queue.Messages, queue.Consumers, nil
}

// handleReconnect re-dials after the connection drops. Consumers notice through
// their delivery channel closing and call Consume again.
func (b *RabbitMQ) handleReconnect(conn *amqp.Connection) {
	closeChan := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		closeErr, ok := <-closeChan
		if !ok || closeErr == nil {
			return
		}
		log.Error().
			Err(closeErr).
			Msg("RabbitMQ connection closed, attempting to reconnect...")

		for {
			time.Sleep(5 * time.Second)

			conn, channel, err := b.connect()
			if err != nil {
				log.Error().Err(err).Msg("Failed to reconnect to RabbitMQ")
				continue
			}

			b.mu.Lock()
			b.conn = conn
			b.channel = channel
			b.mu.Unlock()

			log.Info().Msg("Successfully reconnected to RabbitMQ")

			closeChan = conn.NotifyClose(make(chan *amqp.Error, 1))
			break
		}
	}
}

// Close closes the RabbitMQ connection
func (b *RabbitMQ) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel != nil {
		if err := b.channel.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ channel")
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close RabbitMQ connection")
			return err
		}
	}
	log.Info().Msg("RabbitMQ broker closed")
	return nil
}

// HealthCheck verifies the RabbitMQ connection
func (b *RabbitMQ) HealthCheck(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.conn == nil || b.conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection is closed")
	}
	if b.channel == nil || b.channel.IsClosed() {
		return fmt.Errorf("RabbitMQ channel is closed")
	}
	return nil
}
