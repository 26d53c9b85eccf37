package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/models"
)

// Handler processes one job. A returned error requeues the message.
type Handler func(ctx context.Context, msg Message) error

// ErrDeliveriesClosed is returned by Consume when the broker drops the consumer.
var ErrDeliveriesClosed = errors.New("message channel closed")

// Consume receives jobs for p on a dedicated channel, one unacknowledged
// message at a time, until ctx is cancelled or the channel closes.
func (b *RabbitMQ) Consume(ctx context.Context, p models.Platform, handler Handler) error {
	b.mu.RLock()
	conn := b.conn
	b.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return fmt.Errorf("RabbitMQ connection is closed")
	}

	channel, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer channel.Close()

	// Set QoS to process one message at a time
	if err := channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	queue := QueueName(b.queuePrefix, p)
	msgs, err := channel.Consume(
		queue,
		"",    // consumer tag
		false, // auto-ack (we'll ack manually)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Info().
		Str("queue", queue).
		Str("platform", string(p)).
		Msg("🎧 Started consuming jobs")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			deliver(ctx, msg, handler)
		}
	}
}

func deliver(ctx context.Context, msg amqp.Delivery, handler Handler) {
	var job Message
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		log.Error().
			Err(err).
			Str("message_id", msg.MessageId).
			Msg("Dropping malformed job message")
		if err := msg.Nack(false, false); err != nil {
			log.Error().Err(err).Msg("Failed to nack message")
		}
		return
	}

	log.Info().
		Str("job_id", job.JobID).
		Str("platform", string(job.Platform)).
		Bool("redelivered", msg.Redelivered).
		Msg("📨 Received job")

	start := time.Now()
	if err := handler(ctx, job); err != nil {
		log.Error().
			Err(err).
			Str("job_id", job.JobID).
			Msg("Failed to process job, requeueing")
		if err := msg.Nack(false, true); err != nil {
			log.Error().Err(err).Msg("Failed to nack message")
		}
		return
	}

	if err := msg.Ack(false); err != nil {
		log.Error().Err(err).Msg("Failed to ack message")
	}
	log.Debug().
		Str("job_id", job.JobID).
		Dur("duration_ms", time.Since(start)).
		Msg("Job acknowledged")
}
