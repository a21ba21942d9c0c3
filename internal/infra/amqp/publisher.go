package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"assessment-service/internal/domain"
	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	ExchangeName        = "assessment.events"
	RoutingKeyCompleted = "assessment.completed"
	publishTimeout      = 5 * time.Second
)

// CompletedEvent is the message body published for every persisted attempt.
type CompletedEvent struct {
	EventID    string                  `json:"eventId"`
	Type       string                  `json:"type"`
	OccurredAt time.Time               `json:"occurredAt"`
	LearnerID  string                  `json:"learnerId"`
	Scope      string                  `json:"scope"`
	Attempt    int                     `json:"attempt"`
	Result     domain.AssessmentResult `json:"result"`
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Publisher sends assessment events to a RabbitMQ topic exchange. A publisher built without
// a URL is disabled and drops events.
type Publisher struct {
	conn    *amqp091.Connection
	channel channel
	log     logrus.FieldLogger
	now     func() time.Time
	enabled bool
}

func NewPublisher(url string, log logrus.FieldLogger) (*Publisher, error) {
	if url == "" {
		log.Warn("amqp url is empty, event publishing is disabled")
		return &Publisher{log: log, now: time.Now}, nil
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &Publisher{conn: conn, channel: ch, log: log, now: time.Now, enabled: true}, nil
}

// Enabled reports whether events leave the process.
func (p *Publisher) Enabled() bool { return p.enabled }

func (p *Publisher) PublishCompleted(ctx context.Context, rec domain.AttemptRecord) error {
	if !p.enabled {
		p.log.WithField("routing_key", RoutingKeyCompleted).Debug("event publishing disabled, skipping")
		return nil
	}

	body, err := json.Marshal(CompletedEvent{
		EventID:    uuid.NewString(),
		Type:       RoutingKeyCompleted,
		OccurredAt: p.now().UTC(),
		LearnerID:  rec.LearnerID,
		Scope:      rec.Scope,
		Attempt:    rec.Attempt,
		Result:     rec.Result,
	})
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(
		pubCtx,
		ExchangeName,        // exchange
		RoutingKeyCompleted, // routing key
		false,               // mandatory
		false,               // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	p.log.WithFields(logrus.Fields{
		"routing_key": RoutingKeyCompleted,
		"learner":     rec.LearnerID,
		"scope":       rec.Scope,
		"attempt":     rec.Attempt,
	}).Debug("published event")
	return nil
}

func (p *Publisher) Close() error {
	if !p.enabled {
		return nil
	}
	if err := p.channel.Close(); err != nil {
		return err
	}
	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
