// Package notification sends conference emails through a work queue.
//
// Queue publishes email messages to a watermill topic behind a circuit
// breaker; Worker consumes the topic and hands each email to a Mailer.
// Delivery is at least once and never blocks the caller on the mailer.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"conference-central/logging"
	"conference-central/metrics"
)

const (
	RegistrationSubject = "Conference registration confirmed"
	CreationSubject     = "You created a new Conference!"
)

var ErrQueueClosed = errors.New("notification queue is closed")

// Email is the payload carried on the topic.
type Email struct {
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

// BreakerConfig trips the breaker after MaxFailures consecutive publish
// failures and keeps it open for Timeout.
type BreakerConfig struct {
	Name        string
	MaxFailures uint32
	Timeout     time.Duration
}

func NewBreaker(cfg BreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    cfg.Name,
		Timeout: cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("notification breaker changed state")
		},
	})
}

type Queue struct {
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]

	mu     sync.RWMutex
	closed bool
}

// NewQueue publishes to topic. breaker may be nil.
func NewQueue(publisher message.Publisher, topic string, breaker *gobreaker.CircuitBreaker[struct{}]) *Queue {
	return &Queue{publisher: publisher, topic: topic, breaker: breaker}
}

// Enqueue sends a registration confirmation carrying the conference summary.
func (q *Queue) Enqueue(ctx context.Context, recipient, summary string) error {
	return q.EnqueueEmail(ctx, Email{Recipient: recipient, Subject: RegistrationSubject, Body: summary})
}

func (q *Queue) EnqueueEmail(ctx context.Context, e Email) error {
	err := q.publish(ctx, e)
	result := "ok"
	if err != nil {
		result = "failed"
	}
	metrics.NotificationsEnqueued.WithLabelValues(result).Inc()
	return err
}

func (q *Queue) publish(ctx context.Context, e Email) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	if e.Recipient == "" {
		return errors.New("email has no recipient")
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	if id := logging.RequestIDFromContext(ctx); id != "" {
		msg.Metadata.Set("request_id", id)
	}

	if q.breaker == nil {
		return q.publisher.Publish(q.topic, msg)
	}
	_, err = q.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, q.publisher.Publish(q.topic, msg)
	})
	return err
}

// Close stops accepting emails. It does not close the publisher.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
