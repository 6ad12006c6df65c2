package notification

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"conference-central/logging"
	"conference-central/metrics"
)

// Mailer delivers one email.
type Mailer interface {
	Send(ctx context.Context, e Email) error
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, e Email) error {
	logging.Ctx(ctx).Info().
		Str("recipient", e.Recipient).
		Str("subject", e.Subject).
		Str("body", e.Body).
		Msg("email sent")
	return nil
}

// Worker consumes the email topic.
type Worker struct {
	subscriber message.Subscriber
	topic      string
	mailer     Mailer
	msgs       <-chan *message.Message
}

func NewWorker(subscriber message.Subscriber, topic string, mailer Mailer) *Worker {
	if mailer == nil {
		mailer = LogMailer{}
	}
	return &Worker{subscriber: subscriber, topic: topic, mailer: mailer}
}

// Subscribe attaches the worker to its topic. Emails published before the
// subscription exists are not delivered, so call it before anything can
// enqueue. The subscription ends when ctx is done.
func (w *Worker) Subscribe(ctx context.Context) error {
	msgs, err := w.subscriber.Subscribe(ctx, w.topic)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", w.topic, err)
	}
	w.msgs = msgs
	return nil
}

// Run delivers emails until ctx is done or the subscription ends,
// subscribing first if Subscribe was not called. Every message is acked,
// including ones that fail to decode or deliver, so a bad email cannot
// block the topic.
func (w *Worker) Run(ctx context.Context) error {
	if w.msgs == nil {
		if err := w.Subscribe(ctx); err != nil {
			return err
		}
	}
	logging.Info().Str("topic", w.topic).Msg("notification worker started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-w.msgs:
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
			msg.Ack()
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg *message.Message) {
	if id := msg.Metadata.Get("request_id"); id != "" {
		ctx = logging.ContextWithRequestID(ctx, id)
	}
	log := logging.Ctx(ctx)

	var e Email
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		metrics.NotificationsDelivered.WithLabelValues("malformed").Inc()
		log.Error().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed email message")
		return
	}
	if err := w.mailer.Send(ctx, e); err != nil {
		metrics.NotificationsDelivered.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("message_id", msg.UUID).Str("recipient", e.Recipient).Msg("email delivery failed")
		return
	}
	metrics.NotificationsDelivered.WithLabelValues("ok").Inc()
}
