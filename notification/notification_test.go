package notification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-central/logging"
)

const testTopic = "conference.emails.test"

type chanMailer struct {
	got  chan Email
	fail bool
}

func (m *chanMailer) Send(_ context.Context, e Email) error {
	m.got <- e
	if m.fail {
		return errors.New("smtp down")
	}
	return nil
}

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 16,
		// Keeps messages published before the worker subscribes.
		Persistent: true,
	}, logging.NewWatermillAdapter())
	t.Cleanup(func() { ps.Close() })
	return ps
}

func startWorker(t *testing.T, ps *gochannel.GoChannel, mailer Mailer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWorker(ps, testTopic, mailer).Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Error("worker did not stop")
		}
	})
}

func receive(t *testing.T, ch <-chan Email) Email {
	t.Helper()
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no email delivered")
		return Email{}
	}
}

func TestQueueDeliversToWorker(t *testing.T) {
	ps := newPubSub(t)
	mailer := &chanMailer{got: make(chan Email, 4)}
	startWorker(t, ps, mailer)

	q := NewQueue(ps, testTopic, NewBreaker(BreakerConfig{Name: "test"}))
	require.NoError(t, q.Enqueue(context.Background(), "ann@example.com", "Conference \"GoDays\""))
	require.NoError(t, q.EnqueueEmail(context.Background(), Email{Recipient: "bob@example.com", Subject: CreationSubject, Body: "x"}))

	first := receive(t, mailer.got)
	assert.Equal(t, Email{Recipient: "ann@example.com", Subject: RegistrationSubject, Body: "Conference \"GoDays\""}, first)
	second := receive(t, mailer.got)
	assert.Equal(t, CreationSubject, second.Subject)
}

func TestWorkerKeepsGoingAfterFailures(t *testing.T) {
	ps := newPubSub(t)
	mailer := &chanMailer{got: make(chan Email, 4), fail: true}
	startWorker(t, ps, mailer)

	require.NoError(t, ps.Publish(testTopic, message.NewMessage("bad", []byte("{not json"))))
	q := NewQueue(ps, testTopic, nil)
	require.NoError(t, q.Enqueue(context.Background(), "a@example.com", "one"))
	require.NoError(t, q.Enqueue(context.Background(), "b@example.com", "two"))

	assert.Equal(t, "one", receive(t, mailer.got).Body)
	assert.Equal(t, "two", receive(t, mailer.got).Body)
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(string, ...*message.Message) error {
	p.calls++
	return errors.New("broker unavailable")
}

func (p *failingPublisher) Close() error { return nil }

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	pub := &failingPublisher{}
	q := NewQueue(pub, testTopic, NewBreaker(BreakerConfig{Name: "test", MaxFailures: 2, Timeout: time.Minute}))
	ctx := context.Background()

	assert.Error(t, q.Enqueue(ctx, "a@example.com", "x"))
	assert.Error(t, q.Enqueue(ctx, "a@example.com", "x"))
	err := q.Enqueue(ctx, "a@example.com", "x")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, pub.calls)
}

func TestQueueRejects(t *testing.T) {
	q := NewQueue(&failingPublisher{}, testTopic, nil)
	assert.Error(t, q.Enqueue(context.Background(), "", "x"))

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Enqueue(context.Background(), "a@example.com", "x"), ErrQueueClosed)
}

func TestSubscribeBeforeRunKeepsEarlyEmails(t *testing.T) {
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 4}, logging.NewWatermillAdapter())
	t.Cleanup(func() { ps.Close() })
	mailer := &chanMailer{got: make(chan Email, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := NewWorker(ps, testTopic, mailer)
	require.NoError(t, w.Subscribe(ctx))

	q := NewQueue(ps, testTopic, nil)
	require.NoError(t, q.Enqueue(ctx, "ann@example.com", "early"))

	go func() { _ = w.Run(ctx) }()
	assert.Equal(t, "early", receive(t, mailer.got).Body)
}
