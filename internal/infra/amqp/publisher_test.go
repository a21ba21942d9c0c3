package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"assessment-service/internal/domain"
	"github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeChannel struct {
	exchange string
	key      string
	msgs     []amqp091.Publishing
	err      error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.exchange, c.key = exchange, key
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeChannel) Close() error { return nil }

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestDisabledPublisherDropsEvents(t *testing.T) {
	p, err := NewPublisher("", quietLogger())
	require.NoError(t, err)
	require.False(t, p.Enabled())
	require.NoError(t, p.PublishCompleted(context.Background(), domain.AttemptRecord{LearnerID: "u1"}))
	require.NoError(t, p.Close())
}

func TestPublishCompletedSendsJSON(t *testing.T) {
	ch := &fakeChannel{}
	fixed := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	p := &Publisher{channel: ch, log: quietLogger(), now: func() time.Time { return fixed }, enabled: true}

	err := p.PublishCompleted(context.Background(), domain.AttemptRecord{
		LearnerID: "u1",
		Scope:     "chapter-1",
		Attempt:   2,
		Result:    domain.AssessmentResult{Percentage: 80, Passed: true},
	})
	require.NoError(t, err)
	require.Equal(t, ExchangeName, ch.exchange)
	require.Equal(t, RoutingKeyCompleted, ch.key)
	require.Len(t, ch.msgs, 1)
	require.Equal(t, "application/json", ch.msgs[0].ContentType)
	require.Equal(t, amqp091.Persistent, ch.msgs[0].DeliveryMode)

	var ev CompletedEvent
	require.NoError(t, json.Unmarshal(ch.msgs[0].Body, &ev))
	require.NotEmpty(t, ev.EventID)
	require.Equal(t, "u1", ev.LearnerID)
	require.Equal(t, 2, ev.Attempt)
	require.Equal(t, 80, ev.Result.Percentage)
	require.True(t, ev.OccurredAt.Equal(fixed))
}

func TestPublishCompletedWrapsErrors(t *testing.T) {
	boom := errors.New("channel closed")
	p := &Publisher{channel: &fakeChannel{err: boom}, log: quietLogger(), now: time.Now, enabled: true}
	err := p.PublishCompleted(context.Background(), domain.AttemptRecord{})
	require.ErrorIs(t, err, boom)
}
