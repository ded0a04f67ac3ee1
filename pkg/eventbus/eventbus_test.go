package eventbus

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/schemagov/pkg/logging"
)

type requested struct {
	topic string
}

type approved struct {
	topic string
}

func TestPublisher_PublishNoSubscribers(t *testing.T) {
	logBuffer := bytes.Buffer{}
	log := logrus.New()
	log.SetOutput(&logBuffer)
	log.SetLevel(logrus.WarnLevel)

	publisher := NewEventPublisher(log)
	publisher.Subscribe(func(e *requested) {
		t.Error("should not be called")
	})
	publisher.Publish(&approved{topic: "orders"})

	require.Contains(t, logBuffer.String(), "eventbus.Publish: no matching subscribers")
}

func TestPublisher_Subscribe(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.WarnLevel))
	var got string
	publisher.Subscribe(func(e *requested) {
		got = e.topic
	})
	publisher.Publish(&requested{topic: "orders"})
	require.Equal(t, "orders", got)
}

func TestPublisher_PanicIsContained(t *testing.T) {
	publisher := NewEventPublisher(logging.ConsoleLogger(logrus.PanicLevel))
	called := false
	publisher.Subscribe(func(e *requested) { panic("boom") })
	publisher.Subscribe(func(e *requested) { called = true })

	require.NotPanics(t, func() { publisher.Publish(&requested{}) })
	require.True(t, called, "later handlers still run")
}

func TestMatchSignature(t *testing.T) {
	require.True(t, MatchSignature(func(e *requested) {}, []any{&requested{}}))
	require.False(t, MatchSignature(func(e *requested) {}, []any{&approved{}}))
	require.False(t, MatchSignature(func(e *requested) {}, []any{}))
	require.False(t, MatchSignature(func(e *requested) {}, []any{&requested{}, &requested{}}))
	require.True(t, MatchSignature(func(ctx context.Context) {}, []any{context.Background()}))
	require.True(t, MatchSignature(func(e *requested) {}, []any{nil}))
	require.False(t, MatchSignature(func(s string) {}, []any{nil}))
	require.False(t, MatchSignature("not a func", []any{}))
}

func TestPublishE(t *testing.T) {
	t.Run("no subscribers", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		require.ErrorIs(t, publisher.PublishE(&requested{}), ErrNoSubscribers)
	})

	t.Run("handler error is returned", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		sentinel := errors.New("smtp down")
		publisher.Subscribe(func(e *requested) error { return sentinel })
		require.ErrorIs(t, publisher.PublishE(&requested{}), sentinel)
	})

	t.Run("panic becomes error", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		publisher.Subscribe(func(e *requested) error { panic("boom") })
		err := publisher.PublishE(&requested{})
		require.Error(t, err)
		require.True(t, strings.Contains(err.Error(), "panicked"))
	})

	t.Run("invalid return signature", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		publisher.Subscribe(func(e *requested) int { return 1 })
		require.ErrorIs(t, publisher.PublishE(&requested{}), ErrInvalidHandlerReturn)
	})

	t.Run("success", func(t *testing.T) {
		publisher := NewEventPublisher(nil)
		publisher.Subscribe(func(e *requested) error { return nil })
		require.NoError(t, publisher.PublishE(&requested{}))
	})
}

func TestUnsubscribeAndClear(t *testing.T) {
	publisher := NewEventPublisher(nil)
	h1 := func(e *requested) {}
	h2 := func(e *approved) {}
	publisher.Subscribe(h1)
	publisher.Subscribe(h2)
	require.Equal(t, 2, publisher.SubscribersCount())

	publisher.Unsubscribe(h1)
	require.Equal(t, 1, publisher.SubscribersCount())

	publisher.Clear()
	require.Equal(t, 0, publisher.SubscribersCount())
}
