package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/schemagov/pkg/itf"
	"github.com/iota-uz/schemagov/pkg/outbox"
)

type stubDispatcher struct {
	failTopic string
	calls     []outbox.DispatchedMessage
}

func (d *stubDispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	d.calls = append(d.calls, msg)
	if msg.Meta.Topic == d.failTopic {
		return errors.New("poison")
	}
	return nil
}

func TestRelay_Integration_NoHeadOfLineBlockingAndDead(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool := itf.NewDatabase(t, itf.Options{})

	table, err := outbox.ParseIdentifier("public.schemas_outbox")
	require.NoError(t, err)
	p := outbox.NewPublisher(table)

	failTopic, okTopic := "schemas.test.fail.v1", "schemas.test.ok.v1"
	tx, err := pool.Begin(ctx)
	require.NoError(t, err)
	_, err = p.Enqueue(ctx, tx, outbox.Message{TenantID: 1, Topic: failTopic, EventID: uuid.New(), Payload: []byte(`{"x":1}`)})
	require.NoError(t, err)
	_, err = p.Enqueue(ctx, tx, outbox.Message{TenantID: 1, Topic: okTopic, EventID: uuid.New(), Payload: []byte(`{"y":2}`)})
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	t.Run("enqueue is idempotent by event_id", func(t *testing.T) {
		tx, err := pool.Begin(ctx)
		require.NoError(t, err)
		defer func() { _ = tx.Rollback(ctx) }()

		evt := uuid.New()
		seq1, err := p.Enqueue(ctx, tx, outbox.Message{TenantID: 1, Topic: okTopic, EventID: evt, Payload: []byte(`{}`)})
		require.NoError(t, err)
		seq2, err := p.Enqueue(ctx, tx, outbox.Message{TenantID: 1, Topic: okTopic, EventID: evt, Payload: []byte(`{}`)})
		require.NoError(t, err)
		require.Equal(t, seq1, seq2)
	})

	dispatcher := &stubDispatcher{failTopic: failTopic}
	relay, err := outbox.NewRelay(pool, table, dispatcher, outbox.RelayOptions{
		PollInterval: 10 * time.Millisecond,
		BatchSize:    10,
		LockTTL:      time.Second,
		MaxAttempts:  1,
	})
	require.NoError(t, err)

	require.NoError(t, relay.ProcessOnce(ctx, pool))
	require.Len(t, dispatcher.calls, 2)
	require.Equal(t, 1, dispatcher.calls[0].Meta.Attempts)

	var published, dead int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FILTER (WHERE published_at IS NOT NULL),
		        count(*) FILTER (WHERE published_at IS NULL AND last_error IS NOT NULL)
		 FROM schemas_outbox`,
	).Scan(&published, &dead))
	require.Equal(t, 1, published)
	require.Equal(t, 1, dead)

	require.NoError(t, relay.ProcessOnce(ctx, pool))
	require.Len(t, dispatcher.calls, 2, "dead rows are not claimed again")

	cleaner, err := outbox.NewCleaner(pool, table, outbox.CleanerOptions{Retention: time.Minute})
	require.NoError(t, err)
	n, err := cleaner.CleanOnce(ctx, pool, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
