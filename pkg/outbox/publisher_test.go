package outbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct{ seq int64 }

func (r fakeRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = r.seq
	return nil
}

type recordingTx struct {
	queries []string
	args    [][]any
}

func (t *recordingTx) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (t *recordingTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, nil
}

func (t *recordingTx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	t.queries = append(t.queries, sql)
	t.args = append(t.args, args)
	return fakeRow{seq: 42}
}

func TestPublisher_Enqueue(t *testing.T) {
	t.Parallel()

	tx := &recordingTx{}
	p := NewPublisher(pgx.Identifier{"public", "schemas_outbox"})
	eventID := uuid.New()

	seq, err := p.Enqueue(context.Background(), tx, Message{
		TenantID: 3,
		Topic:    "schemas.request.created",
		EventID:  eventID,
		Payload:  json.RawMessage(`{"req_id":1}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)
	require.Len(t, tx.queries, 1)
	assert.Contains(t, tx.queries[0], `"public"."schemas_outbox"`)
	assert.Equal(t, 3, tx.args[0][0])
	assert.Equal(t, eventID, tx.args[0][3])
}

func TestPublisher_EnqueueRejectsIncompleteMessage(t *testing.T) {
	t.Parallel()

	p := NewPublisher(pgx.Identifier{"schemas_outbox"})
	valid := Message{TenantID: 1, Topic: "t", EventID: uuid.New()}

	cases := map[string]func(m *Message){
		"tenant":   func(m *Message) { m.TenantID = 0 },
		"topic":    func(m *Message) { m.Topic = "" },
		"event id": func(m *Message) { m.EventID = uuid.Nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tx := &recordingTx{}
			msg := valid
			mutate(&msg)
			_, err := p.Enqueue(context.Background(), tx, msg)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Empty(t, tx.queries, "nothing should be written for an invalid message")
		})
	}
}
