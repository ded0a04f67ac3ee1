package outbox

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/schemagov/pkg/repo"
)

type Publisher interface {
	Enqueue(ctx context.Context, tx repo.Tx, msg Message) (sequence int64, err error)
}

type publisher struct {
	table pgx.Identifier
	m     *relayMetrics
}

// NewPublisher returns a Publisher writing to table.
func NewPublisher(table pgx.Identifier) Publisher {
	return &publisher{table: table, m: sharedMetrics()}
}

// Enqueue inserts msg using tx so it commits or rolls back with the caller's writes.
// Re-enqueueing the same EventID is a no-op that returns the original sequence.
func (p *publisher) Enqueue(ctx context.Context, tx repo.Tx, msg Message) (int64, error) {
	switch {
	case len(p.table) == 0:
		return 0, invalidConfig("table is required")
	case msg.TenantID <= 0:
		return 0, invalidConfig("tenant_id is required")
	case msg.EventID == uuid.Nil:
		return 0, invalidConfig("event_id is required")
	case msg.Topic == "":
		return 0, invalidConfig("topic is required")
	}

	q := fmt.Sprintf(
		`INSERT INTO %s (tenant_id, topic, payload, event_id, available_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (event_id) DO UPDATE SET event_id = EXCLUDED.event_id
		 RETURNING sequence`,
		p.table.Sanitize(),
	)

	var sequence int64
	if err := tx.QueryRow(ctx, q, msg.TenantID, msg.Topic, []byte(msg.Payload), msg.EventID).Scan(&sequence); err != nil {
		return 0, fmt.Errorf("outbox enqueue: %w", err)
	}
	p.m.enqueue(TableLabel(p.table), msg.Topic)
	return sequence, nil
}
