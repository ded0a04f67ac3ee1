package services

import (
	"context"
	"encoding/json"
	"time"

	gerrors "github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/iota-uz/schemagov/modules/schemas/domain/events"
	"github.com/iota-uz/schemagov/pkg/composables"
	"github.com/iota-uz/schemagov/pkg/outbox"
)

var (
	useTxFn = composables.UseTx
	nowFn   = time.Now
	newIDFn = uuid.New
)

// OutboxSink writes notifications to the outbox table; the relay delivers them to subscribers.
type OutboxSink struct {
	publisher outbox.Publisher
}

func NewOutboxSink(publisher outbox.Publisher) *OutboxSink {
	return &OutboxSink{publisher: publisher}
}

func (s *OutboxSink) Send(ctx context.Context, n Notification) (err error) {
	defer func() {
		result := "enqueued"
		if err != nil {
			result = "failed"
		}
		notificationsTotal.WithLabelValues(string(n.Type), result).Inc()
	}()

	topic := n.Type.Topic()
	if topic == "" {
		return gerrors.Errorf("unknown mail type %q", n.Type)
	}
	ev := events.SchemaRequestEventV1{
		EventID:      newIDFn(),
		EventVersion: events.EventVersionV1,
		TenantID:     n.TenantID,
		RequestID:    n.RequestID,
		Type:         n.Type,
		TopicName:    n.TopicName,
		Version:      n.Version,
		Reason:       n.Reason,
		Recipient:    n.Recipient,
		LoginURL:     n.LoginURL,
		OccurredAt:   nowFn().UTC(),
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return gerrors.Wrap(err, "encode notification")
	}

	return inTenantTxFn(ctx, n.TenantID, func(txCtx context.Context) error {
		tx, err := useTxFn(txCtx)
		if err != nil {
			return err
		}
		_, err = s.publisher.Enqueue(txCtx, tx, outbox.Message{
			TenantID: n.TenantID,
			Topic:    topic,
			EventID:  ev.EventID,
			Payload:  payload,
		})
		return err
	})
}
