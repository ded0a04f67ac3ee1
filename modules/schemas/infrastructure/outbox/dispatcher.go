// Package outbox turns relayed schema request rows back into typed events on the event bus.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iota-uz/schemagov/modules/schemas/domain/events"
	"github.com/iota-uz/schemagov/pkg/eventbus"
	"github.com/iota-uz/schemagov/pkg/outbox"
)

type Dispatcher struct {
	bus eventbus.EventBusWithError
}

func NewDispatcher(bus eventbus.EventBusWithError) *Dispatcher {
	return &Dispatcher{bus: bus}
}

// Dispatch publishes (*outbox.Meta, *events.SchemaRequestEventV1). A subscriber error makes the relay retry the row.
func (d *Dispatcher) Dispatch(ctx context.Context, msg outbox.DispatchedMessage) error {
	_ = ctx
	if d == nil || d.bus == nil {
		return fmt.Errorf("schemas outbox dispatcher: bus is nil")
	}

	switch msg.Meta.Topic {
	case events.TopicSchemaRequestedV1, events.TopicSchemaRequestApprovedV1, events.TopicSchemaRequestDeclinedV1:
	default:
		return fmt.Errorf("schemas outbox dispatcher: unsupported topic %q", msg.Meta.Topic)
	}

	var ev events.SchemaRequestEventV1
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return fmt.Errorf("schemas outbox dispatcher: decode payload: %w", err)
	}
	if ev.EventVersion != events.EventVersionV1 {
		return fmt.Errorf("schemas outbox dispatcher: unsupported event version %d", ev.EventVersion)
	}

	meta := msg.Meta
	return d.bus.PublishE(&meta, &ev)
}
