package outbox

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
)

// Message is the unit written to an outbox table inside the business transaction.
type Message struct {
	TenantID int
	Topic    string
	EventID  uuid.UUID
	Payload  json.RawMessage
}

// Meta describes a delivery attempt. EventID is stable across retries and is the idempotency key.
type Meta struct {
	Table    pgx.Identifier
	TenantID int
	Topic    string
	EventID  uuid.UUID
	Sequence int64
	Attempts int
}

// DispatchedMessage is what the Relay hands to a Dispatcher.
type DispatchedMessage struct {
	Meta    Meta
	Payload json.RawMessage
}

type Dispatcher interface {
	Dispatch(ctx context.Context, msg DispatchedMessage) error
}

// DispatcherFunc adapts a plain function to Dispatcher.
type DispatcherFunc func(ctx context.Context, msg DispatchedMessage) error

func (f DispatcherFunc) Dispatch(ctx context.Context, msg DispatchedMessage) error {
	return f(ctx, msg)
}

func TableLabel(table pgx.Identifier) string {
	return strings.Join(table, ".")
}

func nopLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
