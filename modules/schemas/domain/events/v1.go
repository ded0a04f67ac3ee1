package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	TopicSchemaRequestedV1       = "schemas.request.requested.v1"
	TopicSchemaRequestApprovedV1 = "schemas.request.approved.v1"
	TopicSchemaRequestDeclinedV1 = "schemas.request.declined.v1"
	EventVersionV1               = 1
)

type MailType string

const (
	SchemaRequested       MailType = "SCHEMA_REQUESTED"
	SchemaRequestApproved MailType = "SCHEMA_REQUEST_APPROVED"
	SchemaRequestDenied   MailType = "SCHEMA_REQUEST_DENIED"
)

// Topic maps a mail type to its outbox topic.
func (m MailType) Topic() string {
	switch m {
	case SchemaRequested:
		return TopicSchemaRequestedV1
	case SchemaRequestApproved:
		return TopicSchemaRequestApprovedV1
	case SchemaRequestDenied:
		return TopicSchemaRequestDeclinedV1
	default:
		return ""
	}
}

// SchemaRequestEventV1 is the outbox payload for schema request notifications.
type SchemaRequestEventV1 struct {
	EventID      uuid.UUID `json:"event_id"`
	EventVersion int       `json:"event_version"`
	TenantID     int       `json:"tenant_id"`
	RequestID    int64     `json:"request_id"`
	Type         MailType  `json:"type"`
	TopicName    string    `json:"topic_name"`
	Version      *int      `json:"version"`
	Reason       string    `json:"reason,omitempty"`
	Recipient    string    `json:"recipient"`
	LoginURL     string    `json:"login_url"`
	OccurredAt   time.Time `json:"occurred_at"`
}
