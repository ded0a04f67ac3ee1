package topic

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("topic not found")

// Ownership records which team owns a topic within a tenant.
type Ownership struct {
	TenantID  int
	TopicName string
	TeamID    int
}

type Repository interface {
	// Owner returns ErrNotFound when the tenant has no such topic.
	Owner(ctx context.Context, tenantID int, topicName string) (*Ownership, error)
}
