package schemarequest

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("schema request not found")
	// ErrPendingExists is returned by Create when the tenant already has a created request for the topic.
	ErrPendingExists = errors.New("a created schema request already exists for this topic")
	// ErrNotPending is returned by UpdateStatus when the row already left the created state.
	ErrNotPending = errors.New("schema request is no longer pending")
)

type FindParams struct {
	TenantID      int
	Status        *Status
	OperationType *OperationType
	Topic         string
	EnvironmentID string
	// Search matches topic names case-insensitively.
	Search string
	// EnvironmentIDs restricts results to these environments; nil means no restriction.
	EnvironmentIDs []string
	// ExcludeRequestor drops rows created by this user (approval view).
	ExcludeRequestor string
	// Requestor keeps only rows created by this user.
	Requestor string
	TeamID    *int
}

type Transition struct {
	Status        Status
	Approver      string
	DeclineReason string
}

type Repository interface {
	Create(ctx context.Context, req *SchemaRequest) (*SchemaRequest, error)
	GetByID(ctx context.Context, tenantID int, id int64) (*SchemaRequest, error)
	Search(ctx context.Context, params *FindParams) ([]*SchemaRequest, error)
	UpdateStatus(ctx context.Context, tenantID int, id int64, t Transition) (*SchemaRequest, error)
	// Delete removes the requestor's own created request and reports whether a row was removed.
	Delete(ctx context.Context, tenantID int, id int64, requestor string) (bool, error)
}
