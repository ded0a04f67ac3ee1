package registry

import (
	"context"
	"errors"
)

var ErrSubjectNotFound = errors.New("registry subject not found")

type ValidationResult struct {
	Valid   bool
	Message string
}

// RegisterResult carries the registry's raw answer. ID is the schema id parsed from a 2xx body;
// Error is set for any other response.
type RegisterResult struct {
	Payload string
	ID      string
	Error   string
}

// Registered reports whether the registry accepted the schema and returned its id.
func (r RegisterResult) Registered() bool {
	return r.Error == "" && r.ID != ""
}

type Version struct {
	Version int
	ID      int
	Schema  string
}

// Adapter talks to the schema registry backing an environment.
type Adapter interface {
	Validate(ctx context.Context, tenantID int, envID, topic, schema string) (ValidationResult, error)
	Register(ctx context.Context, tenantID int, envID, topic, schema string) (RegisterResult, error)
	// ListVersions returns the subject's versions in ascending order.
	ListVersions(ctx context.Context, tenantID int, envID, topic string) ([]Version, error)
}
