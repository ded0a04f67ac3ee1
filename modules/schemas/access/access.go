// Package access defines who is calling the schema request engine and what they may see.
package access

import (
	"context"
	"sort"
	"strings"
)

// Principal is an authenticated caller. The engine never reads it from ambient state.
type Principal struct {
	Username string
}

func (p Principal) Valid() bool {
	return strings.TrimSpace(p.Username) != ""
}

type Permission string

const (
	RequestCreateSchemas Permission = "REQUEST_CREATE_SCHEMAS"
	ApproveSchemas       Permission = "APPROVE_SCHEMAS"
	RequestDeleteSchemas Permission = "REQUEST_DELETE_SCHEMAS"
)

// Action is the casbin action guarding the permission on the schemas.requests object.
func (p Permission) Action() string {
	switch p {
	case RequestCreateSchemas:
		return "create"
	case ApproveSchemas:
		return "approve"
	case RequestDeleteSchemas:
		return "delete"
	default:
		return ""
	}
}

// Scope is what the resolver derives for a principal.
type Scope struct {
	TenantID      int                 `json:"tenant_id"`
	TeamID        int                 `json:"team_id"`
	TeamName      string              `json:"team_name"`
	Role          string              `json:"role"`
	VisibleEnvIDs map[string]struct{} `json:"visible_env_ids"`
}

func (s *Scope) CanSee(envID string) bool {
	if s == nil {
		return false
	}
	_, ok := s.VisibleEnvIDs[envID]
	return ok
}

// EnvIDs returns the visible environments, sorted, for store-level filtering.
func (s *Scope) EnvIDs() []string {
	out := make([]string, 0, len(s.VisibleEnvIDs))
	for id := range s.VisibleEnvIDs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func NewEnvSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

type Gate interface {
	IsAuthorized(ctx context.Context, p Principal, perm Permission) (bool, error)
}

type Resolver interface {
	Resolve(ctx context.Context, p Principal) (*Scope, error)
}
