package services

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"

	"github.com/iota-uz/schemagov/modules/schemas/access"
	"github.com/iota-uz/schemagov/pkg/authz"
)

var requestsObject = authz.ObjectName("schemas", "requests")

type authorizer interface {
	Authorize(ctx context.Context, req authz.Request) error
}

// CasbinGate answers permission checks from the casbin policy, using the principal's role
// in their tenant as the subject.
type CasbinGate struct {
	authz    authorizer
	resolver access.Resolver
}

func NewCasbinGate(svc *authz.Service, resolver access.Resolver) *CasbinGate {
	return &CasbinGate{authz: svc, resolver: resolver}
}

func (g *CasbinGate) IsAuthorized(ctx context.Context, p access.Principal, perm access.Permission) (bool, error) {
	action := perm.Action()
	if action == "" || !p.Valid() {
		return false, nil
	}
	scope, err := g.resolver.Resolve(ctx, p)
	if errors.Is(err, ErrUnknownPrincipal) {
		return false, nil
	}
	if err != nil {
		return false, gerrors.Wrap(err, "resolve scope")
	}
	req := authz.NewRequest(
		authz.SubjectForRole(scope.Role),
		authz.DomainFromTenant(scope.TenantID),
		requestsObject,
		action,
	)
	err = g.authz.Authorize(ctx, req)
	if errors.Is(err, authz.ErrForbidden) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
