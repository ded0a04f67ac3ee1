package services

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"

	"github.com/iota-uz/schemagov/modules/schemas/access"
	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/pkg/composables"
)

// ErrUnknownPrincipal is returned when the directory has no user or team for the principal.
var ErrUnknownPrincipal = errors.New("unknown principal")

// DirectoryResolver derives a principal's scope from the user directory, optionally through a cache.
type DirectoryResolver struct {
	dir   directory.Repository
	cache ScopeCache
}

func NewDirectoryResolver(dir directory.Repository, cache ScopeCache) *DirectoryResolver {
	return &DirectoryResolver{dir: dir, cache: cache}
}

func (r *DirectoryResolver) Resolve(ctx context.Context, p access.Principal) (*access.Scope, error) {
	if !p.Valid() {
		return nil, ErrUnknownPrincipal
	}
	logger := composables.UseLogger(ctx).WithField("principal", p.Username)

	if r.cache != nil {
		scope, err := r.cache.Get(ctx, p.Username)
		if err != nil {
			logger.WithError(err).Warn("schemas: scope cache unavailable")
		}
		if scope != nil {
			return scope, nil
		}
	}

	user, err := r.dir.UserByName(ctx, p.Username)
	if errors.Is(err, directory.ErrUserNotFound) {
		return nil, ErrUnknownPrincipal
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "user by name")
	}
	team, err := r.dir.TeamByID(ctx, user.TenantID, user.TeamID)
	if errors.Is(err, directory.ErrTeamNotFound) {
		return nil, ErrUnknownPrincipal
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "team by id")
	}

	scope := &access.Scope{
		TenantID:      user.TenantID,
		TeamID:        team.ID,
		TeamName:      team.Name,
		Role:          user.Role,
		VisibleEnvIDs: access.NewEnvSet(team.EnvironmentIDs...),
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, p.Username, scope); err != nil {
			logger.WithError(err).Warn("schemas: scope cache write failed")
		}
	}
	return scope, nil
}
