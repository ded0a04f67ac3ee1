package directory

import (
	"context"
	"errors"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrTeamNotFound = errors.New("team not found")
)

type User struct {
	Username string
	TenantID int
	TeamID   int
	Role     string
	Email    string
}

type Team struct {
	ID       int
	TenantID int
	Name     string
	// EnvironmentIDs are the environments the team may act within.
	EnvironmentIDs []string
}

// Repository reads users, teams and their environment grants.
type Repository interface {
	UserByName(ctx context.Context, username string) (*User, error)
	TeamByID(ctx context.Context, tenantID, teamID int) (*Team, error)
	UsersByTeam(ctx context.Context, tenantID, teamID int) ([]*User, error)
	// ApproverRoles lists the roles allowed to approve schema requests in the tenant.
	ApproverRoles(ctx context.Context, tenantID int) ([]string, error)
}
