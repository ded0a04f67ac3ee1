package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/modules/schemas/infrastructure/persistence/models"
	"github.com/iota-uz/schemagov/pkg/composables"
)

type DirectoryRepository struct{}

func NewDirectoryRepository() directory.Repository {
	return &DirectoryRepository{}
}

// UserByName looks the user up across tenants; usernames are globally unique.
func (r *DirectoryRepository) UserByName(ctx context.Context, username string) (*directory.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var m models.User
	err = tx.QueryRow(ctx,
		`SELECT username, tenant_id, team_id, role, email FROM users WHERE username = $1`,
		username,
	).Scan(&m.Username, &m.TenantID, &m.TeamID, &m.Role, &m.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, directory.ErrUserNotFound
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "get user")
	}
	return toDomainUser(&m), nil
}

func (r *DirectoryRepository) TeamByID(ctx context.Context, tenantID, teamID int) (*directory.Team, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	team := directory.Team{TenantID: tenantID}
	err = tx.QueryRow(ctx, `
		SELECT t.id, t.name, COALESCE(array_agg(te.environment_id ORDER BY te.environment_id)
			FILTER (WHERE te.environment_id IS NOT NULL), '{}')
		FROM teams t
		LEFT JOIN team_environments te ON te.tenant_id = t.tenant_id AND te.team_id = t.id
		WHERE t.tenant_id = $1 AND t.id = $2
		GROUP BY t.id, t.name`,
		tenantID, teamID,
	).Scan(&team.ID, &team.Name, &team.EnvironmentIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, directory.ErrTeamNotFound
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "get team")
	}
	return &team, nil
}

func (r *DirectoryRepository) UsersByTeam(ctx context.Context, tenantID, teamID int) ([]*directory.User, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		`SELECT username, tenant_id, team_id, role, email FROM users WHERE tenant_id = $1 AND team_id = $2 ORDER BY username`,
		tenantID, teamID,
	)
	if err != nil {
		return nil, gerrors.Wrap(err, "list team users")
	}
	defer rows.Close()

	var out []*directory.User
	for rows.Next() {
		var m models.User
		if err := rows.Scan(&m.Username, &m.TenantID, &m.TeamID, &m.Role, &m.Email); err != nil {
			return nil, err
		}
		out = append(out, toDomainUser(&m))
	}
	return out, rows.Err()
}

func (r *DirectoryRepository) ApproverRoles(ctx context.Context, tenantID int) ([]string, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx, `SELECT role FROM approver_roles WHERE tenant_id = $1 ORDER BY role`, tenantID)
	if err != nil {
		return nil, gerrors.Wrap(err, "list approver roles")
	}
	defer rows.Close()

	var roles []string
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
