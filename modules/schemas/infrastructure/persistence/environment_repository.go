package persistence

import (
	"context"
	"errors"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/schemagov/modules/schemas/domain/environment"
	"github.com/iota-uz/schemagov/modules/schemas/infrastructure/persistence/models"
	"github.com/iota-uz/schemagov/pkg/composables"
)

type EnvironmentRepository struct{}

func NewEnvironmentRepository() environment.Repository {
	return &EnvironmentRepository{}
}

func (r *EnvironmentRepository) GetByID(ctx context.Context, tenantID int, id string) (*environment.Environment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var m models.Environment
	err = tx.QueryRow(ctx,
		`SELECT id, tenant_id, name, type, cluster_id FROM environments WHERE tenant_id = $1 AND id = $2`,
		tenantID, id,
	).Scan(&m.ID, &m.TenantID, &m.Name, &m.Type, &m.ClusterID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, environment.ErrNotFound
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "get environment")
	}
	return toDomainEnvironment(&m), nil
}

func (r *EnvironmentRepository) ListByType(ctx context.Context, tenantID int, t environment.Type) ([]*environment.Environment, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := tx.Query(ctx,
		`SELECT id, tenant_id, name, type, cluster_id FROM environments WHERE tenant_id = $1 AND type = $2 ORDER BY name`,
		tenantID, string(t),
	)
	if err != nil {
		return nil, gerrors.Wrap(err, "list environments")
	}
	defer rows.Close()

	var out []*environment.Environment
	for rows.Next() {
		var m models.Environment
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Type, &m.ClusterID); err != nil {
			return nil, err
		}
		out = append(out, toDomainEnvironment(&m))
	}
	return out, rows.Err()
}

func (r *EnvironmentRepository) Cluster(ctx context.Context, tenantID int, clusterID int) (*environment.Cluster, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}
	var m models.Cluster
	err = tx.QueryRow(ctx,
		`SELECT id, tenant_id, name, protocol, endpoint FROM clusters WHERE tenant_id = $1 AND id = $2`,
		tenantID, clusterID,
	).Scan(&m.ID, &m.TenantID, &m.Name, &m.Protocol, &m.Endpoint)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, environment.ErrNotFound
	}
	if err != nil {
		return nil, gerrors.Wrap(err, "get cluster")
	}
	return toDomainCluster(&m), nil
}
