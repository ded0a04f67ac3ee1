package commands

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/schemagov/pkg/composables"
)

// SeedOptions describes the single-tenant demo directory written by Seed.
type SeedOptions struct {
	TenantID         int
	RegistryEndpoint string
}

// Seed writes a demo cluster, two schema registry environments, one team with a requestor and an
// approver, and a topic owned by that team. Running it twice is a no-op.
func Seed(ctx context.Context, pool *pgxpool.Pool, opts SeedOptions) error {
	if opts.TenantID <= 0 {
		return fmt.Errorf("seed requires a positive tenant id, got %d", opts.TenantID)
	}
	if opts.RegistryEndpoint == "" {
		opts.RegistryEndpoint = "http://localhost:8081"
	}

	ctx = composables.WithPool(ctx, pool)
	return composables.InTenantTx(ctx, opts.TenantID, func(txCtx context.Context) error {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return err
		}
		tenant := opts.TenantID

		var clusterID int
		if err := tx.QueryRow(txCtx, `
			INSERT INTO clusters (tenant_id, name, protocol, endpoint)
			VALUES ($1, 'local-schema-registry', 'http', $2)
			ON CONFLICT (tenant_id, name) DO UPDATE SET endpoint = EXCLUDED.endpoint
			RETURNING id`, tenant, opts.RegistryEndpoint).Scan(&clusterID); err != nil {
			return fmt.Errorf("seed cluster: %w", err)
		}

		for _, env := range [][2]string{{"1", "DEV_SR"}, {"2", "TST_SR"}} {
			if _, err := tx.Exec(txCtx, `
				INSERT INTO environments (id, tenant_id, name, type, cluster_id)
				VALUES ($1, $2, $3, 'schemaregistry', $4)
				ON CONFLICT (tenant_id, id) DO NOTHING`, env[0], tenant, env[1], clusterID); err != nil {
				return fmt.Errorf("seed environment %s: %w", env[1], err)
			}
		}

		var teamID int
		if err := tx.QueryRow(txCtx, `
			INSERT INTO teams (tenant_id, name) VALUES ($1, 'platform')
			ON CONFLICT (tenant_id, name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, tenant).Scan(&teamID); err != nil {
			return fmt.Errorf("seed team: %w", err)
		}

		statements := []struct {
			sql  string
			args []any
		}{
			{`INSERT INTO team_environments (tenant_id, team_id, environment_id) VALUES ($1, $2, '1'), ($1, $2, '2')
				ON CONFLICT DO NOTHING`, []any{tenant, teamID}},
			{`INSERT INTO users (username, tenant_id, team_id, role) VALUES ('requestor', $1, $2, 'requestor'), ('approver', $1, $2, 'approver')
				ON CONFLICT (username) DO NOTHING`, []any{tenant, teamID}},
			{`INSERT INTO approver_roles (tenant_id, role) VALUES ($1, 'approver'), ($1, 'superadmin')
				ON CONFLICT DO NOTHING`, []any{tenant}},
			{`INSERT INTO topics (tenant_id, topic_name, team_id) VALUES ($1, 'orders', $2)
				ON CONFLICT DO NOTHING`, []any{tenant, teamID}},
		}
		for _, st := range statements {
			if _, err := tx.Exec(txCtx, st.sql, st.args...); err != nil {
				return fmt.Errorf("seed directory: %w", err)
			}
		}
		return nil
	})
}
