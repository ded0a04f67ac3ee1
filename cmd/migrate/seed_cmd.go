package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/iota-uz/schemagov/pkg/commands"
	"github.com/iota-uz/schemagov/pkg/configuration"
)

func newSeedCmd() *cobra.Command {
	var opts commands.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Write the demo cluster, environments, team and users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := configuration.Use()
			defer conf.Unload()

			pool, err := connectDB(cmd.Context(), conf.Database.Opts)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := commands.Seed(cmd.Context(), pool, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded tenant %d\n", opts.TenantID)
			return nil
		},
	}
	cmd.Flags().IntVar(&opts.TenantID, "tenant", 1, "tenant id to seed")
	cmd.Flags().StringVar(&opts.RegistryEndpoint, "registry", "http://localhost:8081", "schema registry endpoint")
	return cmd
}

func connectDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect failed: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}
	return pool, nil
}
