package commands

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/iota-uz/schemagov/migrations"
)

type Direction string

const (
	DirectionUp     Direction = "up"
	DirectionDown   Direction = "down"
	DirectionStatus Direction = "status"
)

// Migrate applies the embedded goose migrations against dsn.
func Migrate(ctx context.Context, dsn string, dir Direction) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	defer goose.SetBaseFS(nil)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	switch dir {
	case DirectionUp:
		return goose.UpContext(ctx, db, migrations.Dir)
	case DirectionDown:
		return goose.DownContext(ctx, db, migrations.Dir)
	case DirectionStatus:
		return goose.StatusContext(ctx, db, migrations.Dir)
	default:
		return fmt.Errorf("unknown migration direction %q", dir)
	}
}
