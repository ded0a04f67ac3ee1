package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/schemagov/pkg/repo"
)

// Cleaner periodically deletes published rows older than the retention window.
// Dead rows are kept for inspection.
type Cleaner struct {
	pool  *pgxpool.Pool
	table pgx.Identifier
	opts  CleanerOptions
}

func NewCleaner(pool *pgxpool.Pool, table pgx.Identifier, opts CleanerOptions) (*Cleaner, error) {
	if pool == nil {
		return nil, invalidConfig("pool is required")
	}
	if len(table) == 0 {
		return nil, invalidConfig("table is required")
	}
	opts.setDefaults()
	return &Cleaner{pool: pool, table: table, opts: opts}, nil
}

func (c *Cleaner) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		n, err := c.CleanOnce(ctx, c.pool, time.Now())
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			c.opts.Logger.WithError(err).WithField("table", TableLabel(c.table)).Warn("outbox: cleaner tick failed")
			continue
		}
		if n > 0 {
			c.opts.Logger.WithField("table", TableLabel(c.table)).WithField("deleted", n).Debug("outbox: cleaned published rows")
		}
	}
}

func (c *Cleaner) CleanOnce(ctx context.Context, db repo.Tx, now time.Time) (int64, error) {
	q := fmt.Sprintf(`DELETE FROM %s WHERE published_at IS NOT NULL AND published_at < $1`, c.table.Sanitize())
	tag, err := db.Exec(ctx, q, now.Add(-c.opts.Retention))
	if err != nil {
		return 0, fmt.Errorf("outbox cleaner: %w", err)
	}
	sharedMetrics().clean(TableLabel(c.table), tag.RowsAffected())
	return tag.RowsAffected(), nil
}
