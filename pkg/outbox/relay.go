package outbox

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/pkg/repo"
)

// Relay polls an outbox table and hands pending rows to a Dispatcher.
// Delivery is at-least-once; dispatchers dedupe on Meta.EventID.
type Relay struct {
	pool       *pgxpool.Pool
	table      pgx.Identifier
	dispatcher Dispatcher
	opts       RelayOptions
	lockKey    int64
	label      string
	m          *relayMetrics
}

func NewRelay(pool *pgxpool.Pool, table pgx.Identifier, dispatcher Dispatcher, opts RelayOptions) (*Relay, error) {
	switch {
	case pool == nil:
		return nil, invalidConfig("pool is required")
	case len(table) == 0:
		return nil, invalidConfig("table is required")
	case dispatcher == nil:
		return nil, invalidConfig("dispatcher is required")
	}
	opts.setDefaults()
	label := TableLabel(table)
	return &Relay{
		pool:       pool,
		table:      table,
		dispatcher: dispatcher,
		opts:       opts,
		lockKey:    advisoryLockKey("outbox:" + label),
		label:      label,
		m:          sharedMetrics(),
	}, nil
}

// Run blocks until ctx is done. With SingleActive only the holder of the table's
// advisory lock polls; other instances wait for it.
func (r *Relay) Run(ctx context.Context) error {
	if !r.opts.SingleActive {
		r.m.leader(r.label, true)
		return r.poll(ctx, r.pool)
	}

	for {
		conn, leader, err := r.tryLead(ctx)
		if err != nil {
			r.opts.Logger.WithError(err).Warn("outbox: leader election failed")
		}
		if leader {
			r.m.leader(r.label, true)
			r.opts.Logger.WithField("table", r.label).Info("outbox: relay became leader")
			err = r.poll(ctx, conn)
			_, _ = conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1::bigint)`, r.lockKey)
			conn.Release()
			r.m.leader(r.label, false)
			return err
		}
		r.m.leader(r.label, false)
		if err := sleep(ctx, r.opts.PollInterval); err != nil {
			return err
		}
	}
}

func (r *Relay) tryLead(ctx context.Context) (*pgxpool.Conn, bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}
	var ok bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1::bigint)`, r.lockKey).Scan(&ok); err != nil {
		conn.Release()
		return nil, false, err
	}
	if !ok {
		conn.Release()
		return nil, false, nil
	}
	return conn, true, nil
}

type txBeginner interface {
	repo.Tx
	Begin(ctx context.Context) (pgx.Tx, error)
}

func (r *Relay) poll(ctx context.Context, db txBeginner) error {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if err := r.observeDepth(ctx, db); err != nil {
			r.opts.Logger.WithError(err).Debug("outbox: observe queue depth failed")
		}
		if err := r.ProcessOnce(ctx, db); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.opts.Logger.WithError(err).Warn("outbox: process tick failed")
		}
	}
}

type claimedRow struct {
	id       uuid.UUID
	tenantID int
	topic    string
	payload  []byte
	eventID  uuid.UUID
	sequence int64
	attempts int
}

func (c claimedRow) fields(table string) logrus.Fields {
	return logrus.Fields{
		"table":     table,
		"topic":     c.topic,
		"event_id":  c.eventID.String(),
		"tenant_id": c.tenantID,
		"sequence":  c.sequence,
		"attempts":  c.attempts,
	}
}

// ProcessOnce claims one batch and dispatches it. A failing row never blocks the rest of the batch.
func (r *Relay) ProcessOnce(ctx context.Context, db txBeginner) error {
	rows, err := r.claim(ctx, db, time.Now())
	if err != nil {
		return err
	}
	for _, c := range rows {
		r.deliver(ctx, db, c)
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, db repo.Tx, c claimedRow) {
	dispatchCtx, cancel := context.WithTimeout(ctx, r.opts.DispatchTimeout)
	start := time.Now()
	err := r.dispatcher.Dispatch(dispatchCtx, DispatchedMessage{
		Meta: Meta{
			Table:    r.table,
			TenantID: c.tenantID,
			Topic:    c.topic,
			EventID:  c.eventID,
			Sequence: c.sequence,
			Attempts: c.attempts,
		},
		Payload: c.payload,
	})
	cancel()

	r.m.dispatch(r.label, c.topic, err, time.Since(start))

	var settleErr error
	switch {
	case err == nil:
		settleErr = r.settle(ctx, db, c.id, "published_at = now(), last_error = NULL")
	case c.attempts >= r.opts.MaxAttempts:
		r.m.dead(r.label, c.topic)
		settleErr = r.settle(ctx, db, c.id, "last_error = $2", truncateError(err, r.opts.LastErrorMaxLen))
	default:
		next := time.Now().Add(backoff(c.attempts, r.opts.MaxBackoff) + jitter(r.opts.Rand, r.opts.JitterMax))
		settleErr = r.settle(ctx, db, c.id, "last_error = $2, available_at = $3", truncateError(err, r.opts.LastErrorMaxLen), next)
	}
	if settleErr != nil {
		r.opts.Logger.WithError(settleErr).WithFields(c.fields(r.label)).Warn("outbox: settle failed")
	}
}

// settle unlocks a claimed row and applies set. Rows that reached MaxAttempts stay
// unpublished and are never claimed again.
func (r *Relay) settle(ctx context.Context, db repo.Tx, id uuid.UUID, set string, args ...any) error {
	q := fmt.Sprintf(`UPDATE %s SET locked_at = NULL, %s WHERE id = $1 AND published_at IS NULL`, r.table.Sanitize(), set)
	if _, err := db.Exec(ctx, q, append([]any{id}, args...)...); err != nil {
		return fmt.Errorf("outbox settle: %w", err)
	}
	return nil
}

func (r *Relay) claim(ctx context.Context, db txBeginner, now time.Time) ([]claimedRow, error) {
	tx, err := db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	table := r.table.Sanitize()
	rows, err := tx.Query(ctx, fmt.Sprintf(
		`SELECT id, tenant_id, topic, payload, event_id, sequence, attempts
		   FROM %s
		  WHERE published_at IS NULL
		    AND available_at <= $1
		    AND attempts < $2
		    AND (locked_at IS NULL OR locked_at < $3)
		  ORDER BY available_at, sequence
		  LIMIT $4
		  FOR UPDATE SKIP LOCKED`, table),
		now, r.opts.MaxAttempts, now.Add(-r.opts.LockTTL), r.opts.BatchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("outbox claim select: %w", err)
	}

	var out []claimedRow
	var ids []uuid.UUID
	for rows.Next() {
		var c claimedRow
		if err := rows.Scan(&c.id, &c.tenantID, &c.topic, &c.payload, &c.eventID, &c.sequence, &c.attempts); err != nil {
			rows.Close()
			return nil, fmt.Errorf("outbox claim scan: %w", err)
		}
		c.attempts++
		out = append(out, c)
		ids = append(ids, c.id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox claim rows: %w", err)
	}

	if len(ids) > 0 {
		update := fmt.Sprintf(`UPDATE %s SET locked_at = $1, attempts = attempts + 1 WHERE id = ANY($2)`, table)
		if _, err := tx.Exec(ctx, update, now, pgtype.FlatArray[uuid.UUID](ids)); err != nil {
			return nil, fmt.Errorf("outbox claim update: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Relay) observeDepth(ctx context.Context, db repo.Tx) error {
	var pending, locked int64
	err := db.QueryRow(ctx, fmt.Sprintf(
		`SELECT count(*), count(*) FILTER (WHERE locked_at IS NOT NULL)
		   FROM %s WHERE published_at IS NULL`, r.table.Sanitize()),
	).Scan(&pending, &locked)
	if err != nil {
		return fmt.Errorf("outbox depth: %w", err)
	}
	r.m.backlog(r.label, pending, locked)
	return nil
}

func advisoryLockKey(s string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return int64(h.Sum64())
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
