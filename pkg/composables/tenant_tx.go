package composables

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/schemagov/pkg/constants"
)

var ErrNoTenantID = errors.New("no tenant id found in context")

func WithTenantID(ctx context.Context, tenantID int) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, tenantID)
}

func UseTenantID(ctx context.Context) (int, error) {
	tenantID, ok := ctx.Value(constants.TenantIDKey).(int)
	if !ok || tenantID <= 0 {
		return 0, ErrNoTenantID
	}
	return tenantID, nil
}

// InTenantTx binds tenantID to ctx and runs fn inside a transaction with RLS applied.
// An outer transaction already present in ctx is reused.
func InTenantTx(ctx context.Context, tenantID int, fn func(context.Context) error) error {
	ctx = WithTenantID(ctx, tenantID)
	if existing, ok := ctx.Value(constants.TxKey).(pgx.Tx); ok && existing != nil {
		if err := ApplyTenantRLS(ctx, existing); err != nil {
			return err
		}
		return fn(ctx)
	}

	pool, err := UsePool(ctx)
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	return runInTx(ctx, tx, fn)
}

func InTenantTxResult[T any](ctx context.Context, tenantID int, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := InTenantTx(ctx, tenantID, func(txCtx context.Context) error {
		var innerErr error
		out, innerErr = fn(txCtx)
		return innerErr
	})
	return out, err
}
