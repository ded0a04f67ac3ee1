package composables

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/iota-uz/schemagov/pkg/configuration"
)

var rlsEnforced = func() bool {
	return configuration.Use().RLSEnforce == "enforce"
}

func ApplyTenantRLS(ctx context.Context, tx pgx.Tx) error {
	if !rlsEnforced() {
		return nil
	}
	tenantID, err := UseTenantID(ctx)
	if err != nil {
		return fmt.Errorf("rls requires tenant in context: %w", err)
	}
	_, err = tx.Exec(ctx, "SELECT set_config('app.current_tenant', $1, true)", strconv.Itoa(tenantID))
	if err != nil {
		return fmt.Errorf("failed to set rls tenant context: %w", err)
	}
	return nil
}
