package composables

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTenantID(t *testing.T) {
	_, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenantID)

	_, err = UseTenantID(WithTenantID(context.Background(), 0))
	require.ErrorIs(t, err, ErrNoTenantID)

	id, err := UseTenantID(WithTenantID(context.Background(), 42))
	require.NoError(t, err)
	require.Equal(t, 42, id)
}

func TestUsername(t *testing.T) {
	_, err := UseUsername(context.Background())
	require.ErrorIs(t, err, ErrNoPrincipal)

	_, err = UseUsername(WithUsername(context.Background(), "   "))
	require.ErrorIs(t, err, ErrNoPrincipal)

	name, err := UseUsername(WithUsername(context.Background(), " alice "))
	require.NoError(t, err)
	require.Equal(t, "alice", name)
}

func TestUseTx_NoPool(t *testing.T) {
	_, err := UseTx(context.Background())
	require.ErrorIs(t, err, ErrNoPool)
}

func TestUseLogger_Fallback(t *testing.T) {
	require.NotNil(t, UseLogger(context.Background()))
}
