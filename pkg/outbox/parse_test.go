package outbox

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIdentifier(t *testing.T) {
	t.Parallel()

	id, err := ParseIdentifier(" public.schemas_outbox ")
	require.NoError(t, err)
	assert.Equal(t, pgx.Identifier{"public", "schemas_outbox"}, id)
	assert.Equal(t, "public.schemas_outbox", TableLabel(id))

	for _, bad := range []string{"", "a.b.c", "public.", "bad-name", "1table"} {
		_, err := ParseIdentifier(bad)
		require.ErrorIs(t, err, ErrInvalidConfig, bad)
	}
}
