package itf

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeDBName(t *testing.T) {
	assert.Equal(t, "itf_testfoo_bar_baz", sanitizeDBName("itf_TestFoo/bar baz"))
	assert.Equal(t, "test_db", sanitizeDBName("///"))

	long := "itf_" + strings.Repeat("TestSchemaRequestRepository_", 4)
	a := sanitizeDBName(long + "one")
	b := sanitizeDBName(long + "two")
	assert.LessOrEqual(t, len(a), maxDBNameLength)
	assert.NotEqual(t, a, b)
}
