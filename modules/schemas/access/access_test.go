package access

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermission_Action(t *testing.T) {
	assert.Equal(t, "create", RequestCreateSchemas.Action())
	assert.Equal(t, "approve", ApproveSchemas.Action())
	assert.Equal(t, "delete", RequestDeleteSchemas.Action())
	assert.Empty(t, Permission("VIEW_TOPICS").Action())
}

func TestScope_Visibility(t *testing.T) {
	s := &Scope{VisibleEnvIDs: NewEnvSet("1", "3")}
	assert.True(t, s.CanSee("1"))
	assert.False(t, s.CanSee("2"))

	ids := s.EnvIDs()
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "3"}, ids)

	var nilScope *Scope
	assert.False(t, nilScope.CanSee("1"))
}

func TestPrincipal_Valid(t *testing.T) {
	assert.True(t, Principal{Username: "alice"}.Valid())
	assert.False(t, Principal{Username: "  "}.Valid())
}
