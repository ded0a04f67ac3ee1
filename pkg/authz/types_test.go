package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectForUser(t *testing.T) {
	assert.Equal(t, "user:alice", SubjectForUser(" Alice "))
	assert.Equal(t, "user:anonymous", SubjectForUser(""))
}

func TestSubjectForRole(t *testing.T) {
	assert.Equal(t, "role:approver", SubjectForRole("Approver"))
	assert.Equal(t, "role:approver", SubjectForRole("role:approver"))
	assert.Equal(t, "role:unnamed", SubjectForRole(" "))
}

func TestDomainFromTenant(t *testing.T) {
	assert.Equal(t, "tenant-101", DomainFromTenant(101))
	assert.Equal(t, "global", DomainFromTenant(0))
	assert.Equal(t, "global", DomainFromTenant(-1))
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "schemas.requests", ObjectName("SCHEMAS", "Requests"))
	assert.Equal(t, "global.resource", ObjectName("", ""))
}

func TestNormalizeAction(t *testing.T) {
	assert.Equal(t, "approve", NormalizeAction(" Approve "))
	assert.Equal(t, "*", NormalizeAction(""))
}
