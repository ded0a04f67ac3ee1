package dtos

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
)

func TestSubmitSchemaRequestDTO_Ok(t *testing.T) {
	dto := &SubmitSchemaRequestDTO{TopicName: " orders ", Environment: "1", SchemaFull: `{}`}
	errs, ok := dto.Ok()
	require.True(t, ok, errs)

	in := dto.ToInput()
	assert.Equal(t, "orders", in.TopicName)
	assert.Equal(t, "1", in.EnvironmentID)

	errs, ok = (&SubmitSchemaRequestDTO{}).Ok()
	require.False(t, ok)
	assert.Equal(t, "topic_name is required", errs["topic_name"])
	assert.Equal(t, "environment is required", errs["environment"])
	assert.Contains(t, errs, "schema_full")
}

func TestPromoteSchemaDTO_Ok(t *testing.T) {
	dto := &PromoteSchemaDTO{TopicName: "orders", SourceEnvironment: "1", TargetEnvironment: "1", SchemaVersion: 0}
	errs, ok := dto.Ok()
	require.False(t, ok)
	assert.Contains(t, errs, "target_environment")
	assert.Contains(t, errs, "schema_version")

	dto.TargetEnvironment, dto.SchemaVersion = "2", 3
	_, ok = dto.Ok()
	require.True(t, ok)
	assert.Equal(t, 3, dto.ToInput().SchemaVersion)
}

func TestListRequestsQuery_ToParams(t *testing.T) {
	q := &ListRequestsQuery{Status: "CREATED", OperationType: "create", Order: "ASC_REQUESTED_TIME", PageNo: ">", CurrentPage: "2"}
	_, ok := q.Ok()
	require.True(t, ok)

	params, err := q.ToParams()
	require.NoError(t, err)
	require.NotNil(t, params.Status)
	assert.Equal(t, schemarequest.StatusCreated, *params.Status)
	assert.Equal(t, schemarequest.OperationCreate, *params.OperationType)
	assert.Equal(t, ">", params.PageNo)

	errs, ok := (&ListRequestsQuery{Order: "sideways"}).Ok()
	require.False(t, ok)
	assert.Contains(t, errs["order"], "must be one of")
}
