package persistence

import (
	"fmt"

	"github.com/iota-uz/schemagov/modules/schemas/domain/directory"
	"github.com/iota-uz/schemagov/modules/schemas/domain/environment"
	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
	"github.com/iota-uz/schemagov/modules/schemas/infrastructure/persistence/models"
)

func toDBSchemaRequest(r *schemarequest.SchemaRequest) *models.SchemaRequest {
	return &models.SchemaRequest{
		ID:            r.ID,
		TenantID:      r.TenantID,
		TeamID:        r.TeamID,
		TopicName:     r.TopicName,
		EnvironmentID: r.EnvironmentID,
		SchemaVersion: r.SchemaVersion,
		SchemaFull:    r.SchemaFull,
		Remarks:       r.Remarks,
		ForceRegister: r.ForceRegister,
		OperationType: r.OperationType.String(),
		Status:        r.Status.String(),
		Requestor:     r.Requestor,
		Approver:      nullable(r.Approver),
		DeclineReason: nullable(r.DeclineReason),
		RequestTime:   r.RequestTime,
		ApprovedTime:  r.ApprovedTime,
	}
}

func toDomainSchemaRequest(row *models.SchemaRequest) (*schemarequest.SchemaRequest, error) {
	status, err := schemarequest.ParseStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("schema request %d: %w", row.ID, err)
	}
	op, err := schemarequest.ParseOperationType(row.OperationType)
	if err != nil {
		return nil, fmt.Errorf("schema request %d: %w", row.ID, err)
	}
	return &schemarequest.SchemaRequest{
		ID:            row.ID,
		TenantID:      row.TenantID,
		TeamID:        row.TeamID,
		TopicName:     row.TopicName,
		EnvironmentID: row.EnvironmentID,
		SchemaVersion: row.SchemaVersion,
		SchemaFull:    row.SchemaFull,
		Remarks:       row.Remarks,
		ForceRegister: row.ForceRegister,
		OperationType: op,
		Status:        status,
		Requestor:     row.Requestor,
		Approver:      deref(row.Approver),
		DeclineReason: deref(row.DeclineReason),
		RequestTime:   row.RequestTime,
		ApprovedTime:  row.ApprovedTime,
	}, nil
}

func toDomainEnvironment(row *models.Environment) *environment.Environment {
	return &environment.Environment{
		ID:        row.ID,
		TenantID:  row.TenantID,
		Name:      row.Name,
		Type:      environment.Type(row.Type),
		ClusterID: row.ClusterID,
	}
}

func toDomainCluster(row *models.Cluster) *environment.Cluster {
	return &environment.Cluster{
		ID:       row.ID,
		TenantID: row.TenantID,
		Name:     row.Name,
		Protocol: row.Protocol,
		Endpoint: row.Endpoint,
	}
}

func toDomainUser(row *models.User) *directory.User {
	return &directory.User{
		Username: row.Username,
		TenantID: row.TenantID,
		TeamID:   row.TeamID,
		Role:     row.Role,
		Email:    deref(row.Email),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
