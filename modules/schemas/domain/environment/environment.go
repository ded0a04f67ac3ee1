package environment

import (
	"context"
	"errors"
)

type Type string

const (
	TypeKafka          Type = "kafka"
	TypeSchemaRegistry Type = "schemaregistry"
)

var ErrNotFound = errors.New("environment not found")

// Environment is a deployment target bound to one cluster of a tenant.
type Environment struct {
	ID        string
	TenantID  int
	Name      string
	Type      Type
	ClusterID int
}

// Cluster holds the connection details of a registry or broker cluster.
type Cluster struct {
	ID       int
	TenantID int
	Name     string
	Protocol string
	// Endpoint is host:port or a full base URL.
	Endpoint string
}

type Repository interface {
	GetByID(ctx context.Context, tenantID int, id string) (*Environment, error)
	ListByType(ctx context.Context, tenantID int, t Type) ([]*Environment, error)
	Cluster(ctx context.Context, tenantID int, clusterID int) (*Cluster, error)
}
