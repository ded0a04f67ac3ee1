package models

import "time"

type SchemaRequest struct {
	ID            int64
	TenantID      int
	TeamID        int
	TopicName     string
	EnvironmentID string
	SchemaVersion *int
	SchemaFull    string
	Remarks       string
	ForceRegister bool
	OperationType string
	Status        string
	Requestor     string
	Approver      *string
	DeclineReason *string
	RequestTime   time.Time
	ApprovedTime  *time.Time
}

type Environment struct {
	ID        string
	TenantID  int
	Name      string
	Type      string
	ClusterID int
}

type Cluster struct {
	ID       int
	TenantID int
	Name     string
	Protocol string
	Endpoint string
}

type User struct {
	Username string
	TenantID int
	TeamID   int
	Role     string
	Email    *string
}
