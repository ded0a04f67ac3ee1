package schemarequest

import (
	"fmt"
	"strings"
	"time"
)

type Status int

const (
	StatusCreated Status = iota + 1
	StatusApproved
	StatusDeclined
)

// String returns the value stored in the status column.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusApproved:
		return "approved"
	case StatusDeclined:
		return "declined"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) Terminal() bool {
	switch s {
	case StatusApproved, StatusDeclined:
		return true
	case StatusCreated:
		return false
	default:
		return false
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(s.String())), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus accepts both the stored and the API spelling ("created", "CREATED").
func ParseStatus(v string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "created":
		return StatusCreated, nil
	case "approved":
		return StatusApproved, nil
	case "declined":
		return StatusDeclined, nil
	default:
		return 0, fmt.Errorf("unknown schema request status %q", v)
	}
}

type OperationType int

const (
	OperationCreate OperationType = iota + 1
)

func (o OperationType) String() string {
	switch o {
	case OperationCreate:
		return "create"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

func (o OperationType) MarshalText() ([]byte, error) {
	return []byte(strings.ToUpper(o.String())), nil
}

func (o *OperationType) UnmarshalText(b []byte) error {
	parsed, err := ParseOperationType(string(b))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func ParseOperationType(v string) (OperationType, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "create":
		return OperationCreate, nil
	default:
		return 0, fmt.Errorf("unknown schema request operation %q", v)
	}
}

// SchemaRequest asks for a schema to be registered for a topic in one environment.
// TenantID, TopicName and EnvironmentID never change after creation.
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
	OperationType OperationType
	Status        Status
	Requestor     string
	Approver      string
	DeclineReason string
	RequestTime   time.Time
	ApprovedTime  *time.Time
}
