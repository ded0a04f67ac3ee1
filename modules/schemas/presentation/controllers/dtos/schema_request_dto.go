package dtos

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/iota-uz/schemagov/modules/schemas/domain/schemarequest"
	"github.com/iota-uz/schemagov/modules/schemas/services"
	"github.com/iota-uz/schemagov/pkg/constants"
)

type SubmitSchemaRequestDTO struct {
	TopicName     string `json:"topic_name" validate:"required,max=249"`
	Environment   string `json:"environment" validate:"required"`
	SchemaFull    string `json:"schema_full" validate:"required"`
	Remarks       string `json:"remarks" validate:"omitempty,max=100"`
	ForceRegister bool   `json:"force_register"`
}

func (dto *SubmitSchemaRequestDTO) Ok() (map[string]string, bool) {
	return validationErrors(dto)
}

func (dto *SubmitSchemaRequestDTO) ToInput() services.SubmitInput {
	return services.SubmitInput{
		TopicName:     strings.TrimSpace(dto.TopicName),
		EnvironmentID: strings.TrimSpace(dto.Environment),
		SchemaFull:    dto.SchemaFull,
		Remarks:       dto.Remarks,
		ForceRegister: dto.ForceRegister,
	}
}

type PromoteSchemaDTO struct {
	TopicName         string `json:"topic_name" validate:"required,max=249"`
	SourceEnvironment string `json:"source_environment" validate:"required"`
	TargetEnvironment string `json:"target_environment" validate:"required,nefield=SourceEnvironment"`
	SchemaVersion     int    `json:"schema_version" validate:"required,gt=0"`
	Remarks           string `json:"remarks" validate:"omitempty,max=100"`
	ForceRegister     bool   `json:"force_register"`
}

func (dto *PromoteSchemaDTO) Ok() (map[string]string, bool) {
	return validationErrors(dto)
}

func (dto *PromoteSchemaDTO) ToInput() services.PromotionInput {
	return services.PromotionInput{
		TopicName:           strings.TrimSpace(dto.TopicName),
		SourceEnvironmentID: strings.TrimSpace(dto.SourceEnvironment),
		TargetEnvironmentID: strings.TrimSpace(dto.TargetEnvironment),
		SchemaVersion:       dto.SchemaVersion,
		Remarks:             dto.Remarks,
		ForceRegister:       dto.ForceRegister,
	}
}

type DeclineRequestDTO struct {
	Reason string `json:"reason" validate:"required,max=300"`
}

func (dto *DeclineRequestDTO) Ok() (map[string]string, bool) {
	return validationErrors(dto)
}

// ListRequestsQuery mirrors the query string of GET /requests.
type ListRequestsQuery struct {
	Status        string `form:"status" json:"status" validate:"omitempty,oneof=created approved declined CREATED APPROVED DECLINED"`
	OperationType string `form:"operation_type" json:"operation_type" validate:"omitempty,oneof=create CREATE"`
	Topic         string `form:"topic" json:"topic" validate:"omitempty,max=249"`
	Environment   string `form:"env" json:"env"`
	Search        string `form:"search" json:"search" validate:"omitempty,max=249"`
	Order         string `form:"order" json:"order" validate:"omitempty,oneof=ASC_REQUESTED_TIME DESC_REQUESTED_TIME"`
	ApprovalView  bool   `form:"approval_view" json:"approval_view"`
	MyRequests    bool   `form:"my_requests" json:"my_requests"`
	PageNo        string `form:"page_no" json:"page_no"`
	CurrentPage   string `form:"current_page" json:"current_page"`
}

func (q *ListRequestsQuery) Ok() (map[string]string, bool) {
	return validationErrors(q)
}

func (q *ListRequestsQuery) ToParams() (services.ListParams, error) {
	params := services.ListParams{
		Topic:          strings.TrimSpace(q.Topic),
		Environment:    strings.TrimSpace(q.Environment),
		Search:         strings.TrimSpace(q.Search),
		Order:          q.Order,
		ApprovalView:   q.ApprovalView,
		MyRequestsOnly: q.MyRequests,
		PageNo:         q.PageNo,
		CurrentPage:    q.CurrentPage,
	}
	if q.Status != "" {
		status, err := schemarequest.ParseStatus(q.Status)
		if err != nil {
			return services.ListParams{}, err
		}
		params.Status = &status
	}
	if q.OperationType != "" {
		op, err := schemarequest.ParseOperationType(q.OperationType)
		if err != nil {
			return services.ListParams{}, err
		}
		params.OperationType = &op
	}
	return params, nil
}

func validationErrors(dto any) (map[string]string, bool) {
	errorMessages := map[string]string{}
	errs := constants.Validate.Struct(dto)
	if errs == nil {
		return errorMessages, true
	}
	var verrs validator.ValidationErrors
	if !errors.As(errs, &verrs) {
		errorMessages["_"] = errs.Error()
		return errorMessages, false
	}
	for _, err := range verrs {
		errorMessages[err.Field()] = describe(err)
	}
	return errorMessages, len(errorMessages) == 0
}

func describe(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", err.Field(), err.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	case "nefield":
		return fmt.Sprintf("%s must differ from the source environment", err.Field())
	default:
		return fmt.Sprintf("%s is invalid (%s)", err.Field(), err.Tag())
	}
}
