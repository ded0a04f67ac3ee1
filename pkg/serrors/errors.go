package serrors

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// BaseError is a coded error that carries a locale key for user-facing messages.
type BaseError struct {
	Code         string            `json:"code"`
	Message      string            `json:"message"`
	LocaleKey    string            `json:"-"`
	TemplateData map[string]string `json:"-"`
}

func NewError(code, message, localeKey string) *BaseError {
	return &BaseError{
		Code:      code,
		Message:   message,
		LocaleKey: localeKey,
	}
}

func (e *BaseError) Error() string {
	return e.Message
}

// Is matches any BaseError with the same code.
func (e *BaseError) Is(target error) bool {
	t, ok := target.(*BaseError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithTemplateData returns a copy of e carrying data for message interpolation.
func (e *BaseError) WithTemplateData(data map[string]string) *BaseError {
	cp := *e
	cp.TemplateData = data
	return &cp
}

// ValidationErrors maps a field name to its validation error.
type ValidationErrors map[string]*BaseError

func (v ValidationErrors) Error() string {
	parts := make([]string, 0, len(v))
	for field, err := range v {
		parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
	}
	return strings.Join(parts, "; ")
}

// Messages flattens the errors into field -> message.
func (v ValidationErrors) Messages() map[string]string {
	out := make(map[string]string, len(v))
	for field, err := range v {
		out[field] = err.Message
	}
	return out
}

func NewFieldRequiredError(field, localeKey string) *BaseError {
	return NewError("FIELD_REQUIRED", fmt.Sprintf("%s is required", field), localeKey).
		WithTemplateData(map[string]string{"field": field})
}

// ProcessValidatorErrors converts validator output into ValidationErrors.
// fieldLocaleKey maps a struct field name to a locale key; empty keys fall back to the field name.
func ProcessValidatorErrors(errs validator.ValidationErrors, fieldLocaleKey func(string) string) ValidationErrors {
	out := make(ValidationErrors, len(errs))
	for _, fe := range errs {
		key := fieldLocaleKey(fe.Field())
		if key == "" {
			key = fe.Field()
		}
		var msg string
		switch fe.Tag() {
		case "required":
			msg = fmt.Sprintf("%s is required", fe.Field())
		case "min":
			msg = fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
		case "max":
			msg = fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
		case "oneof":
			msg = fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param())
		default:
			msg = fmt.Sprintf("%s is invalid", fe.Field())
		}
		out[fe.Field()] = NewError("VALIDATION_"+strings.ToUpper(fe.Tag()), msg, key).
			WithTemplateData(map[string]string{"field": fe.Field(), "param": fe.Param()})
	}
	return out
}
