package constants

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ContextKey string

const (
	TxKey        ContextKey = "tx"
	PoolKey      ContextKey = "pool"
	LoggerKey    ContextKey = "logger"
	RequestStart ContextKey = "request_start"
	RequestIDKey ContextKey = "request_id"
	TenantIDKey  ContextKey = "tenant_id"
	PrincipalKey ContextKey = "principal"
)

// Validate reports field errors under their json names.
var Validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}
