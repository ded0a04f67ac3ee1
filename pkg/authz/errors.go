package authz

import (
	"fmt"

	"github.com/iota-uz/schemagov/pkg/serrors"
)

const (
	errorCodeForbidden = "AUTHZ_FORBIDDEN"
	errorLocaleKey     = "Authorization.PermissionDenied"
)

// ErrForbidden matches (errors.Is) every denial returned by Service.Authorize.
var ErrForbidden = serrors.NewError(errorCodeForbidden, "permission denied", errorLocaleKey)

func forbiddenError(req Request) *serrors.BaseError {
	return ErrForbidden.WithTemplateData(map[string]string{
		"object":  req.Object,
		"action":  req.Action,
		"domain":  req.Domain,
		"subject": req.Subject,
	})
}

func configError(msg string, args ...any) error {
	return fmt.Errorf("authz: "+msg, args...)
}
