package authz

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	globalDomain          = "global"
	tenantDomainPrefix    = "tenant"
	userPrefix            = "user"
	rolePrefix            = "role"
	objectSeparator       = "."
	subjectSeparator      = ":"
	domainSeparator       = "-"
	defaultActionWildcard = "*"
)

// Attributes contain optional ABAC style attributes supplied with a request.
type Attributes map[string]any

// Request encapsulates all parameters required to evaluate a Casbin rule.
type Request struct {
	Subject    string
	Domain     string
	Object     string
	Action     string
	Attributes Attributes
}

// RequestOption mutates a Request.
type RequestOption func(*Request)

// WithAttributes assigns attributes to the enforcement request.
func WithAttributes(attrs Attributes) RequestOption {
	return func(r *Request) {
		r.Attributes = attrs
	}
}

// NewRequest constructs a Request with sane defaults.
func NewRequest(subject, domain, object, action string, opts ...RequestOption) Request {
	req := Request{
		Subject:    subject,
		Domain:     domain,
		Object:     object,
		Action:     action,
		Attributes: Attributes{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&req)
		}
	}
	return req
}

// SubjectForUser builds a subject in the form user:{username}.
func SubjectForUser(username string) string {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		username = "anonymous"
	}
	return userPrefix + subjectSeparator + username
}

// SubjectForRole returns the canonical identifier for a role-based subject.
func SubjectForRole(roleSlug string) string {
	roleSlug = strings.TrimSpace(roleSlug)
	if roleSlug == "" {
		roleSlug = "unnamed"
	}
	if strings.HasPrefix(roleSlug, rolePrefix+subjectSeparator) {
		return roleSlug
	}
	return fmt.Sprintf("%s%s%s", rolePrefix, subjectSeparator, strings.ToLower(roleSlug))
}

// DomainFromTenant converts a tenant id into a casbin domain string.
// Non-positive ids map to the global domain.
func DomainFromTenant(id int) string {
	if id <= 0 {
		return globalDomain
	}
	return tenantDomainPrefix + domainSeparator + strconv.Itoa(id)
}

// ObjectName returns the canonical module.resource string, lowercased.
func ObjectName(module, resource string) string {
	module = strings.ToLower(strings.TrimSpace(module))
	resource = strings.ToLower(strings.TrimSpace(resource))
	if module == "" {
		module = "global"
	}
	if resource == "" {
		resource = "resource"
	}
	return module + objectSeparator + resource
}

// NormalizeAction returns a normalized action string.
func NormalizeAction(action string) string {
	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		return defaultActionWildcard
	}
	return action
}
