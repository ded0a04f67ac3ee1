package composables

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/form"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/pkg/constants"
)

var ErrNoPrincipal = errors.New("no authenticated principal found in context")

var queryDecoder = form.NewDecoder()

// UseLogger returns the request logger, or a component-less entry on the standard logger.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(constants.LoggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, logger)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, constants.RequestIDKey, requestID)
}

func UseRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(constants.RequestIDKey).(string)
	return id, ok && id != ""
}

// WithUsername stores the authenticated username supplied by the upstream auth proxy.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, constants.PrincipalKey, strings.TrimSpace(username))
}

func UseUsername(ctx context.Context) (string, error) {
	username, ok := ctx.Value(constants.PrincipalKey).(string)
	if !ok || username == "" {
		return "", ErrNoPrincipal
	}
	return username, nil
}

// UseQuery decodes the request's query string into v using `form` struct tags.
func UseQuery[T any](v *T, r *http.Request) (*T, error) {
	return v, queryDecoder.Decode(v, r.URL.Query())
}
