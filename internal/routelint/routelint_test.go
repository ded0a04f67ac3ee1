package routelint

import (
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	internalserver "github.com/iota-uz/schemagov/internal/server"
	"github.com/iota-uz/schemagov/modules"
	"github.com/iota-uz/schemagov/modules/schemas"
	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/configuration"
	"github.com/iota-uz/schemagov/pkg/eventbus"
	"github.com/iota-uz/schemagov/pkg/metrics"
	"github.com/iota-uz/schemagov/pkg/routing"
)

func TestServerRoutes_AllClassified(t *testing.T) {
	router := buildServerRouter(t)

	rules, err := routing.LoadAllowlist("", "server")
	require.NoError(t, err)
	classifier := routing.NewClassifier(rules)

	var unclassified []string
	for _, p := range collectRoutePaths(t, router) {
		if classifier.ClassifyPath(p) == routing.RouteClassUnknown {
			unclassified = append(unclassified, p)
		}
	}
	require.Empty(t, unclassified, "routes missing from config/routing/allowlist.yaml")
}

func TestServerRoutes_APIUnderModulePrefix(t *testing.T) {
	router := buildServerRouter(t)

	for _, p := range collectRoutePaths(t, router) {
		if strings.Contains(p, "/api") {
			require.True(t, routing.HasPathPrefixOnBoundary(p, "/schemas/api"), "api route outside /schemas/api: %s", p)
		}
	}
}

func buildServerRouter(t *testing.T) *mux.Router {
	t.Helper()

	logger, _ := test.NewNullLogger()
	conf := &configuration.Configuration{}
	conf.Outbox.Table = "public.schemas_outbox"
	conf.Schemas.RegistryTimeout = time.Second
	conf.Schemas.PrincipalHeader = "X-Authenticated-User"

	app := application.New(&application.ApplicationOptions{
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	err := modules.Load(app, schemas.NewModule(&schemas.ModuleOptions{Configuration: conf, Logger: logger}))
	require.NoError(t, err)
	app.RegisterControllers(metrics.NewPrometheusController(""))

	srv, err := internalserver.Default(&internalserver.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
	})
	require.NoError(t, err)
	return srv.Router()
}

func collectRoutePaths(t *testing.T, router *mux.Router) []string {
	t.Helper()

	var paths []string
	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		p := routePath(route)
		if strings.TrimSpace(p) != "" {
			paths = append(paths, p)
		}
		return nil
	})
	require.NoError(t, err)

	sort.Strings(paths)
	return paths
}

func routePath(route *mux.Route) string {
	if route == nil {
		return ""
	}
	if tmpl, err := route.GetPathTemplate(); err == nil {
		return tmpl
	}
	regexp, err := route.GetPathRegexp()
	if err != nil {
		return ""
	}
	result := strings.TrimPrefix(regexp, "^")
	return strings.TrimSuffix(result, "$")
}
