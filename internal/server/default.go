package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/composables"
	"github.com/iota-uz/schemagov/pkg/configuration"
	"github.com/iota-uz/schemagov/pkg/httpapi"
	"github.com/iota-uz/schemagov/pkg/middleware"
	"github.com/iota-uz/schemagov/pkg/routing"
	"github.com/iota-uz/schemagov/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	rules, err := routing.LoadAllowlist("", "server")
	if err != nil {
		return nil, err
	}
	classifier := routing.NewClassifier(rules)

	// WithLogger opens the root span for each request.
	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, middleware.LoggerOptions{
			RequestIDHeader: conf.RequestIDHeader,
			RealIPHeader:    conf.RealIPHeader,
		}),

		middleware.TracedMiddleware("database"),
		middleware.WithPool(options.Pool),

		middleware.TracedMiddleware("cors"),
		middleware.Cors(conf.CorsOrigins...),
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		switch conf.RateLimit.Storage {
		case "redis":
			var err error
			store, err = middleware.NewRedisStore(conf.RateLimit.RedisURL)
			if err != nil {
				options.Logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			}
		default:
			store = middleware.NewMemoryStore()
		}

		middlewares = append(middlewares,
			middleware.TracedMiddleware("rateLimit"),
			skipClass(classifier, routing.RouteClassOps, middleware.RateLimit(middleware.RateLimitConfig{
				RequestsPerPeriod: conf.RateLimit.GlobalRPS,
				Store:             store,
			})),
		)
	}

	app.RegisterMiddleware(middlewares...)
	var db pinger
	if options.Pool != nil {
		db = options.Pool
	}
	app.RegisterControllers(NewHealthController(db))

	return server.NewHTTPServer(app, NotFound(), MethodNotAllowed()), nil
}

// skipClass bypasses mw for paths the classifier puts in class.
func skipClass(classifier *routing.Classifier, class routing.RouteClass, mw mux.MiddlewareFunc) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		wrapped := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if classifier.ClassifyPath(r.URL.Path) == class {
				next.ServeHTTP(w, r)
				return
			}
			wrapped.ServeHTTP(w, r)
		})
	}
}

func NotFound() http.Handler {
	return errorHandler(http.StatusNotFound, "NOT_FOUND", "route not found")
}

func MethodNotAllowed() http.Handler {
	return errorHandler(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

func errorHandler(status int, code, message string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta := map[string]string{}
		if id, ok := composables.UseRequestID(r.Context()); ok {
			meta["request_id"] = id
		}
		_ = httpapi.WriteError(w, status, code, message, meta)
	})
}
