package application

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/pkg/eventbus"
)

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBusWithError
	Logger   *logrus.Logger
}

func New(opts *ApplicationOptions) Application {
	return &application{
		pool:           opts.Pool,
		eventPublisher: opts.EventBus,
		logger:         opts.Logger,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]any),
	}
}

// application with a dynamically extendable service registry
type application struct {
	mu             sync.RWMutex
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBusWithError
	logger         *logrus.Logger
	services       map[reflect.Type]any
	controllers    map[string]Controller
	middleware     []mux.MiddlewareFunc
	background     []BackgroundJob
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBusWithError {
	return app.eventPublisher
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]mux.MiddlewareFunc(nil), app.middleware...)
}

// Controllers returns the registered controllers ordered by key so routing is deterministic.
func (app *application) Controllers() []Controller {
	app.mu.RLock()
	defer app.mu.RUnlock()
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Controller, 0, len(keys))
	for _, k := range keys {
		out = append(out, app.controllers[k])
	}
	return out
}

func (app *application) RegisterControllers(controllers ...Controller) {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.middleware = append(app.middleware, middleware...)
}

func (app *application) RegisterBackground(jobs ...BackgroundJob) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.background = append(app.background, jobs...)
}

func (app *application) Background() []BackgroundJob {
	app.mu.RLock()
	defer app.mu.RUnlock()
	return append([]BackgroundJob(nil), app.background...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...any) {
	app.mu.Lock()
	defer app.mu.Unlock()
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service any) any {
	app.mu.RLock()
	defer app.mu.RUnlock()
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}
