package application

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/schemagov/pkg/eventbus"
)

type Controller interface {
	Register(r *mux.Router)
	Key() string
}

// Module wires its services and controllers into an Application.
type Module interface {
	Name() string
	Register(app Application) error
}

type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBusWithError
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...any)
	Service(service any) any
	RegisterBackground(jobs ...BackgroundJob)
	Background() []BackgroundJob
}

// BackgroundJob is a long-running loop started by cmd/server and stopped with ctx.
type BackgroundJob struct {
	Name string
	Run  func(ctx context.Context) error
}
