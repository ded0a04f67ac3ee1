package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/internal/server"
	"github.com/iota-uz/schemagov/modules"
	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/authz"
	"github.com/iota-uz/schemagov/pkg/configuration"
	"github.com/iota-uz/schemagov/pkg/eventbus"
	"github.com/iota-uz/schemagov/pkg/logging"
	"github.com/iota-uz/schemagov/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	defer conf.Unload()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		tracingCleanup := logging.SetupTracing(
			context.Background(),
			conf.OpenTelemetry.ServiceName,
			conf.OpenTelemetry.TempoURL,
		)
		defer tracingCleanup()
		logger.Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	authzSvc, err := authz.NewService(authz.ConfigFrom(conf))
	if err != nil {
		log.Fatalf("failed to initialize authz: %v", err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules(conf, authzSvc)...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	startBackground(ctx, app, logger)

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}
	log.Printf("Listening on: %s\n", conf.SocketAddress)
	if err := serverInstance.Start(ctx, conf.SocketAddress); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}

func startBackground(ctx context.Context, app application.Application, logger *logrus.Logger) {
	for _, job := range app.Background() {
		jobLog := logger.WithField("job", job.Name)
		go func(job application.BackgroundJob) {
			if err := job.Run(ctx); err != nil && ctx.Err() == nil {
				jobLog.WithError(err).Error("background job stopped")
			}
		}(job)
	}
}
