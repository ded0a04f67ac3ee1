package schemas

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/modules/schemas/infrastructure/mail"
	schemasoutbox "github.com/iota-uz/schemagov/modules/schemas/infrastructure/outbox"
	"github.com/iota-uz/schemagov/modules/schemas/infrastructure/persistence"
	"github.com/iota-uz/schemagov/modules/schemas/infrastructure/registry"
	"github.com/iota-uz/schemagov/modules/schemas/presentation/controllers"
	"github.com/iota-uz/schemagov/modules/schemas/services"
	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/authz"
	"github.com/iota-uz/schemagov/pkg/composables"
	"github.com/iota-uz/schemagov/pkg/configuration"
	"github.com/iota-uz/schemagov/pkg/outbox"
)

type ModuleOptions struct {
	Configuration *configuration.Configuration
	Authz         *authz.Service
	Logger        *logrus.Logger
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	conf := m.options.Configuration
	logger := m.options.Logger.WithField("module", m.Name())

	requests := persistence.NewSchemaRequestRepository()
	environments := persistence.NewEnvironmentRepository()
	topics := persistence.NewTopicRepository()
	dir := persistence.NewDirectoryRepository()

	var cache services.ScopeCache
	if conf.Schemas.ScopeCacheEnabled {
		redisCache, err := services.NewRedisScopeCache(conf.RedisURL, conf.Schemas.ScopeCacheTTL)
		if err != nil {
			return err
		}
		cache = redisCache
	}
	resolver := services.NewDirectoryResolver(dir, cache)

	table, err := outbox.ParseIdentifier(conf.Outbox.Table)
	if err != nil {
		return err
	}

	app.RegisterServices(
		services.NewSchemaRequestService(services.SchemaRequestDeps{
			Requests:     requests,
			Environments: environments,
			Topics:       topics,
			Directory:    dir,
			Registry:     registry.NewClient(environments, conf.Schemas.RegistryTimeout),
			Gate:         services.NewCasbinGate(m.options.Authz, resolver),
			Resolver:     resolver,
			Sink:         services.NewOutboxSink(outbox.NewPublisher(table)),
		}, services.SchemaRequestServiceOptions{
			ValidateOnSave: conf.Schemas.ValidateCompatibilityOnSave,
			LoginURL:       conf.Schemas.LoginURL,
		}),
	)

	app.RegisterControllers(
		controllers.NewSchemaRequestController(app, conf.Schemas.PrincipalHeader),
	)

	var mailer services.Mailer = mail.NewLogMailer(logger)
	if conf.Mail.Enabled {
		smtpMailer, err := mail.NewSMTPMailer(mail.Options{
			Host:     conf.Mail.Host,
			Port:     conf.Mail.Port,
			Username: conf.Mail.Username,
			Password: conf.Mail.Password,
			From:     conf.Mail.From,
		})
		if err != nil {
			return err
		}
		mailer = smtpMailer
	}
	handler := services.NewMailHandler(dir, mailer, conf.Mail.DefaultDomain, logger).
		WithBaseContext(composables.WithPool(context.Background(), app.DB()))
	app.EventPublisher().Subscribe(handler.Handle)

	return m.registerOutbox(app, table, logger)
}

func (m *Module) registerOutbox(app application.Application, table pgx.Identifier, logger *logrus.Entry) error {
	conf := m.options.Configuration.Outbox
	outboxLog := logger.WithFields(logrus.Fields{"component": "outbox", "table": outbox.TableLabel(table)})

	if conf.RelayEnabled {
		relay, err := outbox.NewRelay(app.DB(), table, schemasoutbox.NewDispatcher(app.EventPublisher()), outbox.RelayOptions{
			PollInterval:    conf.RelayPollInterval,
			BatchSize:       conf.RelayBatchSize,
			LockTTL:         conf.RelayLockTTL,
			MaxAttempts:     conf.RelayMaxAttempts,
			SingleActive:    conf.RelaySingleActive,
			LastErrorMaxLen: conf.LastErrorMaxBytes,
			DispatchTimeout: conf.RelayDispatchTimeout,
			Logger:          outboxLog,
		})
		if err != nil {
			return err
		}
		app.RegisterBackground(application.BackgroundJob{Name: "schemas.outbox.relay", Run: relay.Run})
	}

	if conf.CleanerEnabled {
		cleaner, err := outbox.NewCleaner(app.DB(), table, outbox.CleanerOptions{
			Interval:  conf.CleanerInterval,
			Retention: conf.CleanerRetention,
			Logger:    outboxLog,
		})
		if err != nil {
			return err
		}
		app.RegisterBackground(application.BackgroundJob{Name: "schemas.outbox.cleaner", Run: cleaner.Run})
	}
	return nil
}

func (m *Module) Name() string {
	return "schemas"
}
