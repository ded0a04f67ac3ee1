package schemas

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/schemagov/modules/schemas/services"
	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/configuration"
	"github.com/iota-uz/schemagov/pkg/eventbus"
)

func testConfiguration() *configuration.Configuration {
	conf := &configuration.Configuration{}
	conf.Outbox.Table = "public.schemas_outbox"
	conf.Schemas.RegistryTimeout = time.Second
	conf.Schemas.PrincipalHeader = "X-Authenticated-User"
	conf.Schemas.LoginURL = "http://localhost:3200/login"
	conf.Mail.DefaultDomain = "corp.example"
	return conf
}

func newTestApp(t *testing.T) application.Application {
	t.Helper()
	logger, _ := test.NewNullLogger()
	return application.New(&application.ApplicationOptions{
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
}

func TestModule_RegistersEngineAndMailSubscriber(t *testing.T) {
	logger, _ := test.NewNullLogger()
	app := newTestApp(t)

	err := NewModule(&ModuleOptions{Configuration: testConfiguration(), Logger: logger}).Register(app)
	require.NoError(t, err)

	require.NotNil(t, app.Service(services.SchemaRequestService{}))
	require.Len(t, app.Controllers(), 1)
	require.Equal(t, "/schemas/api", app.Controllers()[0].Key())
	require.Equal(t, 1, app.EventPublisher().SubscribersCount())
	require.Empty(t, app.Background())
}

func TestModule_RejectsBadOutboxTable(t *testing.T) {
	logger, _ := test.NewNullLogger()
	conf := testConfiguration()
	conf.Outbox.Table = "a.b.c"

	err := NewModule(&ModuleOptions{Configuration: conf, Logger: logger}).Register(newTestApp(t))
	require.Error(t, err)
}

func TestModule_RelayNeedsPool(t *testing.T) {
	logger, _ := test.NewNullLogger()
	conf := testConfiguration()
	conf.Outbox.RelayEnabled = true

	err := NewModule(&ModuleOptions{Configuration: conf, Logger: logger}).Register(newTestApp(t))
	require.Error(t, err)
}

func TestModule_InvalidMailSender(t *testing.T) {
	logger, _ := test.NewNullLogger()
	conf := testConfiguration()
	conf.Mail.Enabled = true
	conf.Mail.Host = "localhost"
	conf.Mail.Port = 25
	conf.Mail.From = "not an address"

	err := NewModule(&ModuleOptions{Configuration: conf, Logger: logger}).Register(newTestApp(t))
	require.Error(t, err)
}
