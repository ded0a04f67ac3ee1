package modules

import (
	"github.com/iota-uz/schemagov/modules/schemas"
	"github.com/iota-uz/schemagov/pkg/application"
	"github.com/iota-uz/schemagov/pkg/authz"
	"github.com/iota-uz/schemagov/pkg/configuration"
)

// BuiltInModules lists the modules cmd/server loads.
func BuiltInModules(conf *configuration.Configuration, authzSvc *authz.Service) []application.Module {
	return []application.Module{
		schemas.NewModule(&schemas.ModuleOptions{
			Configuration: conf,
			Authz:         authzSvc,
			Logger:        conf.Logger(),
		}),
	}
}

func Load(app application.Application, externalModules ...application.Module) error {
	for _, module := range externalModules {
		if err := module.Register(app); err != nil {
			return err
		}
	}
	return nil
}
