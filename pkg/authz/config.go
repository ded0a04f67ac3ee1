package authz

import (
	"errors"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/schemagov/pkg/configuration"
)

// Config points the enforcer at its casbin model, policy file and mode flag file.
// FlagProvider, when set, replaces the flag file.
type Config struct {
	ModelPath    string
	PolicyPath   string
	FlagPath     string
	FlagMode     Mode
	Logger       *logrus.Logger
	FlagProvider FlagProvider
}

func (c Config) validate() error {
	var errs []error
	if c.ModelPath == "" {
		errs = append(errs, configError("missing model path"))
	}
	if c.PolicyPath == "" {
		errs = append(errs, configError("missing policy path"))
	}
	if c.FlagPath == "" && c.FlagProvider == nil {
		errs = append(errs, configError("missing flag configuration path"))
	}
	return errors.Join(errs...)
}

func (c Config) normalized() Config {
	c.ModelPath = filepath.Clean(c.ModelPath)
	c.PolicyPath = filepath.Clean(c.PolicyPath)
	if c.FlagPath != "" {
		c.FlagPath = filepath.Clean(c.FlagPath)
	}
	c.FlagMode = modeOr(string(c.FlagMode), ModeEnforce)
	return c
}

// ConfigFrom reads the AUTHZ_* section of conf. An unknown AUTHZ_MODE enforces.
func ConfigFrom(conf *configuration.Configuration) Config {
	return Config{
		ModelPath:  conf.Authz.ModelPath,
		PolicyPath: conf.Authz.PolicyPath,
		FlagPath:   conf.Authz.FlagConfigPath,
		FlagMode:   modeOr(conf.Authz.Mode, ModeEnforce),
		Logger:     conf.Logger(),
	}
}

func DefaultConfig() Config {
	return ConfigFrom(configuration.Use())
}
