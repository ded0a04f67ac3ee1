package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/schemagov/pkg/commands"
	"github.com/iota-uz/schemagov/pkg/configuration"
)

func newDirectionCmd(use, short string, dir commands.Direction) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conf := configuration.Use()
			defer conf.Unload()
			return commands.Migrate(cmd.Context(), conf.Database.Opts, dir)
		},
	}
}
