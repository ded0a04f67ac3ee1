package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/schemagov/pkg/commands"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "migrate",
		Short:         "Schema governance database migrations and demo seed",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newDirectionCmd("up", "Apply all pending migrations", commands.DirectionUp))
	cmd.AddCommand(newDirectionCmd("down", "Roll back the latest migration", commands.DirectionDown))
	cmd.AddCommand(newDirectionCmd("status", "Print applied and pending migrations", commands.DirectionStatus))
	cmd.AddCommand(newSeedCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
