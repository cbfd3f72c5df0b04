package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCrashCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "crash",
		Short: "Ask the backend service to crash and exit",
		Long: `Crash sends the crash-and-exit request, used to verify crash recovery
and crash-log handling end to end. The backend is expected to die rather
than reply, so the command reports success when the request times out or
the connection is interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := state.openSession()
			if err != nil {
				return err
			}
			sk.Crash(context.Background())
			color.Yellow("crash request dispatched")
			return nil
		},
	}
}
