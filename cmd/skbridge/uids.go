package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newUIDsCommand(state *rootState) *cobra.Command {
	return &cobra.Command{
		Use:   "uids <name>...",
		Short: "Intern dotted names on the backend and print their handles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sk, err := state.openSession()
			if err != nil {
				return err
			}
			for _, name := range args {
				id := sk.UIDForName(name)
				back := sk.UIDName(id)
				line := fmt.Sprintf("%-10d %s", id, name)
				if back != name {
					line += color.RedString(" (resolves back to %q)", back)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
