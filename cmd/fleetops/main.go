// Command fleetops runs the fleet API and its maintenance tasks.
package main

import (
	"context"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"fleetops/internal/buildinfo"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	root := &cobra.Command{
		Use:           "fleetops",
		Short:         "Drivers, vehicles, orders and routes API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (yaml)")

	serve := newServeCmd(&cfgFile)
	root.RunE = serve.RunE
	root.AddCommand(
		serve,
		newMigrateCmd(&cfgFile),
		newSeedCmd(&cfgFile),
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), buildinfo.String())
			},
		},
	)
	return root
}
