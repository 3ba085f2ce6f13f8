package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"fleetops/internal/seed"
)

func newMigrateCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig(*cfgFile)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return fmt.Errorf("migrate: database url is not configured")
			}
			st, err := openStore(cmd.Context(), cfg, log, true)
			if err != nil {
				return err
			}
			return st.Close()
		},
	}
}

func newSeedCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load a YAML dataset through the service layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), *cfgFile)
			if err != nil {
				return err
			}
			defer a.Close()
			res, err := seed.LoadFile(cmd.Context(), a.svc, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "drivers=%d vehicles=%d orders=%d retailPoints=%d routes=%d\n",
				res.Drivers, res.Vehicles, res.Orders, res.RetailPoints, res.Routes)
			return nil
		},
	}
}
