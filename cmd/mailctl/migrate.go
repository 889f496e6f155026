package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sungwon/mailrelay/internal/storage"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the registry database schema",
	}

	open := func() (*storage.Migrator, error) {
		return storage.NewMigrator(a.cfg.Database.URL, a.cfg.Database.MigrationsPath)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations completed successfully")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Down(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rollback completed successfully")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := open()
			if err != nil {
				return err
			}
			defer m.Close()

			version, dirty, ok, err := m.Version()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "No migrations have been applied")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current version: %d\nDirty: %v\n", version, dirty)
			return nil
		},
	})

	return cmd
}
