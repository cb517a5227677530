package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ourstore/storefront/database/seeders"
	"github.com/ourstore/storefront/internal/server"
	"github.com/ourstore/storefront/pkg/database"
	"github.com/ourstore/storefront/pkg/migration"
)

// storefront migrate
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := server.BootDB(ctx); err != nil {
			return err
		}
		defer server.Close()
		fmt.Println("Running migrations…")
		return migration.New(database.DB, os.Stdout).Run(ctx)
	},
}

// storefront migrate:rollback
var migrateRollbackCmd = &cobra.Command{
	Use:   "migrate:rollback",
	Short: "Roll back the last batch of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := server.BootDB(ctx); err != nil {
			return err
		}
		defer server.Close()
		fmt.Println("Rolling back last batch…")
		return migration.New(database.DB, os.Stdout).Rollback(ctx)
	},
}

// storefront migrate:status
var migrateStatusCmd = &cobra.Command{
	Use:   "migrate:status",
	Short: "Show which migrations have run",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := server.BootDB(ctx); err != nil {
			return err
		}
		defer server.Close()

		entries, err := migration.New(database.DB, os.Stdout).Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "RAN\tBATCH\tMIGRATION")
		for _, e := range entries {
			ran, batch := "no", "-"
			if e.Ran {
				ran, batch = "yes", fmt.Sprint(e.Batch)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n", ran, batch, e.Name)
		}
		return w.Flush()
	},
}

// storefront seed
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the admin account and starter catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := server.BootDB(ctx); err != nil {
			return err
		}
		defer server.Close()
		fmt.Println("Running seeders…")
		return seeders.RunAll(ctx, database.DB, os.Stdout)
	},
}
