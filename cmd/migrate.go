package cmd

import (
	"context"

	coreconfig "github.com/AzielCF/az-post/core/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Run: func(_ *cobra.Command, _ []string) {
		ctx := context.Background()
		app, err := buildApplication(ctx, coreconfig.Global)
		if err != nil {
			logrus.Fatalf("[MIGRATE] %v", err)
		}
		defer app.Close()

		if err := app.migrate(ctx); err != nil {
			logrus.Fatalf("[MIGRATE] %v", err)
		}
		logrus.Info("[MIGRATE] schema is up to date")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
