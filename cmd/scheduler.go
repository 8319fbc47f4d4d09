package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	coreconfig "github.com/AzielCF/az-post/core/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the publishing scheduler without the HTTP surface",
	Run:   schedulerWorker,
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run a single scheduler pass and print the report",
	Run:   schedulerTick,
}

func init() {
	schedulerCmd.AddCommand(tickCmd)
	rootCmd.AddCommand(schedulerCmd)
}

func schedulerWorker(_ *cobra.Command, _ []string) {
	cfg := coreconfig.Global
	if !cfg.Scheduler.Enabled {
		logrus.Fatalln("[SCHEDULER] SCHEDULER_ENABLED is false, nothing to run")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		logrus.Fatalf("[SCHEDULER] %v", err)
	}
	defer app.Close()
	if err := app.migrate(ctx); err != nil {
		logrus.Fatalf("[SCHEDULER] %v", err)
	}

	app.startWorkers(ctx, true)
	logrus.Infof("[SCHEDULER] worker running every %s", cfg.Scheduler.Interval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logrus.Info("[SCHEDULER] Reception of termination signal, shutting down gracefully...")
}

func schedulerTick(_ *cobra.Command, _ []string) {
	ctx := context.Background()
	app, err := buildApplication(ctx, coreconfig.Global)
	if err != nil {
		logrus.Fatalf("[SCHEDULER] %v", err)
	}
	defer app.Close()
	if err := app.migrate(ctx); err != nil {
		logrus.Fatalf("[SCHEDULER] %v", err)
	}

	report := app.engine.Tick(ctx)
	if report.Skipped {
		logrus.Warn("[SCHEDULER] another pass is in progress, tick skipped")
		return
	}
	for _, r := range report.Results {
		if r.Error != "" {
			logrus.Warnf("[SCHEDULER] %s/%s %s: %s", r.TenantID, r.PostID, r.Outcome, r.Error)
			continue
		}
		logrus.Infof("[SCHEDULER] %s/%s %s", r.TenantID, r.PostID, r.Outcome)
	}
	logrus.Infof("[SCHEDULER] tick over %d tenants done in %s", report.Tenants, report.Duration)
}
