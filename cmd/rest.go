package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/AzielCF/az-post/core/config"
	"github.com/AzielCF/az-post/ui/rest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var restCmd = &cobra.Command{
	Use:   "rest",
	Short: "Run the HTTP API, inbound webhooks and the scheduler",
	Long:  `Serve the operator API, the approval pages and the Twilio webhook, and run the publishing scheduler in the same process.`,
	Run:   restServer,
}

func init() {
	restCmd.Flags().Bool("no-scheduler", false, "serve HTTP only and leave publishing to a separate worker")
	rootCmd.AddCommand(restCmd)
}

func restServer(cmd *cobra.Command, _ []string) {
	cfg := coreconfig.Global

	if len(cfg.App.BasicAuth) == 0 {
		logrus.Fatalln("APP_BASIC_AUTH is required. Nothing should be public; please set APP_BASIC_AUTH=<user>:<secret>[,<user2>:<secret2>] and restart.")
	}
	accounts := rest.ParseBasicAuth(cfg.App.BasicAuth)
	if len(accounts) != len(cfg.App.BasicAuth) {
		logrus.Fatalln("Basic auth is not valid, please this following format <user>:<secret>")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApplication(ctx, cfg)
	if err != nil {
		logrus.Fatalf("[REST] %v", err)
	}
	if err := app.migrate(ctx); err != nil {
		logrus.Fatalf("[REST] %v", err)
	}

	deps := rest.Dependencies{
		Posts:     app.postService,
		Scheduler: app.engine,
		Status: rest.StatusSource{
			Version:   cfg.App.Version,
			StartedAt: app.startedAt,
			Scheduler: app.engine,
			Pool:      app.pool,
		},
		Gatherer: app.registry,
	}
	if app.whatsapp != nil {
		deps.Status.WhatsApp = app.whatsapp
	}
	if app.machine != nil {
		deps.Approvals = app.machine
		deps.Inbound = app.ingress
	}

	opts := rest.Options{
		BasePath:       cfg.App.BasePath,
		BasicAuth:      accounts,
		CorsOrigins:    cfg.App.CorsAllowedOrigins,
		TrustedProxies: cfg.App.TrustedProxies,
		PublicDir:      cfg.Paths.Public,
		Debug:          cfg.App.Debug,
	}
	if cfg.Twilio.ValidateSignature {
		opts.TwilioAuthToken = cfg.Twilio.AuthToken
	}
	server := rest.NewApp(deps, opts)

	noScheduler, _ := cmd.Flags().GetBool("no-scheduler")
	app.startWorkers(ctx, !noScheduler)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logrus.Info("[REST] Reception of termination signal, shutting down gracefully...")
		if err := server.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("[REST] shutdown: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%s", cfg.App.Port)
	logrus.Infof("[REST] listening on %s%s", addr, cfg.App.BasePath)
	if err := server.Listen(addr); err != nil {
		logrus.Errorf("[REST] server stopped: %v", err)
	}

	cancel()
	app.Close()
	logrus.Info("[REST] bye")
}
