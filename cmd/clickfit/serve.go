package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kdsmith18542/clickfit/config"
	"github.com/kdsmith18542/clickfit/database"
	"github.com/kdsmith18542/clickfit/gallery"
	"github.com/kdsmith18542/clickfit/logging"
	"github.com/kdsmith18542/clickfit/messages"
	"github.com/kdsmith18542/clickfit/observability"
	"github.com/kdsmith18542/clickfit/server"
	"github.com/kdsmith18542/clickfit/upload"
	"github.com/kdsmith18542/clickfit/users"
	"github.com/kdsmith18542/clickfit/web"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := flags.load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	shutdownTelemetry, err := observability.Init(observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Environment:    cfg.Env,
		EnableTracing:  cfg.Telemetry.EnableTracing,
		EnableMetrics:  cfg.Telemetry.EnableMetrics,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "err", err)
		}
	}()

	msgs, err := messages.NewManager(cfg.DefaultLocale)
	if err != nil {
		return err
	}

	imgs, err := openImages(ctx, cfg, logger, false)
	if err != nil {
		return err
	}
	defer imgs.Close()

	hub := gallery.NewHub(logger.Named("events"), cfg.CORSOrigin)
	imgs.gallery.SetPublisher(hub)

	if dropped, err := imgs.gallery.Reconcile(ctx); err != nil {
		logger.Warn("catalog reconcile failed", "err", err)
	} else if len(dropped) > 0 {
		logger.Info("dropped stale catalog records", "count", len(dropped))
	}

	processor := upload.NewProcessor(imgs.store, imgs.policy)
	processor.OnSuccess(imgs.gallery.Record)
	processor.OnError(func(ctx context.Context, result upload.Result, err error) {
		logger.Warn("upload rejected", "file", result.OriginalName, "err", err)
	})

	var userStore *users.Store
	db, err := database.Open(ctx, cfg.DBDriver, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		logger.Warn("database unavailable, user routes disabled", "driver", cfg.DBDriver, "err", err)
	} else {
		defer db.Close()
		userStore = users.NewStore(db)
	}

	srv, err := server.New(server.Options{
		Config:    cfg,
		Logger:    logger,
		Messages:  msgs,
		Processor: processor,
		Gallery:   imgs.gallery,
		Storage:   imgs.store,
		Hub:       hub,
		Users:     userStore,
		Static:    web.Static(),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })

	if cfg.StorageBackend == "local" && cfg.Watch {
		root, err := cfg.AbsUploadDir()
		if err == nil {
			var w *gallery.Watcher
			if w, err = gallery.NewWatcher(root, imgs.gallery); err == nil {
				g.Go(func() error { return w.Run(gctx) })
			}
		}
		if err != nil {
			logger.Warn("upload directory watch disabled", "err", err)
		}
	}

	return g.Wait()
}
