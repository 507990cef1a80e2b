package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dispatchd/dispatchd/internal/api"
	"github.com/dispatchd/dispatchd/internal/channel"
	"github.com/dispatchd/dispatchd/internal/config"
	"github.com/dispatchd/dispatchd/internal/database"
	"github.com/dispatchd/dispatchd/internal/database/models"
	"github.com/dispatchd/dispatchd/internal/directory"
	"github.com/dispatchd/dispatchd/internal/listing"
	"github.com/dispatchd/dispatchd/internal/metrics"
	"github.com/dispatchd/dispatchd/internal/pbx"
	"github.com/dispatchd/dispatchd/internal/recording"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(cfg.SlogHandler(os.Stdout)))

	slog.Info("starting dispatchd",
		"http_port", cfg.HTTPPort,
		"data_dir", cfg.DataDir,
		"listing_dir", cfg.ListingDir,
	)

	db, err := database.Open(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	operators := database.NewOperatorRepository(db)
	statuses := database.NewChannelStatusRepository(db)
	audit := database.NewTerminationLogRepository(db)

	// The console slots are fixed at startup; stale slots are pruned.
	consoleIDs := cfg.ConsoleIDList()
	if err := statuses.Seed(appCtx, consoleIDs); err != nil {
		slog.Error("failed to seed console slots", "error", err)
		os.Exit(1)
	}
	slog.Info("console slots seeded", "request_ids", consoleIDs)

	bootstrapOperator(appCtx, operators, cfg)

	store, err := listing.NewStore(cfg.ListingDir)
	if err != nil {
		slog.Error("failed to open listing directory", "error", err)
		os.Exit(1)
	}

	sync := directory.NewSynchronizer(directory.Sources{
		UsersConf:      cfg.UsersConf,
		SIPConf:        cfg.SIPConf,
		ExtensionsConf: cfg.ExtensionsConf,
	}, store)
	// Show the last persisted snapshot until the first sync request.
	sync.LoadFromListings()

	control := pbx.NewClient(cfg.AsteriskPath, cfg.PBXTimeout)
	resolver := channel.NewResolver(control, statuses, audit, cfg.ChannelTech)

	catalog, err := recording.NewCatalog(cfg.RecordingsDir, cfg.RetainCount, store)
	if err != nil {
		slog.Error("failed to open recordings directory", "error", err)
		os.Exit(1)
	}
	if err := catalog.Refresh(); err != nil {
		slog.Warn("initial recording catalog refresh failed", "error", err)
	}
	recording.StartReaper(appCtx, catalog, cfg.ReapInterval)

	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics.NewCollector(
		audit,
		catalog,
		map[string]metrics.DirectorySizeProvider{
			"normal":   sync.Collection(directory.KindNormal),
			"webrtc":   sync.Collection(directory.KindWebRTC),
			"intercom": sync.Collection(directory.KindIntercom),
		},
		time.Now(),
	))

	handler := api.NewServer(cfg, api.Deps{
		Operators: operators,
		Statuses:  statuses,
		Resolver:  resolver,
		Directory: sync,
		Catalog:   catalog,
		Metrics:   promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	defer handler.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr, "tls", cfg.TLSEnabled())
		var err error
		if cfg.TLSEnabled() {
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		slog.Error("http server error", "error", err)
	}

	// Stop the reaper, then drain in-flight requests.
	appCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("dispatchd stopped")
}

// bootstrapOperator creates the initial operator account on first run.
func bootstrapOperator(ctx context.Context, operators database.OperatorRepository, cfg *config.Config) {
	count, err := operators.Count(ctx)
	if err != nil {
		slog.Error("failed to count operators", "error", err)
		os.Exit(1)
	}
	if count > 0 {
		return
	}
	if cfg.BootstrapPass == "" {
		slog.Warn("no operator accounts and no -bootstrap-pass set; logins will fail")
		return
	}

	hash, err := database.HashPassword(cfg.BootstrapPass)
	if err != nil {
		slog.Error("failed to hash bootstrap password", "error", err)
		os.Exit(1)
	}
	op := &models.Operator{Username: cfg.BootstrapUser, PasswordHash: hash}
	if err := operators.Create(ctx, op); err != nil {
		slog.Error("failed to create bootstrap operator", "error", err)
		os.Exit(1)
	}
	slog.Info("bootstrap operator created", "username", op.Username)
}
