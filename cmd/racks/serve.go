package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/turku-citybike/racks/internal/api"
	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/config"
	"github.com/turku-citybike/racks/internal/db"
	"github.com/turku-citybike/racks/internal/location"
	"github.com/turku-citybike/racks/internal/logging"
	"github.com/turku-citybike/racks/internal/racklist"
)

const cleanupInterval = time.Hour

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Poll the feed and serve the rack list over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("starting racks service",
		zap.String("feed", cfg.CitybikeURL),
		zap.Duration("poll_interval", cfg.PollInterval()),
		zap.String("archive", cfg.Archive.Driver),
		zap.String("location_source", cfg.Location.Source),
	)

	// ═══════════════════════════════════════════════════════
	// PHASE 1: Snapshot archive
	// ═══════════════════════════════════════════════════════
	var archive db.Archive
	if cfg.Archive.Driver != db.DriverNone {
		dsn := cfg.Archive.SQLitePath
		if cfg.Archive.Driver == db.DriverPostgres {
			dsn = cfg.Archive.DatabaseURL
		}
		archive, err = db.Open(ctx, cfg.Archive.Driver, dsn, logger.Named("db"))
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer archive.Close()

		go db.RunCleanup(ctx, archive, cfg.Retention(), cleanupInterval, logger.Named("db"))
	}

	// ═══════════════════════════════════════════════════════
	// PHASE 2: Location source
	// ═══════════════════════════════════════════════════════
	source, subject, closeSource, err := buildLocationSource(cfg, logger.Named("location"))
	if err != nil {
		return err
	}
	defer closeSource()

	// ═══════════════════════════════════════════════════════
	// PHASE 3: Rack list controller
	// ═══════════════════════════════════════════════════════
	client := citybike.NewClient(cfg.CitybikeURL, nil, cfg.HTTPTimeout(), logger.Named("citybike"))
	controller := racklist.NewController(client, source, racklist.Options{
		Interval: cfg.PollInterval(),
		Archive:  archive,
		Logger:   logger.Named("racklist"),
	})

	controllerDone := make(chan error, 1)
	go func() { controllerDone <- controller.Run(ctx) }()

	// ═══════════════════════════════════════════════════════
	// PHASE 4: HTTP server
	// ═══════════════════════════════════════════════════════
	router := api.NewRouter(api.RouterConfig{
		List:           controller,
		Archive:        archive,
		Subject:        subject,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger.Named("api"),
	})
	server := api.NewServer(":"+cfg.Port, router, logger)

	serverErr := server.Run(ctx)
	stop()
	<-controllerDone

	if serverErr != nil {
		return fmt.Errorf("server failed: %w", serverErr)
	}
	logger.Info("racks service stopped")
	return nil
}

// buildLocationSource returns the configured source and, for the manual
// source, the subject the HTTP API pushes positions into.
func buildLocationSource(cfg *config.Config, logger *zap.Logger) (location.Source, *location.Subject, func(), error) {
	noop := func() {}

	switch cfg.Location.Source {
	case config.LocationStatic:
		coord, err := cfg.StaticCoordinate()
		if err != nil {
			return nil, nil, noop, err
		}
		if coord == nil {
			logger.Info("no static position configured, ordering by name")
		}
		return location.NewStatic(coord), nil, noop, nil

	case config.LocationRedis:
		client, err := location.NewRedisClient(cfg.Location.RedisAddr, cfg.Location.RedisPassword)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		closeClient := func() { client.Close() }
		return location.NewRedis(client, cfg.Location.Channel, logger), nil, closeClient, nil

	default:
		subject := location.NewSubject()
		return subject, subject, noop, nil
	}
}
