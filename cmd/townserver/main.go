// Package main provides the town server binary: REST administration and
// websocket subscriptions for shared virtual towns.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/town/internal/config"
	"github.com/cory-johannsen/town/internal/game/town"
	"github.com/cory-johannsen/town/internal/gameserver"
	"github.com/cory-johannsen/town/internal/observability"
	"github.com/cory-johannsen/town/internal/server"
	"github.com/cory-johannsen/town/internal/video"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	seedFile := flag.String("seed", "", "YAML file of towns to create at startup; overrides towns.seed_file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting town server",
		zap.String("http_addr", cfg.Server.Addr()),
		zap.Int("town_capacity", cfg.Towns.Capacity),
	)

	provider, err := video.NewJWTProvider(cfg.Video)
	if err != nil {
		logger.Fatal("creating video provider", zap.Error(err))
	}

	directory := town.NewDirectory(town.DirectoryConfig{Capacity: cfg.Towns.Capacity}, provider, logger)

	if *seedFile == "" {
		*seedFile = cfg.Towns.SeedFile
	}
	if *seedFile != "" {
		seedStart := time.Now()
		seeds, err := town.LoadSeedFile(*seedFile)
		if err != nil {
			logger.Fatal("loading town seed file", zap.String("path", *seedFile), zap.Error(err))
		}
		seeded, err := directory.Seed(seeds)
		if err != nil {
			logger.Fatal("seeding towns", zap.Error(err))
		}
		reportSeeded(logger, os.Stderr, seeded)
		logger.Info("town seed complete",
			zap.Int("towns", len(seeded)),
			zap.Duration("elapsed", time.Since(seedStart)),
		)
	}

	router := gameserver.NewRouter(
		gameserver.NewAdminHandler(directory, logger),
		gameserver.NewSubscriptionHandler(directory, cfg.Server.AllowedOrigins, cfg.Server.SendQueue, logger),
	)
	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	// Wire lifecycle; services stop in reverse order, so towns close (and
	// subscribers receive townClosing) before the listener shuts down.
	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lifecycle.Add("http", server.NewHTTPService(httpServer, logger))
	lifecycle.Add("towns", &server.FuncService{
		StopFn: func(context.Context) error {
			directory.CloseAll()
			return nil
		},
	})

	logger.Info("town server initialized",
		zap.Duration("startup", time.Since(start)),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
