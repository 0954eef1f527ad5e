package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/npc-swipe/internal/activity"
	"github.com/oggyb/npc-swipe/internal/app"
	"github.com/oggyb/npc-swipe/internal/auth"
	"github.com/oggyb/npc-swipe/internal/cache"
	"github.com/oggyb/npc-swipe/internal/catalog"
	"github.com/oggyb/npc-swipe/internal/config"
	"github.com/oggyb/npc-swipe/internal/db"
	"github.com/oggyb/npc-swipe/internal/logger"
	"github.com/oggyb/npc-swipe/internal/notify"
	"github.com/oggyb/npc-swipe/internal/server"
	"github.com/oggyb/npc-swipe/internal/service/admin"
	"github.com/oggyb/npc-swipe/internal/service/swipe"
)

func main() {
	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L() // slog.Logger pointer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	// Init Redis
	redisCache := cache.NewRedisCache(cfg)
	if err := redisCache.Ping(ctx); err != nil {
		log.Error("failed to connect to redis", "err", err)
		os.Exit(1)
	}
	defer redisCache.Close()

	operators, err := auth.NewVerifier(cfg.Auth.OperatorTokenHash)
	if err != nil {
		log.Error("invalid OPERATOR_TOKEN_HASH", "err", err)
		os.Exit(1)
	}
	if !operators.Enabled() {
		log.Warn("no operator token configured, operator calls are disabled")
	}

	activityLog, err := activity.OpenFile(cfg.Activity.Path)
	if err != nil {
		log.Error("failed to open activity log", "path", cfg.Activity.Path, "err", err)
		os.Exit(1)
	}
	defer activityLog.Close()

	// Inject shared dependencies into app context
	appCtx := app.New(cfg, database, redisCache, log)
	appCtx.Operators = operators
	appCtx.Activity = activityLog
	appCtx.Dispatcher = notify.NewDispatcher(notify.NewRedisSurface(redisCache, cfg.Redis.MatchChannel), log)

	if cfg.App.ENV == "development" {
		if err := db.SeedTestData(database); err != nil {
			log.Error("failed to seed", "err", err)
		}
	}
	if cfg.Catalog.SeedFile != "" {
		report, err := catalog.New(database).ImportFile(ctx, cfg.Catalog.SeedFile)
		if err != nil {
			log.Error("failed to import catalog", "file", cfg.Catalog.SeedFile, "err", err)
			os.Exit(1)
		}
		log.Info("catalog imported", "file", cfg.Catalog.SeedFile, "imported", report.Imported, "skipped", len(report.Skipped))
	}

	swipeSvc := swipe.NewService(appCtx)
	grpcServer := server.NewGRPCServer(log, swipe.NewRegistrar(appCtx))
	httpHandler := server.NewHTTPHandler(cfg, log, admin.NewHandler(appCtx, swipeSvc))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting gRPC server", "addr", cfg.GRPC.Host+":"+cfg.GRPC.Port)
		return server.StartGRPCServer(cfg, grpcServer)
	})
	g.Go(func() error {
		log.Info("starting admin HTTP server", "addr", cfg.HTTP.Host+":"+cfg.HTTP.Port)
		return server.StartHTTPServer(gctx, cfg, httpHandler)
	})
	g.Go(func() error {
		<-gctx.Done()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", "err", err)
	}
	appCtx.Dispatcher.Wait()
	log.Info("shutdown complete")
}
