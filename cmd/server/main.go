package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/huddle/internal/api"
	"github.com/lalith-99/huddle/internal/cache"
	"github.com/lalith-99/huddle/internal/config"
	"github.com/lalith-99/huddle/internal/db"
	"github.com/lalith-99/huddle/internal/middleware"
	"github.com/lalith-99/huddle/internal/observ"
	"github.com/lalith-99/huddle/internal/realtime"
	"github.com/lalith-99/huddle/internal/repository"
	"github.com/lalith-99/huddle/internal/repository/memory"
	"github.com/lalith-99/huddle/internal/repository/postgres"
	"github.com/lalith-99/huddle/internal/search"
	"github.com/lalith-99/huddle/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel, observ.FileOptions{
		Path:           cfg.LogPath,
		MaxAgeDays:     cfg.LogMaxAgeDays,
		RotationSizeMB: cfg.LogRotationSizeMB,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// SIGINT/SIGTERM cancel ctx; everything below shuts down from it.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observ.NewMetrics()

	// ---------------------------------------------------------------
	// 2. Store
	// ---------------------------------------------------------------
	var (
		store  *repository.Store
		health func(context.Context) error
	)
	switch cfg.StoreDriver {
	case "memory":
		store, _ = memory.NewStore()
		logger.Warn("using the in-memory store; data is lost on restart")
	default:
		database, err := db.New(ctx, cfg.DatabaseURL, db.PoolOptions{}, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()
		if cfg.RunMigrations {
			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}
		store = postgres.NewStore(database.Pool())
		health = database.Health
	}

	// ---------------------------------------------------------------
	// 3. Realtime: hub, optional Redis (cache + bus), optional search
	// ---------------------------------------------------------------
	hub := realtime.NewHub(logger, metrics)

	var (
		rdb *redis.Client
		bus *realtime.RedisBus
	)
	publishers := []realtime.Publisher{hub}
	if cfg.RedisURL != "" {
		rdb, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()

		store.Members = cache.NewMembershipCache(store.Members, rdb, cfg.MembershipCacheTTL, logger)
		// the bus delivers to the local hub too, so it replaces the hub
		bus = realtime.NewRedisBus(rdb, hub, logger)
		publishers = []realtime.Publisher{bus}
		logger.Info("redis enabled: membership cache and event bus")
	}
	if cfg.MeiliURL != "" {
		publishers = append(publishers, search.NewMeiliIndexer(cfg.MeiliURL, cfg.MeiliAPIKey, logger))
		logger.Info("meilisearch indexing enabled", zap.String("index", search.IndexUID))
	}
	dispatcher := realtime.NewDispatcher(logger, metrics, publishers...)

	// ---------------------------------------------------------------
	// 4. Services and HTTP
	// ---------------------------------------------------------------
	limits := service.Limits{
		DefaultPageSize:   cfg.DefaultPageSize,
		MaxPageSize:       cfg.MaxPageSize,
		MaxContentLength:  cfg.MaxContentLength,
		MaxForwardTargets: cfg.MaxForwardTargets,
	}
	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)

	router := api.NewRouter(api.Deps{
		Channels:    service.NewChannels(store, dispatcher, limits, logger),
		Messaging:   service.NewMessaging(store, dispatcher, limits, logger),
		Users:       store.Users,
		Hub:         hub,
		JWTSecret:   cfg.JWTSecret,
		Health:      health,
		Metrics:     metrics,
		RateLimiter: limiter,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---------------------------------------------------------------
	// 5. Run until a signal or a fatal error
	// ---------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting huddle",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if bus != nil {
		g.Go(func() error { return bus.Run(gctx) })
	}

	if limiter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case now := <-ticker.C:
					limiter.Sweep(now)
				}
			}
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}
