package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fjod/fresh_grocery/internal/cache"
	"github.com/fjod/fresh_grocery/internal/circuitbreaker"
	"github.com/fjod/fresh_grocery/internal/config"
	"github.com/fjod/fresh_grocery/internal/consumer"
	"github.com/fjod/fresh_grocery/internal/events"
	healthgrpc "github.com/fjod/fresh_grocery/internal/grpc"
	h "github.com/fjod/fresh_grocery/internal/http"
	"github.com/fjod/fresh_grocery/internal/logger"
	"github.com/fjod/fresh_grocery/internal/notify"
	"github.com/fjod/fresh_grocery/internal/publisher"
	"github.com/fjod/fresh_grocery/internal/repository"
	"github.com/fjod/fresh_grocery/internal/repository/memory"
	"github.com/fjod/fresh_grocery/internal/repository/sqlstore"
	"github.com/fjod/fresh_grocery/internal/service"
	"github.com/fjod/fresh_grocery/internal/timeline"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("marketplace stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("marketplace exited")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	checks := map[string]healthgrpc.PingFunc{"store": store.Ping}

	var cartCache cache.CartCache = cache.NopCache{}
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		log.Info("redis ping succeeded", "addr", cfg.Redis.Addr)
		cartCache = cache.NewRedisCache(redisClient, cfg.Redis.CartTTL)
		checks["cache"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var timelineRepo timeline.Repository
	if cfg.Mongo.URI != "" {
		mongoDB, err := timeline.ConnectMongoDB(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to mongodb: %w", err)
		}
		defer mongoDB.Client().Disconnect(context.Background())

		repo := timeline.NewMongoRepository(mongoDB)
		if err := repo.CreateIndexes(ctx); err != nil {
			return err
		}
		timelineRepo = repo
		checks["timeline"] = func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, nil) }
		log.Info("connected to mongodb", "db", cfg.Mongo.Database)
	}

	bus := events.NewBus(log)

	auth := service.NewAuthService(store, service.AuthConfig{
		Secret:   cfg.Auth.JWTSecret,
		TokenTTL: cfg.Auth.TokenTTL,
	}, log)
	if err := auth.EnsureAdmin(ctx, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		return err
	}

	carts := service.NewCartService(store, cartCache, bus, log)
	checkout := service.NewCheckoutService(store, carts, bus, log)
	products := service.NewProductService(store, carts, log)
	users := service.NewUserService(store, auth, log)

	var reader service.TimelineReader
	if timelineRepo != nil {
		reader = timelineRepo
	}
	orders := service.NewOrderService(store, bus, reader, log)

	hub := notify.NewHub(bus, log)

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		RequestsPerSecond:  cfg.RateLimit.RequestsPerSecond,
		Burst:              cfg.RateLimit.Burst,
	}, auth, h.Handlers{
		Auth:          h.NewAuthHandler(auth, cfg.RequestTimeout, log),
		Users:         h.NewUserHandler(users, cfg.RequestTimeout, log),
		Products:      h.NewProductHandler(products, cfg.RequestTimeout, log),
		Cart:          h.NewCartHandler(carts, checkout, cfg.RequestTimeout, log),
		Orders:        h.NewOrdersHandler(orders, cfg.RequestTimeout, log),
		Notifications: h.NewNotificationHandler(hub),
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	health := healthgrpc.NewHealthServer(checks, 0, log)
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		health.Watch(gctx)
		return nil
	})

	if len(cfg.Kafka.Brokers) > 0 {
		breaker := circuitbreaker.New(circuitbreaker.Settings{Name: "outbox-kafka"}, log)
		poller := publisher.NewOutboxPoller(repository.NewOutbox(store), breaker, log, cfg.Kafka.PollInterval, cfg.Kafka.Brokers...)
		g.Go(func() error {
			defer poller.Close()
			poller.Run(gctx)
			return nil
		})

		if timelineRepo != nil {
			c := consumer.NewTimelineConsumer(timelineRepo, log, cfg.Kafka.Brokers...)
			g.Go(func() error {
				defer c.Close()
				c.Run(gctx)
				return nil
			})
		}
	}

	g.Go(func() error {
		log.Info("gRPC health server listening", "port", cfg.GRPCPort)
		return health.Serve(lis)
	})
	g.Go(func() error {
		log.Info("marketplace HTTP server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		health.GracefulStop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openStore(cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case "memory":
		slog.Warn("using in-memory store; data is lost on restart")
		return memory.NewMemoryStore(), nil
	case "postgres":
		store, err := sqlstore.NewPostgres(&repository.Credentials{
			Host:              cfg.DBHost,
			Port:              cfg.DBPort,
			User:              cfg.DBUser,
			Password:          cfg.DBPassword,
			DBName:            cfg.DBName,
			MigrationsDirPath: filepath.Join(cfg.MigrationsPath, "postgres"),
		})
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(filepath.Join(cfg.MigrationsPath, "postgres")); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		store, err := sqlstore.NewSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := store.RunMigrations(filepath.Join(cfg.MigrationsPath, "sqlite")); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	}
}
