package main

import (
	"context"
	"time"

	"livepoll/config"
	"livepoll/internal/commands"
	"livepoll/internal/handler"
	"livepoll/internal/redis"
	"livepoll/internal/repository"
	"livepoll/internal/server"
	"livepoll/internal/services"
	"livepoll/internal/storage"
	"livepoll/pkg/database"
	"livepoll/pkg/logger"

	"go.uber.org/zap"
)

const startupTimeout = 10 * time.Second

func main() {
	cfg := config.LoadConfig()

	mode := logger.DevelopmentMode
	if cfg.AppMode == server.ReleaseMode {
		mode = logger.ProductionMode
	}
	l := logger.NewWithOptions(mode, logger.Options{FilePath: cfg.LogFile})
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	store, closeStore := buildStore(ctx, cfg, l.Logger)
	defer closeStore()

	var publisher services.LifecyclePublisher
	if p := buildPublisher(ctx, cfg, l.Logger); p != nil {
		publisher = p
	}

	var archive services.ResultArchiver
	if cfg.ArchiveEnabled() {
		a, err := storage.NewResultArchive(ctx, storage.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Endpoint:  cfg.S3Endpoint,
		})
		if err != nil {
			l.Warnf("Results archive disabled: %s", err)
		} else {
			archive = a
		}
	}

	wsLogger := server.NewWebSocketLogger()
	hub := server.NewHub(wsLogger)

	polls := services.NewPollService(store, hub, services.PollServiceOptions{
		MaxDuration: cfg.MaxPollDuration,
		Publisher:   publisher,
		Archive:     archive,
		Logger:      l.Logger,
	})
	if err := polls.Resume(ctx); err != nil {
		l.Errorf("Failed to resume active poll: %s", err)
	}
	recovery := services.NewRecoveryService(polls, hub, l.Logger)

	bus := commands.NewBus()
	polls.RegisterHandlers(bus)

	wsHandler := server.NewWebSocketHandler(hub, server.NewDispatcher(hub, bus, polls, wsLogger), recovery, server.WebSocketOptions{
		SendBuffer:           cfg.ClientSendBuffer,
		MaxConnectsPerMinute: cfg.MaxConnectsPerMinute,
	}, wsLogger)

	limiterCtx, stopLimiter := context.WithCancel(context.Background())
	go wsHandler.Limiter().CleanupLoop(limiterCtx)

	srv := server.New(cfg, l)
	srv.SetupRoutes(&server.Handlers{
		Poll:      handler.NewPollHandler(polls, hub),
		WebSocket: wsHandler,
	}, store)

	if err := srv.Start(); err != nil {
		l.Errorf("Server shutdown error: %s", err)
	}

	stopLimiter()
	hub.Stop()
	polls.Shutdown()
}

// buildStore selects the configured backend. The durable backends sit behind
// a FallbackPollStore so an outage degrades to memory instead of failing.
func buildStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.PollStore, func()) {
	transient := repository.NewMemoryPollStore()

	switch cfg.StoreBackend {
	case config.StoreBackendMemory:
		log.Info("Using in-memory poll store")
		return transient, func() {}

	case config.StoreBackendRedis:
		redis.Initialize(redis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		client := redis.GetClient()
		if err := redis.Ping(ctx, client, 2*time.Second); err != nil {
			log.Warn("Redis unreachable, starting on the in-memory store", zap.Error(err))
			return repository.NewFallbackPollStore(nil, transient, log), func() { _ = client.Close() }
		}
		log.Info("Using Redis poll store", zap.String("addr", client.Options().Addr))
		return repository.NewFallbackPollStore(redis.NewPollStore(client, ""), transient, log), func() { _ = client.Close() }

	default:
		db, err := database.Connect(cfg)
		if err != nil {
			log.Warn("Postgres unreachable, starting on the in-memory store", zap.Error(err))
			return repository.NewFallbackPollStore(nil, transient, log), func() {}
		}
		durable := repository.NewPostgresPollStore(db)
		if err := durable.Migrate(ctx); err != nil {
			log.Warn("Poll schema migration failed, starting on the in-memory store", zap.Error(err))
			return repository.NewFallbackPollStore(nil, transient, log), func() { _ = database.Close() }
		}
		log.Info("Using Postgres poll store")
		return repository.NewFallbackPollStore(durable, transient, log), func() { _ = database.Close() }
	}
}

// buildPublisher returns nil when the lifecycle feed is disabled or Redis
// cannot be reached.
func buildPublisher(ctx context.Context, cfg *config.Config, log *zap.Logger) *redis.Publisher {
	if cfg.RedisEventsChannel == "" {
		return nil
	}
	redis.Initialize(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	client := redis.GetClient()
	if err := redis.Ping(ctx, client, 2*time.Second); err != nil {
		log.Warn("Lifecycle feed disabled, Redis unreachable", zap.Error(err))
		return nil
	}
	log.Info("Publishing lifecycle events", zap.String("channel", cfg.RedisEventsChannel))
	return redis.NewPublisher(client, cfg.RedisEventsChannel)
}
