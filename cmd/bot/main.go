package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/PowerStash/config"
	appmodel "github.com/sifan077/PowerStash/internal/app/model"
	apprepository "github.com/sifan077/PowerStash/internal/app/repository"
	appserver "github.com/sifan077/PowerStash/internal/app/server"
	"github.com/sifan077/PowerStash/internal/app/service"
	inthttp "github.com/sifan077/PowerStash/internal/http/handler"
	"github.com/sifan077/PowerStash/internal/infra/logger"
	infraNATS "github.com/sifan077/PowerStash/internal/infra/nats"
	infraPostgres "github.com/sifan077/PowerStash/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/PowerStash/internal/infra/prometheus"
	infraRedis "github.com/sifan077/PowerStash/internal/infra/redis"
	infraSQLite "github.com/sifan077/PowerStash/internal/infra/sqlite"
	"github.com/sifan077/PowerStash/internal/telegram"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("database_driver", cfg.Database.Driver),
		zap.Int64("storage_channel", cfg.Telegram.StorageChannelID),
		zap.Int("admins", len(cfg.Telegram.Admins)),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("nats_enabled", cfg.NATS.Enabled),
		zap.String("http_addr", cfg.HTTP.Addr),
	)

	var checks []inthttp.ReadinessCheck

	gormDB, dbCheck, closeDB := openDatabase(ctx, cfg, log)
	defer closeDB()
	checks = append(checks, dbCheck)
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	err = infraPostgres.AutoMigrate(ctx, gormDB,
		&appmodel.FileRecord{},
		&appmodel.BatchRecord{},
		&appmodel.User{},
		&appmodel.SearchPost{},
		&appmodel.BatchUploadSession{},
		&appmodel.DeliveryEvent{},
	)
	if err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		checks = append(checks, inthttp.ReadinessCheck{
			Name:   "redis",
			Pinger: inthttp.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		})
		log.Info("Connected to Redis successfully")
	}

	fileRepo := apprepository.NewFileRepository(gormDB)
	batchRepo := apprepository.NewBatchRepository(gormDB)
	userRepo := apprepository.NewUserRepository(gormDB)
	postRepo := apprepository.NewSearchPostRepository(gormDB)
	sessionRepo := apprepository.NewBatchSessionRepository(gormDB)
	deliveryRepo := apprepository.NewDeliveryEventRepository(gormDB)

	var events service.EventSink
	var consumer *service.EventConsumer
	if cfg.NATS.Enabled {
		natsConn, js, err := infraNATS.Connect(cfg.NATS, log)
		if err != nil {
			log.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer natsConn.Drain()
		checks = append(checks, inthttp.ReadinessCheck{
			Name: "nats",
			Pinger: inthttp.PingFunc(func(context.Context) error {
				if natsConn.Status() != nats.CONNECTED {
					return errors.New(natsConn.Status().String())
				}
				return nil
			}),
		})

		consumer = service.NewEventConsumer(js, log, deliveryRepo)
		if err := consumer.Start(ctx); err != nil {
			log.Fatal("Failed to start delivery event consumer", zap.Error(err))
		}
		events = service.NewEventPublisher(js)
		log.Info("Connected to NATS successfully")
	}

	client, err := telegram.NewClient(cfg.Telegram.Token, log)
	if err != nil {
		log.Fatal("Failed to authorize bot", zap.Error(err))
	}
	links := service.Links{Host: cfg.Telegram.LinkHost, BotUsername: cfg.Telegram.BotUsername}
	if username := client.Username(); username != "" {
		links.BotUsername = username
	}
	log.Info("Authorized on Telegram", zap.String("username", links.BotUsername))

	filter := service.NewLinkFilter(cfg.Delivery.ExpectedRecords)
	warmed, err := filter.Warm(ctx, fileRepo, batchRepo)
	if err != nil {
		log.Fatal("Failed to warm link filter", zap.Error(err))
	}
	log.Info("Link filter warmed", zap.Int("records", warmed))

	locks := service.NewRecordLocks()
	storage := service.StorageDeps{
		Logger:           log,
		Messenger:        client,
		Filter:           filter,
		Links:            links,
		StorageChannelID: cfg.Telegram.StorageChannelID,
		LogChannelID:     cfg.Telegram.LogChannelID,
		Gate:             service.NewStorageGate(sessionRepo),
		RetryDelay:       cfg.Delivery.RetryDelay,
	}

	users := service.NewUserService(userRepo, cfg.IsAdmin, time.Now)
	delivery := service.NewDeliveryService(service.DeliveryDeps{
		Logger:      log,
		Messenger:   client,
		Files:       fileRepo,
		Batches:     batchRepo,
		Users:       userRepo,
		Posts:       postRepo,
		Locks:       locks,
		Filter:      filter,
		Flood:       service.NewFloodGuard(redisClient, cfg.Delivery.FloodLimit, cfg.Delivery.FloodWindow, log),
		Events:      events,
		BatchDelay:  cfg.Delivery.BatchDelay,
		RetryDelay:  cfg.Delivery.RetryDelay,
		SearchLimit: cfg.Delivery.SearchLimit,
	})
	stats := service.NewStatsService(fileRepo, batchRepo, userRepo, deliveryRepo)

	if cfg.Prometheus.Enabled {
		promServer, err := infraPrometheus.NewServer(cfg.Prometheus,
			infraPrometheus.BuildInfo(version),
			service.NewStatsCollector(stats, log),
		)
		if err != nil {
			log.Fatal("Failed to set up Prometheus metrics server", zap.Error(err))
		}
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	}

	router := telegram.NewRouter(telegram.RouterDeps{
		Logger:    log,
		Transport: client,
		IsAdmin:   cfg.IsAdmin,
		Admins:    cfg.Telegram.Admins,
		Users:     users,
		Delivery:  delivery,
		Uploads:   service.NewUploadService(storage, fileRepo),
		Batches:   service.NewBatchService(storage, batchRepo, sessionRepo, cfg.Delivery.MaxBatchSize),
		Posts:     service.NewPostService(storage, postRepo),
		Broadcast: service.NewBroadcastService(log, client, users, service.BroadcastOptions{
			Delay:      cfg.Delivery.BroadcastDelay,
			RetryDelay: cfg.Delivery.RetryDelay,
			Events:     events,
		}),
		Stats:    stats,
		Sessions: service.NewSessionTracker(cfg.Session.MaxEntries, cfg.Session.TTL),
	})

	expiry := service.NewExpiryEngine(log, client, fileRepo, batchRepo, locks, service.ExpiryOptions{
		Interval:   cfg.Expiry.Interval,
		MinBackoff: cfg.Expiry.MinBackoff,
		MaxBackoff: cfg.Expiry.MaxBackoff,
		Events:     events,
	})
	expiry.Start(ctx)
	defer expiry.Stop()

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		Redis:     redisClient,
		RateLimit: cfg.HTTP.RateLimit,
		APIKey:    cfg.HTTP.APIKey,
		Files:     fileRepo,
		Batches:   batchRepo,
		Filter:    filter,
		Links:     links,
		Stats:     stats,
		Checks:    checks,
	})
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.HTTP.Addr))
		if err := server.Listen(cfg.HTTP.Addr); err != nil {
			log.Error("Fiber server exited", zap.Error(err))
			stop()
		}
	}()

	poller := telegram.NewPoller(log, client, router.Handle, telegram.PollerOptions{
		Timeout:      cfg.Telegram.PollTimeout,
		ReconnectMin: cfg.Telegram.ReconnectMin,
		ReconnectMax: cfg.Telegram.ReconnectMax,
	})
	log.Info("Bot is polling for updates")
	if err := poller.Run(ctx); err != nil {
		log.Error("Poller stopped", zap.Error(err))
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down HTTP server", zap.Error(err))
	}
	if consumer != nil {
		select {
		case <-consumer.Done():
		case <-shutdownCtx.Done():
			log.Warn("Delivery event consumer did not stop in time")
		}
	}
}

// openDatabase opens the configured backend and returns a readiness check
// for it. The postgres check goes through a pgx pool released by the
// returned func.
func openDatabase(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gorm.DB, inthttp.ReadinessCheck, func()) {
	if cfg.Database.Driver == "sqlite" {
		db, err := infraSQLite.Open(cfg.SQLite)
		if err != nil {
			log.Fatal("Failed to open SQLite database", zap.Error(err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
		}
		log.Info("Opened SQLite database", zap.String("path", cfg.SQLite.Path))
		return db, inthttp.ReadinessCheck{Name: "database", Pinger: inthttp.PingFunc(sqlDB.PingContext)}, func() {}
	}

	db, err := infraPostgres.NewGorm(cfg.Postgres, log)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	log.Info("Connected to Postgres successfully",
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
	)
	return db, inthttp.ReadinessCheck{Name: "database", Pinger: inthttp.PingFunc(pool.Ping)}, pool.Close
}
