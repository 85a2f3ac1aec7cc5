package main

import (
	"context"
	"log"
	"time"

	"vox-chat/config"
	"vox-chat/internal/handler"
	"vox-chat/internal/observability"
	"vox-chat/internal/outbox"
	"vox-chat/internal/preview"
	"vox-chat/internal/realtime"
	voxredis "vox-chat/internal/redis"
	"vox-chat/internal/repository"
	"vox-chat/internal/server"
	"vox-chat/internal/session"
	"vox-chat/internal/storage"
	"vox-chat/pkg/database"
	"vox-chat/pkg/logger"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()

	l := logger.New(cfg.LogMode)
	logger.SetGlobalLogger(l)
	defer l.Sync()

	ctx := context.Background()

	db, dialect, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to apply schema: %v", err)
	}

	gw := repository.NewSQLGateway(db, dialect)
	if _, err := database.Seed(ctx, gw); err != nil {
		log.Fatalf("Failed to seed defaults: %v", err)
	}

	state, err := repository.LoadState(ctx, gw)
	if err != nil {
		log.Fatalf("Failed to load state: %v", err)
	}
	l.Logger.Info("state loaded",
		zap.Int("channels", len(state.Channels)),
		zap.Int("messages", len(state.Messages)),
		zap.Int("roles", len(state.Roles)),
		zap.Int("users_with_roles", len(state.Assignments)),
	)

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)

	processor := outbox.DefaultProcessor(cfg.PersistQueueSize, cfg.PersistTimeout,
		outbox.WithMetrics(metrics),
		outbox.WithLogger(l.Named("outbox")),
	)
	runner := outbox.NewRunner(processor)

	fetcherOpts := []preview.Option{
		preview.WithMetrics(metrics),
		preview.WithLogger(l.Named("preview")),
	}
	handlers := &server.Handlers{
		Health:   gw,
		Gatherer: prometheus.DefaultGatherer,
	}

	if cfg.RedisEnabled() {
		client, err := voxredis.Connect(ctx, voxredis.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, 3*time.Second)
		if err != nil {
			l.Logger.Warn("redis unavailable, running without preview cache and upload limits", zap.Error(err))
		} else {
			defer client.Close()
			cacheCfg := voxredis.DefaultCacheConfig()
			cacheCfg.PreviewTTL = cfg.PreviewCacheTTL
			fetcherOpts = append(fetcherOpts, preview.WithCache(voxredis.NewCacheStore(client, cacheCfg)))
			handlers.UploadLimiter = voxredis.NewRateLimiter(client, voxredis.DefaultRateLimitConfig())
		}
	}
	fetcher := preview.NewFetcher(cfg.PreviewTimeout, fetcherOpts...)

	files, err := newFileStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to set up file storage: %v", err)
	}

	store := session.New(state)
	hub := server.NewHub(metrics, server.NewWebSocketLogger(l.Logger))
	router := realtime.NewRouter(store, hub,
		realtime.WithPersistence(gw, processor),
		realtime.WithPreviewFetcher(fetcher),
		realtime.WithMetrics(metrics),
		realtime.WithLogger(l.Named("realtime")),
	)

	outboxCtx, stopOutbox := context.WithCancel(context.Background())
	runner.Start(outboxCtx)

	routerCtx, stopRouter := context.WithCancel(context.Background())
	routerDone := make(chan struct{})
	go func() {
		defer close(routerDone)
		router.Run(routerCtx)
	}()

	handlers.Upload = handler.NewUploadHandler(files, cfg.UploadMaxBytes, metrics, l.Named("upload"))
	handlers.Preview = handler.NewPreviewHandler(fetcher, l.Named("preview"))
	handlers.WebSocket = server.NewWebSocketHandler(hub, router, nil)

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers)

	// Writes queued by the router must reach the outbox before it drains.
	shutdown := func() {
		hub.Stop()
		stopRouter()
		<-routerDone
		stopOutbox()
		runner.Stop()
	}
	if err := srv.Start(shutdown); err != nil {
		l.Errorf("server exited: %v", err)
	}
}

func newFileStore(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	if cfg.StorageBackend == config.StorageS3 {
		return storage.NewS3Store(ctx, storage.S3Config{
			Region:     cfg.S3Region,
			Bucket:     cfg.S3Bucket,
			Prefix:     "uploads",
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Endpoint:   cfg.S3Endpoint,
			PublicBase: cfg.S3PublicBase,
			PresignTTL: 15 * time.Minute,
		})
	}
	return storage.NewLocalStore(cfg.UploadDir)
}
