// Command gateway runs the scrape/admin HTTP API: C1-C7 and C9-C11 all live
// in this process, with C7's admitted items handed off to one or more
// cmd/worker processes over RabbitMQ (C8 itself runs only in cmd/worker).
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

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/scrapegate/internal/api/handler"
	"github.com/kestrelhq/scrapegate/internal/api/middleware"
	"github.com/kestrelhq/scrapegate/internal/config"
	"github.com/kestrelhq/scrapegate/internal/domain/model"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/audit"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/browser"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/cache"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/eventbus"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/queue"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/statestore"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/storage"
	"github.com/kestrelhq/scrapegate/internal/service/reconciler"
	"github.com/kestrelhq/scrapegate/internal/service/urltracker"
	"github.com/kestrelhq/scrapegate/internal/service/videotracker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// C1: state store. Redis is the primary backend; an in-memory map is
	// always available as fallback, so a Redis outage degrades the gateway
	// rather than taking it down.
	var redisClient *redis.Client
	var primary *statestore.Redis
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, state store will run fallback-only until it recovers", slog.String("error", err.Error()))
		} else {
			logger.Info("connected to redis")
		}
		primary = statestore.NewRedis(redisClient, cfg.Redis.KeyPrefix)
	}
	store := statestore.NewAdapter(primary, statestore.NewMemory(), logger)

	// Audit store (Postgres), best-effort: a gateway with no database
	// reachable still serves traffic, just without permanent history.
	var auditSink *audit.Store
	auditClient, err := audit.NewClient(ctx, audit.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		logger.Warn("postgres unreachable, audit history disabled", slog.String("error", err.Error()))
	} else {
		defer auditClient.Close()
		logger.Info("connected to postgres")
		auditSink = audit.NewStore(auditClient.Pool())
	}

	// C9: object storage, degrades to "not configured" rather than failing
	// startup when S3 credentials are absent.
	objectStore, err := storage.NewClient(storage.ClientConfig{
		Endpoint: cfg.S3.Endpoint, Bucket: cfg.S3.Bucket, AccessKey: cfg.S3.AccessKeyID,
		SecretKey: cfg.S3.SecretAccessKey, KeyPrefix: cfg.S3.KeyPrefix, CDNURL: cfg.S3.CDNURL,
		PathStyle: cfg.S3.PathStyle, UseSSL: cfg.S3.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to construct object store client: %w", err)
	}
	if objectStore.IsConfigured() {
		if err := objectStore.ValidateConnection(ctx); err != nil {
			logger.Warn("object store unreachable at startup", slog.String("error", err.Error()))
		} else {
			logger.Info("connected to object store", slog.String("bucket", cfg.S3.Bucket))
		}
	} else {
		logger.Info("object store not configured, upload/reconcile features disabled")
	}

	// C11: event bus, with an optional Redis relay so events published by
	// cmd/worker processes reach this process's SSE subscribers.
	bus := eventbus.New()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = bus.Close(shutdownCtx)
	}()
	var events repository.EventPublisher = eventbus.NewBusAdapter(bus)
	if redisClient != nil {
		relay := eventbus.NewRedisRelay(redisClient, "", logger)
		go func() {
			if err := relay.Forward(ctx, bus); err != nil && ctx.Err() == nil {
				logger.Error("event relay forwarding stopped", slog.String("error", err.Error()))
			}
		}()
	}

	// C7->C8 transport. The queue's Launcher publishes every admitted item
	// as an UploadTask for a cmd/worker process to pick up; queue admission
	// and download/upload execution are deliberately separate processes.
	var uploadQueue repository.UploadTaskQueue
	transport, err := queue.NewRabbitMQTransport(queue.DefaultRabbitMQConfig(cfg.RabbitMQ.URL()), logger)
	if err != nil {
		logger.Warn("rabbitmq unreachable, upload queue will not be able to dispatch tasks", slog.String("error", err.Error()))
	} else {
		defer transport.Close()
		logger.Info("connected to rabbitmq")
		uploadQueue = transport
	}

	launch := func(ctx context.Context, item model.QueueItem) {
		if uploadQueue == nil {
			logger.Error("upload queue transport unavailable, dropping admitted item", slog.String("video_id", item.VideoID))
			return
		}
		task := repository.UploadTask{VideoID: item.VideoID, Priority: item.Priority}
		if err := uploadQueue.PublishUploadTask(ctx, task); err != nil {
			logger.Error("failed to publish upload task", slog.String("video_id", item.VideoID), slog.String("error", err.Error()))
		}
	}
	q := queue.New(cfg.Upload.MaxConcurrentQueueItems, launch)

	// C4/C5: trackers. cmd/gateway never downloads media itself, so the
	// MediaDownloader dependency is nil here; only cmd/worker wires one.
	urls := urltracker.New(store, auditSink)
	videos := videotracker.New(store, objectStore, nil, events, auditSink, videotracker.DefaultConfig())

	// C10: reconciler, run on a fixed interval in the background.
	recon := reconciler.New(objectStore, videos, auditSink)
	go runReconcilerLoop(ctx, recon, logger)

	// C3: browser pool.
	pool := browser.New(cfg.Browser, logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = pool.CloseAll(shutdownCtx)
	}()

	// C2: scrape cache, with expired entries swept every 5 minutes.
	scrapeCache := cache.New(store, cfg.Cache.TTL)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_, _ = scrapeCache.RunSweep(ctx)
			}
		}
	}()

	scrapeHandler := handler.NewScrapeHandler(pool, scrapeCache, urls, videos, q, cfg.AutoSyncVideos, cfg.Browser.Timeout, cfg.Browser.WaitUntil, logger)
	urlHandler := handler.NewURLHandler(urls)
	videoHandler := handler.NewVideoHandler(videos)
	queueHandler := handler.NewUploadQueueHandler(q)
	storageHandler := handler.NewStorageHandler(recon, objectStore)
	cacheHandler := handler.NewCacheHandler(scrapeCache)
	dashboardHandler := handler.NewDashboardHandler(videos, q, pool, scrapeCache, bus)
	logsHandler := handler.NewLogsHandler(bus)

	r := setupRouter(logger, cfg.APIKey, scrapeHandler, urlHandler, videoHandler, queueHandler, storageHandler, cacheHandler, dashboardHandler, logsHandler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting gateway", slog.String("addr", cfg.Server.Addr()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down gateway", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func setupRouter(
	logger *slog.Logger,
	apiKey string,
	scrapeHandler *handler.ScrapeHandler,
	urlHandler *handler.URLHandler,
	videoHandler *handler.VideoHandler,
	queueHandler *handler.UploadQueueHandler,
	storageHandler *handler.StorageHandler,
	cacheHandler *handler.CacheHandler,
	dashboardHandler *handler.DashboardHandler,
	logsHandler *handler.LogsHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)

	auth := middleware.APIKeyAuth(apiKey)

	r.Route("/apis/scrape/v1", func(r chi.Router) {
		r.Use(auth)
		r.Get("/{engine}", scrapeHandler.Handle)
	})

	r.Route("/apis/admin/v1", func(r chi.Router) {
		r.Use(auth)

		r.Route("/urls", func(r chi.Router) {
			r.Get("/", urlHandler.List)
			r.Get("/{id}", urlHandler.Get)
			r.Post("/{id}/cancel", urlHandler.Cancel)
			r.Post("/{id}/rescrape", urlHandler.Rescrape)
			r.Delete("/{id}", urlHandler.Delete)
		})

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", videoHandler.List)
			r.Get("/stats", videoHandler.Stats)
			r.Post("/retry-failed", videoHandler.RetryAllFailed)
			r.Post("/reset-stuck", videoHandler.ResetStuck)
			r.Get("/{id}", videoHandler.Get)
			r.Patch("/{id}", videoHandler.Update)
			r.Delete("/{id}", videoHandler.Delete)
			r.Post("/{id}/reupload", videoHandler.Reupload)
		})

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", queueHandler.Status)
			r.Post("/", queueHandler.Add)
			r.Post("/pause-all", queueHandler.PauseAll)
			r.Post("/resume-all", queueHandler.ResumeAll)
			r.Delete("/history", queueHandler.ClearHistory)
			r.Delete("/", queueHandler.ClearAll)
			r.Post("/{videoId}/pause", queueHandler.Pause)
			r.Post("/{videoId}/resume", queueHandler.Resume)
			r.Post("/{videoId}/cancel", queueHandler.Cancel)
			r.Put("/{videoId}/priority", queueHandler.SetPriority)
		})

		r.Route("/storage", func(r chi.Router) {
			r.Post("/scan", storageHandler.Scan)
			r.Post("/reconcile", storageHandler.Reconcile)
			r.Get("/objects", storageHandler.ListObjects)
			r.Post("/orphans/import", storageHandler.ImportOrphans)
			r.Post("/orphans/delete", storageHandler.DeleteOrphans)
			r.Post("/missing/fix", storageHandler.FixMissing)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", cacheHandler.Stats)
			r.Delete("/", cacheHandler.Clear)
			r.Post("/sweep", cacheHandler.Sweep)
		})

		r.Get("/dashboard", dashboardHandler.Summary)
		r.Get("/dashboard/processes", dashboardHandler.Processes)

		r.Get("/logs/stream", logsHandler.Stream)
	})

	return r
}

// runReconcilerLoop runs reconciliation on a fixed interval until ctx is
// cancelled, independent of any admin-triggered on-demand run.
func runReconcilerLoop(ctx context.Context, recon *reconciler.Reconciler, logger *slog.Logger) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := recon.Reconcile(ctx, false)
			if err != nil {
				logger.Error("scheduled reconciliation failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("scheduled reconciliation complete",
				slog.Int("orphaned", len(result.OrphanFiles)), slog.Int("missing", len(result.MissingInS3)))
		}
	}
}
