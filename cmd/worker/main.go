// Command worker consumes C7's upload tasks over RabbitMQ and performs
// C8's media download plus the C5 tracker's sync-to-object-storage flow.
// Any number of worker processes can run against the same queue.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/kestrelhq/scrapegate/internal/config"
	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/audit"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/downloader"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/eventbus"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/queue"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/statestore"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/storage"
	"github.com/kestrelhq/scrapegate/internal/service/uploadworker"
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

	if err := os.MkdirAll(cfg.Worker.TempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	// C1 state store, same Redis-primary/memory-fallback composition as
	// cmd/gateway, so SyncVideo's tracker writes are visible there too.
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
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("connected to redis")
		primary = statestore.NewRedis(redisClient, cfg.Redis.KeyPrefix)
	}
	store := statestore.NewAdapter(primary, statestore.NewMemory(), logger)

	var auditSink *audit.Store
	auditClient, err := audit.NewClient(ctx, audit.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		logger.Warn("postgres unreachable, audit history disabled", slog.String("error", err.Error()))
	} else {
		defer auditClient.Close()
		logger.Info("connected to postgres")
		auditSink = audit.NewStore(auditClient.Pool())
	}

	objectStore, err := storage.NewClient(storage.ClientConfig{
		Endpoint: cfg.S3.Endpoint, Bucket: cfg.S3.Bucket, AccessKey: cfg.S3.AccessKeyID,
		SecretKey: cfg.S3.SecretAccessKey, KeyPrefix: cfg.S3.KeyPrefix, CDNURL: cfg.S3.CDNURL,
		PathStyle: cfg.S3.PathStyle, UseSSL: cfg.S3.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to construct object store client: %w", err)
	}
	if !objectStore.IsConfigured() {
		logger.Warn("object store not configured, uploads will fail")
	} else if err := objectStore.ValidateConnection(ctx); err != nil {
		return fmt.Errorf("failed to reach object store: %w", err)
	} else {
		logger.Info("connected to object store", slog.String("bucket", cfg.S3.Bucket))
	}

	// C11: worker processes have no SSE subscribers of their own, so
	// lifecycle events are relayed over Redis to cmd/gateway's bus instead
	// of published to a local one.
	var events repository.EventPublisher
	if redisClient != nil {
		relay := eventbus.NewRedisRelay(redisClient, "", logger)
		events = eventbus.NewRelayAdapter(relay, logger)
	}

	// C8: media acquisition, wrapped as a repository.MediaDownloader so the
	// C5 tracker doesn't depend on the downloader package directly.
	dl := downloader.New(downloader.Config{
		MaxConcurrent: cfg.Upload.MaxConcurrentDownloads,
		Direct: downloader.DirectConfig{
			MaxSizeBytes: int64(cfg.Upload.MaxSizeMB) * 1024 * 1024,
			Timeout:      cfg.Upload.Timeout,
		},
		Streaming: downloader.StreamingConfig{
			YtDLPPath:           cfg.YTDLP.Path,
			FFmpegPath:          cfg.YTDLP.FFmpegPath,
			ConcurrentFragments: cfg.YTDLP.ConcurrentFragments,
			Downloader:          cfg.YTDLP.Downloader,
			Aria2cConnections:   cfg.YTDLP.Aria2cConnections,
			RetryCount:          cfg.YTDLP.RetryCount,
			FragmentRetries:     cfg.YTDLP.FragmentRetries,
			SocketTimeout:       cfg.YTDLP.SocketTimeout,
			Timeout:             cfg.Upload.Timeout,
		},
		FFprobePath: cfg.YTDLP.FFprobePath,
		Watermark: downloader.WatermarkConfig{
			Enabled: cfg.Watermark.Enabled, Text: cfg.Watermark.Text, FontSize: cfg.Watermark.FontSize,
			Opacity: cfg.Watermark.Opacity, Position: cfg.Watermark.Position,
		},
	}, logger)
	mediaDownloader := downloader.NewRepositoryAdapter(dl)

	videos := videotracker.New(store, objectStore, mediaDownloader, events, auditSink, videotracker.Config{
		MaxRetries:     cfg.Worker.MaxRetries,
		StuckThreshold: 0,
	})

	uw := uploadworker.New(videos, uploadworker.Config{MaxRetries: cfg.Worker.MaxRetries}, logger)

	transport, err := queue.NewRabbitMQTransport(queue.DefaultRabbitMQConfig(cfg.RabbitMQ.URL()), logger)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	defer transport.Close()
	logger.Info("connected to rabbitmq")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming upload tasks")
		err := transport.ConsumeUploadTasks(ctx, func(task repository.UploadTask) error {
			wg.Add(1)
			defer wg.Done()
			return uw.ProcessTask(ctx, task)
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}
