// Package downloader implements C8's media acquisition: direct HTTP
// streaming, yt-dlp/ffmpeg HLS fallback, ffprobe validation, and an
// optional watermark pass, all bounded by a download semaphore independent
// of the upload queue's own concurrency limit (§4.8).
package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kestrelhq/scrapegate/internal/domain/repository"
	"github.com/kestrelhq/scrapegate/internal/infrastructure/metrics"
)

// Config bundles every sub-config the downloader needs.
type Config struct {
	MaxConcurrent int
	Direct        DirectConfig
	Streaming     StreamingConfig
	FFprobePath   string
	Watermark     WatermarkConfig
}

// Downloader bounds concurrent downloads to MaxConcurrent (default 2),
// independent of however many upload-queue items are simultaneously active.
type Downloader struct {
	cfg    Config
	sem    chan struct{}
	logger *slog.Logger
}

// New creates a Downloader with the given configuration.
func New(cfg Config, logger *slog.Logger) *Downloader {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	return &Downloader{cfg: cfg, sem: make(chan struct{}, cfg.MaxConcurrent), logger: logger}
}

// Result carries the acquired file's path and the detected source kind.
type Result struct {
	Path string
	Kind string // metrics.DownloadKindDirect | metrics.DownloadKindHLS
}

// Download acquires videoURL to a file under tempDir, running ffprobe
// validation and the optional watermark pass before returning. isHLS
// selects the yt-dlp/ffmpeg path over a direct streaming GET.
func (d *Downloader) Download(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(written, total int64, pct float64)) (Result, error) {
	d.sem <- struct{}{}
	defer func() { <-d.sem }()

	destPath, err := destinationPath(tempDir, isHLS)
	if err != nil {
		return Result{}, err
	}

	kind := metrics.DownloadKindDirect
	if isHLS {
		kind = metrics.DownloadKindHLS
		err = DownloadStreaming(ctx, videoURL, destPath, d.cfg.Streaming, func(pct float64) {
			if onProgress != nil {
				onProgress(0, 0, pct)
			}
		})
	} else {
		err = DownloadDirect(ctx, videoURL, destPath, d.cfg.Direct, func(written, total int64) {
			if onProgress != nil {
				pct := 0.0
				if total > 0 {
					pct = float64(written) / float64(total) * 100
				}
				onProgress(written, total, pct)
			}
		})
	}
	if err != nil {
		metrics.DownloadsTotal.WithLabelValues(kind, metrics.OutcomeError).Inc()
		return Result{}, fmt.Errorf("download %s: %w", videoURL, err)
	}

	if err := Validate(ctx, d.cfg.FFprobePath, destPath); err != nil {
		metrics.DownloadsTotal.WithLabelValues(kind, metrics.OutcomeError).Inc()
		_ = os.Remove(destPath)
		return Result{}, err
	}

	ApplyWatermark(ctx, d.cfg.Streaming.FFmpegPath, destPath, d.cfg.Watermark, d.logger)

	metrics.DownloadsTotal.WithLabelValues(kind, metrics.OutcomeSuccess).Inc()
	return Result{Path: destPath, Kind: kind}, nil
}

// RepositoryAdapter exposes a Downloader as a repository.MediaDownloader,
// translating the package-local Result into repository.DownloadResult.
type RepositoryAdapter struct {
	d *Downloader
}

// NewRepositoryAdapter wraps d for consumers that depend on the
// repository.MediaDownloader port rather than this package directly.
func NewRepositoryAdapter(d *Downloader) *RepositoryAdapter {
	return &RepositoryAdapter{d: d}
}

var _ repository.MediaDownloader = (*RepositoryAdapter)(nil)

func (a *RepositoryAdapter) Download(ctx context.Context, videoURL, tempDir string, isHLS bool, onProgress func(int64, int64, float64)) (repository.DownloadResult, error) {
	res, err := a.d.Download(ctx, videoURL, tempDir, isHLS, onProgress)
	if err != nil {
		return repository.DownloadResult{}, err
	}
	return repository.DownloadResult{Path: res.Path, Kind: res.Kind}, nil
}

func (a *RepositoryAdapter) Cleanup(path string) { Cleanup(path) }

// Cleanup removes a downloaded file, tolerating it already being gone.
func Cleanup(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}

func destinationPath(tempDir string, isHLS bool) (string, error) {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	f, err := os.CreateTemp(tempDir, "scrapegate-dl-*.mp4")
	if err != nil {
		return "", fmt.Errorf("allocate temp file: %w", err)
	}
	path := f.Name()
	_ = f.Close()
	_ = os.Remove(path) // yt-dlp/DownloadDirect recreate it; we only needed a unique name
	return path, nil
}
