// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the root configuration for both cmd/gateway and cmd/worker.
// Each process only reads the sub-structs it needs.
type Config struct {
	Server         ServerConfig
	Worker         WorkerConfig
	Browser        BrowserConfig
	Cache          CacheConfig
	Redis          RedisConfig
	Database       DatabaseConfig
	S3             S3Config
	RabbitMQ       RabbitMQConfig
	Upload         UploadConfig
	YTDLP          YTDLPConfig
	Watermark      WatermarkConfig
	AutoSyncVideos bool   `envconfig:"AUTO_SYNC_VIDEOS" default:"false"`
	APIKey         string `envconfig:"API_KEY" default:"test-api-key"`
}

type ServerConfig struct {
	Host            string        `envconfig:"HOST" default:"127.0.0.1"`
	Port            int           `envconfig:"PORT" default:"3000"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"5m"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type WorkerConfig struct {
	TempDir            string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/scrapegate"`
	MaxRetries         int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout    time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	StuckUploadMinutes int           `envconfig:"WORKER_STUCK_UPLOAD_MINUTES" default:"30"`
}

// BrowserConfig configures the C3 browser pool.
type BrowserConfig struct {
	Type               string        `envconfig:"BROWSER_TYPE" default:"chromium"`
	ExecutablePath     string        `envconfig:"BROWSER_EXECUTABLE_PATH"`
	Args               string        `envconfig:"BROWSER_ARGS"` // JSON array
	ViewportWidth      int           `envconfig:"BROWSER_VIEWPORT_WIDTH" default:"1920"`
	ViewportHeight     int           `envconfig:"BROWSER_VIEWPORT_HEIGHT" default:"1080"`
	DeviceScaleFactor  float64       `envconfig:"BROWSER_DEVICE_SCALE_FACTOR" default:"1"`
	Timeout            time.Duration `envconfig:"BROWSER_TIMEOUT" default:"30s"`
	WaitUntil          string        `envconfig:"BROWSER_WAIT_UNTIL" default:"networkidle0"`
	Headless           bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	Dumpio             bool          `envconfig:"BROWSER_DUMPIO" default:"false"`
	MaxConcurrency     int           `envconfig:"BROWSER_MAX_CONCURRENCY" default:"5"`
	MaxPagesPerBrowser int           `envconfig:"BROWSER_MAX_PAGES_PER_BROWSER" default:"30"`
	TTL                time.Duration `envconfig:"BROWSER_TTL" default:"30m"`
}

// CacheConfig configures the C2 scrape cache.
type CacheConfig struct {
	TTL time.Duration `envconfig:"CACHE_TTL" default:"1h"`
}

// RedisConfig configures the C1 state store's primary backend.
type RedisConfig struct {
	Enabled   bool   `envconfig:"REDIS_ENABLED" default:"true"`
	URL       string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	Password  string `envconfig:"REDIS_PASSWORD"`
	KeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"scrapegate:"`
}

// DatabaseConfig configures the Postgres-backed audit store.
type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"scrapegate"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"scrapegate"`
	DBName   string `envconfig:"POSTGRES_DB" default:"scrapegate"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// S3Config configures the C9 object-store client (generalizes the teacher's
// MinIOConfig to any S3-compatible endpoint, including Backblaze B2).
type S3Config struct {
	Endpoint        string `envconfig:"S3_ENDPOINT" default:"localhost:9000"`
	Bucket          string `envconfig:"S3_BUCKET" default:"videos"`
	Region          string `envconfig:"S3_REGION" default:"us-east-1"`
	AccessKeyID     string `envconfig:"S3_ACCESS_KEY_ID" default:"minioadmin"`
	SecretAccessKey string `envconfig:"S3_SECRET_ACCESS_KEY" default:"minioadmin"`
	KeyPrefix       string `envconfig:"S3_KEY_PREFIX" default:""`
	CDNURL          string `envconfig:"S3_CDN_URL"`
	PathStyle       bool   `envconfig:"S3_PATH_STYLE" default:"true"`
	UseSSL          bool   `envconfig:"S3_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"scrapegate"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"scrapegate"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

// UploadConfig configures C7/C8.
type UploadConfig struct {
	MaxSizeMB               int           `envconfig:"UPLOAD_MAX_SIZE_MB" default:"500"`
	Timeout                 time.Duration `envconfig:"UPLOAD_TIMEOUT" default:"5m"`
	MaxConcurrentDownloads  int           `envconfig:"UPLOAD_MAX_CONCURRENT_DOWNLOADS" default:"2"`
	MaxConcurrentQueueItems int           `envconfig:"MAX_CONCURRENT_DOWNLOADS" default:"2"`
	HistorySize             int           `envconfig:"UPLOAD_HISTORY_SIZE" default:"50"`
}

// YTDLPConfig configures the HLS/DASH download fallback path.
type YTDLPConfig struct {
	Path                string        `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	ConcurrentFragments int           `envconfig:"YTDLP_CONCURRENT_FRAGMENTS" default:"4"`
	Downloader          string        `envconfig:"YTDLP_DOWNLOADER" default:"native"` // aria2c|ffmpeg|native
	Aria2cConnections   int           `envconfig:"YTDLP_ARIA2C_CONNECTIONS" default:"4"`
	RetryCount          int           `envconfig:"YTDLP_RETRY_COUNT" default:"3"`
	FragmentRetries     int           `envconfig:"YTDLP_FRAGMENT_RETRIES" default:"3"`
	SocketTimeout       time.Duration `envconfig:"YTDLP_SOCKET_TIMEOUT" default:"30s"`
	FFmpegPath          string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath         string        `envconfig:"FFPROBE_PATH" default:"ffprobe"`
}

// WatermarkConfig configures the optional post-download watermark overlay.
type WatermarkConfig struct {
	Enabled  bool    `envconfig:"WATERMARK_ENABLED" default:"false"`
	Text     string  `envconfig:"WATERMARK_TEXT" default:""`
	FontSize int     `envconfig:"WATERMARK_FONTSIZE" default:"24"`
	Opacity  float64 `envconfig:"WATERMARK_OPACITY" default:"0.5"`
	Position string  `envconfig:"WATERMARK_POSITION" default:"bottom-right"`
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
