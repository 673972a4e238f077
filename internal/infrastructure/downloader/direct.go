package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultUserAgent = "scrapegate/1.0 (+https://github.com/kestrelhq/scrapegate)"

// DirectConfig configures the direct HTTP/HTTPS download path of §4.8.
type DirectConfig struct {
	MaxSizeBytes int64
	Timeout      time.Duration
	UserAgent    string
}

// DefaultDirectConfig returns the spec's defaults: 500MiB cap, 5 minute
// timeout.
func DefaultDirectConfig() DirectConfig {
	return DirectConfig{
		MaxSizeBytes: 500 * 1024 * 1024,
		Timeout:      5 * time.Minute,
		UserAgent:    defaultUserAgent,
	}
}

// ErrTooLarge is returned when a direct download exceeds MaxSizeBytes,
// either via a declared Content-Length or the streamed byte accumulator.
var ErrTooLarge = fmt.Errorf("downloader: response exceeds the configured maximum size")

// DownloadDirect streams rawURL to destPath, enforcing the SSRF guard on the
// initial request and on every redirect hop, plus both a Content-Length
// pre-check and a running byte-accumulator (the declared length can lie or
// be absent; only the accumulator is trustworthy).
func DownloadDirect(ctx context.Context, rawURL, destPath string, cfg DirectConfig, onProgress func(written, total int64)) error {
	if err := checkSSRF(rawURL); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("stopped after 10 redirects")
			}
			return checkSSRF(req.URL.String())
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	req.Header.Set("User-Agent", ua)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("direct download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("direct download: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > 0 && resp.ContentLength > cfg.MaxSizeBytes {
		return ErrTooLarge
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create destination file: %w", err)
	}
	defer out.Close()

	written, err := copyWithLimit(out, resp.Body, cfg.MaxSizeBytes, resp.ContentLength, onProgress)
	if err != nil {
		_ = os.Remove(destPath)
		return err
	}
	_ = written
	return nil
}

// copyWithLimit streams src into dst, aborting with ErrTooLarge as soon as
// the accumulator crosses maxBytes regardless of what Content-Length
// claimed.
func copyWithLimit(dst io.Writer, src io.Reader, maxBytes, total int64, onProgress func(written, total int64)) (int64, error) {
	const chunkSize = 256 * 1024
	buf := make([]byte, chunkSize)
	var written int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			written += int64(n)
			if maxBytes > 0 && written > maxBytes {
				return written, ErrTooLarge
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, fmt.Errorf("write destination file: %w", err)
			}
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, fmt.Errorf("read response body: %w", readErr)
		}
	}
}
