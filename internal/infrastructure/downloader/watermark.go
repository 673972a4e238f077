package downloader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// WatermarkConfig configures the optional drawtext overlay re-encode.
type WatermarkConfig struct {
	Enabled  bool
	Text     string
	FontSize int
	Opacity  float64
	Position string
}

var watermarkPositions = map[string]string{
	"top-left":     "x=10:y=10",
	"top-right":    "x=w-text_w-10:y=10",
	"bottom-left":  "x=10:y=h-text_h-10",
	"bottom-right": "x=w-text_w-10:y=h-text_h-10",
	"center":       "x=(w-text_w)/2:y=(h-text_h)/2",
}

// ApplyWatermark re-encodes srcPath with a drawtext overlay, writing to a
// temp file and replacing srcPath on success. Any failure is soft: srcPath
// is left untouched and the caller proceeds with the unwatermarked original
// (§4.8 "failing soft (keep original on watermark error)").
func ApplyWatermark(ctx context.Context, ffmpegPath, srcPath string, cfg WatermarkConfig, logger *slog.Logger) {
	if !cfg.Enabled || cfg.Text == "" {
		return
	}
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	position, ok := watermarkPositions[cfg.Position]
	if !ok {
		position = watermarkPositions["bottom-right"]
	}
	fontSize := cfg.FontSize
	if fontSize <= 0 {
		fontSize = 24
	}

	tmpPath := srcPath + ".watermarked.tmp"
	filter := fmt.Sprintf(
		"drawtext=text='%s':fontsize=%d:fontcolor=white@%.2f:%s",
		escapeDrawtext(cfg.Text), fontSize, cfg.Opacity, position,
	)

	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-y", "-i", srcPath,
		"-vf", filter,
		"-codec:a", "copy",
		tmpPath,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		if logger != nil {
			logger.Warn("watermark encode failed, keeping original", "error", err, "output", truncate(string(out), 500))
		}
		_ = os.Remove(tmpPath)
		return
	}

	if err := os.Rename(tmpPath, srcPath); err != nil {
		if logger != nil {
			logger.Warn("watermark rename failed, keeping original", "error", err)
		}
		_ = os.Remove(tmpPath)
	}
}

func escapeDrawtext(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '\'', ':', '\\':
			out = append(out, '\\', r)
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
