package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
)

// blockedCodecs are image formats ffprobe sometimes reports as a "video"
// stream (a single-frame cover image, an animated GIF misdetected as
// video); §4.8 requires rejecting these as "not a valid video".
var blockedCodecs = map[string]bool{
	"png":   true,
	"mjpeg": true,
	"jpeg":  true,
	"gif":   true,
	"bmp":   true,
	"webp":  true,
}

const minDimension = 10

// ErrNotAValidVideo is returned by Validate when ffprobe finds no
// acceptable video stream.
var ErrNotAValidVideo = fmt.Errorf("downloader: not a valid video")

type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Validate runs ffprobe against path and confirms it contains a video
// stream with width and height >= 10 and a codec not in the image-format
// blocklist.
func Validate(ctx context.Context, ffprobePath, path string) error {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "error",
		"-show_entries", "stream=codec_type,codec_name,width,height",
		"-of", "json",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("run ffprobe: %w", err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return fmt.Errorf("parse ffprobe output: %w", err)
	}
	return evaluateProbe(probe)
}

func evaluateProbe(probe ffprobeOutput) error {
	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		if blockedCodecs[s.CodecName] {
			continue
		}
		if s.Width >= minDimension && s.Height >= minDimension {
			return nil
		}
	}
	return ErrNotAValidVideo
}
