// Package media holds the exec-backed adapters the pipeline uses for video
// acquisition and cutting: yt-dlp for downloads and ffmpeg/ffprobe for
// probing, scene detection and splitting.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/pipeline"
)

// preferred format: mp4 video+audio, falling back to whatever merges to mp4.
const ytdlpFormat = "bestvideo[ext=mp4]+bestaudio[ext=m4a]/mp4/bestvideo+bestaudio/best"

// YtDlpDownloader shells out to yt-dlp.
type YtDlpDownloader struct {
	binary string
	logger *logger.Logger
}

// NewYtDlpDownloader creates a downloader using the given yt-dlp binary
// ("yt-dlp" when empty).
func NewYtDlpDownloader(binary string, log *logger.Logger) *YtDlpDownloader {
	if binary == "" {
		binary = "yt-dlp"
	}
	return &YtDlpDownloader{binary: binary, logger: log}
}

type ytdlpProbe struct {
	Uploader  string `json:"uploader"`
	LikeCount int64  `json:"like_count"`
}

// Download fetches the video at url into destPath. Source metadata comes
// from a separate probe call; a probe failure only costs the metadata.
func (d *YtDlpDownloader) Download(ctx context.Context, url, destPath string) (*pipeline.DownloadResult, error) {
	result := &pipeline.DownloadResult{LocalPath: destPath}

	probeCmd := exec.CommandContext(ctx, d.binary, "-J", "--no-playlist", url)
	var probeOut bytes.Buffer
	probeCmd.Stdout = &probeOut
	if err := probeCmd.Run(); err != nil {
		d.logger.WithError(err).WithFields(logger.Fields{"url": url}).Warn("yt-dlp metadata probe failed")
	} else {
		var probe ytdlpProbe
		if err := json.Unmarshal(probeOut.Bytes(), &probe); err != nil {
			d.logger.WithError(err).Warn("Failed to parse yt-dlp metadata")
		} else {
			result.UploaderName = probe.Uploader
			result.LikeCount = probe.LikeCount
		}
	}

	cmd := exec.CommandContext(ctx, d.binary,
		"-f", ytdlpFormat,
		"--merge-output-format", "mp4",
		"--no-playlist",
		"--quiet",
		"-o", destPath,
		url,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, stderr.String())
	}
	return result, nil
}
