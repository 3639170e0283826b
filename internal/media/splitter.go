package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/timmy/vidqa/internal/logger"
	"github.com/timmy/vidqa/internal/pipeline"
)

const (
	// sceneThreshold is ffmpeg's frame-difference score above which a new
	// scene starts; 0.27 tracks the content detector the captions were
	// tuned against.
	sceneThreshold = 0.27

	// minSceneSeconds drops boundaries that would create blink-length
	// scenes.
	minSceneSeconds = 0.5
)

// FFmpegSplitter probes, detects scenes and cuts videos with ffmpeg and
// ffprobe.
type FFmpegSplitter struct {
	ffmpeg  string
	ffprobe string
	logger  *logger.Logger
}

// NewFFmpegSplitter creates a splitter using the given binaries ("ffmpeg"
// and "ffprobe" when empty).
func NewFFmpegSplitter(ffmpeg, ffprobe string, log *logger.Logger) *FFmpegSplitter {
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &FFmpegSplitter{ffmpeg: ffmpeg, ffprobe: ffprobe, logger: log}
}

// Probe returns the container duration in seconds.
func (s *FFmpegSplitter) Probe(ctx context.Context, videoPath string) (float64, error) {
	cmd := exec.CommandContext(ctx, s.ffprobe,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		videoPath,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return duration, nil
}

// DetectScenes runs ffmpeg's scene filter and turns the reported cut points
// into contiguous scenes covering the whole video.
func (s *FFmpegSplitter) DetectScenes(ctx context.Context, videoPath string) ([]pipeline.Scene, error) {
	duration, err := s.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	filter := fmt.Sprintf("select='gt(scene,%g)',showinfo", sceneThreshold)
	cmd := exec.CommandContext(ctx, s.ffmpeg,
		"-i", videoPath,
		"-vf", filter,
		"-f", "null", "-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg scene detection failed: %w", err)
	}

	cuts := parseShowinfoTimes(stderr.String())
	return scenesFromCuts(cuts, duration), nil
}

var showinfoPtsTime = regexp.MustCompile(`pts_time:([0-9]+(?:\.[0-9]+)?)`)

// parseShowinfoTimes extracts the pts_time values from ffmpeg showinfo
// filter output.
func parseShowinfoTimes(ffmpegOutput string) []float64 {
	var times []float64
	for _, match := range showinfoPtsTime.FindAllStringSubmatch(ffmpegOutput, -1) {
		t, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times
}

// scenesFromCuts converts cut points into [start, end) scenes spanning
// [0, duration), dropping cuts that would produce scenes shorter than
// minSceneSeconds.
func scenesFromCuts(cuts []float64, duration float64) []pipeline.Scene {
	if duration <= 0 {
		return nil
	}
	var scenes []pipeline.Scene
	start := 0.0
	for _, cut := range cuts {
		if cut <= start+minSceneSeconds || cut >= duration {
			continue
		}
		scenes = append(scenes, pipeline.Scene{Start: start, End: cut})
		start = cut
	}
	if duration > start {
		scenes = append(scenes, pipeline.Scene{Start: start, End: duration})
	}
	return scenes
}

// Split cuts the source into one clip per scene. Scenes and outPaths are
// parallel slices.
func (s *FFmpegSplitter) Split(ctx context.Context, videoPath string, scenes []pipeline.Scene, outPaths []string) error {
	if len(scenes) != len(outPaths) {
		return fmt.Errorf("got %d scenes but %d output paths", len(scenes), len(outPaths))
	}
	for i, scene := range scenes {
		cmd := exec.CommandContext(ctx, s.ffmpeg,
			"-y",
			"-ss", fmt.Sprintf("%.3f", scene.Start),
			"-to", fmt.Sprintf("%.3f", scene.End),
			"-i", videoPath,
			"-map", "0:v:0", "-map", "0:a?",
			"-c:v", "libx264", "-preset", "fast", "-crf", "21",
			"-c:a", "aac",
			outPaths[i],
		)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("ffmpeg split of scene %d failed: %w: %s", i+1, err, lastLine(stderr.String()))
		}
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
