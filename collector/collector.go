// Package collector gathers frames for a subject: it searches YouTube with
// yt-dlp, downloads the matching videos and samples still frames from them
// with ffmpeg.
package collector

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"celeb-dna-collector/frames"
)

// Defaults applied when the corresponding Options field is zero.
const (
	DefaultVideosPerQuery = 3
	DefaultFrameInterval  = 30 * time.Second
	DefaultDownloadDelay  = 5 * time.Second
)

// downloadFormat caps downloads at 720p mp4.
const downloadFormat = "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/best[height<=720][ext=mp4]/best"

// Runner executes an external command and returns its standard output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Video is one search hit.
type Video struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"`
}

// VideoResult lists the frames extracted from one downloaded video.
type VideoResult struct {
	Video  Video
	Frames []string
}

// Options configures a Collector.
type Options struct {
	YtDlpPath      string
	FfmpegPath     string
	VideosPerQuery int
	FrameInterval  time.Duration
	DownloadDelay  time.Duration
}

// Collector drives yt-dlp and ffmpeg.
type Collector struct {
	opts  Options
	run   Runner
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Collector that shells out to the real binaries.
func New(opts Options) *Collector {
	return newWithRunner(opts, execRunner, sleepContext)
}

func newWithRunner(opts Options, run Runner, sleep func(context.Context, time.Duration) error) *Collector {
	if opts.YtDlpPath == "" {
		opts.YtDlpPath = "yt-dlp"
	}
	if opts.FfmpegPath == "" {
		opts.FfmpegPath = "ffmpeg"
	}
	if opts.VideosPerQuery <= 0 {
		opts.VideosPerQuery = DefaultVideosPerQuery
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = DefaultFrameInterval
	}
	if opts.DownloadDelay < 0 {
		opts.DownloadDelay = 0
	}
	return &Collector{opts: opts, run: run, sleep: sleep}
}

// Search returns up to max videos matching query.
func (c *Collector) Search(ctx context.Context, query string, max int) ([]Video, error) {
	slog.Info("searching YouTube", "query", query, "max", max)

	out, err := c.run(ctx, c.opts.YtDlpPath,
		"--flat-playlist", "--dump-json", "--no-warnings",
		fmt.Sprintf("ytsearch%d:%s", max, query),
	)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	var videos []Video
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var v Video
		if err := json.Unmarshal(line, &v); err != nil {
			slog.Warn("skipping unparseable search entry", "query", query, "error", err)
			continue
		}
		if v.ID == "" {
			continue
		}
		if v.URL == "" {
			v.URL = "https://www.youtube.com/watch?v=" + v.ID
		}
		if v.Title == "" {
			v.Title = "Unknown"
		}
		videos = append(videos, v)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading search results for %q: %w", query, err)
	}

	slog.Info("found videos", "query", query, "count", len(videos))
	return videos, nil
}

// Download fetches one video into dir and returns the final file path.
func (c *Collector) Download(ctx context.Context, url, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating video dir: %w", err)
	}

	slog.Info("downloading video", "url", url)

	out, err := c.run(ctx, c.opts.YtDlpPath,
		"-f", downloadFormat,
		"--merge-output-format", "mp4",
		"-o", filepath.Join(dir, "%(id)s.%(ext)s"),
		"--print", "after_move:filepath",
		"--no-warnings",
		url,
	)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", url, err)
	}

	path := lastLine(out)
	if path == "" {
		return "", fmt.Errorf("downloading %s: yt-dlp reported no output file", url)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("downloaded file not found: %w", err)
	}

	slog.Info("downloaded video", "path", path)
	return path, nil
}

// ExtractFrames writes one JPEG every FrameInterval of video into dir and
// returns the written paths in order.
func (c *Collector) ExtractFrames(ctx context.Context, videoPath, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating frames dir: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	secs := strconv.FormatFloat(c.opts.FrameInterval.Seconds(), 'f', -1, 64)

	slog.Info("extracting frames", "video", videoPath, "interval", c.opts.FrameInterval)

	_, err := c.run(ctx, c.opts.FfmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", videoPath,
		"-vf", "fps=1/"+secs,
		"-q:v", "2",
		filepath.Join(dir, stem+"_frame_%06d.jpg"),
	)
	if err != nil {
		return nil, fmt.Errorf("extracting frames from %s: %w", videoPath, err)
	}

	all, err := frames.List(dir)
	if err != nil {
		return nil, err
	}
	var written []string
	for _, p := range all {
		if strings.HasPrefix(filepath.Base(p), stem+"_frame_") {
			written = append(written, p)
		}
	}

	slog.Info("extracted frames", "video", videoPath, "count", len(written))
	return written, nil
}

// Collect searches for query and turns each hit into frames under
// outputDir/videos and outputDir/frames. A video that fails is logged and
// skipped. The only errors returned are a failed search or a canceled context.
func (c *Collector) Collect(ctx context.Context, query, outputDir string) ([]VideoResult, error) {
	videos, err := c.Search(ctx, query, c.opts.VideosPerQuery)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		slog.Warn("no videos found, skipping query", "query", query)
		return nil, nil
	}

	videoDir := filepath.Join(outputDir, "videos")
	framesDir := filepath.Join(outputDir, "frames")

	var results []VideoResult
	for i, v := range videos {
		slog.Info("processing video", "index", i+1, "total", len(videos), "video_id", v.ID, "title", v.Title)

		path, err := c.Download(ctx, v.URL, videoDir)
		if err == nil {
			var extracted []string
			extracted, err = c.ExtractFrames(ctx, path, framesDir)
			if err == nil {
				results = append(results, VideoResult{Video: v, Frames: extracted})
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return results, ctx.Err()
			}
			slog.Error("failed to process video", "video_id", v.ID, "error", err)
		}

		if i < len(videos)-1 && c.opts.DownloadDelay > 0 {
			slog.Info("waiting before next download", "delay", c.opts.DownloadDelay)
			if err := c.sleep(ctx, c.opts.DownloadDelay); err != nil {
				return results, err
			}
		}
	}

	slog.Info("collection complete", "query", query, "processed", len(results), "found", len(videos))
	return results, nil
}

// CollectAll runs Collect for every query and returns the total number of
// frames extracted. A failed search is logged and the next query is tried.
func (c *Collector) CollectAll(ctx context.Context, queries []string, outputDir string) (int, error) {
	total := 0
	for _, q := range queries {
		results, err := c.Collect(ctx, q, outputDir)
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			slog.Error("collection failed", "query", q, "error", err)
			continue
		}
		for _, r := range results {
			total += len(r.Frames)
		}
	}
	return total, nil
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return out, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
