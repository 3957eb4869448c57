package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/suPer8Hu/vidblog/internal/pipeline"
)

var (
	ErrInvalidFormat = errors.New("invalid video format")
	ErrTooLarge      = errors.New("video exceeds size limit")
	ErrTimeout       = errors.New("video processing timed out")
	ErrNetwork       = errors.New("video download failed")
)

// Fetcher downloads a video into a per-call temp workspace and extracts its
// audio track with ffmpeg. It implements pipeline.VideoFetcher.
type Fetcher struct {
	client     *http.Client
	ffmpegPath string
	workDir    string
	logger     *log.Logger

	runner    commandRunner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
}

func NewFetcher(ffmpegPath, workDir string, logger *log.Logger) *Fetcher {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Fetcher{
		// the stage context bounds the whole download
		client:     &http.Client{Timeout: 30 * time.Minute},
		ffmpegPath: ffmpegPath,
		workDir:    workDir,
		logger:     logger,
		runner:     &execRunner{},
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		stat:       os.Stat,
	}
}

func (f *Fetcher) Fetch(ctx context.Context, sourceURL string, maxBytes int64) (*pipeline.FetchResult, error) {
	if f.workDir != "" {
		if err := os.MkdirAll(f.workDir, 0o755); err != nil {
			return nil, fetchErr("create work dir", err)
		}
	}
	dir, err := f.mkdirTemp(f.workDir, "vidblog-*")
	if err != nil {
		return nil, fetchErr("create temp workspace", err)
	}
	cleanup := func() {
		if err := f.removeAll(dir); err != nil {
			f.logger.Printf("[video.Fetch] cleanup dir=%s err=%v", dir, err)
		}
	}

	videoPath := filepath.Join(dir, "source"+sourceExt(sourceURL))
	n, err := f.download(ctx, sourceURL, videoPath, maxBytes)
	if err != nil {
		cleanup()
		return nil, err
	}

	audioPath := filepath.Join(dir, "audio.wav")
	res, err := f.runner.Run(ctx, f.ffmpegPath, ffmpegArgs(videoPath, audioPath)...)
	if err != nil {
		cleanup()
		if ctx.Err() != nil {
			return nil, fetchErr("extract audio", fmt.Errorf("%w: %w", ErrTimeout, ctx.Err()))
		}
		return nil, fetchErr(fmt.Sprintf("ffmpeg exit=%d: %s", res.ExitCode, lastLine(res.Stderr)), ErrInvalidFormat)
	}
	if _, err := f.stat(audioPath); err != nil {
		cleanup()
		return nil, fetchErr("ffmpeg produced no audio", ErrInvalidFormat)
	}

	f.logger.Printf("[video.Fetch] url=%s bytes=%d audio=%s", sourceURL, n, audioPath)
	return &pipeline.FetchResult{AudioPath: audioPath, Cleanup: cleanup}, nil
}

func (f *Fetcher) download(ctx context.Context, sourceURL, dst string, maxBytes int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return 0, fetchErr("build request", fmt.Errorf("%w: %w", ErrInvalidFormat, err))
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, transportErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fetchErr(fmt.Sprintf("unexpected status code: %d", resp.StatusCode), ErrNetwork)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !videoContentType(ct) {
		return 0, fetchErr(fmt.Sprintf("content type %q", ct), ErrInvalidFormat)
	}
	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return 0, fetchErr(fmt.Sprintf("%d bytes, limit %d", resp.ContentLength, maxBytes), ErrTooLarge)
	}

	out, err := os.Create(dst)
	if err != nil {
		return 0, fetchErr("create video file", err)
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	n, err := io.Copy(out, body)
	if err != nil {
		return n, transportErr(ctx, err)
	}
	if maxBytes > 0 && n > maxBytes {
		return n, fetchErr(fmt.Sprintf("more than %d bytes", maxBytes), ErrTooLarge)
	}
	if n == 0 {
		return 0, fetchErr("empty body", ErrInvalidFormat)
	}
	return n, nil
}

func fetchErr(msg string, err error) *pipeline.Error {
	return pipeline.Wrap(pipeline.KindVideoProcessing, pipeline.StageFetch, msg, err)
}

func transportErr(ctx context.Context, err error) *pipeline.Error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return fetchErr("download", fmt.Errorf("%w: %w", ErrTimeout, err))
	}
	return fetchErr("download", fmt.Errorf("%w: %w", ErrNetwork, err))
}

// videoContentType accepts video/* and the generic binary types CDNs use.
func videoContentType(ct string) bool {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "video/") || mt == "application/octet-stream" || mt == "binary/octet-stream"
}

func sourceExt(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ".bin"
	}
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" {
		return ext
	}
	return ".bin"
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
