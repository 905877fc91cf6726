package downloader

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"go-streamrip-bot/config"
)

// Request describes one streamrip invocation.
type Request struct {
	Descriptor MediaDescriptor
	Quality    Quality
	Codec      Codec
	Dir        string
}

// Result is the outcome of DownloadWithFallback.
type Result struct {
	Files     []string
	Requested Quality
	Quality   Quality
	// Note is set when a lower quality than requested was used.
	Note string
}

// FellBack reports whether the result used a lower quality than requested.
func (r *Result) FellBack() bool {
	return r.Quality != r.Requested
}

// Option configures the client.
type Option func(*Client)

// WithRunner injects a custom runner (primarily for tests).
func WithRunner(runner Runner) Option {
	return func(c *Client) {
		if runner != nil {
			c.runner = runner
		}
	}
}

// WithBackOff replaces the retry schedule for transient failures.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Client) {
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

// WithRipConfig makes every invocation use the streamrip config at path.
func WithRipConfig(path string) Option {
	return func(c *Client) {
		c.ripConfigPath = path
	}
}

// Client drives the streamrip CLI for resolved descriptors.
type Client struct {
	registry      *Registry
	runner        Runner
	policy        FallbackPolicy
	maxRetries    int
	ripConfigPath string
	newBackOff    func() backoff.BackOff
	logger        *zap.SugaredLogger
}

// NewClient creates a Client for the rip binary configured in cfg.
func NewClient(cfg config.StreamripConfig, registry *Registry, logger *zap.SugaredLogger, opts ...Option) *Client {
	c := &Client{
		registry:   registry,
		runner:     NewExecRunner(cfg.Binary),
		policy:     NewFallbackPolicy(cfg),
		maxRetries: cfg.MaxRetries,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = 5 * time.Minute
			return b
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the platform registry used by the client.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Policy returns the fallback policy.
func (c *Client) Policy() FallbackPolicy {
	return c.policy
}

// Download runs streamrip once for req (retrying transient failures) and
// returns the audio files it produced.
func (c *Client) Download(ctx context.Context, req Request, progress ProgressFunc) ([]string, error) {
	name := req.Descriptor.Platform
	platform, ok := c.registry.Platform(name)
	if !ok {
		return nil, NewDownloadError(ErrorUnsupportedPlatform, fmt.Sprintf("unknown platform %q", name))
	}
	if err := c.registry.Ready(name); err != nil {
		return nil, err
	}
	if !req.Quality.Valid() {
		return nil, NewDownloadError(ErrorQualityUnavailable, fmt.Sprintf("quality %d does not exist", req.Quality))
	}
	if limit := platform.MaxQuality(); req.Quality > limit {
		return nil, NewDownloadError(ErrorQualityUnavailable,
			fmt.Sprintf("quality %d (%s) is not available on %s (max %d)", req.Quality, req.Quality.Label(), name, limit)).
			WithContext("max_quality", int(limit))
	}
	if err := os.MkdirAll(req.Dir, 0o755); err != nil {
		return nil, NewDownloadErrorWithCause(ErrorFileSystemError, "failed to create download directory", err)
	}

	args := c.buildArgs(req)
	if c.logger != nil {
		c.logger.Infof("Starting streamrip download: rip %s", strings.Join(args, " "))
	}

	var files []string
	operation := func() error {
		parser := newOutputParser(progress)
		runErr := c.runner.Run(ctx, req.Dir, args, parser.onLine)
		if ctx.Err() != nil {
			return backoff.Permanent(NewDownloadErrorWithCause(ErrorCancelled, "download cancelled", ctx.Err()))
		}

		found, err := ListAudioFiles(req.Dir)
		if err != nil {
			return backoff.Permanent(NewDownloadErrorWithCause(ErrorFileSystemError, "failed to list downloaded files", err))
		}

		failure := parser.failureError()
		if len(found) > 0 && (runErr == nil || failure == nil) {
			if runErr != nil && c.logger != nil {
				c.logger.Warnf("streamrip exited with %v but produced %d files", runErr, len(found))
			}
			files = found
			return nil
		}

		if failure != nil {
			if runErr != nil {
				failure.Cause = runErr
			}
			if failure.Type == ErrorTransientNetwork {
				return failure
			}
			return backoff.Permanent(failure)
		}
		if runErr != nil {
			msg := "streamrip download failed"
			if parser.lastLine != "" {
				msg = parser.lastLine
			}
			return backoff.Permanent(NewDownloadErrorWithCause(ErrorUnknown, msg, runErr))
		}
		return backoff.Permanent(NewDownloadError(ErrorNoFiles, "no audio files were downloaded"))
	}

	schedule := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		if c.logger != nil {
			c.logger.Warnf("Transient failure on %s, retrying in %s: %v", name, wait.Round(time.Second), err)
		}
	}

	if err := backoff.RetryNotify(operation, schedule, notify); err != nil {
		if ctx.Err() != nil {
			return nil, NewDownloadErrorWithCause(ErrorCancelled, "download cancelled", ctx.Err())
		}
		if IsDownloadError(err, ErrorAuthenticationFailed) {
			c.registry.MarkAuthFailed(name, err.Error())
		}
		return nil, err
	}
	return files, nil
}

// DownloadWithFallback runs Download and, when the requested quality is
// unavailable, retries with the next qualities allowed by the policy.
// A quality above the platform's cap is clamped to the cap first; the
// policy steps only apply to unavailability reported by streamrip.
func (c *Client) DownloadWithFallback(ctx context.Context, req Request, progress ProgressFunc) (*Result, error) {
	start := req.Quality
	var clampNote string
	if platform, ok := c.registry.Platform(req.Descriptor.Platform); ok {
		if limit := platform.MaxQuality(); start > limit {
			start = limit
			clampNote = fmt.Sprintf("Quality %d unavailable on %s, fell back to %d", req.Quality, req.Descriptor.Platform, limit)
			if c.logger != nil {
				c.logger.Infof("Clamping quality %d to %d for %s", req.Quality, limit, req.Descriptor.Platform)
			}
		}
	}
	attempts := c.policy.Attempts(start)

	var lastErr error
	for i, quality := range attempts {
		if i > 0 {
			if c.logger != nil {
				c.logger.Infof("Quality %d unavailable on %s, falling back to %d", attempts[i-1], req.Descriptor.Platform, quality)
			}
			if err := resetDir(req.Dir); err != nil {
				return nil, NewDownloadErrorWithCause(ErrorFileSystemError, "failed to reset download directory", err)
			}
		}

		attempt := req
		attempt.Quality = quality
		files, err := c.Download(ctx, attempt, progress)
		if err == nil {
			result := &Result{Files: files, Requested: req.Quality, Quality: quality}
			switch {
			case quality != start:
				result.Note = fmt.Sprintf("Quality %d unavailable, fell back to %d", start, quality)
				if clampNote != "" {
					result.Note = clampNote + "; " + result.Note
				}
			case clampNote != "":
				result.Note = clampNote
			}
			return result, nil
		}
		if !IsDownloadError(err, ErrorQualityUnavailable) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Client) buildArgs(req Request) []string {
	var args []string
	if c.ripConfigPath != "" {
		args = append(args, "--config-path", c.ripConfigPath)
	}
	args = append(args, "--quality", strconv.Itoa(int(req.Quality)))
	if req.Codec != "" {
		args = append(args, "--codec", ripCodec(req.Codec))
	}
	args = append(args, "--no-db", "--folder", req.Dir)

	d := req.Descriptor
	if d.Platform == config.LastFM {
		return append(args, "lastfm", d.URL)
	}
	if d.URL != "" {
		return append(args, "url", d.URL)
	}
	return append(args, "id", d.Platform, string(d.Type), d.ID)
}

func ripCodec(codec Codec) string {
	switch codec {
	case "m4a":
		return "ALAC"
	default:
		return strings.ToUpper(string(codec))
	}
}

func resetDir(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
