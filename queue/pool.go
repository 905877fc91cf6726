package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"go-streamrip-bot/downloader"
)

// Resolver turns a URL or streamrip URI into a descriptor.
type Resolver interface {
	Resolve(ref string) (downloader.MediaDescriptor, error)
}

// Downloader runs streamrip for a descriptor.
type Downloader interface {
	DownloadWithFallback(ctx context.Context, req downloader.Request, progress downloader.ProgressFunc) (*downloader.Result, error)
}

// Deliverer hands finished files to the user. The returned note is shown
// with the finished job. Errors may implement Note() string to describe a
// partial delivery.
type Deliverer interface {
	Deliver(ctx context.Context, job Snapshot, files []string, progress downloader.ProgressFunc) (string, error)
}

// PoolConfig holds the pool's resource limits.
type PoolConfig struct {
	DownloadDir string
	Concurrency int
	// SizeLimit rejects downloads larger than this many bytes. Zero disables it.
	SizeLimit int64
}

// Pool runs admitted jobs with at most Concurrency downloads at once.
type Pool struct {
	tracker    *Tracker
	resolver   Resolver
	downloader Downloader
	deliverer  Deliverer
	cfg        PoolConfig
	sem        *semaphore.Weighted
	logger     *zap.SugaredLogger

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewPool creates a pool. Close must be called on shutdown.
func NewPool(tracker *Tracker, resolver Resolver, dl Downloader, deliverer Deliverer, cfg PoolConfig, logger *zap.SugaredLogger) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Pool{
		tracker:    tracker,
		resolver:   resolver,
		downloader: dl,
		deliverer:  deliverer,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:     logger,
		ctx:        ctx,
		stop:       stop,
	}
}

// Tracker returns the tracker jobs are registered with.
func (p *Pool) Tracker() *Tracker {
	return p.tracker
}

// JobDir is the download directory reserved for a job.
func (p *Pool) JobDir(id string) string {
	return filepath.Join(p.cfg.DownloadDir, "streamrip_"+id)
}

// Submit admits req and starts working on it in the background.
func (p *Pool) Submit(req Request) (Snapshot, error) {
	snap, jobCtx, err := p.tracker.Submit(p.ctx, req)
	if err != nil {
		return Snapshot{}, err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		keep := p.execute(jobCtx, snap)
		p.finish(snap.ID, keep)
	}()
	return snap, nil
}

// Close cancels every running job and waits for the workers to clean up.
func (p *Pool) Close() {
	p.stop()
	p.wg.Wait()
}

// execute runs the pipeline and reports whether the job directory must be
// kept for inspection.
func (p *Pool) execute(ctx context.Context, snap Snapshot) bool {
	id := snap.ID

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer p.sem.Release(1)

	if _, err := p.tracker.Transition(id, StateDownloading); err != nil {
		return false
	}

	descriptor := snap.Descriptor
	if descriptor.ID == "" && descriptor.URL == "" {
		resolved, err := p.resolver.Resolve(snap.Source)
		if err != nil {
			p.fail(ctx, id, err)
			return false
		}
		descriptor = resolved
		_ = p.tracker.Resolved(id, resolved)
	}

	var converting atomic.Bool
	progress := func(update downloader.Progress) {
		p.tracker.ReportProgress(id, update)
		if update.Phase == downloader.PhaseConverting && converting.CompareAndSwap(false, true) {
			_, _ = p.tracker.Transition(id, StateConverting)
		}
	}

	result, err := p.downloader.DownloadWithFallback(ctx, downloader.Request{
		Descriptor: descriptor,
		Quality:    snap.RequestedQuality,
		Codec:      snap.Codec,
		Dir:        p.JobDir(id),
	}, progress)
	if err != nil {
		p.fail(ctx, id, err)
		return false
	}

	size := totalSize(result.Files)
	_ = p.tracker.Downloaded(id, result.Quality, result.Note, len(result.Files), size)
	if result.FellBack() {
		p.logger.Infof("Job %s: %s", id, result.Note)
	}

	if p.cfg.SizeLimit > 0 && size > p.cfg.SizeLimit {
		_, _ = p.tracker.Fail(id, fmt.Sprintf("Download is %s, above the %s limit",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(p.cfg.SizeLimit))))
		return false
	}

	uploading, err := p.tracker.Transition(id, StateUploading)
	if err != nil {
		return false
	}

	note, err := p.deliverer.Deliver(ctx, uploading, result.Files, func(update downloader.Progress) {
		p.tracker.ReportProgress(id, update)
	})
	if err != nil {
		var partial interface{ Note() string }
		if errors.As(err, &partial) && partial.Note() != "" {
			_ = p.tracker.SetNote(id, joinNotes(result.Note, partial.Note()))
		}
		p.fail(ctx, id, err)
		return true
	}

	if note != "" {
		_ = p.tracker.SetNote(id, joinNotes(result.Note, note))
	}
	_, _ = p.tracker.Transition(id, StateDone)
	return false
}

func (p *Pool) fail(ctx context.Context, id string, err error) {
	if ctx.Err() != nil || downloader.IsDownloadError(err, downloader.ErrorCancelled) {
		// Cancel already moved the job, or finish will on shutdown.
		return
	}
	if _, ferr := p.tracker.Fail(id, failureReason(err)); ferr != nil {
		p.logger.Debugf("Job %s could not be failed: %v", id, ferr)
	}
}

// finish cleans up the job directory and retires the job.
func (p *Pool) finish(id string, keep bool) {
	snap, ok := p.tracker.Get(id)
	if !ok {
		return
	}
	if !snap.State.IsTerminal() {
		// The pool was closed underneath the job.
		if cancelled, err := p.tracker.Cancel(id, snap.OwnerID); err == nil {
			snap = cancelled
		}
	}

	dir := p.JobDir(id)
	switch {
	case snap.State == StateFailed && keep:
		p.logger.Warnf("Job %s failed during delivery, keeping %s for inspection", id, dir)
	default:
		if err := os.RemoveAll(dir); err != nil {
			p.logger.Warnf("Failed to remove %s: %v", dir, err)
		}
	}

	if err := p.tracker.Retire(context.Background(), id); err != nil {
		p.logger.Warnf("Failed to retire job %s: %v", id, err)
	}
}

func failureReason(err error) string {
	var de *downloader.DownloadError
	if errors.As(err, &de) && de.Message != "" {
		return de.Message
	}
	return err.Error()
}

func joinNotes(notes ...string) string {
	var out string
	for _, n := range notes {
		switch {
		case n == "":
		case out == "":
			out = n
		default:
			out += "; " + n
		}
	}
	return out
}

func totalSize(files []string) int64 {
	var total int64
	for _, f := range files {
		if info, err := os.Stat(f); err == nil {
			total += info.Size()
		}
	}
	return total
}
