package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"go-streamrip-bot/downloader"
)

const (
	progressBuffer = 256
	dailyWindow    = 24 * time.Hour
)

// Limits bounds admission. Zero disables a limit.
type Limits struct {
	PerUser int
	Global  int
	Daily   int
}

// Settings are per-user overrides of the configured defaults.
type Settings struct {
	Quality *downloader.Quality
	Codec   downloader.Codec
	Mode    Mode
}

// Session is the per-owner admission state.
type Session struct {
	OwnerID  int64
	Settings Settings

	active      map[string]struct{}
	submissions []time.Time
	loaded      bool
}

// Store persists finished jobs and user settings.
type Store interface {
	Archive(ctx context.Context, job Snapshot) error
	LoadSettings(ctx context.Context, ownerID int64) (Settings, error)
	SaveSettings(ctx context.Context, ownerID int64, settings Settings) error
}

// EventKind distinguishes observer notifications.
type EventKind int

const (
	EventSubmitted EventKind = iota
	EventTransition
	EventProgress
	EventRetired
)

// Event is published to observers after the tracker releases its lock.
type Event struct {
	Kind EventKind
	From State
	Job  Snapshot
}

// Observer receives every event. It runs on the goroutine that caused the
// event and must not block.
type Observer func(Event)

type progressReport struct {
	jobID    string
	progress downloader.Progress
}

// Tracker owns every in-flight job and user session.
type Tracker struct {
	mu        sync.RWMutex
	jobs      map[string]*Job
	sessions  map[int64]*Session
	observers []Observer

	limits     Limits
	isOperator func(int64) bool
	store      Store
	updates    chan progressReport
	dropped    atomic.Int64
	now        func() time.Time
	newID      func() string
	logger     *zap.SugaredLogger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithStore archives retired jobs and persists settings in store.
func WithStore(store Store) TrackerOption {
	return func(t *Tracker) {
		t.store = store
	}
}

// WithOperators grants the users for which fn returns true the right to
// cancel any job. Operators are also exempt from the daily limit.
func WithOperators(fn func(int64) bool) TrackerOption {
	return func(t *Tracker) {
		if fn != nil {
			t.isOperator = fn
		}
	}
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker creates an empty tracker.
func NewTracker(limits Limits, logger *zap.SugaredLogger, opts ...TrackerOption) *Tracker {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	t := &Tracker{
		jobs:       make(map[string]*Job),
		sessions:   make(map[int64]*Session),
		limits:     limits,
		isOperator: func(int64) bool { return false },
		updates:    make(chan progressReport, progressBuffer),
		now:        time.Now,
		newID:      newJobID,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Subscribe registers an observer.
func (t *Tracker) Subscribe(o Observer) {
	t.mu.Lock()
	t.observers = append(t.observers, o)
	t.mu.Unlock()
}

func (t *Tracker) publish(ev Event) {
	t.mu.RLock()
	observers := append([]Observer(nil), t.observers...)
	t.mu.RUnlock()
	for _, o := range observers {
		o(ev)
	}
}

func (t *Tracker) sessionLocked(ownerID int64) *Session {
	s, ok := t.sessions[ownerID]
	if !ok {
		s = &Session{OwnerID: ownerID, active: make(map[string]struct{})}
		t.sessions[ownerID] = s
	}
	return s
}

func (t *Tracker) activeCountLocked() int {
	n := 0
	for _, job := range t.jobs {
		if !job.state.IsTerminal() {
			n++
		}
	}
	return n
}

// Submit admits req as a Queued job. On error no job is created.
// The returned context is cancelled when the job is cancelled.
func (t *Tracker) Submit(ctx context.Context, req Request) (Snapshot, context.Context, error) {
	t.mu.Lock()

	now := t.now()
	session := t.sessionLocked(req.OwnerID)
	exempt := t.isOperator(req.OwnerID)

	if t.limits.PerUser > 0 && len(session.active) >= t.limits.PerUser {
		t.mu.Unlock()
		return Snapshot{}, nil, fmt.Errorf("%w: you already have %d of %d tasks running", ErrCapacityExceeded, len(session.active), t.limits.PerUser)
	}
	if t.limits.Global > 0 {
		if active := t.activeCountLocked(); active >= t.limits.Global {
			t.mu.Unlock()
			return Snapshot{}, nil, fmt.Errorf("%w: the bot is busy with %d of %d tasks", ErrCapacityExceeded, active, t.limits.Global)
		}
	}

	recent := session.submissions[:0]
	for _, at := range session.submissions {
		if now.Sub(at) < dailyWindow {
			recent = append(recent, at)
		}
	}
	session.submissions = recent
	if !exempt && t.limits.Daily > 0 && len(recent) >= t.limits.Daily {
		t.mu.Unlock()
		return Snapshot{}, nil, fmt.Errorf("%w: %d tasks in the last 24h", ErrDailyLimit, len(recent))
	}

	id := t.newID()
	for _, taken := t.jobs[id]; taken; _, taken = t.jobs[id] {
		id = t.newID()
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		id:         id,
		request:    req,
		state:      StateQueued,
		descriptor: req.Descriptor,
		effective:  req.Quality,
		createdAt:  now,
		updatedAt:  now,
		cancel:     cancel,
	}
	t.jobs[id] = job
	session.active[id] = struct{}{}
	session.submissions = append(session.submissions, now)
	snap := job.snapshot()
	t.mu.Unlock()

	t.logger.Infof("Job %s queued for user %d: %s (quality %d, %s, %s)", id, req.OwnerID, snap.DisplayName(), req.Quality, req.Codec, req.Mode)
	t.publish(Event{Kind: EventSubmitted, From: StateQueued, Job: snap})
	return snap, jobCtx, nil
}

func (t *Tracker) setStateLocked(job *Job, to State) {
	now := t.now()
	job.state = to
	job.updatedAt = now
	if to == StateDownloading && job.startedAt.IsZero() {
		job.startedAt = now
	}
	if to.IsTerminal() {
		job.finishedAt = now
		if s, ok := t.sessions[job.request.OwnerID]; ok {
			delete(s.active, job.id)
		}
	}
}

// Transition moves a job along the state machine.
func (t *Tracker) Transition(id string, to State) (Snapshot, error) {
	return t.transition(id, to, "")
}

// Fail moves a job to Failed with a human-readable reason.
func (t *Tracker) Fail(id string, reason string) (Snapshot, error) {
	if reason == "" {
		reason = "unknown error"
	}
	return t.transition(id, StateFailed, reason)
}

func (t *Tracker) transition(id string, to State, reason string) (Snapshot, error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	from := job.state
	if from.IsTerminal() {
		snap := job.snapshot()
		t.mu.Unlock()
		return snap, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, from)
	}
	if !from.CanTransition(to) {
		snap := job.snapshot()
		t.mu.Unlock()
		return snap, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if reason != "" {
		job.reason = reason
	}
	t.setStateLocked(job, to)
	snap := job.snapshot()
	t.mu.Unlock()

	if to == StateFailed {
		t.logger.Errorf("Job %s %s -> %s: %s", id, from, to, reason)
	} else {
		t.logger.Infof("Job %s %s -> %s", id, from, to)
	}
	t.publish(Event{Kind: EventTransition, From: from, Job: snap})
	return snap, nil
}

// Cancel moves a job to Cancelled and signals its context. Only the owner
// or an operator may cancel.
func (t *Tracker) Cancel(id string, requesterID int64) (Snapshot, error) {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return Snapshot{}, ErrNotFound
	}
	if job.request.OwnerID != requesterID && !t.isOperator(requesterID) {
		t.mu.Unlock()
		return Snapshot{}, ErrUnauthorized
	}
	from := job.state
	if from.IsTerminal() {
		snap := job.snapshot()
		t.mu.Unlock()
		return snap, fmt.Errorf("%w: %s is %s", ErrAlreadyTerminal, id, from)
	}
	job.reason = fmt.Sprintf("cancelled by %d", requesterID)
	t.setStateLocked(job, StateCancelled)
	cancel := job.cancel
	snap := job.snapshot()
	t.mu.Unlock()

	cancel()
	t.logger.Infof("Job %s %s -> %s by user %d", id, from, StateCancelled, requesterID)
	t.publish(Event{Kind: EventTransition, From: from, Job: snap})
	return snap, nil
}

// CancelAll cancels every unfinished job requesterID may cancel.
func (t *Tracker) CancelAll(requesterID int64) []Snapshot {
	t.mu.RLock()
	var ids []string
	operator := t.isOperator(requesterID)
	for id, job := range t.jobs {
		if job.state.IsTerminal() {
			continue
		}
		if operator || job.request.OwnerID == requesterID {
			ids = append(ids, id)
		}
	}
	t.mu.RUnlock()

	var cancelled []Snapshot
	for _, id := range ids {
		if snap, err := t.Cancel(id, requesterID); err == nil {
			cancelled = append(cancelled, snap)
		}
	}
	return cancelled
}

// Resolved records the descriptor the job downloads.
func (t *Tracker) Resolved(id string, descriptor downloader.MediaDescriptor) error {
	return t.update(id, func(job *Job) {
		job.descriptor = descriptor
	})
}

// Downloaded records the outcome of the streamrip run.
func (t *Tracker) Downloaded(id string, effective downloader.Quality, note string, files int, bytes int64) error {
	return t.update(id, func(job *Job) {
		job.effective = effective
		job.files = files
		job.bytes = bytes
		if note != "" {
			job.note = note
		}
	})
}

// SetNote replaces the job's note.
func (t *Tracker) SetNote(id, note string) error {
	return t.update(id, func(job *Job) {
		job.note = note
	})
}

func (t *Tracker) update(id string, fn func(*Job)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if job.state.IsTerminal() {
		return ErrAlreadyTerminal
	}
	fn(job)
	job.updatedAt = t.now()
	return nil
}

// ReportProgress enqueues a progress update without blocking. Updates are
// dropped when the buffer is full.
func (t *Tracker) ReportProgress(id string, progress downloader.Progress) {
	select {
	case t.updates <- progressReport{jobID: id, progress: progress}:
	default:
		t.dropped.Add(1)
	}
}

// Run applies progress updates until ctx is done.
func (t *Tracker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			if n := t.dropped.Load(); n > 0 {
				t.logger.Debugf("Tracker stopped, %d progress updates were dropped", n)
			}
			return
		case report := <-t.updates:
			t.applyProgress(report)
		}
	}
}

func (t *Tracker) applyProgress(report progressReport) {
	t.mu.Lock()
	job, ok := t.jobs[report.jobID]
	if !ok || job.state.IsTerminal() {
		t.mu.Unlock()
		return
	}
	job.progress = report.progress
	job.updatedAt = t.now()
	snap := job.snapshot()
	t.mu.Unlock()

	t.publish(Event{Kind: EventProgress, From: snap.State, Job: snap})
}

// Retire drops a terminal job from memory and archives it.
func (t *Tracker) Retire(ctx context.Context, id string) error {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if !ok {
		t.mu.Unlock()
		return ErrNotFound
	}
	if !job.state.IsTerminal() {
		t.mu.Unlock()
		return fmt.Errorf("%w: cannot retire %s job %s", ErrInvalidTransition, job.state, id)
	}
	delete(t.jobs, id)
	snap := job.snapshot()
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.Archive(ctx, snap); err != nil {
			t.logger.Warnf("Failed to archive job %s: %v", id, err)
		}
	}
	t.logger.Debugf("Job %s retired (%s)", id, snap.State)
	t.publish(Event{Kind: EventRetired, From: snap.State, Job: snap})
	return nil
}

// Get returns a snapshot of one job.
func (t *Tracker) Get(id string) (Snapshot, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	job, ok := t.jobs[id]
	if !ok {
		return Snapshot{}, false
	}
	return job.snapshot(), true
}

// Status returns snapshots of the owner's tracked jobs, oldest first.
func (t *Tracker) Status(ownerID int64) []Snapshot {
	return t.collect(func(job *Job) bool { return job.request.OwnerID == ownerID })
}

// All returns every tracked job, oldest first.
func (t *Tracker) All() []Snapshot {
	return t.collect(func(*Job) bool { return true })
}

func (t *Tracker) collect(keep func(*Job) bool) []Snapshot {
	t.mu.RLock()
	snaps := make([]Snapshot, 0, len(t.jobs))
	for _, job := range t.jobs {
		if keep(job) {
			snaps = append(snaps, job.snapshot())
		}
	}
	t.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.Before(snaps[j].CreatedAt)
	})
	return snaps
}

// ActiveIDs returns the ids of the owner's unfinished jobs.
func (t *Tracker) ActiveIDs(ownerID int64) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.sessions[ownerID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Settings returns the owner's overrides, loading them from the store on first use.
func (t *Tracker) Settings(ctx context.Context, ownerID int64) Settings {
	t.mu.RLock()
	s, ok := t.sessions[ownerID]
	t.mu.RUnlock()
	if ok && s.loaded {
		return s.Settings
	}

	var loaded Settings
	if t.store != nil {
		var err error
		if loaded, err = t.store.LoadSettings(ctx, ownerID); err != nil {
			t.logger.Warnf("Failed to load settings for user %d: %v", ownerID, err)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	s = t.sessionLocked(ownerID)
	if !s.loaded {
		s.Settings = loaded
		s.loaded = true
	}
	return s.Settings
}

// UpdateSettings applies fn to the owner's settings and persists the result.
func (t *Tracker) UpdateSettings(ctx context.Context, ownerID int64, fn func(*Settings)) (Settings, error) {
	current := t.Settings(ctx, ownerID)
	fn(&current)

	t.mu.Lock()
	t.sessionLocked(ownerID).Settings = current
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.SaveSettings(ctx, ownerID, current); err != nil {
			return current, fmt.Errorf("failed to save settings: %w", err)
		}
	}
	return current, nil
}
