package queue

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"go-streamrip-bot/downloader"
)

var (
	// ErrCapacityExceeded is returned by Submit when a per-user or bot-wide
	// task limit is reached.
	ErrCapacityExceeded = errors.New("task limit reached")
	// ErrDailyLimit is returned by Submit when the owner used up the daily quota.
	ErrDailyLimit = errors.New("daily task limit reached")
	// ErrNotFound means no tracked job has the given id.
	ErrNotFound = errors.New("job not found")
	// ErrUnauthorized means the requester neither owns the job nor operates the bot.
	ErrUnauthorized = errors.New("not allowed to manage this job")
	// ErrAlreadyTerminal means the job already finished.
	ErrAlreadyTerminal = errors.New("job already finished")
	// ErrInvalidTransition means the state machine does not allow the change.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// State is the lifecycle position of a job.
type State int

const (
	StateQueued State = iota
	StateDownloading
	StateConverting
	StateUploading
	StateDone
	StateFailed
	StateCancelled
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateDownloading:
		return "Downloading"
	case StateConverting:
		return "Converting"
	case StateUploading:
		return "Uploading"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	case StateCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsActive returns true while streamrip or the delivery layer is working on the job.
func (s State) IsActive() bool {
	return s == StateDownloading || s == StateConverting || s == StateUploading
}

// IsTerminal returns true for Done, Failed and Cancelled.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

var transitions = map[State][]State{
	StateQueued:      {StateDownloading, StateCancelled},
	StateDownloading: {StateConverting, StateUploading, StateFailed, StateCancelled},
	StateConverting:  {StateUploading, StateFailed, StateCancelled},
	StateUploading:   {StateDone, StateFailed, StateCancelled},
}

// CanTransition reports whether the state machine allows s -> to.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode selects how finished downloads reach the user.
type Mode string

const (
	// ModeMirror copies files to the mirror directory.
	ModeMirror Mode = "mirror"
	// ModeLeech uploads files into the chat.
	ModeLeech Mode = "leech"
)

// ParseMode accepts "mirror" and "leech".
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeMirror:
		return ModeMirror, true
	case ModeLeech:
		return ModeLeech, true
	}
	return "", false
}

// Request is everything the dispatcher knows about a job before admission.
type Request struct {
	OwnerID int64
	ChatID  int64
	// MessageID is the command message; status replies thread under it.
	MessageID int
	// Source is the URL, streamrip URI or search selection the user sent.
	Source string
	// Descriptor is filled when the dispatcher already resolved Source.
	Descriptor downloader.MediaDescriptor
	Name       string
	Quality    downloader.Quality
	Codec      downloader.Codec
	Mode       Mode
}

// Job is the tracker's mutable record. Only the tracker touches it.
type Job struct {
	id      string
	request Request

	state      State
	descriptor downloader.MediaDescriptor
	effective  downloader.Quality
	progress   downloader.Progress
	note       string
	reason     string
	files      int
	bytes      int64

	createdAt  time.Time
	startedAt  time.Time
	updatedAt  time.Time
	finishedAt time.Time

	cancel func()
}

// Snapshot is an immutable copy of a job handed to readers.
type Snapshot struct {
	ID         string
	OwnerID    int64
	ChatID     int64
	MessageID  int
	Source     string
	Name       string
	Descriptor downloader.MediaDescriptor
	Mode       Mode
	Codec      downloader.Codec

	RequestedQuality downloader.Quality
	EffectiveQuality downloader.Quality

	State    State
	Progress downloader.Progress
	Note     string
	Reason   string
	Files    int
	Bytes    int64

	CreatedAt  time.Time
	StartedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt time.Time
}

// DisplayName is the custom name, the descriptor or the raw source, whichever is set first.
func (s Snapshot) DisplayName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Descriptor.ID != "":
		return s.Descriptor.String()
	default:
		return s.Source
	}
}

// Elapsed is the time spent since the job left the queue, or since creation while queued.
func (s Snapshot) Elapsed(now time.Time) time.Duration {
	start := s.StartedAt
	if start.IsZero() {
		start = s.CreatedAt
	}
	end := now
	if !s.FinishedAt.IsZero() {
		end = s.FinishedAt
	}
	return end.Sub(start)
}

func (j *Job) snapshot() Snapshot {
	return Snapshot{
		ID:               j.id,
		OwnerID:          j.request.OwnerID,
		ChatID:           j.request.ChatID,
		MessageID:        j.request.MessageID,
		Source:           j.request.Source,
		Name:             j.request.Name,
		Descriptor:       j.descriptor,
		Mode:             j.request.Mode,
		Codec:            j.request.Codec,
		RequestedQuality: j.request.Quality,
		EffectiveQuality: j.effective,
		State:            j.state,
		Progress:         j.progress,
		Note:             j.note,
		Reason:           j.reason,
		Files:            j.files,
		Bytes:            j.bytes,
		CreatedAt:        j.createdAt,
		StartedAt:        j.startedAt,
		UpdatedAt:        j.updatedAt,
		FinishedAt:       j.finishedAt,
	}
}

// newJobID returns a short id; callers check for collisions.
func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
