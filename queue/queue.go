package queue

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/missionflow/mission"
)

// Common errors
var (
	// ErrClosed is returned by queue operations after Close.
	ErrClosed = errors.New("queue is closed")

	// ErrNoQueues is returned when a consumer asks to dequeue from an
	// empty queue list and the backend has no queues at all.
	ErrNoQueues = errors.New("no queues to consume")
)

// Well-known status blob keys written by the bridge and the default
// reporter.
const (
	// StatusKeyProgress holds the serialized mission Progress checkpoint.
	StatusKeyProgress = "progress"

	// StatusKeyState holds the job lifecycle state (queued, working,
	// completed, failed).
	StatusKeyState = "status"

	// StatusKeyError holds the last error message of a failed attempt.
	StatusKeyError = "error"

	// StatusKeyNum, StatusKeyTotal and StatusKeyMessage carry the numeric
	// step progress and its display label for observers.
	StatusKeyNum     = "num"
	StatusKeyTotal   = "total"
	StatusKeyMessage = "message"
)

// Job lifecycle states stored under StatusKeyState.
const (
	StateQueued    = "queued"
	StateWorking   = "working"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Payload is what callers hand to Enqueue: the task type, the queue it
// runs on, and the construction arguments, which are the job's sole payload.
type Payload struct {
	Type  string         `json:"type"`
	Queue string         `json:"queue"`
	Args  map[string]any `json:"args,omitempty"`
}

// Job is one queue-dispatched execution attempt of a mission. It exists
// only for the duration of the attempt; everything durable lives in the
// status store under the job ID.
type Job struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Queue      string         `json:"queue"`
	Args       map[string]any `json:"args,omitempty"`
	Attempts   int            `json:"attempts"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// StatusStore is the queue's persisted per-job key-value state. It carries
// the Progress checkpoint and arbitrary step-written data across attempts;
// each Merge is expected to be an atomic write.
type StatusStore interface {
	// Read returns the job's full status blob. An unknown job yields an
	// empty map, not an error.
	Read(ctx context.Context, jobID string) (map[string]any, error)

	// Merge writes the given fields into the job's status blob,
	// overwriting existing keys and keeping the rest.
	Merge(ctx context.Context, jobID string, fields map[string]any) error
}

// Reporter is the queue's native progress-report primitive.
type Reporter interface {
	Report(ctx context.Context, jobID string, index, total int, label string, p *mission.Progress) error
}

// Queue is the external job queue boundary consumed by this package. The
// queue owns transport, durability and delivery guarantees; at-most-one
// concurrent attempt per job ID is its responsibility, since the Progress
// checkpoint protocol is not designed for concurrent mutation.
type Queue interface {
	// Enqueue submits a payload and returns the queue-defined job ID.
	Enqueue(ctx context.Context, p *Payload) (string, error)

	// Dequeue blocks until a job is available on one of the named queues
	// or ctx is done. An empty queue list consumes from every queue.
	Dequeue(ctx context.Context, queues []string) (*Job, error)

	// Requeue puts a job back for another attempt after the given delay.
	Requeue(ctx context.Context, job *Job, delay time.Duration) error

	// DeadLetter retains a job that exhausted its retries and records the
	// cause in its status blob.
	DeadLetter(ctx context.Context, job *Job, cause error) error

	// Status returns the queue's per-job status store.
	Status() StatusStore

	Close() error
}

// StatusReporter is the default Reporter: it merges the numeric progress
// and display label into the job's status blob so observers can render
// "2/3 Transform".
type StatusReporter struct {
	store StatusStore
}

// NewStatusReporter creates a Reporter backed by the given status store.
func NewStatusReporter(store StatusStore) *StatusReporter {
	return &StatusReporter{store: store}
}

// Report merges num/total/message into the job's status blob.
func (r *StatusReporter) Report(ctx context.Context, jobID string, index, total int, label string, _ *mission.Progress) error {
	return r.store.Merge(ctx, jobID, map[string]any{
		StatusKeyNum:     index,
		StatusKeyTotal:   total,
		StatusKeyMessage: label,
	})
}

var _ Reporter = (*StatusReporter)(nil)

// RetryConfig defines the worker pool's retry behavior for failed jobs.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 3)
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// InitialBackoff is the initial backoff duration (default: 1s)
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff is the maximum backoff duration (default: 30s)
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// BackoffMultiplier is the multiplier for exponential backoff (default: 2.0)
	BackoffMultiplier float64 `json:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// DefaultRetryConfig returns the default retry configuration.
// Conservative strategy: max 3 retries with exponential backoff 1s/2s/4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Backoff calculates the backoff duration for a given retry attempt.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return c.InitialBackoff
	}

	backoff := c.InitialBackoff
	for i := 0; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * c.BackoffMultiplier)
		if backoff > c.MaxBackoff {
			return c.MaxBackoff
		}
	}
	return backoff
}
