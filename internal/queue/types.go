package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job is not running")
	ErrInvalidJob    = errors.New("invalid job")
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

const (
	DefaultTimeout     = 5 * time.Minute
	DefaultMaxAttempts = 3
	// finished jobs stay readable for this long
	DefaultResultTTL = 24 * time.Hour
)

// Job is one unit of queued work
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Status      Status          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Timeout     time.Duration   `json:"timeout"`
	Error       string          `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	Deadline    *time.Time      `json:"deadline,omitempty"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
}

// Decode unmarshals the payload into v
func (j *Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrInvalidJob, j.Name, err)
	}

	return nil
}

func (j *Job) canRetry() bool {
	return j.Attempts < j.MaxAttempts
}

type EnqueueOptions struct {
	Timeout     time.Duration
	MaxAttempts int
}

func (o EnqueueOptions) withDefaults() EnqueueOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}

	return o
}

type Stats struct {
	Pending int64 `json:"pending"`
	Running int64 `json:"running"`
}

// Broker stores jobs and hands them to workers
type Broker interface {
	Enqueue(ctx context.Context, name string, payload any, opts EnqueueOptions) (string, error)
	// waits up to wait for a job; returns nil, nil when none arrived
	Dequeue(ctx context.Context, wait time.Duration) (*Job, error)
	Complete(ctx context.Context, id string, result any) error
	// retry requeues the job when it has attempts left
	Fail(ctx context.Context, id string, cause error, retry bool) error
	Get(ctx context.Context, id string) (*Job, error)
	// running jobs whose deadline passed before now, plus claims that never
	// started when the broker can observe them
	ListStale(ctx context.Context, now time.Time) ([]*Job, error)
	// ends a job listed by ListStale; it is requeued when attempts remain.
	// ErrJobNotRunning when the job moved on since it was listed.
	Abandon(ctx context.Context, stale *Job, reason string) (requeued bool, err error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// Handler runs one job; the returned value is stored as the job result
type Handler func(ctx context.Context, job *Job) (any, error)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
