package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func newJob(name string, payload any, opts EnqueueOptions, now time.Time) (*Job, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidJob)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrInvalidJob, err)
	}

	opts = opts.withDefaults()

	return &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     raw,
		Status:      StatusQueued,
		MaxAttempts: opts.MaxAttempts,
		Timeout:     opts.Timeout,
		EnqueuedAt:  now,
	}, nil
}

func markRunning(j *Job, now time.Time) {
	deadline := now.Add(j.Timeout)

	j.Status = StatusRunning
	j.Attempts++
	j.StartedAt = &now
	j.Deadline = &deadline
	j.FinishedAt = nil
}

func markCompleted(j *Job, result any, now time.Time) error {
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to encode job result: %w", err)
		}

		j.Result = raw
	}

	j.Status = StatusCompleted
	j.Error = ""
	j.Deadline = nil
	j.FinishedAt = &now

	return nil
}

// records the failure and reports whether the job goes back to pending
func markFailed(j *Job, msg string, retry bool, now time.Time) bool {
	j.Error = msg
	j.Deadline = nil

	if retry && j.canRetry() {
		j.Status = StatusQueued
		return true
	}

	j.Status = StatusFailed
	j.FinishedAt = &now
	return false
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
