package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBroker keeps jobs in process memory. Jobs are lost on restart.
type MemoryBroker struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	pending []string
	notify  chan struct{}
	now     func() time.Time
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{
		jobs:   make(map[string]*Job),
		notify: make(chan struct{}, 1),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (b *MemoryBroker) Close() error { return nil }

func (b *MemoryBroker) Enqueue(_ context.Context, name string, payload any, opts EnqueueOptions) (string, error) {
	job, err := newJob(name, payload, opts, b.now())
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	b.jobs[job.ID] = job
	b.pushLocked(job.ID)
	b.mu.Unlock()

	return job.ID, nil
}

func (b *MemoryBroker) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		b.mu.Lock()
		if len(b.pending) > 0 {
			id := b.pending[0]
			b.pending = b.pending[1:]

			job := b.jobs[id]
			markRunning(job, b.now())
			out := *job
			b.mu.Unlock()

			return &out, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-b.notify:
		}
	}
}

func (b *MemoryBroker) Complete(_ context.Context, id string, result any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, err := b.runningLocked(id)
	if err != nil {
		return err
	}

	return markCompleted(job, result, b.now())
}

func (b *MemoryBroker) Fail(_ context.Context, id string, cause error, retry bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, err := b.runningLocked(id)
	if err != nil {
		return err
	}

	if markFailed(job, errString(cause), retry, b.now()) {
		b.pushLocked(id)
	}

	return nil
}

func (b *MemoryBroker) Get(_ context.Context, id string) (*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, ok := b.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	out := *job
	return &out, nil
}

func (b *MemoryBroker) ListStale(_ context.Context, now time.Time) ([]*Job, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var stale []*Job
	for _, job := range b.jobs {
		if job.Status == StatusRunning && job.Deadline != nil && job.Deadline.Before(now) {
			out := *job
			stale = append(stale, &out)
		}
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].Deadline.Before(*stale[j].Deadline) })
	return stale, nil
}

func (b *MemoryBroker) Abandon(_ context.Context, stale *Job, reason string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	job, err := b.runningLocked(stale.ID)
	if err != nil {
		return false, err
	}

	if job.Attempts != stale.Attempts {
		return false, ErrJobNotRunning
	}

	requeued := markFailed(job, "abandoned: "+reason, true, b.now())
	if requeued {
		b.pushLocked(stale.ID)
	}

	return requeued, nil
}

func (b *MemoryBroker) Stats(context.Context) (Stats, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := Stats{Pending: int64(len(b.pending))}
	for _, job := range b.jobs {
		if job.Status == StatusRunning {
			stats.Running++
		}
	}

	return stats, nil
}

func (b *MemoryBroker) runningLocked(id string) (*Job, error) {
	job, ok := b.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}

	if job.Status != StatusRunning {
		return nil, ErrJobNotRunning
	}

	return job, nil
}

func (b *MemoryBroker) pushLocked(id string) {
	b.pending = append(b.pending, id)

	select {
	case b.notify <- struct{}{}:
	default:
	}
}
