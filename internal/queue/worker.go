package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	apierrors "codeberg.org/crawlsearch/server/internal/errors"
	"codeberg.org/crawlsearch/server/internal/logger"
	"codeberg.org/crawlsearch/server/internal/metrics"
)

const (
	defaultPollWait    = time.Second
	brokerErrorBackoff = 2 * time.Second
	settleTimeout      = 10 * time.Second
)

// WorkerPool runs registered handlers for dequeued jobs on a fixed number of goroutines
type WorkerPool struct {
	broker      Broker
	recorder    metrics.Recorder
	concurrency int
	pollWait    time.Duration

	mu       sync.RWMutex
	handlers map[string]Handler

	stopping atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewWorkerPool(broker Broker, concurrency int, recorder metrics.Recorder) *WorkerPool {
	if concurrency <= 0 {
		concurrency = 1
	}

	if recorder == nil {
		recorder = metrics.NopRecorder{}
	}

	return &WorkerPool{
		broker:      broker,
		recorder:    recorder,
		concurrency: concurrency,
		pollWait:    defaultPollWait,
		handlers:    make(map[string]Handler),
	}
}

// Register binds a handler to a job name
func (p *WorkerPool) Register(name string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handlers[name] = h
}

func (p *WorkerPool) handler(name string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h, ok := p.handlers[name]
	return h, ok
}

// begins the worker loops
func (p *WorkerPool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	for i := range p.concurrency {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}

	logger.Info("worker pool started", "concurrency", p.concurrency)
}

// Stop asks workers to finish their current job and exit. When ctx ends first
// the running jobs are canceled.
func (p *WorkerPool) Stop(ctx context.Context) error {
	p.stopping.Store(true)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("worker pool stopped")
		return nil
	case <-ctx.Done():
		if p.cancel != nil {
			p.cancel()
		}
		<-done
		logger.Warn("worker pool stopped before jobs finished")
		return ctx.Err()
	}
}

func (p *WorkerPool) loop(ctx context.Context, worker int) {
	defer p.wg.Done()

	for !p.stopping.Load() {
		job, err := p.broker.Dequeue(ctx, p.pollWait)

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			logger.ErrorErr(err, "failed to dequeue job", "worker", worker)
			sleep(ctx, brokerErrorBackoff)
			continue
		}

		if job == nil {
			continue
		}

		p.process(ctx, job)
	}
}

func (p *WorkerPool) process(ctx context.Context, job *Job) {
	started := time.Now()
	log := logger.With("job_id", job.ID, "job_name", job.Name, "attempt", job.Attempts)

	h, ok := p.handler(job.Name)
	if !ok {
		log.Error("no handler registered for job")
		p.settle(job, started, nil, Permanent(fmt.Errorf("no handler for %q", job.Name)))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	log.Debug("job started")
	result, err := run(jobCtx, h, job)

	if err == nil && jobCtx.Err() != nil {
		err = jobCtx.Err()
	}

	p.settle(job, started, result, err)
}

// reports the outcome to the broker with a fresh context so a canceled job still settles
func (p *WorkerPool) settle(job *Job, started time.Time, result any, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()

	log := logger.With("job_id", job.ID, "job_name", job.Name, "attempt", job.Attempts)

	p.recorder.Record(ctx, metrics.Record{
		OperationType: metrics.OpQueue,
		OperationName: job.Name,
		Duration:      time.Since(started),
		Success:       err == nil,
		JobID:         job.ID,
		Error:         errString(err),
		Metadata:      map[string]any{"attempt": job.Attempts},
	})

	var settleErr error
	if err == nil {
		settleErr = p.broker.Complete(ctx, job.ID, result)
		log.Info("job completed", "duration_ms", time.Since(started).Milliseconds())
	} else {
		retry := !IsPermanent(err)
		settleErr = p.broker.Fail(ctx, job.ID, err, retry)
		log.Warn("job failed",
			"error", err,
			"category", apierrors.Classify(err),
			"retry", retry && job.canRetry(),
		)
	}

	if errors.Is(settleErr, ErrJobNotRunning) {
		log.Warn("job was reclaimed before it settled")
		return
	}

	if settleErr != nil {
		log.Error("failed to settle job", "error", settleErr)
	}
}

func run(ctx context.Context, h Handler, job *Job) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("handler panicked: %v", r))
		}
	}()

	return h(ctx, job)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
