package metrics

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/crawlsearch/server/internal/logger"
)

// BufferedRecorder keeps records in a bounded buffer and hands them to a Sink in batches
type BufferedRecorder struct {
	sink      Sink
	interval  time.Duration
	batchSize int

	mu      sync.Mutex
	buf     []Record
	maxSize int
	dropped atomic.Int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type Options struct {
	BufferSize    int
	FlushInterval time.Duration
	BatchSize     int
}

func NewBufferedRecorder(sink Sink, opts Options) *BufferedRecorder {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}

	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	return &BufferedRecorder{
		sink:      sink,
		interval:  opts.FlushInterval,
		batchSize: opts.BatchSize,
		maxSize:   opts.BufferSize,
		buf:       make([]Record, 0, opts.BufferSize),
		stopCh:    make(chan struct{}),
	}
}

// Record buffers rec. When the buffer is full the record is dropped.
func (r *BufferedRecorder) Record(_ context.Context, rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	if len(r.buf) >= r.maxSize {
		r.mu.Unlock()

		if n := r.dropped.Add(1); n == 1 || n%100 == 0 {
			logger.Warn("metrics buffer full, dropping records", "dropped", n)
		}
		return
	}

	r.buf = append(r.buf, rec)
	r.mu.Unlock()
}

// number of records dropped since start
func (r *BufferedRecorder) Dropped() int64 {
	return r.dropped.Load()
}

// number of records waiting for a flush
func (r *BufferedRecorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.buf)
}

// begins the background flush loop
func (r *BufferedRecorder) Start() {
	r.wg.Add(1)
	go r.run()
	logger.Info("metrics flusher started", "interval", r.interval.String())
}

// gracefully stops the flusher and flushes any remaining records
func (r *BufferedRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
		logger.Info("metrics flusher stopped")
	})
}

func (r *BufferedRecorder) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Flush()
		case <-r.stopCh:
			logger.Info("flushing remaining metrics before shutdown")
			r.Flush()
			return
		}
	}
}

// Flush writes everything buffered so far. Failed batches are discarded.
func (r *BufferedRecorder) Flush() {
	r.mu.Lock()
	pending := r.buf
	r.buf = make([]Record, 0, r.maxSize)
	r.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for start := 0; start < len(pending); start += r.batchSize {
		end := min(start+r.batchSize, len(pending))

		if err := r.sink.WriteRecords(ctx, pending[start:end]); err != nil {
			logger.ErrorErr(err, "failed to write metrics batch", "count", end-start)
		}
	}

	logger.Debug("flushed metrics", "count", len(pending))
}
