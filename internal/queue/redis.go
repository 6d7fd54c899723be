package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/crawlsearch/server/internal/logger"
	"github.com/redis/go-redis/v9"
)

// redis key patterns
const (
	// crawlsearch:job:{id} - job record as JSON
	keyJob = "crawlsearch:job:%s"

	// crawlsearch:queue:pending - ids waiting for a worker, consumed from the right
	keyPending = "crawlsearch:queue:pending"

	// crawlsearch:queue:processing - ids a worker has claimed
	keyProcessing = "crawlsearch:queue:processing"

	// crawlsearch:queue:claims - hash of claimed id -> claim time in unix nanos,
	// held until the job is marked running
	keyClaims = "crawlsearch:queue:claims"
)

const (
	// a claim not started within this long is handed back by the sweeper
	claimGrace = time.Minute

	maxTxAttempts = 8
)

var errClaimLost = errors.New("job claim lost")

// KEYS[1] pending, KEYS[2] processing, KEYS[3] claims; ARGV[1] claim stamp
var claimScript = redis.NewScript(`
local id = redis.call('LMOVE', KEYS[1], KEYS[2], 'RIGHT', 'LEFT')
if id then
	redis.call('HSET', KEYS[3], id, ARGV[1])
end
return id
`)

// RedisBroker keeps jobs in Redis so they survive restarts and can be shared by several workers
type RedisBroker struct {
	client    *redis.Client
	resultTTL time.Duration
	now       func() time.Time
}

func NewRedisBroker(client *redis.Client) *RedisBroker {
	return &RedisBroker{
		client:    client,
		resultTTL: DefaultResultTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// the client is owned by the caller
func (b *RedisBroker) Close() error { return nil }

func (b *RedisBroker) Enqueue(ctx context.Context, name string, payload any, opts EnqueueOptions) (string, error) {
	job, err := newJob(name, payload, opts, b.now())
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("failed to encode job: %w", err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, jobKey(job.ID), data, 0)
		pipe.LPush(ctx, keyPending, job.ID)
		return nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	return job.ID, nil
}

// Dequeue claims the oldest pending job and marks it running. With wait > 0 it
// blocks until a job shows up or wait elapses.
func (b *RedisBroker) Dequeue(ctx context.Context, wait time.Duration) (*Job, error) {
	deadline := time.Now().Add(wait)

	for {
		job, err := b.claim(ctx)
		if job != nil || err != nil {
			return job, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}

		// rotates pending onto itself, so it only waits for an id without taking it
		err = b.client.BLMove(ctx, keyPending, keyPending, "RIGHT", "RIGHT", remaining).Err()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to wait for jobs: %w", err)
		}
	}
}

// claim moves one id to processing and starts it. Returns nil when pending is empty.
func (b *RedisBroker) claim(ctx context.Context) (*Job, error) {
	for {
		stamp := strconv.FormatInt(b.now().UnixNano(), 10)

		id, err := claimScript.Run(ctx, b.client, []string{keyPending, keyProcessing, keyClaims}, stamp).Text()
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}

		job, err := b.start(ctx, id, stamp)
		switch {
		case err == nil:
			return job, nil
		case errors.Is(err, ErrJobNotFound):
			// record expired while queued
			b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error { //nolint:errcheck // best-effort cleanup
				pipe.LRem(ctx, keyProcessing, 0, id)
				pipe.HDel(ctx, keyClaims, id)
				return nil
			})
		case errors.Is(err, errClaimLost):
			logger.Debug("job claim was reclaimed before it started", "job_id", id)
		default:
			return nil, err
		}
	}
}

// start marks a claimed job running if the claim stamped with stamp is still held
func (b *RedisBroker) start(ctx context.Context, id, stamp string) (*Job, error) {
	var started *Job

	err := b.transact(ctx, id, func(tx *redis.Tx, job *Job) (func(redis.Pipeliner) error, error) {
		held, err := tx.HGet(ctx, keyClaims, id).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read job claim: %w", err)
		}

		if held != stamp || job.Status != StatusQueued {
			return nil, errClaimLost
		}

		markRunning(job, b.now())
		started = job

		return func(pipe redis.Pipeliner) error {
			if err := b.save(ctx, pipe, job, redis.KeepTTL); err != nil {
				return err
			}

			pipe.HDel(ctx, keyClaims, id)
			return nil
		}, nil
	})

	if err != nil {
		return nil, err
	}

	return started, nil
}

func (b *RedisBroker) Complete(ctx context.Context, id string, result any) error {
	err := b.transact(ctx, id, func(_ *redis.Tx, job *Job) (func(redis.Pipeliner) error, error) {
		if job.Status != StatusRunning {
			return nil, ErrJobNotRunning
		}

		if err := markCompleted(job, result, b.now()); err != nil {
			return nil, err
		}

		return func(pipe redis.Pipeliner) error {
			if err := b.save(ctx, pipe, job, b.resultTTL); err != nil {
				return err
			}

			pipe.LRem(ctx, keyProcessing, 0, id)
			return nil
		}, nil
	})

	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return nil
}

func (b *RedisBroker) Fail(ctx context.Context, id string, cause error, retry bool) error {
	err := b.transact(ctx, id, func(_ *redis.Tx, job *Job) (func(redis.Pipeliner) error, error) {
		if job.Status != StatusRunning {
			return nil, ErrJobNotRunning
		}

		_, write := b.settle(ctx, job, errString(cause), retry)
		return write, nil
	})

	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	return nil
}

// Abandon gives up on a running job, or hands a claim that never started back
// to pending. The job must still be in the state and attempt it was listed in.
func (b *RedisBroker) Abandon(ctx context.Context, stale *Job, reason string) (bool, error) {
	var requeued bool

	id := stale.ID

	err := b.transact(ctx, id, func(tx *redis.Tx, job *Job) (func(redis.Pipeliner) error, error) {
		if job.Status != stale.Status || job.Attempts != stale.Attempts {
			return nil, ErrJobNotRunning
		}

		var write func(redis.Pipeliner) error

		switch job.Status {
		case StatusRunning:
			requeued, write = b.settle(ctx, job, "abandoned: "+reason, true)
			return write, nil

		case StatusQueued:
			// only a claim that never started; a job waiting in pending is left alone
			_, err := tx.LPos(ctx, keyProcessing, id, redis.LPosArgs{}).Result()
			if errors.Is(err, redis.Nil) {
				return nil, ErrJobNotRunning
			}

			if err != nil {
				return nil, fmt.Errorf("failed to find claimed job: %w", err)
			}

			job.Error = "abandoned: " + reason
			requeued = true

			return func(pipe redis.Pipeliner) error {
				if err := b.save(ctx, pipe, job, 0); err != nil {
					return err
				}

				pipe.LRem(ctx, keyProcessing, 0, id)
				pipe.HDel(ctx, keyClaims, id)
				pipe.LPush(ctx, keyPending, id)
				return nil
			}, nil

		default:
			return nil, ErrJobNotRunning
		}
	})

	if err != nil {
		return false, fmt.Errorf("failed to abandon job: %w", err)
	}

	return requeued, nil
}

// settle records a failure and returns the writes that move the id back to
// pending or out of processing
func (b *RedisBroker) settle(ctx context.Context, job *Job, msg string, retry bool) (bool, func(redis.Pipeliner) error) {
	requeued := markFailed(job, msg, retry, b.now())

	ttl := b.resultTTL
	if requeued {
		ttl = 0
	}

	return requeued, func(pipe redis.Pipeliner) error {
		if err := b.save(ctx, pipe, job, ttl); err != nil {
			return err
		}

		pipe.LRem(ctx, keyProcessing, 0, job.ID)
		if requeued {
			pipe.LPush(ctx, keyPending, job.ID)
		}
		return nil
	}
}

// transact loads the job under WATCH, lets fn decide on the writes and applies
// them in one MULTI. A concurrent change to the job restarts the round.
func (b *RedisBroker) transact(
	ctx context.Context,
	id string,
	fn func(tx *redis.Tx, job *Job) (func(redis.Pipeliner) error, error),
) error {
	for range maxTxAttempts {
		err := b.client.Watch(ctx, func(tx *redis.Tx) error {
			job, err := b.load(ctx, tx, id)
			if err != nil {
				return err
			}

			write, err := fn(tx, job)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, write)
			return err
		}, jobKey(id))

		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}

	return fmt.Errorf("job %s kept changing during update: %w", id, redis.TxFailedErr)
}

func (b *RedisBroker) Get(ctx context.Context, id string) (*Job, error) {
	return b.load(ctx, b.client, id)
}

// ListStale returns running jobs past their deadline and claims that never
// started within claimGrace
func (b *RedisBroker) ListStale(ctx context.Context, now time.Time) ([]*Job, error) {
	ids, err := b.client.LRange(ctx, keyProcessing, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	var stale []*Job
	for _, id := range ids {
		job, err := b.load(ctx, b.client, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		switch job.Status {
		case StatusRunning:
			if job.Deadline != nil && job.Deadline.Before(now) {
				stale = append(stale, job)
			}

		case StatusQueued:
			claimedAt, err := b.claimedAt(ctx, id)
			if err != nil {
				return nil, err
			}

			if claimedAt.Add(claimGrace).Before(now) {
				stale = append(stale, job)
			}
		}
	}

	return stale, nil
}

// zero time when the claim stamp is missing
func (b *RedisBroker) claimedAt(ctx context.Context, id string) (time.Time, error) {
	stamp, err := b.client.HGet(ctx, keyClaims, id).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read job claim: %w", err)
	}

	nanos, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil {
		return time.Time{}, nil
	}

	return time.Unix(0, nanos).UTC(), nil
}

func (b *RedisBroker) Stats(ctx context.Context) (Stats, error) {
	pipe := b.client.Pipeline()
	pending := pipe.LLen(ctx, keyPending)
	running := pipe.LLen(ctx, keyProcessing)

	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return Stats{Pending: pending.Val(), Running: running.Val()}, nil
}

func (b *RedisBroker) load(ctx context.Context, c redis.Cmdable, id string) (*Job, error) {
	data, err := c.Get(ctx, jobKey(id)).Bytes()

	if errors.Is(err, redis.Nil) {
		return nil, ErrJobNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}

	return &job, nil
}

func (b *RedisBroker) save(ctx context.Context, c redis.Cmdable, job *Job, ttl time.Duration) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	if err := c.Set(ctx, jobKey(job.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

func jobKey(id string) string {
	return fmt.Sprintf(keyJob, id)
}
