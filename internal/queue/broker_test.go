package queue

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	URL string `json:"url"`
}

func brokers(t *testing.T) map[string]Broker {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test cleanup

	return map[string]Broker{
		"memory": NewMemoryBroker(),
		"redis":  NewRedisBroker(client),
	}
}

func TestBroker_EnqueueDequeueComplete(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := b.Enqueue(ctx, "index_document", payload{URL: "https://example.com"}, EnqueueOptions{})
			require.NoError(t, err)

			queued, err := b.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, StatusQueued, queued.Status)
			assert.Equal(t, DefaultMaxAttempts, queued.MaxAttempts)
			assert.Equal(t, DefaultTimeout, queued.Timeout)

			job, err := b.Dequeue(ctx, 0)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, id, job.ID)
			assert.Equal(t, StatusRunning, job.Status)
			assert.Equal(t, 1, job.Attempts)
			require.NotNil(t, job.Deadline)

			var p payload
			require.NoError(t, job.Decode(&p))
			assert.Equal(t, "https://example.com", p.URL)

			stats, err := b.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, Stats{Pending: 0, Running: 1}, stats)

			require.NoError(t, b.Complete(ctx, id, map[string]int{"chunks": 3}))

			done, err := b.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, StatusCompleted, done.Status)
			assert.JSONEq(t, `{"chunks":3}`, string(done.Result))
			assert.NotNil(t, done.FinishedAt)

			assert.ErrorIs(t, b.Complete(ctx, id, nil), ErrJobNotRunning)
		})
	}
}

func TestBroker_FIFO(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first, err := b.Enqueue(ctx, "a", nil, EnqueueOptions{})
			require.NoError(t, err)
			second, err := b.Enqueue(ctx, "b", nil, EnqueueOptions{})
			require.NoError(t, err)

			job, err := b.Dequeue(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, first, job.ID)

			job, err = b.Dequeue(ctx, 0)
			require.NoError(t, err)
			assert.Equal(t, second, job.ID)
		})
	}
}

func TestBroker_EmptyQueue(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			job, err := b.Dequeue(context.Background(), 0)
			require.NoError(t, err)
			assert.Nil(t, job)
		})
	}
}

func TestBroker_FailRetriesUntilMaxAttempts(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := b.Enqueue(ctx, "index_document", nil, EnqueueOptions{MaxAttempts: 2})
			require.NoError(t, err)

			_, err = b.Dequeue(ctx, 0)
			require.NoError(t, err)
			require.NoError(t, b.Fail(ctx, id, errors.New("embedding service down"), true))

			job, err := b.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, StatusQueued, job.Status)
			assert.Equal(t, "embedding service down", job.Error)

			job, err = b.Dequeue(ctx, 0)
			require.NoError(t, err)
			require.NotNil(t, job)
			assert.Equal(t, 2, job.Attempts)

			require.NoError(t, b.Fail(ctx, id, errors.New("still down"), true))

			job, err = b.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, job.Status)

			next, err := b.Dequeue(ctx, 0)
			require.NoError(t, err)
			assert.Nil(t, next)
		})
	}
}

func TestBroker_FailWithoutRetry(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id, err := b.Enqueue(ctx, "index_document", nil, EnqueueOptions{})
			require.NoError(t, err)
			_, err = b.Dequeue(ctx, 0)
			require.NoError(t, err)

			require.NoError(t, b.Fail(ctx, id, errors.New("bad payload"), false))

			job, err := b.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, job.Status)
			assert.Equal(t, 1, job.Attempts)
		})
	}
}

func TestBroker_GetUnknown(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrJobNotFound)
		})
	}
}

func TestBroker_EnqueueRequiresName(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := b.Enqueue(context.Background(), "", nil, EnqueueOptions{})
			assert.ErrorIs(t, err, ErrInvalidJob)
		})
	}
}

func TestSweeper_ReclaimsStaleJobs(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			retried, err := b.Enqueue(ctx, "a", nil, EnqueueOptions{Timeout: time.Millisecond, MaxAttempts: 2})
			require.NoError(t, err)
			exhausted, err := b.Enqueue(ctx, "b", nil, EnqueueOptions{Timeout: time.Millisecond, MaxAttempts: 1})
			require.NoError(t, err)
			fresh, err := b.Enqueue(ctx, "c", nil, EnqueueOptions{Timeout: time.Hour})
			require.NoError(t, err)

			for range 3 {
				_, err := b.Dequeue(ctx, 0)
				require.NoError(t, err)
			}

			sweeper := NewSweeper(b, time.Minute, time.Second)
			sweeper.now = func() time.Time { return time.Now().UTC().Add(time.Minute) }

			result, err := sweeper.Sweep(ctx)
			require.NoError(t, err)
			assert.Equal(t, SweepResult{Requeued: 1, Failed: 1}, result)

			job, err := b.Get(ctx, retried)
			require.NoError(t, err)
			assert.Equal(t, StatusQueued, job.Status)
			assert.Contains(t, job.Error, "abandoned")

			job, err = b.Get(ctx, exhausted)
			require.NoError(t, err)
			assert.Equal(t, StatusFailed, job.Status)

			job, err = b.Get(ctx, fresh)
			require.NoError(t, err)
			assert.Equal(t, StatusRunning, job.Status)
		})
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("bad")

	assert.Nil(t, Permanent(nil))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.ErrorIs(t, Permanent(base), base)
	assert.False(t, IsPermanent(base))
}

func newRedisBroker(t *testing.T) (*RedisBroker, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // test cleanup

	return NewRedisBroker(client), client
}

func TestRedisBroker_SweepHandsBackUnstartedClaims(t *testing.T) {
	ctx := context.Background()
	later := func() time.Time { return time.Now().UTC().Add(24 * time.Hour) }

	t.Run("claimed without a stamp", func(t *testing.T) {
		b, client := newRedisBroker(t)

		id, err := b.Enqueue(ctx, "index", nil, EnqueueOptions{})
		require.NoError(t, err)

		// worker died right after moving the id
		require.NoError(t, client.LMove(ctx, keyPending, keyProcessing, "RIGHT", "LEFT").Err())

		sweeper := NewSweeper(b, time.Minute, time.Second)
		sweeper.now = later

		result, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Requeued: 1}, result)

		stats, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{Pending: 1, Running: 0}, stats)

		job, err := b.Dequeue(ctx, 0)
		require.NoError(t, err)
		require.NotNil(t, job)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, 1, job.Attempts)
	})

	t.Run("stamped claim within grace", func(t *testing.T) {
		b, client := newRedisBroker(t)

		id, err := b.Enqueue(ctx, "index", nil, EnqueueOptions{})
		require.NoError(t, err)

		stamp := strconv.FormatInt(b.now().UnixNano(), 10)
		require.NoError(t, claimScript.Run(ctx, client, []string{keyPending, keyProcessing, keyClaims}, stamp).Err())

		sweeper := NewSweeper(b, time.Minute, 0)

		result, err := sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{}, result, "a fresh claim is left to its worker")

		sweeper.now = later

		result, err = sweeper.Sweep(ctx)
		require.NoError(t, err)
		assert.Equal(t, SweepResult{Requeued: 1}, result)

		// the slow worker finally tries to start it
		_, err = b.start(ctx, id, stamp)
		assert.ErrorIs(t, err, errClaimLost)

		job, err := b.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusQueued, job.Status)
		assert.Equal(t, 0, job.Attempts)
	})
}

func TestRedisBroker_PendingJobIsNotAbandoned(t *testing.T) {
	b, _ := newRedisBroker(t)
	ctx := context.Background()

	id, err := b.Enqueue(ctx, "index", nil, EnqueueOptions{})
	require.NoError(t, err)

	job, err := b.Get(ctx, id)
	require.NoError(t, err)

	_, err = b.Abandon(ctx, job, "test")
	assert.ErrorIs(t, err, ErrJobNotRunning)
}

func TestBroker_AbandonSkipsJobThatMovedOn(t *testing.T) {
	for name, b := range brokers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := b.Enqueue(ctx, "index", nil, EnqueueOptions{Timeout: time.Millisecond, MaxAttempts: 3})
			require.NoError(t, err)

			job, err := b.Dequeue(ctx, 0)
			require.NoError(t, err)

			stale, err := b.ListStale(ctx, time.Now().UTC().Add(time.Minute))
			require.NoError(t, err)
			require.Len(t, stale, 1)

			// the worker fails and the job is picked up again before the sweeper acts
			require.NoError(t, b.Fail(ctx, job.ID, errors.New("boom"), true))
			again, err := b.Dequeue(ctx, 0)
			require.NoError(t, err)
			require.Equal(t, 2, again.Attempts)

			_, err = b.Abandon(ctx, stale[0], "exceeded timeout")
			assert.ErrorIs(t, err, ErrJobNotRunning)

			current, err := b.Get(ctx, job.ID)
			require.NoError(t, err)
			assert.Equal(t, StatusRunning, current.Status)
			assert.Equal(t, 2, current.Attempts)
		})
	}
}

func TestRedisBroker_ConcurrentSettleHasOneWinner(t *testing.T) {
	b, client := newRedisBroker(t)
	ctx := context.Background()

	for range 20 {
		id, err := b.Enqueue(ctx, "index", nil, EnqueueOptions{MaxAttempts: 5})
		require.NoError(t, err)

		job, err := b.Dequeue(ctx, 0)
		require.NoError(t, err)
		require.NotNil(t, job)

		var wg sync.WaitGroup
		var completeErr, abandonErr error

		wg.Add(2)
		go func() {
			defer wg.Done()
			completeErr = b.Complete(ctx, id, nil)
		}()
		go func() {
			defer wg.Done()
			_, abandonErr = b.Abandon(ctx, job, "deadline")
		}()
		wg.Wait()

		require.True(t, (completeErr == nil) != (abandonErr == nil), "complete=%v abandon=%v", completeErr, abandonErr)

		settled, err := b.Get(ctx, id)
		require.NoError(t, err)

		pending, err := client.LRange(ctx, keyPending, 0, -1).Result()
		require.NoError(t, err)

		if completeErr == nil {
			assert.ErrorIs(t, abandonErr, ErrJobNotRunning)
			assert.Equal(t, StatusCompleted, settled.Status)
			assert.Empty(t, pending)
		} else {
			assert.ErrorIs(t, completeErr, ErrJobNotRunning)
			assert.Equal(t, StatusQueued, settled.Status)
			assert.Equal(t, []string{id}, pending)

			// drain it so the next round starts empty
			again, err := b.Dequeue(ctx, 0)
			require.NoError(t, err)
			require.NoError(t, b.Complete(ctx, again.ID, nil))
		}

		stats, err := b.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, Stats{}, stats)
	}
}
