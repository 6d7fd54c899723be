package queue

import (
	"context"
	"time"

	"codeberg.org/crawlsearch/server/internal/logger"
)

// Sweeper reclaims jobs whose worker died or hung past the job deadline
type Sweeper struct {
	broker        Broker
	checkInterval time.Duration
	// extra time a job gets past its deadline before it is reclaimed
	grace time.Duration
	now   func() time.Time
}

type SweepResult struct {
	Requeued int `json:"requeued"`
	Failed   int `json:"failed"`
}

func NewSweeper(broker Broker, checkInterval, grace time.Duration) *Sweeper {
	return &Sweeper{
		broker:        broker,
		checkInterval: checkInterval,
		grace:         grace,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// begins the sweep loop; returns when ctx ends
func (s *Sweeper) Start(ctx context.Context) {
	logger.Info("starting job sweeper",
		"check_interval", s.checkInterval,
		"grace", s.grace,
	)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("job sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				logger.ErrorErr(err, "failed to sweep stale jobs")
			}
		}
	}
}

// Sweep ends every job running past its deadline and hands back claims that
// never started
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	stale, err := s.broker.ListStale(ctx, s.now().Add(-s.grace))
	if err != nil {
		return result, err
	}

	if len(stale) == 0 {
		return result, nil
	}

	logger.Info("found stale jobs to reclaim", "count", len(stale))

	for _, job := range stale {
		reason := "exceeded timeout of " + job.Timeout.String()
		if job.Status == StatusQueued {
			reason = "claimed but never started"
		}

		requeued, err := s.broker.Abandon(ctx, job, reason)
		if err != nil {
			logger.ErrorErr(err, "failed to reclaim stale job",
				"job_id", job.ID,
				"job_name", job.Name,
				"deadline", job.Deadline,
			)
			continue
		}

		if requeued {
			result.Requeued++
		} else {
			result.Failed++
		}

		logger.Info("stale job reclaimed",
			"job_id", job.ID,
			"job_name", job.Name,
			"attempts", job.Attempts,
			"requeued", requeued,
		)
	}

	return result, nil
}
