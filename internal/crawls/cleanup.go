package crawls

import (
	"context"
	"time"

	"codeberg.org/crawlsearch/server/internal/logger"
)

const staleReason = "no crawl activity before the inactivity threshold"

// handles automatic expiry of crawls whose completion event never arrived
type CleanupService struct {
	repo                Repository
	checkInterval       time.Duration
	inactivityThreshold time.Duration
}

func NewCleanupService(repo Repository, checkInterval, inactivityThreshold time.Duration) *CleanupService {
	return &CleanupService{
		repo:                repo,
		checkInterval:       checkInterval,
		inactivityThreshold: inactivityThreshold,
	}
}

// begins the cleanup service background loop
func (s *CleanupService) Start(ctx context.Context) {
	logger.Info("starting crawl cleanup service",
		"check_interval", s.checkInterval,
		"inactivity_threshold", s.inactivityThreshold,
	)

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("crawl cleanup service stopped")
			return
		case <-ticker.C:
			s.Cleanup(ctx)
		}
	}
}

// Cleanup fails stale crawls and returns how many were ended
func (s *CleanupService) Cleanup(ctx context.Context) int {
	threshold := time.Now().Add(-s.inactivityThreshold)

	stale, err := s.repo.ListStale(ctx, threshold)
	if err != nil {
		logger.ErrorErr(err, "failed to list stale crawls")
		return 0
	}

	if len(stale) == 0 {
		return 0
	}

	logger.Info("found stale crawls to clean up", "count", len(stale))

	ended := 0
	for _, session := range stale {
		if err := s.repo.Fail(ctx, session.ID, staleReason); err != nil {
			logger.ErrorErr(err, "failed to end stale crawl",
				"crawl_id", session.ID,
				"last_activity", session.LastActivity,
			)
			continue
		}

		ended++
	}

	return ended
}
