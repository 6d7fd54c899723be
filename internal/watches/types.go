package watches

import (
	"context"
	"errors"
	"time"
)

var (
	ErrWatchNotFound   = errors.New("watch not found")
	ErrInvalidInterval = errors.New("invalid watch interval")
)

const (
	DefaultInterval = 24 * time.Hour
	MinInterval     = 5 * time.Minute
)

// repository interface for change-detection watches. Watches are only
// registered here; checking them is done by an external scheduler.
type Repository interface {
	Ensure(ctx context.Context, url string, interval time.Duration) (*Watch, error)
	Get(ctx context.Context, url string) (*Watch, error)
}

type Watch struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	IntervalSeconds int        `json:"interval_seconds"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
}

func normalizeInterval(interval time.Duration) (time.Duration, error) {
	if interval == 0 {
		return DefaultInterval, nil
	}

	if interval < MinInterval {
		return 0, ErrInvalidInterval
	}

	return interval.Truncate(time.Second), nil
}
