package crawls

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// MemoryRepository keeps crawl sessions in process when no database is configured
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (r *MemoryRepository) Start(_ context.Context, crawlID string, metadata map[string]any) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(crawlID)
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	maps.Copy(s.Metadata, metadata)

	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) RecordPage(_ context.Context, crawlID string, pages int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.getOrCreate(crawlID)
	s.PagesReceived += pages

	return nil
}

func (r *MemoryRepository) Complete(ctx context.Context, crawlID string) error {
	return r.finish(crawlID, StatusCompleted, "")
}

func (r *MemoryRepository) Fail(ctx context.Context, crawlID, reason string) error {
	return r.finish(crawlID, StatusFailed, reason)
}

func (r *MemoryRepository) finish(crawlID, status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[crawlID]
	if !ok {
		return ErrCrawlNotFound
	}

	now := r.now()
	s.Status = status
	s.Error = reason
	s.FinishedAt = &now
	s.LastActivity = now

	return nil
}

func (r *MemoryRepository) Get(_ context.Context, crawlID string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[crawlID]
	if !ok {
		return nil, ErrCrawlNotFound
	}

	cp := *s
	return &cp, nil
}

func (r *MemoryRepository) ListStale(_ context.Context, threshold time.Time) ([]*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var stale []*Session
	for _, s := range r.sessions {
		if s.Status == StatusRunning && s.LastActivity.Before(threshold) {
			cp := *s
			stale = append(stale, &cp)
		}
	}

	sort.Slice(stale, func(i, j int) bool {
		return stale[i].LastActivity.Before(stale[j].LastActivity)
	})

	return stale, nil
}

// caller holds mu
func (r *MemoryRepository) getOrCreate(crawlID string) *Session {
	now := r.now()

	s, ok := r.sessions[crawlID]
	if !ok {
		s = &Session{ID: crawlID, Status: StatusRunning, StartedAt: now}
		r.sessions[crawlID] = s
	}

	s.LastActivity = now
	return s
}
