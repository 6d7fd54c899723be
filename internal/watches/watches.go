package watches

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Ensure(ctx context.Context, url string, interval time.Duration) (*Watch, error) {
	interval, err := normalizeInterval(interval)
	if err != nil {
		return nil, err
	}

	return scanWatch(r.db.QueryRow(ctx, queryEnsure, url, int(interval.Seconds())))
}

func (r *repository) Get(ctx context.Context, url string) (*Watch, error) {
	w, err := scanWatch(r.db.QueryRow(ctx, queryGet, url))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrWatchNotFound
	}

	return w, err
}

func scanWatch(row pgx.Row) (*Watch, error) {
	var w Watch

	err := row.Scan(&w.ID, &w.URL, &w.IntervalSeconds, &w.Active, &w.CreatedAt, &w.LastCheckedAt)
	if err != nil {
		return nil, err
	}

	return &w, nil
}

// MemoryRepository is used when no database is configured
type MemoryRepository struct {
	mu      sync.Mutex
	watches map[string]*Watch
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{watches: make(map[string]*Watch)}
}

func (r *MemoryRepository) Ensure(_ context.Context, url string, interval time.Duration) (*Watch, error) {
	interval, err := normalizeInterval(interval)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[url]
	if !ok {
		w = &Watch{ID: uuid.NewString(), URL: url, CreatedAt: time.Now().UTC()}
		r.watches[url] = w
	}

	w.IntervalSeconds = int(interval.Seconds())
	w.Active = true

	cp := *w
	return &cp, nil
}

func (r *MemoryRepository) Get(_ context.Context, url string) (*Watch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.watches[url]
	if !ok {
		return nil, ErrWatchNotFound
	}

	cp := *w
	return &cp, nil
}
