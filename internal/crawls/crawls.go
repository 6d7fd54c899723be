package crawls

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Start(ctx context.Context, crawlID string, metadata map[string]any) (*Session, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}

	meta, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode crawl metadata: %w", err)
	}

	return scanSession(r.db.QueryRow(ctx, queryStart, crawlID, string(meta)))
}

func (r *repository) RecordPage(ctx context.Context, crawlID string, pages int) error {
	_, err := r.db.Exec(ctx, queryRecordPage, crawlID, pages)
	return err
}

func (r *repository) Complete(ctx context.Context, crawlID string) error {
	return r.finish(ctx, crawlID, StatusCompleted, "")
}

func (r *repository) Fail(ctx context.Context, crawlID, reason string) error {
	return r.finish(ctx, crawlID, StatusFailed, reason)
}

func (r *repository) finish(ctx context.Context, crawlID, status, reason string) error {
	tag, err := r.db.Exec(ctx, queryFinish, crawlID, status, reason)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrCrawlNotFound
	}

	return nil
}

func (r *repository) Get(ctx context.Context, crawlID string) (*Session, error) {
	session, err := scanSession(r.db.QueryRow(ctx, queryGet, crawlID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCrawlNotFound
	}

	return session, err
}

func (r *repository) ListStale(ctx context.Context, threshold time.Time) ([]*Session, error) {
	rows, err := r.db.Query(ctx, queryListStale, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session

	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, s)
	}

	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var meta []byte

	err := row.Scan(
		&s.ID,
		&s.Status,
		&s.PagesReceived,
		&s.Error,
		&meta,
		&s.StartedAt,
		&s.LastActivity,
		&s.FinishedAt,
	)

	if err != nil {
		return nil, err
	}

	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &s.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode crawl metadata: %w", err)
		}
	}

	return &s, nil
}
