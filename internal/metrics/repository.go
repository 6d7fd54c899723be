package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"codeberg.org/crawlsearch/server/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const insertMetricQuery = `
	INSERT INTO index_metrics (
		operation_type, operation_name, duration_ms, success,
		crawl_id, job_id, document_url, error, metadata, created_at
	)
	VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), $9::jsonb, $10)
`

// PostgresSink writes records into the index_metrics table
type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) WriteRecords(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logger.Warn("failed to rollback metrics transaction", "error", err)
		}
	}()

	batch := &pgx.Batch{}
	for _, rec := range records {
		meta, err := json.Marshal(nonNil(rec.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metric metadata: %w", err)
		}

		batch.Queue(insertMetricQuery,
			rec.OperationType,
			rec.OperationName,
			float64(rec.Duration.Microseconds())/1000,
			rec.Success,
			rec.CrawlID,
			rec.JobID,
			rec.DocumentURL,
			rec.Error,
			string(meta),
			rec.CreatedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range records {
		if _, err := br.Exec(); err != nil {
			br.Close() //nolint:errcheck,gosec // already failing
			return fmt.Errorf("failed to insert metric: %w", err)
		}
	}

	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	return tx.Commit(ctx)
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
