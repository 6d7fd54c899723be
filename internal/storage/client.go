package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"codeberg.org/crawlsearch/server/internal/document"
	"codeberg.org/crawlsearch/server/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

var collectionNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresStore keeps one pgvector table per collection
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// the pool is owned by whoever created it
func (s *PostgresStore) Close() {}

func (s *PostgresStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	table, err := tableIdent(name)
	if err != nil {
		return err
	}

	if dim <= 0 {
		return fmt.Errorf("collection dimension must be positive, got %d", dim)
	}

	existing, err := s.collectionDimension(ctx, name)
	if err != nil {
		return err
	}

	if existing > 0 {
		if existing != dim {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d", ErrDimensionMismatch, name, existing, dim)
		}

		return nil
	}

	statements := []string{
		createExtensionQuery,
		fmt.Sprintf(createCollectionQuery, table, dim),
		fmt.Sprintf(createEmbeddingIndexQuery, table, pgx.Identifier{name + "_embedding_idx"}.Sanitize()),
		fmt.Sprintf(createURLIndexQuery, table, pgx.Identifier{name + "_url_idx"}.Sanitize()),
		fmt.Sprintf(createDomainIndexQuery, table, pgx.Identifier{name + "_domain_idx"}.Sanitize()),
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create collection %s: %w", name, err)
		}
	}

	logger.Info("vector collection created", "collection", name, "dimension", dim)
	return nil
}

// returns 0 when the collection does not exist
func (s *PostgresStore) collectionDimension(ctx context.Context, name string) (int, error) {
	var dim int

	err := s.pool.QueryRow(ctx, collectionDimensionQuery, name).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("failed to inspect collection %s: %w", name, err)
	}

	return dim, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, collection string, points []Point) error {
	return s.write(ctx, collection, "", points)
}

func (s *PostgresStore) ReplaceDocument(ctx context.Context, collection, url string, points []Point) error {
	if url == "" {
		return fmt.Errorf("replace document: url is required")
	}

	return s.write(ctx, collection, url, points)
}

// deletes the url's previous generation (when url is set) and upserts points in one transaction
func (s *PostgresStore) write(ctx context.Context, collection, url string, points []Point) error {
	table, err := tableIdent(collection)
	if err != nil {
		return err
	}

	if url == "" && len(points) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// defer rollback - will be no-op if commit succeeds
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logger.Warn("failed to rollback transaction", "error", err)
		}
	}()

	batch := &pgx.Batch{}

	if url != "" {
		batch.Queue(fmt.Sprintf(deleteByURLQuery, table), url)
	}

	insert := fmt.Sprintf(upsertPointQuery, table)

	for _, p := range points {
		metadata, err := json.Marshal(nonNilMap(p.Payload.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata for point %s: %w", p.ID, err)
		}

		indexedAt := p.Payload.IndexedAt
		if indexedAt.IsZero() {
			indexedAt = time.Now().UTC()
		}

		batch.Queue(insert,
			p.ID,
			p.Payload.URL,
			p.Payload.ChunkIndex,
			p.Payload.Title,
			p.Payload.Description,
			p.Payload.Text,
			p.Payload.Domain,
			p.Payload.Language,
			p.Payload.Country,
			p.Payload.IsMobile,
			p.Payload.CrawlID,
			string(metadata),
			pgvector.NewVector(p.Vector),
			indexedAt,
		)
	}

	br := tx.SendBatch(ctx, batch)

	for i := range batch.Len() {
		if _, err := br.Exec(); err != nil {
			br.Close() //nolint:errcheck,gosec // G104: error path cleanup
			return fmt.Errorf("failed to write point batch statement %d: %w", i, err)
		}
	}

	// must close batch results before committing, otherwise connection is still "busy"
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (s *PostgresStore) DeleteByURL(ctx context.Context, collection, url string) (int, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return 0, err
	}

	tag, err := s.pool.Exec(ctx, fmt.Sprintf(deleteByURLQuery, table), url)
	if err != nil {
		return 0, fmt.Errorf("failed to delete points for %s: %w", url, err)
	}

	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Search(
	ctx context.Context,
	collection string,
	vector []float32,
	limit int,
	filter *document.Filter,
) ([]ScoredPoint, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		return []ScoredPoint{}, nil
	}

	where, filterArgs := buildFilterClause(filter, 2)

	args := make([]any, 0, len(filterArgs)+2)
	args = append(args, pgvector.NewVector(vector))
	args = append(args, filterArgs...)
	args = append(args, limit)

	query := fmt.Sprintf(searchPointsQuery, table, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search query: %w", err)
	}
	defer rows.Close()

	results := make([]ScoredPoint, 0, limit)

	for rows.Next() {
		var (
			sp       ScoredPoint
			metadata string
			score    float64
		)

		err := rows.Scan(
			&sp.ID,
			&sp.Payload.URL,
			&sp.Payload.ChunkIndex,
			&sp.Payload.Title,
			&sp.Payload.Description,
			&sp.Payload.Text,
			&sp.Payload.Domain,
			&sp.Payload.Language,
			&sp.Payload.Country,
			&sp.Payload.IsMobile,
			&sp.Payload.CrawlID,
			&metadata,
			&sp.Payload.IndexedAt,
			&score,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &sp.Payload.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for point %s: %w", sp.ID, err)
			}
		}

		sp.Score = float32(score)
		results = append(results, sp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	sortScored(results)
	return results, nil
}

func (s *PostgresStore) Count(ctx context.Context, collection string) (int, error) {
	table, err := tableIdent(collection)
	if err != nil {
		return 0, err
	}

	var count int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(countPointsQuery, table)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count points: %w", err)
	}

	return count, nil
}

func (s *PostgresStore) HealthCheck(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.pool.Ping(ctx) == nil
}

// builds the WHERE clause for a filter; placeholders start at $firstArg
func buildFilterClause(filter *document.Filter, firstArg int) (string, []any) {
	if filter.IsEmpty() {
		return "", nil
	}

	var (
		conds []string
		args  []any
	)

	add := func(column string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("%s = $%d", column, firstArg+len(args)-1))
	}

	if filter.Domain != "" {
		add("domain", filter.Domain)
	}

	if filter.Language != "" {
		add("language", filter.Language)
	}

	if filter.Country != "" {
		add("country", filter.Country)
	}

	if filter.IsMobile != nil {
		add("is_mobile", *filter.IsMobile)
	}

	return "WHERE " + strings.Join(conds, " AND "), args
}

func tableIdent(name string) (string, error) {
	if !collectionNameRegex.MatchString(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}

	return pgx.Identifier{name}.Sanitize(), nil
}

// score desc, id asc
func sortScored(points []ScoredPoint) {
	sort.SliceStable(points, func(i, j int) bool {
		if points[i].Score != points[j].Score {
			return points[i].Score > points[j].Score
		}

		return points[i].ID < points[j].ID
	})
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}

	return m
}
