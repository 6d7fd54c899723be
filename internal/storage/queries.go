package storage

// collection-scoped statements; %[1]s is the sanitized table identifier
const (
	createExtensionQuery = `CREATE EXTENSION IF NOT EXISTS vector`

	createCollectionQuery = `
		CREATE TABLE IF NOT EXISTS %[1]s (
			id          UUID PRIMARY KEY,
			url         TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			title       TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			content     TEXT NOT NULL,
			domain      TEXT NOT NULL DEFAULT '',
			language    TEXT NOT NULL DEFAULT '',
			country     TEXT NOT NULL DEFAULT '',
			is_mobile   BOOLEAN NOT NULL DEFAULT FALSE,
			crawl_id    TEXT NOT NULL DEFAULT '',
			metadata    JSONB NOT NULL DEFAULT '{}'::jsonb,
			embedding   vector(%[2]d) NOT NULL,
			indexed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`

	createEmbeddingIndexQuery = `CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s USING hnsw (embedding vector_cosine_ops)`
	createURLIndexQuery       = `CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (url)`
	createDomainIndexQuery    = `CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (domain)`

	// atttypmod of a vector column holds its dimension
	collectionDimensionQuery = `
		SELECT a.atttypmod
		FROM pg_attribute a
		JOIN pg_class c ON c.oid = a.attrelid
		WHERE c.relname = $1
			AND c.relkind = 'r'
			AND pg_table_is_visible(c.oid)
			AND a.attname = 'embedding'
			AND NOT a.attisdropped`

	upsertPointQuery = `
		INSERT INTO %[1]s (id, url, chunk_index, title, description, content, domain, language, country, is_mobile, crawl_id, metadata, embedding, indexed_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::jsonb, $13::vector, $14)
		ON CONFLICT (id) DO UPDATE SET
			url = EXCLUDED.url,
			chunk_index = EXCLUDED.chunk_index,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			content = EXCLUDED.content,
			domain = EXCLUDED.domain,
			language = EXCLUDED.language,
			country = EXCLUDED.country,
			is_mobile = EXCLUDED.is_mobile,
			crawl_id = EXCLUDED.crawl_id,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			indexed_at = EXCLUDED.indexed_at`

	deleteByURLQuery = `DELETE FROM %[1]s WHERE url = $1`

	countPointsQuery = `SELECT COUNT(*) FROM %[1]s`

	// %[2]s is the optional filter predicate, %[3]d the limit placeholder index
	searchPointsQuery = `
		SELECT id::text, url, chunk_index, title, description, content, domain, language, country,
			is_mobile, crawl_id, metadata::text, indexed_at, 1 - (embedding <=> $1::vector) AS score
		FROM %[1]s
		%[2]s
		ORDER BY embedding <=> $1::vector
		LIMIT $%[3]d`
)
