package database

// statements are idempotent and run in order on every startup
var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,

	`CREATE TABLE IF NOT EXISTS crawl_sessions (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'failed')),
		pages_received INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_activity TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		finished_at TIMESTAMPTZ
	)`,

	`CREATE INDEX IF NOT EXISTS idx_crawl_sessions_running
		ON crawl_sessions (last_activity) WHERE status = 'running'`,

	`CREATE TABLE IF NOT EXISTS index_metrics (
		id BIGSERIAL PRIMARY KEY,
		operation_type TEXT NOT NULL,
		operation_name TEXT NOT NULL,
		duration_ms DOUBLE PRECISION NOT NULL,
		success BOOLEAN NOT NULL,
		crawl_id TEXT,
		job_id TEXT,
		document_url TEXT,
		error TEXT,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_index_metrics_type_created
		ON index_metrics (operation_type, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS change_watches (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		url TEXT NOT NULL UNIQUE,
		interval_seconds INTEGER NOT NULL CHECK (interval_seconds > 0),
		active BOOLEAN NOT NULL DEFAULT true,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_checked_at TIMESTAMPTZ
	)`,
}
