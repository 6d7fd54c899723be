package crawls

const (
	queryStart = `
		INSERT INTO crawl_sessions (id, status, metadata)
		VALUES ($1, 'running', $2::jsonb)
		ON CONFLICT (id) DO UPDATE
		SET metadata = crawl_sessions.metadata || EXCLUDED.metadata,
		    last_activity = NOW()
		RETURNING id, status, pages_received, COALESCE(error, ''), metadata, started_at, last_activity, finished_at
	`

	queryRecordPage = `
		INSERT INTO crawl_sessions (id, status, pages_received)
		VALUES ($1, 'running', $2)
		ON CONFLICT (id) DO UPDATE
		SET pages_received = crawl_sessions.pages_received + EXCLUDED.pages_received,
		    last_activity = NOW()
	`

	queryFinish = `
		UPDATE crawl_sessions
		SET status = $2,
		    error = NULLIF($3, ''),
		    finished_at = NOW(),
		    last_activity = NOW()
		WHERE id = $1
	`

	queryGet = `
		SELECT id, status, pages_received, COALESCE(error, ''), metadata, started_at, last_activity, finished_at
		FROM crawl_sessions
		WHERE id = $1
	`

	queryListStale = `
		SELECT id, status, pages_received, COALESCE(error, ''), metadata, started_at, last_activity, finished_at
		FROM crawl_sessions
		WHERE status = 'running' AND last_activity < $1
		ORDER BY last_activity
		LIMIT 500
	`
)
