package watches

const (
	// re-ensuring an existing watch reactivates it with the new interval
	queryEnsure = `
		INSERT INTO change_watches (url, interval_seconds)
		VALUES ($1, $2)
		ON CONFLICT (url) DO UPDATE
		SET interval_seconds = EXCLUDED.interval_seconds,
		    active = true
		RETURNING id, url, interval_seconds, active, created_at, last_checked_at
	`

	queryGet = `
		SELECT id, url, interval_seconds, active, created_at, last_checked_at
		FROM change_watches
		WHERE url = $1
	`
)
