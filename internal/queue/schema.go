package queue

import "database/sql"

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id        TEXT PRIMARY KEY,
	playlist_hash TEXT NOT NULL,
	url           TEXT NOT NULL,
	options       TEXT NOT NULL DEFAULT '{}',
	status        TEXT NOT NULL,
	attempt       INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_hash ON jobs(playlist_hash);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);

CREATE TABLE IF NOT EXISTS locks (
	playlist_hash TEXT PRIMARY KEY,
	job_id        TEXT NOT NULL,
	expires_at    INTEGER NOT NULL
);
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
