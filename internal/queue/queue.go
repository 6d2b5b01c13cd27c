package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ingestcore/m3uingest/internal/logging"

	_ "modernc.org/sqlite"
)

// LockTTL bounds damage from a crashed worker: a lock older than this
// is treated as abandoned and may be re-acquired.
const LockTTL = 30 * time.Minute

// RetryBackoffs is the fixed exponential backoff schedule: 5s, 10s,
// 20s, up to MaxAttempts attempts.
var RetryBackoffs = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

const MaxAttempts = 3

// Queue is the durable job store + lock manager + bounded worker pool.
// Grounded on JustinTDCT-CineVault's EnqueueUnique dedupe-by-ID shape,
// adapted from Redis/asynq to an embedded modernc.org/sqlite store per
// this module's single-node scope (DESIGN.md).
type Queue struct {
	db          *sql.DB
	limiter     *rate.Limiter
	concurrency int
	lockTTL     time.Duration
}

// Open opens (creating if absent) the sqlite-backed queue at dbPath.
// admissionsPerWindow job claims (worker starts) are allowed per window;
// Submit itself is not rate limited. A window of
// zero falls back to one minute. A lockTTL of zero falls back to LockTTL.
func Open(dbPath string, concurrency int, admissionsPerWindow int, window time.Duration, lockTTL time.Duration) (*Queue, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("queue: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: migrate: %w", err)
	}
	if concurrency <= 0 {
		concurrency = 2
	}
	if admissionsPerWindow <= 0 {
		admissionsPerWindow = 10
	}
	if window <= 0 {
		window = time.Minute
	}
	if lockTTL <= 0 {
		lockTTL = LockTTL
	}
	ratePerSec := float64(admissionsPerWindow) / window.Seconds()
	return &Queue{
		db:          db,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSec), admissionsPerWindow),
		concurrency: concurrency,
		lockTTL:     lockTTL,
	}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// SubmitResult is what Submit returns to the orchestrator.
type SubmitResult struct {
	JobID         string
	Existing      bool // true if an in-flight job for this hash already existed
	QueuePosition int
}

// Submit performs the at-most-one-parse-per-hash lock acquisition
// (atomic set-if-absent with TTL) and, on success, inserts a new
// waiting job. If the lock is already held, the caller is pointed at
// the existing job_id instead, deduplicating concurrent submissions.
func (q *Queue) Submit(ctx context.Context, hash, url string, opts Options) (SubmitResult, error) {
	optsJSON, err := json.Marshal(opts)
	if err != nil {
		return SubmitResult{}, err
	}

	now := time.Now()
	jobID := uuid.NewString()

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return SubmitResult{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO locks(playlist_hash, job_id, expires_at) VALUES(?, ?, ?)
		ON CONFLICT(playlist_hash) DO UPDATE SET job_id=excluded.job_id, expires_at=excluded.expires_at
		WHERE locks.expires_at <= ?`,
		hash, jobID, now.Add(q.lockTTL).UnixMilli(), now.UnixMilli())
	if err != nil {
		return SubmitResult{}, fmt.Errorf("queue: acquire lock: %w", err)
	}
	acquired, err := res.RowsAffected()
	if err != nil {
		return SubmitResult{}, err
	}
	if acquired == 0 {
		var existingJobID string
		row := tx.QueryRowContext(ctx, `SELECT job_id FROM locks WHERE playlist_hash = ?`, hash)
		if err := row.Scan(&existingJobID); err != nil {
			return SubmitResult{}, fmt.Errorf("queue: lock held but job_id unreadable: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return SubmitResult{}, err
		}
		return SubmitResult{JobID: existingJobID, Existing: true}, nil
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO jobs(job_id, playlist_hash, url, options, status, attempt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		jobID, hash, url, string(optsJSON), StatusWaiting, now.UnixMilli(), now.UnixMilli()); err != nil {
		return SubmitResult{}, fmt.Errorf("queue: insert job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return SubmitResult{}, err
	}

	pos, _ := q.queuePosition(ctx, jobID)
	return SubmitResult{JobID: jobID, QueuePosition: pos}, nil
}

func (q *Queue) queuePosition(ctx context.Context, jobID string) (int, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE status = 'waiting' AND created_at <= (SELECT created_at FROM jobs WHERE job_id = ?)`,
		jobID)
	var n int
	err := row.Scan(&n)
	return n, err
}

// Status returns a job's current state, or queue.NotFound.
func (q *Queue) Status(ctx context.Context, jobID string) (Job, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT job_id, playlist_hash, url, options, status, attempt, error FROM jobs WHERE job_id = ?`, jobID)
	var j Job
	var optsJSON string
	if err := row.Scan(&j.JobID, &j.PlaylistHash, &j.URL, &optsJSON, &j.Status, &j.Attempt, &j.Error); err != nil {
		if err == sql.ErrNoRows {
			return Job{Status: NotFound}, nil
		}
		return Job{}, err
	}
	j.Options = json.RawMessage(optsJSON)
	return j, nil
}

// Handler processes one job; ctx is the worker pool's context. The queue
// sets no per-job timeout: Options.DeadlineMs travels in job.Options
// unchanged and is not applied.
type Handler func(ctx context.Context, job Job) error

// Run starts concurrency workers pulling waiting jobs until ctx is
// cancelled. Each worker processes one job at a time; the pool bounds
// how many jobs run concurrently process-wide.
func (q *Queue) Run(ctx context.Context, handler Handler) {
	sem := make(chan struct{}, q.concurrency)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.fillSlots(ctx, sem, handler)
		}
	}
}

// fillSlots claims as many waiting jobs as there are free worker slots,
// dispatching each to its own goroutine.
func (q *Queue) fillSlots(ctx context.Context, sem chan struct{}, handler Handler) {
	for {
		select {
		case sem <- struct{}{}:
		default:
			return // pool at capacity
		}
		if err := q.limiter.Wait(ctx); err != nil {
			<-sem
			return
		}
		job, ok, err := q.claimNext(ctx)
		if err != nil {
			logging.WithComponent("queue").Error().Err(err).Msg("claim failed")
			<-sem
			return
		}
		if !ok {
			<-sem
			return // no waiting jobs right now
		}
		go func(j Job) {
			defer func() { <-sem }()
			q.runJob(ctx, handler, j)
		}(job)
	}
}

func (q *Queue) claimNext(ctx context.Context) (Job, bool, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return Job{}, false, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT job_id, playlist_hash, url, options, attempt FROM jobs
		WHERE status = 'waiting' ORDER BY created_at ASC LIMIT 1`)
	var j Job
	var optsJSON string
	if err := row.Scan(&j.JobID, &j.PlaylistHash, &j.URL, &optsJSON, &j.Attempt); err != nil {
		if err == sql.ErrNoRows {
			return Job{}, false, nil
		}
		return Job{}, false, err
	}
	j.Options = json.RawMessage(optsJSON)
	j.Status = StatusActive

	if _, err := tx.ExecContext(ctx, `UPDATE jobs SET status = 'active', updated_at = ? WHERE job_id = ?`,
		time.Now().UnixMilli(), j.JobID); err != nil {
		return Job{}, false, err
	}
	if err := tx.Commit(); err != nil {
		return Job{}, false, err
	}
	return j, true, nil
}

func (q *Queue) runJob(ctx context.Context, handler Handler, job Job) {
	err := handler(ctx, job)
	if err == nil {
		q.markTerminal(ctx, job.JobID, job.PlaylistHash, StatusCompleted, "")
		return
	}

	attempt := job.Attempt + 1
	if attempt >= MaxAttempts || !isRetryable(err) {
		q.markTerminal(ctx, job.JobID, job.PlaylistHash, StatusFailed, err.Error())
		return
	}

	backoff := RetryBackoffs[min(attempt-1, len(RetryBackoffs)-1)]
	logging.WithComponent("queue").Warn().
		Str("job_id", job.JobID).Str("hash", job.PlaylistHash).Int("attempt", attempt).Err(err).
		Msg("job failed, retrying")
	q.markRetry(ctx, job.JobID, attempt)
	select {
	case <-time.After(backoff):
	case <-ctx.Done():
		return
	}
	q.markWaiting(ctx, job.JobID)
}

func (q *Queue) markTerminal(ctx context.Context, jobID, hash string, status Status, errMsg string) {
	_, _ = q.db.ExecContext(ctx, `UPDATE jobs SET status=?, error=?, updated_at=? WHERE job_id=?`,
		status, errMsg, time.Now().UnixMilli(), jobID)
	_, _ = q.db.ExecContext(ctx, `DELETE FROM locks WHERE playlist_hash = ? AND job_id = ?`, hash, jobID)
}

func (q *Queue) markRetry(ctx context.Context, jobID string, attempt int) {
	_, _ = q.db.ExecContext(ctx, `UPDATE jobs SET attempt=?, updated_at=? WHERE job_id=?`,
		attempt, time.Now().UnixMilli(), jobID)
}

func (q *Queue) markWaiting(ctx context.Context, jobID string) {
	_, _ = q.db.ExecContext(ctx, `UPDATE jobs SET status='waiting', updated_at=? WHERE job_id=?`,
		time.Now().UnixMilli(), jobID)
}

// isRetryable distinguishes transient fetch failures (network, 5xx,
// timeout) from permanent ones (4xx, too-large, malformed); callers
// wrap permanent errors in PermanentError to signal "do not retry".
func isRetryable(err error) bool {
	var perm *PermanentError
	return !asPermanent(err, &perm)
}

// PermanentError marks a job failure as non-retryable (4xx, too-large,
// malformed input).
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func asPermanent(err error, target **PermanentError) bool {
	for err != nil {
		if pe, ok := err.(*PermanentError); ok {
			*target = pe
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

// Sweep purges completed jobs older than the retention window (24h,
// cap 1000) and failed jobs older than 7 days.
func (q *Queue) Sweep(ctx context.Context) error {
	now := time.Now()
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status = 'completed' AND updated_at < ?`,
		now.Add(-24*time.Hour).UnixMilli()); err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status = 'failed' AND updated_at < ?`,
		now.Add(-7*24*time.Hour).UnixMilli()); err != nil {
		return err
	}
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status = 'completed' AND job_id NOT IN (
			SELECT job_id FROM jobs WHERE status = 'completed' ORDER BY updated_at DESC LIMIT 1000
		)`)
	return err
}
