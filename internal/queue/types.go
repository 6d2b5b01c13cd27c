// Package queue implements the job queue and lock manager: a durable,
// single-node job table backed by modernc.org/sqlite, a set-if-absent
// processing lock with TTL for at-most-one-parse-per-hash, a bounded
// worker pool, global admission rate limiting, and exponential-backoff
// retry.
package queue

import "encoding/json"

// Status is a job's lifecycle state.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// NotFound is returned by Status lookups for an unknown job_id — it is
// not a queue.Status value, just a sentinel the caller checks for.
const NotFound Status = "not_found"

// Job is one durable unit of work, identified by PlaylistHash.
type Job struct {
	JobID        string
	PlaylistHash string
	URL          string
	Options      json.RawMessage
	Status       Status
	Attempt      int
	Error        string
}

// Options mirrors the parse call's optional knobs.
type Options struct {
	DeviceTierHint string `json:"deviceTierHint,omitempty"`
	DeadlineMs     int64  `json:"deadlineMs,omitempty"`
}
