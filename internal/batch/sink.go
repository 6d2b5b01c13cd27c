package batch

import "github.com/ingestcore/m3uingest/internal/cachestore"

// ItemSink is the persistence surface the batch processor flushes batches through.
// internal/cachestore implements this against the on-disk ndjson/idx
// layout; tests substitute an in-memory fake.
type ItemSink interface {
	// BulkUpsertItems appends/replaces items as a single unit. On
	// unrecoverable failure the caller falls back to UpsertItem per item.
	BulkUpsertItems(items []cachestore.Item) error

	// UpsertItem is the per-item fallback path used when a bulk flush
	// fails; a failure here is counted as a loss, never silently dropped.
	UpsertItem(item cachestore.Item) error

	// BulkUpsertGroups publishes incremental group snapshots so partial
	// reads see updated counts mid-parse.
	BulkUpsertGroups(groups []cachestore.Group) error
}
