package cachestore

import "path/filepath"

func ndjsonPath(dir, hash string) string { return filepath.Join(dir, hash+".ndjson") }
func idxPath(dir, hash string) string    { return filepath.Join(dir, hash+".idx") }
func metaPath(dir, hash string) string   { return filepath.Join(dir, hash+".meta.json") }

// idxLineWidth is the fixed width (19 zero-padded digits + newline) of
// every H.idx record, giving O(1) random access to the offset-th
// item's byte position without scanning the index.
const idxLineWidth = 20
