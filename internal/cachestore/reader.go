package cachestore

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
)

// ErrNotFound is returned when a hash has no cache entry.
var ErrNotFound = errors.New("cachestore: not found")

// ReadItems seeks H.idx to the offset-th entry and reads up to limit
// items from H.ndjson, in O(limit) I/O regardless of file size. While
// parsing_status=in_progress, idx may lag ndjson by up to one line;
// callers get min(len(idx), len(ndjson)) lines rather than an error.
func (s *Store) ReadItems(hash string, offset, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, nil
	}
	idxFile, err := os.Open(idxPath(s.dir, hash))
	if err != nil {
		return nil, ErrNotFound
	}
	defer idxFile.Close()
	ndjsonFile, err := os.Open(ndjsonPath(s.dir, hash))
	if err != nil {
		return nil, ErrNotFound
	}
	defer ndjsonFile.Close()

	byteOffset, n, err := seekIdx(idxFile, offset, limit)
	if err != nil || n == 0 {
		return nil, err
	}
	if _, err := ndjsonFile.Seek(byteOffset, io.SeekStart); err != nil {
		return nil, err
	}

	return readNLines(ndjsonFile, n)
}

// ReadPreview is a partial read of the first limit items, safe while
// parsing_status=in_progress.
func (s *Store) ReadPreview(hash string, limit int) ([]Item, error) {
	return s.ReadItems(hash, 0, limit)
}

// seekIdx returns the byte offset of idx entry `offset` and the number
// of entries available from there, capped at limit and at
// min(idxLineCount, implied-ndjson-availability) for partial-read
// safety.
func seekIdx(idxFile *os.File, offset, limit int) (byteOffset int64, count int, err error) {
	info, err := idxFile.Stat()
	if err != nil {
		return 0, 0, err
	}
	totalEntries := int(info.Size() / idxLineWidth)
	if offset >= totalEntries {
		return 0, 0, nil
	}
	available := totalEntries - offset
	if available > limit {
		available = limit
	}

	buf := make([]byte, idxLineWidth)
	if _, err := idxFile.ReadAt(buf, int64(offset)*idxLineWidth); err != nil {
		return 0, 0, err
	}
	off, err := parseFixedWidthOffset(buf)
	if err != nil {
		return 0, 0, err
	}
	return off, available, nil
}

func parseFixedWidthOffset(buf []byte) (int64, error) {
	var n int64
	for _, b := range buf[:idxLineWidth-1] {
		if b < '0' || b > '9' {
			return 0, errors.New("cachestore: malformed idx entry")
		}
		n = n*10 + int64(b-'0')
	}
	return n, nil
}

// ScanItems walks hash's ndjson in stream order, calling visit for
// each successfully decoded item. visit returns false to stop early
// (used by internal/query's group/kind filter and substring search,
// which terminate once `limit` matches are found).
func (s *Store) ScanItems(hash string, visit func(Item) bool) error {
	f, err := os.Open(ndjsonPath(s.dir, hash))
	if err != nil {
		return ErrNotFound
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			continue // tolerate a torn trailing line while in_progress
		}
		if !visit(item) {
			return nil
		}
	}
	return nil
}

func readNLines(r io.Reader, n int) ([]Item, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	items := make([]Item, 0, n)
	for i := 0; i < n; i++ {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			var item Item
			trimmed := line
			if trimmed[len(trimmed)-1] == '\n' {
				trimmed = trimmed[:len(trimmed)-1]
			}
			if len(trimmed) > 0 {
				if jsonErr := json.Unmarshal(trimmed, &item); jsonErr == nil {
					items = append(items, item)
				}
			}
		}
		if err != nil {
			break // partial-read safety: a dangling write-in-progress line stops here
		}
	}
	return items, nil
}
