package cachestore

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// snapshotEvery is the item count between intermediate meta snapshots
// during an in-progress write.
const snapshotEvery = 1000

// Session is one job's open write handle: an append-only ndjson file,
// a lock-step byte-offset index, and the in-progress meta snapshot.
// A Session implements internal/batch's ItemSink.
type Session struct {
	store  *Store
	hash   string
	dir    string
	ndjson *os.File
	idx    *os.File

	offset             int64
	lineCount          int
	itemsSinceSnapshot int

	meta       Meta
	groupsByID map[string]Group
}

// NewSession opens (creating if absent) the ndjson/idx files for hash
// and writes an initial in-progress meta snapshot.
func (s *Store) NewSession(hash, sourceURL string) (*Session, error) {
	ndjsonFile, err := os.OpenFile(ndjsonPath(s.dir, hash), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cachestore: open ndjson: %w", err)
	}
	idxFile, err := os.OpenFile(idxPath(s.dir, hash), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		ndjsonFile.Close()
		return nil, fmt.Errorf("cachestore: open idx: %w", err)
	}

	now := time.Now()
	sess := &Session{
		store:      s,
		hash:       hash,
		dir:        s.dir,
		ndjson:     ndjsonFile,
		idx:        idxFile,
		groupsByID: make(map[string]Group),
		meta: Meta{
			Hash:          hash,
			SourceURL:     sourceURL,
			ParsingStatus: StatusInProgress,
			CreatedAt:     now,
			UpdatedAt:     now,
			ExpiresAt:     now.Add(s.ttl),
		},
	}
	if err := writeMetaAtomic(s.dir, hash, sess.meta); err != nil {
		ndjsonFile.Close()
		idxFile.Close()
		return nil, err
	}
	s.registerInProgress(hash, sess.meta)
	return sess, nil
}

// BulkUpsertItems appends items to the ndjson log and their byte
// offsets to the idx file in lock-step, so idx never names a line that
// isn't fully durable in ndjson yet.
func (s *Session) BulkUpsertItems(items []Item) error {
	for _, item := range items {
		if err := s.appendItem(item); err != nil {
			return err
		}
	}
	s.meta.Stats.Total = s.lineCount
	s.itemsSinceSnapshot += len(items)
	if s.itemsSinceSnapshot >= snapshotEvery {
		s.itemsSinceSnapshot = 0
		return s.flushMetaSnapshot()
	}
	return nil
}

// UpsertItem is the per-item fallback path used by internal/batch when
// a bulk flush fails.
func (s *Session) UpsertItem(item Item) error {
	return s.appendItem(item)
}

func (s *Session) appendItem(item Item) error {
	line, err := json.Marshal(item)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	n, err := s.ndjson.Write(line)
	if err != nil {
		return fmt.Errorf("cachestore: append ndjson line: %w", err)
	}
	if err := writeFixedWidthOffset(s.idx, s.offset); err != nil {
		return fmt.Errorf("cachestore: append idx entry: %w", err)
	}
	s.offset += int64(n)
	s.lineCount++
	return nil
}

// BulkUpsertGroups merges group snapshots into the in-progress meta
// and flushes an atomic snapshot so partial readers see updated counts.
func (s *Session) BulkUpsertGroups(groups []Group) error {
	for _, g := range groups {
		s.groupsByID[g.GroupID] = g
	}
	return s.flushMetaSnapshot()
}

// UpdateSeriesSummary records Stage A's running counts-only summary
// into the in-progress snapshot (Open Question 1, DESIGN.md).
func (s *Session) UpdateSeriesSummary(seriesCount, episodeCount int) error {
	s.meta.SeriesSummary = SeriesSummary{SeriesCount: seriesCount, EpisodeCount: episodeCount}
	return s.flushMetaSnapshot()
}

func (s *Session) flushMetaSnapshot() error {
	s.meta.Groups = make([]Group, 0, len(s.groupsByID))
	for _, g := range s.groupsByID {
		s.meta.Groups = append(s.meta.Groups, g)
	}
	s.meta.UpdatedAt = time.Now()
	if err := writeMetaAtomic(s.dir, s.hash, s.meta); err != nil {
		return err
	}
	s.store.registerInProgress(s.hash, s.meta)
	return nil
}

// ApplySeriesReassignments rewrites the series_id of every already-written
// item named in reassigned (itemID -> seriesID), covering both Stage A's
// initial run-length assignment and Stage B's fuzzy-merge reassignment of
// singletons into a multi-episode anchor. ndjson lines don't share a
// fixed width, so this isn't an in-place patch: it streams the existing
// log, rewrites affected items, and swaps the rebuilt ndjson/idx pair in
// with the same temp-file-plus-rename sequence writeMetaAtomic uses for
// meta.json. Call once, after the entry stream closes and before
// Complete seals the session.
func (s *Session) ApplySeriesReassignments(reassigned map[string]string) error {
	if len(reassigned) == 0 {
		return nil
	}
	if err := s.ndjson.Sync(); err != nil {
		return fmt.Errorf("cachestore: sync ndjson before reassignment: %w", err)
	}
	if _, err := s.ndjson.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("cachestore: seek ndjson for reassignment: %w", err)
	}

	tmpNdjson, err := os.CreateTemp(s.dir, "."+s.hash+"-*.ndjson.tmp")
	if err != nil {
		return fmt.Errorf("cachestore: create temp ndjson: %w", err)
	}
	tmpIdx, err := os.CreateTemp(s.dir, "."+s.hash+"-*.idx.tmp")
	if err != nil {
		os.Remove(tmpNdjson.Name())
		tmpNdjson.Close()
		return fmt.Errorf("cachestore: create temp idx: %w", err)
	}
	abort := func(err error) error {
		tmpNdjson.Close()
		tmpIdx.Close()
		os.Remove(tmpNdjson.Name())
		os.Remove(tmpIdx.Name())
		return err
	}

	sc := bufio.NewScanner(s.ndjson)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var offset int64
	var lineCount int
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var item Item
		if err := json.Unmarshal(line, &item); err != nil {
			continue // tolerate a torn trailing line, matching ScanItems
		}
		if seriesID, ok := reassigned[item.ID]; ok {
			item.SeriesID = seriesID
		}
		out, err := json.Marshal(item)
		if err != nil {
			return abort(err)
		}
		out = append(out, '\n')
		if _, err := tmpNdjson.Write(out); err != nil {
			return abort(fmt.Errorf("cachestore: write reassigned ndjson: %w", err))
		}
		if err := writeFixedWidthOffset(tmpIdx, offset); err != nil {
			return abort(fmt.Errorf("cachestore: write reassigned idx: %w", err))
		}
		offset += int64(len(out))
		lineCount++
	}
	if err := sc.Err(); err != nil {
		return abort(fmt.Errorf("cachestore: scan ndjson for reassignment: %w", err))
	}
	if err := tmpNdjson.Sync(); err != nil {
		return abort(err)
	}
	if err := tmpIdx.Sync(); err != nil {
		return abort(err)
	}
	tmpNdjsonName, tmpIdxName := tmpNdjson.Name(), tmpIdx.Name()
	if err := tmpNdjson.Close(); err != nil {
		return abort(err)
	}
	if err := tmpIdx.Close(); err != nil {
		os.Remove(tmpNdjsonName)
		os.Remove(tmpIdxName)
		return err
	}

	if err := s.ndjson.Close(); err != nil {
		return fmt.Errorf("cachestore: close ndjson before reassignment swap: %w", err)
	}
	if err := s.idx.Close(); err != nil {
		return fmt.Errorf("cachestore: close idx before reassignment swap: %w", err)
	}
	if err := os.Rename(tmpNdjsonName, ndjsonPath(s.dir, s.hash)); err != nil {
		return fmt.Errorf("cachestore: rename reassigned ndjson: %w", err)
	}
	if err := os.Rename(tmpIdxName, idxPath(s.dir, s.hash)); err != nil {
		return fmt.Errorf("cachestore: rename reassigned idx: %w", err)
	}

	ndjsonFile, err := os.OpenFile(ndjsonPath(s.dir, s.hash), os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("cachestore: reopen ndjson after reassignment: %w", err)
	}
	idxFile, err := os.OpenFile(idxPath(s.dir, s.hash), os.O_RDWR, 0o644)
	if err != nil {
		ndjsonFile.Close()
		return fmt.Errorf("cachestore: reopen idx after reassignment: %w", err)
	}
	s.ndjson = ndjsonFile
	s.idx = idxFile
	s.offset = offset
	s.lineCount = lineCount
	return nil
}

// Complete finalizes the session: writes the full series table once
// (only at completion, per Open Question 1) and marks the entry
// completed and immutable.
func (s *Session) Complete(seriesAggregates []SeriesAggregate) error {
	s.meta.Series = seriesAggregates
	s.meta.SeriesSummary = SeriesSummary{SeriesCount: len(seriesAggregates), EpisodeCount: sumEpisodes(seriesAggregates)}
	s.meta.ParsingStatus = StatusCompleted
	s.meta.UpdatedAt = time.Now()
	if err := writeMetaAtomic(s.dir, s.hash, s.meta); err != nil {
		return err
	}
	s.store.registerCompleted(s.hash, s.meta)
	return s.Close()
}

// Fail marks the session terminally failed; partial artifacts remain
// on disk and are overwritten by the next submission attempt.
func (s *Session) Fail(errMsg string) error {
	s.meta.ParsingStatus = StatusFailed
	s.meta.Error = errMsg
	s.meta.UpdatedAt = time.Now()
	if err := writeMetaAtomic(s.dir, s.hash, s.meta); err != nil {
		return err
	}
	s.store.registerInProgress(s.hash, s.meta)
	return s.Close()
}

// Close releases the session's open file handles.
func (s *Session) Close() error {
	idxErr := s.idx.Close()
	ndjsonErr := s.ndjson.Close()
	if ndjsonErr != nil {
		return ndjsonErr
	}
	return idxErr
}

func sumEpisodes(aggs []SeriesAggregate) int {
	total := 0
	for _, a := range aggs {
		total += a.EpisodeCount
	}
	return total
}

// writeFixedWidthOffset appends a zero-padded decimal offset followed
// by a newline, giving idx entries a constant width for O(1) seeks.
func writeFixedWidthOffset(w *os.File, offset int64) error {
	s := fmt.Sprintf("%0*d\n", idxLineWidth-1, offset)
	_, err := w.WriteString(s)
	return err
}
