package cachestore

import (
	"encoding/json"
	"fmt"
	"os"
)

// writeMetaAtomic writes meta to metaPath(dir, hash) via temp file +
// fsync + chmod + rename, so readers never observe torn state: write
// .tmp, fsync, then rename into place.
func writeMetaAtomic(dir, hash string, meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	path := metaPath(dir, hash)
	tmp, err := os.CreateTemp(dir, "."+hash+"-*.meta.json.tmp")
	if err != nil {
		return fmt.Errorf("cachestore: create temp meta: %w", err)
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	syncErr := tmp.Sync()
	closeErr := tmp.Close()
	if writeErr != nil || syncErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("cachestore: write temp meta: %w", writeErr)
		}
		if syncErr != nil {
			return fmt.Errorf("cachestore: fsync temp meta: %w", syncErr)
		}
		return fmt.Errorf("cachestore: close temp meta: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cachestore: chmod temp meta: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cachestore: rename temp meta: %w", err)
	}
	return nil
}

func readMeta(dir, hash string) (Meta, error) {
	data, err := os.ReadFile(metaPath(dir, hash))
	if err != nil {
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(data, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func ndjsonExists(dir, hash string) bool {
	_, err := os.Stat(ndjsonPath(dir, hash))
	return err == nil
}

func removeHashFiles(dir, hash string) {
	os.Remove(ndjsonPath(dir, hash))
	os.Remove(idxPath(dir, hash))
	os.Remove(metaPath(dir, hash))
}
