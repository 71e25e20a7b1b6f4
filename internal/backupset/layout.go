// Package backupset owns the on-disk layout of a backup set: one directory
// per database, one JSON array file per collection, a metadata record per
// run, and a lock guarding concurrent runs into the same root.
package backupset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Descriptor identifies one collection and its approximate footprint, either
// on a live server (counts from collStats, best effort) or inside a backup
// set (counts exact, by file inspection).
type Descriptor struct {
	Database   string
	Collection string
	Documents  int64
	SizeBytes  int64
}

func (d Descriptor) String() string {
	return d.Database + "." + d.Collection
}

// DatabaseDir returns the directory holding one database's collection files.
func DatabaseDir(root, database string) string {
	return filepath.Join(root, database)
}

// CollectionFile returns the path of one collection's backup file.
func CollectionFile(root, database, collection string) string {
	return filepath.Join(root, database, collection+".json")
}

// CollectionName recovers the collection name from a backup file path.
func CollectionName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// EnsureDir creates dir and any missing parents; existing directories are
// left alone, so retrying into a partial backup set is safe.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create backup directory %q: %w", dir, err)
	}
	return nil
}
