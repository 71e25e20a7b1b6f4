package backupset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rdjellab/mongosnap/internal/codec"
	"github.com/rdjellab/mongosnap/internal/logger"
)

// ListCollections walks a completed backup set and describes every
// collection file in it. Document counts are exact, from a streaming scan of
// each file. Files that are unreadable or not a valid top-level array are
// logged and skipped, so one interrupted backup doesn't hide the rest of the
// set.
func ListCollections(root string, log logger.Logger) ([]Descriptor, error) {
	if log == nil {
		log = logger.Nop()
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read backup set %q: %w", root, err)
	}

	var out []Descriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		database := entry.Name()
		files, err := filepath.Glob(filepath.Join(DatabaseDir(root, database), "*.json"))
		if err != nil {
			return nil, err
		}
		sort.Strings(files)
		for _, file := range files {
			if strings.EqualFold(filepath.Base(file), MetadataFilename) {
				continue
			}
			desc, err := describeFile(database, file)
			if err != nil {
				log.Warn("skipping unreadable collection file",
					"file", file,
					"error", err.Error(),
				)
				continue
			}
			out = append(out, desc)
		}
	}
	return out, nil
}

func describeFile(database, path string) (Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return Descriptor{}, err
	}
	defer f.Close()

	count, err := codec.ValidateArray(f)
	if err != nil {
		return Descriptor{}, err
	}

	info, err := f.Stat()
	if err != nil {
		return Descriptor{}, err
	}

	return Descriptor{
		Database:   database,
		Collection: CollectionName(path),
		Documents:  count,
		SizeBytes:  info.Size(),
	}, nil
}
