package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/rdjellab/mongosnap/internal/backupset"
	"github.com/rdjellab/mongosnap/internal/logger"
)

// systemDatabases never show up in listings and are never backed up.
var systemDatabases = map[string]struct{}{
	"admin":  {},
	"local":  {},
	"config": {},
}

// ListSourceCollections describes every user collection on the source.
// System databases and system.* collections are skipped; a failing stats
// command degrades that collection's counts to zero instead of failing the
// listing.
func ListSourceCollections(ctx context.Context, src Source, log logger.Logger) ([]backupset.Descriptor, error) {
	if log == nil {
		log = logger.Nop()
	}
	databases, err := src.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}

	var out []backupset.Descriptor
	for _, database := range databases {
		if _, skip := systemDatabases[database]; skip {
			continue
		}
		collections, err := src.ListCollections(ctx, database)
		if err != nil {
			return nil, fmt.Errorf("list collections in %q: %w", database, err)
		}
		for _, collection := range collections {
			if strings.HasPrefix(collection, "system.") {
				continue
			}
			stats, err := src.CollectionStats(ctx, database, collection)
			if err != nil {
				log.Debug("collection stats unavailable",
					"database", database,
					"collection", collection,
					"error", err.Error(),
				)
				stats = Stats{}
			}
			out = append(out, backupset.Descriptor{
				Database:   database,
				Collection: collection,
				Documents:  stats.Count,
				SizeBytes:  stats.SizeBytes,
			})
		}
	}
	return out, nil
}

// BackupableCollections returns the user collections of one database, in
// listing order, for whole-database backups.
func BackupableCollections(ctx context.Context, src Source, database string) ([]string, error) {
	collections, err := src.ListCollections(ctx, database)
	if err != nil {
		return nil, fmt.Errorf("list collections in %q: %w", database, err)
	}
	out := collections[:0]
	for _, collection := range collections {
		if strings.HasPrefix(collection, "system.") {
			continue
		}
		out = append(out, collection)
	}
	return out, nil
}
