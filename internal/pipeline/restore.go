package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/rdjellab/mongosnap/internal/backupset"
	"github.com/rdjellab/mongosnap/internal/codec"
	"github.com/rdjellab/mongosnap/internal/logger"
)

// RestoreOptions parameterizes one restore invocation.
type RestoreOptions struct {
	Database   string
	Collection string
	// Dir is the backup-set root the collection file is read from.
	Dir string
	// ForceOverwrite drops an existing target collection instead of
	// reporting ErrCollectionExists.
	ForceOverwrite bool
	BatchSize      int
	Progress       ProgressFunc
	Log            logger.Logger
}

// Restore loads one collection file back into the destination. The file is
// syntax-checked in full before anything destructive happens, so a truncated
// backup aborts with ErrCorruptBackup without dropping or inserting a single
// document. Inserts then stream in file order, one batch in memory at a
// time. A failed insert stops the run immediately; the partially populated
// collection is left in place and the Result carries the partial count.
func Restore(ctx context.Context, dst Destination, opts RestoreOptions) (Result, error) {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	exists, err := dst.CollectionExists(ctx, opts.Database, opts.Collection)
	if err != nil {
		return Result{}, fmt.Errorf("check target collection: %w", err)
	}
	if exists && !opts.ForceOverwrite {
		return Result{}, fmt.Errorf("%s.%s: %w", opts.Database, opts.Collection, ErrCollectionExists)
	}

	path := backupset.CollectionFile(opts.Dir, opts.Database, opts.Collection)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{}, fmt.Errorf("%s: %w", path, ErrBackupFileNotFound)
		}
		return Result{}, fmt.Errorf("open backup file %s: %w", path, err)
	}
	defer f.Close()

	total, err := codec.ValidateArray(f)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %v", ErrCorruptBackup, path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Result{}, fmt.Errorf("rewind backup file %s: %w", path, err)
	}

	log.Info("restore started",
		"database", opts.Database,
		"collection", opts.Collection,
		"path", path,
		"documents", total,
		"overwrite", exists && opts.ForceOverwrite,
	)
	start := time.Now()

	if exists && opts.ForceOverwrite {
		if err := dst.DropCollection(ctx, opts.Database, opts.Collection); err != nil {
			return Result{}, fmt.Errorf("drop existing collection: %w", err)
		}
	}

	// An empty backup still creates the collection, so restoring an
	// originally-empty collection is observable.
	if total == 0 {
		if err := dst.CreateCollection(ctx, opts.Database, opts.Collection); err != nil {
			return Result{}, fmt.Errorf("create empty collection: %w", err)
		}
		log.Info("restore completed",
			"database", opts.Database,
			"collection", opts.Collection,
			"documents", 0,
			"duration", time.Since(start).String(),
		)
		return Result{}, nil
	}

	r := codec.NewReader(f)
	var restored int64
	batch := make([]bson.D, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := dst.InsertMany(ctx, opts.Database, opts.Collection, batch); err != nil {
			return fmt.Errorf("insert batch after %d documents: %w", restored, err)
		}
		restored += int64(len(batch))
		opts.Progress.report(restored)
		batch = batch[:0]
		return nil
	}

	for {
		doc, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{Documents: restored}, fmt.Errorf("%w: %s: %v", ErrCorruptBackup, path, err)
		}
		batch = append(batch, doc)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return Result{Documents: restored}, err
			}
		}
	}
	if err := flush(); err != nil {
		return Result{Documents: restored}, err
	}

	log.Info("restore completed",
		"database", opts.Database,
		"collection", opts.Collection,
		"documents", restored,
		"duration", time.Since(start).String(),
	)
	return Result{Documents: restored}, nil
}
