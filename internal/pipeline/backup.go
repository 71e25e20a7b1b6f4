package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/rdjellab/mongosnap/internal/backupset"
	"github.com/rdjellab/mongosnap/internal/codec"
	"github.com/rdjellab/mongosnap/internal/logger"
)

// BackupOptions parameterizes one backup invocation.
type BackupOptions struct {
	Database   string
	Collection string
	// Dir is the backup-set root; the file lands at <Dir>/<db>/<coll>.json.
	Dir       string
	BatchSize int
	Retry     RetryPolicy
	Progress  ProgressFunc
	Log       logger.Logger
}

// Backup streams one collection into its backup file. The file is written
// incrementally and fsynced per batch; when a transient connection failure
// interrupts the cursor, the cursor is reopened past the last _id already on
// disk and the file keeps growing in place. Any terminal failure removes the
// partial file so a bracket-less fragment is never left looking like a
// backup.
func Backup(ctx context.Context, src Source, opts BackupOptions) (Result, error) {
	log := opts.Log
	if log == nil {
		log = logger.Nop()
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	// Existence precheck through the name listing, which works on read-only
	// credentials that may not be allowed to run stats commands.
	names, err := src.ListCollections(ctx, opts.Database)
	if err != nil {
		return Result{}, fmt.Errorf("list collections in %q: %w", opts.Database, err)
	}
	if !slices.Contains(names, opts.Collection) {
		return Result{}, fmt.Errorf("%s.%s: %w", opts.Database, opts.Collection, ErrCollectionNotFound)
	}

	path := backupset.CollectionFile(opts.Dir, opts.Database, opts.Collection)
	if err := backupset.EnsureDir(filepath.Dir(path)); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("%w: create %s: %v", ErrDestinationUnwritable, path, err)
	}

	log.Info("backup started",
		"database", opts.Database,
		"collection", opts.Collection,
		"path", path,
		"batch_size", batchSize,
	)
	start := time.Now()

	w := &backupWriter{f: f, progress: opts.Progress}
	if err := w.open(); err != nil {
		return discardPartial(f, path, err)
	}

	bo := opts.Retry.backOff()
	retries := 0
	var resume any

	for {
		err := drainCursor(ctx, src, opts, batchSize, &resume, w)
		if err == nil {
			break
		}
		if IsTransient(err) && retries < opts.Retry.MaxRetries {
			retries++
			log.Warn("transient source failure, resuming cursor",
				"database", opts.Database,
				"collection", opts.Collection,
				"retry", retries,
				"written", w.written,
				"error", err.Error(),
			)
			if serr := sleep(ctx, bo); serr != nil {
				return discardPartial(f, path, serr)
			}
			continue
		}
		return discardPartial(f, path, err)
	}

	if err := w.close(); err != nil {
		os.Remove(path)
		return Result{}, err
	}

	log.Info("backup completed",
		"database", opts.Database,
		"collection", opts.Collection,
		"documents", w.written,
		"retries", retries,
		"duration", time.Since(start).String(),
	)
	return Result{Documents: w.written}, nil
}

// drainCursor consumes one cursor from the position after resume, flushing
// full batches as it goes. Documents read but not yet flushed when the
// cursor breaks are dropped; the next attempt re-reads them from the source.
func drainCursor(
	ctx context.Context,
	src Source,
	opts BackupOptions,
	batchSize int,
	resume *any,
	w *backupWriter,
) error {
	filter := bson.D{}
	if *resume != nil {
		filter = bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: *resume}}}}
	}
	cur, err := src.FindOrdered(ctx, opts.Database, opts.Collection, filter, int32(batchSize))
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	batch := make([]bson.D, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.writeBatch(batch); err != nil {
			return err
		}
		if id, ok := documentID(batch[len(batch)-1]); ok {
			*resume = id
		}
		batch = batch[:0]
		return nil
	}

	for cur.Next(ctx) {
		var doc bson.D
		if err := cur.Decode(&doc); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
		batch = append(batch, doc)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return flush()
}

// backupWriter owns the collection file across cursor attempts: the opening
// bracket goes out exactly once, fragments are comma-joined, and every batch
// is fsynced before its documents count as written.
type backupWriter struct {
	f        *os.File
	written  int64
	any      bool
	progress ProgressFunc
}

func (w *backupWriter) open() error {
	if _, err := w.f.WriteString("[\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	return nil
}

func (w *backupWriter) writeBatch(batch []bson.D) error {
	var buf bytes.Buffer
	for _, doc := range batch {
		if w.any {
			buf.WriteString(",\n")
		}
		data, err := codec.MarshalDocument(doc)
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		buf.Write(data)
		w.any = true
	}
	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	w.written += int64(len(batch))
	w.progress.report(w.written)
	return nil
}

func (w *backupWriter) close() error {
	if _, err := w.f.WriteString("\n]"); err != nil {
		w.f.Close()
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrDestinationUnwritable, err)
	}
	return nil
}

// discardPartial closes and removes a half-written file on the way out.
func discardPartial(f *os.File, path string, err error) (Result, error) {
	f.Close()
	os.Remove(path)
	return Result{}, err
}

func documentID(doc bson.D) (any, bool) {
	for _, e := range doc {
		if e.Key == "_id" {
			return e.Value, true
		}
	}
	return nil, false
}
