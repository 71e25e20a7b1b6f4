package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rdjellab/mongosnap/internal/backupset"
	"github.com/rdjellab/mongosnap/internal/pipeline"
)

var (
	backupDatabase   string
	backupCollection string
	backupOut        string
	backupBatchSize  int
	backupRetries    int
	backupBackoff    time.Duration
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Back up one collection, or a whole database, to a backup set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := connect(ctx)
		if err != nil {
			return err
		}
		defer client.Close(ctx)

		out := backupOut
		if out == "" {
			out = cfg.Backup.OutputDirectory
		}

		// One run per backup set at a time.
		lock, err := backupset.Acquire(ctx, out)
		if err != nil {
			return err
		}
		defer lock.Release()

		collections := []string{backupCollection}
		if backupCollection == "" {
			collections, err = pipeline.BackupableCollections(ctx, client, backupDatabase)
			if err != nil {
				return err
			}
			if len(collections) == 0 {
				return fmt.Errorf("database %q has no collections to back up", backupDatabase)
			}
		}

		meta := backupset.NewMetadata()
		var errs []error
		for _, collection := range collections {
			start := time.Now()
			res, err := pipeline.Backup(ctx, client, pipeline.BackupOptions{
				Database:   backupDatabase,
				Collection: collection,
				Dir:        out,
				BatchSize:  resolveBatchSize(backupBatchSize, cfg.Backup.BatchSize),
				Retry:      retryPolicy(cmd),
				Progress:   batchProgress("backup", backupDatabase, collection),
				Log:        log,
			})

			rec := backupset.CollectionRecord{
				Database:   backupDatabase,
				Collection: collection,
				Documents:  res.Documents,
				Success:    err == nil,
				Duration:   time.Since(start),
			}
			if err != nil {
				rec.Error = err.Error()
				log.Error("backup failed",
					"database", backupDatabase,
					"collection", collection,
					"error", err.Error(),
				)
				errs = append(errs, fmt.Errorf("backup %s.%s: %w", backupDatabase, collection, err))
			} else if info, statErr := os.Stat(
				backupset.CollectionFile(out, backupDatabase, collection),
			); statErr == nil {
				rec.SizeBytes = info.Size()
			}
			meta.Append(rec)
		}

		if err := meta.Write(out); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	},
}

func init() {
	backupCmd.Flags().
		StringVarP(&backupDatabase, "db", "d", "", "database to back up")
	backupCmd.Flags().
		StringVarP(&backupCollection, "collection", "C", "", "collection to back up (default: every collection in the database)")
	backupCmd.Flags().
		StringVarP(&backupOut, "out", "o", "", "backup set directory (default from config)")
	backupCmd.Flags().
		IntVar(&backupBatchSize, "batch-size", 0, "documents per write batch (default from config)")
	backupCmd.Flags().
		IntVar(&backupRetries, "max-retries", 3, "retries after transient connection failures")
	backupCmd.Flags().
		DurationVar(&backupBackoff, "retry-backoff", 2*time.Second, "initial retry delay, doubled per attempt")
	_ = backupCmd.MarkFlagRequired("db")
}

// retryPolicy builds the backup retry policy from the config file,
// letting explicitly passed flags win over configured values.
func retryPolicy(cmd *cobra.Command) pipeline.RetryPolicy {
	policy := pipeline.RetryPolicy{
		MaxRetries: cfg.Backup.MaxRetries,
		BaseDelay:  cfg.Backup.RetryBackoff,
		Multiplier: 2,
	}
	if cmd.Flags().Changed("max-retries") {
		policy.MaxRetries = backupRetries
	}
	if cmd.Flags().Changed("retry-backoff") {
		policy.BaseDelay = backupBackoff
	}
	return policy
}

func resolveBatchSize(flag, configured int) int {
	if flag > 0 {
		return flag
	}
	return configured
}

// batchProgress logs the cumulative count after each flushed batch; a
// fancier renderer can replace it without touching the pipelines.
func batchProgress(op, database, collection string) pipeline.ProgressFunc {
	return func(done int64) {
		log.Debug(op+" progress",
			"database", database,
			"collection", collection,
			"documents", done,
		)
	}
}
