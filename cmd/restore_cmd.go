package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/rdjellab/mongosnap/internal/pipeline"
)

var (
	restoreFrom       string
	restoreDatabase   string
	restoreCollection string
	restoreBatchSize  int
	restoreForce      bool
)

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore one collection from a backup set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		client, err := connect(ctx)
		if err != nil {
			return err
		}
		defer client.Close(ctx)

		res, err := pipeline.Restore(ctx, client, pipeline.RestoreOptions{
			Database:       restoreDatabase,
			Collection:     restoreCollection,
			Dir:            restoreFrom,
			ForceOverwrite: restoreForce,
			BatchSize:      resolveBatchSize(restoreBatchSize, cfg.Restore.BatchSize),
			Progress:       batchProgress("restore", restoreDatabase, restoreCollection),
			Log:            log,
		})
		if errors.Is(err, pipeline.ErrCollectionExists) {
			log.Warn("target collection already exists, pass --force to overwrite",
				"database", restoreDatabase,
				"collection", restoreCollection,
			)
			return err
		}
		if err != nil && res.Documents > 0 {
			log.Error("restore failed mid-insert, target collection is partial",
				"database", restoreDatabase,
				"collection", restoreCollection,
				"restored", res.Documents,
				"error", err.Error(),
			)
		}
		return err
	},
}

func init() {
	restoreCmd.Flags().
		StringVarP(&restoreFrom, "from", "f", "", "backup set directory to restore from")
	restoreCmd.Flags().
		StringVarP(&restoreDatabase, "db", "d", "", "target database")
	restoreCmd.Flags().
		StringVarP(&restoreCollection, "collection", "C", "", "collection to restore")
	restoreCmd.Flags().
		IntVar(&restoreBatchSize, "batch-size", 0, "documents per insert batch (default from config)")
	restoreCmd.Flags().
		BoolVar(&restoreForce, "force", false, "drop the target collection if it already exists")
	_ = restoreCmd.MarkFlagRequired("from")
	_ = restoreCmd.MarkFlagRequired("db")
	_ = restoreCmd.MarkFlagRequired("collection")
}
