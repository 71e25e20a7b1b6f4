package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/rdjellab/mongosnap/internal/backupset"
	"github.com/rdjellab/mongosnap/internal/pipeline"
)

var listBackupDir string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List collections on the server, or inside a backup set",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			descs []backupset.Descriptor
			err   error
		)
		if listBackupDir != "" {
			descs, err = backupset.ListCollections(listBackupDir, log)
		} else {
			client, cerr := connect(ctx)
			if cerr != nil {
				return cerr
			}
			defer client.Close(ctx)
			descs, err = pipeline.ListSourceCollections(ctx, client, log)
		}
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAMESPACE\tDOCUMENTS\tSIZE")
		for _, d := range descs {
			fmt.Fprintf(tw, "%s\t%s\t%s\n",
				d.String(),
				humanize.Comma(d.Documents),
				humanize.Bytes(uint64(d.SizeBytes)),
			)
		}
		return tw.Flush()
	},
}

func init() {
	listCmd.Flags().
		StringVarP(&listBackupDir, "backup", "b", "", "inspect a backup set directory instead of the server")
}
