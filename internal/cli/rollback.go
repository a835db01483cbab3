package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rollbackList bool

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackList, "list", false, "List backup batches and exit")
	rootCmd.AddCommand(rollbackCmd)
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback [batch-id]",
	Short: "Restore files from a backup batch",
	Long: `Restore the files snapshotted by an earlier upgrade. Without an argument the
available batches are listed and one is chosen interactively.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOrchestrator(cmd, false)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		if rollbackList {
			batches, err := o.Batches()
			if err != nil {
				return err
			}
			if len(batches) == 0 {
				fmt.Fprintln(out, "No backups found.")
				return nil
			}
			for _, b := range batches {
				fmt.Fprintf(out, "%s  %d file(s)\n", b.ID, len(b.Records))
				for _, rec := range b.Records {
					fmt.Fprintf(out, "    %s\n", rec.Original)
				}
			}
			return nil
		}

		id := ""
		if len(args) == 1 {
			id = args[0]
		}
		report, err := o.Rollback(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Restored %d file(s) from %s", len(report.Restored), report.Batch)
		if n := len(report.Skipped); n > 0 {
			fmt.Fprintf(out, ", skipped %d", n)
		}
		fmt.Fprintln(out)
		return nil
	},
}
