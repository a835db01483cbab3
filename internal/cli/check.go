package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify installed files against trusted digests",
	Long: `Hash every managed file and compare it with the digest recorded for the
installed version. Nothing is modified.

Exits with status 1 unless every file is Intact.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newOrchestrator(cmd, false)
		if err != nil {
			return err
		}
		s, err := o.Check(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if s.Blind() {
			fmt.Fprintln(out, "No version marker found; files cannot be compared against a release.")
		}
		s.Before.Render(out)
		if !s.Before.AllIntact() {
			return errNotIntact
		}
		return nil
	},
}
