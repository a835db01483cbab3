package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/h4x0r/1-click-github-sec/internal/upgrade"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"github.com/spf13/cobra"
)

var (
	upgradeTo        string
	upgradeReinstall bool
)

func init() {
	for _, c := range []*cobra.Command{rootCmd, upgradeCmd, forceCmd} {
		c.Flags().StringVar(&upgradeTo, "to", "", "Install a specific version instead of the latest (e.g. 0.6.10)")
		c.Flags().BoolVar(&upgradeReinstall, "reinstall", false, "Apply the target even if it is already installed")
	}
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(forceCmd)
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade the installed controls interactively",
	Long: `Check the installed files, download and verify the target release, and ask
how to handle every file that was changed locally. Changed files are backed up
before they are replaced; use rollback to restore them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpgrade(cmd, false)
	},
}

var forceCmd = &cobra.Command{
	Use:   "force",
	Short: "Upgrade without asking; every changed file is backed up and replaced",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpgrade(cmd, true)
	},
}

func runUpgrade(cmd *cobra.Command, force bool) error {
	o, err := newOrchestrator(cmd, force)
	if err != nil {
		return err
	}
	s, err := o.Run(cmd.Context(), upgrade.RunOptions{Target: upgradeTo, Reinstall: upgradeReinstall})
	if err != nil {
		return err
	}
	printSummary(cmd.OutOrStdout(), s)
	return nil
}

func printSummary(w io.Writer, s *upgrade.Session) {
	if s.UpToDate {
		return
	}
	from := "unknown version"
	if !s.Blind() {
		from = version.Tag(s.Installed)
	}
	fmt.Fprintf(w, "\nUpgraded %s -> %s\n", from, version.Tag(s.Target))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FILE\tACTION\tNOTE")
	for _, out := range s.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", out.Path, out.Decision, out.Note)
	}
	tw.Flush()

	if s.Batch != nil {
		fmt.Fprintf(w, "Backups: batch %s (restore with `rollback %s`)\n", s.Batch.ID, s.Batch.ID)
	}
	for _, a := range s.Anomalies {
		if a.Expected {
			fmt.Fprintf(w, "%s is %s (local version kept by choice)\n", a.Path, a.Verdict)
			continue
		}
		color.New(color.FgYellow).Fprintf(w, "warning: %s is %s after the upgrade; run `check` and consider `rollback`\n", a.Path, a.Verdict)
	}
}
