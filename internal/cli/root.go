package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/h4x0r/1-click-github-sec/internal/branding"
	"github.com/h4x0r/1-click-github-sec/internal/config"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	rootDir  string
	logLevel string

	settings *config.Settings
	logger   *zap.Logger
)

// errNotIntact makes `check` exit non-zero without printing an error.
var errNotIntact = errors.New("installation is not intact")

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root containing the installed controls")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log_level")
}

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` keeps the installed security controls (scanner binaries, git hooks and
CI workflows) in sync with signed releases. Every file is checked against a
trusted digest before and after an upgrade, and local changes are never
overwritten without a backup.

Running without a subcommand starts an interactive upgrade.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.Load()
		settings = config.Current()
		if logLevel != "" {
			settings.LogLevel = logLevel
		}
		l, err := logging.NewLogger(settings.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", settings.LogLevel, err)
		}
		logger = l

		abs, err := filepath.Abs(rootDir)
		if err != nil {
			return fmt.Errorf("resolving project root: %w", err)
		}
		rootDir = abs
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUpgrade(cmd, false)
	},
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && !errors.Is(err, errNotIntact) {
		printError(os.Stderr, err)
	}
	return err
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if hint := errs.HintOf(err); hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}
