package cli

import (
	"fmt"

	"github.com/h4x0r/1-click-github-sec/internal/mergetool"
	"github.com/h4x0r/1-click-github-sec/internal/provenance"
	"github.com/h4x0r/1-click-github-sec/internal/registry"
	"github.com/h4x0r/1-click-github-sec/internal/release"
	"github.com/h4x0r/1-click-github-sec/internal/resolve"
	"github.com/h4x0r/1-click-github-sec/internal/upgrade"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newReleaseClient builds the release client from the loaded settings.
func newReleaseClient() *release.Client {
	opts := []release.Option{
		release.WithRepo(settings.GitHubRepo),
		release.WithTimeout(settings.NetworkTimeout),
		release.WithRetries(settings.Retries),
		release.WithLogger(logger),
	}
	if settings.Mirror != "" {
		opts = append(opts, release.WithMirror(settings.Mirror))
	}
	return release.New(opts...)
}

func newVerifier() (provenance.Verifier, error) {
	v, err := provenance.Select(provenance.Options{
		Strategy:        settings.Verifier,
		ToolPath:        settings.VerifierPath,
		ToolTimeout:     settings.ToolTimeout,
		PublicKeys:      settings.PublicKeys,
		RequireTlog:     settings.RequireTlog,
		TrustedBuilders: settings.TrustedBuilders,
	})
	if err != nil {
		return nil, fmt.Errorf("selecting provenance verifier: %w", err)
	}
	return v, nil
}

// newRegistry layers signed release provenance over the embedded table.
func newRegistry(client *release.Client) (*registry.Registry, error) {
	table, err := registry.Embedded()
	if err != nil {
		return nil, err
	}
	verifier, err := newVerifier()
	if err != nil {
		return nil, err
	}
	logger.Debug("digest registry ready")
	return registry.New(table,
		registry.WithProvenance(provenance.NewReleaseSource(client, verifier, settings.SourceURI)),
		registry.WithLogger(logger),
	)
}

func newOrchestrator(cmd *cobra.Command, force bool) (*upgrade.Orchestrator, error) {
	client := newReleaseClient()
	reg, err := newRegistry(client)
	if err != nil {
		return nil, err
	}
	prompter := resolve.NewTerminalPrompter(cmd.InOrStdin(), cmd.OutOrStdout())

	opts := []upgrade.Option{
		upgrade.WithLogger(logger),
		upgrade.WithOutput(cmd.OutOrStdout()),
		upgrade.WithForce(force),
	}
	sel := mergetool.Select(settings.MergeTool, nil)
	if !sel.Available() {
		logger.Info("three-way merge disabled", zap.String("reason", sel.Reason))
	}
	opts = append(opts, upgrade.WithMerger(mergetool.NewMerger(sel)))
	return upgrade.New(rootDir, reg, client, prompter, opts...), nil
}
