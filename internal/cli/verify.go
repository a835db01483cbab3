package cli

import (
	"fmt"
	"path/filepath"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/integrity"
	"github.com/h4x0r/1-click-github-sec/internal/provenance"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"github.com/spf13/cobra"
)

var verifyAttestation string

func init() {
	verifyCmd.Flags().StringVar(&verifyAttestation, "provenance", "", "Attestation file (bundle or .intoto.jsonl); downloaded from the release when omitted")
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify-provenance <artifact> <version>",
	Short: "Verify an artifact against its signed build provenance",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		artifact, ver := args[0], args[1]
		if !version.Valid(ver) {
			return fmt.Errorf("invalid version %q", ver)
		}
		verifier, err := newVerifier()
		if err != nil {
			return err
		}

		attPath := verifyAttestation
		if attPath == "" {
			m, err := newReleaseClient().FetchAttestation(cmd.Context(), ver)
			if err != nil {
				return err
			}
			if m.Cleanup != nil {
				defer m.Cleanup()
			}
			attPath = m.AttestationPath
		}

		set, err := verifier.Verify(cmd.Context(), provenance.Request{
			ArtifactPath:      artifact,
			AttestationPath:   attPath,
			ExpectedSourceURI: settings.SourceURI,
			ExpectedTag:       version.Tag(ver),
		})
		if err != nil {
			return err
		}

		digest, err := integrity.HashFile(artifact)
		if err != nil {
			return err
		}
		covered := false
		for _, d := range set.Digests {
			if d == digest {
				covered = true
				break
			}
		}
		if !covered {
			return errs.Trust("verifying provenance", artifact,
				fmt.Errorf("sha256 %s is not a subject of the verified statement", digest))
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Verified %s with %s\n", filepath.Base(artifact), set.Verifier)
		fmt.Fprintf(out, "  builder: %s\n", set.BuilderID)
		fmt.Fprintf(out, "  source:  %s@%s\n", set.SourceURI, set.SourceRef)
		fmt.Fprintf(out, "  sha256:  %s\n", digest)
		return nil
	},
}
