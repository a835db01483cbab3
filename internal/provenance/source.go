package provenance

import (
	"context"

	"github.com/h4x0r/1-click-github-sec/internal/version"
)

// Material is a downloaded attestation and, when available, the release
// artifact it covers.
type Material struct {
	AttestationPath string
	ArtifactPath    string
	// Cleanup removes downloaded files. May be nil.
	Cleanup func()
}

// Fetcher downloads the attestation published for a version.
type Fetcher interface {
	FetchAttestation(ctx context.Context, version string) (*Material, error)
}

// ReleaseSource produces verified digest sets for published versions.
type ReleaseSource struct {
	fetcher   Fetcher
	verifier  Verifier
	sourceURI string
}

// NewReleaseSource ties a fetcher to a verifier for one source repository.
func NewReleaseSource(fetcher Fetcher, verifier Verifier, sourceURI string) *ReleaseSource {
	return &ReleaseSource{fetcher: fetcher, verifier: verifier, sourceURI: sourceURI}
}

// VerifiedDigests downloads and verifies the attestation for ver. The
// statement must have been built from the configured source at tag ver.
func (s *ReleaseSource) VerifiedDigests(ctx context.Context, ver string) (*VerifiedDigestSet, error) {
	m, err := s.fetcher.FetchAttestation(ctx, ver)
	if err != nil {
		return nil, err
	}
	if m.Cleanup != nil {
		defer m.Cleanup()
	}
	return s.verifier.Verify(ctx, Request{
		ArtifactPath:      m.ArtifactPath,
		AttestationPath:   m.AttestationPath,
		ExpectedSourceURI: s.sourceURI,
		ExpectedTag:       version.Tag(ver),
	})
}

// Verifier returns the strategy in use.
func (s *ReleaseSource) Verifier() Verifier { return s.verifier }
