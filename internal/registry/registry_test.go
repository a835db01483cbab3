package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/provenance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	digestA = "1111111111111111111111111111111111111111111111111111111111111111"
	digestB = "2222222222222222222222222222222222222222222222222222222222222222"
	digestC = "3333333333333333333333333333333333333333333333333333333333333333"
)

func testTable() Table {
	return Table{
		"0.6.10": {
			".security-controls/bin/pinactlite":   digestA,
			".git/hooks/pre-push":                 digestB,
			".security-controls/bin/gitleakslite": "",
		},
	}
}

type fakeSource struct {
	sets  map[string]*provenance.VerifiedDigestSet
	err   error
	calls map[string]int
}

func (f *fakeSource) VerifiedDigests(_ context.Context, ver string) (*provenance.VerifiedDigestSet, error) {
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[ver]++
	if f.err != nil {
		return nil, f.err
	}
	set, ok := f.sets[ver]
	if !ok {
		return nil, errs.NotFound("fetching attestation", ver, errors.New("not published"))
	}
	return set, nil
}

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

func TestExpectedDigest_Embedded(t *testing.T) {
	r, err := New(testTable())
	require.NoError(t, err)

	d, err := r.ExpectedDigest(context.Background(), "v0.6.10", ".security-controls/bin/pinactlite")
	require.NoError(t, err)
	assert.Equal(t, VersionedDigest{
		Version: "0.6.10",
		Path:    ".security-controls/bin/pinactlite",
		Digest:  digestA,
		Source:  SourceEmbedded,
		Trust:   TrustTrusted,
	}, d)
}

func TestExpectedDigest_NotFound(t *testing.T) {
	r, err := New(testTable())
	require.NoError(t, err)

	tests := []struct {
		name, version, path string
	}{
		{"pending entry", "0.6.10", ".security-controls/bin/gitleakslite"},
		{"unknown path", "0.6.10", ".github/workflows/other.yml"},
		{"unknown version", "0.5.0", ".git/hooks/pre-push"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ExpectedDigest(context.Background(), tt.version, tt.path)
			assert.True(t, errs.IsKind(err, errs.KindNotFound), "got %v", err)
			assert.NotEmpty(t, errs.HintOf(err))
		})
	}
}

func TestExpectedDigest_ProvenancePreferred(t *testing.T) {
	src := &fakeSource{sets: map[string]*provenance.VerifiedDigestSet{
		"0.7.0":  {Digests: map[string]string{".git/hooks/pre-push": digestC}, Verifier: "key"},
		"0.6.10": {Digests: map[string]string{".git/hooks/pre-push": digestC}, Verifier: "key"},
	}}
	r, err := New(testTable(), WithProvenance(src))
	require.NoError(t, err)

	d, err := r.ExpectedDigest(context.Background(), "0.6.10", ".git/hooks/pre-push")
	require.NoError(t, err)
	assert.Equal(t, digestC, d.Digest)
	assert.Equal(t, SourceProvenance, d.Source)
	assert.Equal(t, TrustTrusted, d.Trust)

	// A path the statement does not cover still resolves from the table.
	d, err = r.ExpectedDigest(context.Background(), "0.6.10", ".security-controls/bin/pinactlite")
	require.NoError(t, err)
	assert.Equal(t, SourceEmbedded, d.Source)

	_, err = r.ExpectedDigest(context.Background(), "0.7.0", ".git/hooks/pre-push")
	require.NoError(t, err)
	assert.Equal(t, 1, src.calls["0.6.10"], "provenance is fetched once per version")
	assert.Equal(t, 1, src.calls["0.7.0"])
	assert.Empty(t, r.Failures())
}

func TestExpectedDigest_NetworkFallback(t *testing.T) {
	logger, logs := observed(zapcore.WarnLevel)
	src := &fakeSource{err: errs.Network("downloading attestation", "0.6.10", errors.New("connection refused"))}
	r, err := New(testTable(), WithProvenance(src), WithLogger(logger))
	require.NoError(t, err)

	d, err := r.ExpectedDigest(context.Background(), "0.6.10", ".git/hooks/pre-push")
	require.NoError(t, err)
	assert.Equal(t, digestB, d.Digest)
	assert.Equal(t, SourceEmbedded, d.Source)

	warnings := logs.FilterMessage("provenance unavailable").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "falling back to embedded digests", warnings[0].ContextMap()["fallback"])

	_, err = r.ExpectedDigest(context.Background(), "0.7.0", ".git/hooks/pre-push")
	assert.True(t, errs.IsKind(err, errs.KindNotFound), "version without table rows reports NotFound")

	failures := r.Failures()
	require.Len(t, failures, 2)
	assert.False(t, failures[0].Trust())
}

func TestExpectedDigest_TrustFailureLoggedAsError(t *testing.T) {
	logger, logs := observed(zapcore.WarnLevel)
	src := &fakeSource{err: errs.Trust("checking source", "bundle.json", errors.New("wrong repository"))}
	r, err := New(testTable(), WithProvenance(src), WithLogger(logger))
	require.NoError(t, err)

	d, err := r.ExpectedDigest(context.Background(), "0.6.10", ".git/hooks/pre-push")
	require.NoError(t, err)
	assert.Equal(t, SourceEmbedded, d.Source)

	entries := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, entries, 1)
	require.Len(t, r.Failures(), 1)
	assert.True(t, r.Failures()[0].Trust())
}

func TestExpectedDigest_NoVerifierConfigured(t *testing.T) {
	logger, logs := observed(zapcore.WarnLevel)
	cause := fmt.Errorf("%w: slsa-verifier not found on PATH", provenance.ErrNoVerifier)
	src := &fakeSource{err: errs.Trust("verifying provenance", "multiple.intoto.jsonl", cause)}
	r, err := New(testTable(), WithProvenance(src), WithLogger(logger))
	require.NoError(t, err)

	d, err := r.ExpectedDigest(context.Background(), "0.6.10", ".git/hooks/pre-push")
	require.NoError(t, err)
	assert.Equal(t, SourceEmbedded, d.Source)

	assert.Empty(t, logs.FilterMessage("provenance verification failed, statement rejected").All())
	entries := logs.FilterMessage("no provenance verifier configured, statement not checked").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Len(t, r.Failures(), 1)
	assert.True(t, r.Failures()[0].Trust(), "a missing verifier still counts as a trust failure")
}

func TestExpectedDigest_FailureMemoised(t *testing.T) {
	src := &fakeSource{err: errs.Network("downloading attestation", "0.6.10", errors.New("timeout"))}
	r, err := New(testTable(), WithProvenance(src))
	require.NoError(t, err)

	for _, p := range []string{".git/hooks/pre-push", ".security-controls/bin/pinactlite", ".git/hooks/pre-push"} {
		_, err := r.ExpectedDigest(context.Background(), "0.6.10", p)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, src.calls["0.6.10"])
	assert.Len(t, r.Failures(), 1)
}

func TestNew_InvalidCacheSize(t *testing.T) {
	_, err := New(testTable(), WithCacheSize(0))
	assert.Error(t, err)
}

func TestHasEmbedded(t *testing.T) {
	r, err := New(testTable())
	require.NoError(t, err)
	assert.True(t, r.HasEmbedded("v0.6.10"))
	assert.False(t, r.HasEmbedded("0.7.0"))
}
