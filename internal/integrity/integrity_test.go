package integrity

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/h4x0r/1-click-github-sec/internal/manifest"
	"github.com/h4x0r/1-click-github-sec/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	pinactlite = []byte("pinactlite binary 0.6.10")
	prePush    = []byte("#!/bin/sh\nexec .security-controls/bin/gitleakslite protect\n")
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, data, 0755))
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r, err := registry.New(registry.Table{
		"0.6.10": {
			".security-controls/bin/pinactlite":   HashBytes(pinactlite),
			".git/hooks/pre-push":                 HashBytes(prePush),
			".security-controls/bin/gitleakslite": "",
		},
	})
	require.NoError(t, err)
	return r
}

func files(paths ...string) []manifest.ManagedFile {
	out := make([]manifest.ManagedFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, manifest.ManagedFile{Path: p, Role: manifest.RoleForPath(p)})
	}
	return out
}

func TestCheck_IntactFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".security-controls/bin/pinactlite", pinactlite)

	report, err := NewChecker(root, newRegistry(t)).Check(context.Background(), "0.6.10",
		files(".security-controls/bin/pinactlite"))
	require.NoError(t, err)

	res, ok := report.Get(".security-controls/bin/pinactlite")
	require.True(t, ok)
	assert.Equal(t, Intact, res.Verdict)
	assert.Equal(t, registry.SourceEmbedded, res.Expected.Source)
	assert.True(t, report.AllIntact())
}

func TestCheck_Verdicts(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".security-controls/bin/pinactlite", pinactlite)
	writeFile(t, root, ".git/hooks/pre-push", []byte("#!/bin/sh\n# my local tweak\n"))
	writeFile(t, root, ".security-controls/bin/gitleakslite", []byte("gitleakslite"))
	writeFile(t, root, ".github/workflows/pinning-validation.yml", []byte("on: push\n"))

	report, err := NewChecker(root, newRegistry(t)).Check(context.Background(), "v0.6.10", files(
		".security-controls/bin/pinactlite",
		".git/hooks/pre-push",
		".security-controls/bin/gitleakslite",
		".github/workflows/pinning-validation.yml",
		".security-controls/bin/absent",
	))
	require.NoError(t, err)

	want := map[string]Verdict{
		".security-controls/bin/pinactlite":        Intact,
		".git/hooks/pre-push":                      Modified,
		".security-controls/bin/gitleakslite":      Unknown,
		".github/workflows/pinning-validation.yml": Unknown,
		".security-controls/bin/absent":            Missing,
	}
	for path, verdict := range want {
		res, ok := report.Get(path)
		require.True(t, ok, path)
		assert.Equal(t, verdict, res.Verdict, path)
	}

	assert.False(t, report.AllIntact())
	assert.Len(t, report.Discrepancies(), 4)
	assert.Equal(t, map[Verdict]int{Intact: 1, Modified: 1, Unknown: 2, Missing: 1}, report.Counts())

	for i := 1; i < len(report.Results); i++ {
		assert.Less(t, report.Results[i-1].Path, report.Results[i].Path)
	}
}

func TestCheck_Idempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".security-controls/bin/pinactlite", pinactlite)
	writeFile(t, root, ".git/hooks/pre-push", []byte("edited"))
	checker := NewChecker(root, newRegistry(t))
	list := files(".security-controls/bin/pinactlite", ".git/hooks/pre-push", ".security-controls/bin/absent")

	first, err := checker.Check(context.Background(), "0.6.10", list)
	require.NoError(t, err)
	second, err := checker.Check(context.Background(), "0.6.10", list)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCheck_UnrecordedNeverIntact(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/hooks/pre-push", prePush)

	for _, ver := range []string{"0.5.0", "0.7.0", ""} {
		report, err := NewChecker(root, newRegistry(t)).Check(context.Background(), ver, files(".git/hooks/pre-push"))
		require.NoError(t, err)
		assert.Equal(t, Unknown, report.Results[0].Verdict, "version %q", ver)
	}
}

func TestCheck_DoesNotWrite(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".git/hooks/pre-push", []byte("edited"))
	p := filepath.Join(root, ".git/hooks/pre-push")
	before, err := os.Stat(p)
	require.NoError(t, err)

	_, err = NewChecker(root, newRegistry(t)).Check(context.Background(), "0.6.10", files(".git/hooks/pre-push"))
	require.NoError(t, err)

	after, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCheck_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChecker(t.TempDir(), newRegistry(t)).Check(ctx, "0.6.10", files("a"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCheckContent(t *testing.T) {
	checker := NewChecker(t.TempDir(), newRegistry(t))

	res, err := checker.CheckContent(context.Background(), "0.6.10", ".git/hooks/pre-push", prePush)
	require.NoError(t, err)
	assert.Equal(t, Intact, res.Verdict)
	assert.Equal(t, manifest.RoleHook, res.Role)

	res, err = checker.CheckContent(context.Background(), "0.6.10", ".git/hooks/pre-push", []byte("tampered"))
	require.NoError(t, err)
	assert.Equal(t, Modified, res.Verdict)
}

func TestHashFile_Directory(t *testing.T) {
	_, err := HashFile(t.TempDir())
	assert.Error(t, err)
}

func TestReport_Render(t *testing.T) {
	color.NoColor = true
	report := &Report{
		Version: "0.6.10",
		Results: []Result{
			{Path: ".git/hooks/pre-push", Verdict: Modified, Expected: registry.VersionedDigest{Source: registry.SourceEmbedded}},
			{Path: ".security-controls/bin/pinactlite", Verdict: Intact, Expected: registry.VersionedDigest{Source: registry.SourceProvenance}},
		},
	}
	var buf bytes.Buffer
	report.Render(&buf)

	out := buf.String()
	assert.Contains(t, out, "Installed version: 0.6.10")
	assert.Contains(t, out, "Modified")
	assert.Contains(t, out, "provenance-verified")
	assert.Contains(t, out, "1 intact, 1 modified, 0 missing, 0 unknown")
}
