package resolve

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/integrity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMerger struct {
	available bool
	result    []byte
	err       error
	calls     int
}

func (f *fakeMerger) Available() bool  { return f.available }
func (f *fakeMerger) Describe() string { return "meld" }
func (f *fakeMerger) Merge(context.Context, string, []byte, []byte, []byte) ([]byte, error) {
	f.calls++
	return f.result, f.err
}

func scripted(input string) (*TerminalPrompter, *bytes.Buffer) {
	color.NoColor = true
	var out bytes.Buffer
	return NewTerminalPrompter(strings.NewReader(input), &out), &out
}

func hook(verdict integrity.Verdict) Candidate {
	return Candidate{
		Path:     ".git/hooks/pre-push",
		Verdict:  verdict,
		Base:     []byte("#!/bin/sh\nexec gitleakslite\n"),
		Local:    []byte("#!/bin/sh\n# local tweak\nexec gitleakslite\n"),
		Incoming: []byte("#!/bin/sh\nexec gitleakslite protect\n"),
	}
}

func TestResolve_Choices(t *testing.T) {
	tests := []struct {
		input string
		want  Decision
	}{
		{"1\n", Keep},
		{"2\n", Replace},
		{"3\n", BackupThenReplace},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			p, out := scripted(tt.input)
			got, err := New(p).Resolve(context.Background(), hook(integrity.Modified))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Decision)
			assert.Contains(t, out.String(), "-# local tweak", "diff is shown before asking")
			assert.Contains(t, out.String(), "Back up my version, then replace")
		})
	}
}

func TestResolve_MergeSucceeds(t *testing.T) {
	m := &fakeMerger{available: true, result: []byte("merged\n")}
	p, out := scripted("4\n")

	got, err := New(p, WithMerger(m)).Resolve(context.Background(), hook(integrity.Modified))
	require.NoError(t, err)
	assert.Equal(t, Merge, got.Decision)
	assert.Equal(t, "merged\n", string(got.Merged))
	assert.Contains(t, out.String(), "Merge with meld")
}

func TestResolve_MergeFailureKeepsLocal(t *testing.T) {
	m := &fakeMerger{available: true, err: errors.New("merge result still contains conflict markers")}
	p, out := scripted("4\n")

	got, err := New(p, WithMerger(m)).Resolve(context.Background(), hook(integrity.Unknown))
	require.NoError(t, err)
	assert.Equal(t, Keep, got.Decision)
	assert.Nil(t, got.Merged)
	assert.Contains(t, out.String(), "left unchanged")
}

func TestResolve_MergeUnavailable(t *testing.T) {
	m := &fakeMerger{available: false}
	p, out := scripted("4\n1\n")

	got, err := New(p, WithMerger(m)).Resolve(context.Background(), hook(integrity.Modified))
	require.NoError(t, err)
	assert.Equal(t, Keep, got.Decision, "option 4 is not offered, second answer is used")
	assert.Contains(t, out.String(), "Three-way merge unavailable")
	assert.Zero(t, m.calls)
}

func TestResolve_NoQuestionWhenNotNeeded(t *testing.T) {
	p, out := scripted("")
	r := New(p)

	for _, c := range []Candidate{
		{Path: "a", Verdict: integrity.Missing, Incoming: []byte("x")},
		{Path: "b", Verdict: integrity.Intact, Local: []byte("x"), Incoming: []byte("y")},
		{Path: "c", Verdict: integrity.Unknown, Local: []byte("same"), Incoming: []byte("same")},
	} {
		got, err := r.Resolve(context.Background(), c)
		require.NoError(t, err)
		assert.Equal(t, Replace, got.Decision, c.Path)
	}
	assert.Empty(t, out.String())
}

func TestResolve_Force(t *testing.T) {
	p, out := scripted("")
	got, err := New(p, WithForce(true)).Resolve(context.Background(), hook(integrity.Modified))
	require.NoError(t, err)
	assert.Equal(t, BackupThenReplace, got.Decision)
	assert.Empty(t, out.String())
}

func TestResolveAll_Policies(t *testing.T) {
	candidates := func() []Candidate {
		other := hook(integrity.Unknown)
		other.Path = ".github/workflows/pinning-validation.yml"
		return []Candidate{
			hook(integrity.Modified),
			other,
			{Path: ".security-controls/bin/pinactlite", Verdict: integrity.Intact, Local: []byte("a"), Incoming: []byte("b")},
		}
	}

	t.Run("back up all", func(t *testing.T) {
		p, out := scripted("2\n")
		got, err := New(p).ResolveAll(context.Background(), candidates())
		require.NoError(t, err)
		assert.Equal(t, []Decision{BackupThenReplace, BackupThenReplace, Replace}, decisions(got))
		assert.Contains(t, out.String(), "2 files differ")
	})

	t.Run("keep all", func(t *testing.T) {
		p, _ := scripted("3\n")
		got, err := New(p).ResolveAll(context.Background(), candidates())
		require.NoError(t, err)
		assert.Equal(t, []Decision{Keep, Keep, Replace}, decisions(got))
	})

	t.Run("review each", func(t *testing.T) {
		p, _ := scripted("1\n1\n3\n")
		got, err := New(p).ResolveAll(context.Background(), candidates())
		require.NoError(t, err)
		assert.Equal(t, []Decision{Keep, BackupThenReplace, Replace}, decisions(got))
	})

	t.Run("cancel", func(t *testing.T) {
		p, _ := scripted("4\n")
		_, err := New(p).ResolveAll(context.Background(), candidates())
		assert.True(t, errs.IsKind(err, errs.KindCancelled))
	})

	t.Run("force", func(t *testing.T) {
		p, out := scripted("")
		got, err := New(p, WithForce(true)).ResolveAll(context.Background(), candidates())
		require.NoError(t, err)
		assert.Equal(t, []Decision{BackupThenReplace, BackupThenReplace, Replace}, decisions(got))
		assert.Empty(t, out.String())
	})
}

func TestResolveAll_SingleFileSkipsPolicy(t *testing.T) {
	p, out := scripted("3\n")
	got, err := New(p).ResolveAll(context.Background(), []Candidate{hook(integrity.Modified)})
	require.NoError(t, err)
	assert.Equal(t, []Decision{BackupThenReplace}, decisions(got))
	assert.NotContains(t, out.String(), "How should these files be handled?")
}

func TestResolve_BinaryHidesMerge(t *testing.T) {
	m := &fakeMerger{available: true, result: []byte("merged\n")}
	p, out := scripted("4\n2\n")
	c := hook(integrity.Modified)
	c.Local = []byte("ELF\x00\x01local")
	c.Incoming = []byte("ELF\x00\x02incoming")

	got, err := New(p, WithMerger(m)).Resolve(context.Background(), c)
	require.NoError(t, err)
	assert.Equal(t, Replace, got.Decision, "option 4 is not offered, second answer is used")
	assert.NotContains(t, out.String(), "Merge with")
	assert.Contains(t, out.String(), "not offered for binary content")
	assert.Zero(t, m.calls)
}

func TestResolveAll_InputClosed(t *testing.T) {
	p, _ := scripted("")
	_, err := New(p).ResolveAll(context.Background(), []Candidate{hook(integrity.Modified)})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindCancelled), "got %v", err)
	assert.Equal(t, "nothing was changed; re-run the upgrade when ready", errs.HintOf(err))
}

func TestDecision(t *testing.T) {
	assert.True(t, BackupThenReplace.NeedsBackup())
	assert.True(t, Merge.NeedsBackup())
	assert.False(t, Replace.NeedsBackup())
	assert.False(t, Keep.Writes())
	assert.True(t, Replace.Writes())
}

func decisions(outcomes []Outcome) []Decision {
	out := make([]Decision, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Decision
	}
	return out
}
