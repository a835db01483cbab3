package resolve

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/h4x0r/1-click-github-sec/internal/diff"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalPrompter_Choose(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader("2\n"), &out)

	idx, err := p.Choose("Pick one:", []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
	assert.Contains(t, out.String(), "  2) beta")
}

func TestTerminalPrompter_ChooseRetries(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader("9\nabc\n1\n"), &out)

	idx, err := p.Choose("Pick one:", []string{"alpha", "beta"})
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 2, strings.Count(out.String(), "Invalid selection"))
}

func TestTerminalPrompter_ChooseGivesUp(t *testing.T) {
	p := NewTerminalPrompter(strings.NewReader("0\n0\n0\n1\n"), &bytes.Buffer{})
	_, err := p.Choose("Pick one:", []string{"alpha"})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindCancelled), "got %v", err)
	assert.NotEmpty(t, errs.HintOf(err))
}

func TestTerminalPrompter_Confirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"y", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := NewTerminalPrompter(strings.NewReader(tt.input), &bytes.Buffer{})
			got, err := p.Confirm("Proceed?")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTerminalPrompter_ConfirmEOF(t *testing.T) {
	p := NewTerminalPrompter(strings.NewReader(""), &bytes.Buffer{})
	_, err := p.Confirm("Proceed?")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindCancelled), "got %v", err)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTerminalPrompter_ShowDiffAndNotify(t *testing.T) {
	var out bytes.Buffer
	p := NewTerminalPrompter(strings.NewReader(""), &out)
	p.ShowDiff(diff.Compute("f", []byte("a\n"), []byte("b\n")))
	p.Notify("%d files", 2)
	assert.Contains(t, out.String(), "+b")
	assert.Contains(t, out.String(), "2 files\n")
}
