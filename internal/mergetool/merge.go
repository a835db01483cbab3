package mergetool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Merge failures. Callers fall back to keeping the local file.
var (
	ErrUnavailable = errors.New("no merge tool available")
	ErrConflicts   = errors.New("merge result still contains conflict markers")
	ErrUnchanged   = errors.New("merge tool produced no result")
)

// Selection is the outcome of probing for a tool.
type Selection struct {
	Tool Tool
	// Reason explains why Tool is nil.
	Reason string
}

// Available reports whether a tool was found.
func (s Selection) Available() bool { return s.Tool != nil }

// Select returns the configured tool when preferred is set, otherwise the
// first installed tool in Preference order.
func Select(preferred string, lookPath func(string) (string, error)) Selection {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if preferred != "" {
		t, ok := Lookup(preferred)
		if !ok {
			return Selection{Reason: fmt.Sprintf("unknown merge tool %q (supported: %s)", preferred, strings.Join(Names(), ", "))}
		}
		if _, err := lookPath(t.Binary()); err != nil {
			return Selection{Reason: fmt.Sprintf("merge tool %q is not installed", preferred)}
		}
		return Selection{Tool: t}
	}
	for _, t := range Preference {
		if _, err := lookPath(t.Binary()); err == nil {
			return Selection{Tool: t}
		}
	}
	return Selection{Reason: "none of " + strings.Join(Names(), ", ") + " is installed"}
}

// Merger runs a selected tool on temporary copies outside the project.
type Merger struct {
	sel    Selection
	run    Runner
	tmpDir string
}

// Option configures a Merger.
type Option func(*Merger)

// WithRunner replaces the process runner.
func WithRunner(r Runner) Option {
	return func(m *Merger) { m.run = r }
}

// WithTempDir sets the parent for scratch directories.
func WithTempDir(dir string) Option {
	return func(m *Merger) { m.tmpDir = dir }
}

// NewMerger returns a merger for sel.
func NewMerger(sel Selection, opts ...Option) *Merger {
	m := &Merger{sel: sel, run: ExecRunner}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Selection returns the detected tool.
func (m *Merger) Selection() Selection { return m.sel }

// Available reports whether Merge can launch a tool.
func (m *Merger) Available() bool { return m.sel.Available() }

// Describe names the tool, or why there is none.
func (m *Merger) Describe() string {
	if m.sel.Available() {
		return m.sel.Tool.Name()
	}
	return m.sel.Reason
}

// Merge asks the tool to combine local and incoming changes relative to
// base and returns the merged bytes.
func (m *Merger) Merge(ctx context.Context, name string, base, local, incoming []byte) ([]byte, error) {
	if !m.sel.Available() {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, m.sel.Reason)
	}

	dir, err := os.MkdirTemp(m.tmpDir, "security-controls-merge-*")
	if err != nil {
		return nil, fmt.Errorf("creating merge directory: %w", err)
	}
	defer os.RemoveAll(dir)

	stem := filepath.Base(name)
	files := Files{
		Base:     filepath.Join(dir, stem+".BASE"),
		Local:    filepath.Join(dir, stem+".LOCAL"),
		Incoming: filepath.Join(dir, stem+".INCOMING"),
		Output:   filepath.Join(dir, stem+".MERGED"),
	}
	seed := map[string][]byte{files.Base: base, files.Local: local, files.Incoming: incoming}
	if !m.sel.Tool.WritesOutput() {
		seed[files.Output] = local
	}
	for p, data := range seed {
		if err := os.WriteFile(p, data, 0600); err != nil {
			return nil, fmt.Errorf("writing merge input: %w", err)
		}
	}

	if err := m.run(ctx, m.sel.Tool.Binary(), m.sel.Tool.Args(files)...); err != nil {
		return nil, fmt.Errorf("running %s: %w", m.sel.Tool.Name(), err)
	}

	merged, err := os.ReadFile(files.Output)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrUnchanged
	}
	if err != nil {
		return nil, fmt.Errorf("reading merge result: %w", err)
	}
	if HasConflictMarkers(merged) {
		return nil, ErrConflicts
	}
	if bytes.Equal(merged, local) && !bytes.Equal(local, incoming) {
		return nil, ErrUnchanged
	}
	return merged, nil
}

// HasConflictMarkers reports whether data contains unresolved merge markers.
func HasConflictMarkers(data []byte) bool {
	var open, sep, end bool
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "<<<<<<<"):
			open = true
		case strings.HasPrefix(line, "=======") && open:
			sep = true
		case strings.HasPrefix(line, ">>>>>>>") && sep:
			end = true
		}
	}
	return open && sep && end
}
