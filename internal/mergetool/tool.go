// Package mergetool launches an external three-way merge tool on temporary
// copies of a file. Each supported tool is one Tool value; Select walks a
// preference list and returns the first one installed.
package mergetool

import (
	"bytes"
	"context"
	"os"
	"os/exec"
)

// Files are the temporary paths handed to a tool.
type Files struct {
	Base     string
	Local    string
	Incoming string
	Output   string
}

// Runner executes a tool process attached to the user's terminal.
type Runner func(ctx context.Context, name string, args ...string) error

// Tool is one external merge program.
type Tool interface {
	Name() string
	Binary() string
	// Args returns the command line for merging f.
	Args(f Files) []string
	// WritesOutput is false for tools that edit Output in place, which is
	// seeded with the local content before launch.
	WritesOutput() bool
}

type command struct {
	name     string
	binary   string
	inPlace  bool
	argsFunc func(Files) []string
}

func (c command) Name() string          { return c.name }
func (c command) Binary() string        { return c.binary }
func (c command) Args(f Files) []string { return c.argsFunc(f) }
func (c command) WritesOutput() bool    { return !c.inPlace }

var (
	meld = command{name: "meld", binary: "meld", argsFunc: func(f Files) []string {
		return []string{"--output", f.Output, f.Local, f.Base, f.Incoming}
	}}
	kdiff3 = command{name: "kdiff3", binary: "kdiff3", argsFunc: func(f Files) []string {
		return []string{"--auto", "-o", f.Output, f.Base, f.Local, f.Incoming}
	}}
	vscode = command{name: "code", binary: "code", argsFunc: func(f Files) []string {
		return []string{"--wait", "--merge", f.Local, f.Incoming, f.Base, f.Output}
	}}
	vimdiff = command{name: "vimdiff", binary: "vimdiff", inPlace: true, argsFunc: func(f Files) []string {
		return []string{"-f", "-d", "-c", "4wincmd w | wincmd J", f.Local, f.Base, f.Incoming, f.Output}
	}}
	opendiff = command{name: "opendiff", binary: "opendiff", argsFunc: func(f Files) []string {
		return []string{f.Local, f.Incoming, "-ancestor", f.Base, "-merge", f.Output}
	}}
	gitMergeFile = command{name: "git", binary: "git", inPlace: true, argsFunc: func(f Files) []string {
		return []string{"merge-file", "-L", "local", "-L", "base", "-L", "incoming", f.Output, f.Base, f.Incoming}
	}}
)

// Preference is the search order used when no tool is configured.
var Preference = []Tool{meld, kdiff3, vscode, vimdiff, opendiff, gitMergeFile}

// Lookup returns the tool with the given name.
func Lookup(name string) (Tool, bool) {
	if name == "vscode" {
		name = "code"
	}
	for _, t := range Preference {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Names lists the supported tool names in search order.
func Names() []string {
	out := make([]string, 0, len(Preference))
	for _, t := range Preference {
		out = append(out, t.Name())
	}
	return out
}

// ExecRunner runs the tool with the process's standard streams.
func ExecRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return &RunError{Err: err, Stderr: string(msg)}
		}
		return err
	}
	return nil
}

// RunError carries a failed tool's stderr.
type RunError struct {
	Err    error
	Stderr string
}

func (e *RunError) Error() string { return e.Err.Error() + ": " + e.Stderr }
func (e *RunError) Unwrap() error { return e.Err }
