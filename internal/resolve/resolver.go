package resolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/h4x0r/1-click-github-sec/internal/diff"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/integrity"
	"github.com/h4x0r/1-click-github-sec/internal/logging"
	"go.uber.org/zap"
)

// Decision is what Apply does with one file.
type Decision string

const (
	Keep              Decision = "Keep"
	Replace           Decision = "Replace"
	BackupThenReplace Decision = "BackupThenReplace"
	Merge             Decision = "Merge"
)

// NeedsBackup reports whether Apply must snapshot the file first.
func (d Decision) NeedsBackup() bool {
	return d == BackupThenReplace || d == Merge
}

// Writes reports whether Apply overwrites the file.
func (d Decision) Writes() bool {
	return d != Keep
}

// Candidate is a file whose installed content needs a decision.
type Candidate struct {
	Path    string
	Verdict integrity.Verdict
	// Base is the content originally installed, or nil when unavailable.
	Base     []byte
	Local    []byte
	Incoming []byte
}

// NeedsResolution reports whether the user has to be consulted.
func (c Candidate) NeedsResolution() bool {
	if c.Verdict != integrity.Modified && c.Verdict != integrity.Unknown {
		return false
	}
	return !bytes.Equal(c.Local, c.Incoming)
}

// Outcome is the decision for one file. Merged holds the content to write
// when Decision is Merge.
type Outcome struct {
	Path     string
	Decision Decision
	Merged   []byte
	Note     string
}

// Merger combines three versions of a file. *mergetool.Merger implements it.
type Merger interface {
	Available() bool
	Describe() string
	Merge(ctx context.Context, name string, base, local, incoming []byte) ([]byte, error)
}

// Resolver drives per-file and batch decisions.
type Resolver struct {
	prompter Prompter
	merger   Merger
	logger   *zap.Logger
	force    bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMerger enables the Merge choice.
func WithMerger(m Merger) Option {
	return func(r *Resolver) { r.merger = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithForce skips every question and backs up all modified files before
// replacing them.
func WithForce(force bool) Option {
	return func(r *Resolver) { r.force = force }
}

// New returns a resolver that asks p.
func New(p Prompter, opts ...Option) *Resolver {
	r := &Resolver{prompter: p}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrNop(r.logger)
	return r
}

// Batch policies offered when several files need a decision.
var batchPolicies = []string{
	"Review each file",
	"Back up all and replace",
	"Keep all local versions",
	"Cancel upgrade",
}

// ResolveAll returns one outcome per candidate. Files that need no
// decision are replaced; the rest go through the batch policy.
func (r *Resolver) ResolveAll(ctx context.Context, candidates []Candidate) ([]Outcome, error) {
	outcomes := make([]Outcome, len(candidates))
	var pending []int
	for i, c := range candidates {
		if c.NeedsResolution() {
			pending = append(pending, i)
			continue
		}
		outcomes[i] = Outcome{Path: c.Path, Decision: Replace}
	}
	if len(pending) == 0 {
		return outcomes, nil
	}

	if r.force {
		for _, i := range pending {
			outcomes[i] = Outcome{Path: candidates[i].Path, Decision: BackupThenReplace, Note: "forced"}
		}
		return outcomes, nil
	}

	policy := 0
	if len(pending) > 1 {
		r.prompter.Notify("\n%d files differ from the installed release:", len(pending))
		for _, i := range pending {
			c := candidates[i]
			r.prompter.Notify("  %-9s %s (%s)", c.Verdict, c.Path, diff.Compute(c.Path, c.Local, c.Incoming).Stat())
		}
		var err error
		policy, err = r.prompter.Choose("How should these files be handled?", batchPolicies)
		if err != nil {
			return nil, err
		}
	}

	switch policy {
	case 0:
		for _, i := range pending {
			out, err := r.Resolve(ctx, candidates[i])
			if err != nil {
				return nil, err
			}
			outcomes[i] = out
		}
	case 1:
		for _, i := range pending {
			outcomes[i] = Outcome{Path: candidates[i].Path, Decision: BackupThenReplace}
		}
	case 2:
		for _, i := range pending {
			outcomes[i] = Outcome{Path: candidates[i].Path, Decision: Keep}
		}
	default:
		return nil, errs.Cancelled("resolving modified files").
			WithHint("nothing was changed; re-run the upgrade when ready")
	}
	return outcomes, nil
}

// Resolve shows the difference for one file and returns the user's choice.
func (r *Resolver) Resolve(ctx context.Context, c Candidate) (Outcome, error) {
	if !c.NeedsResolution() {
		return Outcome{Path: c.Path, Decision: Replace}, nil
	}
	if r.force {
		return Outcome{Path: c.Path, Decision: BackupThenReplace, Note: "forced"}, nil
	}

	r.prompter.Notify("\n%s is %s.", c.Path, c.Verdict)
	d := diff.Compute(c.Path, c.Local, c.Incoming)
	r.prompter.ShowDiff(d)

	choices := []Decision{Keep, Replace, BackupThenReplace}
	labels := []string{
		"Keep my version (skip this file)",
		"Replace with the new version (discard my changes)",
		"Back up my version, then replace",
	}
	switch {
	case r.merger == nil:
	case d.Binary:
		r.prompter.Notify("Three-way merge is not offered for binary content.")
	case r.merger.Available():
		choices = append(choices, Merge)
		labels = append(labels, "Merge with "+r.merger.Describe())
	default:
		r.prompter.Notify("Three-way merge unavailable: %s", r.merger.Describe())
	}

	idx, err := r.prompter.Choose("What should happen to "+c.Path+"?", labels)
	if err != nil {
		return Outcome{}, err
	}
	if choices[idx] != Merge {
		return Outcome{Path: c.Path, Decision: choices[idx]}, nil
	}
	return r.merge(ctx, c)
}

func (r *Resolver) merge(ctx context.Context, c Candidate) (Outcome, error) {
	merged, err := r.merger.Merge(ctx, c.Path, c.Base, c.Local, c.Incoming)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return Outcome{}, err
		}
		r.logger.Warn("merge failed, keeping local file", zap.String("path", c.Path), zap.Error(err))
		r.prompter.Notify("Merge did not complete (%v). %s was left unchanged.", err, c.Path)
		return Outcome{Path: c.Path, Decision: Keep, Note: fmt.Sprintf("merge failed: %v", err)}, nil
	}
	return Outcome{Path: c.Path, Decision: Merge, Merged: merged}, nil
}
