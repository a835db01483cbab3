package upgrade

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/h4x0r/1-click-github-sec/internal/backup"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/integrity"
	"github.com/h4x0r/1-click-github-sec/internal/logging"
	"github.com/h4x0r/1-click-github-sec/internal/manifest"
	"github.com/h4x0r/1-click-github-sec/internal/release"
	"github.com/h4x0r/1-click-github-sec/internal/resolve"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"go.uber.org/zap"
)

// ReleaseSource provides published release content.
type ReleaseSource interface {
	LatestVersion(ctx context.Context) (string, error)
	FetchRelease(ctx context.Context, version string) (*release.ArtifactSet, error)
}

// Orchestrator drives upgrade, check and rollback sessions for one project.
type Orchestrator struct {
	root     string
	checker  *integrity.Checker
	releases ReleaseSource
	prompter resolve.Prompter
	merger   resolve.Merger
	backups  *backup.Manager
	logger   *zap.Logger
	out      io.Writer
	force    bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMerger enables three-way merges during resolution.
func WithMerger(m resolve.Merger) Option {
	return func(o *Orchestrator) { o.merger = m }
}

// WithBackupManager replaces the default backup manager.
func WithBackupManager(m *backup.Manager) Option {
	return func(o *Orchestrator) { o.backups = m }
}

// WithOutput sets where reports are written.
func WithOutput(w io.Writer) Option {
	return func(o *Orchestrator) { o.out = w }
}

// WithForce skips confirmations. Backups are still taken.
func WithForce(force bool) Option {
	return func(o *Orchestrator) { o.force = force }
}

// New returns an orchestrator for the project at root.
func New(root string, lookup integrity.DigestLookup, releases ReleaseSource, prompter resolve.Prompter, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		root:     root,
		checker:  integrity.NewChecker(root, lookup),
		releases: releases,
		prompter: prompter,
		out:      io.Discard,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.OrNop(o.logger)
	if o.backups == nil {
		o.backups = backup.NewManager(root, backup.WithLogger(o.logger))
	}
	return o
}

// RunOptions select the upgrade target.
type RunOptions struct {
	// Target is the version to install; empty means the latest release.
	Target string
	// Reinstall applies the target even when it is already installed.
	Reinstall bool
}

// Check reports the integrity of the installed files without modifying
// anything.
func (o *Orchestrator) Check(ctx context.Context) (*Session, error) {
	s := newSession(o.root)
	log := o.logger.With(zap.String("session", s.ID))

	if err := o.detectVersion(s, log); err != nil && !errs.IsKind(err, errs.KindNotFound) {
		return s, err
	}
	if err := o.checkIntegrity(ctx, s); err != nil {
		return s, err
	}
	s.Phase = PhaseDone
	return s, nil
}

// Run performs a full upgrade session.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Session, error) {
	lock, err := acquire(o.root)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	s := newSession(o.root)
	log := o.logger.With(zap.String("session", s.ID))
	log.Info("upgrade session started", zap.String("root", o.root), zap.Bool("force", o.force))

	if err := o.detectVersion(s, log); err != nil {
		if !errs.IsKind(err, errs.KindNotFound) {
			return s, err
		}
		if err := o.confirmBlind(err); err != nil {
			return s, err
		}
	}
	if err := o.checkIntegrity(ctx, s); err != nil {
		return s, err
	}
	s.Before.Render(o.out)
	if err := o.selectTarget(ctx, s, opts); err != nil {
		return s, err
	}
	if s.UpToDate {
		fmt.Fprintf(o.out, "Already at %s; nothing to do.\n", version.Tag(s.Installed))
		s.Phase = PhaseDone
		return s, nil
	}
	if err := o.fetchAndVerify(ctx, s, log); err != nil {
		return s, err
	}
	candidates, err := o.candidates(ctx, s, log)
	if err != nil {
		return s, err
	}

	s.Phase = PhaseResolve
	resolver := resolve.New(o.prompter, resolve.WithMerger(o.merger), resolve.WithLogger(log), resolve.WithForce(o.force))
	if s.Outcomes, err = resolver.ResolveAll(ctx, candidates); err != nil {
		return s, err
	}

	if err := o.apply(s, log); err != nil {
		return s, err
	}
	if err := o.reverify(ctx, s, log); err != nil {
		return s, err
	}
	s.Phase = PhaseDone
	log.Info("upgrade session finished", zap.String("version", s.Target), zap.Int("anomalies", len(s.Anomalies)))
	return s, nil
}

func (o *Orchestrator) detectVersion(s *Session, log *zap.Logger) error {
	s.Phase = PhaseDetectVersion
	marker, err := version.ReadMarker(o.root)
	if err != nil {
		log.Warn("installed version unknown", zap.Error(err))
		return err
	}
	s.Installed = version.Normalize(marker.Version)
	return nil
}

func (o *Orchestrator) confirmBlind(cause error) error {
	if o.force {
		o.prompter.Notify("No version marker found; continuing without a baseline (forced).")
		return nil
	}
	o.prompter.Notify("No version marker found (%v).", cause)
	o.prompter.Notify("Every installed file will be treated as Unknown and offered for review.")
	ok, err := o.prompter.Confirm("Proceed without a known installed version?")
	if err != nil {
		return err
	}
	if !ok {
		return errs.Cancelled("upgrading without a version marker").
			WithHint("run `check` to inspect the installation first")
	}
	return nil
}

func (o *Orchestrator) checkIntegrity(ctx context.Context, s *Session) error {
	s.Phase = PhaseCheckIntegrity
	files, err := manifest.Load(o.root)
	if err != nil {
		return fmt.Errorf("loading managed file list: %w", err)
	}
	s.Files = files

	report, err := o.checker.Check(ctx, s.Installed, files)
	if err != nil {
		return fmt.Errorf("checking integrity: %w", err)
	}
	s.Before = report
	return nil
}

func (o *Orchestrator) selectTarget(ctx context.Context, s *Session, opts RunOptions) error {
	target := opts.Target
	if target == "" {
		latest, err := o.releases.LatestVersion(ctx)
		if err != nil {
			return fmt.Errorf("finding latest release: %w", err)
		}
		target = latest
	}
	if !version.Valid(target) {
		return fmt.Errorf("invalid target version %q", target)
	}
	s.Target = version.Normalize(target)

	if s.Blind() || opts.Reinstall {
		return nil
	}
	cmp, err := version.Compare(s.Installed, s.Target)
	if err != nil {
		return err
	}
	switch {
	case cmp == 0:
		s.UpToDate = true
	case cmp > 0 && opts.Target == "":
		s.UpToDate = true
	}
	return nil
}

// fetchAndVerify downloads the target release and requires every file in it
// to match the target version's trusted digests before anything is written.
func (o *Orchestrator) fetchAndVerify(ctx context.Context, s *Session, log *zap.Logger) error {
	s.Phase = PhaseFetch
	set, err := o.releases.FetchRelease(ctx, s.Target)
	if err != nil {
		return fmt.Errorf("fetching release %s: %w", version.Tag(s.Target), err)
	}
	for _, a := range set.Files {
		res, err := o.checker.CheckContent(ctx, s.Target, a.Path, a.Content)
		if err != nil {
			return err
		}
		if res.Verdict != integrity.Intact {
			return errs.Trust("verifying release "+version.Tag(s.Target), a.Path,
				fmt.Errorf("downloaded content is %s against the trusted digests", res.Verdict)).
				WithHint("nothing was changed; re-run later or report the release")
		}
	}
	log.Debug("release verified", zap.String("version", s.Target), zap.Int("files", len(set.Files)))
	s.Incoming = set
	return nil
}

// candidates pairs each incoming file with its installed state.
func (o *Orchestrator) candidates(ctx context.Context, s *Session, log *zap.Logger) ([]resolve.Candidate, error) {
	out := make([]resolve.Candidate, 0, len(s.Incoming.Files))
	needBase := false
	for _, a := range s.Incoming.Files {
		// Files new to the manifest that already exist on disk were not
		// placed by us, so they are Unknown.
		c := resolve.Candidate{Path: a.Path, Verdict: integrity.Unknown, Incoming: a.Content}
		if res, ok := s.Before.Get(a.Path); ok {
			c.Verdict = res.Verdict
		}
		if c.Verdict != integrity.Missing {
			local, err := os.ReadFile(filepath.Join(o.root, filepath.FromSlash(a.Path)))
			switch {
			case errors.Is(err, os.ErrNotExist):
				c.Verdict = integrity.Missing
			case err != nil:
				return nil, fmt.Errorf("reading %s: %w", a.Path, err)
			default:
				c.Local = local
			}
		}
		if c.Verdict == integrity.Missing {
			o.prompter.Notify("warning: %s is missing and will be recreated from %s", a.Path, version.Tag(s.Target))
		}
		needBase = needBase || c.NeedsResolution()
		out = append(out, c)
	}

	if needBase && o.merger != nil && o.merger.Available() && !o.force {
		base := o.mergeBase(ctx, s, log)
		for i := range out {
			if a, ok := base.Get(out[i].Path); ok {
				out[i].Base = a.Content
			}
		}
	}
	return out, nil
}

// mergeBase fetches the installed release for use as the common ancestor.
// Files that do not verify against the installed version are left out.
func (o *Orchestrator) mergeBase(ctx context.Context, s *Session, log *zap.Logger) *release.ArtifactSet {
	if s.Blind() {
		return nil
	}
	set, err := o.releases.FetchRelease(ctx, s.Installed)
	if err != nil {
		log.Warn("merge base unavailable, merging against an empty base", zap.String("version", s.Installed), zap.Error(err))
		return nil
	}
	verified := &release.ArtifactSet{Version: set.Version}
	for _, a := range set.Files {
		res, err := o.checker.CheckContent(ctx, s.Installed, a.Path, a.Content)
		if err != nil || res.Verdict != integrity.Intact {
			log.Warn("dropping unverified merge base", zap.String("path", a.Path))
			continue
		}
		verified.Files = append(verified.Files, a)
	}
	return verified
}
