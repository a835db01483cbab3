package upgrade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/h4x0r/1-click-github-sec/internal/backup"
	"github.com/h4x0r/1-click-github-sec/internal/manifest"
	"github.com/h4x0r/1-click-github-sec/internal/platform"
	"github.com/h4x0r/1-click-github-sec/internal/resolve"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"go.uber.org/zap"
)

// apply backs up every file that needs it, then writes all replacements.
// No file is written unless every backup succeeded.
func (o *Orchestrator) apply(s *Session, log *zap.Logger) error {
	s.Phase = PhaseApply

	var toBackup []string
	for _, out := range s.Outcomes {
		if !out.Decision.NeedsBackup() {
			continue
		}
		if _, err := os.Stat(filepath.Join(o.root, filepath.FromSlash(out.Path))); err == nil {
			toBackup = append(toBackup, out.Path)
		}
	}
	if len(toBackup) > 0 {
		batch, err := o.backups.BackupAll(toBackup)
		if err != nil {
			return err
		}
		s.Batch = batch
		log.Info("backups written", zap.String("batch", batch.ID), zap.Int("files", len(batch.Records)))
		fmt.Fprintf(o.out, "Backed up %d file(s) to %s (batch %s)\n", len(batch.Records), o.backupDir(), batch.ID)
	}

	for _, out := range s.Outcomes {
		if !out.Decision.Writes() {
			log.Info("keeping local file", zap.String("path", out.Path))
			continue
		}
		artifact, ok := s.Incoming.Get(out.Path)
		if !ok {
			return fmt.Errorf("no incoming content for %s", out.Path)
		}
		content := artifact.Content
		if out.Decision == resolve.Merge {
			content = out.Merged
		}
		target := filepath.Join(o.root, filepath.FromSlash(out.Path))
		mode := artifact.Mode
		if mode == 0 {
			mode = platform.ModeOf(target, 0644)
		}
		if err := platform.WriteFileAtomic(target, content, mode); err != nil {
			return o.applyFailed(s, out.Path, err)
		}
		log.Debug("wrote file", zap.String("path", out.Path), zap.String("decision", string(out.Decision)))
	}

	marker := &version.Marker{Fields: make(map[string]string)}
	if prev, err := version.ReadMarker(o.root); err == nil {
		marker.Fields = prev.Fields
	}
	marker.Version = s.Target
	marker.Fields["session"] = s.ID
	if s.Installed != "" {
		marker.Fields["previous"] = s.Installed
	}
	if err := version.WriteMarker(o.root, marker); err != nil {
		return o.applyFailed(s, version.MarkerPath(o.root), err)
	}

	merged, grew := manifest.Merge(s.Files, s.Incoming.ManagedFiles())
	if grew {
		if err := manifest.Save(o.root, merged); err != nil {
			return fmt.Errorf("saving managed file list: %w", err)
		}
	}
	s.Files = merged
	return nil
}

func (o *Orchestrator) applyFailed(s *Session, path string, err error) error {
	if s.Batch == nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return fmt.Errorf("writing %s: %w (previous files can be restored with `rollback %s`)", path, err, s.Batch.ID)
}

func (o *Orchestrator) backupDir() string {
	dir := backup.Dir(o.root)
	if rel, err := filepath.Rel(o.root, dir); err == nil {
		return rel
	}
	return dir
}

// reverify checks the installed files against the new version. Files that
// are still not Intact are reported, flagged as expected when the user
// chose to keep or merge them.
func (o *Orchestrator) reverify(ctx context.Context, s *Session, log *zap.Logger) error {
	s.Phase = PhaseReVerify
	report, err := o.checker.Check(ctx, s.Target, s.Files)
	if err != nil {
		return fmt.Errorf("re-verifying: %w", err)
	}
	s.After = report

	for _, res := range report.Discrepancies() {
		a := Anomaly{Path: res.Path, Verdict: res.Verdict}
		if out, ok := s.Outcome(res.Path); ok && (out.Decision == resolve.Keep || out.Decision == resolve.Merge) {
			a.Expected = true
		}
		s.Anomalies = append(s.Anomalies, a)
		if !a.Expected {
			log.Warn("file not intact after upgrade", zap.String("path", res.Path), zap.String("verdict", string(res.Verdict)))
		}
	}
	return nil
}
