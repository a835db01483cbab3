package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/platform"
	"go.uber.org/zap"
)

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// RestoreReport lists what a restore did.
type RestoreReport struct {
	Batch    string
	Restored []string
	// Skipped holds one errs.KindRestoreTargetMissing error per file whose
	// original location no longer exists.
	Skipped []error
}

// Restore copies every snapshot in b back over its original after the user
// confirms. Files whose original or parent directory is gone are skipped
// and reported; the rest of the batch still proceeds.
func (m *Manager) Restore(b Batch, confirm Confirmer) (*RestoreReport, error) {
	ok, err := confirm.Confirm(fmt.Sprintf("Restore %d file(s) from backup %s, overwriting the current versions?", len(b.Records), b.ID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errs.Cancelled("restoring backup " + b.ID)
	}

	report := &RestoreReport{Batch: b.ID}
	for _, rec := range b.Records {
		if err := m.restoreOne(rec); err != nil {
			if !errs.IsKind(err, errs.KindRestoreTargetMissing) {
				return report, err
			}
			m.logger.Warn("skipping restore", zap.String("path", rec.Original), zap.Error(err))
			report.Skipped = append(report.Skipped, err)
			continue
		}
		report.Restored = append(report.Restored, rec.Original)
	}
	return report, nil
}

func (m *Manager) restoreOne(rec Record) error {
	target := filepath.Join(m.root, filepath.FromSlash(rec.Original))
	if _, err := os.Stat(filepath.Dir(target)); err != nil {
		return errs.RestoreTargetMissing(rec.Original, fmt.Errorf("parent directory: %w", err)).
			WithHint("the snapshot is still at %s", rec.Snapshot)
	}
	if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
		return errs.RestoreTargetMissing(rec.Original, err).
			WithHint("copy %s manually if the file is still needed", rec.Snapshot)
	}

	data, err := os.ReadFile(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("reading snapshot %s: %w", rec.Snapshot, err)
	}
	mode := platform.ModeOf(rec.Snapshot, 0644)
	if err := platform.WriteFileAtomic(target, data, mode); err != nil {
		return fmt.Errorf("restoring %s: %w", rec.Original, err)
	}
	m.logger.Debug("restored", zap.String("path", rec.Original), zap.String("snapshot", rec.Snapshot))
	return nil
}
