package upgrade

import (
	"context"
	"errors"
	"fmt"

	"github.com/h4x0r/1-click-github-sec/internal/backup"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"go.uber.org/zap"
)

// Batches lists the backup batches of the project, newest first.
func (o *Orchestrator) Batches() ([]backup.Batch, error) {
	return o.backups.Batches()
}

// Rollback restores a backup batch. With an empty id the user picks one
// from the list.
func (o *Orchestrator) Rollback(ctx context.Context, id string) (*backup.RestoreReport, error) {
	lock, err := acquire(o.root)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	batch, err := o.pickBatch(id)
	if err != nil {
		return nil, err
	}
	o.logger.Info("rolling back", zap.String("batch", batch.ID), zap.Int("files", len(batch.Records)))

	var confirm backup.Confirmer = o.prompter
	if o.force {
		confirm = yes{}
	}
	report, err := o.backups.Restore(batch, confirm)
	if err != nil {
		return report, err
	}
	for _, path := range report.Restored {
		fmt.Fprintf(o.out, "restored %s\n", path)
	}
	for _, skipped := range report.Skipped {
		fmt.Fprintf(o.out, "skipped %v\n", skipped)
		if hint := errs.HintOf(skipped); hint != "" {
			fmt.Fprintf(o.out, "  %s\n", hint)
		}
	}
	return report, nil
}

func (o *Orchestrator) pickBatch(id string) (backup.Batch, error) {
	if id != "" {
		return o.backups.Find(id)
	}
	batches, err := o.backups.Batches()
	if err != nil {
		return backup.Batch{}, err
	}
	if len(batches) == 0 {
		return backup.Batch{}, errs.NotFound("listing backups", backup.Dir(o.root), errors.New("no backups found"))
	}
	if len(batches) == 1 || o.force {
		return batches[0], nil
	}

	options := make([]string, len(batches))
	for i, b := range batches {
		options[i] = fmt.Sprintf("%s (%d file(s))", b.ID, len(b.Records))
	}
	idx, err := o.prompter.Choose("Select a backup to restore", options)
	if err != nil {
		return backup.Batch{}, err
	}
	return batches[idx], nil
}

type yes struct{}

func (yes) Confirm(string) (bool, error) { return true, nil }
