// Package backup snapshots managed files before they are overwritten and
// restores them on request.
//
// Snapshots live under <root>/.security-controls/backups and mirror the
// managed path with a timestamp suffix:
//
//	.security-controls/backups/.git/hooks/pre-push.backup-20261018-142233.517
//
// Every snapshot taken in one upgrade shares the same timestamp, which is
// how batches are rediscovered later. There is no separate index.
package backup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/h4x0r/1-click-github-sec/internal/branding"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/logging"
	"github.com/h4x0r/1-click-github-sec/internal/platform"
	"go.uber.org/zap"
)

const (
	suffix     = ".backup-"
	timeLayout = "20060102-150405.000"
)

// Record links one snapshot to the file it was taken from.
type Record struct {
	// Original is the managed path relative to the project root.
	Original string
	// Snapshot is the absolute path of the copy.
	Snapshot string
	Batch    string
}

// Batch is every snapshot taken by one upgrade.
type Batch struct {
	ID      string
	Time    time.Time
	Records []Record
}

// Manager owns the backup directory of one project.
type Manager struct {
	root   string
	dir    string
	now    func() time.Time
	logger *zap.Logger

	mu   sync.Mutex
	last time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for batch IDs.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager returns a manager for the project at root.
func NewManager(root string, opts ...Option) *Manager {
	m := &Manager{
		root: root,
		dir:  Dir(root),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	return m
}

// Dir returns the backup directory for a project root.
func Dir(root string) string {
	return filepath.Join(root, branding.ControlsDir(), "backups")
}

// NewBatchID returns a fresh batch timestamp, strictly later than any this
// manager issued before.
func (m *Manager) NewBatchID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.now().Truncate(time.Millisecond)
	if !t.After(m.last) {
		t = m.last.Add(time.Millisecond)
	}
	m.last = t
	return t.Format(timeLayout)
}

// SnapshotPath returns where the snapshot of rel for batch id is stored.
func (m *Manager) SnapshotPath(rel, id string) string {
	return filepath.Join(m.dir, filepath.FromSlash(rel)+suffix+id)
}

// Backup copies rel into batch id. The snapshot is synced to disk before
// Backup returns.
func (m *Manager) Backup(id, rel string) (Record, error) {
	src := filepath.Join(m.root, filepath.FromSlash(rel))
	data, err := os.ReadFile(src)
	if err != nil {
		return Record{}, errs.BackupIO(rel, err)
	}
	mode := platform.ModeOf(src, 0644)

	dst := m.SnapshotPath(rel, id)
	if _, err := os.Stat(dst); err == nil {
		return Record{}, errs.BackupIO(rel, fmt.Errorf("snapshot %s already exists", dst))
	}
	if err := platform.WriteFileAtomic(dst, data, mode); err != nil {
		return Record{}, errs.BackupIO(rel, err)
	}
	m.logger.Debug("backed up", zap.String("path", rel), zap.String("snapshot", dst))
	return Record{Original: rel, Snapshot: dst, Batch: id}, nil
}

// BackupAll snapshots every file into a new batch. Either all snapshots
// are written or none remain.
func (m *Manager) BackupAll(rels []string) (*Batch, error) {
	id := m.NewBatchID()
	t, _ := time.ParseInLocation(timeLayout, id, time.Local)
	batch := &Batch{ID: id, Time: t}

	for _, rel := range rels {
		rec, err := m.Backup(id, rel)
		if err != nil {
			m.discard(batch.Records)
			var e *errs.Error
			if errors.As(err, &e) {
				e.WithHint("no file was replaced; fix the problem and re-run the upgrade")
			}
			return nil, err
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func (m *Manager) discard(records []Record) {
	for _, rec := range records {
		if err := os.Remove(rec.Snapshot); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("removing partial snapshot", zap.String("snapshot", rec.Snapshot), zap.Error(err))
		}
	}
}

// Batches lists the batches found on disk, newest first. Files that do not
// follow the snapshot naming scheme are ignored.
func (m *Manager) Batches() ([]Batch, error) {
	byID := make(map[string]*Batch)
	err := filepath.WalkDir(m.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == m.dir {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(m.dir, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		i := strings.LastIndex(rel, suffix)
		if i <= 0 {
			return nil
		}
		id := rel[i+len(suffix):]
		t, err := time.ParseInLocation(timeLayout, id, time.Local)
		if err != nil {
			return nil
		}
		b, ok := byID[id]
		if !ok {
			b = &Batch{ID: id, Time: t}
			byID[id] = b
		}
		b.Records = append(b.Records, Record{Original: rel[:i], Snapshot: p, Batch: id})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning backups: %w", err)
	}

	out := make([]Batch, 0, len(byID))
	for _, b := range byID {
		sort.Slice(b.Records, func(i, j int) bool { return b.Records[i].Original < b.Records[j].Original })
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.After(out[j].Time) })
	return out, nil
}

// Find returns the batch with the given ID.
func (m *Manager) Find(id string) (Batch, error) {
	batches, err := m.Batches()
	if err != nil {
		return Batch{}, err
	}
	for _, b := range batches {
		if b.ID == id {
			return b, nil
		}
	}
	return Batch{}, errs.NotFound("finding backup batch", id, errors.New("no such batch")).
		WithHint("run rollback without arguments to list batches")
}
