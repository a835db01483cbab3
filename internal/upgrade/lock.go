package upgrade

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/h4x0r/1-click-github-sec/internal/branding"
)

// LockPath returns the lock file guarding mutations of a project.
func LockPath(root string) string {
	return filepath.Join(root, branding.ControlsDir(), ".upgrade.lock")
}

// acquire takes the project lock without waiting.
func acquire(root string) (*flock.Flock, error) {
	path := LockPath(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("another upgrade or rollback is running on %s (lock %s)", root, path)
	}
	return fl, nil
}
