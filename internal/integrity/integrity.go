// Package integrity classifies installed files against their expected
// digests. It only reads: nothing under the project root is modified.
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/manifest"
	"github.com/h4x0r/1-click-github-sec/internal/registry"
)

// Verdict is the classification of one file.
type Verdict string

const (
	Intact   Verdict = "Intact"
	Modified Verdict = "Modified"
	Missing  Verdict = "Missing"
	Unknown  Verdict = "Unknown"
)

// DigestLookup resolves expected digests. *registry.Registry implements it.
type DigestLookup interface {
	ExpectedDigest(ctx context.Context, version, path string) (registry.VersionedDigest, error)
}

// Result is the verdict for one managed file.
type Result struct {
	Path     string
	Role     manifest.Role
	Verdict  Verdict
	Actual   string
	Expected registry.VersionedDigest
}

// Checker hashes files under a project root.
type Checker struct {
	root   string
	lookup DigestLookup
}

// NewChecker returns a checker for files under root.
func NewChecker(root string, lookup DigestLookup) *Checker {
	return &Checker{root: root, lookup: lookup}
}

// Check classifies every file. An empty version means the installed
// version is unknown, and every present file is reported Unknown.
func (c *Checker) Check(ctx context.Context, version string, files []manifest.ManagedFile) (*Report, error) {
	report := &Report{Version: version, Results: make([]Result, 0, len(files))}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := c.checkOne(ctx, version, f)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, res)
	}
	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].Path < report.Results[j].Path
	})
	return report, nil
}

func (c *Checker) checkOne(ctx context.Context, version string, f manifest.ManagedFile) (Result, error) {
	res := Result{Path: f.Path, Role: f.Role}
	actual, err := HashFile(filepath.Join(c.root, filepath.FromSlash(f.Path)))
	if errors.Is(err, fs.ErrNotExist) {
		res.Verdict = Missing
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("hashing %s: %w", f.Path, err)
	}
	res.Actual = actual
	return c.classify(ctx, version, res)
}

// CheckContent classifies in-memory content as if it were installed at path.
func (c *Checker) CheckContent(ctx context.Context, version, path string, data []byte) (Result, error) {
	return c.classify(ctx, version, Result{
		Path:   path,
		Role:   manifest.RoleForPath(path),
		Actual: HashBytes(data),
	})
}

func (c *Checker) classify(ctx context.Context, version string, res Result) (Result, error) {
	if version == "" {
		res.Verdict = Unknown
		return res, nil
	}
	expected, err := c.lookup.ExpectedDigest(ctx, version, res.Path)
	if errs.IsKind(err, errs.KindNotFound) {
		res.Verdict = Unknown
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("looking up %s: %w", res.Path, err)
	}
	res.Expected = expected
	if expected.Digest == res.Actual {
		res.Verdict = Intact
	} else {
		res.Verdict = Modified
	}
	return res, nil
}

// HashFile streams the file through sha256.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex sha256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
