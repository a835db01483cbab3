package release

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/h4x0r/1-click-github-sec/internal/manifest"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"github.com/klauspost/compress/gzip"
)

const maxEntrySize = 64 << 20

// BundleName is the release asset holding every managed file of ver.
func BundleName(ver string) string {
	return "security-controls-" + version.Normalize(ver) + ".tar.gz"
}

// Artifact is one file of a release.
type Artifact struct {
	Path    string
	Content []byte
	Mode    os.FileMode
}

// ArtifactSet is the full content of one release.
type ArtifactSet struct {
	Version string
	Files   []Artifact
}

// Get returns the artifact installed at rel.
func (s *ArtifactSet) Get(rel string) (Artifact, bool) {
	if s == nil {
		return Artifact{}, false
	}
	for _, a := range s.Files {
		if a.Path == rel {
			return a, true
		}
	}
	return Artifact{}, false
}

// ManagedFiles lists the set as managed files.
func (s *ArtifactSet) ManagedFiles() []manifest.ManagedFile {
	out := make([]manifest.ManagedFile, 0, len(s.Files))
	for _, a := range s.Files {
		out = append(out, manifest.ManagedFile{Path: a.Path, Role: manifest.RoleForPath(a.Path)})
	}
	return out
}

// ExtractBundle reads a release tar.gz into memory. Entries may sit under a
// single "security-controls-<version>/" directory, which is stripped.
// Entries that would escape the project root are rejected.
func ExtractBundle(archivePath, ver string) (*ArtifactSet, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gz.Close()

	prefix := strings.TrimSuffix(BundleName(ver), ".tar.gz") + "/"
	set := &ArtifactSet{Version: version.Normalize(ver)}
	seen := make(map[string]bool)

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := strings.TrimPrefix(path.Clean(strings.TrimPrefix(hdr.Name, "./")), prefix)
		rel, err := manifest.CleanPath(name)
		if err != nil {
			return nil, fmt.Errorf("archive entry %q: %w", hdr.Name, err)
		}
		if seen[rel] {
			return nil, fmt.Errorf("archive entry %q appears twice", rel)
		}
		if hdr.Size > maxEntrySize {
			return nil, fmt.Errorf("archive entry %q is too large (%d bytes)", rel, hdr.Size)
		}
		data, err := io.ReadAll(io.LimitReader(tr, maxEntrySize))
		if err != nil {
			return nil, fmt.Errorf("extracting %s: %w", rel, err)
		}
		seen[rel] = true
		set.Files = append(set.Files, Artifact{Path: rel, Content: data, Mode: os.FileMode(hdr.Mode).Perm()})
	}

	if len(set.Files) == 0 {
		return nil, fmt.Errorf("archive %s contains no files", archivePath)
	}
	sort.Slice(set.Files, func(i, j int) bool { return set.Files[i].Path < set.Files[j].Path })
	return set, nil
}
