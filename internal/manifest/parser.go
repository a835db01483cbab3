package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/h4x0r/1-click-github-sec/internal/branding"
	"github.com/h4x0r/1-click-github-sec/internal/platform"
	"go.yaml.in/yaml/v3"
)

const (
	fileName      = "manifest.yaml"
	schemaVersion = 1
)

// FilePath returns the manifest location under the project root.
func FilePath(root string) string {
	return filepath.Join(root, branding.ControlsDir(), fileName)
}

// Load returns the managed files for the project at root. A missing
// manifest yields DefaultFiles.
func Load(root string) ([]ManagedFile, error) {
	p := FilePath(root)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return DefaultFiles(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", p, err)
	}
	return Parse(data, p)
}

// Parse validates and decodes manifest bytes. name is used in errors.
func Parse(data []byte, name string) ([]ManagedFile, error) {
	result, err := Validate(data)
	if err != nil {
		return nil, fmt.Errorf("validating manifest %s: %w", name, err)
	}
	if !result.Valid {
		return nil, fmt.Errorf("manifest %s is invalid: %s", name, result.Summary())
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", name, err)
	}

	seen := make(map[string]bool)
	files := make([]ManagedFile, 0, len(m.Files))
	for _, f := range m.Files {
		clean, err := CleanPath(f.Path)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", name, err)
		}
		if seen[clean] {
			continue
		}
		seen[clean] = true
		files = append(files, ManagedFile{Path: clean, Role: f.Role})
	}
	return files, nil
}

// Save writes files as the project manifest, sorted by path.
func Save(root string, files []ManagedFile) error {
	sorted := append([]ManagedFile(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	data, err := yaml.Marshal(&Manifest{SchemaVersion: schemaVersion, Files: sorted})
	if err != nil {
		return fmt.Errorf("marshaling manifest: %w", err)
	}
	return platform.WriteFileAtomic(FilePath(root), data, 0644)
}

// CleanPath normalises a managed path to slash form and rejects anything
// that could escape the project root.
func CleanPath(p string) (string, error) {
	p = filepath.ToSlash(strings.TrimSpace(p))
	if p == "" {
		return "", fmt.Errorf("empty managed path")
	}
	if strings.HasPrefix(p, "/") || filepath.IsAbs(p) || filepath.VolumeName(p) != "" {
		return "", fmt.Errorf("managed path %q must be relative to the project root", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("managed path %q escapes the project root", p)
	}
	return clean, nil
}

// Merge returns base plus every file in extra whose path is not in base,
// and whether anything was added.
func Merge(base, extra []ManagedFile) ([]ManagedFile, bool) {
	seen := make(map[string]bool, len(base))
	for _, f := range base {
		seen[f.Path] = true
	}
	out := append([]ManagedFile(nil), base...)
	added := false
	for _, f := range extra {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		out = append(out, f)
		added = true
	}
	return out, added
}
