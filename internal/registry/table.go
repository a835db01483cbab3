package registry

import (
	_ "embed"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/h4x0r/1-click-github-sec/internal/manifest"
	"github.com/h4x0r/1-click-github-sec/internal/version"
	"go.yaml.in/yaml/v3"
)

//go:embed hashes.yaml
var embeddedTable []byte

// Table maps version to relative path to digest. An empty digest marks a
// pending entry.
type Table map[string]map[string]string

type tableFile struct {
	Versions map[string]map[string]string `yaml:"versions"`
}

// Embedded returns the digest table compiled into the binary.
func Embedded() (Table, error) {
	return ParseTable(embeddedTable)
}

// ParseTable decodes a digest table. "TBD", "pending" and empty values are
// kept as pending entries; anything else must be 64 hex characters.
func ParseTable(data []byte) (Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing digest table: %w", err)
	}

	t := make(Table, len(f.Versions))
	for ver, files := range f.Versions {
		if !version.Valid(ver) {
			return nil, fmt.Errorf("digest table: invalid version %q", ver)
		}
		entries := make(map[string]string, len(files))
		for p, digest := range files {
			clean, err := manifest.CleanPath(p)
			if err != nil {
				return nil, fmt.Errorf("digest table %s: %w", ver, err)
			}
			digest = strings.ToLower(strings.TrimSpace(digest))
			if isPending(digest) {
				entries[clean] = ""
				continue
			}
			if !isSHA256Hex(digest) {
				return nil, fmt.Errorf("digest table %s %s: malformed digest %q", ver, clean, digest)
			}
			entries[clean] = digest
		}
		t[version.Normalize(ver)] = entries
	}
	return t, nil
}

// Lookup returns the recorded digest. Pending entries report false.
func (t Table) Lookup(ver, path string) (string, bool) {
	digest := t[version.Normalize(ver)][path]
	return digest, digest != ""
}

// Has reports whether the table has any row for ver.
func (t Table) Has(ver string) bool {
	_, ok := t[version.Normalize(ver)]
	return ok
}

// Versions returns the table's versions in ascending semver order.
func (t Table) Versions() []string {
	out := make([]string, 0, len(t))
	for v := range t {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		c, err := version.Compare(out[i], out[j])
		if err != nil {
			return out[i] < out[j]
		}
		return c < 0
	})
	return out
}

func isPending(digest string) bool {
	switch digest {
	case "", "tbd", "pending":
		return true
	}
	return false
}

func isSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
