package version

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/h4x0r/1-click-github-sec/internal/branding"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/platform"
)

const markerFile = ".version"

// Marker is the installed-version record written by the installer and
// rewritten after every successful upgrade. It is a key=value text file;
// keys other than version are preserved verbatim.
type Marker struct {
	Version string
	Fields  map[string]string
}

// MarkerPath returns the marker location under the project root.
func MarkerPath(root string) string {
	return filepath.Join(root, branding.ControlsDir(), markerFile)
}

// ReadMarker loads the marker. A missing marker or one without a version
// key is reported as errs.KindNotFound.
func ReadMarker(root string) (*Marker, error) {
	path := MarkerPath(root)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errs.NotFound("reading version marker", path, err).
			WithHint("confirm to proceed without a known version, or reinstall the controls")
	}
	if err != nil {
		return nil, fmt.Errorf("reading version marker %s: %w", path, err)
	}

	m := ParseMarker(data)
	if m.Version == "" {
		return nil, errs.NotFound("reading version marker", path, fmt.Errorf("no version= entry"))
	}
	return m, nil
}

// ParseMarker parses key=value lines. Blank lines and # comments are skipped.
func ParseMarker(data []byte) *Marker {
	m := &Marker{Fields: make(map[string]string)}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "version" {
			m.Version = Normalize(value)
			continue
		}
		m.Fields[key] = value
	}
	return m
}

// WriteMarker records version as installed, stamping upgraded_at.
func WriteMarker(root string, m *Marker) error {
	if m.Fields == nil {
		m.Fields = make(map[string]string)
	}
	m.Fields["upgraded_at"] = time.Now().UTC().Format(time.RFC3339)

	var b strings.Builder
	fmt.Fprintf(&b, "version=%s\n", Normalize(m.Version))
	keys := make([]string, 0, len(m.Fields))
	for k := range m.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, m.Fields[k])
	}

	return platform.WriteFileAtomic(MarkerPath(root), []byte(b.String()), 0644)
}
