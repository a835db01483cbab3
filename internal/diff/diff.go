// Package diff renders the difference between an installed file and its
// incoming replacement.
package diff

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

const binarySniffLen = 8000

// Diff compares local content with incoming content.
type Diff struct {
	Path      string
	Binary    bool
	Identical bool
	Unified   string

	LocalSize, IncomingSize     int
	LocalDigest, IncomingDigest string
}

// Compute builds the diff for path. Binary content is summarised rather
// than diffed line by line.
func Compute(path string, local, incoming []byte) *Diff {
	d := &Diff{
		Path:           path,
		Identical:      bytes.Equal(local, incoming),
		LocalSize:      len(local),
		IncomingSize:   len(incoming),
		LocalDigest:    digest(local),
		IncomingDigest: digest(incoming),
	}
	if IsBinary(local) || IsBinary(incoming) {
		d.Binary = true
		return d
	}
	if d.Identical {
		return d
	}

	a, b := string(local), string(incoming)
	edits := myers.ComputeEdits(span.URIFromPath(path), a, b)
	d.Unified = fmt.Sprint(gotextdiff.ToUnified("local/"+path, "incoming/"+path, a, edits))
	return d
}

// IsBinary reports whether data looks like non-text content.
func IsBinary(data []byte) bool {
	sniff := data
	if len(sniff) > binarySniffLen {
		sniff = trimPartialRune(sniff[:binarySniffLen])
	}
	if bytes.IndexByte(sniff, 0) >= 0 {
		return true
	}
	return !utf8.Valid(sniff)
}

// trimPartialRune drops a multi-byte sequence cut short at the end of b.
func trimPartialRune(b []byte) []byte {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return b
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				return b[:len(b)-i]
			}
			return b
		}
	}
	return b
}

var (
	addColor  = color.New(color.FgGreen)
	delColor  = color.New(color.FgRed)
	hunkColor = color.New(color.FgCyan)
	headColor = color.New(color.Bold)
)

// Render writes the diff with added lines in green and removed lines in red.
func (d *Diff) Render(w io.Writer) {
	switch {
	case d.Identical:
		fmt.Fprintf(w, "%s: no differences\n", d.Path)
		return
	case d.Binary:
		fmt.Fprintf(w, "Binary file %s differs\n", d.Path)
		fmt.Fprintf(w, "  local:    %d bytes  sha256 %s\n", d.LocalSize, d.LocalDigest)
		fmt.Fprintf(w, "  incoming: %d bytes  sha256 %s\n", d.IncomingSize, d.IncomingDigest)
		return
	}

	for _, line := range strings.SplitAfter(d.Unified, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			headColor.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			hunkColor.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			addColor.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			delColor.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
	if !strings.HasSuffix(d.Unified, "\n") {
		fmt.Fprintln(w)
	}
}

// Stat returns "+N -M" line counts for a text diff.
func (d *Diff) Stat() string {
	if d.Binary {
		return "binary"
	}
	added, removed := 0, 0
	for _, line := range strings.Split(d.Unified, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added++
		case strings.HasPrefix(line, "-"):
			removed++
		}
	}
	return fmt.Sprintf("+%d -%d", added, removed)
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
