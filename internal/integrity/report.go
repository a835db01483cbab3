package integrity

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
)

// Report holds the verdicts of one check, ordered by path.
type Report struct {
	Version string
	Results []Result
}

// Get returns the result for path.
func (r *Report) Get(path string) (Result, bool) {
	for _, res := range r.Results {
		if res.Path == path {
			return res, true
		}
	}
	return Result{}, false
}

// AllIntact reports whether every file verified.
func (r *Report) AllIntact() bool {
	for _, res := range r.Results {
		if res.Verdict != Intact {
			return false
		}
	}
	return true
}

// Discrepancies returns every result that is not Intact.
func (r *Report) Discrepancies() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Verdict != Intact {
			out = append(out, res)
		}
	}
	return out
}

// Counts tallies results per verdict.
func (r *Report) Counts() map[Verdict]int {
	counts := make(map[Verdict]int, 4)
	for _, res := range r.Results {
		counts[res.Verdict]++
	}
	return counts
}

var verdictColor = map[Verdict]*color.Color{
	Intact:   color.New(color.FgGreen),
	Modified: color.New(color.FgYellow, color.Bold),
	Missing:  color.New(color.FgRed, color.Bold),
	Unknown:  color.New(color.FgCyan),
}

// Render writes the verdict table and a one-line summary.
func (r *Report) Render(w io.Writer) {
	version := r.Version
	if version == "" {
		version = "unknown"
	}
	fmt.Fprintf(w, "Installed version: %s\n\n", version)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tFILE\tSOURCE")
	for _, res := range r.Results {
		source := "-"
		if res.Expected.Source != "" {
			source = string(res.Expected.Source)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", verdictColor[res.Verdict].Sprint(res.Verdict), res.Path, source)
	}
	tw.Flush()

	c := r.Counts()
	fmt.Fprintf(w, "\n%d intact, %d modified, %d missing, %d unknown\n",
		c[Intact], c[Modified], c[Missing], c[Unknown])
}
