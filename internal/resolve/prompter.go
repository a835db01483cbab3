package resolve

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/h4x0r/1-click-github-sec/internal/diff"
	"github.com/h4x0r/1-click-github-sec/internal/errs"
)

// Prompter is the interaction port used during resolution and rollback.
type Prompter interface {
	Confirm(prompt string) (bool, error)
	// Choose returns the zero-based index of the selected option.
	Choose(prompt string, options []string) (int, error)
	ShowDiff(d *diff.Diff)
	Notify(format string, args ...any)
}

const maxAttempts = 3

// TerminalPrompter asks questions with numbered menus over a reader/writer.
type TerminalPrompter struct {
	reader *bufio.Reader
	w      io.Writer
}

// NewTerminalPrompter returns a prompter reading answers from r.
func NewTerminalPrompter(r io.Reader, w io.Writer) *TerminalPrompter {
	return &TerminalPrompter{reader: bufio.NewReader(r), w: w}
}

// Confirm asks a yes/no question. Anything but y/yes is no.
func (p *TerminalPrompter) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(p.w, "%s [y/N]: ", prompt)
	line, err := p.readLine()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Choose presents a numbered list and returns the selected index.
func (p *TerminalPrompter) Choose(prompt string, options []string) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options to choose from")
	}
	fmt.Fprintf(p.w, "\n%s\n", prompt)
	for i, item := range options {
		fmt.Fprintf(p.w, "  %d) %s\n", i+1, item)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		fmt.Fprintf(p.w, "Enter number [1-%d]: ", len(options))
		line, err := p.readLine()
		if err != nil {
			return 0, err
		}
		num, err := strconv.Atoi(line)
		if err == nil && num >= 1 && num <= len(options) {
			return num - 1, nil
		}
		fmt.Fprintf(p.w, "Invalid selection %q: choose 1-%d\n", line, len(options))
	}
	return 0, cancelled(fmt.Errorf("no valid selection after %d attempts", maxAttempts))
}

// ShowDiff renders d.
func (p *TerminalPrompter) ShowDiff(d *diff.Diff) {
	fmt.Fprintln(p.w)
	d.Render(p.w)
}

// Notify prints an informational line.
func (p *TerminalPrompter) Notify(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *TerminalPrompter) readLine() (string, error) {
	line, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", cancelled(fmt.Errorf("reading answer: %w", err))
	}
	return strings.TrimSpace(line), nil
}

// cancelled reports an answer that never came as a user abort.
func cancelled(err error) error {
	return (&errs.Error{Kind: errs.KindCancelled, Op: "waiting for an answer", Err: err}).
		WithHint("nothing was changed; re-run the upgrade when ready")
}
