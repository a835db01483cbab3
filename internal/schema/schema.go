// Package schema compiles embedded JSON Schemas and reports validation
// failures as flat, human-readable issues.
package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Result contains the outcome of a schema validation.
type Result struct {
	Valid  bool
	Issues []Issue
}

// Issue is a single leaf-level validation failure.
type Issue struct {
	Path    string // instance location, e.g. "/subject/0/digest/sha256"
	Message string
	Keyword string
}

// Summary joins the issues into one line for error messages.
func (r *Result) Summary() string {
	parts := make([]string, 0, len(r.Issues))
	for _, issue := range r.Issues {
		if issue.Path == "" {
			parts = append(parts, issue.Message)
			continue
		}
		parts = append(parts, issue.Path+": "+issue.Message)
	}
	return strings.Join(parts, "; ")
}

// Lazy compiles a schema document on first use.
type Lazy struct {
	name string
	doc  []byte

	once     sync.Once
	compiled *jsonschema.Schema
	err      error
}

// NewLazy returns a schema compiled from doc the first time it is used.
func NewLazy(name string, doc []byte) *Lazy {
	return &Lazy{name: name, doc: doc}
}

func (l *Lazy) get() (*jsonschema.Schema, error) {
	l.once.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(l.doc))
		if err != nil {
			l.err = fmt.Errorf("unmarshaling schema %s: %w", l.name, err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(l.name, doc); err != nil {
			l.err = fmt.Errorf("adding schema resource %s: %w", l.name, err)
			return
		}
		l.compiled, l.err = c.Compile(l.name)
		if l.err != nil {
			l.err = fmt.Errorf("compiling schema %s: %w", l.name, l.err)
		}
	})
	return l.compiled, l.err
}

// ValidateJSON validates a JSON document.
// The error return is for malformed input or schema compilation failures;
// schema violations are reported in the Result.
func (l *Lazy) ValidateJSON(data []byte) (*Result, error) {
	s, err := l.get()
	if err != nil {
		return nil, err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	return check(s, inst)
}

// ValidateValue validates an already-decoded value (for example YAML
// decoded into maps) by round-tripping it through JSON.
func (l *Lazy) ValidateValue(v any) (*Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("converting to JSON: %w", err)
	}
	return l.ValidateJSON(data)
}

func check(s *jsonschema.Schema, inst any) (*Result, error) {
	err := s.Validate(inst)
	if err == nil {
		return &Result{Valid: true}, nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil, fmt.Errorf("unexpected validation error type: %w", err)
	}

	var issues []Issue
	collect(ve, &issues)
	if len(issues) == 0 {
		issues = []Issue{{Message: ve.Error()}}
	}
	return &Result{Valid: false, Issues: dedupe(issues)}, nil
}

// collect walks the error tree down to leaves; container keywords carry
// no useful detail of their own.
func collect(ve *jsonschema.ValidationError, issues *[]Issue) {
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			collect(cause, issues)
		}
		return
	}
	if ve.ErrorKind == nil {
		return
	}

	keyword := ""
	if kw := ve.ErrorKind.KeywordPath(); len(kw) > 0 {
		keyword = kw[len(kw)-1]
	}
	switch keyword {
	case "", "oneOf", "anyOf", "allOf", "$ref":
		return
	}

	path := ""
	if len(ve.InstanceLocation) > 0 {
		path = "/" + strings.Join(ve.InstanceLocation, "/")
	}
	*issues = append(*issues, Issue{
		Path:    path,
		Message: ve.ErrorKind.LocalizedString(printer),
		Keyword: keyword,
	})
}

func dedupe(issues []Issue) []Issue {
	seen := make(map[string]bool, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		key := issue.Path + "|" + issue.Keyword + "|" + issue.Message
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, issue)
	}
	return out
}
