// Package errs defines the failure taxonomy shared by every upgrade phase.
// Each error carries the operation and file it concerns plus a hint naming
// the safe next step, so the CLI can report it without further context.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how callers must react to it.
type Kind string

const (
	// KindTrust covers bad or missing signatures and source mismatches.
	// Always fatal for the digest source involved.
	KindTrust Kind = "TRUST"
	// KindNotFound means no digest record exists. Surfaces as an Unknown verdict.
	KindNotFound Kind = "NOT_FOUND"
	// KindNetwork means a download failed or timed out. Triggers fallback.
	KindNetwork Kind = "NETWORK"
	// KindCancelled means the user aborted the session.
	KindCancelled Kind = "CANCELLED"
	// KindBackupIO means a snapshot could not be written. Fatal for Apply.
	KindBackupIO Kind = "BACKUP_IO"
	// KindRestoreTargetMissing is reported per file during rollback.
	KindRestoreTargetMissing Kind = "RESTORE_TARGET_MISSING"
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithHint returns e with its next-step hint set.
func (e *Error) WithHint(format string, args ...any) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// Trust builds a KindTrust error.
func Trust(op, path string, err error) *Error {
	return &Error{Kind: KindTrust, Op: op, Path: path, Err: err}
}

// NotFound builds a KindNotFound error.
func NotFound(op, path string, err error) *Error {
	return &Error{Kind: KindNotFound, Op: op, Path: path, Err: err}
}

// Network builds a KindNetwork error.
func Network(op, path string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Path: path, Err: err}
}

// Cancelled builds a KindCancelled error.
func Cancelled(op string) *Error {
	return &Error{Kind: KindCancelled, Op: op, Err: errors.New("cancelled by user")}
}

// BackupIO builds a KindBackupIO error.
func BackupIO(path string, err error) *Error {
	return &Error{Kind: KindBackupIO, Op: "backing up", Path: path, Err: err}
}

// RestoreTargetMissing builds a KindRestoreTargetMissing error.
func RestoreTargetMissing(path string, err error) *Error {
	return &Error{Kind: KindRestoreTargetMissing, Op: "restoring", Path: path, Err: err}
}

// IsKind reports whether any error in err's chain is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == k {
			return true
		}
		err = e.Err
	}
	return false
}

// HintOf returns the first non-empty hint in err's chain.
func HintOf(err error) string {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return ""
		}
		if e.Hint != "" {
			return e.Hint
		}
		err = e.Err
	}
	return ""
}
