package upgrade

import (
	"time"

	"github.com/google/uuid"
	"github.com/h4x0r/1-click-github-sec/internal/backup"
	"github.com/h4x0r/1-click-github-sec/internal/integrity"
	"github.com/h4x0r/1-click-github-sec/internal/manifest"
	"github.com/h4x0r/1-click-github-sec/internal/release"
	"github.com/h4x0r/1-click-github-sec/internal/resolve"
)

// Phase names a step of the session state machine.
type Phase string

const (
	PhaseDetectVersion  Phase = "DetectVersion"
	PhaseCheckIntegrity Phase = "CheckIntegrity"
	PhaseFetch          Phase = "FetchAndVerifyNew"
	PhaseResolve        Phase = "ResolveAll"
	PhaseApply          Phase = "Apply"
	PhaseReVerify       Phase = "ReVerify"
	PhaseDone           Phase = "Done"
)

// Anomaly is a file that is not Intact after Apply.
type Anomaly struct {
	Path    string
	Verdict integrity.Verdict
	// Expected is true when the user chose to keep or merge the file.
	Expected bool
}

// Session is the in-memory record of one upgrade. It is never persisted.
type Session struct {
	ID      string
	Root    string
	Started time.Time
	Phase   Phase

	// Installed is empty when no version marker was found.
	Installed string
	Target    string
	UpToDate  bool

	Files    []manifest.ManagedFile
	Before   *integrity.Report
	Incoming *release.ArtifactSet
	Outcomes []resolve.Outcome
	Batch    *backup.Batch
	After    *integrity.Report

	Anomalies []Anomaly
}

func newSession(root string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Root:    root,
		Started: time.Now(),
		Phase:   PhaseDetectVersion,
	}
}

// Blind reports whether the installed version is unknown.
func (s *Session) Blind() bool { return s.Installed == "" }

// Outcome returns the decision recorded for path.
func (s *Session) Outcome(path string) (resolve.Outcome, bool) {
	for _, o := range s.Outcomes {
		if o.Path == path {
			return o, true
		}
	}
	return resolve.Outcome{}, false
}

// UnexpectedAnomalies returns anomalies the user did not ask for.
func (s *Session) UnexpectedAnomalies() []Anomaly {
	var out []Anomaly
	for _, a := range s.Anomalies {
		if !a.Expected {
			out = append(out, a)
		}
	}
	return out
}
