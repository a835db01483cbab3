package provenance

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
	"github.com/h4x0r/1-click-github-sec/internal/schema"
	"github.com/h4x0r/1-click-github-sec/internal/version"
)

//go:embed schema/statement.schema.json
var statementSchemaBytes []byte

var statementSchema = schema.NewLazy("statement.schema.json", statementSchemaBytes)

// Request describes one verification.
type Request struct {
	// ArtifactPath is the release artifact the statement must cover.
	// Optional for KeyVerifier; required by ToolVerifier.
	ArtifactPath string
	// AttestationPath is a bundle, envelope or .intoto.jsonl file.
	AttestationPath string
	// ExpectedSourceURI is the repository the build must come from.
	ExpectedSourceURI string
	// ExpectedTag, when set, must equal the build ref.
	ExpectedTag string
}

// Verifier checks a signed statement and returns the digests it vouches for.
type Verifier interface {
	Name() string
	Verify(ctx context.Context, req Request) (*VerifiedDigestSet, error)
}

// VerifiedDigestSet is the trusted content of a statement that passed
// verification.
type VerifiedDigestSet struct {
	Claims
	// Digests maps subject name to lowercase hex sha256.
	Digests  map[string]string
	Verifier string
}

// Lookup returns the digest for a managed file path. An exact subject name
// match wins; otherwise a subject with the same base name is used when it is
// the only one.
func (d *VerifiedDigestSet) Lookup(relPath string) (string, bool) {
	if d == nil {
		return "", false
	}
	if digest, ok := d.Digests[relPath]; ok {
		return digest, true
	}
	base := path.Base(relPath)
	found := ""
	matches := 0
	for name, digest := range d.Digests {
		if path.Base(name) == base {
			found = digest
			matches++
		}
	}
	if matches == 1 {
		return found, true
	}
	return "", false
}

// NormalizeSourceURI reduces a repository reference to host/owner/repo so
// that "git+https://github.com/o/r.git@refs/tags/v1" equals "github.com/o/r".
func NormalizeSourceURI(uri string) string {
	u := strings.TrimSpace(uri)
	u = strings.TrimPrefix(u, "git+")
	if i := strings.Index(u, "://"); i >= 0 {
		u = u[i+3:]
	}
	if slash := strings.Index(u, "/"); slash >= 0 {
		if at := strings.LastIndex(u, "@"); at > slash {
			u = u[:at]
		}
	}
	u = strings.TrimSuffix(u, "/")
	u = strings.TrimSuffix(u, ".git")
	return strings.ToLower(u)
}

// RefMatchesTag reports whether a build ref names the given release tag.
// Both "v0.7.0" and "refs/tags/v0.7.0" match tag "v0.7.0".
func RefMatchesTag(ref, tag string) bool {
	if ref == "" || tag == "" {
		return false
	}
	ref = strings.TrimPrefix(ref, "refs/tags/")
	tag = strings.TrimPrefix(tag, "refs/tags/")
	if ref == tag {
		return true
	}
	return version.Valid(ref) && version.Valid(tag) && version.Normalize(ref) == version.Normalize(tag)
}

// claimPolicy holds the identity checks applied after a signature verifies.
type claimPolicy struct {
	trustedBuilders []string
}

func (p claimPolicy) builderTrusted(id string) bool {
	if len(p.trustedBuilders) == 0 {
		return true
	}
	for _, prefix := range p.trustedBuilders {
		if prefix != "" && strings.HasPrefix(id, prefix) {
			return true
		}
	}
	return false
}

// accept validates a statement whose signature has already been checked and
// returns its digest set.
func (p claimPolicy) accept(stmt *Statement, payload []byte, req Request, verifier string) (*VerifiedDigestSet, error) {
	res, err := statementSchema.ValidateJSON(payload)
	if err != nil {
		return nil, errs.Trust("validating statement", req.AttestationPath, err)
	}
	if !res.Valid {
		return nil, errs.Trust("validating statement", req.AttestationPath, errors.New(res.Summary()))
	}

	claims, err := stmt.Claims()
	if err != nil {
		return nil, errs.Trust("reading provenance", req.AttestationPath, err)
	}
	if !p.builderTrusted(claims.BuilderID) {
		return nil, errs.Trust("checking builder", req.AttestationPath,
			fmt.Errorf("builder %q is not trusted", claims.BuilderID)).
			WithHint("add the builder to provenance.trusted_builders only if you trust it")
	}
	if got, want := NormalizeSourceURI(claims.SourceURI), NormalizeSourceURI(req.ExpectedSourceURI); got == "" || got != want {
		return nil, errs.Trust("checking source", req.AttestationPath,
			fmt.Errorf("statement was built from %q, expected %q", claims.SourceURI, req.ExpectedSourceURI))
	}
	if req.ExpectedTag != "" && !RefMatchesTag(claims.SourceRef, req.ExpectedTag) {
		return nil, errs.Trust("checking tag", req.AttestationPath,
			fmt.Errorf("statement was built from ref %q, expected tag %q", claims.SourceRef, req.ExpectedTag))
	}

	set := &VerifiedDigestSet{
		Claims:   claims,
		Digests:  make(map[string]string, len(stmt.Subject)),
		Verifier: verifier,
	}
	for _, sub := range stmt.Subject {
		set.Digests[sub.Name] = strings.ToLower(sub.Digest["sha256"])
	}
	return set, nil
}

// ErrNoVerifier marks a Trust failure caused by having no verifier to run.
var ErrNoVerifier = errors.New("no provenance verifier configured")

// unavailable is returned by Select when no strategy can run.
type unavailable struct {
	reason string
}

func (u unavailable) Name() string { return "none" }

func (u unavailable) Verify(_ context.Context, req Request) (*VerifiedDigestSet, error) {
	return nil, errs.Trust("verifying provenance", req.AttestationPath, fmt.Errorf("%w: %s", ErrNoVerifier, u.reason)).
		WithHint("install slsa-verifier or set provenance.public_keys")
}
