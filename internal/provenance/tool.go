package provenance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
)

// RunFunc executes a command and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// ToolVerifier delegates signature and transparency-log checks to the
// slsa-verifier binary and then applies the same claim checks as
// KeyVerifier to the statement it accepted.
type ToolVerifier struct {
	path    string
	timeout time.Duration
	policy  claimPolicy
	run     RunFunc
}

// ToolOption configures a ToolVerifier.
type ToolOption func(*ToolVerifier)

// WithRunner replaces the process runner.
func WithRunner(run RunFunc) ToolOption {
	return func(v *ToolVerifier) { v.run = run }
}

// WithToolTimeout bounds each tool invocation.
func WithToolTimeout(d time.Duration) ToolOption {
	return func(v *ToolVerifier) { v.timeout = d }
}

// WithToolTrustedBuilders restricts accepted builder IDs to the given prefixes.
func WithToolTrustedBuilders(prefixes []string) ToolOption {
	return func(v *ToolVerifier) { v.policy.trustedBuilders = prefixes }
}

// NewToolVerifier returns a verifier that runs the binary at path.
func NewToolVerifier(path string, opts ...ToolOption) *ToolVerifier {
	v := &ToolVerifier{path: path, timeout: 60 * time.Second, run: runCommand}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Name implements Verifier.
func (v *ToolVerifier) Name() string { return "slsa-verifier" }

// Verify implements Verifier.
func (v *ToolVerifier) Verify(ctx context.Context, req Request) (*VerifiedDigestSet, error) {
	if req.ArtifactPath == "" {
		return nil, errs.Trust("verifying provenance", req.AttestationPath,
			errors.New("slsa-verifier needs the release artifact"))
	}

	args := []string{
		"verify-artifact", req.ArtifactPath,
		"--provenance-path", req.AttestationPath,
		"--source-uri", NormalizeSourceURI(req.ExpectedSourceURI),
	}
	if req.ExpectedTag != "" {
		args = append(args, "--source-tag", req.ExpectedTag)
	}

	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()
	out, err := v.run(runCtx, v.path, args...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, errs.Network("running slsa-verifier", req.AttestationPath,
				fmt.Errorf("timed out after %s", v.timeout))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errs.Trust("running slsa-verifier", req.AttestationPath,
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out))))
	}

	data, err := os.ReadFile(req.AttestationPath)
	if err != nil {
		return nil, errs.NotFound("reading attestation", req.AttestationPath, err)
	}
	atts, err := ParseAttestations(data)
	if err != nil {
		return nil, errs.Trust("parsing attestation", req.AttestationPath, err)
	}
	digest, err := fileSHA256(req.ArtifactPath)
	if err != nil {
		return nil, errs.NotFound("hashing artifact", req.ArtifactPath, err)
	}
	att, stmt, err := coveringStatement(atts, digest)
	if err != nil {
		return nil, errs.Trust("verifying provenance", req.AttestationPath, err)
	}
	return v.policy.accept(stmt, att.Payload, req, v.Name())
}

// coveringStatement returns the one signed statement covering digest. The
// tool does not report which envelope it checked, so the file is rejected
// when several envelopes cover the artifact or any two disagree on a subject.
func coveringStatement(atts []Attestation, digest string) (*Attestation, *Statement, error) {
	var (
		found    *Attestation
		foundSt  *Statement
		subjects = make(map[string]string)
	)
	for i := range atts {
		stmt, err := atts[i].Statement()
		if err != nil {
			return nil, nil, fmt.Errorf("envelope %d: %w", i+1, err)
		}
		for _, sub := range stmt.Subject {
			d := strings.ToLower(sub.Digest["sha256"])
			if prev, ok := subjects[sub.Name]; ok && prev != d {
				return nil, nil, fmt.Errorf("envelopes disagree on the digest of %s", sub.Name)
			}
			subjects[sub.Name] = d
		}
		if !stmt.HasSubjectDigest(digest) {
			continue
		}
		if found != nil {
			return nil, nil, fmt.Errorf("more than one envelope covers artifact digest %s", digest)
		}
		if !signed(&atts[i].Envelope) {
			return nil, nil, errors.New("envelope covering the artifact carries no signature")
		}
		found, foundSt = &atts[i], stmt
	}
	if found == nil {
		return nil, nil, fmt.Errorf("no statement covers artifact digest %s", digest)
	}
	return found, foundSt, nil
}

func signed(env *Envelope) bool {
	for _, sig := range env.Signatures {
		if raw, err := decodeBase64(sig.Sig); err == nil && len(raw) > 0 {
			return true
		}
	}
	return false
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.Bytes(), err
}
