// Package provenancetest builds signed attestations for tests.
package provenancetest

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/h4x0r/1-click-github-sec/internal/provenance"
)

// DefaultBuilder is the builder ID stamped into statements by Statement.
const DefaultBuilder = "https://github.com/slsa-framework/slsa-github-generator/.github/workflows/generator_generic_slsa3.yml@refs/tags/v2.0.0"

// Signer signs DSSE envelopes with a throwaway ed25519 key.
type Signer struct {
	priv ed25519.PrivateKey
	// PublicKeyPath is a PEM file holding the matching public key.
	PublicKeyPath string
}

// NewSigner generates a key pair and writes the public half to a temp dir.
func NewSigner(t testing.TB) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshalling key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "release.pub")
	data := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing key: %v", err)
	}
	return &Signer{priv: priv, PublicKeyPath: path}
}

// StatementSpec describes the statement to build.
type StatementSpec struct {
	SourceURI string
	Ref       string
	Builder   string
	// Subjects maps subject name to content.
	Subjects map[string][]byte
}

// Statement renders an in-toto v1 statement with a SLSA v1 predicate.
func Statement(t testing.TB, spec StatementSpec) []byte {
	t.Helper()
	builder := spec.Builder
	if builder == "" {
		builder = DefaultBuilder
	}
	subjects := make([]provenance.Subject, 0, len(spec.Subjects))
	for name, content := range spec.Subjects {
		subjects = append(subjects, provenance.Subject{
			Name:   name,
			Digest: map[string]string{"sha256": SHA256(content)},
		})
	}
	predicate := map[string]any{
		"buildDefinition": map[string]any{
			"buildType": "https://slsa-framework.github.io/github-actions-buildtypes/workflow/v1",
			"externalParameters": map[string]any{
				"workflow": map[string]any{
					"ref":        spec.Ref,
					"repository": spec.SourceURI,
					"path":       ".github/workflows/release.yml",
				},
			},
		},
		"runDetails": map[string]any{
			"builder": map[string]any{"id": builder},
		},
	}
	pred, err := json.Marshal(predicate)
	if err != nil {
		t.Fatalf("marshalling predicate: %v", err)
	}
	stmt := provenance.Statement{
		Type:          provenance.StatementV1,
		Subject:       subjects,
		PredicateType: provenance.PredicateSLSAv1,
		Predicate:     pred,
	}
	out, err := json.Marshal(stmt)
	if err != nil {
		t.Fatalf("marshalling statement: %v", err)
	}
	return out
}

// Envelope signs payload and returns the DSSE envelope.
func (s *Signer) Envelope(payload []byte) provenance.Envelope {
	sig := ed25519.Sign(s.priv, provenance.PAE(provenance.PayloadTypeInToto, payload))
	return provenance.Envelope{
		PayloadType: provenance.PayloadTypeInToto,
		Payload:     base64.StdEncoding.EncodeToString(payload),
		Signatures:  []provenance.Signature{{KeyID: "test", Sig: base64.StdEncoding.EncodeToString(sig)}},
	}
}

// Bundle signs payload and wraps it in a Sigstore-style bundle. When tlog is
// true the bundle carries a transparency-log entry.
func (s *Signer) Bundle(t testing.TB, payload []byte, tlog bool) []byte {
	t.Helper()
	env := s.Envelope(payload)
	var b provenance.Bundle
	b.MediaType = "application/vnd.dev.sigstore.bundle.v0.3+json"
	b.DSSEEnvelope = &env
	if tlog {
		entry := provenance.TlogEntry{LogIndex: "123456", IntegratedTime: "1760000000"}
		entry.LogID.KeyID = "wNI9atQGlz+VWfO6LRygH4QUfY/8W4RFwiT5i5WRgB0="
		b.VerificationMaterial.TlogEntries = []provenance.TlogEntry{entry}
	}
	out, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshalling bundle: %v", err)
	}
	return out
}

// WriteFile writes data into dir and returns the path.
func WriteFile(t testing.TB, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// SHA256 returns the lowercase hex digest of data.
func SHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
