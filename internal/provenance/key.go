package provenance

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/h4x0r/1-click-github-sec/internal/errs"
)

// KeyVerifier checks DSSE signatures against pinned public keys.
type KeyVerifier struct {
	keys        []crypto.PublicKey
	requireTlog bool
	policy      claimPolicy
}

// KeyOption configures a KeyVerifier.
type KeyOption func(*KeyVerifier)

// WithRequireTlog makes a transparency-log reference mandatory.
func WithRequireTlog(require bool) KeyOption {
	return func(v *KeyVerifier) { v.requireTlog = require }
}

// WithTrustedBuilders restricts accepted builder IDs to the given prefixes.
func WithTrustedBuilders(prefixes []string) KeyOption {
	return func(v *KeyVerifier) { v.policy.trustedBuilders = prefixes }
}

// NewKeyVerifier returns a verifier for the given keys.
func NewKeyVerifier(keys []crypto.PublicKey, opts ...KeyOption) *KeyVerifier {
	v := &KeyVerifier{keys: keys}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// LoadPublicKeys reads PEM-encoded PKIX public keys from files.
func LoadPublicKeys(paths []string) ([]crypto.PublicKey, error) {
	var keys []crypto.PublicKey
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading public key: %w", err)
		}
		parsed, err := ParsePublicKeys(data)
		if err != nil {
			return nil, fmt.Errorf("parsing public key %s: %w", p, err)
		}
		keys = append(keys, parsed...)
	}
	return keys, nil
}

// ParsePublicKeys decodes every PUBLIC KEY block in data.
func ParsePublicKeys(data []byte) ([]crypto.PublicKey, error) {
	var keys []crypto.PublicKey
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "PUBLIC KEY" {
			continue
		}
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, errors.New("no PUBLIC KEY block found")
	}
	return keys, nil
}

// Name implements Verifier.
func (v *KeyVerifier) Name() string { return "key" }

// Verify implements Verifier.
func (v *KeyVerifier) Verify(ctx context.Context, req Request) (*VerifiedDigestSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(v.keys) == 0 {
		return nil, errs.Trust("verifying provenance", req.AttestationPath, errors.New("no public keys configured"))
	}

	data, err := os.ReadFile(req.AttestationPath)
	if err != nil {
		return nil, errs.NotFound("reading attestation", req.AttestationPath, err)
	}
	atts, err := ParseAttestations(data)
	if err != nil {
		return nil, errs.Trust("parsing attestation", req.AttestationPath, err)
	}

	artifactDigest := ""
	if req.ArtifactPath != "" {
		artifactDigest, err = fileSHA256(req.ArtifactPath)
		if err != nil {
			return nil, errs.NotFound("hashing artifact", req.ArtifactPath, err)
		}
	}

	var lastErr error
	for i := range atts {
		att := &atts[i]
		if err := v.checkSignature(&att.Envelope, att.Payload); err != nil {
			lastErr = err
			continue
		}
		if v.requireTlog && len(att.Tlog) == 0 {
			lastErr = errors.New("signature has no transparency log entry")
			continue
		}
		stmt, err := att.Statement()
		if err != nil {
			lastErr = err
			continue
		}
		if artifactDigest != "" && !stmt.HasSubjectDigest(artifactDigest) {
			lastErr = fmt.Errorf("artifact digest %s is not a subject of the statement", artifactDigest)
			continue
		}
		return v.policy.accept(stmt, att.Payload, req, v.Name())
	}
	return nil, errs.Trust("verifying provenance", req.AttestationPath, lastErr)
}

func (v *KeyVerifier) checkSignature(env *Envelope, payload []byte) error {
	if len(env.Signatures) == 0 {
		return errors.New("envelope is not signed")
	}
	msg := PAE(env.PayloadType, payload)
	for _, s := range env.Signatures {
		sig, err := decodeBase64(s.Sig)
		if err != nil {
			continue
		}
		for _, key := range v.keys {
			if verifySignature(key, msg, sig) {
				return nil
			}
		}
	}
	return errors.New("no signature matches a trusted key")
}

func verifySignature(key crypto.PublicKey, msg, sig []byte) bool {
	switch k := key.(type) {
	case ed25519.PublicKey:
		return ed25519.Verify(k, msg, sig)
	case *ecdsa.PublicKey:
		sum := sha256.Sum256(msg)
		return ecdsa.VerifyASN1(k, sum[:], sig)
	case *rsa.PublicKey:
		sum := sha256.Sum256(msg)
		if rsa.VerifyPSS(k, crypto.SHA256, sum[:], sig, nil) == nil {
			return true
		}
		return rsa.VerifyPKCS1v15(k, crypto.SHA256, sum[:], sig) == nil
	default:
		return false
	}
}

func fileSHA256(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
