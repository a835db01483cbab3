package provenance

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Media and predicate types understood by this package.
const (
	PayloadTypeInToto = "application/vnd.in-toto+json"
	StatementV1       = "https://in-toto.io/Statement/v1"
	StatementV01      = "https://in-toto.io/Statement/v0.1"
	PredicateSLSAv1   = "https://slsa.dev/provenance/v1"
	PredicateSLSAv02  = "https://slsa.dev/provenance/v0.2"
)

// Envelope is a DSSE envelope.
type Envelope struct {
	PayloadType string      `json:"payloadType"`
	Payload     string      `json:"payload"`
	Signatures  []Signature `json:"signatures"`
}

// Signature is one DSSE signature over the envelope's PAE encoding.
type Signature struct {
	KeyID string `json:"keyid,omitempty"`
	Sig   string `json:"sig"`
}

// Bundle is the subset of a Sigstore bundle this package reads.
type Bundle struct {
	MediaType            string `json:"mediaType"`
	VerificationMaterial struct {
		TlogEntries []TlogEntry `json:"tlogEntries"`
	} `json:"verificationMaterial"`
	DSSEEnvelope *Envelope `json:"dsseEnvelope"`
}

// TlogEntry references the transparency-log record of a signing event.
type TlogEntry struct {
	LogIndex       string `json:"logIndex"`
	IntegratedTime string `json:"integratedTime,omitempty"`
	LogID          struct {
		KeyID string `json:"keyId"`
	} `json:"logId"`
}

// Statement is an in-toto statement.
type Statement struct {
	Type          string          `json:"_type"`
	Subject       []Subject       `json:"subject"`
	PredicateType string          `json:"predicateType"`
	Predicate     json.RawMessage `json:"predicate"`
}

// Subject binds an artifact name to its digests.
type Subject struct {
	Name   string            `json:"name"`
	Digest map[string]string `json:"digest"`
}

// Claims are the identity assertions a statement makes about its build.
type Claims struct {
	BuilderID string
	SourceURI string
	SourceRef string
}

// Attestation is one envelope found in an attestation document, with its
// decoded (not yet trusted) payload.
type Attestation struct {
	Envelope Envelope
	Tlog     []TlogEntry
	Payload  []byte
}

// ParseAttestations decodes a Sigstore bundle, a bare DSSE envelope, or a
// JSON-lines file of envelopes (the .intoto.jsonl format).
func ParseAttestations(data []byte) ([]Attestation, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("attestation document is empty")
	}

	if json.Valid(data) {
		att, err := parseOne(data)
		if err != nil {
			return nil, err
		}
		return []Attestation{*att}, nil
	}

	var out []Attestation
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		att, err := parseOne(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, *att)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading attestation lines: %w", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no attestations found")
	}
	return out, nil
}

func parseOne(data []byte) (*Attestation, error) {
	var shape struct {
		DSSEEnvelope json.RawMessage `json:"dsseEnvelope"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("decoding attestation: %w", err)
	}

	var att Attestation
	if len(shape.DSSEEnvelope) > 0 {
		var b Bundle
		if err := json.Unmarshal(data, &b); err != nil {
			return nil, fmt.Errorf("decoding bundle: %w", err)
		}
		att.Envelope = *b.DSSEEnvelope
		att.Tlog = b.VerificationMaterial.TlogEntries
	} else if err := json.Unmarshal(data, &att.Envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}

	if att.Envelope.PayloadType != PayloadTypeInToto {
		return nil, fmt.Errorf("unsupported payload type %q", att.Envelope.PayloadType)
	}
	payload, err := decodeBase64(att.Envelope.Payload)
	if err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}
	att.Payload = payload
	return &att, nil
}

// Statement decodes the attestation payload. The result is untrusted until
// the envelope signature has been verified.
func (a *Attestation) Statement() (*Statement, error) {
	var s Statement
	if err := json.Unmarshal(a.Payload, &s); err != nil {
		return nil, fmt.Errorf("decoding statement: %w", err)
	}
	return &s, nil
}

// HasSubjectDigest reports whether any subject carries the sha256 digest.
func (s *Statement) HasSubjectDigest(digest string) bool {
	for _, sub := range s.Subject {
		if strings.EqualFold(sub.Digest["sha256"], digest) {
			return true
		}
	}
	return false
}

type slsaV1Predicate struct {
	BuildDefinition struct {
		ExternalParameters struct {
			Workflow struct {
				Ref        string `json:"ref"`
				Repository string `json:"repository"`
				Path       string `json:"path"`
			} `json:"workflow"`
		} `json:"externalParameters"`
	} `json:"buildDefinition"`
	RunDetails struct {
		Builder struct {
			ID string `json:"id"`
		} `json:"builder"`
	} `json:"runDetails"`
}

type slsaV02Predicate struct {
	Builder struct {
		ID string `json:"id"`
	} `json:"builder"`
	Invocation struct {
		ConfigSource struct {
			URI        string `json:"uri"`
			EntryPoint string `json:"entryPoint"`
		} `json:"configSource"`
	} `json:"invocation"`
}

// Claims extracts builder and source identity from the SLSA predicate.
func (s *Statement) Claims() (Claims, error) {
	switch s.PredicateType {
	case PredicateSLSAv1:
		var p slsaV1Predicate
		if err := json.Unmarshal(s.Predicate, &p); err != nil {
			return Claims{}, fmt.Errorf("decoding SLSA v1 predicate: %w", err)
		}
		wf := p.BuildDefinition.ExternalParameters.Workflow
		return Claims{
			BuilderID: p.RunDetails.Builder.ID,
			SourceURI: wf.Repository,
			SourceRef: wf.Ref,
		}, nil
	case PredicateSLSAv02:
		var p slsaV02Predicate
		if err := json.Unmarshal(s.Predicate, &p); err != nil {
			return Claims{}, fmt.Errorf("decoding SLSA v0.2 predicate: %w", err)
		}
		uri, ref, _ := strings.Cut(p.Invocation.ConfigSource.URI, "@")
		return Claims{
			BuilderID: p.Builder.ID,
			SourceURI: uri,
			SourceRef: ref,
		}, nil
	default:
		return Claims{}, fmt.Errorf("unsupported predicate type %q", s.PredicateType)
	}
}

// PAE is the DSSE pre-authentication encoding that signatures cover.
func PAE(payloadType string, payload []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "DSSEv1 %d %s %d ", len(payloadType), payloadType, len(payload))
	b.Write(payload)
	return b.Bytes()
}

func decodeBase64(s string) ([]byte, error) {
	if out, err := base64.StdEncoding.DecodeString(s); err == nil {
		return out, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
