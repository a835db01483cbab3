// Package provenance verifies signed build attestations (in-toto statements
// carrying SLSA provenance, wrapped in DSSE envelopes or Sigstore bundles)
// and turns a verified statement into a trusted set of subject digests.
//
// A statement is only usable after three checks pass: its signature
// validates, the claimed source repository equals the expected one, and,
// when a tag is requested, the claimed build ref names that tag. Any failure
// is an errs.KindTrust error and no digest from the statement may be used.
//
// Two strategies implement Verifier:
//
//	KeyVerifier   in-process DSSE signature check against pinned public keys
//	ToolVerifier  delegates to the slsa-verifier binary, then re-checks claims
package provenance
