// Package release downloads published releases from GitHub: the release
// bundle holding every managed file, its checksums.txt, and the signed
// provenance attestation. Requests are time-bounded and retried once.
// Failures are errs.KindNetwork (or errs.KindNotFound for a release or asset
// that does not exist), which callers treat as "information unavailable".
package release
