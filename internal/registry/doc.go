// Package registry answers "what should this file's sha256 be at this
// version". Verified provenance is consulted first; the digest table
// embedded in the binary covers releases that predate signed provenance.
//
// A Registry is built once per session and passed to every component that
// needs expected digests. Results are cached per (version, path), and the
// provenance source is asked at most once per version.
package registry
