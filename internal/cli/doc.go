// Package cli implements the security-controls command tree: check, upgrade,
// force, rollback, verify-provenance, version and config.
package cli
