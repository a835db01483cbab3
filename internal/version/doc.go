// Package version reads and writes the installed-version marker
// (.security-controls/.version) and compares release versions with semver.
package version
