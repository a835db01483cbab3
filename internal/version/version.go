package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Normalize strips a leading "v" so "v0.7.0" and "0.7.0" name the same release.
func Normalize(version string) string {
	return strings.TrimPrefix(strings.TrimSpace(version), "v")
}

// Tag returns the release tag for a version ("0.7.0" → "v0.7.0").
func Tag(version string) string {
	return "v" + Normalize(version)
}

// Compare compares two version strings using semver.
// Returns -1 if current < target, 0 if equal, 1 if current > target.
func Compare(current, target string) (int, error) {
	cv, err := parseSemver(current)
	if err != nil {
		return 0, fmt.Errorf("parsing current version %q: %w", current, err)
	}
	tv, err := parseSemver(target)
	if err != nil {
		return 0, fmt.Errorf("parsing target version %q: %w", target, err)
	}
	return cv.Compare(tv), nil
}

// IsUpgrade returns true if target is newer than current.
func IsUpgrade(current, target string) (bool, error) {
	cmp, err := Compare(current, target)
	if err != nil {
		return false, err
	}
	return cmp == -1, nil
}

// Valid reports whether version parses as semver.
func Valid(version string) bool {
	_, err := parseSemver(version)
	return err == nil
}

func parseSemver(version string) (*semver.Version, error) {
	return semver.NewVersion(Normalize(version))
}
