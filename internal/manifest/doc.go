// Package manifest defines the set of managed files the upgrade engine
// tracks. The installer records the list at .security-controls/manifest.yaml;
// when that file is absent the built-in default list for this release line is
// used. Manifests are validated against an embedded JSON schema before use.
package manifest
