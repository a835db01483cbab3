// Package branding provides compile-time identity values for the CLI.
//
// Forks edit branding.yaml in this package before building; Go's
// //go:embed bakes it into the binary.
package branding

import (
	_ "embed"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"
)

//go:embed branding.yaml
var rawBranding []byte

var (
	once     sync.Once
	defaults brand
)

type brand struct {
	CLIName        string `yaml:"cli_name"`
	DisplayName    string `yaml:"display_name"`
	Description    string `yaml:"description"`
	HomeDir        string `yaml:"home_dir"`
	ControlsDir    string `yaml:"controls_dir"`
	EnvPrefix      string `yaml:"env_prefix"`
	GitHubRepo     string `yaml:"github_repo"`
	SourceURI      string `yaml:"source_uri"`
	InstallerAsset string `yaml:"installer_asset"`
}

func load() {
	once.Do(func() {
		// Hard defaults in case the embedded file is missing or empty.
		defaults = brand{
			CLIName:        "security-controls",
			DisplayName:    "1-Click GitHub Security",
			Description:    "Integrity-verified upgrades for installed security controls",
			HomeDir:        ".security-controls",
			ControlsDir:    ".security-controls",
			EnvPrefix:      "SECURITY_CONTROLS",
			GitHubRepo:     "h4x0r/1-click-github-sec",
			SourceURI:      "github.com/h4x0r/1-click-github-sec",
			InstallerAsset: "install-security-controls.sh",
		}
		_ = yaml.Unmarshal(rawBranding, &defaults)
	})
}

// CLIName returns the root command name (e.g., "security-controls").
func CLIName() string { load(); return defaults.CLIName }

// DisplayName returns the human-readable product name.
func DisplayName() string { load(); return defaults.DisplayName }

// Description returns the short product description.
func Description() string { load(); return defaults.Description }

// HomeDir returns the dot-directory name under $HOME holding user config.
func HomeDir() string { load(); return defaults.HomeDir }

// ControlsDir returns the project-relative directory the installer owns
// (version marker, manifest, backups, helper binaries).
func ControlsDir() string { load(); return defaults.ControlsDir }

// EnvPrefix returns the environment variable prefix (e.g., "SECURITY_CONTROLS").
func EnvPrefix() string { load(); return defaults.EnvPrefix }

// GitHubRepo returns the "owner/repo" string releases are published under.
func GitHubRepo() string { load(); return defaults.GitHubRepo }

// SourceURI returns the repository URI provenance statements must claim.
func SourceURI() string { load(); return defaults.SourceURI }

// InstallerAsset returns the release asset name of the top-level installer.
func InstallerAsset() string { load(); return defaults.InstallerAsset }

// EnvVar returns a fully qualified env var name, e.g., EnvVar("MERGETOOL") → "SECURITY_CONTROLS_MERGETOOL".
func EnvVar(suffix string) string {
	load()
	return defaults.EnvPrefix + "_" + strings.ToUpper(suffix)
}
