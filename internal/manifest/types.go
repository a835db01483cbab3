package manifest

// Role describes what a managed file is for.
type Role string

const (
	RoleBinary    Role = "binary"
	RoleHook      Role = "hook"
	RoleWorkflow  Role = "workflow"
	RoleConfig    Role = "config"
	RoleInstaller Role = "installer"
)

// ManagedFile is a path, relative to the project root, whose lifecycle the
// engine tracks. Managed files are never deleted by an upgrade.
type ManagedFile struct {
	Path string `yaml:"path" json:"path"`
	Role Role   `yaml:"role" json:"role"`
}

// Manifest is the on-disk managed-file list.
type Manifest struct {
	SchemaVersion int           `yaml:"schema_version" json:"schema_version"`
	Files         []ManagedFile `yaml:"files" json:"files"`
}

// DefaultFiles is the managed set laid down by the installer when no
// manifest file has been recorded.
func DefaultFiles() []ManagedFile {
	return []ManagedFile{
		{Path: ".security-controls/bin/pinactlite", Role: RoleBinary},
		{Path: ".security-controls/bin/gitleakslite", Role: RoleBinary},
		{Path: ".git/hooks/pre-push", Role: RoleHook},
		{Path: ".github/workflows/pinning-validation.yml", Role: RoleWorkflow},
	}
}

// RoleForPath guesses the role of a path that arrives with a new release
// but is not yet in the manifest.
func RoleForPath(path string) Role {
	switch {
	case hasPrefix(path, ".git/hooks/"):
		return RoleHook
	case hasPrefix(path, ".github/workflows/"):
		return RoleWorkflow
	case hasPrefix(path, ".security-controls/bin/"):
		return RoleBinary
	default:
		return RoleConfig
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
