package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/h4x0r/1-click-github-sec/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Configuration keys.
const (
	KeyGitHubRepo      = "github_repo"
	KeySourceURI       = "source_uri"
	KeyMirror          = "mirror"
	KeyLogLevel        = "log_level"
	KeyMergeTool       = "mergetool"
	KeyVerifier        = "provenance.verifier"
	KeyPublicKeys      = "provenance.public_keys"
	KeyTrustedBuilders = "provenance.trusted_builders"
	KeyRequireTlog     = "provenance.require_tlog"
	KeyVerifierPath    = "provenance.verifier_path"
	KeyNetworkTimeout  = "network.timeout"
	KeyToolTimeout     = "network.tool_timeout"
	KeyRetries         = "network.retries"
)

// DefaultTrustedBuilder is the SLSA generator release workflows are built with.
const DefaultTrustedBuilder = "https://github.com/slsa-framework/slsa-github-generator/.github/workflows/generator_generic_slsa3.yml"

// Settings is the typed view of the configuration used to wire components.
type Settings struct {
	GitHubRepo      string
	SourceURI       string
	Mirror          string
	LogLevel        string
	MergeTool       string
	Verifier        string
	PublicKeys      []string
	TrustedBuilders []string
	RequireTlog     bool
	VerifierPath    string
	NetworkTimeout  time.Duration
	ToolTimeout     time.Duration
	Retries         int
}

// Dir returns the path to the user config directory (~/.security-controls/).
func Dir() string {
	if v := os.Getenv(branding.EnvVar("HOME")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// FilePath returns the full path to the config file.
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

func setDefaults() {
	viper.SetDefault(KeyGitHubRepo, branding.GitHubRepo())
	viper.SetDefault(KeySourceURI, branding.SourceURI())
	viper.SetDefault(KeyLogLevel, "warn")
	viper.SetDefault(KeyVerifier, "auto")
	viper.SetDefault(KeyTrustedBuilders, []string{DefaultTrustedBuilder})
	viper.SetDefault(KeyRequireTlog, true)
	viper.SetDefault(KeyVerifierPath, "slsa-verifier")
	viper.SetDefault(KeyNetworkTimeout, 20*time.Second)
	viper.SetDefault(KeyToolTimeout, 60*time.Second)
	viper.SetDefault(KeyRetries, 1)
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Current returns the typed settings. Load must have been called.
// The merge tool env override takes precedence over the config file.
func Current() *Settings {
	s := &Settings{
		GitHubRepo:      viper.GetString(KeyGitHubRepo),
		SourceURI:       viper.GetString(KeySourceURI),
		Mirror:          viper.GetString(KeyMirror),
		LogLevel:        viper.GetString(KeyLogLevel),
		MergeTool:       viper.GetString(KeyMergeTool),
		Verifier:        viper.GetString(KeyVerifier),
		PublicKeys:      viper.GetStringSlice(KeyPublicKeys),
		TrustedBuilders: viper.GetStringSlice(KeyTrustedBuilders),
		RequireTlog:     viper.GetBool(KeyRequireTlog),
		VerifierPath:    viper.GetString(KeyVerifierPath),
		NetworkTimeout:  viper.GetDuration(KeyNetworkTimeout),
		ToolTimeout:     viper.GetDuration(KeyToolTimeout),
		Retries:         viper.GetInt(KeyRetries),
	}
	if tool := os.Getenv(branding.EnvVar("MERGETOOL")); tool != "" {
		s.MergeTool = tool
	}
	if s.Retries < 0 {
		s.Retries = 0
	}
	return s
}
