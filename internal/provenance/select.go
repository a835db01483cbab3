package provenance

import (
	"fmt"
	"os/exec"
	"time"
)

// Strategy names accepted by Select.
const (
	StrategyAuto = "auto"
	StrategyTool = "slsa-verifier"
	StrategyKey  = "key"
)

// Options selects and configures a verification strategy.
type Options struct {
	Strategy        string
	ToolPath        string
	ToolTimeout     time.Duration
	PublicKeys      []string
	RequireTlog     bool
	TrustedBuilders []string
	// LookPath resolves the tool binary; defaults to exec.LookPath.
	LookPath func(string) (string, error)
	Runner   RunFunc
}

// Select picks a verifier. In auto mode the slsa-verifier binary is
// preferred, then configured public keys. When neither is available the
// returned verifier fails every request with a trust error.
func Select(opts Options) (Verifier, error) {
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	toolPath := opts.ToolPath
	if toolPath == "" {
		toolPath = "slsa-verifier"
	}

	tool := func(resolved string) Verifier {
		toolOpts := []ToolOption{WithToolTrustedBuilders(opts.TrustedBuilders)}
		if opts.ToolTimeout > 0 {
			toolOpts = append(toolOpts, WithToolTimeout(opts.ToolTimeout))
		}
		if opts.Runner != nil {
			toolOpts = append(toolOpts, WithRunner(opts.Runner))
		}
		return NewToolVerifier(resolved, toolOpts...)
	}
	key := func() (Verifier, error) {
		keys, err := LoadPublicKeys(opts.PublicKeys)
		if err != nil {
			return nil, err
		}
		return NewKeyVerifier(keys,
			WithRequireTlog(opts.RequireTlog),
			WithTrustedBuilders(opts.TrustedBuilders),
		), nil
	}

	switch opts.Strategy {
	case StrategyTool:
		resolved, err := lookPath(toolPath)
		if err != nil {
			return unavailable{reason: fmt.Sprintf("%s not found on PATH", toolPath)}, nil
		}
		return tool(resolved), nil
	case StrategyKey:
		if len(opts.PublicKeys) == 0 {
			return unavailable{reason: "no public keys configured"}, nil
		}
		return key()
	case StrategyAuto, "":
		if resolved, err := lookPath(toolPath); err == nil {
			return tool(resolved), nil
		}
		if len(opts.PublicKeys) > 0 {
			return key()
		}
		return unavailable{reason: "no verifier available"}, nil
	default:
		return nil, fmt.Errorf("unknown provenance verifier %q", opts.Strategy)
	}
}
