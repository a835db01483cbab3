package manifest

import (
	_ "embed"
	"fmt"

	"github.com/h4x0r/1-click-github-sec/internal/schema"
	"go.yaml.in/yaml/v3"
)

//go:embed schema/manifest.schema.json
var schemaBytes []byte

var manifestSchema = schema.NewLazy("manifest.schema.json", schemaBytes)

// Validate validates raw manifest YAML against the embedded JSON schema.
// The error return is for malformed YAML or schema compilation failures;
// schema violations are reported in the result.
func Validate(data []byte) (*schema.Result, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return manifestSchema.ValidateValue(raw)
}
