package skills

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseFile decodes one skill definition file and fills in its Path and
// timeout default.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skills: read %s: %w", path, err)
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("skills: parse %s: %w", path, err)
	}

	if def.Name == "" {
		return nil, fmt.Errorf("skills: %s: name is required", path)
	}
	if def.Command == "" {
		return nil, fmt.Errorf("skills: %s: command is required", path)
	}
	if def.TimeoutSeconds <= 0 {
		def.TimeoutSeconds = defaultTimeoutSeconds
	}
	if len(def.ParametersSchema) == 0 {
		def.ParametersSchema = json.RawMessage(`{"type":"object"}`)
	}
	def.Path = path
	return &def, nil
}
