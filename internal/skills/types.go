// Package skills discovers skill_script tool definitions from a
// directory of YAML files and exposes each as a bounded-subprocess
// tools.Descriptor/Handler pair, per spec.md §9's "skill scripts" note:
// local tools whose handler shells out under a timeout, arguments on
// stdin as JSON, result read from stdout as JSON.
//
// Scaled down from the teacher's internal/skills (a markdown-skill-
// prompt system with git/registry sources, gating, and install hints)
// to just the slice spec.md actually names: discovery, eligibility
// gating, and subprocess execution of one tool per skill definition.
package skills

import "encoding/json"

// Requires gates a skill's eligibility on the host environment, mirrored
// from the teacher's SkillRequires (narrowed to the two checks spec.md's
// skill scripts plausibly need: an interpreter/binary on PATH, and an
// API key or similar credential in the environment).
type Requires struct {
	Bins []string `yaml:"bins,omitempty" json:"bins,omitempty"`
	Env  []string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Definition describes one skill_script tool, parsed from a single YAML
// file under the configured skills directory.
type Definition struct {
	Name             string          `yaml:"name" json:"name"`
	Description      string          `yaml:"description" json:"description"`
	Command          string          `yaml:"command" json:"command"`
	Args             []string        `yaml:"args,omitempty" json:"args,omitempty"`
	WorkDir          string          `yaml:"workdir,omitempty" json:"workdir,omitempty"`
	TimeoutSeconds   int             `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	ParametersSchema json.RawMessage `yaml:"parameters_schema,omitempty" json:"parameters_schema,omitempty"`
	Requires         *Requires       `yaml:"requires,omitempty" json:"requires,omitempty"`

	// Path is the file the definition was parsed from, used to resolve
	// WorkDir when it's relative and to report parse errors.
	Path string `yaml:"-" json:"-"`
}

// defaultTimeoutSeconds bounds subprocess execution when a definition
// doesn't specify timeout_seconds.
const defaultTimeoutSeconds = 30
