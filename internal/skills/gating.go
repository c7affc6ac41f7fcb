package skills

import (
	"os"
	"os/exec"
)

// GatingContext caches PATH and environment lookups across eligibility
// checks for many definitions, mirrored from the teacher's GatingContext
// narrowed to the two checks Requires exposes.
type GatingContext struct {
	pathBins map[string]bool
	envVars  map[string]bool
}

// NewGatingContext builds a GatingContext against the current process
// environment.
func NewGatingContext() *GatingContext {
	return &GatingContext{
		pathBins: make(map[string]bool),
		envVars:  make(map[string]bool),
	}
}

func (c *GatingContext) checkBinary(name string) bool {
	if result, ok := c.pathBins[name]; ok {
		return result
	}
	_, err := exec.LookPath(name)
	result := err == nil
	c.pathBins[name] = result
	return result
}

func (c *GatingContext) checkEnv(name string) bool {
	if result, ok := c.envVars[name]; ok {
		return result
	}
	_, exists := os.LookupEnv(name)
	c.envVars[name] = exists
	return exists
}

// Eligible reports whether def's Requires are satisfied, and if not, why.
func (c *GatingContext) Eligible(def *Definition) (bool, string) {
	if def.Requires == nil {
		return true, ""
	}
	for _, bin := range def.Requires.Bins {
		if !c.checkBinary(bin) {
			return false, "missing required binary: " + bin
		}
	}
	for _, env := range def.Requires.Env {
		if !c.checkEnv(env) {
			return false, "missing environment variable: " + env
		}
	}
	return true, ""
}

// FilterEligible returns only the definitions whose Requires are satisfied.
func FilterEligible(defs []*Definition, ctx *GatingContext) []*Definition {
	var eligible []*Definition
	for _, def := range defs {
		if ok, _ := ctx.Eligible(def); ok {
			eligible = append(eligible, def)
		}
	}
	return eligible
}
