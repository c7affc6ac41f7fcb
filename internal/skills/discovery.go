package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Discover walks dir for *.yaml/*.yml skill definitions and parses each,
// grounded on the teacher's LocalSource.Discover but flattened to a single
// directory (no git/registry/workspace source layering — spec.md's skill
// scripts don't need them).
func Discover(dir string) ([]*Definition, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("skills: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("skills: not a directory: %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("skills: read dir %s: %w", dir, err)
	}

	var defs []*Definition
	var errs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		def, err := ParseFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		defs = append(defs, def)
	}

	if len(errs) > 0 {
		return defs, fmt.Errorf("skills: %d definition(s) failed to parse: %s", len(errs), strings.Join(errs, "; "))
	}
	return defs, nil
}
