package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/haasonsaas/agentcore/internal/tools"
)

// Manager discovers skill definitions from a directory, gates them against
// the host environment, and registers one skill_script tool per eligible
// definition, grounded on the teacher's manager.go wiring discovery +
// gating + BuildSkillTools together, narrowed to a single local directory
// source and a single generic subprocess handler.
type Manager struct {
	dir    string
	logger *slog.Logger
}

// New creates a Manager that discovers skill definitions under dir.
func New(dir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{dir: dir, logger: logger.With("component", "skills")}
}

// Load discovers, gates, and registers every eligible skill definition into
// registry. Ineligible definitions are logged and skipped, not an error.
func (m *Manager) Load(ctx context.Context, registry *tools.Registry) error {
	if m.dir == "" {
		return nil
	}

	defs, err := Discover(m.dir)
	if err != nil {
		return fmt.Errorf("skills: discover: %w", err)
	}

	gate := NewGatingContext()
	for _, def := range defs {
		eligible, reason := gate.Eligible(def)
		if !eligible {
			m.logger.Info("skill not eligible", "skill", def.Name, "reason", reason)
			continue
		}

		descriptor := tools.Descriptor{
			Name:             def.Name,
			Description:      def.Description,
			ParametersSchema: def.ParametersSchema,
			Kind:             tools.KindSkillScript,
		}
		if err := registry.Register(descriptor, m.handlerFor(def)); err != nil {
			return fmt.Errorf("skills: register %s: %w", def.Name, err)
		}
	}

	return nil
}

func (m *Manager) handlerFor(def *Definition) tools.Handler {
	return func(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
		out, err := Run(ctx, def, args)
		if err != nil {
			m.logger.Warn("skill execution failed", "skill", def.Name, "error", err)
			return nil, err
		}
		if !json.Valid(out) {
			return json.Marshal(map[string]string{"output": string(out)})
		}
		return out, nil
	}
}
