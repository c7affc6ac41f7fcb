package skills

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"time"

	coreexec "github.com/haasonsaas/agentcore/internal/exec"
)

// Run shells def's command out to a bounded subprocess, per spec.md §9:
// arguments go on stdin as JSON, the result comes back from stdout as JSON.
// Grounded on the teacher's skillTool.Execute, narrowed to a single
// validated command+args invocation (no script-file or bash-wrapper mode,
// no NEXUS_*-style env injection beyond the skill's own name).
func Run(ctx context.Context, def *Definition, input []byte) ([]byte, error) {
	command, err := coreexec.SanitizeExecutableValue(def.Command)
	if err != nil {
		return nil, fmt.Errorf("skills: %s: unsafe command: %w", def.Name, err)
	}
	args, err := coreexec.SanitizeArguments(def.Args)
	if err != nil {
		return nil, fmt.Errorf("skills: %s: unsafe argument: %w", def.Name, err)
	}

	timeout := time.Duration(def.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cwd := def.WorkDir
	if cwd != "" && !filepath.IsAbs(cwd) && def.Path != "" {
		cwd = filepath.Join(filepath.Dir(def.Path), cwd)
	}

	cmd := exec.CommandContext(runCtx, command, args...)
	cmd.Dir = cwd
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("skills: %s: timed out after %s", def.Name, timeout)
		}
		return nil, fmt.Errorf("skills: %s: %w: %s", def.Name, err, stderr.String())
	}

	return stdout.Bytes(), nil
}
