package skills

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/haasonsaas/agentcore/internal/tools"
)

func writeSkillFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write skill file: %v", err)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "echo.yaml", `
name: echo
description: echoes stdin
command: cat
`)

	def, err := ParseFile(filepath.Join(dir, "echo.yaml"))
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if def.Name != "echo" {
		t.Fatalf("Name = %q, want echo", def.Name)
	}
	if def.TimeoutSeconds != defaultTimeoutSeconds {
		t.Fatalf("TimeoutSeconds = %d, want default %d", def.TimeoutSeconds, defaultTimeoutSeconds)
	}
}

func TestParseFile_RequiresNameAndCommand(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "bad.yaml", `description: missing fields`)

	if _, err := ParseFile(filepath.Join(dir, "bad.yaml")); err == nil {
		t.Fatal("expected an error for a definition missing name and command")
	}
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "a.yaml", "name: a\ncommand: cat\n")
	writeSkillFile(t, dir, "b.yml", "name: b\ncommand: cat\n")
	writeSkillFile(t, dir, "notes.txt", "ignored")

	defs, err := Discover(dir)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("expected 2 definitions, got %d", len(defs))
	}
}

func TestDiscover_MissingDirectoryIsNotAnError(t *testing.T) {
	defs, err := Discover(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if defs != nil {
		t.Fatalf("expected no definitions, got %v", defs)
	}
}

func TestGatingContext_Eligible(t *testing.T) {
	ctx := NewGatingContext()

	tests := []struct {
		name string
		def  *Definition
		want bool
	}{
		{"no requirements", &Definition{Name: "x"}, true},
		{"bin on path", &Definition{Name: "x", Requires: &Requires{Bins: []string{"cat"}}}, true},
		{"bin missing", &Definition{Name: "x", Requires: &Requires{Bins: []string{"definitely-not-a-real-binary"}}}, false},
		{"env missing", &Definition{Name: "x", Requires: &Requires{Env: []string{"DEFINITELY_NOT_SET_XYZ"}}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason := ctx.Eligible(tt.def)
			if got != tt.want {
				t.Fatalf("Eligible() = %v (%s), want %v", got, reason, tt.want)
			}
		})
	}
}

func TestRun_ExecutesCommandAgainstStdin(t *testing.T) {
	def := &Definition{Name: "cat-tool", Command: "cat", TimeoutSeconds: 5}
	out, err := Run(context.Background(), def, []byte(`{"hello":"world"}`))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(out) != `{"hello":"world"}` {
		t.Fatalf("Run() output = %q", out)
	}
}

func TestRun_RejectsUnsafeCommand(t *testing.T) {
	def := &Definition{Name: "bad", Command: "cat; rm -rf /", TimeoutSeconds: 5}
	if _, err := Run(context.Background(), def, nil); err == nil {
		t.Fatal("expected an error for an unsafe command")
	}
}

func TestRun_TimesOut(t *testing.T) {
	def := &Definition{Name: "slow", Command: "sleep", Args: []string{"5"}, TimeoutSeconds: 1}
	if _, err := Run(context.Background(), def, nil); err == nil {
		t.Fatal("expected a timeout error")
	}
}

func TestManager_Load_RegistersEligibleSkillsOnly(t *testing.T) {
	dir := t.TempDir()
	writeSkillFile(t, dir, "ok.yaml", "name: ok\ncommand: cat\n")
	writeSkillFile(t, dir, "blocked.yaml", "name: blocked\ncommand: cat\nrequires:\n  bins:\n    - definitely-not-a-real-binary\n")

	registry := tools.New()
	mgr := New(dir, nil)
	if err := mgr.Load(context.Background(), registry); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := registry.Get("ok"); !ok {
		t.Fatal("expected eligible skill to be registered")
	}
	if _, ok := registry.Get("blocked"); ok {
		t.Fatal("expected ineligible skill to be skipped")
	}

	out, err := registry.Execute(context.Background(), "ok", json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if string(out) != `{"a":1}` {
		t.Fatalf("Execute() output = %q", out)
	}
}
