package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "agentcore.yaml", `
version: 1
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Agent.MaxSteps != 15 {
		t.Errorf("Agent.MaxSteps = %d, want 15", cfg.Agent.MaxSteps)
	}
	if cfg.Agent.ToolCallTimeoutS != 30 {
		t.Errorf("Agent.ToolCallTimeoutS = %d, want 30", cfg.Agent.ToolCallTimeoutS)
	}
	if cfg.Memory.Kind != "memkv" {
		t.Errorf("Memory.Kind = %q, want memkv", cfg.Memory.Kind)
	}
	if cfg.Context.Value != 8000 {
		t.Errorf("Context.Value = %d, want 8000", cfg.Context.Value)
	}
	if cfg.Guardrail.Sensitivity != 1.0 {
		t.Errorf("Guardrail.Sensitivity = %v, want 1.0", cfg.Guardrail.Sensitivity)
	}
}

func TestLoad_RejectsMissingVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "agentcore.yaml", `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for a config missing version")
	}
}

func TestLoad_ResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "llm.yaml", `
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: sk-test
`)
	path := writeConfigFile(t, dir, "agentcore.yaml", `
version: 1
$include: llm.yaml
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-test" {
		t.Fatalf("expected included llm config to merge in, got %+v", cfg.LLM.Providers)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_AGENTCORE_API_KEY", "sk-env-value")
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "agentcore.yaml", `
version: 1
llm:
  default_provider: anthropic
  providers:
    anthropic:
      api_key: ${TEST_AGENTCORE_API_KEY}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-env-value" {
		t.Fatalf("expected expanded env var, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}

func TestValidate_CollectsMultipleIssues(t *testing.T) {
	cfg := &Config{
		Version: CurrentVersion,
		Agent:   AgentConfig{MaxSteps: 0, RequestLimit: -1},
		Memory:  MemoryConfig{Kind: "not-a-kind"},
		Events:  EventsConfig{Kind: "memkv"},
		Store:   StoreConfig{Backend: "local"},
	}
	setDefaults(cfg)
	cfg.Agent.MaxSteps = 0
	cfg.Agent.RequestLimit = -1
	cfg.Memory.Kind = "not-a-kind"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if len(ve.Issues) < 2 {
		t.Fatalf("expected multiple collected issues, got %v", ve.Issues)
	}
}

func TestValidate_AcceptsDefaultedConfig(t *testing.T) {
	cfg := &Config{
		Version: CurrentVersion,
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			Providers:       map[string]LLMProviderConfig{"anthropic": {APIKey: "sk-test"}},
		},
	}
	setDefaults(cfg)

	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestReasoningConfig_MirrorsAgentConfig(t *testing.T) {
	agent := AgentConfig{
		MaxSteps:            5,
		ToolCallTimeoutS:    10,
		TotalTokensLimit:    1000,
		FailFast:            true,
		EnableAdvancedTools: true,
		AdvancedToolsTopK:   3,
	}
	rc := ReasoningConfig(agent)
	if rc.MaxSteps != 5 || rc.ToolCallTimeoutS != 10 || rc.TotalTokensLimit != 1000 {
		t.Fatalf("ReasoningConfig() = %+v, did not mirror agent config", rc)
	}
	if !rc.FailFast || !rc.AdvancedToolUse || rc.AdvancedToolUseTopK != 3 {
		t.Fatalf("ReasoningConfig() = %+v, boolean/topk fields did not carry over", rc)
	}
}
