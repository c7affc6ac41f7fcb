// Package config loads agentcore's single configuration file into a typed
// Config, following the teacher's internal/config/loader.go pattern: one
// struct tree tagged yaml:"...", env-var override pass, a setDefaults()
// pass rather than struct-tag defaults, and a Validate() that collects
// every issue before failing.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	ctxmgr "github.com/haasonsaas/agentcore/internal/context"
	"github.com/haasonsaas/agentcore/internal/guardrail"
	"github.com/haasonsaas/agentcore/internal/mcp"
	"github.com/haasonsaas/agentcore/internal/reasoning"
	"github.com/haasonsaas/agentcore/internal/summarize"
)

// Config is the top-level configuration record, version 1 of the schema
// ValidateVersion checks.
type Config struct {
	Version int `yaml:"version"`

	Server        ServerConfig        `yaml:"server"`
	Agent         AgentConfig         `yaml:"agent"`
	Memory        MemoryConfig        `yaml:"memory"`
	Events        EventsConfig        `yaml:"events"`
	Store         StoreConfig         `yaml:"store"`
	Artifacts     ArtifactsConfig     `yaml:"artifacts"`
	Guardrail     guardrail.Config    `yaml:"guardrail"`
	Context       ctxmgr.Config       `yaml:"context_management"`
	Summarize     SummarizeConfig     `yaml:"memory_summarizer"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Observability ObservabilityConfig `yaml:"observability"`
	LLM           LLMConfig           `yaml:"llm"`
	MCP           mcp.Config          `yaml:"mcp"`
	Skills        SkillsConfig        `yaml:"skills"`
}

// ServerConfig configures the cmd/agentcore serve HTTP front-end.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// AgentConfig is spec.md §6's configuration record, verbatim field-for-field:
// max_steps, tool_call_timeout_s, max_execution_time_s, request_limit,
// total_tokens_limit, plus the facade-level toggles.
type AgentConfig struct {
	MaxSteps            int    `yaml:"max_steps"`
	ToolCallTimeoutS    int    `yaml:"tool_call_timeout_s"`
	MaxExecutionTimeS   int    `yaml:"max_execution_time_s"`
	RequestLimit        int    `yaml:"request_limit"`
	TotalTokensLimit    int    `yaml:"total_tokens_limit"`
	FailFast            bool   `yaml:"fail_fast"`
	EnableAdvancedTools bool   `yaml:"enable_advanced_tool_use"`
	AdvancedToolsTopK   int    `yaml:"advanced_tool_use_top_k"`
	EnableAgentSkills   bool   `yaml:"enable_agent_skills"`
	MemoryToolBackend   string `yaml:"memory_tool_backend"`
	SystemPrompt        string `yaml:"system_prompt"`
	SubAgentMaxDepth    int    `yaml:"sub_agent_max_depth"`

	ToolOffload ToolOffloadConfig `yaml:"tool_offload"`
}

// ToolOffloadConfig mirrors spec.md §6's tool_offload record.
type ToolOffloadConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ThresholdTokens  int    `yaml:"threshold_tokens"`
	MaxPreviewTokens int    `yaml:"max_preview_tokens"`
	StorageDir       string `yaml:"storage_dir"`
}

// MemoryConfig selects and configures the MemoryRouter's KVStore backend.
type MemoryConfig struct {
	// Kind selects the backend: "memkv", "filekv", "sqlkv", or "dockv".
	Kind string `yaml:"kind"`
	DSN  string `yaml:"dsn"`
	// Driver selects the sqlkv SQL driver when Kind is "sqlkv": "postgres",
	// "sqlite", or "sqlite-cgo".
	Driver   string `yaml:"driver"`
	Database string `yaml:"database"` // dockv database name
}

// EventsConfig selects and configures the EventRouter's StreamStore backend.
type EventsConfig struct {
	Kind       string `yaml:"kind"`
	DSN        string `yaml:"dsn"`
	Driver     string `yaml:"driver"`
	Database   string `yaml:"database"`
	BufferSize int    `yaml:"buffer_size"`
}

// StoreConfig configures the ArtifactStore's backing blob tier: "local"
// (filesystem, via artifacts.LocalStore) or "s3" (via artifacts.S3Store).
type StoreConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`

	S3 S3Config `yaml:"s3"`
}

// S3Config configures artifacts.S3Store when Store.Backend is "s3".
type S3Config struct {
	Enabled  bool   `yaml:"enabled"`
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
}

// ArtifactsConfig configures the ArtifactStore's preview/offload behavior.
type ArtifactsConfig struct {
	MaxPreviewTokens int           `yaml:"max_preview_tokens"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	Retention        time.Duration `yaml:"retention"`
}

// SummarizeConfig mirrors spec.md §6's memory_config record, consumed by
// internal/summarize.
type SummarizeConfig struct {
	Mode            string `yaml:"mode"`   // "sliding_window" or "token_budget"
	Value           int    `yaml:"value"`
	Enabled         bool   `yaml:"enabled"`
	RetentionPolicy string `yaml:"retention_policy"` // "keep" or "delete"
}

// SchedulerConfig configures the Scheduler/BackgroundManager.
type SchedulerConfig struct {
	Enabled             bool `yaml:"enabled"`
	QueueSize           int  `yaml:"queue_size"`
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`
}

// ObservabilityConfig configures structured logging and tracing.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig mirrors observability.LogConfig's tagged fields.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// TracingConfig mirrors observability.TraceConfig's tagged fields.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// LLMConfig configures LLM provider selection and credentials for the
// internal/llm/{anthropic,openai,bedrock} reference adapters.
type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

// LLMProviderConfig configures one provider entry; fields not applicable
// to a given provider are ignored (e.g. Bedrock ignores APIKey/BaseURL).
type LLMProviderConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	Region       string        `yaml:"region"` // bedrock
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

// SkillsConfig configures internal/skills' directory-backed discovery.
type SkillsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"`
}

// Load reads, expands env vars in, parses, defaults, and validates the
// configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}

	if err := ValidateVersion(cfg.Version); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}

	if cfg.Agent.MaxSteps == 0 {
		cfg.Agent.MaxSteps = 15
	}
	if cfg.Agent.ToolCallTimeoutS == 0 {
		cfg.Agent.ToolCallTimeoutS = 30
	}
	if cfg.Agent.MemoryToolBackend == "" {
		cfg.Agent.MemoryToolBackend = "none"
	}
	if cfg.Agent.ToolOffload.ThresholdTokens == 0 {
		cfg.Agent.ToolOffload.ThresholdTokens = 500
	}
	if cfg.Agent.ToolOffload.MaxPreviewTokens == 0 {
		cfg.Agent.ToolOffload.MaxPreviewTokens = 150
	}
	if cfg.Agent.ToolOffload.StorageDir == "" {
		cfg.Agent.ToolOffload.StorageDir = "artifacts"
	}

	if cfg.Memory.Kind == "" {
		cfg.Memory.Kind = "memkv"
	}
	if cfg.Events.Kind == "" {
		cfg.Events.Kind = "memkv"
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 256
	}

	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "local"
	}
	if cfg.Store.Backend == "local" && cfg.Store.Path == "" {
		cfg.Store.Path = "artifacts-store"
	}
	if cfg.Artifacts.MaxPreviewTokens == 0 {
		cfg.Artifacts.MaxPreviewTokens = cfg.Agent.ToolOffload.MaxPreviewTokens
	}
	if cfg.Artifacts.Retention == 0 {
		cfg.Artifacts.Retention = 24 * time.Hour
	}
	if cfg.Artifacts.CleanupInterval == 0 {
		cfg.Artifacts.CleanupInterval = time.Hour
	}

	if cfg.Guardrail.Sensitivity == 0 {
		cfg.Guardrail.Sensitivity = 1.0
	}
	if cfg.Guardrail.MaxInputLength == 0 {
		cfg.Guardrail.MaxInputLength = 10000
	}

	if cfg.Context.Value == 0 {
		cfg.Context.Value = 8000
	}
	if cfg.Context.ThresholdPercent == 0 {
		cfg.Context.ThresholdPercent = 75
	}
	if cfg.Context.PreserveRecent == 0 {
		cfg.Context.PreserveRecent = 4
	}

	if cfg.Summarize.Mode == "" {
		cfg.Summarize.Mode = "token_budget"
	}
	if cfg.Summarize.RetentionPolicy == "" {
		cfg.Summarize.RetentionPolicy = "keep"
	}

	if cfg.Scheduler.QueueSize == 0 {
		cfg.Scheduler.QueueSize = 64
	}
	if cfg.Scheduler.ShutdownGraceSeconds == 0 {
		cfg.Scheduler.ShutdownGraceSeconds = 10
	}

	if cfg.Observability.Logging.Level == "" {
		cfg.Observability.Logging.Level = "info"
	}
	if cfg.Observability.Logging.Format == "" {
		cfg.Observability.Logging.Format = "json"
	}
	if cfg.Observability.Tracing.SamplingRate == 0 {
		cfg.Observability.Tracing.SamplingRate = 1.0
	}

	if cfg.LLM.DefaultProvider == "" {
		cfg.LLM.DefaultProvider = "anthropic"
	}

	if cfg.Skills.Directory == "" {
		cfg.Skills.Directory = "skills"
	}
}

func applyEnvOverrides(cfg *Config) {
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_HOST")); value != "" {
		cfg.Server.Host = value
	}
	if value := strings.TrimSpace(os.Getenv("AGENTCORE_HTTP_PORT")); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			cfg.Server.HTTPPort = parsed
		}
	}
	if value := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "anthropic", value)
	}
	if value := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); value != "" {
		setProviderAPIKey(cfg, "openai", value)
	}
}

func setProviderAPIKey(cfg *Config, provider, apiKey string) {
	if cfg.LLM.Providers == nil {
		cfg.LLM.Providers = map[string]LLMProviderConfig{}
	}
	entry := cfg.LLM.Providers[provider]
	entry.APIKey = apiKey
	cfg.LLM.Providers[provider] = entry
}

// ValidationError collects every issue found while validating a Config,
// rather than failing on the first one.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

// Validate checks cfg for internally-consistent values, per spec.md §6's
// documented ranges and this module's own sections.
func Validate(cfg *Config) error {
	if cfg == nil {
		return nil
	}

	var issues []string

	if cfg.Agent.MaxSteps < 1 {
		issues = append(issues, "agent.max_steps must be >= 1")
	}
	if cfg.Agent.ToolCallTimeoutS < 0 {
		issues = append(issues, "agent.tool_call_timeout_s must be >= 0")
	}
	if cfg.Agent.MaxExecutionTimeS < 0 {
		issues = append(issues, "agent.max_execution_time_s must be >= 0")
	}
	if cfg.Agent.RequestLimit < 0 {
		issues = append(issues, "agent.request_limit must be >= 0")
	}
	if cfg.Agent.TotalTokensLimit < 0 {
		issues = append(issues, "agent.total_tokens_limit must be >= 0")
	}
	if mtb := strings.ToLower(strings.TrimSpace(cfg.Agent.MemoryToolBackend)); mtb != "" && mtb != "none" && mtb != "local" {
		issues = append(issues, "agent.memory_tool_backend must be \"none\" or \"local\"")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Memory.Kind)) {
	case "memkv", "filekv", "sqlkv", "dockv":
	default:
		issues = append(issues, "memory.kind must be \"memkv\", \"filekv\", \"sqlkv\", or \"dockv\"")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Events.Kind)) {
	case "memkv", "filekv", "sqlkv", "dockv":
	default:
		issues = append(issues, "events.kind must be \"memkv\", \"filekv\", \"sqlkv\", or \"dockv\"")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Store.Backend)) {
	case "local", "s3":
	default:
		issues = append(issues, "store.backend must be \"local\" or \"s3\"")
	}

	if cfg.Guardrail.Sensitivity < 0 {
		issues = append(issues, "guardrail.sensitivity must be >= 0")
	}
	if cfg.Guardrail.MaxInputLength < 0 {
		issues = append(issues, "guardrail.max_input_length must be >= 0")
	}

	switch ctxmgr.Mode(cfg.Context.Mode) {
	case "", ctxmgr.ModeSlidingWindow, ctxmgr.ModeTokenBudget:
	default:
		issues = append(issues, "context_management.mode must be \"sliding_window\" or \"token_budget\"")
	}
	if cfg.Context.ThresholdPercent < 0 || cfg.Context.ThresholdPercent > 100 {
		issues = append(issues, "context_management.threshold_percent must be between 0 and 100")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Summarize.Mode)) {
	case "sliding_window", "token_budget":
	default:
		issues = append(issues, "memory_summarizer.mode must be \"sliding_window\" or \"token_budget\"")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Summarize.RetentionPolicy)) {
	case "keep", "delete":
	default:
		issues = append(issues, "memory_summarizer.retention_policy must be \"keep\" or \"delete\"")
	}

	defaultProvider := strings.ToLower(strings.TrimSpace(cfg.LLM.DefaultProvider))
	if defaultProvider != "" {
		if _, ok := cfg.LLM.Providers[defaultProvider]; !ok {
			if _, ok := cfg.LLM.Providers[cfg.LLM.DefaultProvider]; !ok {
				issues = append(issues, fmt.Sprintf("llm.providers missing entry for default_provider %q", cfg.LLM.DefaultProvider))
			}
		}
	}

	for _, reasoningIssue := range validateReasoningRoundTrip(cfg) {
		issues = append(issues, reasoningIssue)
	}

	if cfg.MCP.Enabled {
		seen := map[string]bool{}
		for i, server := range cfg.MCP.Servers {
			if server == nil {
				continue
			}
			if err := server.Validate(); err != nil {
				issues = append(issues, fmt.Sprintf("mcp.servers[%d]: %v", i, err))
				continue
			}
			if seen[server.ID] {
				issues = append(issues, fmt.Sprintf("mcp.servers[%d].id %q is duplicated", i, server.ID))
			}
			seen[server.ID] = true
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// validateReasoningRoundTrip confirms the Agent section maps cleanly onto
// reasoning.Config, catching drift between the two structs early.
func validateReasoningRoundTrip(cfg *Config) []string {
	var issues []string
	rc := ReasoningConfig(cfg.Agent)
	if rc.MaxSteps != cfg.Agent.MaxSteps {
		issues = append(issues, "internal inconsistency deriving reasoning.Config from agent config")
	}
	return issues
}

// SummarizerConfig derives a summarize.Config from the Summarize section.
func SummarizerConfig(cfg SummarizeConfig) summarize.Config {
	mode := summarize.ModeTokenBudget
	if strings.ToLower(strings.TrimSpace(cfg.Mode)) == string(summarize.ModeSlidingWindow) {
		mode = summarize.ModeSlidingWindow
	}
	retention := summarize.RetentionKeep
	if strings.ToLower(strings.TrimSpace(cfg.RetentionPolicy)) == string(summarize.RetentionDelete) {
		retention = summarize.RetentionDelete
	}
	return summarize.Config{
		Mode:            mode,
		Value:           cfg.Value,
		Enabled:         cfg.Enabled,
		RetentionPolicy: retention,
	}
}

// ReasoningConfig derives a reasoning.Config from the Agent section.
func ReasoningConfig(agent AgentConfig) reasoning.Config {
	return reasoning.Config{
		MaxSteps:            agent.MaxSteps,
		ToolCallTimeoutS:    agent.ToolCallTimeoutS,
		MaxExecutionTimeS:   agent.MaxExecutionTimeS,
		TotalTokensLimit:    agent.TotalTokensLimit,
		FailFast:            agent.FailFast,
		AdvancedToolUse:     agent.EnableAdvancedTools,
		AdvancedToolUseTopK: agent.AdvancedToolsTopK,
		SystemPrompt:        agent.SystemPrompt,
		SubAgentMaxDepth:    agent.SubAgentMaxDepth,
		ToolOffload: reasoning.ToolOffloadConfig{
			Enabled:          agent.ToolOffload.Enabled,
			ThresholdTokens:  agent.ToolOffload.ThresholdTokens,
			MaxPreviewTokens: agent.ToolOffload.MaxPreviewTokens,
		},
	}
}
