// Package guardrail implements the pre-LLM input screener: a pipeline of
// independent detectors each producing a score in [0,1] and a reason,
// reduced to a single threat score that gates whether a run proceeds to
// the LLM at all.
//
// Grounded on three teacher shapes assembled into one fresh pipeline: the
// severity/finding taxonomy from internal/security/audit.go (Finding,
// AuditSeverity), the risk-scoring/policy-decision shape of
// internal/tools/policy's trust-level comparisons generalized to a
// continuous threat score, and the typed pattern-blocking style of
// internal/net/ssrf/ip.go. Detectors run concurrently and fan-in like
// internal/agent/executor.go's ExecuteAll.
package guardrail

import (
	"context"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/haasonsaas/agentcore/internal/guardrail/detectors"
)

// Finding is one detector's verdict.
type Finding struct {
	Detector string  `json:"detector"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// Result is the outcome of screening one input.
type Result struct {
	Blocked  bool      `json:"blocked"`
	Threat   float64   `json:"threat"`
	Kind     string    `json:"kind,omitempty"`
	Findings []Finding `json:"detectors"`
}

// KindInputTooLong is the Result.Kind reported when an input is blocked
// solely for exceeding max_input_length, distinct from a generic
// pattern/heuristic block.
const KindInputTooLong = "input_too_long"

// Config configures a Guardrail pipeline, matching spec.md §6's
// guardrail_config record.
type Config struct {
	Enabled                   bool     `yaml:"enabled"`
	StrictMode                bool     `yaml:"strict_mode"`
	Sensitivity               float64  `yaml:"sensitivity"`
	MaxInputLength            int      `yaml:"max_input_length"`
	EnablePatternDetection    bool     `yaml:"enable_pattern_detection"`
	EnableHeuristicDetection  bool     `yaml:"enable_heuristic_detection"`
	EnableEncodingDetection   bool     `yaml:"enable_encoding_detection"`
	EnableEntropyDetection    bool     `yaml:"enable_entropy_detection"`
	EnableSequentialDetection bool     `yaml:"enable_sequential_detection"`
	AllowlistPatterns         []string `yaml:"allowlist_patterns"`
	BlocklistPatterns         []string `yaml:"blocklist_patterns"`
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                   true,
		StrictMode:                false,
		Sensitivity:               1.0,
		MaxInputLength:            10000,
		EnablePatternDetection:    true,
		EnableHeuristicDetection:  true,
		EnableEncodingDetection:   true,
		EnableEntropyDetection:    true,
		EnableSequentialDetection: true,
	}
}

// state is everything New derives from a Config: the compiled pattern
// lists and assembled detector set. Guardrail swaps it atomically so
// Reload can replace the pipeline without disturbing in-flight Screen
// calls or requiring callers to rebuild their *Guardrail pointer.
type state struct {
	cfg        Config
	allowlist  []*regexp.Regexp
	blocklist  []*regexp.Regexp
	detectorsF []detectors.Detector
}

func newState(cfg Config) (*state, error) {
	s := &state{cfg: cfg}

	for _, p := range cfg.AllowlistPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		s.allowlist = append(s.allowlist, re)
	}
	for _, p := range cfg.BlocklistPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		s.blocklist = append(s.blocklist, re)
	}

	if cfg.EnablePatternDetection {
		s.detectorsF = append(s.detectorsF, detectors.NewPatternDetector())
	}
	if cfg.EnableHeuristicDetection {
		s.detectorsF = append(s.detectorsF, detectors.NewHeuristicDetector())
	}
	if cfg.EnableEncodingDetection {
		s.detectorsF = append(s.detectorsF, detectors.NewEncodingDetector())
	}
	if cfg.EnableEntropyDetection {
		s.detectorsF = append(s.detectorsF, detectors.NewEntropyDetector())
	}
	if cfg.EnableSequentialDetection {
		s.detectorsF = append(s.detectorsF, detectors.NewSequentialDetector())
	}
	s.detectorsF = append(s.detectorsF, detectors.NewLengthDetector(cfg.MaxInputLength))

	return s, nil
}

// Guardrail screens input text before it ever reaches the LLM.
type Guardrail struct {
	current atomic.Pointer[state]
}

// New builds a Guardrail from cfg, compiling its allow/block lists and
// assembling the enabled detector set.
func New(cfg Config) (*Guardrail, error) {
	s, err := newState(cfg)
	if err != nil {
		return nil, err
	}
	g := &Guardrail{}
	g.current.Store(s)
	return g, nil
}

// Reload recompiles cfg into a fresh pipeline and swaps it in, so a
// config hot-reload takes effect for the next Screen call without
// replacing the *Guardrail instance held by the engine. In-flight
// Screen calls keep running against the state they already loaded.
func (g *Guardrail) Reload(cfg Config) error {
	s, err := newState(cfg)
	if err != nil {
		return err
	}
	g.current.Store(s)
	return nil
}

// Screen runs the detector pipeline over input and returns the aggregate
// Result. Allowlist patterns short-circuit to threat=0; blocklist
// patterns short-circuit to threat=1. Otherwise threat = max(scores) *
// sensitivity, and input is blocked when (strict_mode && threat > 0) ||
// threat > 0.5.
func (g *Guardrail) Screen(ctx context.Context, input string) Result {
	s := g.current.Load()
	if !s.cfg.Enabled {
		return Result{}
	}

	for _, re := range s.allowlist {
		if re.MatchString(input) {
			return Result{Blocked: false, Threat: 0}
		}
	}
	for _, re := range s.blocklist {
		if re.MatchString(input) {
			return Result{
				Blocked: true,
				Threat:  1,
				Findings: []Finding{{Detector: "blocklist", Score: 1, Reason: "matched blocklist pattern"}},
			}
		}
	}

	findings := runDetectors(ctx, s.detectorsF, input)

	var maxScore float64
	for _, f := range findings {
		if f.Score > maxScore {
			maxScore = f.Score
		}
	}
	threat := maxScore * s.cfg.Sensitivity
	if threat > 1 {
		threat = 1
	}

	blocked := (s.cfg.StrictMode && threat > 0) || threat > 0.5

	var kind string
	if blocked {
		for _, f := range findings {
			if f.Detector == "length" && f.Score >= maxScore {
				kind = KindInputTooLong
				break
			}
		}
	}

	return Result{Blocked: blocked, Threat: threat, Kind: kind, Findings: findings}
}

func runDetectors(ctx context.Context, detectorsF []detectors.Detector, input string) []Finding {
	findings := make([]Finding, len(detectorsF))
	var wg sync.WaitGroup
	for i, d := range detectorsF {
		wg.Add(1)
		go func(i int, d detectors.Detector) {
			defer wg.Done()
			score, reason := d.Detect(ctx, input)
			findings[i] = Finding{Detector: d.Name(), Score: score, Reason: reason}
		}(i, d)
	}
	wg.Wait()
	return findings
}

// RefusalResponse is the synthetic response returned when a blocked input
// short-circuits before any LLM call is made.
const RefusalResponse = "I can't help with that request."
