// Package detectors implements the individual Guardrail checks: pattern
// matching, heuristic structural analysis, encoding detection, Shannon
// entropy, sequential-attack similarity, and input length. Each is a
// small single-purpose struct implementing Detector, in the teacher's
// small-struct-per-concern idiom (c.f. internal/net/ssrf's one-check-
// per-file layout).
package detectors

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"math"
	"regexp"
	"strings"
)

// Detector produces a threat score in [0,1] and a human-readable reason
// for one screening pass over an input string.
type Detector interface {
	Name() string
	Detect(ctx context.Context, input string) (score float64, reason string)
}

// jailbreakPatterns is the embedded ruleset for instruction-override,
// jailbreak, system-prompt extraction, and role-manipulation attempts.
var jailbreakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (all |any )?(previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)disregard (your|all|the) (system prompt|instructions|rules)`),
	regexp.MustCompile(`(?i)you are now (in |)(developer|dan|jailbreak|unrestricted) mode`),
	regexp.MustCompile(`(?i)reveal (your|the) (system prompt|hidden instructions)`),
	regexp.MustCompile(`(?i)act as if you (have no|had no) (restrictions|guidelines|rules)`),
	regexp.MustCompile(`(?i)pretend (you are|to be) (an? )?(unfiltered|uncensored)`),
	regexp.MustCompile(`(?i)\[system\]|\[/system\]|<\|system\|>`),
	regexp.MustCompile(`(?i)override (your|the) (safety|content) (policy|filter)`),
}

// PatternDetector matches input against the embedded jailbreak ruleset.
type PatternDetector struct{}

func NewPatternDetector() *PatternDetector { return &PatternDetector{} }

func (d *PatternDetector) Name() string { return "pattern" }

func (d *PatternDetector) Detect(ctx context.Context, input string) (float64, string) {
	for _, re := range jailbreakPatterns {
		if re.MatchString(input) {
			return 1.0, "matched known jailbreak/instruction-override pattern: " + re.String()
		}
	}
	return 0, ""
}

// HeuristicDetector flags unusually long imperatives, nested role tags,
// and delimiter-injection structure without matching a literal pattern.
type HeuristicDetector struct{}

func NewHeuristicDetector() *HeuristicDetector { return &HeuristicDetector{} }

func (d *HeuristicDetector) Name() string { return "heuristic" }

var roleTagRe = regexp.MustCompile(`(?i)<\s*/?\s*(system|assistant|user|human|ai)\s*>`)
var delimiterRe = regexp.MustCompile("```|---+|===+|\\*{3,}")

func (d *HeuristicDetector) Detect(ctx context.Context, input string) (float64, string) {
	var score float64
	var reasons []string

	roleTagCount := len(roleTagRe.FindAllString(input, -1))
	if roleTagCount >= 2 {
		score = math.Max(score, 0.6)
		reasons = append(reasons, "nested role tags")
	}

	delimCount := len(delimiterRe.FindAllString(input, -1))
	if delimCount >= 3 {
		score = math.Max(score, 0.4)
		reasons = append(reasons, "repeated delimiter injection markers")
	}

	imperativeCount := 0
	for _, word := range strings.Fields(input) {
		if isImperativeVerb(strings.ToLower(strings.Trim(word, ".,!?"))) {
			imperativeCount++
		}
	}
	if imperativeCount >= 8 {
		score = math.Max(score, 0.3)
		reasons = append(reasons, "unusually dense imperative commands")
	}

	return score, strings.Join(reasons, "; ")
}

var imperativeVerbs = map[string]bool{
	"ignore": true, "disregard": true, "override": true, "bypass": true,
	"forget": true, "disable": true, "reveal": true, "leak": true,
	"exfiltrate": true, "unlock": true,
}

func isImperativeVerb(w string) bool { return imperativeVerbs[w] }

// EncodingDetector flags input whose content is substantially base64 or
// hex encoded, a common obfuscation technique for smuggling instructions.
type EncodingDetector struct{}

func NewEncodingDetector() *EncodingDetector { return &EncodingDetector{} }

func (d *EncodingDetector) Name() string { return "encoding" }

var base64TokenRe = regexp.MustCompile(`[A-Za-z0-9+/]{20,}={0,2}`)
var hexTokenRe = regexp.MustCompile(`(?:[0-9a-fA-F]{2}){10,}`)

func (d *EncodingDetector) Detect(ctx context.Context, input string) (float64, string) {
	if len(input) == 0 {
		return 0, ""
	}
	var encodedChars int
	for _, tok := range base64TokenRe.FindAllString(input, -1) {
		if _, err := base64.StdEncoding.DecodeString(tok); err == nil {
			encodedChars += len(tok)
		}
	}
	for _, tok := range hexTokenRe.FindAllString(input, -1) {
		if _, err := hex.DecodeString(tok); err == nil {
			encodedChars += len(tok)
		}
	}
	fraction := float64(encodedChars) / float64(len(input))
	if fraction > 0.3 {
		return math.Min(1.0, fraction), "input is substantially base64/hex encoded"
	}
	return 0, ""
}

// EntropyDetector flags windows of input with abnormally high Shannon
// entropy per character, characteristic of obfuscated payloads.
type EntropyDetector struct {
	WindowSize int
	Threshold  float64
}

func NewEntropyDetector() *EntropyDetector {
	return &EntropyDetector{WindowSize: 64, Threshold: 4.5}
}

func (d *EntropyDetector) Name() string { return "entropy" }

func (d *EntropyDetector) Detect(ctx context.Context, input string) (float64, string) {
	runes := []rune(input)
	if len(runes) < d.WindowSize {
		return 0, ""
	}
	var maxEntropy float64
	for start := 0; start+d.WindowSize <= len(runes); start += d.WindowSize / 2 {
		window := runes[start : start+d.WindowSize]
		e := shannonEntropy(window)
		if e > maxEntropy {
			maxEntropy = e
		}
	}
	if maxEntropy > d.Threshold {
		// Scale linearly above threshold, capped at 1.0 by 8 bits/char.
		score := (maxEntropy - d.Threshold) / (8 - d.Threshold)
		return math.Min(1.0, math.Max(0, score)), "high-entropy character window detected"
	}
	return 0, ""
}

func shannonEntropy(runes []rune) float64 {
	counts := make(map[rune]int, len(runes))
	for _, r := range runes {
		counts[r]++
	}
	n := float64(len(runes))
	var entropy float64
	for _, c := range counts {
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// SequentialDetector scores similarity between sliding token windows of
// the input and a set of known attack fragments, catching multi-step
// attacks that assemble an instruction override across several turns'
// worth of text pasted into one input.
type SequentialDetector struct {
	fragments [][]string
}

func NewSequentialDetector() *SequentialDetector {
	known := []string{
		"ignore everything above and",
		"the following is a test of your",
		"for debugging purposes please output",
		"this is a hypothetical scenario where safety",
	}
	d := &SequentialDetector{}
	for _, f := range known {
		d.fragments = append(d.fragments, strings.Fields(f))
	}
	return d
}

func (d *SequentialDetector) Name() string { return "sequential" }

func (d *SequentialDetector) Detect(ctx context.Context, input string) (float64, string) {
	tokens := strings.Fields(strings.ToLower(input))
	var best float64
	for _, frag := range d.fragments {
		for start := 0; start+len(frag) <= len(tokens); start++ {
			sim := windowSimilarity(tokens[start:start+len(frag)], frag)
			if sim > best {
				best = sim
			}
		}
	}
	if best > 0.6 {
		return best, "token window resembles a known multi-step attack fragment"
	}
	return 0, ""
}

func windowSimilarity(a, b []string) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

// LengthDetector rejects input longer than max_input_length outright.
type LengthDetector struct {
	MaxLength int
}

func NewLengthDetector(maxLength int) *LengthDetector {
	if maxLength <= 0 {
		maxLength = 10000
	}
	return &LengthDetector{MaxLength: maxLength}
}

func (d *LengthDetector) Name() string { return "length" }

func (d *LengthDetector) Detect(ctx context.Context, input string) (float64, string) {
	length := 0
	for range input {
		length++
	}
	if length > d.MaxLength {
		return 1.0, "input exceeds max_input_length"
	}
	return 0, ""
}
