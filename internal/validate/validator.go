// Package validate scores candidate responses for trustworthiness before
// they are stored or returned. Validation is advisory: low-confidence
// responses are flagged, never rejected.
package validate

import (
	"strings"

	"github.com/felixgeelhaar/mnemo/internal/similarity"
)

// Issue identifies a detected problem with a response.
type Issue string

const (
	IssueUncertainty   Issue = "uncertainty_markers"
	IssueTooShort      Issue = "response_too_short"
	IssueOffTopic      Issue = "response_may_not_address_query"
	IssueContradiction Issue = "potential_contradiction"
	IssueContextUnused Issue = "context_not_utilized"
)

// hedges are phrases that signal the model is guessing.
var hedges = []string{
	"i think", "probably", "maybe", "might be",
	"i'm not sure", "could be", "possibly",
	"as far as i know", "to my knowledge",
	"i believe", "i assume",
}

// contradictionPairs are opposing terms that, appearing close together,
// suggest the response contradicts itself.
var contradictionPairs = [][2]string{
	{"yes", "no"},
	{"true", "false"},
	{"always", "never"},
	{"all", "none"},
	{"correct", "incorrect"},
}

// Config holds the signal weights. Each weight is subtracted from the
// starting confidence of 1.0 when its signal fires; the result is
// clamped to [0,1]. The weighting is a replaceable policy, not a fixed
// formula.
type Config struct {
	UncertaintyWeight   float64 `yaml:"uncertainty_weight" json:"uncertainty_weight"`
	ShortWeight         float64 `yaml:"short_weight" json:"short_weight"`
	OffTopicWeight      float64 `yaml:"off_topic_weight" json:"off_topic_weight"`
	ContradictionWeight float64 `yaml:"contradiction_weight" json:"contradiction_weight"`
	ContextWeight       float64 `yaml:"context_weight" json:"context_weight"`

	// ConfidenceFloor is the advisory low-confidence threshold.
	ConfidenceFloor float64 `yaml:"confidence_floor" json:"confidence_floor"`
}

// DefaultConfig provides the default signal weights.
func DefaultConfig() Config {
	return Config{
		UncertaintyWeight:   0.1,
		ShortWeight:         0.2,
		OffTopicWeight:      0.3,
		ContradictionWeight: 0.4,
		ContextWeight:       0.1,
		ConfidenceFloor:     0.5,
	}
}

// Result is the outcome of scoring one response.
type Result struct {
	Confidence        float64  `json:"confidence"`
	Issues            []Issue  `json:"issues,omitempty"`
	Suggestions       []string `json:"suggestions,omitempty"`
	LowConfidence     bool     `json:"low_confidence"`
	HallucinationRisk bool     `json:"hallucination_risk"`
}

// IssueStrings returns the issues as plain strings for storage.
func (r Result) IssueStrings() []string {
	out := make([]string, len(r.Issues))
	for i, iss := range r.Issues {
		out[i] = string(iss)
	}
	return out
}

// Validator applies the heuristic signals.
type Validator struct {
	cfg Config
}

// New creates a Validator with the given config; zero-valued weights
// fall back to defaults.
func New(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.UncertaintyWeight <= 0 {
		cfg.UncertaintyWeight = def.UncertaintyWeight
	}
	if cfg.ShortWeight <= 0 {
		cfg.ShortWeight = def.ShortWeight
	}
	if cfg.OffTopicWeight <= 0 {
		cfg.OffTopicWeight = def.OffTopicWeight
	}
	if cfg.ContradictionWeight <= 0 {
		cfg.ContradictionWeight = def.ContradictionWeight
	}
	if cfg.ContextWeight <= 0 {
		cfg.ContextWeight = def.ContextWeight
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	return &Validator{cfg: cfg}
}

// Score evaluates a response against its query. contextUsed indicates
// that retrieved context was supplied to the responder; if so, the
// response is expected to show lexical overlap with the query domain.
// Each detected issue lowers confidence monotonically.
func (v *Validator) Score(query, response string, contextUsed bool) Result {
	res := Result{Confidence: 1.0}
	responseLower := strings.ToLower(response)

	// 1. Uncertainty markers.
	hedgeCount := 0
	for _, h := range hedges {
		hedgeCount += strings.Count(responseLower, h)
	}
	if hedgeCount > 0 {
		res.Issues = append(res.Issues, IssueUncertainty)
		res.Confidence -= v.cfg.UncertaintyWeight * float64(hedgeCount)
		res.Suggestions = append(res.Suggestions, "Provide more factual, confident responses")
	}
	res.HallucinationRisk = hedgeCount > 2

	// 2. Length relative to query complexity.
	if len(response) < minResponseLen(query) {
		res.Issues = append(res.Issues, IssueTooShort)
		res.Confidence -= v.cfg.ShortWeight
		res.Suggestions = append(res.Suggestions, "Provide more detailed explanation")
	}

	// 3. Lexical overlap with the query.
	queryTokens := similarity.Tokenize(query)
	if len(queryTokens) > 0 {
		responseTokens := make(map[string]struct{})
		for _, tok := range similarity.Tokenize(response) {
			responseTokens[tok] = struct{}{}
		}
		overlap := 0
		for _, tok := range queryTokens {
			if _, ok := responseTokens[tok]; ok {
				overlap++
			}
		}
		if float64(overlap) < float64(len(queryTokens))*0.3 {
			res.Issues = append(res.Issues, IssueOffTopic)
			res.Confidence -= v.cfg.OffTopicWeight
			res.Suggestions = append(res.Suggestions, "Ensure response directly answers the question")
		}

		// 4. Unused context: context was supplied yet the response shows
		// no lexical connection to the query at all.
		if contextUsed && overlap == 0 {
			res.Issues = append(res.Issues, IssueContextUnused)
			res.Confidence -= v.cfg.ContextWeight
			res.Suggestions = append(res.Suggestions, "Incorporate provided context")
		}
	}

	// 5. Self-contradiction.
	if detectContradiction(responseLower) {
		res.Issues = append(res.Issues, IssueContradiction)
		res.Confidence -= v.cfg.ContradictionWeight
		res.Suggestions = append(res.Suggestions, "Review response for consistency")
	}

	if res.Confidence < 0 {
		res.Confidence = 0
	}
	if res.Confidence > 1 {
		res.Confidence = 1
	}
	res.LowConfidence = res.Confidence < v.cfg.ConfidenceFloor
	return res
}

// Floor returns the configured low-confidence threshold.
func (v *Validator) Floor() float64 {
	return v.cfg.ConfidenceFloor
}

// minResponseLen scales the expected response length with query
// complexity: terse answers to involved questions are suspect.
func minResponseLen(query string) int {
	return 25 * EstimateComplexity(query)
}

// EstimateComplexity rates a query from 1 (trivial) to 10 (involved)
// based on length, question density, and explicit complexity cues.
func EstimateComplexity(query string) int {
	lengthScore := len(query) / 50
	if lengthScore > 5 {
		lengthScore = 5
	}
	questions := strings.Count(query, "?")

	queryLower := strings.ToLower(query)
	cues := 0
	for _, word := range []string{"complex", "advanced", "detailed", "comprehensive"} {
		if strings.Contains(queryLower, word) {
			cues++
		}
	}

	complexity := lengthScore + questions + cues
	if complexity < 1 {
		complexity = 1
	}
	if complexity > 10 {
		complexity = 10
	}
	return complexity
}

// detectContradiction reports whether opposing terms appear within 100
// characters of each other.
func detectContradiction(textLower string) bool {
	for _, pair := range contradictionPairs {
		p1 := indexWord(textLower, pair[0])
		p2 := indexWord(textLower, pair[1])
		if p1 < 0 || p2 < 0 {
			continue
		}
		dist := p1 - p2
		if dist < 0 {
			dist = -dist
		}
		if dist < 100 {
			return true
		}
	}
	return false
}

// indexWord finds pos of word as a whole token, not a substring of a
// longer word ("no" must not match "normal").
func indexWord(text, word string) int {
	start := 0
	for {
		i := strings.Index(text[start:], word)
		if i < 0 {
			return -1
		}
		pos := start + i
		before := pos == 0 || !isWordChar(text[pos-1])
		afterIdx := pos + len(word)
		after := afterIdx >= len(text) || !isWordChar(text[afterIdx])
		if before && after {
			return pos
		}
		start = pos + len(word)
		if start >= len(text) {
			return -1
		}
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
