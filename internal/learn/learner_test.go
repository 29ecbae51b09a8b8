package learn

import (
	"fmt"
	"testing"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/memory"
)

func interaction(id, query, provider string, success bool, confidence float64) *memory.Interaction {
	return &memory.Interaction{
		ID:         id,
		Query:      query,
		Provider:   provider,
		Model:      "gpt-4",
		Success:    success,
		Confidence: confidence,
		CreatedAt:  time.Now(),
	}
}

func TestCategorize(t *testing.T) {
	cases := map[string]string{
		"Implement a function to parse YAML":   "coding",
		"Explain JWT authentication":           "explanation",
		"Fix the nil pointer error in handler": "debugging",
		"Propose an architecture for ingest":   "design",
		"Verify the migration output":          "testing",
		"random musings":                       "general",
	}
	for query, want := range cases {
		if got := Categorize(query); got != want {
			t.Errorf("Categorize(%q) = %q, expected %q", query, got, want)
		}
	}
}

func TestLearner_Counts(t *testing.T) {
	l := New(DefaultConfig())

	l.OnInteraction(interaction("i1", "explain channels", "openai", true, 0.9))
	l.OnInteraction(interaction("i2", "explain mutexes", "openai", true, 0.8))
	l.OnInteraction(interaction("i3", "fix the race error", "anthropic", false, 0.9))

	s := l.Snapshot()
	if s.TotalMemories != 3 {
		t.Errorf("expected 3 memories, got %d", s.TotalMemories)
	}
	if s.SuccessCount != 2 {
		t.Errorf("expected 2 successes, got %d", s.SuccessCount)
	}
	if want := 2.0 / 3.0; s.SuccessRate != want {
		t.Errorf("expected success rate %f, got %f", want, s.SuccessRate)
	}
	if s.TopicFrequency["explanation"] != 2 || s.TopicFrequency["debugging"] != 1 {
		t.Errorf("unexpected topic frequencies: %v", s.TopicFrequency)
	}
	if s.ProviderUsage["openai"] != 2 || s.ProviderUsage["anthropic"] != 1 {
		t.Errorf("unexpected provider usage: %v", s.ProviderUsage)
	}
}

func TestLearner_LowConfidenceGoesToMistakes(t *testing.T) {
	l := New(DefaultConfig())

	l.OnInteraction(interaction("i1", "explain sharding strategies", "openai", true, 0.3))

	s := l.Snapshot()
	if len(s.MistakePatterns) != 1 {
		t.Fatalf("expected 1 mistake entry, got %d", len(s.MistakePatterns))
	}
	e := s.MistakePatterns[0]
	if e.InteractionID != "i1" {
		t.Errorf("expected mistake to reference i1, got %q", e.InteractionID)
	}
	if e.Reason != ReasonLowConfidence {
		t.Errorf("expected low_confidence reason, got %q", e.Reason)
	}
}

func TestLearner_FeedbackRouting(t *testing.T) {
	l := New(DefaultConfig())

	in := interaction("i1", "explain generics constraints", "openai", true, 0.9)
	l.OnInteraction(in)

	l.OnFeedback(in, 2)
	l.OnFeedback(in, 5)
	l.OnFeedback(in, 3) // neutral: neither list

	s := l.Snapshot()
	if s.FeedbackCount != 3 {
		t.Errorf("expected 3 feedback events, got %d", s.FeedbackCount)
	}
	if len(s.MistakePatterns) != 1 {
		t.Errorf("expected 1 mistake entry, got %d", len(s.MistakePatterns))
	}
	if len(s.SuccessPatterns) != 1 {
		t.Errorf("expected 1 success entry, got %d", len(s.SuccessPatterns))
	}
	if s.MistakePatterns[0].Rating != 2 || s.SuccessPatterns[0].Rating != 5 {
		t.Error("pattern entries carry the triggering rating")
	}
	// Feedback never changes the memory count.
	if s.TotalMemories != 1 {
		t.Errorf("feedback must not change total memories, got %d", s.TotalMemories)
	}
}

func TestLearner_PatternCapEvictsOldest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PatternCap = 5
	l := New(cfg)

	for i := 0; i < 8; i++ {
		in := interaction(fmt.Sprintf("i%d", i), fmt.Sprintf("broken widget number %d", i), "openai", true, 0.9)
		l.OnInteraction(in)
		l.OnFeedback(in, 1)
	}

	s := l.Snapshot()
	if len(s.MistakePatterns) != 5 {
		t.Fatalf("expected capped list of 5, got %d", len(s.MistakePatterns))
	}
	if s.MistakePatterns[0].InteractionID != "i3" {
		t.Errorf("expected oldest entries evicted, first is %q", s.MistakePatterns[0].InteractionID)
	}
}

func TestLearner_QualityTrend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 3
	l := New(cfg)

	in := interaction("i1", "some query", "openai", true, 0.9)

	t.Run("improving", func(t *testing.T) {
		for _, r := range []int{2, 2, 2, 5, 5, 5} {
			l.OnFeedback(in, r)
		}
		s := l.Snapshot()
		if s.QualityTrend.Trend != TrendImproving {
			t.Errorf("expected improving trend, got %q (%+v)", s.QualityTrend.Trend, s.QualityTrend)
		}
	})

	t.Run("declining", func(t *testing.T) {
		for _, r := range []int{1, 1, 1} {
			l.OnFeedback(in, r)
		}
		s := l.Snapshot()
		if s.QualityTrend.Trend != TrendDeclining {
			t.Errorf("expected declining trend, got %q (%+v)", s.QualityTrend.Trend, s.QualityTrend)
		}
	})
}

func TestLearner_QualityTrendStableWithinEpsilon(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WindowSize = 2
	l := New(cfg)

	in := interaction("i1", "some query", "openai", true, 0.9)
	for _, r := range []int{4, 4, 4, 4} {
		l.OnFeedback(in, r)
	}

	s := l.Snapshot()
	if s.QualityTrend.Trend != TrendStable {
		t.Errorf("expected stable trend for flat ratings, got %q", s.QualityTrend.Trend)
	}
}

func TestLearner_Suggestions(t *testing.T) {
	l := New(DefaultConfig())

	in := interaction("i1", "deploy kubernetes ingress controller", "openai", true, 0.9)
	l.OnInteraction(in)
	for i := 0; i < 3; i++ {
		l.OnFeedback(in, 1)
	}

	suggestions := l.Suggestions("how do I deploy kubernetes operators")
	if len(suggestions) == 0 {
		t.Fatal("expected a caution suggestion for repeated kubernetes mistakes")
	}

	if got := l.Suggestions("sourdough starter hydration"); len(got) != 0 {
		t.Errorf("expected no suggestions for unrelated query, got %v", got)
	}
}

func TestLearner_RecommendProvider(t *testing.T) {
	l := New(DefaultConfig())

	if got := l.RecommendProvider("coding"); got != "deepseek" {
		t.Errorf("expected static default 'deepseek' with no history, got %q", got)
	}

	for i := 0; i < 3; i++ {
		l.OnInteraction(interaction(fmt.Sprintf("i%d", i), "implement a parser function", "anthropic", true, 0.9))
	}
	l.OnInteraction(interaction("ix", "implement a lexer function", "openai", true, 0.9))

	if got := l.RecommendProvider("coding"); got != "anthropic" {
		t.Errorf("expected usage-based recommendation 'anthropic', got %q", got)
	}
}

func TestLearner_ReplayReproducesCounts(t *testing.T) {
	build := func() *Learner {
		l := New(DefaultConfig())
		for i := 0; i < 20; i++ {
			in := interaction(fmt.Sprintf("i%d", i), fmt.Sprintf("explain topic %d", i), "openai", i%3 != 0, 0.8)
			l.OnInteraction(in)
			if i%4 == 0 {
				l.OnFeedback(in, 5)
			}
		}
		return l
	}

	a, b := build().Snapshot(), build().Snapshot()
	if a.TotalMemories != b.TotalMemories || a.SuccessCount != b.SuccessCount || a.FeedbackCount != b.FeedbackCount {
		t.Errorf("replay mismatch: %+v vs %+v", a, b)
	}
	if a.SuccessRate != b.SuccessRate {
		t.Errorf("replay success rate mismatch: %f vs %f", a.SuccessRate, b.SuccessRate)
	}
}
