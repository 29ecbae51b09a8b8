package validate

import (
	"strings"
	"testing"
)

func hasIssue(issues []Issue, want Issue) bool {
	for _, iss := range issues {
		if iss == want {
			return true
		}
	}
	return false
}

func TestScore_CleanResponse(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Score(
		"What is JWT?",
		"A JWT is a compact token format consisting of a header, payload, and signature, commonly used for stateless authentication between services.",
		false,
	)

	if res.Confidence != 1.0 {
		t.Errorf("expected full confidence for clean response, got %f (issues: %v)", res.Confidence, res.Issues)
	}
	if len(res.Issues) != 0 {
		t.Errorf("expected no issues, got %v", res.Issues)
	}
	if res.LowConfidence {
		t.Error("clean response must not be flagged low confidence")
	}
}

func TestScore_UncertaintyMarkers(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Score(
		"What is JWT?",
		"I think a JWT is probably a token, but I'm not sure it is maybe used for jwt authentication.",
		false,
	)

	if !hasIssue(res.Issues, IssueUncertainty) {
		t.Fatalf("expected uncertainty issue, got %v", res.Issues)
	}
	if res.Confidence >= 1.0 {
		t.Error("expected hedging to lower confidence")
	}
	if !res.HallucinationRisk {
		t.Error("expected hallucination risk with more than two hedges")
	}
}

func TestScore_ShortResponseLowersConfidence(t *testing.T) {
	v := New(DefaultConfig())

	long := v.Score(
		"Explain the complete JWT validation process in comprehensive detail, covering signature verification, expiry handling, audience checks, and key rotation strategies?",
		"Verify the jwt signature, check expiry, validate the audience claim, and rotate signing keys on a schedule. "+strings.Repeat("Each step matters for jwt security. ", 5),
		false,
	)
	short := v.Score(
		"Explain the complete JWT validation process in comprehensive detail, covering signature verification, expiry handling, audience checks, and key rotation strategies?",
		"Check the jwt signature and expiry.",
		false,
	)

	if !hasIssue(short.Issues, IssueTooShort) {
		t.Fatalf("expected too-short issue, got %v", short.Issues)
	}
	if short.Confidence >= long.Confidence {
		t.Errorf("expected short response to score lower: %f vs %f", short.Confidence, long.Confidence)
	}
}

func TestScore_OffTopic(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Score(
		"How do I configure database connection pooling?",
		"The weather has been lovely lately, with plenty of sunshine expected through the weekend across the entire region and beyond.",
		false,
	)

	if !hasIssue(res.Issues, IssueOffTopic) {
		t.Fatalf("expected off-topic issue, got %v", res.Issues)
	}
}

func TestScore_Contradiction(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Score(
		"Is the cache always consistent?",
		"Yes, the cache is always consistent with the cache store. No, actually it is never consistent under concurrent writes to the cache.",
		false,
	)

	if !hasIssue(res.Issues, IssueContradiction) {
		t.Fatalf("expected contradiction issue, got %v", res.Issues)
	}
}

func TestScore_ContradictionIgnoresSubstrings(t *testing.T) {
	v := New(DefaultConfig())

	// "no" inside "normal" and "all" inside "allocations" must not count.
	res := v.Score(
		"Describe normal allocation behaviour in detail for me please now?",
		"Under normal conditions the runtime batches small allocations together and the allocation path stays predictable for normal workloads in every case observed.",
		false,
	)

	if hasIssue(res.Issues, IssueContradiction) {
		t.Errorf("substring matches must not trigger contradiction, got %v", res.Issues)
	}
}

func TestScore_ContextUnused(t *testing.T) {
	v := New(DefaultConfig())

	res := v.Score(
		"How do I tune kafka partitions?",
		"Try turning it off and on again, that usually helps with most things people ask about around here these days anyway.",
		true,
	)

	if !hasIssue(res.Issues, IssueContextUnused) {
		t.Fatalf("expected context-unused issue, got %v", res.Issues)
	}
}

func TestScore_MonotonicPerSignal(t *testing.T) {
	v := New(DefaultConfig())
	query := "How do I tune kafka partitions for throughput?"

	clean := v.Score(query, "Increase kafka partitions gradually and measure throughput after each change, keeping partitions balanced across brokers and sized for the consumer count.", false)
	hedged := v.Score(query, "I think you could probably increase kafka partitions gradually and measure throughput after each change, keeping partitions balanced across consumer brokers.", false)

	if hedged.Confidence >= clean.Confidence {
		t.Errorf("adding a signal must lower confidence: %f >= %f", hedged.Confidence, clean.Confidence)
	}
}

func TestScore_ConfidenceClamped(t *testing.T) {
	v := New(DefaultConfig())

	// Pile up every signal; confidence must clamp at 0, not go negative.
	res := v.Score(
		"Explain comprehensive advanced detailed complex distributed consensus protocols in depth???",
		"I think maybe yes, probably no, I assume, I believe, I'm not sure, could be, possibly.",
		true,
	)

	if res.Confidence < 0 || res.Confidence > 1 {
		t.Errorf("confidence out of bounds: %f", res.Confidence)
	}
	if !res.LowConfidence {
		t.Error("expected low-confidence flag")
	}
}

func TestEstimateComplexity(t *testing.T) {
	cases := []struct {
		query string
		min   int
		max   int
	}{
		{"hi", 1, 1},
		{"What is JWT?", 1, 2},
		{"Give me a comprehensive and detailed review of this advanced, complex distributed system design covering failure modes, scaling limits, and operational concerns?", 6, 10},
	}

	for _, tc := range cases {
		got := EstimateComplexity(tc.query)
		if got < tc.min || got > tc.max {
			t.Errorf("EstimateComplexity(%q) = %d, expected within [%d,%d]", tc.query, got, tc.min, tc.max)
		}
	}
}
