package similarity

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/mnemo/internal/memory"
)

func makeInteraction(query string, createdAt time.Time) *memory.Interaction {
	return &memory.Interaction{
		ID:        uuid.NewString(),
		Query:     query,
		Response:  "response for " + query,
		CreatedAt: createdAt,
		Vector:    Vectorize(query),
	}
}

func TestTokenize(t *testing.T) {
	tokens := Tokenize("What is JWT authentication?")
	want := []string{"jwt", "authentication"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i, tok := range want {
		if tokens[i] != tok {
			t.Errorf("token %d: expected %q, got %q", i, tok, tokens[i])
		}
	}
}

func TestVectorize_Deterministic(t *testing.T) {
	a := Vectorize("explain goroutine scheduling in Go")
	b := Vectorize("explain goroutine scheduling in Go")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %f vs %f", i, a[i], b[i])
		}
	}
	if got := Cosine(a, b); got < 0.999 {
		t.Errorf("expected self-similarity ~1.0, got %f", got)
	}
}

func TestCosine_Bounds(t *testing.T) {
	a := Vectorize("kubernetes pod networking")
	b := Vectorize("sourdough bread recipe")
	score := Cosine(a, b)
	if score < 0 || score > 1 {
		t.Errorf("expected score in [0,1], got %f", score)
	}

	if got := Cosine(a, nil); got != 0 {
		t.Errorf("expected 0 for mismatched dims, got %f", got)
	}
}

func TestIndex_TopK(t *testing.T) {
	for _, backend := range []string{"hnsw", "linear"} {
		t.Run(backend, func(t *testing.T) {
			idx := NewIndex(Config{Backend: backend})
			defer idx.Close()

			now := time.Now()
			idx.Add(makeInteraction("What is JWT?", now.Add(-2*time.Hour)))
			idx.Add(makeInteraction("How do goroutines work?", now.Add(-time.Hour)))
			idx.Add(makeInteraction("Best pizza toppings", now))
			idx.Flush()

			matches := idx.TopK(context.Background(), "Explain JWT authentication", 5, 0.3)
			if len(matches) == 0 {
				t.Fatal("expected at least one match for JWT query")
			}
			if matches[0].Interaction.Query != "What is JWT?" {
				t.Errorf("expected JWT interaction first, got %q", matches[0].Interaction.Query)
			}
			if matches[0].Score < 0.3 {
				t.Errorf("expected score >= 0.3, got %f", matches[0].Score)
			}
			for _, m := range matches {
				if m.Score < 0.3 {
					t.Errorf("match %q below threshold: %f", m.Interaction.Query, m.Score)
				}
			}
		})
	}
}

func TestIndex_TopK_LimitAndThreshold(t *testing.T) {
	idx := NewIndex(Config{Backend: "linear"})
	defer idx.Close()

	now := time.Now()
	for i := 0; i < 10; i++ {
		idx.Add(makeInteraction(fmt.Sprintf("deploy service revision %d", i), now.Add(time.Duration(i)*time.Second)))
	}
	idx.Flush()

	matches := idx.TopK(context.Background(), "deploy service revision", 3, 0.5)
	if len(matches) > 3 {
		t.Errorf("expected at most 3 matches, got %d", len(matches))
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Score > matches[i-1].Score {
			t.Error("matches not ordered by descending score")
		}
	}
}

func TestIndex_TiesBrokenByRecency(t *testing.T) {
	idx := NewIndex(Config{Backend: "linear"})
	defer idx.Close()

	old := makeInteraction("rotate tls certificates", time.Now().Add(-time.Hour))
	fresh := makeInteraction("rotate tls certificates", time.Now())
	idx.Add(old)
	idx.Add(fresh)
	idx.Flush()

	matches := idx.TopK(context.Background(), "rotate tls certificates", 2, 0.5)
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Interaction.ID != fresh.ID {
		t.Error("expected most recent interaction first on score tie")
	}
}

func TestIndex_DefaultThresholdExcludesWeakMatches(t *testing.T) {
	idx := NewIndex(Config{Backend: "linear"})
	defer idx.Close()

	idx.Add(makeInteraction("What is JWT?", time.Now()))
	idx.Flush()

	// Single shared token out of three: cosine well below the 0.7 default.
	matches := idx.TopK(context.Background(), "Explain JWT authentication flows", 5, 0)
	for _, m := range matches {
		if m.Score < DefaultMinSimilarity {
			t.Errorf("default threshold leaked weak match with score %f", m.Score)
		}
	}
}

func TestIndex_CanceledContextReturnsPartial(t *testing.T) {
	idx := NewIndex(Config{Backend: "linear"})
	defer idx.Close()

	for i := 0; i < 50; i++ {
		idx.Add(makeInteraction(fmt.Sprintf("query variant %d", i), time.Now()))
	}
	idx.Flush()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Must not panic or error; partial (possibly empty) results are fine.
	matches := idx.TopK(ctx, "query variant", 10, 0.1)
	if len(matches) > 10 {
		t.Errorf("expected at most 10 matches, got %d", len(matches))
	}
}

func TestIndex_EventualVisibility(t *testing.T) {
	idx := NewIndex(Config{Backend: "hnsw"})
	defer idx.Close()

	idx.Add(makeInteraction("incremental reindexing behaviour", time.Now()))
	idx.Flush()

	if idx.Len() != 1 {
		t.Fatalf("expected 1 indexed interaction after Flush, got %d", idx.Len())
	}
	matches := idx.TopK(context.Background(), "incremental reindexing behaviour", 1, 0.5)
	if len(matches) != 1 {
		t.Fatalf("expected indexed interaction to be searchable, got %d matches", len(matches))
	}
}

func TestBackend_ReAddSameID(t *testing.T) {
	for name, backend := range map[string]Backend{
		"hnsw":   NewHNSWBackend(),
		"linear": NewLinearBackend(),
	} {
		t.Run(name, func(t *testing.T) {
			vec := Vectorize("duplicate record burst")
			backend.Add("same-id", vec)
			backend.Add("same-id", vec)

			if backend.Len() != 1 {
				t.Errorf("expected 1 stored vector after re-add, got %d", backend.Len())
			}
			got := backend.Search(vec, 5)
			if len(got) != 1 {
				t.Fatalf("expected 1 candidate, got %d", len(got))
			}
			if got[0].ID != "same-id" || got[0].Score < 0.99 {
				t.Errorf("unexpected candidate %+v", got[0])
			}
		})
	}
}

func TestLinearBackend_SearchHonorsK(t *testing.T) {
	b := NewLinearBackend()
	query := Vectorize("deploy service revision")
	for i := 0; i < 8; i++ {
		b.Add(fmt.Sprintf("id-%d", i), Vectorize(fmt.Sprintf("deploy service revision %d", i)))
	}

	got := b.Search(query, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	for _, c := range got {
		if c.Score <= 0 {
			t.Errorf("candidate %s has non-positive score %f", c.ID, c.Score)
		}
	}
}
