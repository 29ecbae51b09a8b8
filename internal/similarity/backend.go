package similarity

import (
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// Candidate is a backend search result before threshold filtering.
type Candidate struct {
	ID    string
	Score float64
}

// Backend is the swappable nearest-neighbor structure underneath the
// index. Implementations must be safe for concurrent use.
type Backend interface {
	// Add inserts or replaces the vector stored under id.
	Add(id string, vec []float32)
	// Search returns up to k candidates scored by cosine similarity,
	// unordered; the index handles ranking and tie-breaks.
	Search(vec []float32, k int) []Candidate
	// Len returns the number of indexed vectors.
	Len() int
}

// linearBackend is the naive O(n) scan fallback. Acceptable for small
// corpora; larger corpora should use the HNSW backend.
type linearBackend struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

// NewLinearBackend creates the brute-force scan backend.
func NewLinearBackend() Backend {
	return &linearBackend{vectors: make(map[string][]float32)}
}

func (b *linearBackend) Add(id string, vec []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vectors[id] = vec
}

func (b *linearBackend) Search(vec []float32, k int) []Candidate {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Candidate, 0, k)
	for id, stored := range b.vectors {
		score := Cosine(vec, stored)
		if score <= 0 {
			continue
		}
		out = append(out, Candidate{ID: id, Score: score})
	}
	if len(out) > k {
		sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
		out = out[:k]
	}
	return out
}

func (b *linearBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.vectors)
}

// hnswBackend wraps a coder/hnsw graph for sublinear approximate search.
type hnswBackend struct {
	mu      sync.Mutex
	graph   *hnsw.Graph[string]
	vectors map[string][]float32
}

// NewHNSWBackend creates the approximate-nearest-neighbor backend.
func NewHNSWBackend() Backend {
	return &hnswBackend{
		graph:   hnsw.NewGraph[string](),
		vectors: make(map[string][]float32),
	}
}

func (b *hnswBackend) Add(id string, vec []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// graph.Add panics on a duplicate key, so only insert new ids into
	// the graph. Re-adds still replace the scoring vector below.
	if _, exists := b.vectors[id]; !exists {
		b.graph.Add(hnsw.MakeNode(id, vec))
	}
	b.vectors[id] = vec
}

func (b *hnswBackend) Search(vec []float32, k int) []Candidate {
	b.mu.Lock()
	defer b.mu.Unlock()

	neighbors := b.graph.Search(vec, k)
	out := make([]Candidate, 0, len(neighbors))
	for _, node := range neighbors {
		// Score from the stored vector so the reported similarity is
		// exact cosine even though the neighbor set is approximate.
		stored, ok := b.vectors[node.Key]
		if !ok {
			continue
		}
		out = append(out, Candidate{ID: node.Key, Score: Cosine(vec, stored)})
	}
	return out
}

func (b *hnswBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.vectors)
}
