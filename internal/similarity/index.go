package similarity

import (
	"context"
	"sort"
	"sync"

	"github.com/felixgeelhaar/mnemo/internal/memory"
)

// DefaultMinSimilarity is the threshold applied when a caller does not
// supply one. Results scoring below the threshold are excluded, not
// merely ranked low.
const DefaultMinSimilarity = 0.7

// Match pairs an interaction with its similarity score for a query.
type Match struct {
	Interaction *memory.Interaction
	Score       float64
}

// Config controls the index backend and write queue.
type Config struct {
	// Backend selects "hnsw" (default) or "linear".
	Backend string `yaml:"backend" json:"backend"`
	// QueueSize bounds the deferred-indexing queue.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
}

// DefaultConfig provides safe defaults.
func DefaultConfig() Config {
	return Config{Backend: "hnsw", QueueSize: 256}
}

// Index answers top-K similar-interaction queries. Writes are applied by
// a single indexer goroutine, so an Index call becomes visible to TopK
// within a bounded delay rather than immediately; Flush waits for the
// queue to drain.
type Index struct {
	mu      sync.RWMutex
	items   map[string]*memory.Interaction
	backend Backend

	queue   chan *memory.Interaction
	pending sync.WaitGroup
	done    chan struct{}
	once    sync.Once
}

// NewIndex creates an index and starts its indexer goroutine.
// Call Close to stop it.
func NewIndex(cfg Config) *Index {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	var backend Backend
	switch cfg.Backend {
	case "linear":
		backend = NewLinearBackend()
	default:
		backend = NewHNSWBackend()
	}

	idx := &Index{
		items:   make(map[string]*memory.Interaction),
		backend: backend,
		queue:   make(chan *memory.Interaction, cfg.QueueSize),
		done:    make(chan struct{}),
	}
	go idx.run()
	return idx
}

func (idx *Index) run() {
	for {
		select {
		case in := <-idx.queue:
			idx.apply(in)
		case <-idx.done:
			// Drain whatever is queued so Flush callers are not stranded.
			for {
				select {
				case in := <-idx.queue:
					idx.apply(in)
				default:
					return
				}
			}
		}
	}
}

func (idx *Index) apply(in *memory.Interaction) {
	idx.mu.Lock()
	idx.items[in.ID] = in
	idx.mu.Unlock()
	idx.backend.Add(in.ID, in.Vector)
	idx.pending.Done()
}

// Add enqueues an interaction for indexing. The interaction's vector
// must already be computed.
func (idx *Index) Add(in *memory.Interaction) {
	idx.pending.Add(1)
	select {
	case idx.queue <- in:
	case <-idx.done:
		idx.pending.Done()
	}
}

// Flush blocks until all enqueued interactions are searchable.
func (idx *Index) Flush() {
	idx.pending.Wait()
}

// Len returns the number of indexed interactions.
func (idx *Index) Len() int {
	return idx.backend.Len()
}

// TopK returns up to k interactions similar to query, ordered by score
// descending with ties broken by recency. Results below minSim are
// excluded; a non-positive minSim applies DefaultMinSimilarity. When the
// context deadline expires mid-ranking, whatever has been scored so far
// is returned.
func (idx *Index) TopK(ctx context.Context, query string, k int, minSim float64) []Match {
	if k <= 0 {
		return nil
	}
	if minSim <= 0 {
		minSim = DefaultMinSimilarity
	}

	vec := Vectorize(query)

	// Over-fetch so threshold filtering still leaves k results when
	// enough qualify.
	fetch := k*4 + 16
	candidates := idx.backend.Search(vec, fetch)

	matches := make([]Match, 0, k)
	for i, cand := range candidates {
		if i%32 == 0 && ctx.Err() != nil {
			break
		}
		if cand.Score < minSim {
			continue
		}
		idx.mu.RLock()
		in, ok := idx.items[cand.ID]
		idx.mu.RUnlock()
		if !ok {
			continue
		}
		matches = append(matches, Match{Interaction: in, Score: cand.Score})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Interaction.CreatedAt.After(matches[j].Interaction.CreatedAt)
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Close stops the indexer goroutine. Safe to call more than once.
func (idx *Index) Close() {
	idx.once.Do(func() { close(idx.done) })
}
