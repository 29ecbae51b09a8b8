package memory

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const numShards = 16

// Persister is the durable append layer beneath the in-memory indices.
// SaveInteraction failures must surface to the caller: a silently
// dropped interaction breaks recall across restarts.
type Persister interface {
	SaveInteraction(in *Interaction) error
	// UpdateFeedback attaches rating/feedback to an existing row and
	// reports whether a row matched.
	UpdateFeedback(id string, rating int, feedback string) (bool, error)
	// LoadInteractions returns all interactions in insertion order.
	LoadInteractions() ([]*Interaction, error)
	DeleteInteractionsBefore(cutoff time.Time) (int, error)
}

// RecordInput carries the caller-supplied fields of a new interaction.
type RecordInput struct {
	Query      string
	Response   string
	Provider   string
	Model      string
	TokensUsed int
	Success    bool
	Confidence float64
	Issues     []string
}

type inflight struct {
	done chan struct{}
	in   *Interaction
	err  error
}

type shard struct {
	mu       sync.RWMutex
	byNorm   map[string]*Interaction
	inflight map[string]*inflight
}

// Store is the interaction log: a durable append-only record plus an
// exact-match index keyed by normalized query text. Writes for the same
// normalized query are linearized per shard; concurrent duplicate
// records within a burst coalesce onto one interaction.
type Store struct {
	persist   Persister
	vectorize func(string) []float32

	shards [numShards]shard

	mu    sync.RWMutex
	byID  map[string]*Interaction
	order []*Interaction
}

// NewStore creates a Store, rebuilding its indices from the persister.
// vectorize computes the feature vector stored with each interaction;
// it must be deterministic.
func NewStore(persist Persister, vectorize func(string) []float32) (*Store, error) {
	s := &Store{
		persist:   persist,
		vectorize: vectorize,
		byID:      make(map[string]*Interaction),
	}
	for i := range s.shards {
		s.shards[i].byNorm = make(map[string]*Interaction)
		s.shards[i].inflight = make(map[string]*inflight)
	}

	if persist != nil {
		loaded, err := persist.LoadInteractions()
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild memory indices: %w", err)
		}
		for _, in := range loaded {
			s.insert(in)
		}
	}
	return s, nil
}

func (s *Store) shardFor(norm string) *shard {
	h := fnv.New32a()
	h.Write([]byte(norm))
	return &s.shards[h.Sum32()%numShards]
}

func (s *Store) insert(in *Interaction) {
	norm := Normalize(in.Query)
	sh := s.shardFor(norm)

	sh.mu.Lock()
	sh.byNorm[norm] = in
	sh.mu.Unlock()

	s.mu.Lock()
	s.byID[in.ID] = in
	s.order = append(s.order, in)
	s.mu.Unlock()
}

// Record persists a new interaction and indexes it for exact recall.
// If another Record for the same normalized query is already in flight,
// the call waits for it and returns its interaction instead of creating
// a duplicate. The second return value reports whether this call created
// the interaction: coalesced followers get false so that per-interaction
// side effects (similarity indexing, learning) run exactly once. The
// feature vector is computed exactly once, here.
func (s *Store) Record(ctx context.Context, input RecordInput) (*Interaction, bool, error) {
	norm := Normalize(input.Query)
	if norm == "" {
		return nil, false, ErrEmptyQuery
	}

	sh := s.shardFor(norm)
	sh.mu.Lock()
	if c, ok := sh.inflight[norm]; ok {
		sh.mu.Unlock()
		select {
		case <-c.done:
			return c.in, false, c.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	c := &inflight{done: make(chan struct{})}
	sh.inflight[norm] = c
	sh.mu.Unlock()

	in := &Interaction{
		ID:         uuid.NewString(),
		Query:      input.Query,
		Response:   input.Response,
		Provider:   input.Provider,
		Model:      input.Model,
		TokensUsed: input.TokensUsed,
		Success:    input.Success,
		Confidence: input.Confidence,
		Issues:     input.Issues,
		CreatedAt:  time.Now(),
	}
	if s.vectorize != nil {
		in.Vector = s.vectorize(input.Query)
	}

	var err error
	if s.persist != nil {
		if perr := s.persist.SaveInteraction(in); perr != nil {
			err = fmt.Errorf("failed to persist interaction: %w", perr)
		}
	}

	if err == nil {
		sh.mu.Lock()
		sh.byNorm[norm] = in
		delete(sh.inflight, norm)
		sh.mu.Unlock()

		s.mu.Lock()
		s.byID[in.ID] = in
		s.order = append(s.order, in)
		s.mu.Unlock()

		c.in = in
	} else {
		sh.mu.Lock()
		delete(sh.inflight, norm)
		sh.mu.Unlock()
		c.err = err
	}
	close(c.done)

	if err != nil {
		return nil, false, err
	}
	return in, true, nil
}

// ExactMatch returns the interaction whose normalized query equals the
// normalized form of query. A miss is a valid none result, not an error.
func (s *Store) ExactMatch(query string) (*Interaction, bool) {
	norm := Normalize(query)
	if norm == "" {
		return nil, false
	}
	sh := s.shardFor(norm)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	in, ok := sh.byNorm[norm]
	return in, ok
}

// Get returns an interaction by id.
func (s *Store) Get(id string) (*Interaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.byID[id]
	return in, ok
}

// AttachFeedback attaches a rating and feedback text to an existing
// interaction, found by id or by query text. Repeat feedback is
// last-write-wins. Returns ErrNotFound when nothing matches; a feedback
// call never creates an interaction.
func (s *Store) AttachFeedback(ref string, rating int, feedback string) (*Interaction, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}
	if strings.TrimSpace(ref) == "" {
		return nil, ErrNotFound
	}

	in, ok := s.Get(ref)
	if !ok {
		in, ok = s.ExactMatch(ref)
	}
	if !ok {
		return nil, ErrNotFound
	}

	if s.persist != nil {
		matched, err := s.persist.UpdateFeedback(in.ID, rating, feedback)
		if err != nil {
			return nil, fmt.Errorf("failed to persist feedback: %w", err)
		}
		if !matched {
			return nil, ErrNotFound
		}
	}

	// Serialize feedback writes for this interaction on its shard.
	sh := s.shardFor(Normalize(in.Query))
	sh.mu.Lock()
	in.Rating = rating
	in.Feedback = feedback
	sh.mu.Unlock()

	return in, nil
}

// All returns the interactions in insertion order.
func (s *Store) All() []*Interaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Interaction(nil), s.order...)
}

// Len returns the number of recorded interactions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// RecentContext formats the last n query/response pairs as a context
// block for prompt assembly.
func (s *Store) RecentContext(n int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.order) - n
	if start < 0 {
		start = 0
	}
	var sb strings.Builder
	for i, in := range s.order[start:] {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Q: ")
		sb.WriteString(in.Query)
		sb.WriteString("\nA: ")
		sb.WriteString(in.Response)
	}
	return sb.String()
}

// PruneOlderThan removes interactions created before cutoff from the
// durable log and all indices, returning how many were removed.
func (s *Store) PruneOlderThan(cutoff time.Time) (int, error) {
	if s.persist != nil {
		if _, err := s.persist.DeleteInteractionsBefore(cutoff); err != nil {
			return 0, fmt.Errorf("failed to prune interactions: %w", err)
		}
	}

	s.mu.Lock()
	kept := s.order[:0]
	var dropped []*Interaction
	for _, in := range s.order {
		if in.CreatedAt.Before(cutoff) {
			dropped = append(dropped, in)
			delete(s.byID, in.ID)
		} else {
			kept = append(kept, in)
		}
	}
	s.order = kept
	s.mu.Unlock()

	for _, in := range dropped {
		norm := Normalize(in.Query)
		sh := s.shardFor(norm)
		sh.mu.Lock()
		if cur, ok := sh.byNorm[norm]; ok && cur.ID == in.ID {
			delete(sh.byNorm, norm)
		}
		sh.mu.Unlock()
	}
	return len(dropped), nil
}
