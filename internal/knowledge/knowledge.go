// Package knowledge stores curated, non-interaction knowledge entries,
// searchable by category, tag, and lexical overlap.
package knowledge

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/similarity"
)

var (
	// ErrEmptyID indicates an entry without a caller-supplied id.
	ErrEmptyID = errors.New("knowledge entry id cannot be empty")

	// ErrInvalidPriority indicates a priority outside 0..10.
	ErrInvalidPriority = errors.New("priority must be between 0 and 10")

	// ErrMalformedTag indicates an empty or whitespace-only tag.
	ErrMalformedTag = errors.New("tags cannot be empty strings")
)

// Entry is a curated knowledge item. The id is the sole uniqueness key:
// upserting an existing id overwrites the entry in place.
type Entry struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	Priority  int       `json:"priority"`
	CreatedAt time.Time `json:"created_at"`
}

// Query filters and ranks a knowledge search. Category and Tags filter
// exactly; Text ranks by lexical overlap.
type Query struct {
	Text        string
	Category    string
	Tags        []string
	MinPriority int
	Limit       int
}

// Persister is the durable layer beneath the in-memory index.
type Persister interface {
	UpsertKnowledge(e *Entry) error
	LoadKnowledge() ([]*Entry, error)
}

// Base is the in-memory knowledge index backed by a Persister.
// Safe for concurrent use.
type Base struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	persist Persister
}

// NewBase creates a Base and loads existing entries from the persister.
// A nil persister keeps the base purely in-memory.
func NewBase(persist Persister) (*Base, error) {
	b := &Base{
		entries: make(map[string]*Entry),
		persist: persist,
	}
	if persist != nil {
		loaded, err := persist.LoadKnowledge()
		if err != nil {
			return nil, err
		}
		for _, e := range loaded {
			b.entries[e.ID] = e
		}
	}
	return b, nil
}

// Upsert validates and stores an entry, overwriting any entry with the
// same id. No history of prior versions is retained. Validation failures
// happen before any mutation.
func (b *Base) Upsert(e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return ErrEmptyID
	}
	if e.Priority < 0 || e.Priority > 10 {
		return ErrInvalidPriority
	}
	for _, tag := range e.Tags {
		if strings.TrimSpace(tag) == "" {
			return ErrMalformedTag
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	if b.persist != nil {
		if err := b.persist.UpsertKnowledge(&e); err != nil {
			return err
		}
	}

	b.mu.Lock()
	b.entries[e.ID] = &e
	b.mu.Unlock()
	return nil
}

// Get returns the entry with the given id.
func (b *Base) Get(id string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of stored entries.
func (b *Base) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

type scored struct {
	entry *Entry
	score float64
}

// Search filters by category and tags, ranks by lexical overlap with the
// query text, then breaks ties by priority descending and recency. An
// expired context returns whatever has been ranked so far; an empty
// result is a valid outcome, not an error.
func (b *Base) Search(ctx context.Context, q Query) []Entry {
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var queryTokens []string
	if q.Text != "" {
		queryTokens = similarity.Tokenize(q.Text)
	}

	b.mu.RLock()
	candidates := make([]*Entry, 0, len(b.entries))
	for _, e := range b.entries {
		candidates = append(candidates, e)
	}
	b.mu.RUnlock()

	results := make([]scored, 0, limit)
	for i, e := range candidates {
		if i%64 == 0 && ctx.Err() != nil {
			break
		}
		if q.Category != "" && e.Category != q.Category {
			continue
		}
		if len(q.Tags) > 0 && !hasAnyTag(e, q.Tags) {
			continue
		}
		if e.Priority < q.MinPriority {
			continue
		}

		score := 0.0
		if len(queryTokens) > 0 {
			score = overlapScore(e, queryTokens)
			if score == 0 {
				continue
			}
		}
		results = append(results, scored{entry: e, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		if results[i].entry.Priority != results[j].entry.Priority {
			return results[i].entry.Priority > results[j].entry.Priority
		}
		return results[i].entry.CreatedAt.After(results[j].entry.CreatedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	out := make([]Entry, len(results))
	for i, r := range results {
		out[i] = *r.entry
	}
	return out
}

func hasAnyTag(e *Entry, tags []string) bool {
	for _, want := range tags {
		for _, have := range e.Tags {
			if strings.EqualFold(have, want) {
				return true
			}
		}
	}
	return false
}

// overlapScore counts query tokens found in the entry's title, content,
// or tags, normalized by query length.
func overlapScore(e *Entry, queryTokens []string) float64 {
	haystack := strings.ToLower(e.Title + " " + e.Content + " " + strings.Join(e.Tags, " "))
	matched := 0
	for _, tok := range queryTokens {
		if strings.Contains(haystack, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}
