// Package engine is the orchestration façade over the interaction
// memory core. A caller submits a query through Process; the engine
// consults the exact-match index, merges similar past interactions and
// knowledge hits into context, and returns advisory suggestions. Once
// the caller has a response, Record persists and indexes it and folds
// it into the learned state.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/cache"
	"github.com/felixgeelhaar/mnemo/internal/knowledge"
	"github.com/felixgeelhaar/mnemo/internal/learn"
	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/observe"
	"github.com/felixgeelhaar/mnemo/internal/similarity"
	"github.com/felixgeelhaar/mnemo/internal/store"
	"github.com/felixgeelhaar/mnemo/internal/validate"
)

// Options is the closed set of process flags. Unknown options cannot be
// expressed: callers use this struct, not a free-form map.
type Options struct {
	// UseOptimization enables context assembly and token-saving
	// estimates.
	UseOptimization bool `json:"use_optimization"`
	// UseKnowledge merges knowledge-base hits into context.
	UseKnowledge bool `json:"use_knowledge"`
}

// DefaultOptions enables everything.
func DefaultOptions() *Options {
	return &Options{UseOptimization: true, UseKnowledge: true}
}

// Request is a process call. A nil Options applies DefaultOptions.
type Request struct {
	Query    string   `json:"query"`
	Provider string   `json:"provider"`
	Model    string   `json:"model"`
	Options  *Options `json:"options,omitempty"`
}

// Similar is one related prior interaction surfaced by Process.
type Similar struct {
	Query    string  `json:"query"`
	Response string  `json:"response"`
	Score    float64 `json:"score"`
}

// Result is the outcome of a process call.
type Result struct {
	FromMemory     bool          `json:"from_memory"`
	Response       string        `json:"response,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	TokensSaved    int           `json:"tokens_saved"`
	Similar        []Similar     `json:"similar,omitempty"`
	Suggestions    []string      `json:"suggestions,omitempty"`
	Context        string        `json:"context,omitempty"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// RecordRequest carries a completed interaction for storage.
type RecordRequest struct {
	Query      string `json:"query"`
	Response   string `json:"response"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
	Success    bool   `json:"success"`
	// ContextUsed indicates retrieved context was supplied to whatever
	// produced the response; the validator penalizes ignoring it.
	ContextUsed bool `json:"context_used"`
}

// Recalled is the interaction subset returned by Recall.
type Recalled struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Provider  string    `json:"provider"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarizes engine activity.
type Stats struct {
	Total            int                `json:"total"`
	SuccessRate      float64            `json:"success_rate"`
	CacheHitRate     float64            `json:"cache_hit_rate"`
	TokensSavedTotal int                `json:"tokens_saved_total"`
	QualityTrend     learn.QualityTrend `json:"quality_trend"`
	UsageByProvider  map[string]int     `json:"usage_by_provider"`
}

// contextPacket is the cached product of context assembly for a query.
type contextPacket struct {
	similar     []Similar
	suggestions []string
	context     string
}

// Engine wires the memory core together. All methods are safe for
// concurrent use; no lock is held across a full request.
type Engine struct {
	cfg Config
	obs *observe.Observer

	storage   store.Storage
	mem       *memory.Store
	sim       *similarity.Index
	validator *validate.Validator
	learner   *learn.Learner
	kb        *knowledge.Base
	lookups   *cache.Cache[contextPacket]
	bus       *EventBus

	mu          sync.Mutex
	tokensSaved int
}

// New creates an engine over a SQLite store at cfg.DBPath, rebuilding
// all indices and the learned state from the durable log.
func New(cfg Config, obs *observe.Observer) (*Engine, error) {
	var storage store.Storage
	if cfg.DBPath != "" {
		s, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		storage = s
	}
	return NewWithStorage(cfg, obs, storage)
}

// NewWithStorage creates an engine over an existing storage layer.
// A nil storage keeps everything in memory.
func NewWithStorage(cfg Config, obs *observe.Observer, storage store.Storage) (*Engine, error) {
	cfg.applyDefaults()
	if obs == nil {
		obs = observe.Silent()
	}

	var memPersist memory.Persister
	var kbPersist knowledge.Persister
	if storage != nil {
		memPersist = storage
		kbPersist = storage
	}

	mem, err := memory.NewStore(memPersist, similarity.Vectorize)
	if err != nil {
		if storage != nil {
			storage.Close()
		}
		return nil, err
	}

	kb, err := knowledge.NewBase(kbPersist)
	if err != nil {
		if storage != nil {
			storage.Close()
		}
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		obs:       obs,
		storage:   storage,
		mem:       mem,
		sim:       similarity.NewIndex(cfg.Similarity),
		validator: validate.New(cfg.Validator),
		learner:   learn.New(cfg.Learner),
		kb:        kb,
		lookups:   cache.New[contextPacket](cfg.Cache),
		bus:       NewEventBus(),
	}

	// Replay the interaction log so the similarity index and learned
	// state match the durable record exactly.
	replayed := mem.All()
	for _, in := range replayed {
		e.sim.Add(in)
		e.learner.OnInteraction(in)
		if in.Rated() {
			e.learner.OnFeedback(in, in.Rating)
		}
	}
	e.sim.Flush()

	if len(replayed) > 0 {
		obs.Log().Info().
			Int("interactions", len(replayed)).
			Int("knowledge", kb.Len()).
			Msg("rebuilt memory indices from store")
	}
	return e, nil
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus {
	return e.bus
}

// Process is the orchestration entry point. It never blocks on network
// I/O: on an exact-memory miss it returns assembled context and
// suggestions for the caller to use, and the caller reports back via
// Record.
func (e *Engine) Process(ctx context.Context, req Request) (*Result, error) {
	ctx, span := e.obs.StartSpan(ctx, "Process")
	defer span.End()
	start := time.Now()

	norm := memory.Normalize(req.Query)
	if norm == "" {
		return nil, memory.ErrEmptyQuery
	}
	opts := req.Options
	if opts == nil {
		opts = DefaultOptions()
	}

	if in, ok := e.mem.ExactMatch(req.Query); ok {
		e.mu.Lock()
		e.tokensSaved += in.TokensUsed
		e.mu.Unlock()

		e.bus.Publish(Event{Type: EventExactMatchHit, InteractionID: in.ID})
		e.obs.Log().Debug().Str("interaction", in.ID).Msg("exact memory hit")

		return &Result{
			FromMemory:     true,
			Response:       in.Response,
			Confidence:     in.Confidence,
			TokensSaved:    in.TokensUsed,
			ProcessingTime: time.Since(start),
		}, nil
	}

	res := &Result{ProcessingTime: time.Since(start)}
	if !opts.UseOptimization {
		res.Suggestions = e.learner.Suggestions(req.Query)
		res.ProcessingTime = time.Since(start)
		return res, nil
	}

	packet := e.assembleContext(ctx, req.Query, norm, opts)
	res.Similar = packet.similar
	res.Suggestions = packet.suggestions
	res.Context = packet.context
	if res.Context != "" {
		// Context replaces part of what the caller would otherwise
		// re-derive; credit roughly half its token weight.
		res.TokensSaved = estimateTokens(res.Context) / 2
	}
	res.ProcessingTime = time.Since(start)
	return res, nil
}

// assembleContext builds (or recalls from cache) the similar-interaction
// and knowledge context for a query.
func (e *Engine) assembleContext(ctx context.Context, query, norm string, opts *Options) contextPacket {
	key := "ctx:" + norm
	if !opts.UseKnowledge {
		key += ":nokb"
	}
	if packet, ok := e.lookups.Get(key); ok {
		return packet
	}

	var packet contextPacket
	var parts []string

	matches := e.sim.TopK(ctx, query, e.cfg.ProcessSimilarK, e.cfg.RecallMinSimilarity)
	for _, m := range matches {
		packet.similar = append(packet.similar, Similar{
			Query:    m.Interaction.Query,
			Response: m.Interaction.Response,
			Score:    m.Score,
		})
		parts = append(parts, fmt.Sprintf("[Memory] Past: %s -> %s", m.Interaction.Query, clip(m.Interaction.Response, 100)))
	}

	if opts.UseKnowledge {
		hits := e.kb.Search(ctx, knowledge.Query{
			Text:        query,
			MinPriority: e.cfg.KnowledgeMinPriority,
			Limit:       e.cfg.KnowledgeLimit,
		})
		for _, hit := range hits {
			parts = append(parts, fmt.Sprintf("[%s] %s: %s", hit.Category, hit.Title, hit.Content))
		}
	}

	packet.suggestions = e.learner.Suggestions(query)
	if len(packet.suggestions) > 0 {
		parts = append(parts, "[Suggestions] "+strings.Join(packet.suggestions, "; "))
	}

	packet.context = strings.Join(parts, "\n")
	e.lookups.Set(key, packet)
	return packet
}

// Record validates, persists, and indexes a completed interaction,
// returning its id. Persistence failures fail the call; nothing is
// indexed or learned from an interaction that was not stored.
func (e *Engine) Record(ctx context.Context, req RecordRequest) (string, error) {
	ctx, span := e.obs.StartSpan(ctx, "Record")
	defer span.End()

	scored := e.validator.Score(req.Query, req.Response, req.ContextUsed)

	in, created, err := e.mem.Record(ctx, memory.RecordInput{
		Query:      req.Query,
		Response:   req.Response,
		Provider:   req.Provider,
		Model:      req.Model,
		TokensUsed: req.TokensUsed,
		Success:    req.Success,
		Confidence: scored.Confidence,
		Issues:     scored.IssueStrings(),
	})
	if err != nil {
		return "", err
	}

	// The assembled context for this query is now stale, in both its
	// with-knowledge and without-knowledge variants.
	norm := memory.Normalize(req.Query)
	e.lookups.Delete("ctx:" + norm)
	e.lookups.Delete("ctx:" + norm + ":nokb")

	// Coalesced duplicates share one interaction; only its creator may
	// index and learn from it, or the learned state drifts off the log.
	if !created {
		return in.ID, nil
	}

	e.sim.Add(in)
	e.learner.OnInteraction(in)
	e.bus.Publish(Event{Type: EventInteractionRecorded, InteractionID: in.ID})

	e.obs.Log().Info().
		Str("interaction", in.ID).
		Str("provider", req.Provider).
		Int("tokens", req.TokensUsed).
		Msg("interaction recorded")
	if scored.LowConfidence {
		e.obs.Log().Warn().Str("interaction", in.ID).Msg("low confidence response recorded")
	}

	return in.ID, nil
}

// Feedback attaches a rating and text to an interaction found by id or
// query text. Repeat feedback is last-write-wins on the stored fields,
// but every call counts as a learning event.
func (e *Engine) Feedback(ctx context.Context, ref string, rating int, text string) error {
	_, span := e.obs.StartSpan(ctx, "Feedback")
	defer span.End()

	in, err := e.mem.AttachFeedback(ref, rating, text)
	if err != nil {
		return err
	}
	e.learner.OnFeedback(in, rating)

	e.bus.Publish(Event{Type: EventFeedbackReceived, InteractionID: in.ID, Data: map[string]interface{}{"rating": rating}})
	e.obs.Log().Debug().Str("interaction", in.ID).Int("rating", rating).Msg("feedback attached")
	return nil
}

// Recall returns up to limit prior interactions similar to query,
// ordered by score. The threshold is cfg.RecallMinSimilarity.
func (e *Engine) Recall(ctx context.Context, query string, limit int) ([]Recalled, error) {
	ctx, span := e.obs.StartSpan(ctx, "Recall")
	defer span.End()

	if memory.Normalize(query) == "" {
		return nil, memory.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 5
	}

	matches := e.sim.TopK(ctx, query, limit, e.cfg.RecallMinSimilarity)
	out := make([]Recalled, len(matches))
	for i, m := range matches {
		out[i] = Recalled{
			ID:        m.Interaction.ID,
			Query:     m.Interaction.Query,
			Response:  m.Interaction.Response,
			Provider:  m.Interaction.Provider,
			Score:     m.Score,
			CreatedAt: m.Interaction.CreatedAt,
		}
	}
	return out, nil
}

// AddKnowledge upserts a curated knowledge entry.
func (e *Engine) AddKnowledge(ctx context.Context, entry knowledge.Entry) error {
	_, span := e.obs.StartSpan(ctx, "AddKnowledge")
	defer span.End()

	if err := e.kb.Upsert(entry); err != nil {
		return err
	}
	// Cached context packets may now rank differently.
	e.lookups.Clear()
	e.bus.Publish(Event{Type: EventKnowledgeUpserted, Data: map[string]interface{}{"id": entry.ID}})
	return nil
}

// SearchKnowledge queries the knowledge base.
func (e *Engine) SearchKnowledge(ctx context.Context, q knowledge.Query) []knowledge.Entry {
	ctx, span := e.obs.StartSpan(ctx, "SearchKnowledge")
	defer span.End()
	return e.kb.Search(ctx, q)
}

// PruneMemories drops interactions older than cutoff from the log and
// reports how many were removed. The similarity index keeps serving
// until the next restart rebuilds it without the pruned entries.
func (e *Engine) PruneMemories(cutoff time.Time) (int, error) {
	removed, err := e.mem.PruneOlderThan(cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		e.lookups.Clear()
		e.bus.Publish(Event{Type: EventMemoryPruned, Data: map[string]interface{}{"removed": removed}})
	}
	return removed, nil
}

// Stats summarizes engine activity.
func (e *Engine) Stats() Stats {
	snap := e.learner.Snapshot()
	cacheStats := e.lookups.Stats()

	e.mu.Lock()
	saved := e.tokensSaved
	e.mu.Unlock()

	return Stats{
		Total:            snap.TotalMemories,
		SuccessRate:      snap.SuccessRate,
		CacheHitRate:     cacheStats.HitRate,
		TokensSavedTotal: saved,
		QualityTrend:     snap.QualityTrend,
		UsageByProvider:  snap.ProviderUsage,
	}
}

// Patterns returns a snapshot of the learned state.
func (e *Engine) Patterns() learn.State {
	return e.learner.Snapshot()
}

// RecentContext formats the last n recorded query/response pairs.
func (e *Engine) RecentContext(n int) string {
	return e.mem.RecentContext(n)
}

// Flush blocks until all queued similarity-index writes are visible to
// Recall and Process.
func (e *Engine) Flush() {
	e.sim.Flush()
}

// Close flushes the similarity queue and releases resources.
func (e *Engine) Close() error {
	e.sim.Flush()
	e.sim.Close()
	e.lookups.Close()
	if e.storage != nil {
		return e.storage.Close()
	}
	return nil
}

// estimateTokens approximates the token weight of text at ~1.3 tokens
// per word.
func estimateTokens(text string) int {
	return len(strings.Fields(text)) * 4 / 3
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
