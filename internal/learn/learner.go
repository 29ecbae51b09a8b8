// Package learn maintains the engine's learned state: quality trend,
// mistake and success patterns, topic frequencies, and per-provider
// usage. All updates are incremental; replaying the interaction log
// from empty reproduces the same aggregate counts.
package learn

import (
	"strings"
	"sync"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/memory"
	"github.com/felixgeelhaar/mnemo/internal/similarity"
)

// Trend labels the direction of the quality comparison between the most
// recent window and the one before it.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// PatternReason records why an interaction landed on a pattern list.
type PatternReason string

const (
	ReasonLowRating     PatternReason = "low_rating"
	ReasonLowConfidence PatternReason = "low_confidence"
	ReasonHighRating    PatternReason = "high_rating"
)

// PatternEntry references an interaction that exhibited a mistake or a
// success pattern.
type PatternEntry struct {
	InteractionID string        `json:"interaction_id"`
	Query         string        `json:"query"`
	Topic         string        `json:"topic"`
	Rating        int           `json:"rating,omitempty"`
	Reason        PatternReason `json:"reason"`
	At            time.Time     `json:"at"`
}

// QualityTrend compares the mean quality of the two most recent windows.
type QualityTrend struct {
	WindowAvgRecent float64 `json:"window_avg_recent"`
	WindowAvgPrior  float64 `json:"window_avg_prior"`
	Trend           Trend   `json:"trend"`
}

// State is a point-in-time snapshot of everything learned so far.
type State struct {
	TotalMemories   int            `json:"total_memories"`
	SuccessCount    int            `json:"success_count"`
	SuccessRate     float64        `json:"success_rate"`
	FeedbackCount   int            `json:"feedback_count"`
	QualityTrend    QualityTrend   `json:"quality_trend"`
	MistakePatterns []PatternEntry `json:"mistake_patterns"`
	SuccessPatterns []PatternEntry `json:"success_patterns"`
	TopicFrequency  map[string]int `json:"topic_frequency"`
	ProviderUsage   map[string]int `json:"usage_by_provider"`
}

// Config controls window sizes and thresholds.
type Config struct {
	// WindowSize is the number of quality samples per comparison window.
	WindowSize int `yaml:"window_size" json:"window_size"`
	// Epsilon is the trend dead zone: deltas within it label "stable".
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`
	// PatternCap bounds the mistake and success lists; oldest evicted.
	PatternCap int `yaml:"pattern_cap" json:"pattern_cap"`
	// ConfidenceFloor marks interactions as mistakes when scored below it.
	ConfidenceFloor float64 `yaml:"confidence_floor" json:"confidence_floor"`
}

// DefaultConfig provides safe defaults.
func DefaultConfig() Config {
	return Config{
		WindowSize:      10,
		Epsilon:         0.02,
		PatternCap:      100,
		ConfidenceFloor: 0.5,
	}
}

// categoryKeywords maps topic categories to their trigger words, checked
// in order.
var categoryKeywords = []struct {
	topic string
	words []string
}{
	{"coding", []string{"code", "function", "class", "api", "implement"}},
	{"explanation", []string{"explain", "what", "how", "why"}},
	{"debugging", []string{"fix", "error", "bug", "issue"}},
	{"design", []string{"design", "architecture", "structure"}},
	{"testing", []string{"test", "verify", "check"}},
}

// providerDefaults recommends a provider per topic when usage history
// offers no signal.
var providerDefaults = map[string]string{
	"coding":      "deepseek",
	"explanation": "anthropic",
	"debugging":   "openai",
	"design":      "anthropic",
	"testing":     "openai",
	"general":     "openai",
}

// Categorize assigns a query to one of the topic categories.
func Categorize(query string) string {
	queryLower := strings.ToLower(query)
	for _, cat := range categoryKeywords {
		for _, w := range cat.words {
			if strings.Contains(queryLower, w) {
				return cat.topic
			}
		}
	}
	return "general"
}

// Learner accumulates learned state from interaction and feedback
// events. Safe for concurrent use.
type Learner struct {
	mu  sync.Mutex
	cfg Config

	totalMemories int
	successCount  int
	feedbackCount int

	// qualityWindow holds the most recent 2*WindowSize quality samples
	// as a ring buffer.
	qualityWindow []float64
	qualityNext   int
	qualityCount  int

	mistakes  []PatternEntry
	successes []PatternEntry

	topicFreq     map[string]int
	providerUsage map[string]int
	// topicProviders counts provider usage per topic for recommendations.
	topicProviders map[string]map[string]int
	// keyword counts behind improvement suggestions.
	mistakeKeywords map[string]int
	successKeywords map[string]int
}

// New creates a Learner; zero-valued config fields fall back to
// defaults.
func New(cfg Config) *Learner {
	def := DefaultConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.PatternCap <= 0 {
		cfg.PatternCap = def.PatternCap
	}
	if cfg.ConfidenceFloor <= 0 {
		cfg.ConfidenceFloor = def.ConfidenceFloor
	}
	return &Learner{
		cfg:             cfg,
		qualityWindow:   make([]float64, 2*cfg.WindowSize),
		topicFreq:       make(map[string]int),
		providerUsage:   make(map[string]int),
		topicProviders:  make(map[string]map[string]int),
		mistakeKeywords: make(map[string]int),
		successKeywords: make(map[string]int),
	}
}

// OnInteraction folds a newly recorded interaction into the state.
func (l *Learner) OnInteraction(in *memory.Interaction) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.totalMemories++
	if in.Success {
		l.successCount++
	}

	topic := Categorize(in.Query)
	l.topicFreq[topic]++
	if in.Provider != "" {
		l.providerUsage[in.Provider]++
		tp := l.topicProviders[topic]
		if tp == nil {
			tp = make(map[string]int)
			l.topicProviders[topic] = tp
		}
		tp[in.Provider]++
	}

	l.pushQuality(in.Confidence)

	if in.Confidence < l.cfg.ConfidenceFloor {
		l.appendMistake(PatternEntry{
			InteractionID: in.ID,
			Query:         in.Query,
			Topic:         topic,
			Reason:        ReasonLowConfidence,
			At:            in.CreatedAt,
		})
		for _, kw := range similarity.Keywords(in.Query, 10) {
			l.mistakeKeywords[kw]++
		}
	}
}

// OnFeedback folds a feedback event into the state. Repeat feedback for
// the same interaction still counts as a new event.
func (l *Learner) OnFeedback(in *memory.Interaction, rating int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.feedbackCount++
	l.pushQuality(float64(rating) / 5.0)

	topic := Categorize(in.Query)
	entry := PatternEntry{
		InteractionID: in.ID,
		Query:         in.Query,
		Topic:         topic,
		Rating:        rating,
		At:            time.Now(),
	}

	switch {
	case rating <= 2:
		entry.Reason = ReasonLowRating
		l.appendMistake(entry)
		for _, kw := range similarity.Keywords(in.Query, 10) {
			l.mistakeKeywords[kw]++
		}
	case rating >= 4:
		entry.Reason = ReasonHighRating
		l.appendSuccess(entry)
		for _, kw := range similarity.Keywords(in.Query, 10) {
			l.successKeywords[kw]++
		}
	}
}

func (l *Learner) appendMistake(e PatternEntry) {
	l.mistakes = append(l.mistakes, e)
	if len(l.mistakes) > l.cfg.PatternCap {
		l.mistakes = l.mistakes[len(l.mistakes)-l.cfg.PatternCap:]
	}
}

func (l *Learner) appendSuccess(e PatternEntry) {
	l.successes = append(l.successes, e)
	if len(l.successes) > l.cfg.PatternCap {
		l.successes = l.successes[len(l.successes)-l.cfg.PatternCap:]
	}
}

func (l *Learner) pushQuality(score float64) {
	l.qualityWindow[l.qualityNext] = score
	l.qualityNext = (l.qualityNext + 1) % len(l.qualityWindow)
	if l.qualityCount < len(l.qualityWindow) {
		l.qualityCount++
	}
}

// qualityTrendLocked compares the last WindowSize samples to the
// WindowSize before them.
func (l *Learner) qualityTrendLocked() QualityTrend {
	w := l.cfg.WindowSize
	n := l.qualityCount
	if n == 0 {
		return QualityTrend{Trend: TrendStable}
	}

	// Walk backwards from the newest sample.
	at := func(back int) float64 {
		idx := (l.qualityNext - 1 - back + 2*len(l.qualityWindow)) % len(l.qualityWindow)
		return l.qualityWindow[idx]
	}

	recentN := w
	if recentN > n {
		recentN = n
	}
	var recentSum float64
	for i := 0; i < recentN; i++ {
		recentSum += at(i)
	}
	recent := recentSum / float64(recentN)

	priorN := n - recentN
	if priorN > w {
		priorN = w
	}
	prior := recent
	if priorN > 0 {
		var priorSum float64
		for i := 0; i < priorN; i++ {
			priorSum += at(recentN + i)
		}
		prior = priorSum / float64(priorN)
	}

	trend := TrendStable
	switch delta := recent - prior; {
	case delta > l.cfg.Epsilon:
		trend = TrendImproving
	case delta < -l.cfg.Epsilon:
		trend = TrendDeclining
	}

	return QualityTrend{
		WindowAvgRecent: recent,
		WindowAvgPrior:  prior,
		Trend:           trend,
	}
}

// Snapshot returns a deep copy of the learned state.
func (l *Learner) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := State{
		TotalMemories:   l.totalMemories,
		SuccessCount:    l.successCount,
		FeedbackCount:   l.feedbackCount,
		QualityTrend:    l.qualityTrendLocked(),
		MistakePatterns: append([]PatternEntry(nil), l.mistakes...),
		SuccessPatterns: append([]PatternEntry(nil), l.successes...),
		TopicFrequency:  make(map[string]int, len(l.topicFreq)),
		ProviderUsage:   make(map[string]int, len(l.providerUsage)),
	}
	if l.totalMemories > 0 {
		s.SuccessRate = float64(l.successCount) / float64(l.totalMemories)
	}
	for k, v := range l.topicFreq {
		s.TopicFrequency[k] = v
	}
	for k, v := range l.providerUsage {
		s.ProviderUsage[k] = v
	}
	return s
}

// Suggestions returns advisory notes for a query based on keyword
// overlap with accumulated mistake and success patterns.
func (l *Learner) Suggestions(query string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	for _, kw := range similarity.Keywords(query, 10) {
		if count := l.mistakeKeywords[kw]; count > 2 {
			out = append(out, "Be careful with '"+kw+"': past issues recorded")
		}
	}
	for _, kw := range similarity.Keywords(query, 10) {
		if count := l.successKeywords[kw]; count > 3 {
			out = append(out, "Good track record with '"+kw+"': continue the current approach")
		}
	}
	return out
}

// RecommendProvider suggests a provider for a topic: the most-used
// provider for that topic if any history exists, otherwise a static
// per-category default.
func (l *Learner) RecommendProvider(topic string) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if tp := l.topicProviders[topic]; len(tp) > 0 {
		best, bestCount := "", -1
		for provider, count := range tp {
			if count > bestCount || (count == bestCount && provider < best) {
				best, bestCount = provider, count
			}
		}
		return best
	}
	if def, ok := providerDefaults[topic]; ok {
		return def
	}
	return providerDefaults["general"]
}
