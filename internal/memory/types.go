// Package memory implements the durable interaction log: every processed
// query/response pair is recorded, indexed for exact recall, and kept
// across restarts.
package memory

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates no interaction matched the given id or query.
	ErrNotFound = errors.New("interaction not found")

	// ErrEmptyQuery indicates a record or lookup with no query text.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrInvalidRating indicates a feedback rating outside 1..5.
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
)

// Interaction is a single recorded query/response pair. The core fields
// are immutable once recorded; only Rating and Feedback may be attached
// later via feedback.
type Interaction struct {
	ID         string    `json:"id"`
	Query      string    `json:"query"`
	Response   string    `json:"response"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	TokensUsed int       `json:"tokens_used"`
	Success    bool      `json:"success"`
	CreatedAt  time.Time `json:"created_at"`

	// Vector is the feature vector computed once at insertion time.
	Vector []float32 `json:"-"`

	// Confidence is the advisory validator score in [0,1].
	Confidence float64 `json:"confidence"`
	// Issues lists validator findings stored alongside the interaction.
	Issues []string `json:"issues,omitempty"`

	// Rating is 1..5 when feedback has been attached, 0 otherwise.
	Rating   int    `json:"rating,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// Rated reports whether feedback has been attached.
func (in *Interaction) Rated() bool {
	return in.Rating >= 1 && in.Rating <= 5
}

// LowConfidence reports whether the stored confidence fell below floor.
func (in *Interaction) LowConfidence(floor float64) bool {
	return in.Confidence < floor
}
