// Package store provides the durable SQLite layer beneath the memory
// engine: the interaction log, the knowledge table, and key/value
// configuration.
package store

import (
	"time"

	"github.com/felixgeelhaar/mnemo/internal/knowledge"
	"github.com/felixgeelhaar/mnemo/internal/memory"
)

// Storage defines the interface for persistence.
type Storage interface {
	// Interaction log
	SaveInteraction(in *memory.Interaction) error
	UpdateFeedback(id string, rating int, feedback string) (bool, error)
	LoadInteractions() ([]*memory.Interaction, error)
	DeleteInteractionsBefore(cutoff time.Time) (int, error)

	// Knowledge entries
	UpsertKnowledge(e *knowledge.Entry) error
	LoadKnowledge() ([]*knowledge.Entry, error)

	// Configuration Management
	SetConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}
