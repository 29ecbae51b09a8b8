package store

import (
	"bytes"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/felixgeelhaar/mnemo/internal/knowledge"
	"github.com/felixgeelhaar/mnemo/internal/memory"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directories exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS interactions (
			id TEXT PRIMARY KEY,
			normalized TEXT,
			query TEXT,
			response TEXT,
			provider TEXT,
			model TEXT,
			tokens_used INTEGER,
			success INTEGER,
			confidence REAL,
			issues TEXT,
			rating INTEGER,
			feedback TEXT,
			vector BLOB,
			created_at DATETIME
		);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_normalized ON interactions(normalized);`,
		`CREATE INDEX IF NOT EXISTS idx_interactions_created ON interactions(created_at);`,
		`CREATE TABLE IF NOT EXISTS knowledge (
			id TEXT PRIMARY KEY,
			category TEXT,
			title TEXT,
			content TEXT,
			tags TEXT,
			priority INTEGER,
			created_at DATETIME
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Interaction log

func (s *SQLiteStore) SaveInteraction(in *memory.Interaction) error {
	issuesJSON, err := json.Marshal(in.Issues)
	if err != nil {
		return fmt.Errorf("failed to marshal issues: %w", err)
	}

	vecBlob, err := encodeVector(in.Vector)
	if err != nil {
		return fmt.Errorf("failed to encode vector: %w", err)
	}

	query := `INSERT INTO interactions
		(id, normalized, query, response, provider, model, tokens_used, success, confidence, issues, rating, feedback, vector, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query,
		in.ID, memory.Normalize(in.Query), in.Query, in.Response,
		in.Provider, in.Model, in.TokensUsed, boolToInt(in.Success),
		in.Confidence, string(issuesJSON), in.Rating, in.Feedback,
		vecBlob, in.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) UpdateFeedback(id string, rating int, feedback string) (bool, error) {
	res, err := s.db.Exec(`UPDATE interactions SET rating = ?, feedback = ? WHERE id = ?`, rating, feedback, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *SQLiteStore) LoadInteractions() ([]*memory.Interaction, error) {
	rows, err := s.db.Query(`SELECT id, query, response, provider, model, tokens_used, success, confidence, issues, rating, feedback, vector, created_at
		FROM interactions ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*memory.Interaction
	for rows.Next() {
		var (
			in         memory.Interaction
			success    int
			issuesJSON string
			rating     sql.NullInt64
			feedback   sql.NullString
			vecBlob    []byte
		)
		if err := rows.Scan(&in.ID, &in.Query, &in.Response, &in.Provider, &in.Model,
			&in.TokensUsed, &success, &in.Confidence, &issuesJSON,
			&rating, &feedback, &vecBlob, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		in.Success = success != 0
		if issuesJSON != "" {
			if err := json.Unmarshal([]byte(issuesJSON), &in.Issues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal issues: %w", err)
			}
		}
		if rating.Valid {
			in.Rating = int(rating.Int64)
		}
		if feedback.Valid {
			in.Feedback = feedback.String
		}
		in.Vector = decodeVector(vecBlob)
		out = append(out, &in)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteInteractionsBefore(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM interactions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	return int(affected), err
}

// Knowledge entries

func (s *SQLiteStore) UpsertKnowledge(e *knowledge.Entry) error {
	tagsJSON, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `INSERT INTO knowledge (id, category, title, content, tags, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category = excluded.category,
			title = excluded.title,
			content = excluded.content,
			tags = excluded.tags,
			priority = excluded.priority`
	_, err = s.db.Exec(query, e.ID, e.Category, e.Title, e.Content, string(tagsJSON), e.Priority, e.CreatedAt)
	return err
}

func (s *SQLiteStore) LoadKnowledge() ([]*knowledge.Entry, error) {
	rows, err := s.db.Query(`SELECT id, category, title, content, tags, priority, created_at FROM knowledge`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*knowledge.Entry
	for rows.Next() {
		var (
			e        knowledge.Entry
			tagsJSON string
		)
		if err := rows.Scan(&e.ID, &e.Category, &e.Title, &e.Content, &tagsJSON, &e.Priority, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge entry: %w", err)
		}
		if tagsJSON != "" {
			if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// Vector blobs are little-endian float32 sequences.

func encodeVector(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, nil
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil
	}
	return vec
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
