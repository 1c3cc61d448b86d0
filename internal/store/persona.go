package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const personaRowID = "default"

// PersonaStore keeps the persona description in SQLite.
type PersonaStore struct {
	db *DB
}

func NewPersonaStore(db *DB) *PersonaStore {
	return &PersonaStore{db: db}
}

// Load returns the saved description. ok is false when none was saved.
func (s *PersonaStore) Load(ctx context.Context) (string, bool, error) {
	var desc string
	err := s.db.SQLDB().QueryRowContext(ctx,
		`SELECT description FROM personas WHERE id = ?`, personaRowID).Scan(&desc)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persona load: %w", err)
	}
	return desc, true, nil
}

func (s *PersonaStore) Save(ctx context.Context, description string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.SQLDB().ExecContext(ctx,
		`INSERT INTO personas (id, description, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET description = excluded.description, updated_at = excluded.updated_at`,
		personaRowID, description, now)
	if err != nil {
		return fmt.Errorf("persona save: %w", err)
	}
	return nil
}
