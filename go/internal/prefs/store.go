// Package prefs provides SQLite persistence for UI preferences that survive
// between sessions, such as the last used grid size and time budget.
package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// Keys used by the game front-end.
const (
	KeyGameSize = "game_size"
	KeyGameTime = "game_time"
)

// GameOptions are the new-game settings remembered across sessions.
type GameOptions struct {
	Size int `json:"size"`
	Time int `json:"time"`
}

// Store is a key/value store whose values are JSON documents.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the preferences database at dbPath.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("prefs: open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("prefs: enable WAL: %w", err)
	}
	return &Store{db: db}, nil
}

// Migrate creates the preferences table.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS preferences (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("prefs: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get decodes the value stored under key into dst. It reports false when the
// key has never been set.
func (s *Store) Get(key string, dst any) (bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("prefs: decode %s: %w", key, err)
	}
	return true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("prefs: encode %s: %w", key, err)
	}
	_, err = s.db.Exec(`INSERT INTO preferences (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(raw))
	if err != nil {
		return fmt.Errorf("prefs: set %s: %w", key, err)
	}
	return nil
}

// GetOrInit returns the value under key, writing def as the stored value the
// first time the key is read.
func GetOrInit[T any](s *Store, key string, def T) (T, error) {
	var v T
	ok, err := s.Get(key, &v)
	if err != nil {
		return def, err
	}
	if ok {
		return v, nil
	}
	if err := s.Set(key, def); err != nil {
		return def, err
	}
	return def, nil
}

// LoadGameOptions returns the remembered size and time, falling back to def
// for either one that was never saved.
func (s *Store) LoadGameOptions(def GameOptions) (GameOptions, error) {
	size, err := GetOrInit(s, KeyGameSize, def.Size)
	if err != nil {
		return def, err
	}
	seconds, err := GetOrInit(s, KeyGameTime, def.Time)
	if err != nil {
		return def, err
	}
	return GameOptions{Size: size, Time: seconds}, nil
}

// SaveGameOptions remembers the options used for the latest new game.
func (s *Store) SaveGameOptions(opts GameOptions) error {
	if err := s.Set(KeyGameSize, opts.Size); err != nil {
		return err
	}
	if err := s.Set(KeyGameTime, opts.Time); err != nil {
		return err
	}
	log.Debug().Int("size", opts.Size).Int("time", opts.Time).Msg("game options saved")
	return nil
}
