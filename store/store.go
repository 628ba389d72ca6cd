// Package store persists the catalog documents in a versioned key-value table
// on SQLite. Every write creates a new version; nothing is updated in place.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Document keys.
const (
	KeyProducts             = "products"
	KeyMachines             = "machines"
	KeyScoringCriteria      = "scoringCriteria"
	KeyDetergentIngredients = "detergentIngredients"
	KeySafetyFactors        = "safetyFactors"
	KeySettings             = "settings"
)

var knownKeys = map[string]bool{
	KeyProducts:             true,
	KeyMachines:             true,
	KeyScoringCriteria:      true,
	KeyDetergentIngredients: true,
	KeySafetyFactors:        true,
	KeySettings:             true,
}

var (
	ErrNotFound   = errors.New("document not found")
	ErrUnknownKey = errors.New("unknown document key")
)

// IsKnownKey reports whether key is one of the document keys.
func IsKnownKey(key string) bool {
	return knownKeys[key]
}

// Entry is one stored version of a document.
type Entry struct {
	Key          string          `json:"key"`
	Version      int             `json:"version"`
	Value        json.RawMessage `json:"value"`
	CreatedAt    time.Time       `json:"createdAt"`
	RevertedFrom *int            `json:"revertedFrom,omitempty"`
}

// Decode unmarshals the entry payload into v.
func (e Entry) Decode(v any) error {
	if err := json.Unmarshal(e.Value, v); err != nil {
		return fmt.Errorf("decode %s v%d: %w", e.Key, e.Version, err)
	}
	return nil
}

// Store is a versioned document store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the SQLite database at path, applies pragmas and migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// Pragmas below are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set sqlite pragmas: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the latest version of a document.
func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	if !IsKnownKey(key) {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT key, version, payload, created_at, reverted_from
		FROM documents
		WHERE key = ?
		ORDER BY version DESC
		LIMIT 1`, key)
	return scanEntry(row)
}

// GetVersion returns a specific version of a document.
func (s *Store) GetVersion(ctx context.Context, key string, version int) (Entry, error) {
	if !IsKnownKey(key) {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT key, version, payload, created_at, reverted_from
		FROM documents
		WHERE key = ? AND version = ?`, key, version)
	return scanEntry(row)
}

// Put stores value as the next version of key. value is JSON encoded unless it
// already is a json.RawMessage.
func (s *Store) Put(ctx context.Context, key string, value any) (Entry, error) {
	if !IsKnownKey(key) {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	payload, err := encode(value)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s: %w", key, err)
	}
	return s.insert(ctx, key, payload, nil)
}

// Revert stores the payload of an older version as the next version of key.
func (s *Store) Revert(ctx context.Context, key string, version int) (Entry, error) {
	old, err := s.GetVersion(ctx, key, version)
	if err != nil {
		return Entry{}, err
	}
	return s.insert(ctx, key, old.Value, &version)
}

// History returns up to limit versions of key, newest first. A limit <= 0
// returns every version.
func (s *Store) History(ctx context.Context, key string, limit int) ([]Entry, error) {
	if !IsKnownKey(key) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, version, payload, created_at, reverted_from
		FROM documents
		WHERE key = ?
		ORDER BY version DESC
		LIMIT ?`, key, limit)
	if err != nil {
		return nil, fmt.Errorf("query %s history: %w", key, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s history: %w", key, err)
	}
	return entries, nil
}

// insert allocates the version inside the statement so concurrent writers
// cannot pick the same number.
func (s *Store) insert(ctx context.Context, key string, payload []byte, revertedFrom *int) (Entry, error) {
	createdAt := s.now().UTC()

	var version int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (key, version, payload, created_at, reverted_from)
		SELECT ?, COALESCE(MAX(version), 0) + 1, ?, ?, ?
		FROM documents
		WHERE key = ?
		RETURNING version`,
		key, string(payload), createdAt.Format(time.RFC3339Nano), revertedFrom, key,
	).Scan(&version)
	if err != nil {
		return Entry{}, fmt.Errorf("insert %s: %w", key, err)
	}

	return Entry{
		Key:          key,
		Version:      version,
		Value:        json.RawMessage(payload),
		CreatedAt:    createdAt,
		RevertedFrom: revertedFrom,
	}, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e            Entry
		payload      string
		createdAt    string
		revertedFrom sql.NullInt64
	)
	if err := sc.Scan(&e.Key, &e.Version, &payload, &createdAt, &revertedFrom); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("scan document: %w", err)
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at of %s v%d: %w", e.Key, e.Version, err)
	}
	e.CreatedAt = t
	e.Value = json.RawMessage(payload)
	if revertedFrom.Valid {
		v := int(revertedFrom.Int64)
		e.RevertedFrom = &v
	}
	return e, nil
}

func encode(value any) ([]byte, error) {
	if raw, ok := value.(json.RawMessage); ok {
		if !json.Valid(raw) {
			return nil, errors.New("invalid JSON payload")
		}
		return raw, nil
	}
	return json.Marshal(value)
}
