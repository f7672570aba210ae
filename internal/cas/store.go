package cas

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/nerrad567/ndb/internal/infrastructure/database"
)

const (
	// MaxContentLength is the largest entry the store accepts, in characters.
	MaxContentLength = 4096

	// KeyMarker may prefix a hash or hash prefix on lookup ("@3fa2...").
	KeyMarker = "@"
)

// Entry is a single content-addressed blob.
type Entry struct {
	Hash    string `json:"hash"`
	Content string `json:"content"`
}

// Store is the SQLite-backed content-addressed store.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open, migrated database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Hash returns the lowercase hex SHA-256 digest of content's UTF-8 bytes.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Validate reports whether content may be stored.
func Validate(content string) error {
	if n := utf8.RuneCountInString(content); n > MaxContentLength {
		return fmt.Errorf("%w: %d characters (max %d)", ErrSizeExceeded, n, MaxContentLength)
	}
	return nil
}

// Put stores content if absent and returns its hash.
//
// Writing content that is already present is a no-op; concurrent writers
// of the same content converge on one row.
func (s *Store) Put(ctx context.Context, content string) (string, error) {
	hash, _, err := put(ctx, s.db, content)
	return hash, err
}

// PutTx is Put inside a caller-owned transaction, for callers that pair the
// write with a registry upsert.
func (s *Store) PutTx(ctx context.Context, q database.Querier, content string) (string, error) {
	hash, _, err := put(ctx, q, content)
	return hash, err
}

// PutBytes stores a raw payload read from a file, stdin or the network.
// Data that is not text (invalid UTF-8 or containing NUL bytes) is
// rejected with ErrTypeMismatch.
func (s *Store) PutBytes(ctx context.Context, data []byte) (string, error) {
	content, err := TextFromBytes(data)
	if err != nil {
		return "", err
	}
	return s.Put(ctx, content)
}

// Get returns all entries whose hash starts with key, ordered by hash.
// A leading KeyMarker is stripped first and hex digits match in either
// case. No match is an empty result, not an error.
func (s *Store) Get(ctx context.Context, key string) ([]Entry, error) {
	prefix := strings.ToLower(strings.TrimPrefix(key, KeyMarker))

	rows, err := s.db.QueryContext(ctx,
		"SELECT hash, content FROM cas WHERE substr(hash, 1, ?) = ? ORDER BY hash",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cas: %w", err)
	}
	return scanEntries(rows)
}

// Count returns the number of stored entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM cas").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cas entries: %w", err)
	}
	return n, nil
}

// ListByContentPrefix returns entries whose content starts with prefix,
// ordered by hash. The comparison is case sensitive. q may be a transaction
// so callers can read and write in a single unit; nil uses the store's
// connection.
func (s *Store) ListByContentPrefix(ctx context.Context, q database.Querier, prefix string) ([]Entry, error) {
	if q == nil {
		q = s.db
	}
	rows, err := q.QueryContext(ctx,
		"SELECT hash, content FROM cas WHERE substr(content, 1, ?) = ? ORDER BY hash",
		utf8.RuneCountInString(prefix), prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("querying cas by content: %w", err)
	}
	return scanEntries(rows)
}

// put validates and inserts content, reporting whether a new row was written.
func put(ctx context.Context, q database.Querier, content string) (hash string, created bool, err error) {
	if err := Validate(content); err != nil {
		return "", false, err
	}

	hash = Hash(content)
	result, err := q.ExecContext(ctx,
		"INSERT OR IGNORE INTO cas (hash, content) VALUES (?, ?)",
		hash, content,
	)
	if err != nil {
		return "", false, fmt.Errorf("inserting cas entry: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("checking rows affected: %w", err)
	}
	return hash, n > 0, nil
}

// TextFromBytes converts a raw payload to content, rejecting data that is
// not text with ErrTypeMismatch.
func TextFromBytes(data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", fmt.Errorf("%w: invalid UTF-8", ErrTypeMismatch)
	}
	if strings.IndexByte(string(data), 0) >= 0 {
		return "", fmt.Errorf("%w: contains NUL bytes", ErrTypeMismatch)
	}
	return string(data), nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.Content); err != nil {
			return nil, fmt.Errorf("scanning cas entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cas entries: %w", err)
	}
	return entries, nil
}
