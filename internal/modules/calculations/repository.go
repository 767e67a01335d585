// Package calculations caches expensive intermediate results (covariance
// estimates) in SQLite as msgpack blobs with expiration timestamps.
package calculations

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Repository provides cache operations over the calculation_cache table.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

// NewRepository creates a new calculation cache repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Store saves value under key with expiration = now + ttl.
func (r *Repository) Store(kind, key string, value interface{}, ttl time.Duration) error {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %s %s: %w", kind, key, err)
	}

	now := r.now()
	_, err = r.db.Exec(`
		INSERT OR REPLACE INTO calculation_cache (key, kind, payload, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, key, kind, payload, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("failed to store %s %s: %w", kind, key, err)
	}
	return nil
}

// GetIfFresh decodes the entry into out if it exists and has not expired.
// It reports whether out was filled.
func (r *Repository) GetIfFresh(key string, out interface{}) (bool, error) {
	var payload []byte
	err := r.db.QueryRow(
		"SELECT payload FROM calculation_cache WHERE key = ? AND expires_at > ?",
		key, r.now().Unix(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	if err := msgpack.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

// Delete removes a specific entry.
func (r *Repository) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM calculation_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// ForEach calls fn for every entry of kind, expired ones included. decode
// unpacks the entry's payload. Rows are read in full before fn runs, so fn may
// modify the table.
func (r *Repository) ForEach(kind string, fn func(key string, decode func(out interface{}) error) error) error {
	rows, err := r.db.Query("SELECT key, payload FROM calculation_cache WHERE kind = ? ORDER BY key", kind)
	if err != nil {
		return fmt.Errorf("failed to list %s entries: %w", kind, err)
	}

	type entry struct {
		key     string
		payload []byte
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.key, &e.payload); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan %s entry: %w", kind, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, e := range entries {
		payload := e.payload
		decode := func(out interface{}) error {
			return msgpack.Unmarshal(payload, out)
		}
		if err := fn(e.key, decode); err != nil {
			return err
		}
	}
	return nil
}

// DeleteExpired removes all rows where expires_at <= now.
// Returns the number of rows deleted.
func (r *Repository) DeleteExpired() (int64, error) {
	result, err := r.db.Exec("DELETE FROM calculation_cache WHERE expires_at <= ?", r.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired entries: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// Count returns the number of entries per kind, expired ones included.
func (r *Repository) Count() (map[string]int, error) {
	rows, err := r.db.Query("SELECT kind, COUNT(*) FROM calculation_cache GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			kind  string
			count int
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}
