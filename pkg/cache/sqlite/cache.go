// Package sqlite implements the generation cache on a SQLite store.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
)

// keyPromptPrefixLen bounds cache key size. Two long prompts sharing
// the same 100-character normalized prefix collide; accepted
// approximation, not a digest.
const keyPromptPrefixLen = 100

const keySeparator = "::"

// Cache maps (prompt, provider, task) to previously generated text.
// Entries carry an absolute expiry instant and are evicted lazily on
// read; there is no background sweep.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	hits   atomic.Int64
	misses atomic.Int64
	saves  atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS generation_cache (
	cache_key TEXT PRIMARY KEY,
	response TEXT NOT NULL,
	expires_at DATETIME NOT NULL
);
`

// New opens (or creates) the cache store at dbPath with the given
// default time-to-live.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Key derives the cache key: provider, task, and the first 100
// characters of the whitespace-normalized prompt, joined with a fixed
// separator. Prompts differing only in whitespace runs share a key.
func Key(prompt, providerID string, task models.TaskKind) string {
	normalized := strings.Join(strings.Fields(prompt), " ")
	if r := []rune(normalized); len(r) > keyPromptPrefixLen {
		normalized = string(r[:keyPromptPrefixLen])
	}
	return providerID + keySeparator + string(task) + keySeparator + normalized
}

// Get retrieves cached text. A read past expiry counts as a miss and
// evicts the entry.
func (c *Cache) Get(prompt, providerID string, task models.TaskKind) (string, bool) {
	key := Key(prompt, providerID, task)

	var response string
	var expiresAt time.Time
	err := c.db.QueryRow(
		`SELECT response, expires_at FROM generation_cache WHERE cache_key = ?`,
		key,
	).Scan(&response, &expiresAt)
	if err != nil {
		c.misses.Add(1)
		return "", false
	}

	if time.Now().UTC().After(expiresAt) {
		_, _ = c.db.Exec(`DELETE FROM generation_cache WHERE cache_key = ?`, key)
		c.misses.Add(1)
		return "", false
	}

	c.hits.Add(1)
	return response, true
}

// Set stores generated text under the derived key, replacing any
// previous entry wholesale.
func (c *Cache) Set(prompt, providerID string, task models.TaskKind, response string) error {
	key := Key(prompt, providerID, task)
	expiresAt := time.Now().UTC().Add(c.ttl)

	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO generation_cache (cache_key, response, expires_at) VALUES (?, ?, ?)`,
		key, response, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	c.saves.Add(1)
	return nil
}

// Clear discards all entries. Lifetime hit/miss/save counters are
// left untouched.
func (c *Cache) Clear() error {
	if _, err := c.db.Exec(`DELETE FROM generation_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats() (models.CacheStats, error) {
	var count int64
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM generation_cache`).Scan(&count); err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	var hitRate float64
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses) * 100
	}

	return models.CacheStats{
		Entries:        count,
		Hits:           hits,
		Misses:         misses,
		Saves:          c.saves.Load(),
		HitRatePercent: hitRate,
	}, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
