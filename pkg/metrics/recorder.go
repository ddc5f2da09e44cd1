// Package metrics records per-attempt generation usage durably.
package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pitchsmith-ai/pitchsmith/pkg/models"
)

// Recorder records generation attempts and serves aggregate views.
type Recorder interface {
	// Record stores one sample. The write is flushed synchronously;
	// a crash loses at most the single in-flight sample.
	Record(ctx context.Context, s models.Sample) error
	// Snapshot returns a copy of the usage aggregate.
	Snapshot(ctx context.Context) (models.UsageSnapshot, error)
	// TotalTokensByProvider returns tokens recorded against a provider
	// since a given time. Provider "*" matches every provider.
	TotalTokensByProvider(ctx context.Context, provider string, since time.Time) (int64, error)
	// Close releases resources.
	Close() error
}

// SQLiteRecorder implements Recorder with a SQLite database.
type SQLiteRecorder struct {
	db *sql.DB
}

const createSamplesTable = `
CREATE TABLE IF NOT EXISTS usage_samples (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	task TEXT NOT NULL,
	latency_ms INTEGER NOT NULL,
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	success INTEGER NOT NULL,
	retried INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_samples_provider_time ON usage_samples(provider, created_at);
CREATE INDEX IF NOT EXISTS idx_samples_task ON usage_samples(task);
`

// New creates a SQLiteRecorder and runs auto-migration.
func New(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}

	if _, err := db.Exec(createSamplesTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate metrics db: %w", err)
	}

	return &SQLiteRecorder{db: db}, nil
}

// Record stores a sample with a synchronous flush.
func (r *SQLiteRecorder) Record(ctx context.Context, s models.Sample) error {
	createdAt := s.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO usage_samples (request_id, provider, task, latency_ms, prompt_tokens, completion_tokens, success, retried, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RequestID, s.Provider, string(s.Task), s.LatencyMs, s.PromptTokens, s.CompletionTokens,
		boolToInt(s.Success), boolToInt(s.Retried), createdAt,
	)
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

// Snapshot aggregates all recorded samples.
func (r *SQLiteRecorder) Snapshot(ctx context.Context) (models.UsageSnapshot, error) {
	snap := models.UsageSnapshot{
		PerProvider: make(map[string]models.ProviderStats),
		PerTask:     make(map[models.TaskKind]models.TaskStats),
	}

	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
			COALESCE(SUM(success), 0),
			COALESCE(SUM(1 - success), 0),
			COALESCE(SUM(latency_ms), 0),
			COALESCE(SUM(prompt_tokens), 0),
			COALESCE(SUM(completion_tokens), 0)
		 FROM usage_samples`,
	).Scan(&snap.TotalRequests, &snap.Successes, &snap.Failures,
		&snap.CumulativeLatencyMs, &snap.TotalPromptTokens, &snap.TotalCompletionTokens)
	if err != nil {
		return models.UsageSnapshot{}, fmt.Errorf("snapshot totals: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, COUNT(*), COALESCE(SUM(success), 0), COALESCE(SUM(1 - success), 0),
			COALESCE(SUM(prompt_tokens + completion_tokens), 0)
		 FROM usage_samples GROUP BY provider`,
	)
	if err != nil {
		return models.UsageSnapshot{}, fmt.Errorf("snapshot providers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var provider string
		var ps models.ProviderStats
		if err := rows.Scan(&provider, &ps.Requests, &ps.Successes, &ps.Failures, &ps.TotalTokens); err != nil {
			return models.UsageSnapshot{}, fmt.Errorf("scan provider stats: %w", err)
		}
		snap.PerProvider[provider] = ps
	}
	if err := rows.Err(); err != nil {
		return models.UsageSnapshot{}, err
	}

	taskRows, err := r.db.QueryContext(ctx,
		`SELECT task, COUNT(*), COALESCE(SUM(success), 0), COALESCE(SUM(1 - success), 0)
		 FROM usage_samples GROUP BY task`,
	)
	if err != nil {
		return models.UsageSnapshot{}, fmt.Errorf("snapshot tasks: %w", err)
	}
	defer taskRows.Close()
	for taskRows.Next() {
		var task string
		var ts models.TaskStats
		if err := taskRows.Scan(&task, &ts.Requests, &ts.Successes, &ts.Failures); err != nil {
			return models.UsageSnapshot{}, fmt.Errorf("scan task stats: %w", err)
		}
		snap.PerTask[models.TaskKind(task)] = ts
	}
	return snap, taskRows.Err()
}

// TotalTokensByProvider returns tokens recorded against a provider
// since a given time. Provider "*" sums across all providers, matching
// the wildcard form of budget policies.
func (r *SQLiteRecorder) TotalTokensByProvider(ctx context.Context, provider string, since time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(prompt_tokens + completion_tokens), 0)
		 FROM usage_samples WHERE (provider = ? OR ? = '*') AND created_at >= ?`,
		provider, provider, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total tokens: %w", err)
	}
	return total, nil
}

// Close releases the database connection.
func (r *SQLiteRecorder) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
