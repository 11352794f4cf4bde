package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	memcache "apploom/internal/cache/memory"
)

// PostgresStore persists Records in a single memory_records table,
// embeddings CBOR-encoded into a bytea column, and answers searches by
// loading the project+kind's rows and ranking them in Go — the same
// full-scan-then-sort shape as a from-scratch local vector store,
// just backed by Postgres instead of an in-process map, per §4.10's
// "per-project vector collection" without assuming a vector extension
// is installed.
type PostgresStore struct {
	db       *sql.DB
	embedder Embedder
	cache    *memcache.LRUTTL[string, []SearchResult]
}

// NewPostgresStore opens dsn via the pgx stdlib driver, ensures the
// backing table exists, and wraps searches in a short-TTL read-through
// cache (§4.10's 15-25 ms latency target is easiest to hit on a cache
// hit for a repeated query against an unchanged collection).
func NewPostgresStore(ctx context.Context, dsn string, embedder Embedder) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: ping postgres: %w", err)
	}

	if embedder == nil {
		embedder = NewHashingEmbedder(EmbeddingDimensions)
	}

	store := &PostgresStore{
		db:       db,
		embedder: embedder,
		cache:    memcache.NewLRUTTL[string, []SearchResult](512, 0, 20*time.Second),
	}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS memory_records (
	id          TEXT PRIMARY KEY,
	project_id  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	text        TEXT NOT NULL,
	embedding   BYTEA NOT NULL,
	filepath    TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	category    TEXT NOT NULL DEFAULT '',
	key         TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS memory_records_project_kind_idx ON memory_records (project_id, kind);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *PostgresStore) insert(ctx context.Context, rec Record) error {
	embBytes, err := cbor.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("memory: encode embedding: %w", err)
	}
	const q = `
INSERT INTO memory_records (id, project_id, kind, text, embedding, filepath, language, category, key, severity, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.ProjectID, rec.Kind, rec.Text, embBytes,
		rec.Filepath, rec.Language, rec.Category, rec.Key, rec.Severity, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("memory: insert record: %w", err)
	}
	s.cache.Clear()
	return nil
}

func newRecordID(projectID string, kind Kind) string {
	return fmt.Sprintf("%s-%s-%d", projectID, kind, time.Now().UnixNano())
}

func (s *PostgresStore) StoreCode(ctx context.Context, projectID, filepath, snippet, language string) error {
	rec := Record{
		ID: newRecordID(projectID, KindCode), ProjectID: projectID, Kind: KindCode,
		Text: snippet, Filepath: filepath, Language: language, CreatedAt: time.Now(),
	}
	rec.Embedding = s.embedder.Embed(codeQueryText(filepath, snippet))
	return s.insert(ctx, rec)
}

func (s *PostgresStore) StoreDecision(ctx context.Context, projectID, title, reasoning string) error {
	rec := Record{
		ID: newRecordID(projectID, KindDecision), ProjectID: projectID, Kind: KindDecision,
		Text: title + ": " + reasoning, CreatedAt: time.Now(),
	}
	rec.Embedding = s.embedder.Embed(rec.Text)
	return s.insert(ctx, rec)
}

func (s *PostgresStore) StorePreference(ctx context.Context, projectID, category, key, value string) error {
	rec := Record{
		ID: newRecordID(projectID, KindPreference), ProjectID: projectID, Kind: KindPreference,
		Text: value, Category: category, Key: key, CreatedAt: time.Now(),
	}
	rec.Embedding = s.embedder.Embed(category + " " + key + " " + value)
	return s.insert(ctx, rec)
}

func (s *PostgresStore) StoreConstraint(ctx context.Context, projectID, description, severity string) error {
	rec := Record{
		ID: newRecordID(projectID, KindConstraint), ProjectID: projectID, Kind: KindConstraint,
		Text: description, Severity: severity, CreatedAt: time.Now(),
	}
	rec.Embedding = s.embedder.Embed(description)
	return s.insert(ctx, rec)
}

func (s *PostgresStore) load(ctx context.Context, projectID string, kind Kind, language string) ([]Record, error) {
	q := `SELECT id, project_id, kind, text, embedding, filepath, language, category, key, severity, created_at
	      FROM memory_records WHERE project_id = $1 AND kind = $2`
	args := []any{projectID, kind}
	if language != "" {
		q += " AND language = $3"
		args = append(args, language)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: query records: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var embBytes []byte
		if err := rows.Scan(&rec.ID, &rec.ProjectID, &rec.Kind, &rec.Text, &embBytes,
			&rec.Filepath, &rec.Language, &rec.Category, &rec.Key, &rec.Severity, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan record: %w", err)
		}
		if err := cbor.Unmarshal(embBytes, &rec.Embedding); err != nil {
			return nil, fmt.Errorf("memory: decode embedding: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PostgresStore) search(ctx context.Context, projectID string, kind Kind, query string, n int, language string) ([]SearchResult, error) {
	cacheKey := fmt.Sprintf("%s|%s|%s|%d|%s", projectID, kind, query, n, language)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}

	candidates, err := s.load(ctx, projectID, kind, language)
	if err != nil {
		return nil, err
	}
	queryVec := s.embedder.Embed(query)
	results := rankBySimilarity(queryVec, candidates, n)

	s.cache.Set(cacheKey, results, 0)
	return results, nil
}

func (s *PostgresStore) SearchCode(ctx context.Context, projectID, query string, n int, language string) ([]SearchResult, error) {
	return s.search(ctx, projectID, KindCode, query, n, language)
}

func (s *PostgresStore) SearchDecisions(ctx context.Context, projectID, query string, n int) ([]SearchResult, error) {
	return s.search(ctx, projectID, KindDecision, query, n, "")
}

func (s *PostgresStore) SearchPreferences(ctx context.Context, projectID, query string, n int) ([]SearchResult, error) {
	return s.search(ctx, projectID, KindPreference, query, n, "")
}

func (s *PostgresStore) SearchConstraints(ctx context.Context, projectID, query string, n int) ([]SearchResult, error) {
	return s.search(ctx, projectID, KindConstraint, query, n, "")
}

// DeleteProject removes every record for projectID, satisfying §4.10's
// "deleted on project deletion" lifecycle rule.
func (s *PostgresStore) DeleteProject(ctx context.Context, projectID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memory_records WHERE project_id = $1`, projectID)
	s.cache.Clear()
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
