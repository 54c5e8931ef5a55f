package rag

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a VectorStore backed by a local SQLite database. Embeddings
// are stored as float32 BLOBs and scored with brute-force cosine similarity
// at query time. Suited to single-host corpora in the tens of thousands of
// chunks; use QdrantStore beyond that.
//
// Replace-on-reingest is a single transaction (DELETE + INSERT), so a reader
// never observes a half-replaced document.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the chunk database.
// It resolves to ~/.docchat/chunks.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sqlite store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".docchat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("sqlite store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "chunks.db"), nil
}

// OpenSQLiteStore opens (or creates) a SQLiteStore at the given path and runs
// the schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	// WAL mode lets readers proceed while an ingestion transaction is open.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StoreError{Store: "sqlite", Err: fmt.Errorf("open %s: %w", path, err)}
	}
	// Single writer connection avoids SQLITE_BUSY under concurrent ingestion.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS chunks (
    id              TEXT    PRIMARY KEY,
    source          TEXT    NOT NULL,
    page            INTEGER NOT NULL,
    chunk_index     INTEGER NOT NULL,
    content         TEXT    NOT NULL,
    embedding       BLOB    NOT NULL,
    embedding_model TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_source ON chunks (source);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return &StoreError{Store: "sqlite", Err: fmt.Errorf("migrate: %w", err)}
	}
	return nil
}

// Upsert replaces every chunk stored under source with the given chunk set,
// in a single transaction.
func (s *SQLiteStore) Upsert(ctx context.Context, source string, chunks []Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &StoreError{Store: "sqlite", Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE source = ?`, source); err != nil {
		return &StoreError{Store: "sqlite", Err: fmt.Errorf("delete %s: %w", source, err)}
	}

	const q = `INSERT INTO chunks (id, source, page, chunk_index, content, embedding, embedding_model)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return &StoreError{Store: "sqlite", Err: fmt.Errorf("chunk %s has no embedding", c.ID)}
		}
		if _, err := tx.ExecContext(ctx, q,
			c.ID, c.Source, c.Page, c.Index, c.Content,
			encodeEmbedding(c.Embedding), c.EmbeddingModel,
		); err != nil {
			return &StoreError{Store: "sqlite", Err: fmt.Errorf("insert chunk %s: %w", c.ID, err)}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Store: "sqlite", Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// Search scores every chunk satisfying f against queryEmbedding and returns
// the top k by cosine similarity, ties broken by insertion index.
func (s *SQLiteStore) Search(ctx context.Context, queryEmbedding []float32, k int, f Filter) ([]Match, error) {
	if k <= 0 {
		return []Match{}, nil
	}

	q := `SELECT id, source, page, chunk_index, content, embedding, embedding_model FROM chunks WHERE 1=1`
	args := []any{}
	if f.Source != "" {
		q += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.EmbeddingModel != "" {
		q += ` AND embedding_model = ?`
		args = append(args, f.EmbeddingModel)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &StoreError{Store: "sqlite", Err: fmt.Errorf("search query: %w", err)}
	}
	defer rows.Close()

	matches := []Match{}
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.Source, &c.Page, &c.Index, &c.Content, &blob, &c.EmbeddingModel); err != nil {
			return nil, &StoreError{Store: "sqlite", Err: fmt.Errorf("search scan: %w", err)}
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, &StoreError{Store: "sqlite", Err: fmt.Errorf("chunk %s: %w", c.ID, err)}
		}
		sim, err := cosineSimilarity(queryEmbedding, vec)
		if err != nil {
			return nil, &StoreError{Store: "sqlite", Err: fmt.Errorf("chunk %s: %w", c.ID, err)}
		}
		matches = append(matches, Match{Chunk: c, Similarity: float32(sim)})
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Store: "sqlite", Err: fmt.Errorf("search rows: %w", err)}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Chunk.Index < matches[j].Chunk.Index
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Ping verifies the database is reachable. Used by the readiness probe.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StoreError{Store: "sqlite", Err: err}
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("sqlite store: close: %w", err)
	}
	return nil
}
