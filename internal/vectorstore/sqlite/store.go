// Package sqlite keeps the vector index in a single SQLite database inside
// the persist directory. Rows are loaded into an in-memory index when the
// store is opened; searches never touch the database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"speechqa/internal/domain"
	"speechqa/internal/logger"
	"speechqa/internal/vectorstore"
	"speechqa/internal/vectorstore/memory"
)

// DBFile is the database file name inside the persist directory.
const DBFile = "index.sqlite3"

const schema = `
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
    idx         INTEGER PRIMARY KEY,
    chunk_id    TEXT NOT NULL UNIQUE,
    document_id TEXT NOT NULL,
    source      TEXT NOT NULL,
    char_offset INTEGER NOT NULL,
    text        TEXT NOT NULL,
    embedding   BLOB NOT NULL
);
`

// Backend opens and creates directory-backed indexes.
type Backend struct{}

func NewBackend() *Backend { return &Backend{} }

func (b *Backend) Name() string { return "sqlite" }

// Populated reports whether dir exists and has at least one entry. The
// contents are not inspected.
func (b *Backend) Populated(_ context.Context, dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return len(entries) > 0, nil
}

// Create makes dir (and parents) and initialises an empty index in it.
func (b *Backend) Create(ctx context.Context, dir string, dimension int, embedder string) (vectorstore.Storage, error) {
	if dimension <= 0 {
		return nil, errors.New("sqlite: invalid dimension")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create %s: %w", dir, err)
	}
	db, err := openDB(filepath.Join(dir, DBFile))
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	meta := map[string]string{
		"dimension":  strconv.Itoa(dimension),
		"embedder":   embedder,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := db.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key, value) VALUES(?, ?)`, k, v); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: write meta: %w", err)
		}
	}
	mem, err := memory.NewStorage(dimension)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, dir: dir, embedder: embedder, index: mem}, nil
}

// Drop deletes the database file and its journals, then dir itself if
// nothing else is left in it.
func (b *Backend) Drop(_ context.Context, dir string) error {
	var errs []error
	for _, suffix := range []string{"", "-journal", "-wal", "-shm"} {
		if err := os.Remove(filepath.Join(dir, DBFile+suffix)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open reopens an index previously written by Create and loads every row.
func (b *Backend) Open(ctx context.Context, dir string) (vectorstore.Storage, error) {
	path := filepath.Join(dir, DBFile)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("sqlite: %s does not hold an index: %w", dir, err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	s, err := load(ctx, db, dir)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer, at most once, at startup.
	db.SetMaxOpenConns(1)
	return db, nil
}

func load(ctx context.Context, db *sql.DB, dir string) (*Store, error) {
	meta := map[string]string{}
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, err
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	dimension, err := strconv.Atoi(meta["dimension"])
	if err != nil {
		return nil, fmt.Errorf("sqlite: bad dimension in meta: %q", meta["dimension"])
	}
	mem, err := memory.NewStorage(dimension)
	if err != nil {
		return nil, err
	}

	rows, err = db.QueryContext(ctx, `SELECT idx, chunk_id, document_id, source, char_offset, text, embedding FROM chunks ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: read chunks: %w", err)
	}
	defer rows.Close()
	var (
		chunks  []domain.Chunk
		vectors [][]float32
	)
	for rows.Next() {
		var (
			ch   domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&ch.Index, &ch.ChunkID, &ch.DocumentID, &ch.Source, &ch.Offset, &ch.Text, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, ch)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := mem.Upsert(ctx, chunks, vectors); err != nil {
		return nil, err
	}
	logger.Debug("loaded %d chunks (dim=%d) from %s", len(chunks), dimension, dir)
	return &Store{db: db, dir: dir, embedder: meta["embedder"], index: mem}, nil
}

// Store is an opened directory index.
type Store struct {
	db       *sql.DB
	dir      string
	embedder string
	index    *memory.Storage
}

// Upsert writes all pairs in one transaction, then makes them searchable.
func (s *Store) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	for _, v := range vectors {
		if len(v) != s.index.Dimension() {
			return fmt.Errorf("%w: got %d, index has %d", vectorstore.ErrDimensionMismatch, len(v), s.index.Dimension())
		}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO chunks(idx, chunk_id, document_id, source, char_offset, text, embedding) VALUES(?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.Index, ch.ChunkID, ch.DocumentID, ch.Source, ch.Offset, ch.Text, encodeEmbedding(vectors[i])); err != nil {
			return fmt.Errorf("sqlite: insert chunk %s: %w", ch.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return s.index.Upsert(ctx, chunks, vectors)
}

func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error) {
	return s.index.Search(ctx, vector, topK)
}

func (s *Store) Describe(_ context.Context) (vectorstore.Description, error) {
	return vectorstore.Description{
		Backend:   "sqlite",
		Location:  s.dir,
		Dimension: s.index.Dimension(),
		Embedder:  s.embedder,
		Count:     s.index.Len(),
	}, nil
}

func (s *Store) Close() error {
	_ = s.index.Close()
	return s.db.Close()
}

var (
	_ vectorstore.Backend = (*Backend)(nil)
	_ vectorstore.Storage = (*Store)(nil)
)
