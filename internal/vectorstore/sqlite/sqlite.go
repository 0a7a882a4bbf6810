// Package sqlite is a persistent vector store on a single SQLite file.
//
// Vectors are stored as little-endian float32 blobs. Search is brute force
// over an in-memory snapshot of the collection, loaded on first use and
// dropped on every write.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver

	"qarag/internal/domain"
	"qarag/internal/vectorstore"
)

// FileName is the database file created inside the persist directory.
const FileName = "vectors.db"

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	dimension  INTEGER NOT NULL,
	embedder   TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	collection  TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
	id          TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	source      TEXT NOT NULL,
	text        TEXT NOT NULL,
	vector      BLOB NOT NULL,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS chunks_seq ON chunks(collection, seq);
`

// Config defines where the store lives and what it records about the collection.
type Config struct {
	Dir        string
	Collection string
	// Embedder is recorded in the collection row on Init.
	Embedder     string
	BusyTimeout  time.Duration
	MaxOpenConns int
}

// Meta describes a collection as recorded at build time.
type Meta struct {
	Name      string
	Dimension int
	Embedder  string
	CreatedAt time.Time
}

type snapshot struct {
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float64
}

// Storage implements vectorstore.Storage on SQLite.
type Storage struct {
	db         *sql.DB
	collection string
	embedder   string

	mu   sync.RWMutex
	snap *snapshot
}

// Open creates the persist directory if needed and opens <dir>/vectors.db
// with WAL and busy_timeout applied to every pooled connection.
func Open(cfg Config) (*Storage, error) {
	if cfg.Collection == "" {
		return nil, errors.New("sqlite: collection name required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("sqlite: create dir: %w", err)
	}
	path := filepath.Join(cfg.Dir, FileName)
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		path, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return &Storage{db: db, collection: cfg.Collection, embedder: cfg.Embedder}, nil
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	defer s.invalidate()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, s.collection); err != nil {
		return fmt.Errorf("sqlite: reset chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO collections (name, dimension, embedder, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET dimension = excluded.dimension, embedder = excluded.embedder, created_at = excluded.created_at`,
		s.collection, dimension, s.embedder, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("sqlite: create collection: %w", err)
	}
	return tx.Commit()
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	defer s.invalidate()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var dim int
	err = tx.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite: collection %q not initialised", s.collection)
	}
	if err != nil {
		return err
	}
	var next int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM chunks WHERE collection = ?`, s.collection).Scan(&next); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (collection, id, seq, document_id, chunk_index, source, text, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			document_id = excluded.document_id, chunk_index = excluded.chunk_index,
			source = excluded.source, text = excluded.text, vector = excluded.vector`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, ch := range chunks {
		if len(vectors[i]) != dim {
			return fmt.Errorf("%w: got %d, collection has %d", domain.ErrDimensionMismatch, len(vectors[i]), dim)
		}
		if _, err := stmt.ExecContext(ctx, s.collection, ch.ID, next+int64(i), ch.DocumentID, ch.Index, ch.Source, ch.Text, encodeVector(vectors[i])); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(snap.chunks) == 0 {
		return nil, nil
	}
	if len(vector) != snap.dimension {
		return nil, fmt.Errorf("%w: query has %d, collection has %d", domain.ErrDimensionMismatch, len(vector), snap.dimension)
	}
	return vectorstore.TopK(snap.chunks, snap.vectors, vector, topK), nil
}

func (s *Storage) SearchText(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return vectorstore.LexicalTopK(snap.chunks, query, topK), nil
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, s.collection).Scan(&n)
	return n, err
}

// Clear drops the collection and its chunks.
func (s *Storage) Clear(ctx context.Context) error {
	defer s.invalidate()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, s.collection); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, s.collection); err != nil {
		return err
	}
	return tx.Commit()
}

// Meta returns the recorded collection metadata. ok is false when the
// collection does not exist.
func (s *Storage) Meta(ctx context.Context) (meta Meta, ok bool, err error) {
	var created string
	err = s.db.QueryRowContext(ctx, `SELECT name, dimension, embedder, created_at FROM collections WHERE name = ?`, s.collection).
		Scan(&meta.Name, &meta.Dimension, &meta.Embedder, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Meta{}, false, nil
	}
	if err != nil {
		return Meta{}, false, err
	}
	meta.CreatedAt, _ = time.Parse(time.RFC3339, created)
	return meta, true, nil
}

func (s *Storage) Close() error     { return s.db.Close() }
func (s *Storage) Persistent() bool { return true }

func (s *Storage) invalidate() {
	s.mu.Lock()
	s.snap = nil
	s.mu.Unlock()
}

func (s *Storage) load(ctx context.Context) (*snapshot, error) {
	s.mu.RLock()
	snap := s.snap
	s.mu.RUnlock()
	if snap != nil {
		return snap, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap != nil {
		return s.snap, nil
	}
	snap = &snapshot{}
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, s.collection).Scan(&snap.dimension)
	if errors.Is(err, sql.ErrNoRows) {
		s.snap = snap
		return snap, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, chunk_index, source, text, vector
		FROM chunks WHERE collection = ? ORDER BY seq`, s.collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			ch   domain.Chunk
			blob []byte
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Index, &ch.Source, &ch.Text, &blob); err != nil {
			return nil, err
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("sqlite: chunk %s: %w", ch.ID, err)
		}
		snap.chunks = append(snap.chunks, ch)
		snap.vectors = append(snap.vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.snap = snap
	return snap, nil
}

func encodeVector(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(x)))
	}
	return buf
}

func decodeVector(b []byte) ([]float64, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("corrupt vector blob of %d bytes", len(b))
	}
	v := make([]float64, len(b)/4)
	for i := range v {
		v[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return v, nil
}
