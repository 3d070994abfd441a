package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dshills/repoindex/pkg/types"
)

const metaDimension = "dimension"

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

// OpenSQLiteStorage opens dbPath like NewSQLiteStorage. A database that cannot
// be opened or migrated is renamed to "<path>.corrupt-<unix>" and a fresh one
// is created in its place.
func OpenSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	s, err := NewSQLiteStorage(dbPath)
	if err == nil {
		return s, nil
	}
	if dbPath == ":memory:" {
		return nil, err
	}
	if _, statErr := os.Stat(dbPath); statErr != nil {
		return nil, err
	}

	aside := fmt.Sprintf("%s.corrupt-%d", dbPath, time.Now().Unix())
	log.WithError(err).WithFields(log.Fields{
		"path":     dbPath,
		"moved_to": aside,
	}).Warn("index database unreadable, starting with an empty index")

	if renameErr := os.Rename(dbPath, aside); renameErr != nil {
		return nil, fmt.Errorf("failed to move corrupt database aside: %w", renameErr)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(dbPath + suffix)
	}

	return NewSQLiteStorage(dbPath)
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *SQLiteStorage) Path() string {
	return s.path
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// seqRecord is a chunk row with its ordering key
type seqRecord struct {
	seq    int64
	record types.ChunkRecord
}

// seqVector is an embedding row with its ordering key
type seqVector struct {
	seq    int64
	vector []float32
}

// Load reads the chunks, embeddings and file hashes independently
func (s *SQLiteStorage) Load(ctx context.Context) (*Snapshot, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database unavailable: %w", err)
	}

	snap := &Snapshot{Hashes: make(map[string]string)}
	logger := log.WithField("path", s.path)

	records, err := s.loadChunks(ctx)
	if err != nil {
		logger.WithError(err).Warn("chunk metadata unreadable, resetting")
		records, snap.Dirty = nil, true
	}

	vectors, dimension, err := s.loadEmbeddings(ctx)
	if err != nil {
		logger.WithError(err).Warn("embedding matrix unreadable, resetting")
		vectors, dimension, snap.Dirty = nil, 0, true
	}

	hashes, err := s.loadHashes(ctx)
	if err != nil {
		logger.WithError(err).Warn("file hashes unreadable, resetting")
		hashes, snap.Dirty = map[string]string{}, true
	}

	if !aligned(records, vectors) {
		logger.WithFields(log.Fields{
			"chunks":     len(records),
			"embeddings": len(vectors),
		}).Warn("chunk metadata and embedding matrix disagree, resetting index")
		records, vectors, hashes = nil, nil, map[string]string{}
		dimension = 0
		snap.Dirty = true
	}

	for _, r := range records {
		snap.Records = append(snap.Records, r.record)
	}
	for _, v := range vectors {
		snap.Vectors = append(snap.Vectors, v.vector)
	}
	snap.Hashes = hashes
	snap.Dimension = dimension

	return snap, nil
}

func aligned(records []seqRecord, vectors []seqVector) bool {
	if len(records) != len(vectors) {
		return false
	}
	for i := range records {
		if records[i].seq != vectors[i].seq {
			return false
		}
	}
	return true
}

func (s *SQLiteStorage) loadChunks(ctx context.Context) ([]seqRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, file_path, chunk_index, chunk_type, name, content
		FROM chunks ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []seqRecord
	for rows.Next() {
		var r seqRecord
		var chunkType string
		if err := rows.Scan(&r.seq, &r.record.ID, &r.record.FilePath, &r.record.ChunkIndex,
			&chunkType, &r.record.Name, &r.record.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		r.record.ChunkType = types.ChunkType(chunkType)
		if !r.record.ChunkType.Valid() {
			return nil, fmt.Errorf("chunk %s has invalid type %q", r.record.ID, chunkType)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// loadEmbeddings returns the vectors in row order and their common dimension
func (s *SQLiteStorage) loadEmbeddings(ctx context.Context) ([]seqVector, int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT seq, dimension, vector FROM embeddings ORDER BY seq`)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []seqVector
	dimension := 0
	for rows.Next() {
		var v seqVector
		var dim int
		var blob []byte
		if err := rows.Scan(&v.seq, &dim, &blob); err != nil {
			return nil, 0, fmt.Errorf("failed to scan embedding: %w", err)
		}
		v.vector, err = deserializeVector(blob)
		if err != nil {
			return nil, 0, fmt.Errorf("embedding %d: %w", v.seq, err)
		}
		if len(v.vector) != dim || dim == 0 {
			return nil, 0, fmt.Errorf("embedding %d: %w: blob has %d values, row says %d",
				v.seq, ErrDimensionMismatch, len(v.vector), dim)
		}
		if dimension == 0 {
			dimension = dim
		} else if dim != dimension {
			return nil, 0, fmt.Errorf("embedding %d: %w: %d != %d", v.seq, ErrDimensionMismatch, dim, dimension)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if stored, ok, err := s.loadMeta(ctx, metaDimension); err == nil && ok && len(out) > 0 {
		if d, convErr := strconv.Atoi(stored); convErr != nil || d != dimension {
			return nil, 0, fmt.Errorf("%w: recorded dimension %q, rows have %d", ErrDimensionMismatch, stored, dimension)
		}
	}

	return out, dimension, nil
}

func (s *SQLiteStorage) loadHashes(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path, content_hash FROM file_hashes`)
	if err != nil {
		return nil, fmt.Errorf("failed to query file hashes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	hashes := make(map[string]string)
	for rows.Next() {
		var path, hash string
		if err := rows.Scan(&path, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan file hash: %w", err)
		}
		hashes[path] = hash
	}
	return hashes, rows.Err()
}

func (s *SQLiteStorage) loadMeta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM index_meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// ReplaceFile swaps the rows of one file inside a single transaction
func (s *SQLiteStorage) ReplaceFile(ctx context.Context, path string, records []types.ChunkRecord, vectors [][]float32, contentHash string, dimension int) error {
	if len(records) != len(vectors) {
		return ErrLengthMismatch
	}
	return s.withTx(ctx, func(q querier) error {
		if err := deleteFileRows(ctx, q, path); err != nil {
			return err
		}
		if err := insertRows(ctx, q, records, vectors); err != nil {
			return err
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO file_hashes (file_path, content_hash) VALUES (?, ?)
			ON CONFLICT(file_path) DO UPDATE SET content_hash = excluded.content_hash
		`, path, contentHash); err != nil {
			return fmt.Errorf("failed to store file hash: %w", err)
		}
		return setMeta(ctx, q, metaDimension, strconv.Itoa(dimension))
	})
}

// DeleteFile removes every row of path inside a single transaction
func (s *SQLiteStorage) DeleteFile(ctx context.Context, path string) error {
	return s.withTx(ctx, func(q querier) error {
		return deleteFileRows(ctx, q, path)
	})
}

// Rewrite replaces the whole index inside a single transaction
func (s *SQLiteStorage) Rewrite(ctx context.Context, snap *Snapshot) error {
	if len(snap.Records) != len(snap.Vectors) {
		return ErrLengthMismatch
	}
	return s.withTx(ctx, func(q querier) error {
		for _, table := range []string{"embeddings", "chunks", "file_hashes", "index_meta"} {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		if err := insertRows(ctx, q, snap.Records, snap.Vectors); err != nil {
			return err
		}
		for path, hash := range snap.Hashes {
			if _, err := q.ExecContext(ctx, `INSERT INTO file_hashes (file_path, content_hash) VALUES (?, ?)`, path, hash); err != nil {
				return fmt.Errorf("failed to store file hash: %w", err)
			}
		}
		if snap.Dimension > 0 {
			return setMeta(ctx, q, metaDimension, strconv.Itoa(snap.Dimension))
		}
		return nil
	})
}

// withTx runs fn in a transaction, rolling back on error
func (s *SQLiteStorage) withTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteFileRows(ctx context.Context, q querier, path string) error {
	if _, err := q.ExecContext(ctx, `
		DELETE FROM embeddings WHERE seq IN (SELECT seq FROM chunks WHERE file_path = ?)
	`, path); err != nil {
		return fmt.Errorf("failed to delete embeddings: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM file_hashes WHERE file_path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete file hash: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, q querier, records []types.ChunkRecord, vectors [][]float32) error {
	for i, r := range records {
		res, err := q.ExecContext(ctx, `
			INSERT INTO chunks (id, file_path, chunk_index, chunk_type, name, content)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, r.FilePath, r.ChunkIndex, string(r.ChunkType), r.Name, r.Content)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", r.ID, err)
		}
		seq, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get chunk row id: %w", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO embeddings (seq, dimension, vector) VALUES (?, ?, ?)
		`, seq, len(vectors[i]), serializeVector(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert embedding for %s: %w", r.ID, err)
		}
	}
	return nil
}

func setMeta(ctx context.Context, q querier, key, value string) error {
	if _, err := q.ExecContext(ctx, `
		INSERT INTO index_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}
