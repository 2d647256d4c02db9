package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo driver "sqlite3", opt-in
	_ "modernc.org/sqlite"          // pure Go driver "sqlite", default

	amerrors "github.com/Aman-CERP/amanidx/internal/errors"
	"github.com/Aman-CERP/amanidx/internal/tfidf"
)

const (
	DriverModernc = "sqlite"
	DriverCGO     = "sqlite3"
)

// SQLiteOptions configures OpenSQLite.
type SQLiteOptions struct {
	// Driver is DriverModernc (default) or DriverCGO.
	Driver string
	Logger *slog.Logger
}

// SQLiteStore implements SnapshotStore on a single SQLite file.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	logger *slog.Logger
	closed bool
}

var _ SnapshotStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS files (
	path       TEXT PRIMARY KEY,
	mtime      INTEGER NOT NULL,
	hash       TEXT NOT NULL,
	content    TEXT,
	language   TEXT,
	size       INTEGER,
	indexed_at INTEGER
);
CREATE TABLE IF NOT EXISTS terms (
	path      TEXT NOT NULL,
	term      TEXT NOT NULL,
	frequency INTEGER NOT NULL,
	UNIQUE (path, term)
);
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	uri        TEXT NOT NULL,
	magnitude  REAL NOT NULL,
	term_count INTEGER NOT NULL,
	raw_terms  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS idf (
	term  TEXT PRIMARY KEY,
	value REAL NOT NULL
);
`

var requiredTables = []string{"metadata", "files", "terms", "documents", "idf"}

// OpenSQLite opens or creates the store at path; "" opens an in-memory
// database. A file that fails its integrity check is deleted first, so a
// corrupt cache costs a rebuild rather than an error.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverModernc
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "create store directory", err)
		}
		if err := validateIntegrity(driver, path); err != nil {
			logger.Warn("snapshot store corrupted, discarding",
				slog.String("path", path), slog.String("error", err.Error()))
			if rmErr := removeDatabase(path); rmErr != nil {
				return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "remove corrupt store", rmErr)
			}
		}
		dsn = path
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "open "+driver+" database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	if path != "" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "set pragma", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, amerrors.New(amerrors.ErrCodeStoreOpen, "create schema", err)
	}

	return &SQLiteStore{db: db, path: path, logger: logger}, nil
}

func validateIntegrity(driver, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	db, err := sql.Open(driver, path)
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	return nil
}

func removeDatabase(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(path + "-wal")
	_ = os.Remove(path + "-shm")
	return nil
}

// Path is "" for an in-memory store.
func (s *SQLiteStore) Path() string { return s.path }

// DB exposes the handle for tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) check() error {
	if s.closed {
		return errors.New("snapshot store is closed")
	}
	return nil
}

// Save replaces every table inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return amerrors.ValidationError("nil snapshot", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return amerrors.PersistError(err)
	}

	if err := s.save(ctx, snap); err != nil {
		return amerrors.PersistError(err)
	}
	if s.path != "" {
		if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			s.logger.Debug("wal checkpoint failed", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *SQLiteStore) save(ctx context.Context, snap *Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := clearTables(ctx, tx); err != nil {
		return err
	}

	version := snap.Version
	if version == "" {
		version = SnapshotVersion
	}
	meta := map[string]string{
		MetaVersion:   version,
		MetaRootPath:  snap.RootPath,
		MetaIndexedAt: snap.IndexedAt.UTC().Format(time.RFC3339Nano),
		MetaFileCount: strconv.Itoa(len(snap.Files)),
	}
	if snap.VectorIndexPath != "" {
		meta[MetaVectorIndexPath] = snap.VectorIndexPath
	}
	if snap.EmbeddingModel != "" {
		meta[MetaEmbeddingModel] = snap.EmbeddingModel
	}
	if err := insertEach(ctx, tx, "INSERT INTO metadata (key, value) VALUES (?, ?)", meta,
		func(k, v string) []any { return []any{k, v} }); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	if err := insertEach(ctx, tx,
		"INSERT INTO files (path, mtime, hash, content, language, size, indexed_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		snap.Files, func(p string, f *FileEntry) []any {
			var content any
			if c, ok := snap.Contents[p]; ok {
				content = c
			}
			return []any{p, unixNano(f.ModTime), f.ContentHash, content, f.Language, f.Size, unixNano(f.IndexedAt)}
		}); err != nil {
		return fmt.Errorf("write files: %w", err)
	}

	docStmt, err := tx.PrepareContext(ctx,
		"INSERT INTO documents (path, uri, magnitude, term_count, raw_terms) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare documents: %w", err)
	}
	defer docStmt.Close()
	termStmt, err := tx.PrepareContext(ctx, "INSERT INTO terms (path, term, frequency) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare terms: %w", err)
	}
	defer termStmt.Close()

	for _, d := range snap.Documents {
		if _, err := docStmt.ExecContext(ctx, d.Path, d.URI, d.Magnitude, d.TermCount, d.RawTerms); err != nil {
			return fmt.Errorf("write document %s: %w", d.Path, err)
		}
		for term, freq := range d.TermFrequencies {
			if _, err := termStmt.ExecContext(ctx, d.Path, term, freq); err != nil {
				return fmt.Errorf("write terms of %s: %w", d.Path, err)
			}
		}
	}

	if err := insertEach(ctx, tx, "INSERT INTO idf (term, value) VALUES (?, ?)", snap.IDF,
		func(t string, v float64) []any { return []any{t, v} }); err != nil {
		return fmt.Errorf("write idf: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertEach[V any](ctx context.Context, tx *sql.Tx, query string, rows map[string]V, args func(string, V) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for k, v := range rows {
		if _, err := stmt.ExecContext(ctx, args(k, v)...); err != nil {
			return err
		}
	}
	return nil
}

func clearTables(ctx context.Context, tx *sql.Tx) error {
	for _, table := range requiredTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// Load reads the whole snapshot inside one transaction.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin read: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	meta, err := readMetadata(ctx, tx)
	if err != nil {
		return nil, amerrors.CacheCorruptError(err)
	}
	version, ok := meta[MetaVersion]
	if !ok {
		return nil, nil
	}
	if version != SnapshotVersion {
		return nil, amerrors.CacheCorruptError(fmt.Errorf("unsupported snapshot version %q", version))
	}

	snap := &Snapshot{
		Version:         version,
		RootPath:        meta[MetaRootPath],
		VectorIndexPath: meta[MetaVectorIndexPath],
		EmbeddingModel:  meta[MetaEmbeddingModel],
	}
	if snap.IndexedAt, err = time.Parse(time.RFC3339Nano, meta[MetaIndexedAt]); err != nil {
		return nil, amerrors.CacheCorruptError(fmt.Errorf("indexedAt: %w", err))
	}
	if snap.FileCount, err = strconv.Atoi(meta[MetaFileCount]); err != nil {
		return nil, amerrors.CacheCorruptError(fmt.Errorf("fileCount: %w", err))
	}

	if snap.Files, err = readFiles(ctx, tx); err != nil {
		return nil, amerrors.CacheCorruptError(err)
	}
	if len(snap.Files) != snap.FileCount {
		return nil, amerrors.CacheCorruptError(fmt.Errorf("fileCount %d but %d file rows", snap.FileCount, len(snap.Files)))
	}
	if snap.Documents, err = readDocuments(ctx, tx); err != nil {
		return nil, amerrors.CacheCorruptError(err)
	}
	if snap.IDF, err = readIDF(ctx, tx); err != nil {
		return nil, amerrors.CacheCorruptError(err)
	}
	return snap, nil
}

// Clear removes every row; the schema stays.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := clearTables(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Stats(ctx context.Context) (CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return CacheStats{}, err
	}

	meta, err := readMetadata(ctx, s.db)
	if err != nil {
		return CacheStats{}, err
	}
	if _, ok := meta[MetaVersion]; !ok {
		return CacheStats{}, nil
	}
	stats := CacheStats{Exists: true}
	stats.FileCount, _ = strconv.Atoi(meta[MetaFileCount])
	stats.IndexedAt, _ = time.Parse(time.RFC3339Nano, meta[MetaIndexedAt])
	return stats, nil
}

// Exists reports whether a snapshot has been saved.
func (s *SQLiteStore) Exists(ctx context.Context) (bool, error) {
	stats, err := s.Stats(ctx)
	return stats.Exists, err
}

func (s *SQLiteStore) FileEntries(ctx context.Context) (map[string]*FileEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	return readFiles(ctx, s.db)
}

func (s *SQLiteStore) TermFrequencies(ctx context.Context, path string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT term, frequency FROM terms WHERE path = ?", path)
	if err != nil {
		return nil, fmt.Errorf("query terms: %w", err)
	}
	defer rows.Close()

	tf := make(map[string]int)
	for rows.Next() {
		var term string
		var freq int
		if err := rows.Scan(&term, &freq); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		tf[term] = freq
	}
	return tf, rows.Err()
}

func (s *SQLiteStore) Documents(ctx context.Context) ([]*tfidf.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	return readDocuments(ctx, s.db)
}

func (s *SQLiteStore) IDF(ctx context.Context) (tfidf.IDFTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	return readIDF(ctx, s.db)
}

// FileContent returns the content stored with the last snapshot.
func (s *SQLiteStore) FileContent(ctx context.Context, path string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return "", false, err
	}

	var content sql.NullString
	err := s.db.QueryRowContext(ctx, "SELECT content FROM files WHERE path = ?", path).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query content: %w", err)
	}
	return content.String, content.Valid, nil
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return "", false, err
	}

	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query metadata: %w", err)
	}
	return v, true, nil
}

func (s *SQLiteStore) SetMetadata(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// Close checkpoints the WAL and closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.path != "" {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

func readMetadata(ctx context.Context, q querier) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT key, value FROM metadata")
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan metadata: %w", err)
		}
		meta[k] = v
	}
	return meta, rows.Err()
}

func readFiles(ctx context.Context, q querier) (map[string]*FileEntry, error) {
	rows, err := q.QueryContext(ctx, "SELECT path, mtime, hash, language, size, indexed_at FROM files")
	if err != nil {
		return nil, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := make(map[string]*FileEntry)
	for rows.Next() {
		var (
			f         FileEntry
			mtime     int64
			language  sql.NullString
			size      sql.NullInt64
			indexedAt sql.NullInt64
		)
		if err := rows.Scan(&f.Path, &mtime, &f.ContentHash, &language, &size, &indexedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.ModTime = fromUnixNano(mtime)
		f.Language = language.String
		f.Size = size.Int64
		f.IndexedAt = fromUnixNano(indexedAt.Int64)
		files[f.Path] = &f
	}
	return files, rows.Err()
}

// readDocuments rebuilds each document's term map from the flat terms table.
func readDocuments(ctx context.Context, q querier) ([]*tfidf.Document, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT path, uri, magnitude, term_count, raw_terms FROM documents ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	var docs []*tfidf.Document
	byPath := make(map[string]*tfidf.Document)
	for rows.Next() {
		d := &tfidf.Document{TermFrequencies: make(map[string]int)}
		if err := rows.Scan(&d.Path, &d.URI, &d.Magnitude, &d.TermCount, &d.RawTerms); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
		byPath[d.Path] = d
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	trows, err := q.QueryContext(ctx, "SELECT path, term, frequency FROM terms")
	if err != nil {
		return nil, fmt.Errorf("query terms: %w", err)
	}
	defer trows.Close()
	for trows.Next() {
		var path, term string
		var freq int
		if err := trows.Scan(&path, &term, &freq); err != nil {
			return nil, fmt.Errorf("scan term: %w", err)
		}
		d, ok := byPath[path]
		if !ok {
			return nil, fmt.Errorf("terms reference unknown document %s", path)
		}
		d.TermFrequencies[term] = freq
	}
	if err := trows.Err(); err != nil {
		return nil, err
	}

	for _, d := range docs {
		if len(d.TermFrequencies) != d.TermCount {
			return nil, fmt.Errorf("document %s: %d terms stored, %d expected", d.Path, len(d.TermFrequencies), d.TermCount)
		}
	}
	return docs, nil
}

func readIDF(ctx context.Context, q querier) (tfidf.IDFTable, error) {
	rows, err := q.QueryContext(ctx, "SELECT term, value FROM idf")
	if err != nil {
		return nil, fmt.Errorf("query idf: %w", err)
	}
	defer rows.Close()

	idf := make(tfidf.IDFTable)
	for rows.Next() {
		var term string
		var v float64
		if err := rows.Scan(&term, &v); err != nil {
			return nil, fmt.Errorf("scan idf: %w", err)
		}
		idf[term] = v
	}
	return idf, rows.Err()
}

// Zero times are stored as 0 so they read back as the zero time.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
