package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// sqliteMigrations upgrade the schema one version at a time. The stored
// version lives in PRAGMA user_version; index i migrates version i to i+1.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		binary BLOB NOT NULL
	)`,
}

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string

	initMu      sync.Mutex
	initialized bool
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, storageError("open", err)
	}
	// A single connection keeps ":memory:" databases shared between calls and
	// serializes writers the way SQLite does anyway.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

// ensureSchema runs pending migrations once per store. A failed attempt is
// retried by the next operation.
func (s *SQLiteDatabase) ensureSchema(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return storageError("init", fmt.Errorf("failed to read schema version: %w", err))
	}
	if version > len(sqliteMigrations) {
		return storageError("init", fmt.Errorf("schema version %d is newer than supported version %d", version, len(sqliteMigrations)))
	}

	for v := version; v < len(sqliteMigrations); v++ {
		if err := s.migrate(ctx, v); err != nil {
			return storageError("init", err)
		}
	}

	s.initialized = true
	return nil
}

func (s *SQLiteDatabase) migrate(ctx context.Context, from int) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, sqliteMigrations[from]); err != nil {
		return fmt.Errorf("failed to migrate schema to version %d: %w", from+1, err)
	}
	// PRAGMA does not accept bound parameters
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", from+1)); err != nil {
		return fmt.Errorf("failed to set schema version %d: %w", from+1, err)
	}
	return tx.Commit()
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return storageError("close", s.db.Close())
	}
	return nil
}

func (s *SQLiteDatabase) Put(ctx context.Context, id string, binary []byte) error {
	if id == "" {
		return storageError("put", ErrEmptyID)
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	if binary == nil {
		binary = []byte{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO images (id, binary) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET binary = excluded.binary`, id, binary)
	return storageError("put", err)
}

func (s *SQLiteDatabase) GetAll(ctx context.Context) ([]*Image, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, binary FROM images")
	if err != nil {
		return nil, storageError("getAll", err)
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as rows.Err() is checked below
	}()

	var images []*Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.Binary); err != nil {
			return nil, storageError("getAll", err)
		}
		images = append(images, &img)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("getAll", err)
	}
	return images, nil
}

func (s *SQLiteDatabase) Get(ctx context.Context, id string) (*Image, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var img Image
	err := s.db.QueryRowContext(ctx, "SELECT id, binary FROM images WHERE id = ?", id).Scan(&img.ID, &img.Binary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("get", err)
	}
	return &img, nil
}

func (s *SQLiteDatabase) Delete(ctx context.Context, id string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, "DELETE FROM images WHERE id = ?", id)
	return storageError("delete", err)
}
