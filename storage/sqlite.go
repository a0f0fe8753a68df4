package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tidbyt.dev/trainlocation/model"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

type SQLiteStore struct {
	SQLiteConfig

	db *sql.DB
}

// Creates a new SQLite backed store. By default the database lives in
// memory. With OnDisk, a file in Directory is used, but it's emptied
// on open.
func NewSQLiteStore(cfg ...SQLiteConfig) (*SQLiteStore, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = filepath.Join(directory, "trainlocation.db")
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
DROP TABLE IF EXISTS train_metadata;
CREATE TABLE train_metadata (
    train_number INTEGER NOT NULL,
    body BLOB NOT NULL,
    cached_at TIMESTAMP NOT NULL,
PRIMARY KEY (train_number)
);`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating train_metadata table: %w", err)
	}

	return &SQLiteStore{
		SQLiteConfig: SQLiteConfig{
			OnDisk:    onDisk,
			Directory: directory,
		},
		db: db,
	}, nil
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	var body []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT body FROM train_metadata WHERE train_number = ?`,
		trainNumber,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying train_metadata: %w", err)
	}

	return decodeMetadata(body)
}

func (s *SQLiteStore) WriteMetadata(ctx context.Context, meta *model.TrainMetadata) error {
	body, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT OR REPLACE INTO train_metadata (train_number, body, cached_at) VALUES (?, ?, ?)`,
		meta.TrainNumber,
		body,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("inserting train_metadata: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
