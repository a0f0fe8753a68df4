package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"tidbyt.dev/trainlocation/model"
)

const DefaultPSQLTable = "train_metadata"

type PSQLStore struct {
	db    *sql.DB
	table string
}

// Creates a new Postgres MetadataStore using the provided connection
// string. The table is dropped and recreated, so nothing carries
// over from a previous run.
func NewPSQLStore(connStr string, table string) (*PSQLStore, error) {
	if table == "" {
		table = DefaultPSQLTable
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	quoted := pq.QuoteIdentifier(table)
	_, err = db.Exec(fmt.Sprintf(`
DROP TABLE IF EXISTS %[1]s;
CREATE TABLE %[1]s (
    train_number INTEGER NOT NULL,
    body JSONB NOT NULL,
    cached_at TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (train_number)
);`, quoted))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating %s table: %w", table, err)
	}

	return &PSQLStore{
		db:    db,
		table: quoted,
	}, nil
}

func (s *PSQLStore) GetMetadata(ctx context.Context, trainNumber int) (*model.TrainMetadata, error) {
	var body []byte
	err := s.db.QueryRowContext(
		ctx,
		fmt.Sprintf(`SELECT body FROM %s WHERE train_number = $1`, s.table),
		trainNumber,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying metadata: %w", err)
	}

	return decodeMetadata(body)
}

func (s *PSQLStore) WriteMetadata(ctx context.Context, meta *model.TrainMetadata) error {
	body, err := encodeMetadata(meta)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		fmt.Sprintf(`
INSERT INTO %s (train_number, body, cached_at)
VALUES ($1, $2, $3)
ON CONFLICT (train_number) DO UPDATE SET body = EXCLUDED.body, cached_at = EXCLUDED.cached_at`, s.table),
		meta.TrainNumber,
		body,
		time.Now().UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			return fmt.Errorf("writing metadata (%s): %w", pqErr.Code.Name(), err)
		}
		return fmt.Errorf("writing metadata: %w", err)
	}

	return nil
}

func (s *PSQLStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return fmt.Errorf("failed to close db: %w", err)
	}
	return nil
}
