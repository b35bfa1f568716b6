package durable

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/pearl-assistant/pearl/internal/schema"
)

// ErrDuplicateKey is returned by Create when (recordType, key) already
// exists. It is the mechanism behind write-once records.
var ErrDuplicateKey = errors.New("duplicate key")

// fieldPattern restricts filterable/orderable record field names to plain
// identifiers before they are spliced into json_extract paths.
var fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// SQLiteStore implements Store on a single SQLite table. Records are stored
// as JSON documents partitioned by record_type; filters and ordering compile
// to json_extract expressions, so the table needs no per-type schema.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the durable database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open durable db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init durable schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			record_type TEXT NOT NULL,
			key         TEXT NOT NULL,
			data        TEXT NOT NULL,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (record_type, key)
		);
	`)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Create(ctx context.Context, recordType, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("create %s/%s: marshal: %w", recordType, key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO records (record_type, key, data) VALUES (?, ?, ?)`,
		recordType, key, string(data))
	if err != nil {
		// Constraint violations are a caller contract (write-once records),
		// not store unavailability.
		var se sqlite3.Error
		if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("create %s/%s: %w", recordType, key, ErrDuplicateKey)
		}
		return fmt.Errorf("create %s/%s: %w: %v", recordType, key, schema.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, recordType, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("upsert %s/%s: marshal: %w", recordType, key, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (record_type, key, data) VALUES (?, ?, ?)
		ON CONFLICT (record_type, key)
		DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP`,
		recordType, key, string(data))
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w: %v", recordType, key, schema.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, recordType, key string) ([]byte, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE record_type = ? AND key = ?`,
		recordType, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s/%s: %w: %v", recordType, key, schema.ErrStoreUnavailable, err)
	}
	return []byte(data), true, nil
}

func (s *SQLiteStore) Query(ctx context.Context, recordType string, filter Filter, opts QueryOptions) ([][]byte, error) {
	qb := sq.Select("data").From("records").Where(sq.Eq{"record_type": recordType})

	for field, value := range filter {
		expr, err := jsonField(field)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", recordType, err)
		}
		qb = qb.Where(sq.Eq{expr: value})
	}

	if opts.OrderBy != "" {
		expr, err := jsonField(opts.OrderBy)
		if err != nil {
			return nil, fmt.Errorf("query %s: %w", recordType, err)
		}
		if opts.Since != "" {
			qb = qb.Where(sq.GtOrEq{expr: opts.Since})
		}
		dir := " ASC"
		if opts.Descending {
			dir = " DESC"
		}
		qb = qb.OrderBy(expr + dir)
	}
	if opts.Limit > 0 {
		qb = qb.Limit(uint64(opts.Limit))
	}

	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("query %s: build: %w", recordType, err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w: %v", recordType, schema.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("query %s: %w: %v", recordType, schema.ErrStoreUnavailable, err)
		}
		out = append(out, []byte(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w: %v", recordType, schema.ErrStoreUnavailable, err)
	}
	return out, nil
}

// jsonField maps a record field name to a json_extract expression, rejecting
// anything that is not a bare identifier.
func jsonField(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", field), nil
}
