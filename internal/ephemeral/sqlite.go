package ephemeral

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.

	"github.com/pearl-assistant/pearl/internal/schema"
)

// purgeEvery is how many writes pass between lazy purges of expired rows.
const purgeEvery = 64

// SQLiteStore implements Store on a SQLite table with an expiry column.
// Expiry is enforced at read time against the clock, so TTL precision does
// not depend on any background sweeper; expired rows are purged lazily.
// Pointing several processes at the same database file (WAL mode) gives the
// cross-process safety the coordination layer requires.
type SQLiteStore struct {
	db     *sql.DB
	now    func() time.Time
	writes atomic.Uint64
}

// NewSQLiteStore opens (or creates) the ephemeral database at path.
// Use ":memory:" for a process-local store in tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ephemeral db: %w", err)
	}
	// The sqlite3 driver multiplexes one connection pool over one file;
	// a single writer connection sidesteps SQLITE_BUSY on :memory: databases.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init ephemeral schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			expires_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS entries_expiry ON entries(expires_at);
	`)
	return err
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("put %q: non-positive ttl %v", key, ttl)
	}
	expires := s.now().Add(ttl).UnixNano()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, expires)
	if err != nil {
		return fmt.Errorf("put %q: %w: %v", key, schema.ErrStoreUnavailable, err)
	}
	if s.writes.Add(1)%purgeEvery == 0 {
		s.purge(ctx)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM entries WHERE key = ?`, key).
		Scan(&value, &expires)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w: %v", key, schema.ErrStoreUnavailable, err)
	}
	if expires <= s.now().UnixNano() {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w: %v", key, schema.ErrStoreUnavailable, err)
	}
	return nil
}

// CompareAndDelete is a single conditional DELETE; SQLite serialises writers,
// so of any number of concurrent callers with the same expected value exactly
// one observes RowsAffected == 1.
func (s *SQLiteStore) CompareAndDelete(ctx context.Context, key string, expected []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE key = ? AND value = ? AND expires_at > ?`,
		key, expected, s.now().UnixNano())
	if err != nil {
		return false, fmt.Errorf("compare-and-delete %q: %w: %v", key, schema.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("compare-and-delete %q: %w: %v", key, schema.ErrStoreUnavailable, err)
	}
	return n == 1, nil
}

func (s *SQLiteStore) Scan(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM entries WHERE key LIKE ? ESCAPE '\' AND expires_at > ?`,
		escapeLike(prefix)+"%", s.now().UnixNano())
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w: %v", prefix, schema.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %q: %w: %v", prefix, schema.ErrStoreUnavailable, err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan %q: %w: %v", prefix, schema.ErrStoreUnavailable, err)
	}
	return out, nil
}

// purge drops expired rows. Failures are ignored; reads already filter on
// expires_at, so a missed purge costs space, not correctness.
func (s *SQLiteStore) purge(ctx context.Context) {
	_, _ = s.db.ExecContext(ctx, `DELETE FROM entries WHERE expires_at <= ?`, s.now().UnixNano())
}

// escapeLike neutralises LIKE wildcards in key prefixes. Keys use ':' as a
// separator, but user-supplied IDs could contain '%' or '_'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
