package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

const sqliteFileName = "actas.sqlite"

// SQLiteKV is a KeyValueStore backed by a single-table SQLite database.
type SQLiteKV struct {
	db   *sql.DB
	path string
}

// OpenSQLiteDir opens (creating if needed) the store file inside dir.
func OpenSQLiteDir(ctx context.Context, dir string) (*SQLiteKV, error) {
	return OpenSQLite(ctx, filepath.Join(dir, sqliteFileName))
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteKV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create store dir")
	}
	// modernc.org/sqlite driver name is "sqlite".
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// WAL enables one writer + many readers; busy_timeout helps when the watch
	// view and a CLI command touch the store at the same time.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, errors.Wrapf(err, "pragma %q", p)
		}
	}
	s := &SQLiteKV{db: db, path: path}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteKV) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			k TEXT PRIMARY KEY,
			v BLOB NOT NULL,
			updated_at_unixms INTEGER NOT NULL
		);`,
	}
	for _, st := range stmts {
		if _, err := s.db.ExecContext(ctx, st); err != nil {
			return errors.Wrap(err, "migrate kv")
		}
	}
	return nil
}

func (s *SQLiteKV) Path() string { return s.path }

func (s *SQLiteKV) Close() error { return s.db.Close() }

func (s *SQLiteKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var v []byte
	err := s.db.QueryRowContext(ctx, `SELECT v FROM kv WHERE k = ?`, key).Scan(&v)
	switch {
	case err == nil:
		return v, true, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, errors.Wrapf(err, "get %s", key)
	}
}

func (s *SQLiteKV) Set(ctx context.Context, key string, value []byte) error {
	return s.Apply(ctx, []Op{SetOp(key, value)})
}

func (s *SQLiteKV) Delete(ctx context.Context, key string) error {
	return s.Apply(ctx, []Op{DeleteOp(key)})
}

func (s *SQLiteKV) List(ctx context.Context, prefix string) ([]KV, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if prefix == "" {
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM kv ORDER BY k ASC`)
	} else {
		rows, err = s.db.QueryContext(ctx, `SELECT k, v FROM kv WHERE k >= ? AND k < ? ORDER BY k ASC`, prefix, prefixEnd(prefix))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", prefix)
	}
	defer rows.Close()

	out := []KV{}
	for rows.Next() {
		var kv KV
		if err := rows.Scan(&kv.Key, &kv.Value); err != nil {
			return nil, errors.Wrap(err, "scan kv")
		}
		out = append(out, kv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate kv")
	}
	return out, nil
}

func (s *SQLiteKV) Apply(ctx context.Context, ops []Op) error {
	if len(ops) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback() }()

	nowMs := time.Now().UTC().UnixMilli()
	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE k = ?`, op.Key); err != nil {
				return errors.Wrapf(err, "delete %s", op.Key)
			}
			continue
		}
		value := op.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv(k, v, updated_at_unixms) VALUES(?, ?, ?)
			ON CONFLICT(k) DO UPDATE SET v = excluded.v, updated_at_unixms = excluded.updated_at_unixms
		`, op.Key, value, nowMs); err != nil {
			return errors.Wrapf(err, "set %s", op.Key)
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// prefixEnd returns the smallest string greater than every string with the prefix.
func prefixEnd(prefix string) string {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1])
		}
	}
	return ""
}
