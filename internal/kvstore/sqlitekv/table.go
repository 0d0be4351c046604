package sqlitekv

import (
	"context"
	"database/sql"

	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

type table struct {
	db   *sql.DB
	name string // already quoted
}

// execer abstracts over *sql.DB and the *sql.Conn held by an open
// transaction, mirroring the teacher's dbExecutor interface in
// internal/storage/sqlite (used to let delete.go's helpers run either
// inside or outside an explicit transaction).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (t *table) execer(txn kvstore.Txn) execer {
	if tx, ok := txn.(*txn); ok && tx != nil {
		return tx.conn
	}
	return t.db
}

func (t *table) Get(txn kvstore.Txn, key []byte) ([]byte, error) {
	row := t.execer(txn).QueryRowContext(context.Background(),
		`SELECT value FROM `+t.name+` WHERE key = ? ORDER BY value LIMIT 1`, key)
	var v []byte
	if err := row.Scan(&v); err != nil {
		return nil, classify(err)
	}
	return v, nil
}

func (t *table) GetAllDup(txn kvstore.Txn, key []byte) ([][]byte, error) {
	rows, err := t.execer(txn).QueryContext(context.Background(),
		`SELECT value FROM `+t.name+` WHERE key = ? ORDER BY value`, key)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	var out [][]byte
	for rows.Next() {
		var v []byte
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ldbmerr.ErrNotFound
	}
	return out, nil
}

func (t *table) Put(txn kvstore.Txn, key, value []byte) error {
	ctx := context.Background()
	if _, err := t.execer(txn).ExecContext(ctx, `DELETE FROM `+t.name+` WHERE key = ?`, key); err != nil {
		return classify(err)
	}
	_, err := t.execer(txn).ExecContext(ctx,
		`INSERT INTO `+t.name+` (key, value) VALUES (?, ?)`, key, value)
	return classify(err)
}

func (t *table) PutDup(txn kvstore.Txn, key, value []byte) error {
	_, err := t.execer(txn).ExecContext(context.Background(),
		`INSERT INTO `+t.name+` (key, value) VALUES (?, ?) ON CONFLICT (key, value) DO NOTHING`, key, value)
	return classify(err)
}

func (t *table) Delete(txn kvstore.Txn, key []byte) error {
	_, err := t.execer(txn).ExecContext(context.Background(),
		`DELETE FROM `+t.name+` WHERE key = ?`, key)
	return classify(err)
}

func (t *table) DeleteDup(txn kvstore.Txn, key, value []byte) error {
	_, err := t.execer(txn).ExecContext(context.Background(),
		`DELETE FROM `+t.name+` WHERE key = ? AND value = ?`, key, value)
	return classify(err)
}

func (t *table) Cursor(txn kvstore.Txn) (kvstore.Cursor, error) {
	rows, err := t.execer(txn).QueryContext(context.Background(),
		`SELECT DISTINCT key FROM `+t.name+` ORDER BY key`)
	if err != nil {
		return nil, classify(err)
	}
	defer func() { _ = rows.Close() }()
	var keys [][]byte
	for rows.Next() {
		var k []byte
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &cursor{table: t, txn: txn, keys: keys, pos: -1}, nil
}

type cursor struct {
	table *table
	txn   kvstore.Txn
	keys  [][]byte
	pos   int
}

func (c *cursor) Seek(key []byte, op kvstore.CursorOp) ([]byte, []byte, error) {
	switch op {
	case kvstore.OpFirst:
		c.pos = 0
	case kvstore.OpLast:
		c.pos = len(c.keys) - 1
	case kvstore.OpNext, kvstore.OpNextNoDup:
		c.pos++
	case kvstore.OpPrev:
		c.pos--
	case kvstore.OpSet:
		c.pos = lowerBound(c.keys, key)
		if c.pos >= len(c.keys) || string(c.keys[c.pos]) != string(key) {
			return nil, nil, ldbmerr.ErrNotFound
		}
	case kvstore.OpSetRange:
		c.pos = lowerBound(c.keys, key)
	}
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil, ldbmerr.ErrNotFound
	}
	k := c.keys[c.pos]
	v, err := c.table.Get(c.txn, k)
	if err != nil {
		return nil, nil, err
	}
	return k, v, nil
}

func (c *cursor) Close() error { return nil }

func lowerBound(keys [][]byte, key []byte) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if string(keys[mid]) < string(key) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}
