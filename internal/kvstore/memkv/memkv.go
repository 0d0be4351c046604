// Package memkv is an in-memory Store implementation used by tests and by
// the --ephemeral mode of cmd/ldbmctl, grounded on the teacher's
// internal/storage/memory package: a plain mutex-guarded map standing in
// for a real transactional engine.
package memkv

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// Store is a process-local, non-persistent implementation of
// kvstore.Store. Its transactions do not isolate anything: writes apply
// to the shared map immediately and Abort does not undo them. It never
// reports a deadlock (memkv serializes everything
// under one mutex) — tests that want to exercise deadlock-retry do so
// against a fault-injecting wrapper, not against memkv directly.
type Store struct {
	mu     sync.Mutex
	tables map[string]*table
}

// New creates an empty store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) Table(_ context.Context, name string) (kvstore.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		t = &table{rows: make(map[string][][]byte)}
		s.tables[name] = t
	}
	return t, nil
}

func (s *Store) Begin(_ context.Context, parent kvstore.Txn) (kvstore.Txn, error) {
	return &txn{store: s, parent: parentTxn(parent)}, nil
}

func (s *Store) Close() error { return nil }

func parentTxn(t kvstore.Txn) *txn {
	if t == nil {
		return nil
	}
	mt, _ := t.(*txn)
	return mt
}

// txn is a no-op wrapper: memkv applies writes immediately under the
// store mutex, so Commit/Abort only need to exist to satisfy the
// interface and to let callers exercise the retry-loop shape uniformly
// across backends.
type txn struct {
	store   *Store
	parent  *txn
	aborted bool
}

func (t *txn) Commit() error {
	if t.aborted {
		return ldbmerr.ErrOperationsError
	}
	return nil
}

func (t *txn) Abort() error {
	t.aborted = true
	return nil
}

type table struct {
	mu   sync.RWMutex
	rows map[string][][]byte // key -> sorted list of duplicate values
}

func (t *table) Get(_ kvstore.Txn, key []byte) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	vs, ok := t.rows[string(key)]
	if !ok || len(vs) == 0 {
		return nil, ldbmerr.ErrNotFound
	}
	return append([]byte(nil), vs[0]...), nil
}

func (t *table) GetAllDup(_ kvstore.Txn, key []byte) ([][]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	vs, ok := t.rows[string(key)]
	if !ok {
		return nil, ldbmerr.ErrNotFound
	}
	out := make([][]byte, len(vs))
	for i, v := range vs {
		out[i] = append([]byte(nil), v...)
	}
	return out, nil
}

func (t *table) Put(_ kvstore.Txn, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[string(key)] = [][]byte{append([]byte(nil), value...)}
	return nil
}

func (t *table) PutDup(_ kvstore.Txn, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	vs := t.rows[string(key)]
	idx := sort.Search(len(vs), func(i int) bool { return bytes.Compare(vs[i], value) >= 0 })
	if idx < len(vs) && bytes.Equal(vs[idx], value) {
		return nil // already present
	}
	vs = append(vs, nil)
	copy(vs[idx+1:], vs[idx:])
	vs[idx] = append([]byte(nil), value...)
	t.rows[string(key)] = vs
	return nil
}

func (t *table) Delete(_ kvstore.Txn, key []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rows, string(key))
	return nil
}

func (t *table) DeleteDup(_ kvstore.Txn, key, value []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	vs, ok := t.rows[string(key)]
	if !ok {
		return nil
	}
	out := vs[:0:0]
	for _, v := range vs {
		if !bytes.Equal(v, value) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		delete(t.rows, string(key))
	} else {
		t.rows[string(key)] = out
	}
	return nil
}

func (t *table) Cursor(_ kvstore.Txn) (kvstore.Cursor, error) {
	t.mu.RLock()
	keys := make([]string, 0, len(t.rows))
	for k, vs := range t.rows {
		if len(vs) > 0 {
			keys = append(keys, k)
		}
	}
	t.mu.RUnlock()
	sort.Strings(keys)
	return &cursor{table: t, keys: keys, pos: -1}, nil
}

type cursor struct {
	table *table
	keys  []string
	pos   int
}

func (c *cursor) Seek(key []byte, op kvstore.CursorOp) (k, v []byte, err error) {
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
		c.pos = sort.SearchStrings(c.keys, string(key))
		if c.pos >= len(c.keys) || c.keys[c.pos] != string(key) {
			return nil, nil, ldbmerr.ErrNotFound
		}
	case kvstore.OpSetRange:
		c.pos = sort.SearchStrings(c.keys, string(key))
	}
	if c.pos < 0 || c.pos >= len(c.keys) {
		return nil, nil, ldbmerr.ErrNotFound
	}
	kk := c.keys[c.pos]
	val, err := c.table.Get(nil, []byte(kk))
	if err != nil {
		return nil, nil, err
	}
	return []byte(kk), val, nil
}

func (c *cursor) Close() error { return nil }
