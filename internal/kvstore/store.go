// Package kvstore defines the Store contract the LDBM core consumes: an
// ordered key/value map with cursors and multi-operation transactions
// supporting deadlock detection (section 6 of the specification). Any
// backend satisfying this interface — a B-tree with transactions, in the
// specification's terms — can host the storage engine; two are provided
// here: sqlitekv (the default, backed by a pure-Go SQLite driver) and
// memkv (an in-memory reference implementation used by tests).
package kvstore

import (
	"context"
	"errors"

	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// CursorOp selects how a cursor positions itself on Cursor.Seek.
type CursorOp int

const (
	OpFirst CursorOp = iota
	OpLast
	OpSet
	OpSetRange
	OpNext
	OpNextNoDup
	OpPrev
)

// Txn is a store transaction. Begin/Commit/Abort apply only to the
// transaction they were called on; a child transaction's commit does not
// commit its parent.
type Txn interface {
	// Commit finalizes the transaction. A ldbmerr.ErrDeadlock or
	// ldbmerr.ErrRunRecovery returned here must be handled exactly like
	// one returned from a Put/Get/Delete: the caller retries the whole
	// operation (deadlock) or treats the backend as fatally broken
	// (runrecovery).
	Commit() error
	// Abort discards the transaction's writes. It never fails in a way
	// callers need to react to; implementations should treat it as
	// best-effort cleanup.
	Abort() error
}

// Table is a named ordered key-space within the store — one per on-disk
// "file" in the specification's terms (id2entry, or one per attribute
// index). Keys are compared byte-for-byte in ascending order.
type Table interface {
	// Get fetches the value stored under key. For tables that support
	// duplicates (see PutDup), Get returns the first (lowest-sorted)
	// duplicate. Returns ldbmerr.ErrNotFound if key is absent.
	Get(txn Txn, key []byte) ([]byte, error)

	// GetAllDup returns every duplicate value stored under key, in
	// sorted order. Non-duplicate tables always return at most one
	// value.
	GetAllDup(txn Txn, key []byte) ([][]byte, error)

	// Put stores value under key, replacing any prior non-duplicate
	// value. Used for id2entry rows and old-encoding IDL blocks.
	Put(txn Txn, key, value []byte) error

	// PutDup appends value as one more duplicate record under key,
	// keeping the duplicate set sorted. Used by the new IDL encoding,
	// where each duplicate is one member ID.
	PutDup(txn Txn, key, value []byte) error

	// Delete removes key (and all its duplicates, if any).
	Delete(txn Txn, key []byte) error

	// DeleteDup removes a single duplicate value under key. If it was
	// the last duplicate, key is removed entirely.
	DeleteDup(txn Txn, key, value []byte) error

	// Cursor opens a cursor over the table bound to txn.
	Cursor(txn Txn) (Cursor, error)
}

// Cursor walks a Table's ordered key-space.
type Cursor interface {
	// Seek positions the cursor per op and returns the key/value it
	// landed on. OpSet requires key to match exactly; OpSetRange
	// positions at the first key >= key. OpFirst/OpLast/OpNext/OpPrev
	// ignore key. Returns ldbmerr.ErrNotFound when the cursor runs off
	// either end.
	Seek(key []byte, op CursorOp) (k, v []byte, err error)
	Close() error
}

// Store is an open database environment: a set of named Tables sharing
// one transactional substrate.
type Store interface {
	// Table opens (creating if necessary) the named key-space.
	Table(ctx context.Context, name string) (Table, error)

	// Begin starts a transaction. If parent is non-nil the new
	// transaction is a child of parent; its commit/abort apply only to
	// itself, per the specification's transactional envelope.
	Begin(ctx context.Context, parent Txn) (Txn, error)

	Close() error
}

// IsDeadlock, IsNotFound, IsRunRecovery, IsDiskFull are convenience
// wrappers so callers don't need to import errors directly for the
// common store-error checks.
func IsDeadlock(err error) bool    { return isErr(err, ldbmerr.ErrDeadlock) }
func IsNotFound(err error) bool    { return isErr(err, ldbmerr.ErrNotFound) }
func IsRunRecovery(err error) bool { return isErr(err, ldbmerr.ErrRunRecovery) }
func IsDiskFull(err error) bool    { return isErr(err, ldbmerr.ErrDiskFull) }

func isErr(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}
