package idl

import (
	"context"

	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// Codec is the on-disk IDL representation, abstracted per section 4.1.2
// of the specification: "old" encoding (header + continuation blocks) and
// "new" encoding (duplicate records, one per member) implement it
// identically from the caller's point of view. dbconfig selects which
// Codec an instance uses at open time; nothing above this package knows
// which one is active.
type Codec interface {
	// Fetch reads the IDL stored under key, or an empty Regular IDL if
	// key is absent. highestID is the current highest live entry ID,
	// needed to give an AllIDs result a concrete Length/iteration bound.
	Fetch(ctx context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, highestID ids.ID) (*IDL, error)

	// Insert adds id under key, promoting to AllIDs once the
	// implementation's capacity policy is exceeded.
	Insert(ctx context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, id ids.ID, highestID ids.ID) error

	// Delete removes id from under key. Deleting from an AllIDs key is a
	// no-op: once promoted, a key never demotes back to Regular.
	Delete(ctx context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, id ids.ID) error

	// Store replaces whatever is under key with l wholesale. Used by bulk
	// index builds, which assemble the whole member set in memory before
	// ever touching the store.
	Store(ctx context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, l *IDL) error
}

func encodeID(id ids.ID) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

func decodeID(b []byte) ids.ID {
	return ids.ID(uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]))
}
