// Package index implements the per-attribute index layer (spec.md §4.2):
// key construction across the five index kinds, reads (point and range),
// and the add/delete routines that keep an attribute's indexes in sync
// with id2entry writes.
//
// Grounded on the teacher's internal/query package for the "walk a typed
// AST, accumulate per-leaf results, union/intersect once" shape (carried
// forward here as Read feeding idlset.IDListSet in
// internal/filter), and on internal/storage/sqlite's per-concern file
// split (one file per index kind's "values to keys" routine, mirrored by
// ops.go/substring.go here).
package index

import (
	"bytes"
	"context"

	"github.com/dirserv/ldbm/internal/idl"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// Kind is an index kind's key prefix byte, matching spec.md §4.2.1's
// "<prefix><value>\0" key layout.
type Kind byte

const (
	KindEquality     Kind = '='
	KindPresence     Kind = '+'
	KindApproximate  Kind = '~'
	KindSubstring    Kind = '*'
	KindMatchingRule Kind = ':'
)

// Flag selects whether AddOrDelValues/AddOrDelEntry/AddMods is adding or
// removing membership, mirroring BE_INDEX_ADD / BE_INDEX_DEL.
type Flag int

const (
	FlagAdd Flag = iota
	FlagDel
)

// AttrInfo is the per-attribute index configuration: which kinds are
// enabled, whether the attribute is OFFLINE for a bulk rebuild, and
// whether its values carry an encryption descriptor.
type AttrInfo struct {
	Type          string
	Kinds         []Kind
	Offline       bool
	Encrypted     bool
	DontEncrypt   bool // BE_INDEX_DONT_ENCRYPT: this call bypasses encryption regardless of Encrypted
	SubstringSize int  // n-gram width; 0 means the package default of 3
}

func (ai AttrInfo) hasKind(k Kind) bool {
	for _, x := range ai.Kinds {
		if x == k {
			return true
		}
	}
	return false
}

func (ai AttrInfo) ngramSize() int {
	if ai.SubstringSize > 0 {
		return ai.SubstringSize
	}
	return 3
}

// KeyEncryptor is the attribute-encryption hook consumed by key
// construction (spec.md §4.7's attrcrypt_encrypt_index_key). Any type
// satisfying this — in practice internal/attrcrypt.Provider — can be
// plugged in without index importing attrcrypt, avoiding a dependency
// cycle between the two packages.
type KeyEncryptor interface {
	EncryptIndexKey(attrType string, value []byte) ([]byte, error)
}

// Indexer is the entry point for all per-attribute index operations. One
// Indexer instance serves a whole backend instance.
type Indexer struct {
	Store     kvstore.Store
	Codec     idl.Codec
	HighestID func() ids.ID
	Encryptor KeyEncryptor // nil disables encryption entirely
}

func tableName(attrType string) string { return "index_" + attrType }

// buildKey constructs one index key. Presence keys carry no value
// material and are never encrypted.
func (ix *Indexer) buildKey(ai AttrInfo, kind Kind, value []byte) ([]byte, error) {
	if kind == KindPresence {
		return []byte{byte(kind)}, nil
	}
	v := value
	if ai.Encrypted && !ai.DontEncrypt && ix.Encryptor != nil {
		enc, err := ix.Encryptor.EncryptIndexKey(ai.Type, value)
		if err != nil {
			return nil, ldbmerr.Wrap("index: encrypt key", err)
		}
		v = enc
	}
	key := make([]byte, 0, 1+len(v)+1)
	key = append(key, byte(kind))
	key = append(key, v...)
	key = append(key, 0)
	return key, nil
}

// Read fetches the IDL for one (type, kind, value) leaf. If the
// attribute is unindexed for this kind, or OFFLINE, it returns AllIDs
// and unindexed=true so the caller knows to force a filter-test
// fallback rather than trust the result as exact.
func (ix *Indexer) Read(ctx context.Context, txn kvstore.Txn, ai AttrInfo, kind Kind, value []byte) (l *idl.IDL, unindexed bool, err error) {
	if ai.Offline || !ai.hasKind(kind) {
		return idl.NewAllIDs(ix.HighestID()), true, nil
	}
	key, err := ix.buildKey(ai, kind, value)
	if err != nil {
		return nil, false, err
	}
	table, err := ix.Store.Table(ctx, tableName(ai.Type))
	if err != nil {
		return nil, false, err
	}
	l, err = ix.Codec.Fetch(ctx, txn, table, key, ix.HighestID())
	return l, false, err
}

// RangeRead walks a cursor from lower (inclusive) to upper (exclusive),
// unioning each key's IDL on the fly, stopping at upper, limit entries
// examined, or ctx cancellation (the abandon/timelimit check the
// specification requires of long-running scans).
func (ix *Indexer) RangeRead(ctx context.Context, txn kvstore.Txn, ai AttrInfo, lower, upper []byte, limit int) (*idl.IDL, error) {
	if ai.Offline {
		return idl.NewAllIDs(ix.HighestID()), nil
	}
	table, err := ix.Store.Table(ctx, tableName(ai.Type))
	if err != nil {
		return nil, err
	}
	cur, err := table.Cursor(txn)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close() }()

	out := idl.New(0)
	k, _, err := cur.Seek(lower, kvstore.OpSetRange)
	examined := 0
	for err == nil {
		if upper != nil && bytes.Compare(k, upper) >= 0 {
			break
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}
		l, ferr := ix.Codec.Fetch(ctx, txn, table, k, ix.HighestID())
		if ferr != nil {
			return nil, ferr
		}
		out = idl.Union(out, l)
		examined++
		if limit > 0 && examined >= limit {
			return out, ldbmerr.ErrAdminLimitExceeded
		}
		k, _, err = cur.Seek(nil, kvstore.OpNext)
	}
	if kvstore.IsNotFound(err) {
		err = nil
	}
	return out, err
}
