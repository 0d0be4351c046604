// Package mutate implements the four entry mutation operations — Add,
// Modify, Delete, Modrdn — sharing the retry skeleton spec.md §4.4
// describes: begin a txn, read prior state, compute the new entry and
// its index deltas, write id2entry plus every affected index, write the
// parent subordinate-count update, commit; on deadlock restore inputs
// and retry; on success swap the cache entry from old to new.
//
// Grounded on the teacher's DeleteIssue/DeleteIssues tombstone
// conversion in internal/storage/sqlite/delete.go for the live-entry vs.
// tombstone-conversion split, and on queries_rename.go's UpdateIssueID
// for the cascade-rewrite shape Modrdn reuses (rewrite the primary row,
// then every index that referenced the old key, inside one transaction).
package mutate

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/gob"

	"github.com/dirserv/ldbm/internal/ancestor"
	"github.com/dirserv/ldbm/internal/attrcrypt"
	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/entrycache"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
	"github.com/dirserv/ldbm/internal/txn"
)

const id2entryTable = "id2entry"

// DirtyTracker records that id was touched by a committed mutation, so
// an incremental export/backup front end can avoid re-scanning
// id2entry (spec.md's SUPPLEMENT dirty-tracking feature).
type DirtyTracker interface {
	Mark(ctx context.Context, tx kvstore.Txn, id ids.ID) error
}

// noopDirty is the default DirtyTracker: dirty-tracking is optional.
type noopDirty struct{}

func (noopDirty) Mark(ctx context.Context, tx kvstore.Txn, id ids.ID) error { return nil }

// Ops is the write-side entry point: one instance serves every
// mutation operation against one backend instance, sharing the same
// store, cache, index registry, ancestor builder, and retry envelope.
type Ops struct {
	Store    kvstore.Store
	Cache    *entrycache.Cache
	Index    *index.Indexer
	Reg      index.Registry
	Ancestor *ancestor.Builder
	Alloc    *ids.Allocator
	Crypt    attrcrypt.Provider
	Envelope *txn.Envelope
	Dirty    DirtyTracker

	// RetryTimes is not read by any operation: every call retries up to
	// Envelope.RetryTimes.
	RetryTimes int
}

func (o *Ops) crypt() attrcrypt.Provider {
	if o.Crypt != nil {
		return o.Crypt
	}
	return attrcrypt.NoopProvider{}
}

func (o *Ops) dirty() DirtyTracker {
	if o.Dirty != nil {
		return o.Dirty
	}
	return noopDirty{}
}

func (o *Ops) table(ctx context.Context) (kvstore.Table, error) {
	return o.Store.Table(ctx, id2entryTable)
}

func idKey(id ids.ID) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(id))
	return b
}

func decodeIDKey(k []byte) ids.ID {
	return ids.ID(binary.BigEndian.Uint32(k))
}

// encodeEntry serializes e for the id2entry value path. gob is used
// rather than a hand-rolled format: the entry model is an ordinary
// typed Go struct with no cross-language wire requirement (that
// boundary is the LDAP front end's job, out of scope here), and no repo
// in the reference set reaches for a third-party serializer for this
// shape of internal, same-process struct persistence.
func encodeEntry(ctx context.Context, crypt attrcrypt.Provider, e *entry.Entry) ([]byte, error) {
	enc, err := crypt.EncryptEntry(ctx, e)
	if err != nil {
		return nil, ldbmerr.Wrap("mutate: encrypt entry", err)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(enc); err != nil {
		return nil, ldbmerr.Wrap("mutate: encode entry", err)
	}
	return buf.Bytes(), nil
}

func decodeEntry(ctx context.Context, crypt attrcrypt.Provider, raw []byte) (*entry.Entry, error) {
	var e entry.Entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return nil, ldbmerr.Wrap("mutate: decode entry", err)
	}
	dec, err := crypt.DecryptEntry(ctx, &e)
	if err != nil {
		return nil, ldbmerr.Wrap("mutate: decrypt entry", err)
	}
	return dec, nil
}

// getEntry reads id2entry[id], returning ldbmerr.ErrNoSuchObject if absent.
func (o *Ops) getEntry(ctx context.Context, tx kvstore.Txn, id ids.ID) (*entry.Entry, error) {
	table, err := o.table(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := table.Get(tx, idKey(id))
	if err != nil {
		if kvstore.IsNotFound(err) {
			return nil, ldbmerr.ErrNoSuchObject
		}
		return nil, err
	}
	return decodeEntry(ctx, o.crypt(), raw)
}

func (o *Ops) putEntry(ctx context.Context, tx kvstore.Txn, e *entry.Entry) error {
	table, err := o.table(ctx)
	if err != nil {
		return err
	}
	raw, err := encodeEntry(ctx, o.crypt(), e)
	if err != nil {
		return err
	}
	return table.Put(tx, idKey(e.ID), raw)
}

func (o *Ops) deleteEntry(ctx context.Context, tx kvstore.Txn, id ids.ID) error {
	table, err := o.table(ctx)
	if err != nil {
		return err
	}
	return table.Delete(tx, idKey(id))
}
