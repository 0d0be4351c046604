// Package dirty implements the DirtyTracker mutate.Ops.Dirty records
// into, and the since-ordered query the SUPPLEMENT section of the
// specification names as ldbm.Engine.DirtyIDs(since): an incremental
// export/backup front end's way of finding every entry a mutation has
// touched since its last pass, without re-scanning id2entry.
//
// Grounded on the teacher's dirty_issues table
// (internal/storage/sqlite/dirty.go): MarkIssueDirty's
// "ON CONFLICT (issue_id) DO UPDATE SET marked_at" is a re-mark that
// moves an already-dirty row to the end of the since-ordering rather
// than duplicating it, and GetDirtyIssues lists rows oldest-mark-first.
// This package reproduces both behaviors over kvstore.Table's ordered
// byte keys instead of a marked_at timestamp column: dirty entries are
// keyed by a monotonic sequence number, and a companion table maps an
// id back to its current sequence number so a re-mark can erase the
// stale sequence entry before writing the new one.
package dirty

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
)

const (
	bySeqTable   = "dirty_by_seq"
	byIDTable    = "dirty_by_id"
	counterTable = "dirty_counter"
)

// counterKey is the single key the counter table holds its next-sequence
// value under.
var counterKey = []byte("next")

// Tracker implements mutate.DirtyTracker against three tables opened
// once at construction: the since-ordered sequence table, the id-to-
// sequence reverse index that makes re-marking idempotent, and the
// counter table backing the monotonic sequence itself.
type Tracker struct {
	bySeq   kvstore.Table
	byID    kvstore.Table
	counter kvstore.Table
}

// Open opens (creating if necessary) dirty's three backing tables
// within store.
func Open(ctx context.Context, store kvstore.Store) (*Tracker, error) {
	bySeq, err := store.Table(ctx, bySeqTable)
	if err != nil {
		return nil, fmt.Errorf("dirty: opening %s: %w", bySeqTable, err)
	}
	byID, err := store.Table(ctx, byIDTable)
	if err != nil {
		return nil, fmt.Errorf("dirty: opening %s: %w", byIDTable, err)
	}
	counter, err := store.Table(ctx, counterTable)
	if err != nil {
		return nil, fmt.Errorf("dirty: opening %s: %w", counterTable, err)
	}
	return &Tracker{bySeq: bySeq, byID: byID, counter: counter}, nil
}

func seqBytes(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func seqValue(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func idBytes(id ids.ID) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(id))
	return b
}

func idValue(b []byte) ids.ID {
	return ids.ID(binary.BigEndian.Uint32(b))
}

// Mark implements mutate.DirtyTracker. A second Mark of an id already
// pending erases its prior sequence entry first, so DirtyIDs sees the
// id once, ordered by its most recent mark.
func (t *Tracker) Mark(ctx context.Context, tx kvstore.Txn, id ids.ID) error {
	key := idBytes(id)

	if old, err := t.byID.Get(tx, key); err == nil {
		if err := t.bySeq.Delete(tx, old); err != nil {
			return fmt.Errorf("dirty: clearing prior mark for id %d: %w", id, err)
		}
	} else if !kvstore.IsNotFound(err) {
		return fmt.Errorf("dirty: reading prior mark for id %d: %w", id, err)
	}

	seq, err := t.nextSeq(tx)
	if err != nil {
		return err
	}
	seqKey := seqBytes(seq)
	if err := t.bySeq.Put(tx, seqKey, key); err != nil {
		return fmt.Errorf("dirty: marking id %d dirty: %w", id, err)
	}
	if err := t.byID.Put(tx, key, seqKey); err != nil {
		return fmt.Errorf("dirty: indexing mark for id %d: %w", id, err)
	}
	return nil
}

func (t *Tracker) nextSeq(tx kvstore.Txn) (uint64, error) {
	var seq uint64
	v, err := t.counter.Get(tx, counterKey)
	switch {
	case err == nil:
		seq = seqValue(v)
	case kvstore.IsNotFound(err):
		seq = 1
	default:
		return 0, fmt.Errorf("dirty: reading sequence counter: %w", err)
	}
	if err := t.counter.Put(tx, counterKey, seqBytes(seq+1)); err != nil {
		return 0, fmt.Errorf("dirty: advancing sequence counter: %w", err)
	}
	return seq, nil
}

// DirtyIDs returns every id marked dirty with a sequence number greater
// than since, oldest mark first, along with the sequence number the
// caller should pass as since on its next call to pick up where this one
// left off. A since of 0 lists every currently dirty id.
func (t *Tracker) DirtyIDs(ctx context.Context, tx kvstore.Txn, since uint64) (dirtyIDs []ids.ID, nextSince uint64, err error) {
	cur, err := t.bySeq.Cursor(tx)
	if err != nil {
		return nil, since, fmt.Errorf("dirty: opening cursor: %w", err)
	}
	defer func() { _ = cur.Close() }()

	nextSince = since
	k, v, err := cur.Seek(seqBytes(since+1), kvstore.OpSetRange)
	for err == nil {
		seq := seqValue(k)
		dirtyIDs = append(dirtyIDs, idValue(v))
		if seq > nextSince {
			nextSince = seq
		}
		k, v, err = cur.Seek(nil, kvstore.OpNext)
	}
	if !kvstore.IsNotFound(err) {
		return nil, since, fmt.Errorf("dirty: scanning: %w", err)
	}
	return dirtyIDs, nextSince, nil
}

// Clear removes id from the dirty set, e.g. once an export/backup pass
// has durably recorded it. Clearing an id that isn't dirty is not an
// error, matching ClearDirtyIssuesByID's "only clears issues that were
// actually exported" contract.
func (t *Tracker) Clear(ctx context.Context, tx kvstore.Txn, id ids.ID) error {
	key := idBytes(id)
	old, err := t.byID.Get(tx, key)
	if kvstore.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("dirty: reading mark for id %d: %w", id, err)
	}
	if err := t.bySeq.Delete(tx, old); err != nil {
		return fmt.Errorf("dirty: clearing sequence entry for id %d: %w", id, err)
	}
	if err := t.byID.Delete(tx, key); err != nil {
		return fmt.Errorf("dirty: clearing id index for id %d: %w", id, err)
	}
	return nil
}

// Count returns the number of currently dirty ids, for monitoring —
// mirroring GetDirtyIssueCount.
func (t *Tracker) Count(ctx context.Context, tx kvstore.Txn) (int, error) {
	cur, err := t.bySeq.Cursor(tx)
	if err != nil {
		return 0, fmt.Errorf("dirty: opening cursor: %w", err)
	}
	defer func() { _ = cur.Close() }()

	n := 0
	_, _, err = cur.Seek(nil, kvstore.OpFirst)
	for err == nil {
		n++
		_, _, err = cur.Seek(nil, kvstore.OpNext)
	}
	if !kvstore.IsNotFound(err) {
		return 0, fmt.Errorf("dirty: scanning: %w", err)
	}
	return n, nil
}
