package mutate

import (
	"context"
	"strconv"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// AddRequest is the input to Add. ResurrectUniqueID, when set, names a
// tombstone (by its preserved unique ID) the new entry resurrects
// instead of being inserted fresh, per spec.md §4.4.1.
type AddRequest struct {
	Entry             *entry.Entry
	ResurrectUniqueID string
	CSN               string
}

// Add implements spec.md §4.4.1: allocate a fresh ID, tentatively
// reserve the DN in the cache, write id2entry and every index delta
// (including resurrection of a matching tombstone, when requested)
// inside a retried transaction, bump the parent's subordinate count,
// then swap the cache entry from reserved to live.
func (o *Ops) Add(ctx context.Context, req AddRequest) (*entry.Entry, error) {
	e := req.Entry
	if e.DN == "" {
		return nil, ldbmerr.ErrInvalidDNSyntax
	}

	id, err := o.Alloc.Next()
	if err != nil {
		return nil, ldbmerr.Wrap("mutate: add", err)
	}
	e.ID = id

	token, err := o.Cache.TentativeAdd(e)
	if err != nil {
		o.Alloc.Return(id)
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			token.AbortTentative()
			o.Alloc.Return(id)
		}
	}()

	var (
		tombstone    *entry.Entry
		parentBefore *entry.Entry
		parentAfter  *entry.Entry
	)

	attempt := func(ctx context.Context, tx kvstore.Txn) error {
		tombstone = nil
		parentBefore, parentAfter = nil, nil

		if req.ResurrectUniqueID != "" {
			ts, err := o.findTombstoneByUniqueID(ctx, tx, req.ResurrectUniqueID)
			if err != nil {
				return err
			}
			tombstone = ts
			if err := o.Index.AddOrDelEntry(ctx, tx, o.Reg, ts, index.FlagDel, o.Ancestor); err != nil {
				return err
			}
			e.ID = ts.ID
			e.UniqueID = ts.UniqueID
		}

		e.Attrs["entrydn"] = []entry.Value{entry.Value(e.DN)}
		if !e.Tombstone {
			e.Attrs["entryid"] = []entry.Value{entry.Value(strconv.FormatUint(uint64(e.ID), 10))}
		}

		if err := o.putEntry(ctx, tx, e); err != nil {
			return err
		}
		flag := index.FlagAdd
		var updater index.AncestorUpdater = o.Ancestor
		if e.Tombstone {
			updater = nil
		}
		if err := o.Index.AddOrDelEntry(ctx, tx, o.Reg, e, flag, updater); err != nil {
			return err
		}

		if e.ParentID != ids.NOID && !e.Tombstone {
			before, after, err := o.bumpSubordinates(ctx, tx, e.ParentID, subordinateDelta{add: true})
			if err != nil {
				return err
			}
			parentBefore, parentAfter = before, after
		}
		return o.dirty().Mark(ctx, tx, e.ID)
	}

	restore := func() {
		e.ID = id // undo a resurrection's ID takeover, if any, before retrying
		if req.ResurrectUniqueID == "" {
			e.UniqueID = ""
		}
	}

	if err := o.Envelope.Run(ctx, nil, restore, attempt); err != nil {
		return nil, err
	}

	committed = true
	if req.ResurrectUniqueID != "" {
		o.Alloc.Return(id) // id was never used: the resurrected tombstone's own ID was reused instead
	}
	if tombstone != nil {
		o.Cache.Remove(tombstone)
	}
	if parentAfter != nil {
		o.Cache.Replace(parentBefore, parentAfter)
	}
	token.CommitTentative()
	return e, nil
}

func (o *Ops) findTombstoneByUniqueID(ctx context.Context, tx kvstore.Txn, uniqueID string) (*entry.Entry, error) {
	ai, ok := o.Reg.Lookup("nsuniqueid")
	if !ok {
		return nil, ldbmerr.Wrap("mutate: resurrect", ldbmerr.ErrUnwillingToPerform)
	}
	l, unindexed, err := o.Index.Read(ctx, tx, ai, index.KindEquality, []byte(uniqueID))
	if err != nil {
		return nil, err
	}
	if unindexed || l.IsEmpty() {
		return nil, ldbmerr.ErrNoSuchObject
	}
	e, err := o.getEntry(ctx, tx, l.FirstID())
	if err != nil {
		return nil, err
	}
	if !e.IsTombstone() {
		return nil, ldbmerr.ErrUnwillingToPerform
	}
	return e, nil
}
