package mutate

import (
	"context"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// DeleteRequest is the input to Delete.
type DeleteRequest struct {
	ID ids.ID
	// Tombstone selects logical delete (replace the entry with its
	// tombstone form) over physical row removal, per spec.md §4.4.3.
	Tombstone bool
	CSN       string
}

// Delete implements spec.md §4.4.3: remove every index entry for the
// live entry and walk ancestorid's removal from the parent upward; a
// non-tombstone delete also removes the id2entry row, while a tombstone
// delete replaces it with the entry's tombstone form (DN rewritten to
// uniqueid=<u>,<originalDN>, nstombstone added to objectclass, only the
// three tombstone-only index entries written) and preserves the unique
// ID.
func (o *Ops) Delete(ctx context.Context, req DeleteRequest) error {
	var (
		before, after *entry.Entry
		parentBefore  *entry.Entry
		parentAfter   *entry.Entry
	)

	attempt := func(ctx context.Context, tx kvstore.Txn) error {
		before, after, parentBefore, parentAfter = nil, nil, nil, nil

		e, err := o.getEntry(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if e.HasSubordinates {
			return ldbmerr.ErrNotAllowedOnNonLeaf
		}
		before = e

		if err := o.Index.AddOrDelEntry(ctx, tx, o.Reg, e, index.FlagDel, o.Ancestor); err != nil {
			return err
		}

		if req.Tombstone {
			ts := tombstoneForm(e, req.CSN)
			if err := o.putEntry(ctx, tx, ts); err != nil {
				return err
			}
			if err := o.Index.AddOrDelEntry(ctx, tx, o.Reg, ts, index.FlagAdd, nil); err != nil {
				return err
			}
			after = ts
		} else {
			if err := o.deleteEntry(ctx, tx, e.ID); err != nil {
				return err
			}
		}

		if e.ParentID != ids.NOID {
			b, a, err := o.bumpSubordinates(ctx, tx, e.ParentID, subordinateDelta{add: false})
			if err != nil {
				return err
			}
			parentBefore, parentAfter = b, a
		}
		return o.dirty().Mark(ctx, tx, e.ID)
	}

	if err := o.Envelope.Run(ctx, nil, nil, attempt); err != nil {
		return err
	}

	if after != nil {
		o.Cache.Replace(before, after)
	} else {
		o.Cache.Remove(before)
	}
	if parentAfter != nil {
		o.Cache.Replace(parentBefore, parentAfter)
	}
	return nil
}

// tombstoneForm computes the tombstone rewrite of e, per spec.md §3/
// §4.4.1: DN rewritten to "uniqueid=<u>,<originalDN>", objectclass
// carries nstombstone, parentid is dropped (its placement is recovered
// from nscpentrydn instead), and only the three tombstone-only
// attributes remain indexed (enforced by AddOrDelEntry, which already
// restricts a tombstone's index writes to tombstoneOnlyAttrs).
func tombstoneForm(e *entry.Entry, csn string) *entry.Entry {
	ts := e.Clone()
	originalDN := ts.DN
	ts.DN = entry.TombstoneDN(originalDN, ts.UniqueID)
	ts.Tombstone = true
	ts.Attrs["objectclass"] = append(append([]entry.Value(nil), ts.Attrs["objectclass"]...), entry.Value("nstombstone"))
	ts.Attrs["nsuniqueid"] = []entry.Value{entry.Value(ts.UniqueID)}
	ts.Attrs["nscpentrydn"] = []entry.Value{entry.Value(originalDN)}
	ts.Attrs["entrydn"] = []entry.Value{entry.Value(ts.DN)}
	if csn != "" {
		ts.Attrs["nstombstonecsn"] = []entry.Value{entry.Value(csn)}
	}
	ts.ParentID = ids.NOID
	ts.NumSubordinates = 0
	ts.HasSubordinates = false
	return ts
}
