package mutate

import (
	"context"

	"github.com/dirserv/ldbm/internal/idl"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// ParentView adapts Ops onto the ancestor.ParentSource and
// ancestor.DNResolver interfaces, so internal/ancestor can rebuild and
// maintain ancestorid without importing mutate (or id2entry's layout)
// directly.
type ParentView struct {
	Ops *Ops
}

// ParentID returns e.ParentID, the typed field every add/modrdn keeps
// current; ids.NOID if id names a root entry.
func (v *ParentView) ParentID(ctx context.Context, tx kvstore.Txn, id ids.ID) (ids.ID, error) {
	e, err := v.Ops.getEntry(ctx, tx, id)
	if err != nil {
		return ids.NOID, err
	}
	return e.ParentID, nil
}

// Children returns the equality-index posting list for parentid=id.
func (v *ParentView) Children(ctx context.Context, tx kvstore.Txn, id ids.ID) (*idl.IDL, error) {
	ai, ok := v.Ops.Reg.Lookup("parentid")
	if !ok {
		return nil, ldbmerr.Wrap("mutate: ancestor rebuild", ldbmerr.ErrUnwillingToPerform)
	}
	l, unindexed, err := v.Ops.Index.Read(ctx, tx, ai, index.KindEquality, idKey(id))
	if err != nil {
		return nil, err
	}
	if unindexed {
		return nil, ldbmerr.Wrap("mutate: parentid must be equality-indexed for ancestor rebuild", ldbmerr.ErrUnwillingToPerform)
	}
	return l, nil
}

// NonLeafIDs walks the raw parentid-equality table's keys directly
// (rather than through Indexer.Read, which answers one value at a
// time): every distinct key there is some entry's parent ID.
func (v *ParentView) NonLeafIDs(ctx context.Context, tx kvstore.Txn) (*idl.IDL, error) {
	table, err := v.Ops.Store.Table(ctx, "index_parentid")
	if err != nil {
		return nil, err
	}
	cur, err := table.Cursor(tx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close() }()

	out := idl.New(0)
	k, _, err := cur.Seek(nil, kvstore.OpFirst)
	for err == nil {
		if len(k) == 6 && k[0] == byte(index.KindEquality) {
			var raw [4]byte
			copy(raw[:], k[1:5])
			out.Insert(ids.ID(uint32(raw[0])<<24 | uint32(raw[1])<<16 | uint32(raw[2])<<8 | uint32(raw[3])))
		}
		k, _, err = cur.Seek(nil, kvstore.OpNextNoDup)
	}
	if kvstore.IsNotFound(err) {
		err = nil
	}
	return out, err
}

// ResolveID resolves dn via the entrydn equality index, required to be
// single-valued per directory invariant.
func (v *ParentView) ResolveID(ctx context.Context, tx kvstore.Txn, dn string) (ids.ID, error) {
	ai, ok := v.Ops.Reg.Lookup("entrydn")
	if !ok {
		return ids.NOID, ldbmerr.Wrap("mutate: resolve dn", ldbmerr.ErrUnwillingToPerform)
	}
	l, unindexed, err := v.Ops.Index.Read(ctx, tx, ai, index.KindEquality, []byte(dn))
	if err != nil {
		return ids.NOID, err
	}
	if unindexed || l.IsEmpty() {
		return ids.NOID, ldbmerr.ErrNoSuchObject
	}
	return l.FirstID(), nil
}
