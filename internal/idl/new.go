package idl

import (
	"context"

	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// NewCodec is the "new" IDL encoding: duplicates delegated to the store,
// one duplicate record per member ID, always sorted by the store itself.
// There are no indirect blocks; AllIDs is recorded as a single duplicate
// record holding ids.NOID, which can never be a real member (entry IDs
// start at 1), so it cannot collide with a genuine member encoding.
type NewCodec struct {
	// AllIDsThreshold is the member count above which Insert promotes the
	// key to AllIDs, mirroring the specification's allidslimit.
	AllIDsThreshold int
}

var allIDsMarker = encodeID(ids.NOID)

func (c NewCodec) Fetch(_ context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, highestID ids.ID) (*IDL, error) {
	vals, err := table.GetAllDup(txn, key)
	if kvstore.IsNotFound(err) {
		return New(0), nil
	}
	if err != nil {
		return nil, err
	}
	if len(vals) == 1 && decodeID(vals[0]) == ids.NOID {
		return NewAllIDs(highestID), nil
	}
	out := make([]ids.ID, len(vals))
	for i, v := range vals {
		out[i] = decodeID(v)
	}
	return FromSlice(out), nil
}

func (c NewCodec) Insert(ctx context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, id ids.ID, highestID ids.ID) error {
	cur, err := c.Fetch(ctx, txn, table, key, highestID)
	if err != nil {
		return err
	}
	if cur.IsAllIDs() {
		return nil
	}
	if cur.IsMember(id) {
		return nil
	}
	if c.AllIDsThreshold > 0 && len(cur.IDs)+1 > c.AllIDsThreshold {
		return c.Store(ctx, txn, table, key, NewAllIDs(highestID))
	}
	return table.PutDup(txn, key, encodeID(id))
}

func (c NewCodec) Delete(_ context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, id ids.ID) error {
	vals, err := table.GetAllDup(txn, key)
	if kvstore.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(vals) == 1 && decodeID(vals[0]) == ids.NOID {
		// AllIDs never demotes.
		return nil
	}
	return table.DeleteDup(txn, key, encodeID(id))
}

func (c NewCodec) Store(_ context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, l *IDL) error {
	if err := table.Delete(txn, key); err != nil && !kvstore.IsNotFound(err) {
		return err
	}
	if l.IsAllIDs() {
		return table.PutDup(txn, key, allIDsMarker)
	}
	for _, id := range l.IDs {
		if err := table.PutDup(txn, key, encodeID(id)); err != nil {
			return err
		}
	}
	return nil
}
