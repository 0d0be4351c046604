package mutate

import (
	"context"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// GetEntry exposes id2entry's read path to callers outside this
// package: the search/seq/export front end this storage core serves
// needs read access to committed entries without going through a
// mutation op.
func (o *Ops) GetEntry(ctx context.Context, tx kvstore.Txn, id ids.ID) (*entry.Entry, error) {
	return o.getEntry(ctx, tx, id)
}

// WalkEntries visits every id2entry row in ascending ID order, calling
// fn with each decoded entry. It stops and returns fn's error as soon as
// one occurs. Used by rebuild-index and export, which need every entry
// rather than an indexed subset.
func (o *Ops) WalkEntries(ctx context.Context, tx kvstore.Txn, fn func(*entry.Entry) error) error {
	table, err := o.table(ctx)
	if err != nil {
		return err
	}
	cur, err := table.Cursor(tx)
	if err != nil {
		return err
	}
	defer func() { _ = cur.Close() }()

	_, v, err := cur.Seek(nil, kvstore.OpFirst)
	for err == nil {
		e, decErr := decodeEntry(ctx, o.crypt(), v)
		if decErr != nil {
			return decErr
		}
		if err := fn(e); err != nil {
			return err
		}
		_, v, err = cur.Seek(nil, kvstore.OpNext)
	}
	if kvstore.IsNotFound(err) {
		return nil
	}
	return err
}

// HighestID returns the largest ID present in id2entry, or ids.NOID if
// the table is empty — the value the ID allocator seeds Next() from at
// startup so a restart never reissues an ID.
func (o *Ops) HighestID(ctx context.Context, tx kvstore.Txn) (ids.ID, error) {
	table, err := o.table(ctx)
	if err != nil {
		return ids.NOID, err
	}
	cur, err := table.Cursor(tx)
	if err != nil {
		return ids.NOID, err
	}
	defer func() { _ = cur.Close() }()

	k, _, err := cur.Seek(nil, kvstore.OpLast)
	if kvstore.IsNotFound(err) {
		return ids.NOID, nil
	}
	if err != nil {
		return ids.NOID, err
	}
	return decodeIDKey(k), nil
}
