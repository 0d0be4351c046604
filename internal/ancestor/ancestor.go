// Package ancestor builds and maintains the ancestorid index: for every
// non-leaf entry, the transitive closure of its descendants (spec.md
// §4.3). It is a consumer of the parentid view the index layer already
// maintains, not a producer of its own entry data, so it depends on
// internal/index's AncestorUpdater interface rather than the reverse.
//
// Grounded on the teacher's blocked_issues_cache.go: a materialized
// derived table rebuilt inside the same transaction that changes the
// data it is derived from, with a from-scratch full-rebuild path for
// recovery and an incremental path for the steady state — the same two-
// speed shape spec.md §4.3.1/§4.3.2 calls for.
package ancestor

import (
	"context"
	"sort"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/idl"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// ParentSource is the view onto parentid the builder reads from. It is
// satisfied by the write path's in-flight state during a mutation, and
// by a thin wrapper over the parentid index table otherwise.
type ParentSource interface {
	// ParentID returns id's direct parent, or ids.NOID if id is a root.
	ParentID(ctx context.Context, txn kvstore.Txn, id ids.ID) (ids.ID, error)
	// Children returns the direct children of id (parentid[id]).
	Children(ctx context.Context, txn kvstore.Txn, id ids.ID) (*idl.IDL, error)
	// NonLeafIDs returns every ID that is some entry's parent, sorted
	// ascending — the cursor walk over parentid's keys in step 1 of the
	// full rebuild.
	NonLeafIDs(ctx context.Context, txn kvstore.Txn) (*idl.IDL, error)
}

// DNResolver maps a DN to its ID, needed by MoveSubtree to translate the
// old/new DN chains spec.md §4.3.3 walks into concrete ancestor IDs.
type DNResolver interface {
	ResolveID(ctx context.Context, txn kvstore.Txn, dn string) (ids.ID, error)
}

const tableName = "ancestorid"

// Builder owns the ancestorid table.
type Builder struct {
	Store     kvstore.Store
	Codec     idl.Codec
	HighestID func() ids.ID
	Parents   ParentSource
	Resolver  DNResolver

	// Offline is set for the duration of RebuildFull, mirroring the
	// attrinfo OFFLINE bit: OnEntryChanged/Update become no-ops while
	// true, since the table is being rebuilt from scratch anyway.
	Offline bool
}

func (b *Builder) table(ctx context.Context) (kvstore.Table, error) {
	return b.Store.Table(ctx, tableName)
}

// RebuildFull implements spec.md §4.3.1: iterate non-leaf IDs from
// highest to lowest, accumulating each ID's own children plus whatever
// descendants were already accumulated for it into a local map, writing
// ancestorid[id] and propagating the result up to the entry's own
// parent. Requires no concurrent writers and an ID space where every
// non-leaf has a smaller ID than its descendants (true after import,
// not necessarily true after a subtree move — callers must not invoke
// this against a live, post-move tree without a preceding recount).
func (b *Builder) RebuildFull(ctx context.Context, txn kvstore.Txn) error {
	b.Offline = true
	defer func() { b.Offline = false }()

	table, err := b.table(ctx)
	if err != nil {
		return err
	}
	nonLeaves, err := b.Parents.NonLeafIDs(ctx, txn)
	if err != nil {
		return err
	}
	ordered := append([]ids.ID(nil), nonLeaves.IDs...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] > ordered[j] })

	accum := make(map[ids.ID]*idl.IDL)
	for _, id := range ordered {
		children, err := b.Parents.Children(ctx, txn, id)
		if err != nil {
			return err
		}
		descendants := idl.Union(children, accumOrEmpty(accum, id))
		delete(accum, id)

		key := ancestorKey(id)
		if err := b.Codec.Store(ctx, txn, table, key, descendants); err != nil {
			return err
		}

		parentID, err := b.Parents.ParentID(ctx, txn, id)
		if err != nil {
			return err
		}
		if parentID == ids.NOID {
			continue
		}
		accum[parentID] = idl.Union(accumOrEmpty(accum, parentID), descendants)
	}
	return nil
}

func accumOrEmpty(m map[ids.ID]*idl.IDL, id ids.ID) *idl.IDL {
	if l, ok := m[id]; ok {
		return l
	}
	return idl.New(0)
}

func ancestorKey(id ids.ID) []byte {
	return []byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)}
}

// OnEntryChanged satisfies index.AncestorUpdater: a single entry id was
// added under (flag==FlagAdd) or removed from under (flag==FlagDel)
// parentID. It walks the ancestor chain from parentID upward, adding or
// removing id from each ancestor's IDL, stopping early once an ancestor
// is already AllIDs (every higher ancestor must also be AllIDs).
func (b *Builder) OnEntryChanged(ctx context.Context, txn kvstore.Txn, id, parentID ids.ID, flag index.Flag) error {
	if b.Offline {
		return nil
	}
	table, err := b.table(ctx)
	if err != nil {
		return err
	}
	for anc := parentID; anc != ids.NOID; {
		key := ancestorKey(anc)
		cur, err := b.Codec.Fetch(ctx, txn, table, key, b.HighestID())
		if err != nil {
			return err
		}
		if cur.IsAllIDs() {
			return nil
		}
		switch flag {
		case index.FlagAdd:
			if err := b.Codec.Insert(ctx, txn, table, key, id, b.HighestID()); err != nil {
				return err
			}
		case index.FlagDel:
			if err := b.Codec.Delete(ctx, txn, table, key, id); err != nil {
				return err
			}
		}
		next, err := b.Parents.ParentID(ctx, txn, anc)
		if err != nil {
			return err
		}
		anc = next
	}
	return nil
}

// Update implements spec.md §4.3.2's ancestorid_index_update for the
// common case of adding (flag==FlagAdd) or removing (flag==FlagDel) a
// whole subtree rooted at id: every member of subtreeIDL, plus id
// itself, is added to or removed from every ancestor from parentID
// upward, short-circuiting once AllIDs is reached.
func (b *Builder) Update(ctx context.Context, txn kvstore.Txn, id, parentID ids.ID, subtreeIDL *idl.IDL, flag index.Flag) error {
	if b.Offline {
		return nil
	}
	table, err := b.table(ctx)
	if err != nil {
		return err
	}
	for anc := parentID; anc != ids.NOID; {
		key := ancestorKey(anc)
		cur, err := b.Codec.Fetch(ctx, txn, table, key, b.HighestID())
		if err != nil {
			return err
		}
		if cur.IsAllIDs() {
			return nil
		}
		switch flag {
		case index.FlagAdd:
			merged := idl.Union(cur, idl.Union(idl.FromSlice([]ids.ID{id}), subtreeIDL))
			if err := b.Codec.Store(ctx, txn, table, key, merged); err != nil {
				return err
			}
		case index.FlagDel:
			remove := idl.Union(idl.FromSlice([]ids.ID{id}), subtreeIDL)
			reduced := idl.NotIn(cur, remove)
			if err := b.Codec.Store(ctx, txn, table, key, reduced); err != nil {
				return err
			}
		}
		next, err := b.Parents.ParentID(ctx, txn, anc)
		if err != nil {
			return err
		}
		anc = next
	}
	return nil
}

// MoveSubtree implements spec.md §4.3.3: compute the common DN suffix of
// oldDN and newDN, then remove id and subtreeIDL from every ancestor
// strictly between oldDN and the common ancestor, and add them to every
// ancestor strictly between newDN and the common ancestor (the common
// ancestor itself is unchanged — it was correct before the move and
// remains correct after, since the moved subtree is still somewhere
// beneath it).
func (b *Builder) MoveSubtree(ctx context.Context, txn kvstore.Txn, oldDN, newDN string, id ids.ID, subtreeIDL *idl.IDL) error {
	common := entry.CommonSuffix(oldDN, newDN)
	if err := b.walkAndApply(ctx, txn, oldDN, common, id, subtreeIDL, index.FlagDel); err != nil {
		return err
	}
	return b.walkAndApply(ctx, txn, newDN, common, id, subtreeIDL, index.FlagAdd)
}

func (b *Builder) walkAndApply(ctx context.Context, txn kvstore.Txn, fromDN, stopAtSuffix string, id ids.ID, subtreeIDL *idl.IDL, flag index.Flag) error {
	table, err := b.table(ctx)
	if err != nil {
		return err
	}
	remove := idl.FromSlice([]ids.ID{id})
	if subtreeIDL != nil {
		remove = idl.Union(remove, subtreeIDL)
	}
	dn := fromDN
	for {
		parentDN, ok := entry.ParentDN(dn)
		if !ok || parentDN == stopAtSuffix {
			return nil
		}
		ancID, err := b.Resolver.ResolveID(ctx, txn, parentDN)
		if err != nil {
			return err
		}
		key := ancestorKey(ancID)
		cur, err := b.Codec.Fetch(ctx, txn, table, key, b.HighestID())
		if err != nil {
			return err
		}
		if cur.IsAllIDs() {
			dn = parentDN
			continue
		}
		var next *idl.IDL
		if flag == index.FlagAdd {
			next = idl.Union(cur, remove)
		} else {
			next = idl.NotIn(cur, remove)
		}
		if err := b.Codec.Store(ctx, txn, table, key, next); err != nil {
			return err
		}
		dn = parentDN
	}
}
