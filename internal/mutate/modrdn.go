package mutate

import (
	"context"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/idl"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// ModrdnRequest is the input to Modrdn.
type ModrdnRequest struct {
	ID           ids.ID
	NewRDN       string // e.g. "cn=newname"
	NewSuperior  string // "" means superior is unchanged
	DeleteOldRDN bool
	CSN          string

	// SubtreeRename, when true, updates the subtree's placement in one
	// entryrdn-style operation instead of rewriting every descendant
	// entry's DN individually, per spec.md §4.4.4's subtree-rename mode.
	SubtreeRename bool
}

// Modrdn implements spec.md §4.4.4: compute the old and new DNs, derive
// the RDN-attribute mods (deleting old RDN values if requested, adding
// new ones unless already present under any subtype), reindex entrydn
// and the new RDN's equality keys, call ancestor.MoveSubtree with the
// subtree's member IDL, bump both parents' subordinate counts when the
// superior changes, and either rewrite the whole subtree in one
// entryrdn-style move or walk and rewrite every descendant individually.
func (o *Ops) Modrdn(ctx context.Context, req ModrdnRequest) (*entry.Entry, error) {
	var (
		before, after   *entry.Entry
		oldParentBefore *entry.Entry
		oldParentAfter  *entry.Entry
		newParentBefore *entry.Entry
		newParentAfter  *entry.Entry

		descendants       []*entry.Entry // rewritten descendant entries, non-subtree-rename mode only
		descendantsBefore []*entry.Entry
	)

	attempt := func(ctx context.Context, tx kvstore.Txn) error {
		before, after = nil, nil
		oldParentBefore, oldParentAfter = nil, nil
		newParentBefore, newParentAfter = nil, nil
		descendants, descendantsBefore = nil, nil

		e, err := o.getEntry(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		before = e
		oldDN := e.DN

		newParentDN := req.NewSuperior
		superiorChanged := newParentDN != "" && newParentDN != parentDNOf(oldDN)
		if newParentDN == "" {
			newParentDN, _ = entry.ParentDN(oldDN)
		}
		newDN := entry.NormalizeDN(req.NewRDN + "," + newParentDN)

		mods := rdnMods(entry.RDN(oldDN), req.NewRDN, req.DeleteOldRDN, e)
		newEntry := e.Clone()
		applyMods(newEntry, mods)
		newEntry.DN = newDN
		newEntry.Attrs["entrydn"] = []entry.Value{entry.Value(newDN)}

		if superiorChanged {
			newParentID, err := (&ParentView{Ops: o}).ResolveID(ctx, tx, newParentDN)
			if err != nil {
				return err
			}
			newEntry.ParentID = newParentID
		}

		if err := o.Index.AddMods(ctx, tx, o.Reg, mods, e, newEntry, e.ID); err != nil {
			return err
		}
		if err := reindexDN(ctx, tx, o.Index, o.Reg, e.ID, oldDN, newDN); err != nil {
			return err
		}
		if err := o.putEntry(ctx, tx, newEntry); err != nil {
			return err
		}
		after = newEntry

		// ancestorid[e.ID] already holds e's full transitive descendant
		// set (spec.md §4.3); that is exactly the subtree_idl
		// move_subtree needs, with no separate Children() walk required.
		subtree, err := o.fetchAncestorIDL(ctx, tx, e.ID)
		if err != nil {
			return err
		}

		if err := o.Ancestor.MoveSubtree(ctx, tx, oldDN, newDN, e.ID, subtree); err != nil {
			return err
		}

		if superiorChanged {
			oldParentID := e.ParentID
			if oldParentID == ids.NOID {
				oldParentID, _ = (&ParentView{Ops: o}).ParentID(ctx, tx, e.ID)
			}
			if b, a, err := o.bumpSubordinates(ctx, tx, oldParentID, subordinateDelta{add: false}); err != nil {
				return err
			} else {
				oldParentBefore, oldParentAfter = b, a
			}
			if b, a, err := o.bumpSubordinates(ctx, tx, newEntry.ParentID, subordinateDelta{add: true}); err != nil {
				return err
			} else {
				newParentBefore, newParentAfter = b, a
			}
		}

		if !req.SubtreeRename {
			dBefore, dAfter, err := o.renameDescendants(ctx, tx, subtree, oldDN, newDN)
			if err != nil {
				return err
			}
			descendantsBefore, descendants = dBefore, dAfter
		}

		return o.dirty().Mark(ctx, tx, e.ID)
	}

	if err := o.Envelope.Run(ctx, nil, nil, attempt); err != nil {
		return nil, err
	}

	o.Cache.Replace(before, after)
	if oldParentAfter != nil {
		o.Cache.Replace(oldParentBefore, oldParentAfter)
	}
	if newParentAfter != nil {
		o.Cache.Replace(newParentBefore, newParentAfter)
	}
	for i := range descendants {
		o.Cache.Replace(descendantsBefore[i], descendants[i])
	}
	return after, nil
}

func parentDNOf(dn string) string {
	p, ok := entry.ParentDN(dn)
	if !ok {
		return ""
	}
	return p
}

// rdnMods derives the ADD/DELETE mods an RDN change implies, per
// spec.md §4.4.4: old RDN components are deleted only if deleteOldRDN
// is set, and new RDN components are added unless e already carries
// that value under the same attribute type (entry.HasValue matches the
// exact type only; values held under a subtype are not consulted).
func rdnMods(oldRDN, newRDN string, deleteOldRDN bool, e *entry.Entry) []index.Mod {
	var mods []index.Mod
	if deleteOldRDN {
		for _, c := range splitRDN(oldRDN) {
			mods = append(mods, index.Mod{Op: index.ModDelete, Type: c.attr, Values: []entry.Value{entry.Value(c.value)}})
		}
	}
	for _, c := range splitRDN(newRDN) {
		if e.HasValue(c.attr, entry.Value(c.value)) {
			continue
		}
		mods = append(mods, index.Mod{Op: index.ModAdd, Type: c.attr, Values: []entry.Value{entry.Value(c.value)}})
	}
	return mods
}

type rdnComponent struct{ attr, value string }

func splitRDN(rdn string) []rdnComponent {
	var out []rdnComponent
	for _, comp := range splitPlus(rdn) {
		eq := indexByte(comp, '=')
		if eq < 0 {
			continue
		}
		out = append(out, rdnComponent{attr: comp[:eq], value: comp[eq+1:]})
	}
	return out
}

func splitPlus(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '+' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// reindexDN removes oldDN's entrydn-equality key and adds newDN's, both
// under the same entry id.
func reindexDN(ctx context.Context, tx kvstore.Txn, ix *index.Indexer, reg index.Registry, id ids.ID, oldDN, newDN string) error {
	ai, ok := reg.Lookup("entrydn")
	if !ok {
		return nil
	}
	if err := ix.AddOrDelValues(ctx, tx, ai, []entry.Value{entry.Value(oldDN)}, id, index.FlagDel); err != nil {
		return err
	}
	return ix.AddOrDelValues(ctx, tx, ai, []entry.Value{entry.Value(newDN)}, id, index.FlagAdd)
}

func (o *Ops) fetchAncestorIDL(ctx context.Context, tx kvstore.Txn, id ids.ID) (*idl.IDL, error) {
	table, err := o.Store.Table(ctx, "ancestorid")
	if err != nil {
		return nil, err
	}
	return o.Ancestor.Codec.Fetch(ctx, tx, table, ancestorKeyOf(id), o.Ancestor.HighestID())
}

func ancestorKeyOf(id ids.ID) []byte { return idKey(id) }

// renameDescendants rewrites every descendant entry's DN by replacing
// the oldDN suffix with newDN, individually, per spec.md §4.4.4's
// non-subtree-rename mode.
func (o *Ops) renameDescendants(ctx context.Context, tx kvstore.Txn, subtree *idl.IDL, oldDN, newDN string) (before, after []*entry.Entry, err error) {
	if subtree == nil || subtree.IsEmpty() {
		return nil, nil, nil
	}
	for cur := subtree.FirstID(); cur != ids.NOID; cur = subtree.NextID(cur) {
		d, err := o.getEntry(ctx, tx, cur)
		if err != nil {
			return nil, nil, err
		}
		if len(d.DN) < len(oldDN) || d.DN[len(d.DN)-len(oldDN):] != oldDN {
			continue
		}
		nd := d.Clone()
		nd.DN = nd.DN[:len(nd.DN)-len(oldDN)] + newDN
		nd.Attrs["entrydn"] = []entry.Value{entry.Value(nd.DN)}
		if err := reindexDN(ctx, tx, o.Index, o.Reg, d.ID, d.DN, nd.DN); err != nil {
			return nil, nil, err
		}
		if err := o.putEntry(ctx, tx, nd); err != nil {
			return nil, nil, err
		}
		before = append(before, d)
		after = append(after, nd)
	}
	return before, after, nil
}
