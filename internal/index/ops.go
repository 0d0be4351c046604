package index

import (
	"context"
	"strings"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// Registry maps an attribute type (lower-cased, base type without
// subtype suffix) to its index configuration.
type Registry map[string]AttrInfo

func baseType(attrType string) string {
	if i := strings.IndexByte(attrType, ';'); i >= 0 {
		return strings.ToLower(attrType[:i])
	}
	return strings.ToLower(attrType)
}

func (r Registry) lookup(attrType string) (AttrInfo, bool) {
	ai, ok := r[baseType(attrType)]
	return ai, ok
}

// Lookup returns the AttrInfo registered for attrType's base type (the
// part before any ";subtype" suffix), exported for callers outside this
// package such as internal/filter's evaluator.
func (r Registry) Lookup(attrType string) (AttrInfo, bool) {
	return r.lookup(attrType)
}

// valuesToKeys derives every index key a value contributes for the given
// kind, per spec.md §4.2.1/§4.2.3.
func (ix *Indexer) valuesToKeys(ai AttrInfo, kind Kind, values []entry.Value) ([][]byte, error) {
	switch kind {
	case KindPresence:
		if len(values) == 0 {
			return nil, nil
		}
		k, err := ix.buildKey(ai, kind, nil)
		return [][]byte{k}, err
	case KindSubstring:
		var keys [][]byte
		n := ai.ngramSize()
		for _, v := range values {
			for _, gram := range substringKeys([]byte(v), n) {
				k, err := ix.buildKey(ai, kind, gram)
				if err != nil {
					return nil, err
				}
				keys = append(keys, k)
			}
		}
		return dedupKeys(keys), nil
	default: // equality, approximate, matching-rule: one key per raw value
		var keys [][]byte
		for _, v := range values {
			k, err := ix.buildKey(ai, kind, []byte(v))
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		}
		return dedupKeys(keys), nil
	}
}

// AddOrDelValues inserts or deletes id under every key that values
// derives across every enabled kind of ai (spec.md §4.2.2).
func (ix *Indexer) AddOrDelValues(ctx context.Context, txn kvstore.Txn, ai AttrInfo, values []entry.Value, id ids.ID, flag Flag) error {
	if ai.Offline {
		return nil
	}
	table, err := ix.Store.Table(ctx, tableName(ai.Type))
	if err != nil {
		return err
	}
	for _, kind := range ai.Kinds {
		keys, err := ix.valuesToKeys(ai, kind, values)
		if err != nil {
			return err
		}
		for _, key := range keys {
			switch flag {
			case FlagAdd:
				err = ix.Codec.Insert(ctx, txn, table, key, id, ix.HighestID())
			case FlagDel:
				err = ix.Codec.Delete(ctx, txn, table, key, id)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// AncestorUpdater is the ancestor-ID updater hook AddOrDelEntry invokes
// for non-tombstone entries, satisfied by internal/ancestor.Builder.
// Defined here (rather than index importing ancestor) to keep the
// dependency direction ancestor -> index, matching the specification's
// layering where the ancestor-ID builder is a consumer of the index
// layer's id2entry/parentid view, not the reverse.
type AncestorUpdater interface {
	OnEntryChanged(ctx context.Context, txn kvstore.Txn, id, parentID ids.ID, flag Flag) error
}

// tombstoneOnlyAttrs are the three index entries a tombstone add/delete
// touches, per spec.md §4.4.1/§4.4.3: objectclass=tombstone, the unique
// ID, and the copied parent-entry DN used to recover placement.
var tombstoneOnlyAttrs = []string{"objectclass", "nsuniqueid", "nscpentrydn"}

// AddOrDelEntry walks every attribute of e (or, for a tombstone, only
// the three tombstone-only attributes) and applies AddOrDelValues, then
// invokes updater unless e is a tombstone.
func (ix *Indexer) AddOrDelEntry(ctx context.Context, txn kvstore.Txn, reg Registry, e *entry.Entry, flag Flag, updater AncestorUpdater) error {
	attrTypes := e.AttrTypes()
	if e.IsTombstone() {
		attrTypes = tombstoneOnlyAttrs
	}
	for _, t := range attrTypes {
		ai, ok := reg.lookup(t)
		if !ok {
			continue
		}
		if err := ix.AddOrDelValues(ctx, txn, ai, e.Get(t), e.ID, flag); err != nil {
			return err
		}
	}
	if e.IsTombstone() || updater == nil {
		return nil
	}
	return updater.OnEntryChanged(ctx, txn, e.ID, e.ParentID, flag)
}

// ModOp is an LDAP modify operation kind.
type ModOp int

const (
	ModAdd ModOp = iota
	ModDelete
	ModReplace
)

// Mod is one attribute-level modification, matching the shape
// AddMods consumes.
type Mod struct {
	Op     ModOp
	Type   string
	Values []entry.Value
}

// AddMods applies mods' index-layer consequences (spec.md §4.2.2): ADD
// indexes the added values; DELETE removes only the values that truly
// vanish from oldEntry (subtype-aware: a value surviving under a
// different subtype of the same base type keeps its equality key, and
// presence is only cleared once no value remains under any subtype);
// REPLACE is decomposed into DELETE-old then ADD-new using the same
// logic. newEntry reflects the entry's state after every mod in the
// batch has been applied, so subtype survival can be checked accurately.
func (ix *Indexer) AddMods(ctx context.Context, txn kvstore.Txn, reg Registry, mods []Mod, oldEntry, newEntry *entry.Entry, id ids.ID) error {
	for _, m := range mods {
		ai, ok := reg.lookup(m.Type)
		if !ok {
			continue
		}
		switch m.Op {
		case ModAdd:
			if err := ix.AddOrDelValues(ctx, txn, ai, m.Values, id, FlagAdd); err != nil {
				return err
			}
		case ModDelete:
			if err := ix.deleteVanished(ctx, txn, ai, m.Values, oldEntry, newEntry, id); err != nil {
				return err
			}
		case ModReplace:
			old := oldEntry.Get(m.Type)
			if err := ix.deleteVanished(ctx, txn, ai, old, oldEntry, newEntry, id); err != nil {
				return err
			}
			if err := ix.AddOrDelValues(ctx, txn, ai, m.Values, id, FlagAdd); err != nil {
				return err
			}
		}
	}
	return nil
}

// deleteVanished removes the index entries for values that no longer
// survive anywhere under base type ai.Type in newEntry, including under
// a different subtype.
func (ix *Indexer) deleteVanished(ctx context.Context, txn kvstore.Txn, ai AttrInfo, values []entry.Value, oldEntry, newEntry *entry.Entry, id ids.ID) error {
	base := baseType(ai.Type)
	survivingAnywhere := subtypeUnion(newEntry, base)
	anyValueLeft := len(survivingAnywhere) > 0

	var trulyGone []entry.Value
	for _, v := range values {
		if !containsValue(survivingAnywhere, v) {
			trulyGone = append(trulyGone, v)
		}
	}
	if len(trulyGone) > 0 {
		for _, kind := range ai.Kinds {
			if kind == KindPresence {
				continue // presence handled once below
			}
			if err := ix.deleteValuesKind(ctx, txn, ai, kind, trulyGone, id); err != nil {
				return err
			}
		}
	}
	if !anyValueLeft && ai.hasKind(KindPresence) {
		if err := ix.deleteValuesKind(ctx, txn, ai, KindPresence, values, id); err != nil {
			return err
		}
	}
	return nil
}

func (ix *Indexer) deleteValuesKind(ctx context.Context, txn kvstore.Txn, ai AttrInfo, kind Kind, values []entry.Value, id ids.ID) error {
	table, err := ix.Store.Table(ctx, tableName(ai.Type))
	if err != nil {
		return err
	}
	keys, err := ix.valuesToKeys(ai, kind, values)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := ix.Codec.Delete(ctx, txn, table, key, id); err != nil {
			return err
		}
	}
	return nil
}

func subtypeUnion(e *entry.Entry, base string) []entry.Value {
	var out []entry.Value
	for _, t := range e.AttrTypes() {
		if baseType(t) == base {
			out = append(out, e.Get(t)...)
		}
	}
	return out
}

func containsValue(set []entry.Value, v entry.Value) bool {
	for _, s := range set {
		if string(s) == string(v) {
			return true
		}
	}
	return false
}
