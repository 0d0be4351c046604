package mutate

import (
	"context"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// Modify implements spec.md §4.4.2: compute the post-image entry by
// applying mods in order, re-validate it, update every affected index
// per §4.2.2's subtype-aware semantics, and write id2entry. Full
// CSN-state dual-value propagation (the "once plain, once
// state-carrying" replication bookkeeping spec.md §4.4.2 alludes to) is
// replication conflict-resolution machinery, which is an explicit
// Non-goal here; this stamps a single modifyCSN attribute on the
// post-image instead of maintaining per-value replication state.
func (o *Ops) Modify(ctx context.Context, id ids.ID, mods []index.Mod, csn string) (*entry.Entry, error) {
	var before, after *entry.Entry

	attempt := func(ctx context.Context, tx kvstore.Txn) error {
		before, after = nil, nil

		oldEntry, err := o.getEntry(ctx, tx, id)
		if err != nil {
			return err
		}
		before = oldEntry
		newEntry := oldEntry.Clone()
		applyMods(newEntry, mods)
		if csn != "" {
			newEntry.Attrs["modifycsn"] = []entry.Value{entry.Value(csn)}
		}
		if err := newEntry.Validate(); err != nil {
			return err
		}

		if err := o.Index.AddMods(ctx, tx, o.Reg, mods, oldEntry, newEntry, newEntry.ID); err != nil {
			return err
		}
		if err := o.putEntry(ctx, tx, newEntry); err != nil {
			return err
		}
		after = newEntry
		return o.dirty().Mark(ctx, tx, newEntry.ID)
	}

	if err := o.Envelope.Run(ctx, nil, nil, attempt); err != nil {
		return nil, err
	}
	o.Cache.Replace(before, after)
	return after, nil
}

// applyMods mutates e in place according to mods, in order: ADD appends
// (skipping duplicates), DELETE removes named values (or the whole
// attribute if Values is empty), REPLACE overwrites the attribute's
// value set outright.
func applyMods(e *entry.Entry, mods []index.Mod) {
	for _, m := range mods {
		switch m.Op {
		case index.ModAdd:
			e.AddValues(m.Type, m.Values...)
		case index.ModDelete:
			e.DeleteValues(m.Type, m.Values...)
		case index.ModReplace:
			e.DeleteValues(m.Type)
			if len(m.Values) > 0 {
				e.AddValues(m.Type, m.Values...)
			}
		}
	}
}
