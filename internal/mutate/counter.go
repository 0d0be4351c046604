package mutate

import (
	"context"
	"strconv"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// subordinateDelta selects how bumpSubordinates adjusts the parent's
// counter, per spec.md §4.4.5: {+1, -1, replace}.
type subordinateDelta struct {
	add     bool // true: +1, false: -1; ignored when replace is set
	replace bool
	value   int // only meaningful when replace is true
}

// applyDelta mutates e's NumSubordinates/HasSubordinates fields, and the
// mirrored "numsubordinates" attribute value, in place. An absent
// attribute receiving +1 becomes "add 1"; a value of 1 receiving -1
// becomes an outright delete of the attribute (HasSubordinates flips to
// false), matching the specification's edge cases exactly.
func applyDelta(e *entry.Entry, d subordinateDelta) {
	switch {
	case d.replace:
		e.NumSubordinates = d.value
	case d.add:
		e.NumSubordinates++
	default:
		e.NumSubordinates--
	}
	if e.NumSubordinates <= 0 {
		e.NumSubordinates = 0
		e.HasSubordinates = false
		e.DeleteValues("numsubordinates")
		e.DeleteValues("hassubordinates")
		return
	}
	e.HasSubordinates = true
	e.Attrs["numsubordinates"] = []entry.Value{entry.Value(strconv.Itoa(e.NumSubordinates))}
	e.Attrs["hassubordinates"] = []entry.Value{entry.Value("TRUE")}
}

// bumpSubordinates reads, adjusts, and rewrites parentID's entry's
// subordinate counter inside tx. It does not touch the cache: per the
// retry skeleton (spec.md §4.4), cache swaps happen once, after commit
// succeeds, not inside a transaction attempt that might still be
// retried. Callers collect the returned (before, after) pair and apply
// it with Cache.Replace only once the whole operation's Envelope.Run
// call returns successfully.
func (o *Ops) bumpSubordinates(ctx context.Context, tx kvstore.Txn, parentID ids.ID, d subordinateDelta) (before, after *entry.Entry, err error) {
	if parentID == ids.NOID {
		return nil, nil, nil
	}
	parent, err := o.getEntry(ctx, tx, parentID)
	if err != nil {
		return nil, nil, err
	}
	before = parent.Clone()
	applyDelta(parent, d)
	if err := o.putEntry(ctx, tx, parent); err != nil {
		return nil, nil, err
	}
	return before, parent, nil
}
