// Package idl implements the ID-list abstraction: a sorted set of entry
// IDs, with an AllIDs sentinel standing in for "every live ID" so that an
// over-broad index key never has to materialize millions of members.
//
// Grounded on the teacher's cache.go/store.go convention of modelling a
// result set as a typed slice with explicit helper constructors rather
// than a bare []T, and on the dedicated-mutex idiom used for the next-ID
// allocator in internal/ids for the "single well-defined mutator" shape
// IDL's set operations follow (each returns a new value; none mutate
// their inputs in place except Insert/Delete, which are documented as
// such).
package idl

import (
	"sort"

	"github.com/dirserv/ldbm/internal/ids"
)

// MaxLength is the sentinel length reported for an AllIDs list, matching
// the specification's "idl_length(AllIDs) = UINT_MAX".
const MaxLength = ^uint32(0)

// DeleteResult enumerates the outcomes of Delete, mirroring the
// specification's idl_delete return codes.
type DeleteResult int

const (
	DeleteNotFound DeleteResult = iota
	DeleteOK
	DeleteOKFirstChanged
	DeleteEmptied
	DeleteFromAllIDs
)

// IDL is a tagged variant: either a sorted, deduplicated vector of IDs, or
// the AllIDs sentinel. Count is only meaningful when AllIDs is true; it
// records the highest ID assigned at the time AllIDs was stamped
// (idl_allids(be) in the specification), used for Length and to bound
// FirstID/NextID iteration.
type IDL struct {
	AllIDs bool
	Count  ids.ID  // valid iff AllIDs
	IDs    []ids.ID // sorted ascending, no duplicates; valid iff !AllIDs
}

// New returns an empty, non-AllIDs list with capacity hinted by n.
func New(n int) *IDL {
	return &IDL{IDs: make([]ids.ID, 0, n)}
}

// NewAllIDs returns the AllIDs sentinel as of the given highest live ID.
func NewAllIDs(highestID ids.ID) *IDL {
	return &IDL{AllIDs: true, Count: highestID}
}

// FromSlice builds a Regular IDL from an already-sorted, duplicate-free
// slice. Callers that can't guarantee order should use Insert instead.
func FromSlice(sorted []ids.ID) *IDL {
	return &IDL{IDs: sorted}
}

// Clone returns a deep copy.
func (l *IDL) Clone() *IDL {
	if l == nil {
		return nil
	}
	if l.AllIDs {
		return &IDL{AllIDs: true, Count: l.Count}
	}
	out := make([]ids.ID, len(l.IDs))
	copy(out, l.IDs)
	return &IDL{IDs: out}
}

// Length reports the member count, or MaxLength for AllIDs.
func (l *IDL) Length() uint32 {
	if l.AllIDs {
		return MaxLength
	}
	return uint32(len(l.IDs))
}

// IsAllIDs reports whether l is the AllIDs sentinel.
func (l *IDL) IsAllIDs() bool { return l != nil && l.AllIDs }

// IsEmpty reports whether l is a Regular list with no members. AllIDs is
// never empty.
func (l *IDL) IsEmpty() bool { return l != nil && !l.AllIDs && len(l.IDs) == 0 }

// search returns the index of id in l.IDs, and whether it was found
// (sort.Search lower-bound semantics: when not found, idx is the
// insertion point that keeps the slice sorted).
func search(s []ids.ID, id ids.ID) (idx int, found bool) {
	idx = sort.Search(len(s), func(i int) bool { return s[i] >= id })
	return idx, idx < len(s) && s[idx] == id
}

// Insert adds id to l in sorted position, growing as needed. Reports
// whether the list was modified (false if id was already present or l is
// AllIDs, which already contains everything by definition).
func (l *IDL) Insert(id ids.ID) bool {
	if l.AllIDs {
		return false
	}
	idx, found := search(l.IDs, id)
	if found {
		return false
	}
	l.IDs = append(l.IDs, ids.NOID)
	copy(l.IDs[idx+1:], l.IDs[idx:])
	l.IDs[idx] = id
	return true
}

// Append adds id, which must be >= every existing member (the bulk-load
// fast path used by index rebuilds walking a source already in order).
// It returns 0 on append, 1 if id already equals the current last member
// (a no-op duplicate), matching idl_append's contract.
func (l *IDL) Append(id ids.ID) int {
	n := len(l.IDs)
	if n > 0 && l.IDs[n-1] == id {
		return 1
	}
	l.IDs = append(l.IDs, id)
	return 0
}

// Delete removes id from l, reporting which of the specification's
// idl_delete outcomes applied.
func (l *IDL) Delete(id ids.ID) DeleteResult {
	if l.AllIDs {
		return DeleteFromAllIDs
	}
	idx, found := search(l.IDs, id)
	if !found {
		return DeleteNotFound
	}
	firstChanged := idx == 0
	l.IDs = append(l.IDs[:idx], l.IDs[idx+1:]...)
	if len(l.IDs) == 0 {
		return DeleteEmptied
	}
	if firstChanged {
		return DeleteOKFirstChanged
	}
	return DeleteOK
}

// IsMember reports whether id is present in l (always true for AllIDs).
func (l *IDL) IsMember(id ids.ID) bool {
	if l.AllIDs {
		return true
	}
	_, found := search(l.IDs, id)
	return found
}

// FirstID returns the first member, or ids.NOID if l is empty. For
// AllIDs, iteration walks every ID from 1 to Count.
func (l *IDL) FirstID() ids.ID {
	if l.AllIDs {
		if l.Count == ids.NOID {
			return ids.NOID
		}
		return 1
	}
	if len(l.IDs) == 0 {
		return ids.NOID
	}
	return l.IDs[0]
}

// NextID returns the member following cur, or ids.NOID when cur was the
// last member.
func (l *IDL) NextID(cur ids.ID) ids.ID {
	if l.AllIDs {
		if cur >= l.Count {
			return ids.NOID
		}
		return cur + 1
	}
	idx, found := search(l.IDs, cur)
	if !found {
		return ids.NOID
	}
	idx++
	if idx >= len(l.IDs) {
		return ids.NOID
	}
	return l.IDs[idx]
}

// Union merges a and b. AllIDs dominates: union(A, AllIDs) = AllIDs.
func Union(a, b *IDL) *IDL {
	if a.AllIDs || b.AllIDs {
		return &IDL{AllIDs: true, Count: maxCount(a, b)}
	}
	out := make([]ids.ID, 0, len(a.IDs)+len(b.IDs))
	i, j := 0, 0
	for i < len(a.IDs) && j < len(b.IDs) {
		switch {
		case a.IDs[i] < b.IDs[j]:
			out = append(out, a.IDs[i])
			i++
		case a.IDs[i] > b.IDs[j]:
			out = append(out, b.IDs[j])
			j++
		default:
			out = append(out, a.IDs[i])
			i++
			j++
		}
	}
	out = append(out, a.IDs[i:]...)
	out = append(out, b.IDs[j:]...)
	return &IDL{IDs: out}
}

// Intersection computes a ∩ b. AllIDs is the identity element:
// intersection(A, AllIDs) = A.
func Intersection(a, b *IDL) *IDL {
	if a.AllIDs {
		return b.Clone()
	}
	if b.AllIDs {
		return a.Clone()
	}
	out := make([]ids.ID, 0, min(len(a.IDs), len(b.IDs)))
	i, j := 0, 0
	for i < len(a.IDs) && j < len(b.IDs) {
		switch {
		case a.IDs[i] < b.IDs[j]:
			i++
		case a.IDs[i] > b.IDs[j]:
			j++
		default:
			out = append(out, a.IDs[i])
			i++
			j++
		}
	}
	return &IDL{IDs: out}
}

// NotIn computes a \ b, the IDs in a that are not in b.
// notin(a, AllIDs) = a: excluding "everything" from a is defined as a
// no-op, not as emptying a. When a is itself AllIDs, the complement is
// computed by walking every ID from 1 through a.Count and keeping the
// ones not present in b, bounded by a.Count the way the caller's
// HighestID() bounds NewAllIDs.
func NotIn(a, b *IDL) *IDL {
	if b.AllIDs {
		return a.Clone()
	}
	if a.AllIDs {
		return complementOf(b, a.Count)
	}
	out := make([]ids.ID, 0, len(a.IDs))
	j := 0
	for _, id := range a.IDs {
		for j < len(b.IDs) && b.IDs[j] < id {
			j++
		}
		if j < len(b.IDs) && b.IDs[j] == id {
			continue
		}
		out = append(out, id)
	}
	return &IDL{IDs: out}
}

// complementOf returns every ID in [1, count] not present in b, which
// must be a Regular (non-AllIDs) list. This is the bounded AllIDs \ b
// walk used when NotIn's first operand is itself AllIDs.
func complementOf(b *IDL, count ids.ID) *IDL {
	hint := int(count) - len(b.IDs)
	if hint < 0 {
		hint = 0
	}
	out := make([]ids.ID, 0, hint)
	j := 0
	for id := ids.ID(1); id <= count; id++ {
		for j < len(b.IDs) && b.IDs[j] < id {
			j++
		}
		if j < len(b.IDs) && b.IDs[j] == id {
			continue
		}
		out = append(out, id)
	}
	return &IDL{IDs: out}
}

func maxCount(a, b *IDL) ids.ID {
	ac, bc := countOf(a), countOf(b)
	if ac > bc {
		return ac
	}
	return bc
}

func countOf(l *IDL) ids.ID {
	if l.AllIDs {
		return l.Count
	}
	if len(l.IDs) == 0 {
		return ids.NOID
	}
	return l.IDs[len(l.IDs)-1]
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
