// Package idlset implements the k-way IDListSet engine the filter layer
// uses to combine per-leaf candidate lists (spec.md §4.1.4) without
// paying the O(N·k) cost of chaining pairwise idl.Union/idl.Intersection
// calls.
//
// Grounded on the teacher's internal/query evaluator, which accumulates
// per-clause candidate sets into one pass rather than folding pairwise —
// the same "collect all branches, merge once" shape, here specialized to
// sorted-ID k-way merge.
package idlset

import (
	"container/heap"

	"github.com/dirserv/ldbm/internal/idl"
	"github.com/dirserv/ldbm/internal/ids"
)

// FilterTestThreshold mirrors the specification's FILTER_TEST_THRESHOLD:
// below this size, an intersection short-circuits to its smallest
// operand and signals that the filter layer must re-verify each
// candidate, rather than paying for a full k-way intersection.
const FilterTestThreshold = 16

// IDListSet accumulates component IDLs from a compound filter's
// sub-expressions into three buckets — positive members, complement
// members, and an AllIDs flag — then resolves them with Union or
// Intersection.
type IDListSet struct {
	positive []*idl.IDL
	negative []*idl.IDL // complement operands, applied last via idl.NotIn
	sawAllIDs bool
	highestID ids.ID
}

// New creates an empty set. highestID bounds any AllIDs member added,
// matching idl.NewAllIDs's contract.
func New(highestID ids.ID) *IDListSet {
	return &IDListSet{highestID: highestID}
}

// AddPositive contributes one branch's candidate IDL, for either Union
// or Intersection.
func (s *IDListSet) AddPositive(l *idl.IDL) {
	if l.IsAllIDs() {
		s.sawAllIDs = true
	}
	s.positive = append(s.positive, l)
}

// AddComplement contributes a NOT-branch operand, applied via idl.NotIn
// after the positive buckets are resolved.
func (s *IDListSet) AddComplement(l *idl.IDL) {
	s.negative = append(s.negative, l)
}

// Result carries a resolved IDL plus the "don't bypass filtertest" flag:
// when true, the IDL is a superset of the true match set and the filter
// layer must re-check each candidate against the entry's actual
// attributes (spec.md §4.1.4, §4.4.2).
type Result struct {
	IDL             *idl.IDL
	NeedsFilterTest bool
}

// Union resolves every positive bucket with a k-way merge. If any bucket
// is AllIDs the whole result is AllIDs (union's absorbing element); no
// pairwise intermediate lists are ever retained, matching S6.
func (s *IDListSet) Union() Result {
	if s.sawAllIDs {
		return Result{IDL: idl.NewAllIDs(s.highestID)}
	}
	if len(s.positive) == 0 {
		return Result{IDL: idl.New(0)}
	}
	return Result{IDL: kWayUnion(s.positive)}
}

// Intersection resolves every positive bucket, applies the complement
// buckets last, and decides whether the filter layer must re-verify
// candidates.
func (s *IDListSet) Intersection() Result {
	if len(s.positive) == 0 {
		return Result{IDL: idl.NewAllIDs(s.highestID), NeedsFilterTest: true}
	}

	allAllIDs := true
	smallest := s.positive[0]
	for _, l := range s.positive {
		if !l.IsAllIDs() {
			allAllIDs = false
			if smallest.IsAllIDs() || len(l.IDs) < len(smallest.IDs) {
				smallest = l
			}
		}
	}
	if allAllIDs {
		return s.applyComplements(Result{IDL: idl.NewAllIDs(s.highestID), NeedsFilterTest: true})
	}
	if len(smallest.IDs) < FilterTestThreshold {
		return s.applyComplements(Result{IDL: smallest.Clone(), NeedsFilterTest: true})
	}

	res := kWayIntersection(s.positive)
	return s.applyComplements(Result{IDL: res})
}

func (s *IDListSet) applyComplements(r Result) Result {
	for _, neg := range s.negative {
		r.IDL = idl.NotIn(r.IDL, neg)
	}
	return r
}

// kWayUnion merges k sorted lists in O(N log k) using a min-heap keyed on
// the current head of each list, advancing (and deduplicating across)
// the global minimum per iteration.
func kWayUnion(lists []*idl.IDL) *idl.IDL {
	h := &idHeap{}
	total := 0
	for i, l := range lists {
		total += len(l.IDs)
		if len(l.IDs) > 0 {
			heap.Push(h, cursor{id: l.IDs[0], list: i, pos: 0})
		}
	}
	out := make([]ids.ID, 0, total)
	for h.Len() > 0 {
		top := heap.Pop(h).(cursor)
		if len(out) == 0 || out[len(out)-1] != top.id {
			out = append(out, top.id)
		}
		next := top.pos + 1
		if l := lists[top.list]; next < len(l.IDs) {
			heap.Push(h, cursor{id: l.IDs[next], list: top.list, pos: next})
		}
	}
	return idl.FromSlice(out)
}

// kWayIntersection emits a candidate only once every list has advanced
// past (or onto) a monotonically rising next_min, matching it when all k
// lists report the same ID in the same pass.
func kWayIntersection(lists []*idl.IDL) *idl.IDL {
	pos := make([]int, len(lists))
	var out []ids.ID
	for {
		nextMin := ids.NOID
		exhausted := false
		for i, l := range lists {
			if pos[i] >= len(l.IDs) {
				exhausted = true
				break
			}
			v := l.IDs[pos[i]]
			if nextMin == ids.NOID || v > nextMin {
				nextMin = v
			}
		}
		if exhausted {
			break
		}
		allMatch := true
		for i, l := range lists {
			for pos[i] < len(l.IDs) && l.IDs[pos[i]] < nextMin {
				pos[i]++
			}
			if pos[i] >= len(l.IDs) {
				allMatch = false
				break
			}
			if l.IDs[pos[i]] != nextMin {
				allMatch = false
			}
		}
		if allMatch {
			out = append(out, nextMin)
			for i := range lists {
				pos[i]++
			}
		} else {
			for i, l := range lists {
				for pos[i] < len(l.IDs) && l.IDs[pos[i]] <= nextMin {
					pos[i]++
				}
			}
		}
	}
	return idl.FromSlice(out)
}

type cursor struct {
	id   ids.ID
	list int
	pos  int
}

type idHeap []cursor

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return h[i].id < h[j].id }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(cursor)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}
