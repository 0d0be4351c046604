package idl

import (
	"testing"

	"github.com/dirserv/ldbm/internal/ids"
)

func ids32(vs ...uint32) []ids.ID {
	out := make([]ids.ID, len(vs))
	for i, v := range vs {
		out[i] = ids.ID(v)
	}
	return out
}

func assertIDs(t *testing.T, got *IDL, want []ids.ID) {
	t.Helper()
	if got.AllIDs {
		t.Fatalf("got AllIDs, want regular list %v", want)
	}
	if len(got.IDs) != len(want) {
		t.Fatalf("got %v, want %v", got.IDs, want)
	}
	for i := range want {
		if got.IDs[i] != want[i] {
			t.Fatalf("got %v, want %v", got.IDs, want)
		}
	}
}

func TestInsertKeepsSortedNoDuplicates(t *testing.T) {
	l := New(0)
	for _, id := range ids32(5, 1, 3, 1, 3) {
		l.Insert(id)
	}
	assertIDs(t, l, ids32(1, 3, 5))
}

func TestInsertReportsModification(t *testing.T) {
	l := New(0)
	if !l.Insert(ids.ID(1)) {
		t.Fatal("first insert should report modified=true")
	}
	if l.Insert(ids.ID(1)) {
		t.Fatal("duplicate insert should report modified=false")
	}
}

func TestInsertIntoAllIDsIsNoop(t *testing.T) {
	l := NewAllIDs(ids.ID(10))
	if l.Insert(ids.ID(5)) {
		t.Fatal("Insert into AllIDs should report false")
	}
	if !l.IsAllIDs() {
		t.Fatal("AllIDs must remain AllIDs")
	}
}

func TestDeleteOutcomes(t *testing.T) {
	l := FromSlice(ids32(1, 2, 3))
	if r := l.Delete(ids.ID(99)); r != DeleteNotFound {
		t.Fatalf("got %v, want DeleteNotFound", r)
	}
	if r := l.Delete(ids.ID(1)); r != DeleteOKFirstChanged {
		t.Fatalf("got %v, want DeleteOKFirstChanged", r)
	}
	if r := l.Delete(ids.ID(3)); r != DeleteOK {
		t.Fatalf("got %v, want DeleteOK", r)
	}
	if r := l.Delete(ids.ID(2)); r != DeleteEmptied {
		t.Fatalf("got %v, want DeleteEmptied", r)
	}
}

func TestDeleteFromAllIDsNeverDemotes(t *testing.T) {
	l := NewAllIDs(ids.ID(5))
	if r := l.Delete(ids.ID(3)); r != DeleteFromAllIDs {
		t.Fatalf("got %v, want DeleteFromAllIDs", r)
	}
	if !l.IsAllIDs() {
		t.Fatal("AllIDs must never demote back to Regular")
	}
}

func TestIsMember(t *testing.T) {
	l := FromSlice(ids32(2, 4, 6))
	if !l.IsMember(ids.ID(4)) || l.IsMember(ids.ID(5)) {
		t.Fatal("IsMember disagreement on Regular list")
	}
	all := NewAllIDs(ids.ID(100))
	if !all.IsMember(ids.ID(12345)) {
		t.Fatal("AllIDs.IsMember must always be true")
	}
}

func TestFirstIDNextIDIterateInOrder(t *testing.T) {
	l := FromSlice(ids32(2, 4, 6))
	var got []ids.ID
	for id := l.FirstID(); id != ids.NOID; id = l.NextID(id) {
		got = append(got, id)
	}
	want := ids32(2, 4, 6)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestFirstIDNextIDOverAllIDs(t *testing.T) {
	l := NewAllIDs(ids.ID(3))
	var got []ids.ID
	for id := l.FirstID(); id != ids.NOID; id = l.NextID(id) {
		got = append(got, id)
	}
	want := ids32(1, 2, 3)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestEmptyListFirstIDIsNOID(t *testing.T) {
	l := New(0)
	if id := l.FirstID(); id != ids.NOID {
		t.Fatalf("got %d, want NOID", id)
	}
}

func TestUnionOfRegularLists(t *testing.T) {
	a := FromSlice(ids32(1, 3, 5))
	b := FromSlice(ids32(2, 3, 4))
	assertIDs(t, Union(a, b), ids32(1, 2, 3, 4, 5))
}

func TestUnionAllIDsDominates(t *testing.T) {
	a := FromSlice(ids32(1, 2))
	b := NewAllIDs(ids.ID(10))
	u := Union(a, b)
	if !u.IsAllIDs() {
		t.Fatal("union with AllIDs must be AllIDs")
	}
}

func TestIntersectionOfRegularLists(t *testing.T) {
	a := FromSlice(ids32(1, 2, 3, 4))
	b := FromSlice(ids32(2, 4, 6))
	assertIDs(t, Intersection(a, b), ids32(2, 4))
}

func TestIntersectionAllIDsIsIdentity(t *testing.T) {
	a := FromSlice(ids32(1, 2, 3))
	all := NewAllIDs(ids.ID(10))
	assertIDs(t, Intersection(a, all), ids32(1, 2, 3))
	assertIDs(t, Intersection(all, a), ids32(1, 2, 3))
}

func TestNotInRemovesMembersOfB(t *testing.T) {
	a := FromSlice(ids32(1, 2, 3, 4))
	b := FromSlice(ids32(2, 4))
	assertIDs(t, NotIn(a, b), ids32(1, 3))
}

func TestNotInAllIDsReturnsA(t *testing.T) {
	a := FromSlice(ids32(1, 2, 3))
	all := NewAllIDs(ids.ID(10))
	got := NotIn(a, all)
	assertIDs(t, got, ids32(1, 2, 3))
}

func TestNotInAllIDsFirstOperandComplements(t *testing.T) {
	all := NewAllIDs(ids.ID(5))
	b := FromSlice(ids32(2, 4))
	assertIDs(t, NotIn(all, b), ids32(1, 3, 5))
}

func TestCloneIsIndependent(t *testing.T) {
	a := FromSlice(ids32(1, 2, 3))
	c := a.Clone()
	c.Insert(ids.ID(99))
	if a.IsMember(ids.ID(99)) {
		t.Fatal("mutating the clone must not affect the original")
	}
}

func TestCloneAllIDsPreservesCount(t *testing.T) {
	a := NewAllIDs(ids.ID(42))
	c := a.Clone()
	if !c.IsAllIDs() || c.Count != ids.ID(42) {
		t.Fatalf("clone of AllIDs lost its Count: %+v", c)
	}
}

func TestLengthReportsMaxForAllIDs(t *testing.T) {
	a := NewAllIDs(ids.ID(5))
	if a.Length() != MaxLength {
		t.Fatalf("got %d, want MaxLength", a.Length())
	}
	r := FromSlice(ids32(1, 2, 3))
	if r.Length() != 3 {
		t.Fatalf("got %d, want 3", r.Length())
	}
}

func TestAppendFastPathRejectsDuplicateTail(t *testing.T) {
	l := New(0)
	l.Append(ids.ID(1))
	l.Append(ids.ID(2))
	if code := l.Append(ids.ID(2)); code != 1 {
		t.Fatalf("got %d, want 1 for duplicate tail append", code)
	}
	if code := l.Append(ids.ID(3)); code != 0 {
		t.Fatalf("got %d, want 0 for a genuine append", code)
	}
	assertIDs(t, l, ids32(1, 2, 3))
}
