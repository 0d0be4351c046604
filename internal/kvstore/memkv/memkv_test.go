package memkv

import (
	"context"
	"testing"

	"github.com/dirserv/ldbm/internal/kvstore"
)

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	tbl, err := s.Table(ctx, "id2entry")
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if err := tbl.Put(nil, []byte("k1"), []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := tbl.Get(nil, []byte("k1"))
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q, want v1", got)
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New()
	tbl, _ := s.Table(context.Background(), "t")
	_, err := tbl.Get(nil, []byte("nope"))
	if !kvstore.IsNotFound(err) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPutReplacesNonDupValue(t *testing.T) {
	s := New()
	tbl, _ := s.Table(context.Background(), "t")
	tbl.Put(nil, []byte("k"), []byte("first"))
	tbl.Put(nil, []byte("k"), []byte("second"))
	got, _ := tbl.Get(nil, []byte("k"))
	if string(got) != "second" {
		t.Fatalf("got %q, want second", got)
	}
}

func TestPutDupKeepsSortedSet(t *testing.T) {
	s := New()
	tbl, _ := s.Table(context.Background(), "t")
	tbl.PutDup(nil, []byte("k"), []byte("c"))
	tbl.PutDup(nil, []byte("k"), []byte("a"))
	tbl.PutDup(nil, []byte("k"), []byte("b"))
	tbl.PutDup(nil, []byte("k"), []byte("b")) // duplicate insert is a no-op

	vs, err := tbl.GetAllDup(nil, []byte("k"))
	if err != nil {
		t.Fatalf("GetAllDup: %v", err)
	}
	if len(vs) != 3 {
		t.Fatalf("got %d dups, want 3: %v", len(vs), vs)
	}
	want := []string{"a", "b", "c"}
	for i, w := range want {
		if string(vs[i]) != w {
			t.Fatalf("dup[%d] = %q, want %q", i, vs[i], w)
		}
	}
}

func TestDeleteDupRemovesOnlyOneValue(t *testing.T) {
	s := New()
	tbl, _ := s.Table(context.Background(), "t")
	tbl.PutDup(nil, []byte("k"), []byte("a"))
	tbl.PutDup(nil, []byte("k"), []byte("b"))
	tbl.DeleteDup(nil, []byte("k"), []byte("a"))

	vs, _ := tbl.GetAllDup(nil, []byte("k"))
	if len(vs) != 1 || string(vs[0]) != "b" {
		t.Fatalf("got %v, want [b]", vs)
	}
}

func TestDeleteDupLastValueRemovesKey(t *testing.T) {
	s := New()
	tbl, _ := s.Table(context.Background(), "t")
	tbl.PutDup(nil, []byte("k"), []byte("a"))
	tbl.DeleteDup(nil, []byte("k"), []byte("a"))
	if _, err := tbl.Get(nil, []byte("k")); !kvstore.IsNotFound(err) {
		t.Fatalf("key should be gone entirely, got err=%v", err)
	}
}

func TestCursorWalksKeysInOrder(t *testing.T) {
	s := New()
	tbl, _ := s.Table(context.Background(), "t")
	for _, k := range []string{"c", "a", "b"} {
		tbl.Put(nil, []byte(k), []byte(k))
	}
	cur, err := tbl.Cursor(nil)
	if err != nil {
		t.Fatalf("Cursor: %v", err)
	}
	defer cur.Close()

	var got []string
	k, _, err := cur.Seek(nil, kvstore.OpFirst)
	for err == nil {
		got = append(got, string(k))
		k, _, err = cur.Seek(nil, kvstore.OpNext)
	}
	if !kvstore.IsNotFound(err) {
		t.Fatalf("unexpected cursor error: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestCursorSetRangePositionsAtOrAfterKey(t *testing.T) {
	s := New()
	tbl, _ := s.Table(context.Background(), "t")
	for _, k := range []string{"a", "c", "e"} {
		tbl.Put(nil, []byte(k), []byte(k))
	}
	cur, _ := tbl.Cursor(nil)
	defer cur.Close()
	k, _, err := cur.Seek([]byte("b"), kvstore.OpSetRange)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if string(k) != "c" {
		t.Fatalf("got %q, want c", k)
	}
}

func TestBeginChildTxnIndependentCommit(t *testing.T) {
	s := New()
	parent, err := s.Begin(context.Background(), nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	child, err := s.Begin(context.Background(), parent)
	if err != nil {
		t.Fatalf("Begin child: %v", err)
	}
	if err := child.Abort(); err != nil {
		t.Fatalf("child Abort: %v", err)
	}
	if err := parent.Commit(); err != nil {
		t.Fatalf("parent Commit should be unaffected by child abort: %v", err)
	}
}
