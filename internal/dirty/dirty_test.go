package dirty

import (
	"context"
	"testing"

	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore/memkv"
)

func TestMarkAndDirtyIDs(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	tr, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tx, err := store.Begin(ctx, nil)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, id := range []ids.ID{1, 2, 3} {
		if err := tr.Mark(ctx, tx, id); err != nil {
			t.Fatalf("Mark(%d): %v", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.Begin(ctx, nil)
	defer readTx.Abort()

	got, next, err := tr.DirtyIDs(ctx, readTx, 0)
	if err != nil {
		t.Fatalf("DirtyIDs: %v", err)
	}
	want := []ids.ID{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("DirtyIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DirtyIDs[%d] = %d, want %d", i, got[i], want[i])
		}
	}
	if next != 3 {
		t.Errorf("nextSince = %d, want 3", next)
	}
}

func TestMarkIsIdempotentAndMovesToTail(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	tr, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tx, _ := store.Begin(ctx, nil)
	_ = tr.Mark(ctx, tx, 1)
	_ = tr.Mark(ctx, tx, 2)
	_ = tr.Mark(ctx, tx, 1) // re-mark: should move 1 to the tail, not duplicate it
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.Begin(ctx, nil)
	defer readTx.Abort()

	got, _, err := tr.DirtyIDs(ctx, readTx, 0)
	if err != nil {
		t.Fatalf("DirtyIDs: %v", err)
	}
	want := []ids.ID{2, 1}
	if len(got) != len(want) {
		t.Fatalf("DirtyIDs = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DirtyIDs[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestDirtyIDsSinceResumesAfterLastSeen(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	tr, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tx, _ := store.Begin(ctx, nil)
	_ = tr.Mark(ctx, tx, 1)
	_ = tr.Mark(ctx, tx, 2)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.Begin(ctx, nil)
	_, firstNext, err := tr.DirtyIDs(ctx, readTx, 0)
	if err != nil {
		t.Fatalf("DirtyIDs: %v", err)
	}
	_ = readTx.Abort()

	tx2, _ := store.Begin(ctx, nil)
	_ = tr.Mark(ctx, tx2, 3)
	if err := tx2.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx2, _ := store.Begin(ctx, nil)
	defer readTx2.Abort()
	got, _, err := tr.DirtyIDs(ctx, readTx2, firstNext)
	if err != nil {
		t.Fatalf("DirtyIDs: %v", err)
	}
	if len(got) != 1 || got[0] != 3 {
		t.Errorf("DirtyIDs(since=%d) = %v, want [3]", firstNext, got)
	}
}

func TestClearRemovesFromDirtySet(t *testing.T) {
	ctx := context.Background()
	store := memkv.New()
	tr, err := Open(ctx, store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	tx, _ := store.Begin(ctx, nil)
	_ = tr.Mark(ctx, tx, 1)
	_ = tr.Mark(ctx, tx, 2)
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	clearTx, _ := store.Begin(ctx, nil)
	if err := tr.Clear(ctx, clearTx, 1); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := clearTx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	readTx, _ := store.Begin(ctx, nil)
	defer readTx.Abort()
	got, _, err := tr.DirtyIDs(ctx, readTx, 0)
	if err != nil {
		t.Fatalf("DirtyIDs: %v", err)
	}
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("DirtyIDs after Clear = %v, want [2]", got)
	}

	countTx, _ := store.Begin(ctx, nil)
	defer countTx.Abort()
	n, err := tr.Count(ctx, countTx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}
