package entrycache_test

import (
	"errors"
	"testing"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/entrycache"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

func newEntry(id ids.ID, dn, uuid string) *entry.Entry {
	e := entry.New(dn)
	e.ID = id
	e.UniqueID = uuid
	return e
}

func TestGetByIDMissIsNotFound(t *testing.T) {
	c := entrycache.New(0)
	if _, err := c.GetByID(ids.ID(1)); !errors.Is(err, ldbmerr.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestTentativeAddVisibleOnlyAfterCommit(t *testing.T) {
	c := entrycache.New(0)
	e := newEntry(1, "cn=alice,dc=example,dc=com", "uuid-1")

	tok, err := c.TentativeAdd(e)
	if err != nil {
		t.Fatalf("TentativeAdd: %v", err)
	}
	if _, err := c.GetByID(e.ID); !errors.Is(err, ldbmerr.ErrNotFound) {
		t.Fatalf("tentative entry should not be visible yet, got %v", err)
	}

	tok.CommitTentative()

	h, err := c.GetByID(e.ID)
	if err != nil {
		t.Fatalf("GetByID after commit: %v", err)
	}
	if h.Entry().DN != e.DN {
		t.Fatalf("got %q, want %q", h.Entry().DN, e.DN)
	}
	h.Release()

	h, err = c.GetByDN(e.DN)
	if err != nil {
		t.Fatalf("GetByDN after commit: %v", err)
	}
	h.Release()

	h, err = c.GetByUUID(e.UniqueID)
	if err != nil {
		t.Fatalf("GetByUUID after commit: %v", err)
	}
	h.Release()
}

func TestTentativeAddRejectsDuplicateDN(t *testing.T) {
	c := entrycache.New(0)
	e1 := newEntry(1, "cn=alice,dc=example,dc=com", "uuid-1")
	e2 := newEntry(2, "cn=alice,dc=example,dc=com", "uuid-2")

	tok1, err := c.TentativeAdd(e1)
	if err != nil {
		t.Fatalf("TentativeAdd e1: %v", err)
	}
	defer tok1.AbortTentative()

	if _, err := c.TentativeAdd(e2); !errors.Is(err, ldbmerr.ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
}

func TestAbortTentativeRemovesReservation(t *testing.T) {
	c := entrycache.New(0)
	e := newEntry(1, "cn=alice,dc=example,dc=com", "uuid-1")

	tok, err := c.TentativeAdd(e)
	if err != nil {
		t.Fatalf("TentativeAdd: %v", err)
	}
	tok.AbortTentative()

	if _, err := c.GetByID(e.ID); !errors.Is(err, ldbmerr.ErrNotFound) {
		t.Fatal("aborted reservation should not be visible")
	}

	// the DN is free again for a new tentative add
	e2 := newEntry(2, "cn=alice,dc=example,dc=com", "uuid-2")
	if _, err := c.TentativeAdd(e2); err != nil {
		t.Fatalf("TentativeAdd after abort: %v", err)
	}
}

func TestReplaceSwapsAcrossAllMaps(t *testing.T) {
	c := entrycache.New(0)
	old := newEntry(1, "cn=alice,dc=example,dc=com", "uuid-1")
	c.Replace(nil, old)

	next := newEntry(1, "cn=alicia,dc=example,dc=com", "uuid-1b")
	c.Replace(old, next)

	if _, err := c.GetByDN(old.DN); !errors.Is(err, ldbmerr.ErrNotFound) {
		t.Fatal("old DN should no longer resolve")
	}
	h, err := c.GetByDN(next.DN)
	if err != nil {
		t.Fatalf("GetByDN(next): %v", err)
	}
	h.Release()

	h, err = c.GetByUUID(next.UniqueID)
	if err != nil {
		t.Fatalf("GetByUUID(next): %v", err)
	}
	h.Release()
}

func TestRemoveDropsEntryRegardlessOfRefcount(t *testing.T) {
	c := entrycache.New(0)
	e := newEntry(1, "cn=alice,dc=example,dc=com", "uuid-1")
	c.Replace(nil, e)

	h, err := c.GetByID(e.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	// intentionally don't Release h before Remove: callers of Remove are
	// documented to have already waited out holders at a higher layer,
	// but Remove itself does not check refcount.
	c.Remove(e)
	h.Release()

	if _, err := c.GetByID(e.ID); !errors.Is(err, ldbmerr.ErrNotFound) {
		t.Fatal("removed entry should not be found")
	}
}

func TestEvictionSkipsPinnedSlots(t *testing.T) {
	c := entrycache.New(2)
	e1 := newEntry(1, "cn=one,dc=example,dc=com", "uuid-1")
	e2 := newEntry(2, "cn=two,dc=example,dc=com", "uuid-2")
	e3 := newEntry(3, "cn=three,dc=example,dc=com", "uuid-3")
	e4 := newEntry(4, "cn=four,dc=example,dc=com", "uuid-4")

	c.Replace(nil, e1)
	c.Replace(nil, e2)

	// pin e1; this also touches it to the front of the LRU order.
	h1, err := c.GetByID(e1.ID)
	if err != nil {
		t.Fatalf("GetByID(e1): %v", err)
	}
	defer h1.Release()

	// e2 is now the true LRU entry and gets evicted normally.
	c.Replace(nil, e3)
	if _, err := c.GetByID(e2.ID); !errors.Is(err, ldbmerr.ErrNotFound) {
		t.Fatal("unpinned entry e2 should have been evicted")
	}

	// e1 (still pinned, never re-touched) drifts back to the LRU end as
	// e3/e4 are added. Eviction must skip over it and take e3 instead.
	c.Replace(nil, e4)

	if _, err := c.GetByID(e1.ID); err != nil {
		t.Fatal("pinned entry e1 should survive even as the nominal LRU victim")
	}
	if _, err := c.GetByID(e3.ID); !errors.Is(err, ldbmerr.ErrNotFound) {
		t.Fatal("e3 should have been evicted in e1's place since e1 is pinned")
	}
	if h, err := c.GetByID(e4.ID); err != nil {
		t.Fatal("e4 should be present")
	} else {
		h.Release()
	}
}

func TestUnboundedCacheNeverEvicts(t *testing.T) {
	c := entrycache.New(0)
	for i := ids.ID(1); i <= 50; i++ {
		c.Replace(nil, newEntry(i, "cn=x"+string(rune('a'+i%26))+",dc=example,dc=com", ""))
	}
	if c.Len() != 50 {
		t.Fatalf("got len %d, want 50", c.Len())
	}
}
