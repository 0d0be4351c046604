// Package entrycache is the in-memory entry cache: coordinated by-ID,
// by-DN, and by-UUID lookup over the same underlying entries, refcounted
// so that eviction never frees an entry some caller still holds a
// pointer to (spec.md §5's cache discipline).
//
// Grounded on the teacher's in-process caching layer conventions
// (coordinated maps guarded by one mutex, explicit refcounting rather
// than relying on the garbage collector to decide lifetime, because the
// specification requires synchronous eviction decisions tied to
// transaction commit/abort rather than GC pressure).
package entrycache

import (
	"container/list"
	"sync"

	"github.com/dirserv/ldbm/internal/entry"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// slot is one cached entry plus its bookkeeping. refcount tracks active
// holders; lru is this slot's position in the eviction list.
type slot struct {
	e        *entry.Entry
	refcount int
	tentative bool
	lru      *list.Element
}

// Cache coordinates by-ID, by-DN, and by-UUID maps over one set of
// slots, with an LRU eviction order that skips any slot with
// refcount > 0.
type Cache struct {
	mu         sync.Mutex
	maxEntries int
	byID       map[ids.ID]*slot
	byDN       map[string]*slot
	byUUID     map[string]*slot
	order      *list.List // front = most recently used
}

// New creates a cache that evicts down toward maxEntries live slots.
// maxEntries <= 0 means unbounded (no eviction), used by tests.
func New(maxEntries int) *Cache {
	return &Cache{
		maxEntries: maxEntries,
		byID:       make(map[ids.ID]*slot),
		byDN:       make(map[string]*slot),
		byUUID:     make(map[string]*slot),
		order:      list.New(),
	}
}

// Handle is a caller's hold on a cached entry. Callers must Release
// exactly once per successful Get/TentativeAdd/lookup to let eviction
// proceed.
type Handle struct {
	c *Cache
	s *slot
}

// Entry returns the held entry. The caller must not mutate it in place;
// mutators build a modified Clone and commit it via Replace.
func (h *Handle) Entry() *entry.Entry { return h.s.e }

// Release drops this handle's hold on the entry.
func (h *Handle) Release() {
	h.c.mu.Lock()
	defer h.c.mu.Unlock()
	h.s.refcount--
}

func (c *Cache) touch(s *slot) {
	if s.lru != nil {
		c.order.MoveToFront(s.lru)
	}
}

// GetByID returns a held handle on the entry with id, or ErrNotFound.
func (c *Cache) GetByID(id ids.ID) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byID[id]
	if !ok || s.tentative {
		return nil, ldbmerr.ErrNotFound
	}
	s.refcount++
	c.touch(s)
	return &Handle{c: c, s: s}, nil
}

// GetByDN returns a held handle on the entry at dn, or ErrNotFound.
func (c *Cache) GetByDN(dn string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byDN[dn]
	if !ok || s.tentative {
		return nil, ldbmerr.ErrNotFound
	}
	s.refcount++
	c.touch(s)
	return &Handle{c: c, s: s}, nil
}

// GetByUUID returns a held handle on the entry with the given unique ID,
// or ErrNotFound.
func (c *Cache) GetByUUID(uuid string) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.byUUID[uuid]
	if !ok || s.tentative {
		return nil, ldbmerr.ErrNotFound
	}
	s.refcount++
	c.touch(s)
	return &Handle{c: c, s: s}, nil
}

// TentativeAdd reserves e's DN/ID/unique-ID slots before the write that
// produced e has committed, per spec.md §5's "tentative adds reserve the
// DN/ID/unique-ID keys before commit" rule. It fails with
// ErrAlreadyExists if another entry already occupies the DN. The
// returned token must be resolved with CommitTentative or
// AbortTentative once the write's outcome is known.
func (c *Cache) TentativeAdd(e *entry.Entry) (*Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.byDN[e.DN]; ok {
		return nil, ldbmerr.ErrAlreadyExists
	}
	s := &slot{e: e, tentative: true}
	c.byID[e.ID] = s
	c.byDN[e.DN] = s
	if e.UniqueID != "" {
		c.byUUID[e.UniqueID] = s
	}
	return &Token{c: c, s: s}, nil
}

// Token is the pending outcome of a TentativeAdd.
type Token struct {
	c *Cache
	s *slot
}

// CommitTentative makes a tentatively-added entry visible to ordinary
// lookups and places it on the LRU list, then evicts if over capacity.
func (t *Token) CommitTentative() {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	t.s.tentative = false
	t.s.lru = t.c.order.PushFront(t.s)
	t.c.evictLocked()
}

// AbortTentative removes the reservation entirely, as if TentativeAdd
// had never been called — the write it was reserving for failed.
func (t *Token) AbortTentative() {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	delete(t.c.byID, t.s.e.ID)
	delete(t.c.byDN, t.s.e.DN)
	if t.s.e.UniqueID != "" {
		delete(t.c.byUUID, t.s.e.UniqueID)
	}
}

// Replace performs cache_replace(old, new): atomically swaps the old
// entry for the new one across all three maps, after a successful
// commit. If old is nil this is equivalent to inserting new directly
// (used by read-through fills from the store).
func (c *Cache) Replace(old, next *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old != nil {
		if s, ok := c.byID[old.ID]; ok {
			c.removeLocked(s)
		}
	}
	s := &slot{e: next}
	c.byID[next.ID] = s
	c.byDN[next.DN] = s
	if next.UniqueID != "" {
		c.byUUID[next.UniqueID] = s
	}
	s.lru = c.order.PushFront(s)
	c.evictLocked()
}

// Remove drops e from the cache entirely (used by delete/tombstone),
// regardless of refcount — callers are expected to have already waited
// out any holders via the per-entry lock discipline at a higher layer.
func (c *Cache) Remove(e *entry.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.byID[e.ID]; ok {
		c.removeLocked(s)
	}
}

func (c *Cache) removeLocked(s *slot) {
	delete(c.byID, s.e.ID)
	delete(c.byDN, s.e.DN)
	if s.e.UniqueID != "" {
		delete(c.byUUID, s.e.UniqueID)
	}
	if s.lru != nil {
		c.order.Remove(s.lru)
	}
}

// evictLocked drops least-recently-used slots with refcount == 0 until
// the cache is back at or under maxEntries. Slots with refcount > 0 are
// skipped and left in place, exactly as the specification requires.
func (c *Cache) evictLocked() {
	if c.maxEntries <= 0 {
		return
	}
	for c.order.Len() > c.maxEntries {
		victim := c.order.Back()
		freed := false
		for e := victim; e != nil; e = e.Prev() {
			s := e.Value.(*slot)
			if s.refcount > 0 {
				continue
			}
			c.order.Remove(e)
			delete(c.byID, s.e.ID)
			delete(c.byDN, s.e.DN)
			if s.e.UniqueID != "" {
				delete(c.byUUID, s.e.UniqueID)
			}
			freed = true
			break
		}
		if !freed {
			return // every remaining slot is pinned
		}
	}
}

// Len reports the number of live (non-tentative) slots, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
