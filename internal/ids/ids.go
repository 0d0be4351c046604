// Package ids implements the entry identifier model: the 32-bit ID space,
// the NOID sentinel, and the process-wide next-ID allocator.
package ids

import (
	"fmt"
	"sync"
)

// ID is the internal identifier of an entry. It is assigned once, at add
// time, and never reused.
type ID uint32

// NOID is the null ID. No live entry ever carries it.
const NOID ID = 0

// MAXID bounds the ID space: Next fails once the next ID reaches it, so
// MAXID itself is never handed out, and that failure is fatal for
// further adds. Allocator.Warn reports the approach well before it.
const MAXID ID = 1<<32 - 1

// warnMargin is how far below MAXID the allocator starts reporting Warn().
const warnMargin = 1 << 20

// Allocator hands out monotonically increasing IDs. It is the single
// mutator of the backend's next-ID state; both Next and Return take the
// same lock, matching the specification's "dedicated mutex" requirement.
type Allocator struct {
	mu   sync.Mutex
	next ID
}

// NewAllocator creates an Allocator that will hand out lastUsed+1 next.
// Callers seed lastUsed from the highest key present in id2entry at
// startup (ldbm's Open reads it with seedHighestID), so restart is
// idempotent.
func NewAllocator(lastUsed ID) *Allocator {
	return &Allocator{next: lastUsed + 1}
}

// Next allocates and returns a fresh ID. It returns an error once the
// space is exhausted at MAXID; callers must treat that as fatal for
// further adds, per the specification.
func (a *Allocator) Next() (ID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next == NOID {
		a.next = 1
	}
	if a.next >= MAXID {
		return NOID, fmt.Errorf("ids: MAXID reached, no further IDs available")
	}
	id := a.next
	a.next++
	return id, nil
}

// Peek returns the ID that the next call to Next would return, without
// consuming it. Used only for diagnostics/tests.
func (a *Allocator) Peek() ID {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}

// Return is advisory: it rolls the allocator back to id if, and only if,
// no higher ID has been handed out since. If a concurrent Next() already
// consumed a higher value, the return is silently ignored — the
// specification requires this to avoid ever handing out the same ID
// twice.
func (a *Allocator) Return(id ID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next == id+1 {
		a.next = id
	}
}

// Warn reports whether the allocator is within warnMargin of MAXID, so an
// operational front end can raise a low-disk-style warning before adds
// start failing outright.
func (a *Allocator) Warn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return MAXID-a.next < warnMargin
}
