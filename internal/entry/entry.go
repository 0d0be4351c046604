// Package entry defines the directory entry model: attribute-typed value
// sets addressed by a stable 32-bit ID, plus the bookkeeping attributes
// (parentid, entrydn, numsubordinates, hassubordinates) the storage core
// maintains on every write.
package entry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dirserv/ldbm/internal/ids"
)

// Value is a single attribute value (a "berval" in the original wire
// model — an opaque octet string the core never interprets beyond
// byte-for-byte comparison and the kind-specific values-to-keys routines
// in package index).
type Value []byte

// Entry is a directory record: a set of (attribute-type, multivalued
// values) plus the core's bookkeeping fields.
type Entry struct {
	ID       ids.ID
	DN       string // normalized distinguished name
	UniqueID string

	// Attrs maps a lower-cased attribute type to its value set. Order
	// within a value set is insertion order; it has no semantic meaning.
	Attrs map[string][]Value

	ParentID        ids.ID
	NumSubordinates int
	HasSubordinates bool

	Tombstone bool // logical-delete marker; see Non-goals for replication semantics
	IsRUV     bool // special replication-state entry, indexed specially
}

// New creates an empty entry for dn. Attrs is initialized so callers can
// set values immediately.
func New(dn string) *Entry {
	return &Entry{
		DN:    NormalizeDN(dn),
		Attrs: make(map[string][]Value),
	}
}

// Clone returns a deep copy, used by the entry cache's tentative-add /
// cache_replace protocol and by the mutation ops' "restore original
// inputs on deadlock retry" step.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	out := &Entry{
		ID:              e.ID,
		DN:              e.DN,
		UniqueID:        e.UniqueID,
		Attrs:           make(map[string][]Value, len(e.Attrs)),
		ParentID:        e.ParentID,
		NumSubordinates: e.NumSubordinates,
		HasSubordinates: e.HasSubordinates,
		Tombstone:       e.Tombstone,
		IsRUV:           e.IsRUV,
	}
	for k, vs := range e.Attrs {
		cp := make([]Value, len(vs))
		for i, v := range vs {
			b := make(Value, len(v))
			copy(b, v)
			cp[i] = b
		}
		out.Attrs[k] = cp
	}
	return out
}

// Get returns the values of the given attribute type, or nil.
func (e *Entry) Get(attrType string) []Value {
	return e.Attrs[strings.ToLower(attrType)]
}

// HasValue reports whether attrType carries val, comparing bytes exactly.
func (e *Entry) HasValue(attrType string, val Value) bool {
	for _, v := range e.Get(attrType) {
		if string(v) == string(val) {
			return true
		}
	}
	return false
}

// AddValues appends vals to attrType's value set, skipping duplicates.
func (e *Entry) AddValues(attrType string, vals ...Value) {
	key := strings.ToLower(attrType)
	for _, v := range vals {
		if !e.HasValue(key, v) {
			e.Attrs[key] = append(e.Attrs[key], v)
		}
	}
}

// DeleteValues removes vals from attrType's value set. If vals is empty,
// the whole attribute is removed. Returns true if the attribute has no
// values left after the delete (i.e. PRESENCE should be dropped too).
func (e *Entry) DeleteValues(attrType string, vals ...Value) (emptied bool) {
	key := strings.ToLower(attrType)
	if len(vals) == 0 {
		delete(e.Attrs, key)
		return true
	}
	existing := e.Attrs[key]
	kept := existing[:0:0]
	for _, v := range existing {
		drop := false
		for _, dv := range vals {
			if string(v) == string(dv) {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		delete(e.Attrs, key)
		return true
	}
	e.Attrs[key] = kept
	return false
}

// AttrTypes returns the entry's attribute types in sorted order, for
// deterministic iteration (index rebuilds, tests).
func (e *Entry) AttrTypes() []string {
	out := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Validate checks the structural invariants the core requires before a
// write: a non-empty DN, a non-empty unique ID once assigned, and
// internal consistency between Tombstone and the presence of the
// tombstone objectclass.
func (e *Entry) Validate() error {
	if e.DN == "" {
		return fmt.Errorf("entry: dn is required")
	}
	if e.Tombstone {
		if !e.hasObjectClass("nstombstone") {
			return fmt.Errorf("entry: tombstone entry missing objectclass=nstombstone")
		}
	}
	return nil
}

func (e *Entry) hasObjectClass(oc string) bool {
	for _, v := range e.Get("objectclass") {
		if strings.EqualFold(string(v), oc) {
			return true
		}
	}
	return false
}

// IsTombstone reports whether the entry is a logical-delete marker.
func (e *Entry) IsTombstone() bool { return e.Tombstone }

// TombstoneDN computes the DN a tombstoned entry is rewritten to:
// "uniqueid=<u>,<originalDN>", per section 3 of the specification.
func TombstoneDN(originalDN, uniqueID string) string {
	return fmt.Sprintf("uniqueid=%s,%s", uniqueID, originalDN)
}
