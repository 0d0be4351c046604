package idl

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"strconv"

	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// OldCodec is the "old" IDL encoding: a key holds either a single regular
// block, an indirect header pointing at continuation blocks, or the
// AllIDs sentinel. Continuation keys are derived as "#" + parent key +
// decimal(first ID), matching the specification's on-disk layout.
type OldCodec struct {
	// MaxIDs is idl_maxids: the member cap of one block before it must
	// split into continuations.
	MaxIDs int
	// MaxIndirect is idl_maxindirect: the continuation-count cap before
	// the whole key is promoted to AllIDs.
	MaxIndirect int
}

const (
	allIDsBlockSentinel uint32 = 0xFFFFFFFF
	indBlockSentinel    uint32 = 0xFFFFFFFE
)

type blockKind int

const (
	blockRegular blockKind = iota
	blockAllIDs
	blockIndirect
)

type block struct {
	kind blockKind
	ids  []ids.ID // members (regular) or continuation first-IDs (indirect, NOID-terminator stripped)
}

func encodeBlock(b block, maxIDs int) []byte {
	nmax := uint32(maxIDs)
	nids := uint32(len(b.ids))
	list := b.ids
	switch b.kind {
	case blockAllIDs:
		nmax = allIDsBlockSentinel
		list = nil
		nids = 0
	case blockIndirect:
		nids = indBlockSentinel
		list = append(append([]ids.ID(nil), b.ids...), ids.NOID)
	}
	out := make([]byte, 8+4*len(list))
	binary.BigEndian.PutUint32(out[0:4], nmax)
	binary.BigEndian.PutUint32(out[4:8], nids)
	for i, id := range list {
		binary.BigEndian.PutUint32(out[8+4*i:12+4*i], uint32(id))
	}
	return out
}

func decodeBlock(raw []byte) (block, error) {
	if len(raw) < 8 {
		return block{}, fmt.Errorf("idl: corrupt block (len=%d)", len(raw))
	}
	nmax := binary.BigEndian.Uint32(raw[0:4])
	nids := binary.BigEndian.Uint32(raw[4:8])
	if nmax == allIDsBlockSentinel {
		return block{kind: blockAllIDs}, nil
	}
	n := (len(raw) - 8) / 4
	list := make([]ids.ID, n)
	for i := 0; i < n; i++ {
		list[i] = ids.ID(binary.BigEndian.Uint32(raw[8+4*i : 12+4*i]))
	}
	if nids == indBlockSentinel {
		// strip the NOID terminator the encoding appends.
		if n > 0 && list[n-1] == ids.NOID {
			list = list[:n-1]
		}
		return block{kind: blockIndirect, ids: list}, nil
	}
	return block{kind: blockRegular, ids: list[:nids]}, nil
}

func contKey(parent []byte, firstID ids.ID) []byte {
	k := make([]byte, 0, len(parent)+1+10)
	k = append(k, '#')
	k = append(k, parent...)
	k = append(k, strconv.FormatUint(uint64(firstID), 10)...)
	return k
}

func (c OldCodec) readBlock(txn kvstore.Txn, table kvstore.Table, key []byte) (block, bool, error) {
	raw, err := table.Get(txn, key)
	if kvstore.IsNotFound(err) {
		return block{}, false, nil
	}
	if err != nil {
		return block{}, false, err
	}
	b, err := decodeBlock(raw)
	return b, true, err
}

func (c OldCodec) Fetch(_ context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, highestID ids.ID) (*IDL, error) {
	b, present, err := c.readBlock(txn, table, key)
	if err != nil {
		return nil, err
	}
	if !present {
		return New(0), nil
	}
	switch b.kind {
	case blockAllIDs:
		return NewAllIDs(highestID), nil
	case blockRegular:
		return FromSlice(append([]ids.ID(nil), b.ids...)), nil
	case blockIndirect:
		var all []ids.ID
		for _, first := range b.ids {
			cb, ok, err := c.readBlock(txn, table, contKey(key, first))
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			all = append(all, cb.ids...)
		}
		return FromSlice(all), nil
	}
	return New(0), nil
}

func insertSorted(list []ids.ID, id ids.ID) ([]ids.ID, bool) {
	idx, found := search(list, id)
	if found {
		return list, false
	}
	out := make([]ids.ID, len(list)+1)
	copy(out, list[:idx])
	out[idx] = id
	copy(out[idx+1:], list[idx:])
	return out, true
}

func (c OldCodec) Insert(ctx context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, id ids.ID, highestID ids.ID) error {
	b, present, err := c.readBlock(txn, table, key)
	if err != nil {
		return err
	}
	if !present {
		return table.Put(txn, key, encodeBlock(block{kind: blockRegular, ids: []ids.ID{id}}, c.MaxIDs))
	}
	switch b.kind {
	case blockAllIDs:
		return nil
	case blockRegular:
		return c.insertRegular(txn, table, key, b, id)
	case blockIndirect:
		return c.insertIndirect(txn, table, key, b, id, highestID)
	}
	return nil
}

func (c OldCodec) insertRegular(txn kvstore.Txn, table kvstore.Table, key []byte, b block, id ids.ID) error {
	newList, changed := insertSorted(b.ids, id)
	if !changed {
		return nil
	}
	if len(newList) <= c.MaxIDs {
		return table.Put(txn, key, encodeBlock(block{kind: blockRegular, ids: newList}, c.MaxIDs))
	}
	// overflow: split into two continuations, replace this key with an
	// indirect header.
	mid := len(newList) / 2
	left, right := newList[:mid], newList[mid:]
	if err := table.Put(txn, contKey(key, left[0]), encodeBlock(block{kind: blockRegular, ids: left}, c.MaxIDs)); err != nil {
		return err
	}
	if err := table.Put(txn, contKey(key, right[0]), encodeBlock(block{kind: blockRegular, ids: right}, c.MaxIDs)); err != nil {
		return err
	}
	return table.Put(txn, key, encodeBlock(block{kind: blockIndirect, ids: []ids.ID{left[0], right[0]}}, c.MaxIDs))
}

// locateContinuation returns the index of the continuation whose range
// covers id: the rightmost first-ID <= id, or 0 if id precedes every
// first-ID (id becomes the new smallest member overall).
func locateContinuation(firsts []ids.ID, id ids.ID) int {
	idx := sort.Search(len(firsts), func(i int) bool { return firsts[i] > id })
	if idx == 0 {
		return 0
	}
	return idx - 1
}

func (c OldCodec) insertIndirect(txn kvstore.Txn, table kvstore.Table, key []byte, b block, id ids.ID, highestID ids.ID) error {
	idx := locateContinuation(b.ids, id)
	oldFirst := b.ids[idx]
	oldKey := contKey(key, oldFirst)
	cb, ok, err := c.readBlock(txn, table, oldKey)
	if err != nil {
		return err
	}
	if !ok {
		cb = block{kind: blockRegular}
	}
	newList, changed := insertSorted(cb.ids, id)
	if !changed {
		return nil
	}
	if len(newList) <= c.MaxIDs {
		newFirst := newList[0]
		if newFirst != oldFirst {
			if err := table.Delete(txn, oldKey); err != nil {
				return err
			}
			if err := table.Put(txn, contKey(key, newFirst), encodeBlock(block{kind: blockRegular, ids: newList}, c.MaxIDs)); err != nil {
				return err
			}
			headerFirsts := append([]ids.ID(nil), b.ids...)
			headerFirsts[idx] = newFirst
			return table.Put(txn, key, encodeBlock(block{kind: blockIndirect, ids: headerFirsts}, c.MaxIDs))
		}
		return table.Put(txn, oldKey, encodeBlock(block{kind: blockRegular, ids: newList}, c.MaxIDs))
	}

	// This continuation overflowed: split it into two.
	mid := len(newList) / 2
	left, right := newList[:mid], newList[mid:]
	if left[0] != oldFirst {
		if err := table.Delete(txn, oldKey); err != nil {
			return err
		}
	}
	if err := table.Put(txn, contKey(key, left[0]), encodeBlock(block{kind: blockRegular, ids: left}, c.MaxIDs)); err != nil {
		return err
	}
	if err := table.Put(txn, contKey(key, right[0]), encodeBlock(block{kind: blockRegular, ids: right}, c.MaxIDs)); err != nil {
		return err
	}
	headerFirsts := make([]ids.ID, 0, len(b.ids)+1)
	headerFirsts = append(headerFirsts, b.ids[:idx]...)
	headerFirsts = append(headerFirsts, left[0], right[0])
	headerFirsts = append(headerFirsts, b.ids[idx+1:]...)

	if c.MaxIndirect > 0 && len(headerFirsts) > c.MaxIndirect {
		// Promote: delete every continuation and overwrite the parent
		// with AllIDs.
		for _, first := range headerFirsts {
			if err := table.Delete(txn, contKey(key, first)); err != nil {
				return err
			}
		}
		return table.Put(txn, key, encodeBlock(block{kind: blockAllIDs}, c.MaxIDs))
	}
	return table.Put(txn, key, encodeBlock(block{kind: blockIndirect, ids: headerFirsts}, c.MaxIDs))
}

func (c OldCodec) Delete(_ context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, id ids.ID) error {
	b, present, err := c.readBlock(txn, table, key)
	if err != nil {
		return err
	}
	if !present {
		return nil
	}
	switch b.kind {
	case blockAllIDs:
		return nil // never demotes
	case blockRegular:
		idx, found := search(b.ids, id)
		if !found {
			return nil
		}
		newList := append(append([]ids.ID(nil), b.ids[:idx]...), b.ids[idx+1:]...)
		if len(newList) == 0 {
			return table.Delete(txn, key)
		}
		return table.Put(txn, key, encodeBlock(block{kind: blockRegular, ids: newList}, c.MaxIDs))
	case blockIndirect:
		ci := locateContinuation(b.ids, id)
		ck := contKey(key, b.ids[ci])
		cb, ok, err := c.readBlock(txn, table, ck)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		idx, found := search(cb.ids, id)
		if !found {
			return nil
		}
		newList := append(append([]ids.ID(nil), cb.ids[:idx]...), cb.ids[idx+1:]...)
		if len(newList) == 0 {
			// Emptying a continuation deletes it and removes its header
			// entry; an emptied header is itself deleted.
			if err := table.Delete(txn, ck); err != nil {
				return err
			}
			remaining := append(append([]ids.ID(nil), b.ids[:ci]...), b.ids[ci+1:]...)
			if len(remaining) == 0 {
				return table.Delete(txn, key)
			}
			return table.Put(txn, key, encodeBlock(block{kind: blockIndirect, ids: remaining}, c.MaxIDs))
		}
		if newList[0] != b.ids[ci] {
			if err := table.Delete(txn, ck); err != nil {
				return err
			}
			if err := table.Put(txn, contKey(key, newList[0]), encodeBlock(block{kind: blockRegular, ids: newList}, c.MaxIDs)); err != nil {
				return err
			}
			headerFirsts := append([]ids.ID(nil), b.ids...)
			headerFirsts[ci] = newList[0]
			return table.Put(txn, key, encodeBlock(block{kind: blockIndirect, ids: headerFirsts}, c.MaxIDs))
		}
		return table.Put(txn, ck, encodeBlock(block{kind: blockRegular, ids: newList}, c.MaxIDs))
	}
	return nil
}

// Store replaces whatever is under key with l wholesale, used by bulk
// index rebuilds. It clears any prior encoding (regular, indirect plus
// its continuations, or AllIDs) first, then re-inserts member by member;
// rebuilds run offline against an OFFLINE attrinfo, so the extra I/O of
// incremental inserts over a single bulk-chunked write is an acceptable
// trade for reusing the same split/promote logic as the write path.
func (c OldCodec) Store(ctx context.Context, txn kvstore.Txn, table kvstore.Table, key []byte, l *IDL) error {
	b, present, err := c.readBlock(txn, table, key)
	if err != nil {
		return err
	}
	if present && b.kind == blockIndirect {
		for _, first := range b.ids {
			if err := table.Delete(txn, contKey(key, first)); err != nil {
				return err
			}
		}
	}
	if present {
		if err := table.Delete(txn, key); err != nil {
			return err
		}
	}
	if l.IsAllIDs() {
		return table.Put(txn, key, encodeBlock(block{kind: blockAllIDs}, c.MaxIDs))
	}
	for _, id := range l.IDs {
		if err := c.Insert(ctx, txn, table, key, id, countOf(l)); err != nil {
			return err
		}
	}
	return nil
}
