package index

import "bytes"

// SubstringGrams exposes substringKeys, the n-gram decomposition used
// to build substring index keys. internal/filter does not call it; it
// derives search grams with its own helpers, padded the same way.
func SubstringGrams(value []byte, n int) [][]byte { return substringKeys(value, n) }

// substringKeys decomposes value into overlapping n-grams padded with
// n-1 begin and n-1 end sentinels, per spec.md §4.2.3. "abc" with n=3
// becomes {^^a, ^ab, abc, bc$, c$$}, and "a" becomes {^^a, ^a$, a$$} —
// enough to answer a contains-substring query by intersecting the
// n-gram keys any search value decomposes into.
func substringKeys(value []byte, n int) [][]byte {
	padded := make([]byte, 0, len(value)+2*(n-1))
	for i := 0; i < n-1; i++ {
		padded = append(padded, '^')
	}
	padded = append(padded, value...)
	for i := 0; i < n-1; i++ {
		padded = append(padded, '$')
	}
	if len(padded) < n {
		return [][]byte{padded}
	}
	seen := make(map[string]bool)
	var out [][]byte
	for i := 0; i+n <= len(padded); i++ {
		gram := padded[i : i+n]
		if seen[string(gram)] {
			continue
		}
		seen[string(gram)] = true
		out = append(out, append([]byte(nil), gram...))
	}
	return out
}

// BinTable groups the distinct n-grams added to it by hash bin,
// collapsing repeats. It holds only the gram strings: it records no
// member IDs and writes nothing to the index.
type BinTable struct {
	nbins int
	pend  map[int]map[string]struct{} // bin -> set of raw n-gram byte strings seen
}

// NewBinTable creates a table with nbins buckets. A larger nbins reduces
// hash collisions (and thus needless key unions) at the cost of more
// memory held during the bulk pass.
func NewBinTable(nbins int) *BinTable {
	if nbins <= 0 {
		nbins = 4096
	}
	return &BinTable{nbins: nbins, pend: make(map[int]map[string]struct{}, nbins)}
}

func (bt *BinTable) bin(gram []byte) int {
	var h uint32 = 2166136261
	for _, b := range gram {
		h ^= uint32(b)
		h *= 16777619
	}
	return int(h % uint32(bt.nbins))
}

// Add records that gram occurred (grams are deduplicated per bin; the
// caller does not need to pre-dedup across values).
func (bt *BinTable) Add(gram []byte) {
	b := bt.bin(gram)
	set, ok := bt.pend[b]
	if !ok {
		set = make(map[string]struct{})
		bt.pend[b] = set
	}
	set[string(gram)] = struct{}{}
}

// Grams returns every distinct n-gram recorded across all bins, grouped
// by bin so a caller can flush bin-at-a-time (each bin's keys are
// unrelated byte sequences that merely hashed together; flushing is just
// an I/O-batching boundary, not a correctness one).
func (bt *BinTable) Grams() map[int][][]byte {
	out := make(map[int][][]byte, len(bt.pend))
	for b, set := range bt.pend {
		grams := make([][]byte, 0, len(set))
		for g := range set {
			grams = append(grams, []byte(g))
		}
		out[b] = grams
	}
	return out
}

func dedupKeys(keys [][]byte) [][]byte {
	if len(keys) < 2 {
		return keys
	}
	out := keys[:0:0]
	for _, k := range keys {
		dup := false
		for _, seen := range out {
			if bytes.Equal(k, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, k)
		}
	}
	return out
}
