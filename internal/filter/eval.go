package filter

import (
	"context"
	"fmt"

	"github.com/dirserv/ldbm/internal/idl"
	"github.com/dirserv/ldbm/internal/idlset"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// Context is the per-operation state the "don't bypass filtertest" flag
// attaches to (resolving spec.md §9's open question in favor of
// per-operation state over a backend-global flag: see DESIGN.md).
type Context struct {
	NeedsFilterTest bool
}

func (c *Context) mark(needs bool) {
	if needs {
		c.NeedsFilterTest = true
	}
}

// Evaluator resolves a filter.Node into a candidate IDL by invoking the
// index layer per leaf and combining results with idlset.IDListSet.
type Evaluator struct {
	Index *index.Indexer
	Reg   index.Registry
}

// Evaluate walks node, returning the candidate IDL. fctx accumulates the
// filter-test requirement across the whole tree.
func (ev *Evaluator) Evaluate(ctx context.Context, txn kvstore.Txn, node *Node, fctx *Context) (*idl.IDL, error) {
	switch node.Op {
	case OpEquality:
		return ev.leaf(ctx, txn, node.Attr, index.KindEquality, node.Value, fctx)
	case OpApproximate:
		return ev.leaf(ctx, txn, node.Attr, index.KindApproximate, node.Value, fctx)
	case OpPresence:
		return ev.leaf(ctx, txn, node.Attr, index.KindPresence, nil, fctx)
	case OpSubstring:
		return ev.substring(ctx, txn, node, fctx)
	case OpAnd:
		return ev.combine(ctx, txn, node.Children, fctx, true)
	case OpOr:
		return ev.combine(ctx, txn, node.Children, fctx, false)
	case OpNot:
		return ev.not(ctx, txn, node.Children[0], fctx)
	default:
		return nil, fmt.Errorf("filter: unknown op %d", node.Op)
	}
}

func (ev *Evaluator) leaf(ctx context.Context, txn kvstore.Txn, attr string, kind index.Kind, value []byte, fctx *Context) (*idl.IDL, error) {
	ai, ok := ev.Reg.Lookup(attr)
	if !ok {
		fctx.mark(true)
		return idl.NewAllIDs(ev.Index.HighestID()), nil
	}
	l, unindexed, err := ev.Index.Read(ctx, txn, ai, kind, value)
	if err != nil {
		return nil, err
	}
	fctx.mark(unindexed)
	return l, nil
}

// combine resolves an AND/OR's children through one idlset.IDListSet.
// Under AND, a NOT child is routed to AddComplement so the k-way engine
// applies it last against the intersection of the positive branches
// (spec.md §4.1.4), instead of first materializing AllIDs \ child in
// isolation. Union has no complement step (AllIDs absorbs any NOT
// branch regardless), so a NOT under OR, and a top-level NOT, both fall
// back to ev.not.
func (ev *Evaluator) combine(ctx context.Context, txn kvstore.Txn, children []*Node, fctx *Context, and bool) (*idl.IDL, error) {
	set := idlset.New(ev.Index.HighestID())
	for _, c := range children {
		if and && c.Op == OpNot {
			l, err := ev.Evaluate(ctx, txn, c.Children[0], fctx)
			if err != nil {
				return nil, err
			}
			fctx.mark(true)
			set.AddComplement(l)
			continue
		}
		l, err := ev.Evaluate(ctx, txn, c, fctx)
		if err != nil {
			return nil, err
		}
		set.AddPositive(l)
	}
	var res idlset.Result
	if and {
		res = set.Intersection()
	} else {
		res = set.Union()
	}
	fctx.mark(res.NeedsFilterTest)
	return res.IDL, nil
}

// not resolves a standalone NOT (top-level, or under an OR, where
// idlset's complement bucket never applies): idl.NotIn(AllIDs, child)
// walks the bounded complement of child directly. It always requires a
// filter-test re-check, since the result is exact only when child itself
// was exact and fully indexed, which the index layer can't guarantee in
// general (e.g. a substring NOT).
func (ev *Evaluator) not(ctx context.Context, txn kvstore.Txn, child *Node, fctx *Context) (*idl.IDL, error) {
	l, err := ev.Evaluate(ctx, txn, child, fctx)
	if err != nil {
		return nil, err
	}
	fctx.mark(true)
	return idl.NotIn(idl.NewAllIDs(ev.Index.HighestID()), l), nil
}

func (ev *Evaluator) substring(ctx context.Context, txn kvstore.Txn, node *Node, fctx *Context) (*idl.IDL, error) {
	ai, ok := ev.Reg.Lookup(node.Attr)
	if !ok {
		fctx.mark(true)
		return idl.NewAllIDs(ev.Index.HighestID()), nil
	}
	n := ai.SubstringSize
	if n == 0 {
		n = 3
	}

	var grams [][]byte
	if len(node.Initial) > 0 {
		grams = append(grams, leftPaddedGrams(node.Initial, n)...)
	}
	for _, any := range node.Any {
		g, ok := exactGrams(any, n)
		if !ok {
			fctx.mark(true) // fragment shorter than n: can't validate via index alone
			continue
		}
		grams = append(grams, g...)
	}
	if len(node.Final) > 0 {
		grams = append(grams, rightPaddedGrams(node.Final, n)...)
	}
	if len(grams) == 0 {
		fctx.mark(true)
		return idl.NewAllIDs(ev.Index.HighestID()), nil
	}

	set := idlset.New(ev.Index.HighestID())
	for _, g := range grams {
		l, unindexed, err := ev.Index.Read(ctx, txn, ai, index.KindSubstring, g)
		if err != nil {
			return nil, err
		}
		fctx.mark(unindexed)
		set.AddPositive(l)
	}
	res := set.Intersection()
	fctx.mark(res.NeedsFilterTest)
	return res.IDL, nil
}

func exactGrams(v []byte, n int) ([][]byte, bool) {
	if len(v) < n {
		return nil, false
	}
	var out [][]byte
	for i := 0; i+n <= len(v); i++ {
		out = append(out, v[i:i+n])
	}
	return out, true
}

func leftPaddedGrams(v []byte, n int) [][]byte {
	padded := make([]byte, 0, n-1+len(v))
	for i := 0; i < n-1; i++ {
		padded = append(padded, '^')
	}
	padded = append(padded, v...)
	g, ok := exactGrams(padded, n)
	if !ok {
		return nil
	}
	return g
}

func rightPaddedGrams(v []byte, n int) [][]byte {
	padded := make([]byte, 0, len(v)+n-1)
	padded = append(padded, v...)
	for i := 0; i < n-1; i++ {
		padded = append(padded, '$')
	}
	g, ok := exactGrams(padded, n)
	if !ok {
		return nil
	}
	return g
}
