package dbversion

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dirserv/ldbm/internal/idl"
	"github.com/dirserv/ldbm/internal/ids"
	"github.com/dirserv/ldbm/internal/index"
	"github.com/dirserv/ldbm/internal/kvstore"
)

// ancestorTableName mirrors internal/ancestor's unexported tableName
// constant: the one table this package rewrites that isn't a per-
// attribute index.
const ancestorTableName = "ancestorid"

// indexTableName mirrors internal/index's unexported tableName
// convention.
func indexTableName(attrType string) string {
	return "index_" + attrType
}

// maxParallelTables bounds how many tables Upgrade rewrites at once,
// so a large schema doesn't open an unbounded number of cursors and
// transactions simultaneously.
const maxParallelTables = 4

// Upgrade rewrites every attribute index table named in reg, plus
// ancestorid, from oldCodec's on-disk encoding to newCodec's, one table
// per goroutine (bounded by maxParallelTables via errgroup.SetLimit).
// Each table's rewrite runs in its own transaction: a deadlock on one
// table does not need to roll back sibling tables' completed work,
// since each table's keys are disjoint by construction.
func Upgrade(ctx context.Context, store kvstore.Store, reg index.Registry, oldCodec, newCodec idl.Codec, highestID func() ids.ID) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelTables)

	for _, ai := range reg {
		ai := ai
		g.Go(func() error {
			return upgradeTable(gctx, store, indexTableName(ai.Type), oldCodec, newCodec, highestID)
		})
	}
	g.Go(func() error {
		return upgradeTable(gctx, store, ancestorTableName, oldCodec, newCodec, highestID)
	})

	return g.Wait()
}

// upgradeTable walks every key in table, reading it with oldCodec and
// writing it back with newCodec under the same key, inside one
// transaction.
func upgradeTable(ctx context.Context, store kvstore.Store, tableName string, oldCodec, newCodec idl.Codec, highestID func() ids.ID) error {
	table, err := store.Table(ctx, tableName)
	if err != nil {
		return fmt.Errorf("dbversion: opening %s: %w", tableName, err)
	}

	tx, err := store.Begin(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbversion: begin txn for %s: %w", tableName, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Abort()
		}
	}()

	cur, err := table.Cursor(tx)
	if err != nil {
		return fmt.Errorf("dbversion: cursor for %s: %w", tableName, err)
	}

	var keys [][]byte
	k, _, err := cur.Seek(nil, kvstore.OpFirst)
	for err == nil {
		keys = append(keys, append([]byte(nil), k...))
		k, _, err = cur.Seek(nil, kvstore.OpNextNoDup)
	}
	_ = cur.Close()
	if !kvstore.IsNotFound(err) {
		return fmt.Errorf("dbversion: scanning %s: %w", tableName, err)
	}

	high := ids.NOID
	if highestID != nil {
		high = highestID()
	}
	for _, key := range keys {
		l, err := oldCodec.Fetch(ctx, tx, table, key, high)
		if err != nil {
			return fmt.Errorf("dbversion: reading %s key: %w", tableName, err)
		}
		if err := newCodec.Store(ctx, tx, table, key, l); err != nil {
			return fmt.Errorf("dbversion: rewriting %s key: %w", tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dbversion: committing %s: %w", tableName, err)
	}
	committed = true
	return nil
}
