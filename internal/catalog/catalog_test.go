package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/granitedb/internal/buffer"
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/disk"
	"github.com/tuannm99/granitedb/internal/wal"
)

func newTestCatalog(t *testing.T) (*Catalog, *concurrency.TxnManager, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "granite-catalog-*")
	require.NoError(t, err)

	dm, err := disk.NewManager(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	dm.Reserve(storage.HeaderPageID)

	log, err := wal.Open(dir)
	require.NoError(t, err)

	bpm := buffer.NewManager(32, dm, log)
	tm := concurrency.NewTxnManager(concurrency.NewManager(0))

	cleanup := func() {
		_ = log.Close()
		_ = dm.Close()
		_ = os.RemoveAll(dir)
	}
	return NewCatalog(bpm, log), tm, cleanup
}

func twoColSchema() *record.Schema {
	return &record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "v", Type: record.ColInt64},
	}}
}

func TestCatalog_TableLifecycle(t *testing.T) {
	c, _, cleanup := newTestCatalog(t)
	defer cleanup()

	meta, err := c.CreateTable("t", twoColSchema())
	require.NoError(t, err)
	require.Equal(t, 0, meta.Oid)

	_, err = c.CreateTable("t", twoColSchema())
	require.ErrorIs(t, err, ErrTableExists)

	byName, err := c.GetTable("t")
	require.NoError(t, err)
	byOid, err := c.GetTableByOid(0)
	require.NoError(t, err)
	require.Same(t, byName, byOid)

	_, err = c.GetTable("missing")
	require.ErrorIs(t, err, ErrTableNotFound)
}

func TestCatalog_CreateIndexBackfills(t *testing.T) {
	c, tm, cleanup := newTestCatalog(t)
	defer cleanup()

	meta, err := c.CreateTable("t", twoColSchema())
	require.NoError(t, err)

	txn := tm.Begin(concurrency.RepeatableRead)
	var tids []storage.TID
	for _, id := range []int64{5, 1, 3} {
		tid, err := meta.Table.Insert(txn, []any{id, id * 10})
		require.NoError(t, err)
		tids = append(tids, tid)
	}

	keySchema := &record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64}}}
	info, err := c.CreateIndex(txn, "t_id", "t", keySchema, []int{0}, 0, 0)
	require.NoError(t, err)

	for i, id := range []int64{5, 1, 3} {
		tid, ok, err := info.Index.GetValue(id, nil)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, tids[i], tid)
	}

	_, err = c.CreateIndex(txn, "t_id", "t", keySchema, []int{0}, 0, 0)
	require.ErrorIs(t, err, ErrIndexExists)

	require.Len(t, c.GetTableIndexes("t"), 1)
	require.Empty(t, c.GetTableIndexes("missing"))

	got, err := c.GetIndex("t_id", "t")
	require.NoError(t, err)
	require.Same(t, info, got)
}
