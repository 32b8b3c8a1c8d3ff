package granitedb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/config"
	"github.com/tuannm99/granitedb/internal/execution"
	"github.com/tuannm99/granitedb/internal/record"
)

func newTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "granite-db-*")
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Storage.DataDir = dir
	cfg.Lock.DetectionIntervalMs = 10

	db, err := New(cfg)
	require.NoError(t, err)

	return db, func() {
		_ = db.Close()
		_ = os.RemoveAll(dir)
	}
}

func TestDB_EndToEnd(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	schema := &record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "age", Type: record.ColInt64},
	}}
	_, err := db.CreateTable("users", schema)
	require.NoError(t, err)

	txn := db.Begin(concurrency.RepeatableRead)
	ctx := db.ExecContext(txn)

	ins := execution.NewInsertExecutor(ctx, &execution.InsertPlan{
		TableName: "users",
		RawValues: [][]any{
			{int64(1), int64(31)},
			{int64(2), int64(18)},
			{int64(3), int64(47)},
		},
	}, nil)
	require.NoError(t, ins.Init())
	_, err = ins.Next()
	require.NoError(t, err)

	keySchema := &record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64}}}
	_, err = db.CreateIndex(txn, "users_id", "users", keySchema, []int{0})
	require.NoError(t, err)

	scan := execution.NewSeqScanExecutor(ctx, &execution.SeqScanPlan{
		TableName: "users",
		Predicate: execution.Compare(execution.Ge, execution.Col("age"), execution.Const(int64(30))),
	})
	require.NoError(t, scan.Init())

	var ids []int64
	for {
		tup, err := scan.Next()
		require.NoError(t, err)
		if tup == nil {
			break
		}
		ids = append(ids, tup.Values[0].(int64))
	}
	require.Equal(t, []int64{1, 3}, ids)

	require.NoError(t, db.Commit(txn))
}

func TestDB_AbortRollsBack(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()

	schema := &record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64}}}
	_, err := db.CreateTable("t", schema)
	require.NoError(t, err)

	txn := db.Begin(concurrency.RepeatableRead)
	ctx := db.ExecContext(txn)

	ins := execution.NewInsertExecutor(ctx, &execution.InsertPlan{
		TableName: "t",
		RawValues: [][]any{{int64(1)}, {int64(2)}},
	}, nil)
	require.NoError(t, ins.Init())
	_, err = ins.Next()
	require.NoError(t, err)

	require.NoError(t, db.Abort(txn))

	// A fresh transaction sees none of the aborted rows.
	txn2 := db.Begin(concurrency.RepeatableRead)
	defer db.Commit(txn2)

	scan := execution.NewSeqScanExecutor(db.ExecContext(txn2), &execution.SeqScanPlan{TableName: "t"})
	require.NoError(t, scan.Init())
	tup, err := scan.Next()
	require.NoError(t, err)
	require.Nil(t, tup)
}
