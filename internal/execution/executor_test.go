package execution

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuannm99/granitedb/internal/buffer"
	"github.com/tuannm99/granitedb/internal/catalog"
	"github.com/tuannm99/granitedb/internal/concurrency"
	"github.com/tuannm99/granitedb/internal/record"
	"github.com/tuannm99/granitedb/internal/storage"
	"github.com/tuannm99/granitedb/internal/storage/disk"
	"github.com/tuannm99/granitedb/internal/wal"
)

type testEnv struct {
	catalog *catalog.Catalog
	lockMgr *concurrency.Manager
	txnMgr  *concurrency.TxnManager
}

func newTestEnv(t *testing.T) (*testEnv, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "granite-exec-*")
	require.NoError(t, err)

	dm, err := disk.NewManager(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	dm.Reserve(storage.HeaderPageID)

	log, err := wal.Open(dir)
	require.NoError(t, err)

	bpm := buffer.NewManager(64, dm, log)
	lockMgr := concurrency.NewManager(0)

	env := &testEnv{
		catalog: catalog.NewCatalog(bpm, log),
		lockMgr: lockMgr,
		txnMgr:  concurrency.NewTxnManager(lockMgr),
	}

	cleanup := func() {
		_ = log.Close()
		_ = dm.Close()
		_ = os.RemoveAll(dir)
	}
	return env, cleanup
}

func (env *testEnv) context(txn *concurrency.Transaction) *Context {
	return &Context{
		Txn:     txn,
		TxnMgr:  env.txnMgr,
		LockMgr: env.lockMgr,
		Catalog: env.catalog,
	}
}

func usersSchema() *record.Schema {
	return &record.Schema{Cols: []record.Column{
		{Name: "id", Type: record.ColInt64},
		{Name: "age", Type: record.ColInt64},
	}}
}

// seedUsers creates the table, inserts rows through the insert executor and
// returns the executor context of the seeding transaction.
func seedUsers(t *testing.T, env *testEnv, rows [][]any) *Context {
	t.Helper()

	_, err := env.catalog.CreateTable("users", usersSchema())
	require.NoError(t, err)

	txn := env.txnMgr.Begin(concurrency.RepeatableRead)
	ctx := env.context(txn)

	ins := NewInsertExecutor(ctx, &InsertPlan{TableName: "users", RawValues: rows}, nil)
	require.NoError(t, ins.Init())

	tup, err := ins.Next()
	require.NoError(t, err)
	require.NotNil(t, tup, "raw insert acknowledges once")

	tup, err = ins.Next()
	require.NoError(t, err)
	require.Nil(t, tup, "raw insert fires only once")
	return ctx
}

func drain(t *testing.T, e Executor) []*record.Tuple {
	t.Helper()
	require.NoError(t, e.Init())

	var out []*record.Tuple
	for {
		tup, err := e.Next()
		require.NoError(t, err)
		if tup == nil {
			return out
		}
		out = append(out, tup)
	}
}

func TestSeqScan_PredicateAndProjection(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ctx := seedUsers(t, env, [][]any{
		{int64(1), int64(20)},
		{int64(2), int64(35)},
		{int64(3), int64(41)},
	})

	plan := &SeqScanPlan{
		TableName: "users",
		Predicate: Compare(Gt, Col("age"), Const(int64(30))),
		Output:    &record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64}}},
	}
	rows := drain(t, NewSeqScanExecutor(ctx, plan))

	require.Len(t, rows, 2)
	require.Equal(t, []any{int64(2)}, rows[0].Values)
	require.Equal(t, []any{int64(3)}, rows[1].Values)
}

func TestInsertPipelineAndIndexMaintenance(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ctx := seedUsers(t, env, [][]any{
		{int64(3), int64(30)},
		{int64(1), int64(10)},
		{int64(2), int64(20)},
	})

	idKey := &record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64}}}
	info, err := env.catalog.CreateIndex(ctx.Txn, "users_id", "users", idKey, []int{0}, 0, 0)
	require.NoError(t, err)

	// The index was backfilled from the existing heap rows.
	for _, id := range []int64{1, 2, 3} {
		_, ok, err := info.Index.GetValue(id, nil)
		require.NoError(t, err)
		require.True(t, ok, "backfilled key %d", id)
	}

	// Index scan walks in key order, not insertion order.
	scan := NewIndexScanExecutor(ctx, &IndexScanPlan{
		IndexName: "users_id",
		TableName: "users",
		Output:    idKey,
	})
	rows := drain(t, scan)
	require.Len(t, rows, 3)
	for i, want := range []int64{1, 2, 3} {
		require.Equal(t, want, rows[i].Values[0])
	}

	// New inserts keep the index in sync.
	ins := NewInsertExecutor(ctx, &InsertPlan{TableName: "users", RawValues: [][]any{{int64(4), int64(40)}}}, nil)
	require.NoError(t, ins.Init())
	_, err = ins.Next()
	require.NoError(t, err)

	tid, ok, err := info.Index.GetValue(4, nil)
	require.NoError(t, err)
	require.True(t, ok)

	meta, err := env.catalog.GetTable("users")
	require.NoError(t, err)
	tup, err := meta.Table.Get(ctx.Txn, tid)
	require.NoError(t, err)
	require.Equal(t, int64(40), tup.Values[1])
}

func TestDelete_RemovesHeapRowsAndIndexEntries(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ctx := seedUsers(t, env, [][]any{
		{int64(1), int64(10)},
		{int64(2), int64(20)},
		{int64(3), int64(30)},
	})

	idKey := &record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64}}}
	info, err := env.catalog.CreateIndex(ctx.Txn, "users_id", "users", idKey, []int{0}, 0, 0)
	require.NoError(t, err)

	child := NewSeqScanExecutor(ctx, &SeqScanPlan{
		TableName: "users",
		Predicate: Compare(Eq, Col("id"), Const(int64(2))),
	})
	deleted := drain(t, NewDeleteExecutor(ctx, &DeletePlan{TableName: "users"}, child))
	require.Len(t, deleted, 1)

	_, ok, err := info.Index.GetValue(2, nil)
	require.NoError(t, err)
	require.False(t, ok, "index entry removed")

	rows := drain(t, NewSeqScanExecutor(ctx, &SeqScanPlan{TableName: "users"}))
	require.Len(t, rows, 2)
}

// sliceExecutor feeds fixed tuples, for join and aggregation tests.
type sliceExecutor struct {
	rows [][]any
	pos  int
}

func (e *sliceExecutor) Init() error {
	e.pos = 0
	return nil
}

func (e *sliceExecutor) Next() (*record.Tuple, error) {
	if e.pos >= len(e.rows) {
		return nil, nil
	}
	tup := record.NewTuple(e.rows[e.pos])
	e.pos++
	return tup, nil
}

func TestNestedLoopJoin_EquiJoinReinitsInner(t *testing.T) {
	leftSchema := &record.Schema{Cols: []record.Column{{Name: "x", Type: record.ColInt64}}}
	rightSchema := &record.Schema{Cols: []record.Column{{Name: "y", Type: record.ColInt64}}}

	left := &sliceExecutor{rows: [][]any{{int64(1)}, {int64(2)}}}
	right := &sliceExecutor{rows: [][]any{{int64(1)}, {int64(3)}}}

	plan := &NestedLoopJoinPlan{
		Predicate:   Compare(Eq, JoinCol(Left, "x"), JoinCol(Right, "y")),
		LeftSchema:  leftSchema,
		RightSchema: rightSchema,
	}
	rows := drain(t, NewNestedLoopJoinExecutor(&Context{}, plan, left, right))

	// Only (1,1) matches; the inner side was re-initialized for outer 2.
	require.Len(t, rows, 1)
	require.Equal(t, []any{int64(1), int64(1)}, rows[0].Values)
}

func TestNestedLoopJoin_NilPredicateIsCartesian(t *testing.T) {
	left := &sliceExecutor{rows: [][]any{{int64(1)}, {int64(2)}}}
	right := &sliceExecutor{rows: [][]any{{int64(10)}, {int64(20)}}}

	plan := &NestedLoopJoinPlan{
		LeftSchema:  &record.Schema{Cols: []record.Column{{Name: "x", Type: record.ColInt64}}},
		RightSchema: &record.Schema{Cols: []record.Column{{Name: "y", Type: record.ColInt64}}},
	}
	rows := drain(t, NewNestedLoopJoinExecutor(&Context{}, plan, left, right))
	require.Len(t, rows, 4)
}

func TestNestIndexJoin_ProbesInnerIndex(t *testing.T) {
	env, cleanup := newTestEnv(t)
	defer cleanup()

	ctx := seedUsers(t, env, [][]any{
		{int64(1), int64(10)},
		{int64(3), int64(30)},
	})

	idKey := &record.Schema{Cols: []record.Column{{Name: "id", Type: record.ColInt64}}}
	_, err := env.catalog.CreateIndex(ctx.Txn, "users_id", "users", idKey, []int{0}, 0, 0)
	require.NoError(t, err)

	outerSchema := &record.Schema{Cols: []record.Column{{Name: "ref", Type: record.ColInt64}}}
	outer := &sliceExecutor{rows: [][]any{{int64(1)}, {int64(2)}, {int64(3)}}}

	plan := &NestedIndexJoinPlan{
		IndexName:      "users_id",
		InnerTableName: "users",
		OuterSchema:    outerSchema,
		OuterKeyAttrs:  []int{0},
		Output: &record.Schema{Cols: []record.Column{
			{Name: "ref", Type: record.ColInt64},
			{Name: "age", Type: record.ColInt64},
		}},
	}
	rows := drain(t, NewNestIndexJoinExecutor(ctx, plan, outer))

	// Outer key 2 has no inner match and is dropped.
	require.Len(t, rows, 2)
	require.Equal(t, []any{int64(1), int64(10)}, rows[0].Values)
	require.Equal(t, []any{int64(3), int64(30)}, rows[1].Values)
}

// SUM(v) GROUP BY g HAVING SUM(v) > 2 over (a,1),(a,2),(b,3) keeps only
// group a with sum 3.
func TestAggregation_SumGroupByHaving(t *testing.T) {
	childSchema := &record.Schema{Cols: []record.Column{
		{Name: "g", Type: record.ColText},
		{Name: "v", Type: record.ColInt64},
	}}
	child := &sliceExecutor{rows: [][]any{
		{"a", int64(1)},
		{"a", int64(2)},
		{"b", int64(3)},
	}}

	plan := &AggregationPlan{
		GroupBys:    []Expression{Col("g")},
		Aggregates:  []Expression{Col("v")},
		AggTypes:    []AggregationType{SumAggregate},
		Having:      Compare(Gt, AggregateTerm(0), Const(int64(2))),
		ChildSchema: childSchema,
		OutputExprs: []Expression{GroupByTerm(0), AggregateTerm(0)},
	}
	rows := drain(t, NewAggregationExecutor(&Context{}, plan, child))

	require.Len(t, rows, 1)
	require.Equal(t, []any{"a", int64(3)}, rows[0].Values)
}

func TestAggregation_CountMinMaxStartState(t *testing.T) {
	childSchema := &record.Schema{Cols: []record.Column{
		{Name: "v", Type: record.ColInt64},
	}}
	child := &sliceExecutor{rows: [][]any{
		{int64(5)}, {int64(2)}, {int64(9)},
	}}

	plan := &AggregationPlan{
		Aggregates:  []Expression{Col("v"), Col("v"), Col("v")},
		AggTypes:    []AggregationType{CountAggregate, MinAggregate, MaxAggregate},
		ChildSchema: childSchema,
		OutputExprs: []Expression{AggregateTerm(0), AggregateTerm(1), AggregateTerm(2)},
	}
	rows := drain(t, NewAggregationExecutor(&Context{}, plan, child))

	require.Len(t, rows, 1)
	require.Equal(t, []any{int64(3), int64(2), int64(9)}, rows[0].Values)
}
