package execution

import (
	"github.com/tuannm99/granitedb/internal/record"
)

// Plan nodes describe what an executor should do. Children are wired as
// executors directly; plans only carry the static parameters.

// SeqScanPlan scans a table front to back.
type SeqScanPlan struct {
	TableName string
	Predicate Expression
	Output    *record.Schema
}

// IndexScanPlan walks an index's leaf chain and fetches matching rows.
type IndexScanPlan struct {
	IndexName string
	TableName string
	Predicate Expression
	Output    *record.Schema
}

// InsertPlan inserts either a raw values list or its child's output.
type InsertPlan struct {
	TableName string
	RawValues [][]any
}

// IsRawInsert reports whether the plan carries literal rows.
func (p *InsertPlan) IsRawInsert() bool { return p.RawValues != nil }

// DeletePlan deletes every row its child produces.
type DeletePlan struct {
	TableName string
}

// NestedLoopJoinPlan joins two children with an optional join predicate; a
// nil predicate yields the Cartesian product.
type NestedLoopJoinPlan struct {
	Predicate   Expression
	LeftSchema  *record.Schema
	RightSchema *record.Schema
	Output      *record.Schema
}

// NestedIndexJoinPlan probes an inner index with a key built from each outer
// tuple.
type NestedIndexJoinPlan struct {
	IndexName      string
	InnerTableName string
	OuterSchema    *record.Schema
	OuterKeyAttrs  []int
	Predicate      Expression
	Output         *record.Schema
}

// AggregationType selects the per-group accumulator.
type AggregationType int

const (
	CountAggregate AggregationType = iota
	SumAggregate
	MinAggregate
	MaxAggregate
)

// AggregationPlan groups the child's output and folds aggregates over each
// group. Having filters groups; OutputExprs shape the result rows.
type AggregationPlan struct {
	GroupBys    []Expression
	Aggregates  []Expression
	AggTypes    []AggregationType
	Having      Expression
	ChildSchema *record.Schema
	OutputExprs []Expression
}
