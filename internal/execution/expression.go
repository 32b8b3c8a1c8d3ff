package execution

import (
	"errors"
	"fmt"

	"github.com/tuannm99/granitedb/internal/record"
)

var ErrUnsupportedEval = errors.New("execution: expression does not support this evaluation mode")

// Expression is the minimal expression surface the executors consume:
// single-tuple evaluation for scans, two-sided evaluation for joins and
// group/aggregate evaluation for HAVING and aggregate output.
type Expression interface {
	Evaluate(t *record.Tuple, s *record.Schema) (any, error)
	EvaluateJoin(l *record.Tuple, ls *record.Schema, r *record.Tuple, rs *record.Schema) (any, error)
	EvaluateAggregate(groupBys, aggregates []any) (any, error)
}

// Side selects which child of a join a column reference reads from.
type Side int

const (
	Left Side = iota
	Right
)

// ColumnValue reads a named column out of a tuple.
type ColumnValue struct {
	Name string
	Side Side
}

func Col(name string) *ColumnValue            { return &ColumnValue{Name: name} }
func JoinCol(side Side, name string) *ColumnValue { return &ColumnValue{Name: name, Side: side} }

func (e *ColumnValue) Evaluate(t *record.Tuple, s *record.Schema) (any, error) {
	return t.ValueByName(s, e.Name)
}

func (e *ColumnValue) EvaluateJoin(l *record.Tuple, ls *record.Schema, r *record.Tuple, rs *record.Schema) (any, error) {
	if e.Side == Left {
		return l.ValueByName(ls, e.Name)
	}
	return r.ValueByName(rs, e.Name)
}

func (e *ColumnValue) EvaluateAggregate(groupBys, aggregates []any) (any, error) {
	return nil, ErrUnsupportedEval
}

// Constant evaluates to a fixed value.
type Constant struct {
	Val any
}

func Const(v any) *Constant { return &Constant{Val: v} }

func (e *Constant) Evaluate(*record.Tuple, *record.Schema) (any, error) { return e.Val, nil }

func (e *Constant) EvaluateJoin(*record.Tuple, *record.Schema, *record.Tuple, *record.Schema) (any, error) {
	return e.Val, nil
}

func (e *Constant) EvaluateAggregate([]any, []any) (any, error) { return e.Val, nil }

// CompOp is a comparison operator.
type CompOp int

const (
	Eq CompOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// Comparison compares two sub-expressions and yields a bool.
type Comparison struct {
	Op    CompOp
	Left  Expression
	Right Expression
}

func Compare(op CompOp, l, r Expression) *Comparison {
	return &Comparison{Op: op, Left: l, Right: r}
}

func (e *Comparison) apply(l, r any) (any, error) {
	c, err := record.Compare(l, r)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case Eq:
		return c == 0, nil
	case Ne:
		return c != 0, nil
	case Lt:
		return c < 0, nil
	case Le:
		return c <= 0, nil
	case Gt:
		return c > 0, nil
	case Ge:
		return c >= 0, nil
	default:
		return nil, fmt.Errorf("execution: unknown comparison op %d", e.Op)
	}
}

func (e *Comparison) Evaluate(t *record.Tuple, s *record.Schema) (any, error) {
	l, err := e.Left.Evaluate(t, s)
	if err != nil {
		return nil, err
	}
	r, err := e.Right.Evaluate(t, s)
	if err != nil {
		return nil, err
	}
	return e.apply(l, r)
}

func (e *Comparison) EvaluateJoin(lt *record.Tuple, ls *record.Schema, rt *record.Tuple, rs *record.Schema) (any, error) {
	l, err := e.Left.EvaluateJoin(lt, ls, rt, rs)
	if err != nil {
		return nil, err
	}
	r, err := e.Right.EvaluateJoin(lt, ls, rt, rs)
	if err != nil {
		return nil, err
	}
	return e.apply(l, r)
}

func (e *Comparison) EvaluateAggregate(groupBys, aggregates []any) (any, error) {
	l, err := e.Left.EvaluateAggregate(groupBys, aggregates)
	if err != nil {
		return nil, err
	}
	r, err := e.Right.EvaluateAggregate(groupBys, aggregates)
	if err != nil {
		return nil, err
	}
	return e.apply(l, r)
}

// AggregateValue references one term of an aggregation result row: either a
// group-by column or an aggregate slot.
type AggregateValue struct {
	IsGroupBy bool
	Idx       int
}

func GroupByTerm(idx int) *AggregateValue  { return &AggregateValue{IsGroupBy: true, Idx: idx} }
func AggregateTerm(idx int) *AggregateValue { return &AggregateValue{Idx: idx} }

func (e *AggregateValue) Evaluate(*record.Tuple, *record.Schema) (any, error) {
	return nil, ErrUnsupportedEval
}

func (e *AggregateValue) EvaluateJoin(*record.Tuple, *record.Schema, *record.Tuple, *record.Schema) (any, error) {
	return nil, ErrUnsupportedEval
}

func (e *AggregateValue) EvaluateAggregate(groupBys, aggregates []any) (any, error) {
	if e.IsGroupBy {
		if e.Idx >= len(groupBys) {
			return nil, fmt.Errorf("execution: group-by term %d out of range", e.Idx)
		}
		return groupBys[e.Idx], nil
	}
	if e.Idx >= len(aggregates) {
		return nil, fmt.Errorf("execution: aggregate term %d out of range", e.Idx)
	}
	return aggregates[e.Idx], nil
}
