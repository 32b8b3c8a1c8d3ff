package execution

import (
	"fmt"

	"github.com/tuannm99/granitedb/internal/record"
)

// aggEntry is one group's accumulated state. sum/min/max start null and
// adopt the first value they see; count starts at zero.
type aggEntry struct {
	groupBys   []any
	aggregates []any
}

// aggHashTable folds child tuples into per-group aggregate state. Groups
// iterate in first-seen order so results are deterministic.
type aggHashTable struct {
	types   []AggregationType
	entries map[string]*aggEntry
	order   []string
}

func newAggHashTable(types []AggregationType) *aggHashTable {
	return &aggHashTable{
		types:   types,
		entries: make(map[string]*aggEntry),
	}
}

func (h *aggHashTable) insertCombine(groupBys, input []any) error {
	key := fmt.Sprintf("%v", groupBys)
	entry, ok := h.entries[key]
	if !ok {
		entry = &aggEntry{
			groupBys:   groupBys,
			aggregates: make([]any, len(h.types)),
		}
		for i, t := range h.types {
			if t == CountAggregate {
				entry.aggregates[i] = int64(0)
			}
		}
		h.entries[key] = entry
		h.order = append(h.order, key)
	}

	for i, t := range h.types {
		switch t {
		case CountAggregate:
			entry.aggregates[i] = entry.aggregates[i].(int64) + 1

		case SumAggregate:
			sum, err := record.Add(entry.aggregates[i], input[i])
			if err != nil {
				return err
			}
			entry.aggregates[i] = sum

		case MinAggregate:
			if entry.aggregates[i] == nil {
				entry.aggregates[i] = input[i]
				break
			}
			c, err := record.Compare(input[i], entry.aggregates[i])
			if err != nil {
				return err
			}
			if c < 0 {
				entry.aggregates[i] = input[i]
			}

		case MaxAggregate:
			if entry.aggregates[i] == nil {
				entry.aggregates[i] = input[i]
				break
			}
			c, err := record.Compare(input[i], entry.aggregates[i])
			if err != nil {
				return err
			}
			if c > 0 {
				entry.aggregates[i] = input[i]
			}
		}
	}
	return nil
}

// AggregationExecutor materializes the child in Init, grouping rows into the
// hash table; Next walks the groups, filters with HAVING and shapes output
// rows through the plan's aggregate expressions.
type AggregationExecutor struct {
	ctx   *Context
	plan  *AggregationPlan
	child Executor

	table *aggHashTable
	pos   int
}

func NewAggregationExecutor(ctx *Context, plan *AggregationPlan, child Executor) *AggregationExecutor {
	return &AggregationExecutor{ctx: ctx, plan: plan, child: child}
}

func (e *AggregationExecutor) Init() error {
	e.table = newAggHashTable(e.plan.AggTypes)
	e.pos = 0

	if err := e.child.Init(); err != nil {
		return err
	}

	for {
		tup, err := e.child.Next()
		if err != nil {
			return err
		}
		if tup == nil {
			return nil
		}

		groupBys := make([]any, len(e.plan.GroupBys))
		for i, expr := range e.plan.GroupBys {
			v, err := expr.Evaluate(tup, e.plan.ChildSchema)
			if err != nil {
				return err
			}
			groupBys[i] = v
		}

		input := make([]any, len(e.plan.Aggregates))
		for i, expr := range e.plan.Aggregates {
			v, err := expr.Evaluate(tup, e.plan.ChildSchema)
			if err != nil {
				return err
			}
			input[i] = v
		}

		if err := e.table.insertCombine(groupBys, input); err != nil {
			return err
		}
	}
}

func (e *AggregationExecutor) Next() (*record.Tuple, error) {
	for e.pos < len(e.table.order) {
		entry := e.table.entries[e.table.order[e.pos]]
		e.pos++

		if e.plan.Having != nil {
			v, err := e.plan.Having.EvaluateAggregate(entry.groupBys, entry.aggregates)
			if err != nil {
				return nil, err
			}
			if ok, _ := v.(bool); !ok {
				continue
			}
		}

		values := make([]any, 0, len(e.plan.OutputExprs))
		for _, expr := range e.plan.OutputExprs {
			v, err := expr.EvaluateAggregate(entry.groupBys, entry.aggregates)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return &record.Tuple{Values: values}, nil
	}
	return nil, nil
}
