package execution

import (
	"github.com/tuannm99/granitedb/internal/record"
)

// NestedLoopJoinExecutor is the classic doubly nested join: for each outer
// tuple the inner side is drained and then re-initialized. A nil predicate
// produces the Cartesian product.
type NestedLoopJoinExecutor struct {
	ctx  *Context
	plan *NestedLoopJoinPlan

	left  Executor
	right Executor

	leftTuple *record.Tuple
}

func NewNestedLoopJoinExecutor(ctx *Context, plan *NestedLoopJoinPlan, left, right Executor) *NestedLoopJoinExecutor {
	return &NestedLoopJoinExecutor{ctx: ctx, plan: plan, left: left, right: right}
}

func (e *NestedLoopJoinExecutor) Init() error {
	if err := e.left.Init(); err != nil {
		return err
	}
	if err := e.right.Init(); err != nil {
		return err
	}
	e.leftTuple = nil
	return nil
}

func (e *NestedLoopJoinExecutor) Next() (*record.Tuple, error) {
	for {
		if e.leftTuple == nil {
			lt, err := e.left.Next()
			if err != nil || lt == nil {
				return nil, err
			}
			e.leftTuple = lt
		}

		rt, err := e.right.Next()
		if err != nil {
			return nil, err
		}
		if rt == nil {
			// Inner exhausted: restart it for the next outer tuple.
			e.leftTuple = nil
			if err := e.right.Init(); err != nil {
				return nil, err
			}
			continue
		}

		if e.plan.Predicate != nil {
			v, err := e.plan.Predicate.EvaluateJoin(e.leftTuple, e.plan.LeftSchema, rt, e.plan.RightSchema)
			if err != nil {
				return nil, err
			}
			if ok, _ := v.(bool); !ok {
				continue
			}
		}

		return projectJoin(e.plan.Output, e.leftTuple, e.plan.LeftSchema, rt, e.plan.RightSchema)
	}
}
