package automation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"
)

type BusinessHours struct {
	StartHour int
	EndHour   int
	Timezone  string
}

// TraceEntry records one evaluated node. Entries are in pre-order; children
// skipped by short-circuiting do not appear.
type TraceEntry struct {
	Path       string      `json:"path"`
	Node       string      `json:"node"`
	Op         string      `json:"op,omitempty"`
	LeftRef    string      `json:"leftRef,omitempty"`
	Left       interface{} `json:"left,omitempty"`
	RightRef   string      `json:"rightRef,omitempty"`
	Right      interface{} `json:"right,omitempty"`
	Hours      float64     `json:"hours,omitempty"`
	Expression string      `json:"expression,omitempty"`
	Result     bool        `json:"result"`
	Error      string      `json:"error,omitempty"`
}

type Trace []TraceEntry

type exprEvaluator interface {
	exprValidator
	EvaluateCondition(ctx context.Context, expression string, vars map[string]interface{}) (bool, error)
}

type Evaluator struct {
	exprs         exprEvaluator
	businessHours BusinessHours
}

func NewEvaluator(exprs exprEvaluator, hours BusinessHours) *Evaluator {
	if hours.EndHour == 0 && hours.StartHour == 0 {
		hours.StartHour, hours.EndHour = 8, 18
	}
	return &Evaluator{exprs: exprs, businessHours: hours}
}

// Evaluate walks node against data at the instant now and returns the
// verdict with its trace. It has no side effects.
func (e *Evaluator) Evaluate(ctx context.Context, node Condition, data map[string]interface{}, now time.Time) (bool, Trace) {
	w := &treeWalk{ctx: ctx, eval: e, data: data, now: now, trace: make(Trace, 0, 8)}
	result := w.visit(node, "$")
	return result, w.trace
}

type treeWalk struct {
	ctx   context.Context
	eval  *Evaluator
	data  map[string]interface{}
	now   time.Time
	trace Trace
}

func (w *treeWalk) visit(node Condition, path string) bool {
	idx := len(w.trace)
	w.trace = append(w.trace, TraceEntry{Path: path})
	entry := TraceEntry{Path: path}

	switch n := node.(type) {
	case All:
		entry.Node = "all"
		entry.Result = true
		for i, child := range n.Children {
			if !w.visit(child, path+"."+strconv.Itoa(i)) {
				entry.Result = false
				break
			}
		}
	case Any:
		entry.Node = "any"
		for i, child := range n.Children {
			if w.visit(child, path+"."+strconv.Itoa(i)) {
				entry.Result = true
				break
			}
		}
	case Not:
		entry.Node = "not"
		entry.Result = !w.visit(n.Child, path+".0")
	case Compare:
		entry.Node = "compare"
		w.compare(n, &entry)
	case Time:
		entry.Node = "time"
		w.timeCheck(n, &entry)
	case Expr:
		entry.Node = "expr"
		entry.Expression = n.Expression
		result, err := w.eval.exprs.EvaluateCondition(w.ctx, n.Expression, w.data)
		if err != nil {
			entry.Error = err.Error()
		}
		entry.Result = err == nil && result
	default:
		entry.Node = "unknown"
		entry.Error = fmt.Sprintf("unsupported condition %T", node)
	}

	w.trace[idx] = entry
	return entry.Result
}

func (w *treeWalk) operand(o Operand) interface{} {
	if !o.IsRef() {
		return o.Value
	}
	v, _ := lookupPath(w.data, o.Ref)
	return v
}

func (w *treeWalk) compare(c Compare, entry *TraceEntry) {
	left := w.operand(c.Left)
	right := w.operand(c.Right)

	entry.Op = string(c.Op)
	entry.LeftRef = c.Left.Ref
	entry.Left = left
	entry.RightRef = c.Right.Ref
	if c.Op != OpExists {
		entry.Right = right
	}

	switch c.Op {
	case OpEq:
		entry.Result = valuesEqual(left, right)
	case OpNeq:
		entry.Result = !valuesEqual(left, right)
	case OpGt, OpGte, OpLt, OpLte:
		cmp, ok := compareOrdered(left, right)
		if !ok {
			entry.Result = false
			return
		}
		switch c.Op {
		case OpGt:
			entry.Result = cmp > 0
		case OpGte:
			entry.Result = cmp >= 0
		case OpLt:
			entry.Result = cmp < 0
		case OpLte:
			entry.Result = cmp <= 0
		}
	case OpIn:
		entry.Result = containsValue(right, left)
	case OpContains:
		entry.Result = containsValue(left, right)
	case OpExists:
		entry.Result = left != nil
	default:
		entry.Error = fmt.Sprintf("unknown operator %q", c.Op)
	}
}

func (w *treeWalk) timeCheck(t Time, entry *TraceEntry) {
	entry.Op = string(t.Op)
	entry.LeftRef = t.Ref
	entry.Right = w.now.UTC().Format(time.RFC3339)
	if t.Hours > 0 {
		entry.Hours = t.Hours
	}

	raw := t.Value
	if t.Ref != "" {
		raw, _ = lookupPath(w.data, t.Ref)
	}

	operand, hasOperand := parseTimestamp(raw)
	if hasOperand {
		entry.Left = operand.UTC().Format(time.RFC3339)
	} else if raw != nil || t.Ref != "" {
		entry.Error = "timestamp not available"
		if t.Op != OpOutsideBusinessHours || t.Ref != "" {
			return
		}
	}

	switch t.Op {
	case OpWithinHours:
		if !hasOperand {
			return
		}
		diff := math.Abs(w.now.Sub(operand).Hours())
		entry.Result = diff <= t.Hours
	case OpBefore:
		entry.Result = hasOperand && w.now.Before(operand)
	case OpAfter:
		entry.Result = hasOperand && w.now.After(operand)
	case OpOutsideBusinessHours:
		instant := w.now
		if hasOperand {
			instant = operand
		}
		entry.Result = w.eval.outsideBusinessHours(instant, t.Timezone)
	}
}

func (e *Evaluator) outsideBusinessHours(instant time.Time, tz string) bool {
	if tz == "" {
		tz = e.businessHours.Timezone
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	local := instant.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return true
	}
	hour := local.Hour()
	return hour < e.businessHours.StartHour || hour >= e.businessHours.EndHour
}
