package automation

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Condition is a node of a rule's condition tree. The tree is plain data;
// Evaluator walks it.
type Condition interface {
	conditionNode()
}

type All struct {
	Children []Condition
}

type Any struct {
	Children []Condition
}

type Not struct {
	Child Condition
}

type CompareOp string

const (
	OpEq       CompareOp = "eq"
	OpNeq      CompareOp = "neq"
	OpGt       CompareOp = "gt"
	OpGte      CompareOp = "gte"
	OpLt       CompareOp = "lt"
	OpLte      CompareOp = "lte"
	OpIn       CompareOp = "in"
	OpContains CompareOp = "contains"
	OpExists   CompareOp = "exists"
)

// Operand is either a literal value or a dotted path into the resolved
// context.
type Operand struct {
	Ref   string
	Value interface{}
}

func (o Operand) IsRef() bool { return o.Ref != "" }

func Ref(path string) Operand { return Operand{Ref: path} }

func Literal(v interface{}) Operand { return Operand{Value: v} }

type Compare struct {
	Left  Operand
	Op    CompareOp
	Right Operand
}

type TimeOp string

const (
	OpWithinHours          TimeOp = "within_hours"
	OpOutsideBusinessHours TimeOp = "outside_business_hours"
	OpBefore               TimeOp = "before"
	OpAfter                TimeOp = "after"
)

// Time compares the evaluation instant with a timestamp taken from Ref or
// Value. Timezone overrides the configured business-hours zone.
type Time struct {
	Op       TimeOp
	Ref      string
	Value    interface{}
	Hours    float64
	Timezone string
}

// Expr is a CEL boolean expression over the resolved context.
type Expr struct {
	Expression string
}

func (All) conditionNode()     {}
func (Any) conditionNode()     {}
func (Not) conditionNode()     {}
func (Compare) conditionNode() {}
func (Time) conditionNode()    {}
func (Expr) conditionNode()    {}

type ValidationError struct {
	Path    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func validationErr(path, format string, args ...interface{}) error {
	return &ValidationError{Path: path, Message: fmt.Sprintf(format, args...)}
}

var compareOps = map[CompareOp]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true,
	OpLte: true, OpIn: true, OpContains: true, OpExists: true,
}

var timeOps = map[TimeOp]bool{
	OpWithinHours: true, OpOutsideBusinessHours: true, OpBefore: true, OpAfter: true,
}

// exprValidator checks Expr nodes at parse time.
type exprValidator interface {
	ValidateConditionExpression(expression string) error
}

type conditionParser struct {
	exprs exprValidator
}

// parseConditions parses a rule's condition list into an implicit All.
// Every structural problem is reported, joined into one error.
func (p conditionParser) parseConditions(raw interface{}) (Condition, error) {
	if raw == nil {
		return All{}, nil
	}

	items, ok := raw.([]interface{})
	if !ok {
		return nil, validationErr("conditions", "must be a list, got %s", kindOf(raw))
	}

	children, err := p.parseList(items, "conditions")
	if err != nil {
		return nil, err
	}
	return All{Children: children}, nil
}

func (p conditionParser) parseList(items []interface{}, path string) ([]Condition, error) {
	children := make([]Condition, 0, len(items))
	var errs []error
	for i, item := range items {
		child, err := p.parse(item, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		children = append(children, child)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return children, nil
}

func (p conditionParser) parse(raw interface{}, path string) (Condition, error) {
	node, ok := raw.(map[string]interface{})
	if !ok {
		return nil, validationErr(path, "condition must be an object, got %s", kindOf(raw))
	}

	nodeType, _ := node["type"].(string)
	switch strings.ToLower(nodeType) {
	case "all", "any":
		var items []interface{}
		if rawChildren, present := node["children"]; present && rawChildren != nil {
			items, ok = rawChildren.([]interface{})
			if !ok {
				return nil, validationErr(path+".children", "must be a list")
			}
		}
		children, err := p.parseList(items, path+".children")
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(nodeType, "all") {
			return All{Children: children}, nil
		}
		return Any{Children: children}, nil

	case "not":
		rawChild, present := node["child"]
		if !present || rawChild == nil {
			return nil, validationErr(path, "not requires a child")
		}
		child, err := p.parse(rawChild, path+".child")
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil

	case "compare":
		return p.parseCompare(node, path)

	case "time":
		return p.parseTime(node, path)

	case "expr":
		expression, _ := node["expression"].(string)
		if strings.TrimSpace(expression) == "" {
			return nil, validationErr(path, "expr requires an expression")
		}
		if p.exprs == nil {
			return nil, validationErr(path, "expression conditions are not available")
		}
		if err := p.exprs.ValidateConditionExpression(expression); err != nil {
			return nil, validationErr(path, "%v", err)
		}
		return Expr{Expression: expression}, nil

	case "":
		return nil, validationErr(path, "condition type is required")

	default:
		return nil, validationErr(path, "unknown condition type %q", nodeType)
	}
}

func (p conditionParser) parseCompare(node map[string]interface{}, path string) (Condition, error) {
	opName, _ := node["op"].(string)
	op := CompareOp(strings.ToLower(opName))
	if !compareOps[op] {
		return nil, validationErr(path+".op", "unknown compare operator %q", opName)
	}

	rawLeft, present := node["left"]
	if !present {
		return nil, validationErr(path+".left", "is required")
	}
	left, err := parseOperand(rawLeft, path+".left")
	if err != nil {
		return nil, err
	}

	var right Operand
	if rawRight, present := node["right"]; present {
		right, err = parseOperand(rawRight, path+".right")
		if err != nil {
			return nil, err
		}
	} else if op != OpExists {
		return nil, validationErr(path+".right", "is required for %s", op)
	}

	return Compare{Left: left, Op: op, Right: right}, nil
}

func parseOperand(raw interface{}, path string) (Operand, error) {
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return Literal(raw), nil
	}

	if ref, present := obj["ref"]; present {
		refPath, ok := ref.(string)
		if !ok || strings.TrimSpace(refPath) == "" {
			return Operand{}, validationErr(path+".ref", "must be a non-empty string")
		}
		return Ref(refPath), nil
	}

	if value, present := obj["value"]; present && len(obj) == 1 {
		return Literal(value), nil
	}

	return Literal(obj), nil
}

func (p conditionParser) parseTime(node map[string]interface{}, path string) (Condition, error) {
	opName, _ := node["op"].(string)
	op := TimeOp(strings.ToLower(opName))
	if !timeOps[op] {
		return nil, validationErr(path+".op", "unknown time operator %q", opName)
	}

	cond := Time{Op: op, Value: node["value"]}

	if ref, present := node["ref"]; present {
		refPath, ok := ref.(string)
		if !ok || strings.TrimSpace(refPath) == "" {
			return nil, validationErr(path+".ref", "must be a non-empty string")
		}
		cond.Ref = refPath
	}

	if cond.Ref == "" && cond.Value != nil {
		if _, ok := parseTimestamp(cond.Value); !ok {
			return nil, validationErr(path+".value", "is not a timestamp")
		}
	}

	if rawHours, present := node["hours"]; present {
		hours, ok := toFloat(rawHours)
		if !ok {
			return nil, validationErr(path+".hours", "must be a number")
		}
		cond.Hours = hours
	}

	if tz, present := node["timezone"]; present {
		name, ok := tz.(string)
		if !ok {
			return nil, validationErr(path+".timezone", "must be a string")
		}
		if _, err := time.LoadLocation(name); err != nil {
			return nil, validationErr(path+".timezone", "unknown timezone %q", name)
		}
		cond.Timezone = name
	}

	switch op {
	case OpWithinHours:
		if cond.Hours <= 0 {
			return nil, validationErr(path+".hours", "must be positive for within_hours")
		}
		fallthrough
	case OpBefore, OpAfter:
		if cond.Ref == "" && cond.Value == nil {
			return nil, validationErr(path, "%s requires a ref or a value", op)
		}
	}

	return cond, nil
}

func kindOf(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case float64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}
