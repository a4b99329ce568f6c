package cel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ContextVariables are the top-level names a condition expression can read.
// Each one is bound to a map; missing entities are bound to an empty map.
var ContextVariables = []string{
	"event",
	"payload",
	"job",
	"material",
	"contact",
	"appraisal",
	"listing",
	"report",
	"assignment",
}

type Evaluator struct {
	env      *cel.Env
	programs sync.Map // expression -> cel.Program
}

func NewEvaluator() (*Evaluator, error) {
	opts := make([]cel.EnvOption, 0, len(ContextVariables))
	for _, name := range ContextVariables {
		opts = append(opts, cel.Variable(name, cel.MapType(cel.StringType, cel.DynType)))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// ValidateConditionExpression compiles the expression and requires a bool
// result type. Successful compilations are cached for later evaluation.
func (e *Evaluator) ValidateConditionExpression(expression string) error {
	_, err := e.program(expression)
	return err
}

// EvaluateCondition runs a condition expression against vars. Variables
// missing from vars are bound to empty maps.
func (e *Evaluator) EvaluateCondition(ctx context.Context, expression string, vars map[string]interface{}) (bool, error) {
	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	activation := make(map[string]interface{}, len(ContextVariables))
	for _, name := range ContextVariables {
		if v, ok := vars[name].(map[string]interface{}); ok && v != nil {
			activation[name] = v
		} else {
			activation[name] = map[string]interface{}{}
		}
	}

	result, _, err := program.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (e *Evaluator) program(expression string) (cel.Program, error) {
	if cached, ok := e.programs.Load(expression); ok {
		return cached.(cel.Program), nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.programs.Store(expression, program)
	return program, nil
}
