// Package cel provides a CEL-based access rule evaluator.
package cel

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/celestine-app/celestine/internal/domain/access"
)

// maxExpressionLength is the maximum allowed length for rule expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit per evaluation.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// Evaluator compiles and evaluates CEL expressions for access rules.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an evaluator with the access rule environment.
// Rules see two variables: user{id, tier} and content{type, topic, premium}.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("content", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a rule expression, returning a compiled
// program. Safety limits reject oversized or deeply nested expressions.
func (e *Evaluator) Compile(expression string) (access.Program, error) {
	if expression == "" {
		return nil, errors.New("expression is empty")
	}
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)",
			len(expression), maxExpressionLength)
	}
	if err := validateNesting(expression); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must evaluate to bool, got %v", ast.OutputType())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &program{prg: prg}, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// program wraps a compiled cel.Program behind the access.Program port.
type program struct {
	prg cel.Program
}

// Eval runs the program against one evaluation input.
func (p *program) Eval(in access.Input) (bool, error) {
	out, _, err := p.prg.Eval(map[string]any{
		"user":    in.User,
		"content": in.Content,
	})
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, want bool", out.Value())
	}
	return result, nil
}

// Compile-time check that Evaluator implements the gate's compiler port.
var _ access.Compiler = (*Evaluator)(nil)
