package eligibility

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

var (
	ErrInvalidRuleExpr = errors.New("invalid content rule expression")
	ErrRuleEvaluation  = errors.New("content rule evaluation failed")
)

// CustomRule is an operator-supplied CEL expression. When it evaluates to
// true the message is blocked.
//
// Available variables: text (string), length (int, characters),
// urls (list of string) and domains (list of string). The CEL strings
// extension is loaded (lowerAscii, split, ...).
type CustomRule struct {
	Name string `json:"name"`
	Expr string `json:"expr"`
}

type compiledRule struct {
	name string
	prg  cel.Program
}

func newRuleEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("text", cel.StringType),
		cel.Variable("length", cel.IntType),
		cel.Variable("urls", cel.ListType(cel.StringType)),
		cel.Variable("domains", cel.ListType(cel.StringType)),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL environment: %w", err)
	}
	return env, nil
}

func compileRules(rules []CustomRule) ([]compiledRule, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	env, err := newRuleEnv()
	if err != nil {
		return nil, err
	}
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		name := r.Name
		if name == "" {
			name = fmt.Sprintf("rule[%d]", i)
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("%s: %w: %w", name, ErrInvalidRuleExpr, issues.Err())
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, fmt.Errorf("%s: %w: expression must return bool, got %s", name, ErrInvalidRuleExpr, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("%s: creating program: %w", name, err)
		}
		out = append(out, compiledRule{name: name, prg: prg})
	}
	return out, nil
}

func (r compiledRule) eval(text string, length int, urls, domains []string) (bool, error) {
	if urls == nil {
		urls = []string{}
	}
	if domains == nil {
		domains = []string{}
	}
	res, _, err := r.prg.Eval(map[string]any{
		"text":    text,
		"length":  int64(length),
		"urls":    urls,
		"domains": domains,
	})
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrRuleEvaluation, err)
	}
	hit, ok := res.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: rule did not return boolean", ErrRuleEvaluation)
	}
	return hit, nil
}
