package report

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// DefaultOverdueRule flags bowls that have been out for more than a week.
const DefaultOverdueRule = "days > 7"

// Rule is a compiled boolean expression over one export row.
//
// Variables: days (int), dish, company, customer, operator and status
// (strings).
type Rule struct {
	src     string
	program *exprvm.Program
}

// ruleEnv is the type-checking environment. Values are placeholders.
func ruleEnv() map[string]any {
	return map[string]any{
		"days":     0,
		"dish":     "",
		"company":  "",
		"customer": "",
		"operator": "",
		"status":   "",
	}
}

// CompileRule compiles src. An empty src compiles DefaultOverdueRule.
func CompileRule(src string) (*Rule, error) {
	if src == "" {
		src = DefaultOverdueRule
	}
	program, err := exprlang.Compile(src, exprlang.Env(ruleEnv()), exprlang.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile overdue rule %q: %w", src, err)
	}
	return &Rule{src: src, program: program}, nil
}

// MustCompileRule is CompileRule for constant expressions.
func MustCompileRule(src string) *Rule {
	r, err := CompileRule(src)
	if err != nil {
		panic(err)
	}
	return r
}

// String returns the source expression.
func (r *Rule) String() string {
	return r.src
}

// Match evaluates the rule against row.
func (r *Rule) Match(row Row) (bool, error) {
	env := map[string]any{
		"days":     row.Days,
		"dish":     row.Dish,
		"company":  row.Company,
		"customer": row.Customer,
		"operator": row.Operator,
		"status":   string(row.Status),
	}
	out, err := exprlang.Run(r.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate overdue rule %q: %w", r.src, err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("overdue rule %q returned %T", r.src, out)
	}
	return b, nil
}
