package patch

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	perrors "github.com/HendryAvila/specpatch/internal/errors"
)

// Condition is a compiled 'when' precondition.
//
// The expression sees:
//
//	vars          map[string]string  merged configuration and set variables
//	document      string             the target document path
//	content       string             the live working copy
//	has(s)        bool               non-empty substring test on content
type Condition struct {
	source  string
	program *vm.Program
}

// conditionEnv builds the evaluation environment. It doubles as the type
// declaration used at compile time.
func conditionEnv(vars map[string]string, document, content string) map[string]any {
	if vars == nil {
		vars = map[string]string{}
	}
	return map[string]any{
		"vars":     vars,
		"document": document,
		"content":  content,
		"has":      func(s string) bool { return s != "" && strings.Contains(content, s) },
	}
}

// CompileCondition compiles a 'when' expression. It must yield a boolean.
func CompileCondition(source string) (*Condition, error) {
	program, err := expr.Compile(source, expr.Env(conditionEnv(nil, "", "")), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &Condition{source: source, program: program}, nil
}

// Eval runs the condition against a document's live content.
func (c *Condition) Eval(vars map[string]string, document, content string) (bool, error) {
	out, err := expr.Run(c.program, conditionEnv(vars, document, content))
	if err != nil {
		return false, fmt.Errorf("evaluating %q: %w", c.source, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("evaluating %q: got %T, want bool", c.source, out)
	}
	return ok, nil
}

// String returns the expression source.
func (c *Condition) String() string { return c.source }

// Conditions compiles every 'when' expression of a set, keyed by patch id.
func Conditions(s *Set) (map[string]*Condition, error) {
	conds := make(map[string]*Condition)
	for _, p := range s.Patches {
		if strings.TrimSpace(p.When) == "" {
			continue
		}
		c, err := CompileCondition(p.When)
		if err != nil {
			return nil, perrors.WrapWithDetails(perrors.EInvalidPatchSet,
				fmt.Sprintf("patch %q has an invalid 'when' expression", p.ID), err,
				map[string]string{"set": s.Label(), "patch": p.ID, "when": p.When})
		}
		conds[p.ID] = c
	}
	return conds, nil
}

func validateConditions(s *Set) error {
	_, err := Conditions(s)
	return err
}

// MergeVars layers set variables over defaults. Neither input is modified.
func MergeVars(defaults, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}
