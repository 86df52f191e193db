package workflow

import (
	"regexp"
	"strings"
)

// placeholderPattern matches ${name} variable references.
var placeholderPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Condition is a minimal boolean expression evaluated against execution
// variables. The language is deliberately tiny: variable substitution plus
// a single string equality. No boolean operators, no numeric comparison.
// It gates branches; it is not a rules engine, and it should stay that way.
type Condition struct {
	// Expression is the condition text, e.g. "${env} == production"
	Expression string `yaml:"expression" json:"expression"`

	// Variables are condition-local bindings. They take precedence over
	// the execution context's variables during substitution.
	Variables map[string]string `yaml:"variables,omitempty" json:"variables,omitempty"`
}

// Evaluate resolves the condition against the given execution context.
//
// Resolution: every ${name} placeholder is substituted, first from the
// condition's own variables, then from the context's; unresolved
// placeholders stay as literal text. The substituted expression then
// evaluates as follows: literal "true"/"false" directly; exactly one "=="
// with non-empty operands as string equality of the trimmed sides;
// anything else as false.
func (c *Condition) Evaluate(ctx *ExecutionContext) bool {
	expr := c.substitute(ctx)

	switch strings.TrimSpace(expr) {
	case "true":
		return true
	case "false":
		return false
	}

	parts := strings.Split(expr, "==")
	if len(parts) == 2 {
		lhs := strings.TrimSpace(parts[0])
		rhs := strings.TrimSpace(parts[1])
		if lhs != "" && rhs != "" {
			return lhs == rhs
		}
	}

	return false
}

// substitute replaces ${name} placeholders in the expression.
func (c *Condition) substitute(ctx *ExecutionContext) string {
	return placeholderPattern.ReplaceAllStringFunc(c.Expression, func(match string) string {
		name := match[2 : len(match)-1]
		if v, ok := c.Variables[name]; ok {
			return v
		}
		if ctx != nil {
			if v, ok := ctx.Variables[name]; ok {
				return v
			}
		}
		return match
	})
}

// clone returns a deep copy of the condition.
func (c Condition) clone() Condition {
	out := Condition{Expression: c.Expression}
	if c.Variables != nil {
		out.Variables = make(map[string]string, len(c.Variables))
		for k, v := range c.Variables {
			out.Variables[k] = v
		}
	}
	return out
}
