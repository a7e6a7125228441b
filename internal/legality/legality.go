// Package legality checks decoded records against boolean JavaScript
// expressions (goja). Every expression sees the record's fields as globals
// and must evaluate to true for the record to be legal.
package legality

import (
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// Builtin are the rules every record must satisfy.
var Builtin = []string{
	"species >= 1 && species <= 1025",
	"level >= 1 && level <= 100",
	"nickname.length <= 12 && trainerName.length <= 12",
	"heldItem < 2000",
}

// evalBudget bounds a single expression evaluation.
const evalBudget = 100 * time.Millisecond

// stopper is the part of *time.Timer that Check relies on.
type stopper interface {
	Stop() bool
}

// afterFunc arms the evaluation budget. Tests replace it to control when
// the interrupt lands.
var afterFunc = func(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}

// ErrIllegal is matched by every ViolationError.
var ErrIllegal = errors.New("illegal record")

// ViolationError reports the first rule a record failed.
type ViolationError struct {
	Expr string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("illegal record: rule %q not satisfied", e.Expr)
}

func (e *ViolationError) Unwrap() error {
	return ErrIllegal
}

type rule struct {
	expr string
	prog *goja.Program
}

// Rules is a compiled rule set. It is safe for concurrent use: each Check
// runs in its own VM.
type Rules struct {
	rules []rule
}

// Compile compiles the built-in rules followed by extra.
func Compile(extra ...string) (*Rules, error) {
	exprs := append(append([]string{}, Builtin...), extra...)
	rs := &Rules{rules: make([]rule, 0, len(exprs))}
	for i, expr := range exprs {
		prog, err := goja.Compile(fmt.Sprintf("rule[%d]", i), "("+expr+")", true)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", expr, err)
		}
		rs.rules = append(rs.rules, rule{expr: expr, prog: prog})
	}
	return rs, nil
}

// Len returns the number of compiled rules.
func (rs *Rules) Len() int {
	return len(rs.rules)
}

// Check evaluates every rule against fields. It returns a *ViolationError
// for the first rule that is false, or a plain error when a rule throws or
// does not produce a boolean.
func (rs *Rules) Check(fields map[string]any) error {
	vm := goja.New()
	for name, v := range fields {
		if err := vm.Set(name, v); err != nil {
			return fmt.Errorf("set %s: %w", name, err)
		}
	}

	for _, r := range rs.rules {
		fired := make(chan struct{})
		timer := afterFunc(evalBudget, func() {
			vm.Interrupt("evaluation budget exceeded")
			close(fired)
		})
		val, err := vm.RunProgram(r.prog)
		// A callback that already started must land before the flag is
		// cleared, or it would interrupt the next rule.
		if !timer.Stop() {
			<-fired
		}
		vm.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.expr, err)
		}

		ok, isBool := val.Export().(bool)
		if !isBool {
			return fmt.Errorf("rule %q: result is %T, want bool", r.expr, val.Export())
		}
		if !ok {
			return &ViolationError{Expr: r.expr}
		}
	}
	return nil
}
