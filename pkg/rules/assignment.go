package rules

import (
	"fmt"

	"github.com/Orochimarufan/cdev/pkg/device"
)

// ValueTransform converts an assignment's quoted literal at parse time.
// A nil transform keeps the string as is. Transform failures are rule
// syntax errors (the MODE value not being octal, for example).
type ValueTransform func(value string) (interface{}, error)

// Apply applies an assignment's pre-transformed value to the execution
// context.
type Apply func(ctx Context, value interface{})

// ParamApply is Apply for parameterized assignments, which additionally
// carry the key from the token argument (the KEY of ENV{KEY}="value").
type ParamApply func(ctx Context, key string, value interface{})

// AssignmentFactory builds an assignment entry from one parsed token.
// The parser wraps any error into a SyntaxError with the source position.
type AssignmentFactory func(name, arg string, op AssignOp, value string) (Entry, error)

func transformValue(transform ValueTransform, value string) (interface{}, error) {
	if transform == nil {
		return value, nil
	}
	return transform(value)
}

// assignment is the common runtime shape of non-set assignments: by the
// time it exists, the operator has been resolved to one concrete apply
// hook, and the value has been through its transform.
type assignment struct {
	name    string
	op      AssignOp
	literal string
	value   interface{}
	apply   Apply
}

// Eval implements Entry. Assignments always continue the rule.
func (a *assignment) Eval(ctx Context) bool {
	a.apply(ctx, a.value)
	return true
}

// String implements Entry.
func (a *assignment) String() string {
	return fmt.Sprintf("%s%s%q", a.name, a.op, a.literal)
}

// SimpleAssignment returns a factory for a name that only admits "=" and
// takes no argument.
func SimpleAssignment(transform ValueTransform, apply Apply) AssignmentFactory {
	return func(name, arg string, op AssignOp, value string) (Entry, error) {
		if op != OpAssign {
			return nil, fmt.Errorf("can only assign (=) to %s", name)
		}
		if arg != "" {
			return nil, fmt.Errorf("assignment to %s takes no argument", name)
		}
		v, err := transformValue(transform, value)
		if err != nil {
			return nil, err
		}
		return &assignment{name: name, op: op, literal: value, value: v, apply: apply}, nil
	}
}

// ParamSimpleAssignment returns a factory for a name that only admits "="
// and requires an argument (ENV{KEY}="value").
func ParamSimpleAssignment(transform ValueTransform, apply ParamApply) AssignmentFactory {
	return func(name, arg string, op AssignOp, value string) (Entry, error) {
		if op != OpAssign {
			return nil, fmt.Errorf("can only assign (=) to %s", name)
		}
		if arg == "" {
			return nil, fmt.Errorf("assignment to %s requires an argument", name)
		}
		v, err := transformValue(transform, value)
		if err != nil {
			return nil, err
		}
		key := arg
		return &assignment{name: name, op: op, literal: value, value: v, apply: func(ctx Context, value interface{}) {
			apply(ctx, key, value)
		}}, nil
	}
}

// Hooks carries the per-operator behaviors of an operator-bearing
// assignment. A nil hook makes the corresponding operator a parse error
// for that name.
type Hooks struct {
	Assign   Apply // =
	Extend   Apply // +=
	Subtract Apply // -=
}

func (h Hooks) resolve(name string, op AssignOp) (Apply, error) {
	var apply Apply
	switch op {
	case OpAssign:
		apply = h.Assign
	case OpExtend:
		apply = h.Extend
	case OpSubtract:
		apply = h.Subtract
	}
	if apply == nil {
		return nil, fmt.Errorf("%s does not support the %s operator", name, op)
	}
	return apply, nil
}

// OpAssignment returns a factory dispatching "=", "+=" and "-=" to the
// given hooks. The assignment takes no argument.
func OpAssignment(transform ValueTransform, hooks Hooks) AssignmentFactory {
	return func(name, arg string, op AssignOp, value string) (Entry, error) {
		if arg != "" {
			return nil, fmt.Errorf("assignment to %s takes no argument", name)
		}
		apply, err := hooks.resolve(name, op)
		if err != nil {
			return nil, err
		}
		v, err := transformValue(transform, value)
		if err != nil {
			return nil, err
		}
		return &assignment{name: name, op: op, literal: value, value: v, apply: apply}, nil
	}
}

// ParamHooks is Hooks for parameterized assignments.
type ParamHooks struct {
	Assign   ParamApply
	Extend   ParamApply
	Subtract ParamApply
}

// ParamOpAssignment is OpAssignment for names that require an argument.
func ParamOpAssignment(transform ValueTransform, hooks ParamHooks) AssignmentFactory {
	return func(name, arg string, op AssignOp, value string) (Entry, error) {
		if arg == "" {
			return nil, fmt.Errorf("assignment to %s requires an argument", name)
		}
		var apply ParamApply
		switch op {
		case OpAssign:
			apply = hooks.Assign
		case OpExtend:
			apply = hooks.Extend
		case OpSubtract:
			apply = hooks.Subtract
		}
		if apply == nil {
			return nil, fmt.Errorf("%s does not support the %s operator", name, op)
		}
		v, err := transformValue(transform, value)
		if err != nil {
			return nil, err
		}
		key := arg
		return &assignment{name: name, op: op, literal: value, value: v, apply: func(ctx Context, value interface{}) {
			apply(ctx, key, value)
		}}, nil
	}
}

// SetTransform converts a set assignment's literal at parse time; set
// members are always strings.
type SetTransform func(value string) (string, error)

// setAssignment operates on a named string set: "=" clears the set then
// adds, "+=" adds, "-=" removes.
type setAssignment struct {
	name   string
	op     AssignOp
	value  string
	getSet func(ctx Context) *device.StringSet
}

// Eval implements Entry.
func (a *setAssignment) Eval(ctx Context) bool {
	set := a.getSet(ctx)
	switch a.op {
	case OpAssign:
		set.Clear()
		set.Add(a.value)
	case OpExtend:
		set.Add(a.value)
	case OpSubtract:
		set.Remove(a.value)
	}
	return true
}

// String implements Entry.
func (a *setAssignment) String() string {
	return fmt.Sprintf("%s%s%q", a.name, a.op, a.value)
}

// SetAssignment returns a factory for assignments over a named string
// set (tags, symlinks, the forward set).
func SetAssignment(transform SetTransform, getSet func(ctx Context) *device.StringSet) AssignmentFactory {
	return func(name, arg string, op AssignOp, value string) (Entry, error) {
		if arg != "" {
			return nil, fmt.Errorf("assignment to %s takes no argument", name)
		}
		v := value
		if transform != nil {
			var err error
			if v, err = transform(value); err != nil {
				return nil, err
			}
		}
		return &setAssignment{name: name, op: op, value: v, getSet: getSet}, nil
	}
}

// EndRulesetLabel ends rule-set processing when assigned to GOTO.
const EndRulesetLabel = "_EOF_"

// GotoAssignment jumps to a label, or ends the rule set for the reserved
// EndRulesetLabel value.
var GotoAssignment = SimpleAssignment(nil, func(ctx Context, value interface{}) {
	label := value.(string)
	if label == EndRulesetLabel {
		ctx.RulesBase().EndRuleSet()
	} else {
		ctx.RulesBase().Goto(label)
	}
})

// DebugAssignment toggles per-rule debug logging: _DEBUG="1".
var DebugAssignment = SimpleAssignment(
	func(value string) (interface{}, error) { return value == "1", nil },
	func(ctx Context, value interface{}) { ctx.RulesBase().Debug = value.(bool) },
)
