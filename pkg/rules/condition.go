package rules

import (
	"fmt"
	"strings"

	"github.com/Orochimarufan/cdev/pkg/device"
)

// Entry is one condition or assignment within a rule. Eval reports
// whether rule execution continues to the next entry; by convention
// assignments always report true, so a rule only ever fails through its
// conditions. The boolean return is non-optional by construction: an
// entry cannot express "indeterminate".
type Entry interface {
	Eval(ctx Context) bool
	String() string
}

// Lvalue extracts a condition's left-hand value from a single device.
type Lvalue func(dev device.Device) (string, bool)

// Condition compares a value derived from the device against a rvalue
// compiled once at construction time.
type Condition struct {
	name    string
	op      *CompareOp
	rvalue  interface{}
	literal string
	lvalue  Lvalue
}

// NewCondition builds a condition, applying the operator's compile
// transform to the literal value.
func NewCondition(name string, op *CompareOp, value string, lvalue Lvalue) (*Condition, error) {
	rv, err := op.compileValue(value)
	if err != nil {
		return nil, err
	}
	return &Condition{name: name, op: op, rvalue: rv, literal: value, lvalue: lvalue}, nil
}

// Test evaluates the condition against one specific device.
func (c *Condition) Test(dev device.Device) bool {
	v, ok := c.lvalue(dev)
	return c.op.test(v, ok, c.rvalue)
}

// Eval implements Entry.
func (c *Condition) Eval(ctx Context) bool {
	return c.Test(ctx.RulesBase().Device)
}

// String implements Entry.
func (c *Condition) String() string {
	return fmt.Sprintf("%s%s%q", c.name, c.op.token, c.literal)
}

// HierarchyCondition matches when the device or any of its ancestors
// satisfies the wrapped condition. The walk stops at the root and guards
// against parent cycles by syspath.
type HierarchyCondition struct {
	cond *Condition
}

// NewHierarchyCondition wraps a single-device condition into an
// ancestor-walking one.
func NewHierarchyCondition(cond *Condition) *HierarchyCondition {
	return &HierarchyCondition{cond: cond}
}

// Eval implements Entry.
func (h *HierarchyCondition) Eval(ctx Context) bool {
	seen := make(map[string]struct{})
	dev := ctx.RulesBase().Device
	for dev != nil {
		if _, dup := seen[dev.Syspath()]; dup {
			return false
		}
		seen[dev.Syspath()] = struct{}{}

		if h.cond.Test(dev) {
			return true
		}

		parent, ok := dev.Parent()
		if !ok {
			return false
		}
		dev = parent
	}
	return false
}

// String implements Entry.
func (h *HierarchyCondition) String() string {
	return h.cond.String()
}

// ContextCondition compares a value taken from the execution context
// rather than from the device (the event action, for example).
type ContextCondition struct {
	name    string
	op      *CompareOp
	rvalue  interface{}
	literal string
	lvalue  func(ctx Context) (string, bool)
}

// NewContextCondition builds a condition over a context-derived lvalue.
func NewContextCondition(name string, op *CompareOp, value string, lvalue func(ctx Context) (string, bool)) (*ContextCondition, error) {
	rv, err := op.compileValue(value)
	if err != nil {
		return nil, err
	}
	return &ContextCondition{name: name, op: op, rvalue: rv, literal: value, lvalue: lvalue}, nil
}

// Eval implements Entry.
func (c *ContextCondition) Eval(ctx Context) bool {
	v, ok := c.lvalue(ctx)
	return c.op.test(v, ok, c.rvalue)
}

// String implements Entry.
func (c *ContextCondition) String() string {
	return fmt.Sprintf("%s%s%q", c.name, c.op.token, c.literal)
}

// ConditionFactory builds a condition entry from one parsed token. The
// parser wraps any error into a SyntaxError with the source position.
type ConditionFactory func(name, arg string, op *CompareOp, value string) (Entry, error)

// noArg fails when a condition that takes no argument got one.
func noArg(name, arg string) error {
	if arg != "" {
		return fmt.Errorf("condition %s takes no argument", name)
	}
	return nil
}

// needArg fails when a condition that requires an argument got none.
func needArg(name, arg string) error {
	if arg == "" {
		return fmt.Errorf("condition %s expects an argument", name)
	}
	return nil
}

func propertyLvalue(key string) Lvalue {
	return func(dev device.Device) (string, bool) { return dev.Property(key) }
}

func sysattrLvalue(name string) Lvalue {
	return func(dev device.Device) (string, bool) { return dev.Sysattr(name) }
}

func envLvalue(key string) Lvalue {
	return func(dev device.Device) (string, bool) { return dev.Env(key) }
}

// PropertyCondition matches a device property selected by the condition
// name itself (KERNEL, SUBSYSTEM, DRIVER).
func PropertyCondition(name, arg string, op *CompareOp, value string) (Entry, error) {
	if err := noArg(name, arg); err != nil {
		return nil, err
	}
	return NewCondition(name, op, value, propertyLvalue(name))
}

// PropertiesCondition is the hierarchy-walking variant of
// PropertyCondition; the trailing S of the name selects the property
// (KERNELS matches KERNEL on the device or any ancestor).
func PropertiesCondition(name, arg string, op *CompareOp, value string) (Entry, error) {
	if err := noArg(name, arg); err != nil {
		return nil, err
	}
	cond, err := NewCondition(name, op, value, propertyLvalue(strings.TrimSuffix(name, "S")))
	if err != nil {
		return nil, err
	}
	return NewHierarchyCondition(cond), nil
}

// AttrCondition matches the sysfs attribute named by the argument:
// ATTR{vendor}=="0x8086".
func AttrCondition(name, arg string, op *CompareOp, value string) (Entry, error) {
	if err := needArg(name, arg); err != nil {
		return nil, err
	}
	return NewCondition(name, op, value, sysattrLvalue(arg))
}

// AttrsCondition is the hierarchy-walking variant of AttrCondition.
func AttrsCondition(name, arg string, op *CompareOp, value string) (Entry, error) {
	if err := needArg(name, arg); err != nil {
		return nil, err
	}
	cond, err := NewCondition(name, op, value, sysattrLvalue(arg))
	if err != nil {
		return nil, err
	}
	return NewHierarchyCondition(cond), nil
}

// EnvCondition matches the device environment entry named by the
// argument: ENV{ID_MODEL}=="foo".
func EnvCondition(name, arg string, op *CompareOp, value string) (Entry, error) {
	if err := needArg(name, arg); err != nil {
		return nil, err
	}
	return NewCondition(name, op, value, envLvalue(arg))
}

// EnvsCondition is the hierarchy-walking variant of EnvCondition.
func EnvsCondition(name, arg string, op *CompareOp, value string) (Entry, error) {
	if err := needArg(name, arg); err != nil {
		return nil, err
	}
	cond, err := NewCondition(name, op, value, envLvalue(arg))
	if err != nil {
		return nil, err
	}
	return NewHierarchyCondition(cond), nil
}

// ActionCondition matches the event action ("add", "remove", ...), which
// lives on the context, not the device.
func ActionCondition(name, arg string, op *CompareOp, value string) (Entry, error) {
	if err := noArg(name, arg); err != nil {
		return nil, err
	}
	return NewContextCondition(name, op, value, func(ctx Context) (string, bool) {
		return ctx.RulesBase().Action, true
	})
}
