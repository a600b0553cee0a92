package rules

import (
	"fmt"

	"github.com/dlclark/regexp2"

	"github.com/Orochimarufan/cdev/pkg/fnmatch"
)

// CompareOp is a comparison operator: a pure test between the lvalue
// extracted from a device and a right-hand value. Operators with a
// compile transform apply it to the literal rvalue once at parse time,
// never during evaluation.
//
// Absence follows one convention throughout: an absent lvalue never
// satisfies a positive operator and always satisfies a negative one.
type CompareOp struct {
	token   string
	compile func(value string) (interface{}, error)
	test    func(lvalue string, present bool, rvalue interface{}) bool
}

// Token returns the operator's source spelling.
func (op *CompareOp) Token() string { return op.token }

// Compile applies the operator's parse-time transform to a literal
// rvalue (glob or regex compilation for the matching operators).
func (op *CompareOp) Compile(value string) (interface{}, error) {
	return op.compileValue(value)
}

// Test applies the operator to an extracted lvalue. present is false
// when the lvalue is absent; absent values never satisfy positive
// operators and always satisfy negative ones.
func (op *CompareOp) Test(lvalue string, present bool, rvalue interface{}) bool {
	return op.test(lvalue, present, rvalue)
}

func (op *CompareOp) compileValue(value string) (interface{}, error) {
	if op.compile == nil {
		return value, nil
	}
	return op.compile(value)
}

// AssignOp selects the behavior of an assignment entry.
type AssignOp uint8

const (
	// OpAssign is "=": replace.
	OpAssign AssignOp = iota + 1
	// OpExtend is "+=": add.
	OpExtend
	// OpSubtract is "-=": remove.
	OpSubtract
)

// String returns the operator's source spelling.
func (op AssignOp) String() string {
	switch op {
	case OpAssign:
		return "="
	case OpExtend:
		return "+="
	case OpSubtract:
		return "-="
	default:
		return fmt.Sprintf("AssignOp(%d)", uint8(op))
	}
}

// The comparison operators. == and != compile their rvalue with the
// extended glob language; ~= and !~ with plain regular expressions;
// === and !== compare exact strings with no compile step.
var (
	OpEquals = &CompareOp{
		token: "===",
		test: func(lv string, ok bool, rv interface{}) bool {
			return ok && lv == rv.(string)
		},
	}

	OpNotEquals = &CompareOp{
		token: "!==",
		test: func(lv string, ok bool, rv interface{}) bool {
			return !ok || lv != rv.(string)
		},
	}

	OpMatches = &CompareOp{
		token:   "==",
		compile: compileGlob,
		test: func(lv string, ok bool, rv interface{}) bool {
			return ok && reMatch(rv.(*regexp2.Regexp), lv)
		},
	}

	OpNotMatches = &CompareOp{
		token:   "!=",
		compile: compileGlob,
		test: func(lv string, ok bool, rv interface{}) bool {
			return !ok || !reMatch(rv.(*regexp2.Regexp), lv)
		},
	}

	OpReMatches = &CompareOp{
		token:   "~=",
		compile: compileRegexp,
		test: func(lv string, ok bool, rv interface{}) bool {
			return ok && reMatch(rv.(*regexp2.Regexp), lv)
		},
	}

	OpNotReMatches = &CompareOp{
		token:   "!~",
		compile: compileRegexp,
		test: func(lv string, ok bool, rv interface{}) bool {
			return !ok || !reMatch(rv.(*regexp2.Regexp), lv)
		},
	}
)

func compileGlob(value string) (interface{}, error) {
	return fnmatch.Compile(value)
}

func compileRegexp(value string) (interface{}, error) {
	re, err := regexp2.Compile(value, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid regular expression %q: %w", value, err)
	}
	return re, nil
}

// reMatch runs a pre-compiled pattern against a candidate. regexp2 can
// only fail on match timeouts, which are not configured here.
func reMatch(re *regexp2.Regexp, s string) bool {
	ok, err := re.MatchString(s)
	return err == nil && ok
}

// opSpec resolves an operator token to either an assignment operator or
// a comparison operator; the two sets are disjoint.
type opSpec struct {
	assign  AssignOp
	compare *CompareOp
}

func (s opSpec) isAssign() bool { return s.assign != 0 }

// operators maps every operator token the rule grammar knows.
var operators = map[string]opSpec{
	"=":  {assign: OpAssign},
	"+=": {assign: OpExtend},
	"-=": {assign: OpSubtract},

	"===": {compare: OpEquals},
	"!==": {compare: OpNotEquals},

	"==": {compare: OpMatches},
	"!=": {compare: OpNotMatches},

	"~=": {compare: OpReMatches},
	"!~": {compare: OpNotReMatches},
}
