package fnmatch

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
)

// PatternError describes a malformed glob expression. Column is the rune
// offset of the offending character, or the expression length when the
// expression ended prematurely.
type PatternError struct {
	Expr   string
	Column int
	Msg    string
}

// Error implements the error interface.
func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %s at column %d", e.Expr, e.Msg, e.Column)
}

// frameMode is the lexical mode of one translator stack frame.
type frameMode uint8

const (
	modeNormal frameMode = iota
	modeEscaped
	modeNegate
	modeCharGroup
	modeChoiceGroup
)

// frame is one entry of the translator state stack. The close* fields are
// the closing obligations appended to the output when the frame pops.
type frame struct {
	mode         frameMode
	closeParen   bool // append ")"
	closeBracket bool // append "]"
	anyFollows   bool // append ".*"; a lookahead consumes nothing
	greedy       bool // quantifiers in this scope stay greedy
	justOpened   bool // character group: no character consumed yet
}

// translator performs a single left-to-right scan over the expression,
// maintaining a stack of frames for the constructs that nest.
type translator struct {
	expr  string
	out   strings.Builder
	stack []frame

	// carets counts ^ characters seen but not yet bound to either a
	// following repetition operator or a negation scope.
	carets int
}

func newTranslator(expr string) *translator {
	t := &translator{expr: expr}
	t.stack = append(t.stack, frame{mode: modeNormal})
	t.out.WriteString("^(?:")
	return t
}

func (t *translator) top() *frame {
	return &t.stack[len(t.stack)-1]
}

func (t *translator) push(f frame) {
	t.stack = append(t.stack, f)
}

// pop removes the top frame and appends its closing obligations.
func (t *translator) pop() {
	f := t.top()
	t.stack = t.stack[:len(t.stack)-1]
	if f.closeParen {
		t.out.WriteByte(')')
	}
	if f.closeBracket {
		t.out.WriteByte(']')
	}
	if f.anyFollows {
		t.out.WriteString(".*")
	}
}

// bindCarets turns pending ^ characters into an open negation scope.
// ^^ (or more) makes the scope greedy.
func (t *translator) bindCarets() {
	if t.carets == 0 {
		return
	}
	t.push(frame{
		mode:       modeNegate,
		closeParen: true,
		anyFollows: true,
		greedy:     t.carets > 1,
	})
	t.out.WriteString("(?!")
	t.carets = 0
}

// closeNegations pops negation scopes off the top of the stack. Called at
// scope boundaries (",", "|", "}") and at the end of the expression.
func (t *translator) closeNegations() {
	for len(t.stack) > 1 && t.top().mode == modeNegate {
		t.pop()
	}
}

// greedySuffix appends the lazy "?" to a repetition operator unless some
// enclosing scope was opened greedy (^^).
func (t *translator) greedySuffix() {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i].greedy {
			return
		}
	}
	t.out.WriteByte('?')
}

func (t *translator) literal(c rune) {
	t.out.WriteString(escapeRune(c))
}

func (t *translator) errorf(column int, format string, args ...interface{}) error {
	return &PatternError{Expr: t.expr, Column: column, Msg: fmt.Sprintf(format, args...)}
}

func (t *translator) feed(c rune, column int) error {
	f := t.top()

	// Escapes consume exactly one character, everywhere.
	if f.mode == modeEscaped {
		if strings.ContainsRune("dDsSwWfnrtvx", c) {
			t.out.WriteByte('\\')
			t.out.WriteRune(c)
		} else {
			t.literal(c)
		}
		t.stack = t.stack[:len(t.stack)-1]
		// An escaped member counts as content of an enclosing character
		// group, so a following ^ or ] is no longer in first position.
		if top := t.top(); top.mode == modeCharGroup {
			top.justOpened = false
		}
		return nil
	}
	if c == '\\' {
		t.bindCarets()
		t.push(frame{mode: modeEscaped})
		return nil
	}

	// Character groups pass through with standard class syntax, so
	// ranges like [0-9] keep working. ] has no special meaning directly
	// after [ while ^ does.
	if f.mode == modeCharGroup {
		switch {
		case f.justOpened && c == '^':
			// Negation marker; [ or [^ still counts as just opened.
			t.out.WriteByte('^')
		case f.justOpened && c == ']':
			// Leading ] is a member, not a terminator. Escaped because
			// not every engine honors the POSIX first-position rule.
			t.out.WriteString(`\]`)
			f.justOpened = false
		case c == ']':
			t.pop()
		default:
			t.out.WriteRune(c)
			f.justOpened = false
		}
		return nil
	}

	switch c {
	case '^':
		t.carets++
		return nil

	case '*', '+', '?':
		if t.carets > 0 {
			// ^ directly before a repetition operator forces it greedy.
			t.carets = 0
			t.out.WriteByte('.')
			t.out.WriteRune(c)
			return nil
		}
		t.out.WriteByte('.')
		t.out.WriteRune(c)
		t.greedySuffix()
		return nil

	case '[':
		t.bindCarets()
		t.push(frame{mode: modeCharGroup, closeBracket: true, justOpened: true})
		t.out.WriteByte('[')
		return nil

	case ']':
		return t.errorf(column, "unbalanced brackets")

	case '{':
		t.bindCarets()
		t.push(frame{mode: modeChoiceGroup, closeParen: true})
		t.out.WriteString("(?:")
		return nil

	case '}':
		t.closeNegations()
		if t.top().mode != modeChoiceGroup {
			return t.errorf(column, "unbalanced braces")
		}
		t.pop()
		return nil

	case ',':
		t.closeNegations()
		if t.top().mode == modeChoiceGroup {
			t.out.WriteByte('|')
		} else {
			t.literal(',')
		}
		return nil

	case '|':
		t.closeNegations()
		if len(t.stack) == 1 || t.top().mode == modeChoiceGroup {
			t.out.WriteByte('|')
		} else {
			t.literal('|')
		}
		return nil

	default:
		t.bindCarets()
		t.literal(c)
		return nil
	}
}

func (t *translator) finish() (string, error) {
	end := len([]rune(t.expr))
	if t.carets > 0 {
		return "", t.errorf(end, "dangling ^")
	}
	t.closeNegations()
	if len(t.stack) != 1 {
		switch t.top().mode {
		case modeEscaped:
			return "", t.errorf(end, "trailing escape")
		case modeCharGroup:
			return "", t.errorf(end, "unbalanced brackets")
		default:
			return "", t.errorf(end, "unbalanced braces")
		}
	}
	t.out.WriteString(")$")
	return t.out.String(), nil
}

// escapeRune escapes a single rune for literal use in a regular expression.
func escapeRune(c rune) string {
	if strings.ContainsRune(`\.+*?()|[]{}^$-`, c) {
		return `\` + string(c)
	}
	return string(c)
}

// Translate compiles an extended glob expression into regular-expression
// source. The result is anchored at both ends: the entire candidate string
// must match.
func Translate(expr string) (string, error) {
	t := newTranslator(expr)
	column := 0
	for _, c := range expr {
		if err := t.feed(c, column); err != nil {
			return "", err
		}
		column++
	}
	return t.finish()
}

// Compile translates expr and compiles the result.
func Compile(expr string) (*regexp2.Regexp, error) {
	src, err := Translate(expr)
	if err != nil {
		return nil, err
	}
	re, err := regexp2.Compile(src, regexp2.None)
	if err != nil {
		// Translate produces well-formed sources; a compile failure
		// here is a translator defect, not bad user input.
		return nil, fmt.Errorf("compiling %q (from pattern %q): %w", src, expr, err)
	}
	return re, nil
}

// Match reports whether s matches the extended glob expression expr.
func Match(s, expr string) (bool, error) {
	re, err := Compile(expr)
	if err != nil {
		return false, err
	}
	ok, err := re.MatchString(s)
	if err != nil {
		return false, err
	}
	return ok, nil
}
