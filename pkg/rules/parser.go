package rules

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// tokenExpr parses one condition/assignment token:
// NAME{optional-argument}OPERATOR"quoted value". Longer operator tokens
// come first so the leftmost alternative wins. Names must not include
// `-`, or TAG-="x" would tokenize as the name TAG- instead of the
// subtract operator.
var tokenExpr = regexp.MustCompile(
	`^\s*([a-zA-Z_][a-zA-Z0-9_]*)` +
		`(?:\{([a-zA-Z_][a-zA-Z0-9_\-:.;+#/]*)\})?` +
		`\s*(===|!==|==|!=|~=|!~|\+=|-=|=)\s*` +
		`"([^"]*)"\s*$`)

// ParseFile parses a rule file into a rule set using this preset's
// names.
func (p *Preset) ParseFile(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening rule file: %w", err)
	}
	defer f.Close()
	return p.Parse(f, path)
}

// Parse parses rule-file text from r. name is used as the rule set's
// source file in diagnostics.
func (p *Preset) Parse(r io.Reader, name string) (*RuleSet, error) {
	ruleset := NewRuleSet(name, p.log)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		rule := &Rule{File: name, Line: lineno}
		for _, token := range splitTokens(line) {
			entry, err := p.parseToken(token)
			if err != nil {
				if se, ok := AsSyntaxError(err); ok {
					se.File, se.Line, se.Text = name, lineno, line
					return nil, se
				}
				return nil, &SyntaxError{File: name, Line: lineno, Text: line, Err: err}
			}
			rule.Append(entry)
		}

		if rule.Len() > 0 {
			ruleset.Append(rule)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}

	p.log.Debug().
		Str("file", name).
		Int("rules", ruleset.Len()).
		Msg("rule file parsed")
	return ruleset, nil
}

// splitTokens splits a rule line on top-level commas. Commas inside the
// quoted value belong to the value (glob alternation uses them).
func splitTokens(line string) []string {
	var tokens []string
	start := 0
	quoted := false
	for i, c := range line {
		switch c {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				tokens = append(tokens, line[start:i])
				start = i + 1
			}
		}
	}
	return append(tokens, line[start:])
}

// parseToken resolves one token against the preset's name maps and
// builds the entry.
func (p *Preset) parseToken(token string) (Entry, error) {
	m := tokenExpr.FindStringSubmatch(token)
	if m == nil {
		return nil, &SyntaxError{Msg: fmt.Sprintf("invalid syntax in %q", strings.TrimSpace(token))}
	}
	name, arg, opToken, value := m[1], m[2], m[3], m[4]

	op := operators[opToken]

	if op.isAssign() {
		// LABEL declarations are parsed but not supported; the label
		// table is only populated through the programmatic API.
		if name == "LABEL" {
			return nil, &SyntaxError{Msg: "LABEL is not supported in this version"}
		}

		factory, ok := p.assignments[name]
		if !ok {
			if _, isCond := p.conditions[name]; isCond {
				return nil, &SyntaxError{Msg: fmt.Sprintf("cannot assign to %s", name)}
			}
			return nil, &SyntaxError{Msg: fmt.Sprintf("unknown name: %s", name)}
		}
		return factory(name, arg, op.assign, value)
	}

	factory, ok := p.conditions[name]
	if !ok {
		if _, isAssign := p.assignments[name]; isAssign {
			return nil, &SyntaxError{Msg: fmt.Sprintf("cannot read %s", name)}
		}
		return nil, &SyntaxError{Msg: fmt.Sprintf("unknown name: %s", name)}
	}
	return factory(name, arg, op.compare, value)
}
