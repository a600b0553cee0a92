package rules

import (
	"github.com/rs/zerolog"
)

// Rule is one source line: an ordered conjunction of conditions and
// assignments. Entries evaluate left to right and the first false result
// short-circuits the remaining entries of this rule only.
type Rule struct {
	// File and Line locate the rule's source for diagnostics.
	File string
	Line int

	entries []Entry
}

// Append adds an entry to the rule.
func (r *Rule) Append(e Entry) {
	r.entries = append(r.entries, e)
}

// Len returns the number of entries.
func (r *Rule) Len() int {
	return len(r.entries)
}

// Exec evaluates the rule against the context. The context's debug flag
// logs the entry that failed and resets afterwards, whether it was set by
// this rule or a previous one.
func (r *Rule) Exec(ctx Context) {
	base := ctx.RulesBase()
	for _, e := range r.entries {
		if !e.Eval(ctx) {
			if base.Debug {
				base.Log.Debug().
					Str("file", r.File).
					Int("line", r.Line).
					Str("entry", e.String()).
					Msg("rule failed")
			}
			break
		}
	}
	base.Debug = false
}

// RuleSet is one loaded rule file: an ordered list of rules plus the
// label table GOTO jumps resolve against. Rule sets are immutable once
// parsed and safe to share across evaluations.
type RuleSet struct {
	// File is the source the rule set was parsed from.
	File string

	rules  []*Rule
	labels map[string]int
	log    zerolog.Logger
}

// NewRuleSet returns an empty rule set for the given source name.
func NewRuleSet(file string, logger zerolog.Logger) *RuleSet {
	return &RuleSet{
		File:   file,
		labels: make(map[string]int),
		log:    logger.With().Str("component", "ruleset").Str("file", file).Logger(),
	}
}

// Append adds a rule at the end of the set.
func (rs *RuleSet) Append(r *Rule) {
	rs.rules = append(rs.rules, r)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// AddLabel binds a label name to a rule index.
func (rs *RuleSet) AddLabel(name string, index int) {
	rs.labels[name] = index
}

// AddLabelHere binds a label name to the position after the last appended
// rule.
func (rs *RuleSet) AddLabelHere(name string) {
	rs.labels[name] = len(rs.rules)
}

// Exec runs the rule set against the context, starting at rule 0 and
// honoring goto jumps. An unresolvable goto label logs an error and
// aborts this evaluation; it never panics and never affects other events.
func (rs *RuleSet) Exec(ctx Context) {
	base := ctx.RulesBase()
	base.begin()

	for i := 0; i < len(rs.rules); {
		rule := rs.rules[i]
		rule.Exec(ctx)

		if base.finished() {
			return
		}

		if label, ok := base.takeGoto(); ok {
			target, ok := rs.labels[label]
			if !ok {
				rs.log.Error().
					Str("label", label).
					Str("event", base.EventID).
					Int("line", rule.Line).
					Msg("unknown goto label, aborting rule set")
				base.Aborted = true
				return
			}
			i = target
			continue
		}

		i++
	}
}
