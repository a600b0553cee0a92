// Package rules implements the udev-compatible rule engine: the operator
// table, the condition/assignment framework, rule and rule-set execution,
// and the preset registry with its rule-file parser.
//
// A rule file is line oriented. Each non-empty, non-comment line is one
// rule: a comma-separated conjunction of conditions and assignments,
// each of the shape
//
//	NAME{optional-argument}OPERATOR"quoted value"
//
// Conditions compare a value derived from the device (or from the device
// and its ancestors) against the quoted value; assignments mutate the
// execution context or the device. Entries evaluate left to right and the
// first false condition short-circuits the rest of the line. Rule sets
// execute rules in file order, with GOTO-based jumps to labels and the
// reserved GOTO="_EOF_" terminator.
//
// Which names are available is decided by a Preset: an immutable mapping
// from names to condition/assignment factories, shared across one rule
// file. Domain packages extend the base preset with their own names; the
// engine itself never special-cases any of them. Rvalues are compiled
// once at parse time (glob patterns and regular expressions included), so
// evaluating a rule set against an event allocates next to nothing.
package rules
