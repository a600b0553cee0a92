// Package fnmatch compiles extended glob expressions into regular
// expressions.
//
// Recognized constructs:
//
//	a|b       at the top level, either a or b
//	*         any character, zero or more occurrences, non-greedy
//	+         any character, one or more occurrences, non-greedy
//	?         any character, at most one occurrence, non-greedy
//	{a,b,...} either a or b (or ...), each an arbitrary sub-expression
//	{a|b|...} same as {a,b,...}
//	[...]     character group
//	[^...]    negative character group, "all characters but ..."
//	^x        before *, + or ? it makes that operator greedy; otherwise
//	          it means "anything but x" (non-greedy)
//	^^x       greedy variant of the second meaning of ^x
//	\x        remove any special meaning from x
//
// Unlike real (Bourne-)shell globbing this compiles down to a single
// regular expression. Matching "{a,b}*" against ["a.txt", "d.txt"]
// therefore yields ["a.txt"], not independent expansions per branch.
// In most cases this is the desirable outcome anyway.
//
// The emitted source uses negative lookahead and lazy quantifiers and is
// compiled with github.com/dlclark/regexp2; the standard library regexp
// package cannot express the negation constructs.
package fnmatch
