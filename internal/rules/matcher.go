package rules

import "strings"

// Matches reports whether text satisfies the rule once prepared with the
// rule's Mode:
//   - must and any: every must keyword and at least one any keyword
//   - must only: every must keyword
//   - any only: at least one any keyword
//   - neither: never
//
// Keywords match as substrings, so a short keyword can match inside a
// longer word.
func (r Rule) Matches(text string) bool {
	return r.matchNormalized(r.Mode.Normalize(text))
}

func (r Rule) matchNormalized(normalized string) bool {
	if r.Vacuous() {
		return false
	}
	for _, kw := range r.Must {
		if !strings.Contains(normalized, kw) {
			return false
		}
	}
	if len(r.Any) == 0 {
		return true
	}
	for _, kw := range r.Any {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// FirstMatch returns the first rule in rules that matches text. rules are
// expected in evaluation order, as returned by ParseRows.
func FirstMatch(text string, rules []Rule) (Rule, bool) {
	// text prepared once per mode in use
	var prepared [ModeFold + 1]string
	var done [ModeFold + 1]bool

	for _, r := range rules {
		m := r.Mode
		if m < ModeLower || m > ModeFold {
			m = ModeLower
		}
		if !done[m] {
			prepared[m] = m.Normalize(text)
			done[m] = true
		}
		if r.matchNormalized(prepared[m]) {
			return r, true
		}
	}
	return Rule{}, false
}

// Evaluate returns the reply of the first matching rule. ok is false when no
// rule matches.
func Evaluate(text string, rules []Rule) (reply string, ok bool) {
	r, ok := FirstMatch(text, rules)
	if !ok {
		return "", false
	}
	return r.Reply, true
}
