// Package rules parses keyword rule rows and evaluates text against them.
package rules

// DefaultPriority is assigned to rows whose priority cell is not a number,
// so they sort after every numbered rule.
const DefaultPriority = 999

const (
	// MustDelimiter separates keywords that all have to be present.
	MustDelimiter = "&"
	// AnyDelimiter separates keywords of which one has to be present.
	AnyDelimiter = "|"
)

// Column layout of a rule row: priority, must spec, any spec, reply.
const (
	colPriority = iota
	colMust
	colAny
	colReply

	numColumns
)

// Rule is one parsed rule row. Rules are built by ParseRow and never
// modified afterwards.
type Rule struct {
	Priority int    // ascending, lower is checked first
	MustSpec string // raw conjunctive spec, e.g. "book&price"
	AnySpec  string // raw disjunctive spec, e.g. "hi|hello"
	Reply    string // sent verbatim on match

	// Row is the 1-based row number in the source table.
	Row int

	// Mode the keywords were normalized with; text is prepared the same way
	Mode Mode

	// Normalized keywords derived from the specs
	Must []string
	Any  []string
}

// Vacuous reports whether the rule has no keywords at all. Vacuous rules
// never match.
func (r Rule) Vacuous() bool {
	return len(r.Must) == 0 && len(r.Any) == 0
}
