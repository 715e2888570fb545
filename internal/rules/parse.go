package rules

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrShortRow is returned for rows with fewer than the four rule columns.
	ErrShortRow = errors.New("row has too few columns")
	// ErrEmptyReply is returned for rows whose reply cell is blank.
	ErrEmptyReply = errors.New("row has an empty reply")
)

// RowError describes a row that was skipped while parsing a table.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Parser turns raw rows into rules. The zero value lower-cases keywords
// only.
type Parser struct {
	Mode Mode
}

// ParseRow parses one row with the zero Parser.
func ParseRow(row int, cells []string) (Rule, error) {
	return Parser{}.ParseRow(row, cells)
}

// ParseRows parses a table with the zero Parser.
func ParseRows(rows [][]string) ([]Rule, []RowError) {
	return Parser{}.ParseRows(rows)
}

// ParseRow builds a Rule from a raw row. row is the 1-based row number used
// for reporting. A non-numeric priority is not an error; it falls back to
// DefaultPriority.
func (p Parser) ParseRow(row int, cells []string) (Rule, error) {
	if len(cells) < numColumns {
		return Rule{}, ErrShortRow
	}

	reply := cells[colReply]
	if strings.TrimSpace(reply) == "" {
		return Rule{}, ErrEmptyReply
	}

	priority, err := strconv.Atoi(strings.TrimSpace(cells[colPriority]))
	if err != nil {
		priority = DefaultPriority
	}

	return Rule{
		Priority: priority,
		MustSpec: cells[colMust],
		AnySpec:  cells[colAny],
		Reply:    reply,
		Row:      row,
		Mode:     p.Mode,
		Must:     p.splitKeywords(cells[colMust], MustDelimiter),
		Any:      p.splitKeywords(cells[colAny], AnyDelimiter),
	}, nil
}

// ParseRows parses a fetched table. The first row is the header and is
// skipped. Rows that cannot be used are reported in the returned RowErrors
// and left out; they never abort the rest of the table. The rules are sorted
// by priority, keeping source order for equal priorities.
func (p Parser) ParseRows(rows [][]string) ([]Rule, []RowError) {
	if len(rows) <= 1 {
		return []Rule{}, nil
	}

	parsed := make([]Rule, 0, len(rows)-1)
	var skipped []RowError

	for i, cells := range rows[1:] {
		rowNum := i + 2
		rule, err := p.ParseRow(rowNum, cells)
		if err != nil {
			skipped = append(skipped, RowError{Row: rowNum, Err: err})
			continue
		}
		parsed = append(parsed, rule)
	}

	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].Priority < parsed[j].Priority
	})

	return parsed, skipped
}

// splitKeywords splits spec on sep, trims and normalizes every part and
// drops empties.
func (p Parser) splitKeywords(spec, sep string) []string {
	var keywords []string
	for _, part := range strings.Split(spec, sep) {
		kw := strings.TrimSpace(p.Mode.Normalize(part))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return keywords
}
