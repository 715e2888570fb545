package rules

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Mode selects how keywords and incoming text are prepared before the
// substring comparison. A rule keeps the mode it was parsed with and text is
// prepared the same way when it is evaluated.
type Mode int

const (
	// ModeLower only lower-cases. "ﬁle" does not contain "fi".
	ModeLower Mode = iota
	// ModeFold also applies Unicode NFKC and turns Unicode spaces into plain
	// spaces, so full-width forms and ligatures compare equal to ASCII.
	ModeFold
)

func (m Mode) String() string {
	if m == ModeFold {
		return "fold"
	}
	return "lower"
}

// Normalize prepares text for keyword comparison under m.
func (m Mode) Normalize(text string) string {
	if m == ModeFold {
		return foldUnicode(text)
	}
	return strings.ToLower(text)
}

func foldUnicode(text string) string {
	text = norm.NFKC.String(text)

	text = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, text)

	return strings.ToLower(text)
}
