package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var header = []string{"priority", "must", "any", "reply"}

func TestParseRow(t *testing.T) {
	r, err := ParseRow(2, []string{" 3 ", "Book & PRICE", "hi| hello ||", "Ask sales."})
	require.NoError(t, err)

	assert.Equal(t, 3, r.Priority)
	assert.Equal(t, 2, r.Row)
	assert.Equal(t, []string{"book", "price"}, r.Must)
	assert.Equal(t, []string{"hi", "hello"}, r.Any)
	assert.Equal(t, "Book & PRICE", r.MustSpec)
	assert.Equal(t, "Ask sales.", r.Reply)
}

func TestParseRowErrors(t *testing.T) {
	tests := []struct {
		name  string
		cells []string
		want  error
	}{
		{"empty row", nil, ErrShortRow},
		{"three columns", []string{"1", "a", "b"}, ErrShortRow},
		{"blank reply", []string{"1", "a", "b", "   "}, ErrEmptyReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRow(2, tt.cells)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseRowBadPriority(t *testing.T) {
	r, err := ParseRow(5, []string{"abc", "", "x", "reply"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPriority, r.Priority)
}

func TestParseRowCommaIsNotAnyDelimiter(t *testing.T) {
	r, err := ParseRow(2, []string{"1", "", "a,b", "reply"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a,b"}, r.Any)
}

func TestParseRowsSortsAndSkips(t *testing.T) {
	rows := [][]string{
		header,
		{"abc", "", "late", "malformed priority"},
		{"2", "", "b", "second"},
		{"1", "", "a", "first"},
		{"2", "", "c", "second again"},
		{"1", "only", "two"},
		{"4", "", "d", ""},
	}

	got, skipped := ParseRows(rows)

	replies := make([]string, 0, len(got))
	for _, r := range got {
		replies = append(replies, r.Reply)
	}
	assert.Equal(t, []string{"first", "second", "second again", "malformed priority"}, replies)
	assert.Equal(t, DefaultPriority, got[3].Priority)
	assert.Equal(t, 2, got[3].Row)

	require.Len(t, skipped, 2)
	assert.Equal(t, 6, skipped[0].Row)
	assert.True(t, errors.Is(skipped[0], ErrShortRow))
	assert.Equal(t, 7, skipped[1].Row)
	assert.True(t, errors.Is(skipped[1], ErrEmptyReply))
	assert.Contains(t, skipped[0].Error(), "row 6")
}

func TestParseRowsHeaderOnly(t *testing.T) {
	got, skipped := ParseRows([][]string{header})
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Empty(t, skipped)

	got, _ = ParseRows(nil)
	assert.Empty(t, got)
}

func TestNormalizeLower(t *testing.T) {
	assert.Equal(t, "  hello　world ", ModeLower.Normalize("  HeLLo　World "))
	assert.Equal(t, "ａｂｃ１２３", ModeLower.Normalize("ＡＢＣ１２３"))
	assert.Equal(t, "ﬁle", ModeLower.Normalize("ﬁle"))
	assert.Equal(t, "價格", ModeLower.Normalize("價格"))
}

func TestNormalizeFold(t *testing.T) {
	assert.Equal(t, "  hello world ", ModeFold.Normalize("  HeLLo　World "))
	assert.Equal(t, "abc123", ModeFold.Normalize("ＡＢＣ１２３"))
	assert.Equal(t, "file", ModeFold.Normalize("ﬁle"))
	assert.Equal(t, "價格", ModeFold.Normalize("價格"))
}

func TestParserModeKeywords(t *testing.T) {
	cells := []string{"1", " ＡＢ & ﬁ ", "Ｘ|y", "reply"}

	r, err := ParseRow(2, cells)
	require.NoError(t, err)
	assert.Equal(t, ModeLower, r.Mode)
	assert.Equal(t, []string{"ａｂ", "ﬁ"}, r.Must)
	assert.Equal(t, []string{"ｘ", "y"}, r.Any)

	r, err = Parser{Mode: ModeFold}.ParseRow(2, cells)
	require.NoError(t, err)
	assert.Equal(t, ModeFold, r.Mode)
	assert.Equal(t, []string{"ab", "fi"}, r.Must)
	assert.Equal(t, []string{"x", "y"}, r.Any)
}
