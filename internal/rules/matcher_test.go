package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRule(t *testing.T, priority, must, any, reply string) Rule {
	t.Helper()
	r, err := ParseRow(2, []string{priority, must, any, reply})
	require.NoError(t, err)
	return r
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name string
		must string
		any  string
		text string
		want bool
	}{
		{"must all present", "a&b", "", "xx A yy B", true},
		{"must one missing", "a&b", "", "only a here", false},
		{"any first", "", "a|b", "an apple", true},
		{"any second", "", "hi|bye", "good BYE", true},
		{"any none", "", "x|y", "nothing", false},
		{"both satisfied", "book&price", "how|what", "what is the book price", true},
		{"both any missing", "book&price", "how|what", "book price", false},
		{"both must missing", "book&price", "how|what", "how is the book", false},
		{"substring inside word", "", "hi", "this", true},
		{"vacuous", "", "", "anything at all", false},
		{"vacuous after trimming", " & ", " | ", "anything", false},
		{"full width input stays distinct", "", "line", "ＬＩＮＥ", false},
		{"cjk", "價格", "", "請問價格多少", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRule(t, "1", tt.must, tt.any, "reply")
			assert.Equal(t, tt.want, r.Matches(tt.text))
		})
	}
}

func TestRuleMatchesLowerCaseOnlyByDefault(t *testing.T) {
	tests := []struct {
		name string
		any  string
		text string
	}{
		{"ligature", "fi", "ﬁle"},
		{"full width digits", "10", "１０ dollars"},
		{"no-break space", "a b", "a\u00a0b"},
		{"ideographic space", "hello world", "hello　world"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := mustRule(t, "1", "", tt.any, "reply")
			assert.Equal(t, ModeLower, r.Mode)
			assert.False(t, r.Matches(tt.text))

			_, ok := Evaluate(tt.text, []Rule{r})
			assert.False(t, ok)
		})
	}
}

func TestRuleMatchesUnicodeFolding(t *testing.T) {
	fold := Parser{Mode: ModeFold}
	tests := []struct {
		name string
		any  string
		text string
	}{
		{"full width input", "line", "ＬＩＮＥ"},
		{"full width keyword", "ＬＩＮＥ", "line"},
		{"ligature", "fi", "ﬁle"},
		{"full width digits", "10", "１０ dollars"},
		{"no-break space", "a b", "a\u00a0b"},
		{"ideographic space", "hello world", "HELLO　WORLD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := fold.ParseRow(2, []string{"1", "", tt.any, "reply"})
			require.NoError(t, err)
			assert.Equal(t, ModeFold, r.Mode)
			assert.True(t, r.Matches(tt.text))

			_, ok := Evaluate(tt.text, []Rule{r})
			assert.True(t, ok)
		})
	}
}

func TestFirstMatchMixedModes(t *testing.T) {
	lower := mustRule(t, "1", "", "ｆｉｌｅ", "lower")
	folded, err := Parser{Mode: ModeFold}.ParseRow(3, []string{"2", "", "file", "folded"})
	require.NoError(t, err)

	r, ok := FirstMatch("ＦＩＬＥ", []Rule{lower, folded})
	require.True(t, ok)
	assert.Equal(t, "lower", r.Reply)

	r, ok = FirstMatch("file", []Rule{lower, folded})
	require.True(t, ok)
	assert.Equal(t, "folded", r.Reply)
}

func TestEvaluateFirstMatchWins(t *testing.T) {
	rs, _ := ParseRows([][]string{
		header,
		{"2", "book&price", "", "Ask sales."},
		{"1", "", "hi|hello", "Hi there!"},
	})

	reply, ok := Evaluate("Hello, how much is this book and its price?", rs)
	require.True(t, ok)
	assert.Equal(t, "Hi there!", reply)

	reply, ok = Evaluate("BOOK PRICE", rs)
	require.True(t, ok)
	assert.Equal(t, "Ask sales.", reply)
}

func TestEvaluateSkipsVacuousRows(t *testing.T) {
	rs := []Rule{
		mustRule(t, "1", "", "", "never"),
		mustRule(t, "2", "", "x", "fallback"),
	}

	reply, ok := Evaluate("x marks the spot", rs)
	require.True(t, ok)
	assert.Equal(t, "fallback", reply)

	_, ok = Evaluate("nothing", rs)
	assert.False(t, ok)
}

func TestEvaluateNoRules(t *testing.T) {
	rs, _ := ParseRows([][]string{header})
	reply, ok := Evaluate("hello", rs)
	assert.False(t, ok)
	assert.Empty(t, reply)
}

func TestFirstMatchReturnsRule(t *testing.T) {
	rs := []Rule{mustRule(t, "7", "", "ping", "pong")}
	r, ok := FirstMatch("PING", rs)
	require.True(t, ok)
	assert.Equal(t, 7, r.Priority)
	assert.Equal(t, "pong", r.Reply)
}

func TestEvaluateDeterministic(t *testing.T) {
	rs := []Rule{
		mustRule(t, "1", "a", "b|c", "one"),
		mustRule(t, "2", "", "a", "two"),
	}
	for i := 0; i < 5; i++ {
		reply, ok := Evaluate("a c", rs)
		assert.True(t, ok)
		assert.Equal(t, "one", reply)
	}
}
