package script

import (
	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes (start at 1 to avoid clash with parsly.EOF).
const (
	whitespaceCode = iota + 1
	wordCode
	quotedCode
	commentCode
)

var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	wordToken       = parsly.NewToken(wordCode, "Word", &wordMatcher{})
	quotedToken     = parsly.NewToken(quotedCode, "Quoted", &quotedMatcher{})
	commentToken    = parsly.NewToken(commentCode, "Comment", &commentMatcher{})
)

// wordMatcher matches a run of non blank bytes that does not open a quote
// or a comment.
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	if pos >= cursor.InputSize || isBlank(input[pos]) || input[pos] == '"' || input[pos] == '#' {
		return 0
	}
	matched := 0
	for i := pos; i < cursor.InputSize && !isBlank(input[i]); i++ {
		matched++
	}
	return matched
}

// quotedMatcher matches a double quoted string with backslash escapes,
// quotes included.
type quotedMatcher struct{}

func (m *quotedMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	if pos >= cursor.InputSize || input[pos] != '"' {
		return 0
	}
	for i := pos + 1; i < cursor.InputSize; i++ {
		switch input[i] {
		case '\\':
			i++
		case '"':
			return i - pos + 1
		}
	}
	return 0
}

// commentMatcher matches from '#' to the end of the line.
type commentMatcher struct{}

func (m *commentMatcher) Match(cursor *parsly.Cursor) int {
	if cursor.Pos >= cursor.InputSize || cursor.Input[cursor.Pos] != '#' {
		return 0
	}
	return cursor.InputSize - cursor.Pos
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
