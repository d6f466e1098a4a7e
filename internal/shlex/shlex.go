// Package shlex splits command-template strings into argv vectors. Double
// quotes group words containing whitespace (captions, Windows paths); the
// quotes themselves are not part of the resulting argument.
package shlex

import (
	"fmt"
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/parsly/matcher"
)

// Token codes
const (
	whitespaceCode = iota
	wordCode
)

// Token definitions
var (
	whitespaceToken = parsly.NewToken(whitespaceCode, "Whitespace", matcher.NewWhiteSpace())
	wordToken       = parsly.NewToken(wordCode, "Word", newWordMatcher())
)

func newWordMatcher() parsly.Matcher {
	return &wordMatcher{}
}

// wordMatcher matches one argument: a run of non-whitespace bytes in which
// a double-quoted region may embed whitespace. An unterminated quote does
// not match.
type wordMatcher struct{}

func (m *wordMatcher) Match(cursor *parsly.Cursor) int {
	input := cursor.Input
	pos := cursor.Pos
	size := cursor.InputSize
	if pos >= size {
		return 0
	}
	matched := 0
	inQuote := false
	for pos < size {
		c := input[pos]
		if c == '"' {
			inQuote = !inQuote
		} else if !inQuote && (c == ' ' || c == '\t' || c == '\n' || c == '\r') {
			break
		}
		pos++
		matched++
	}
	if inQuote {
		return 0
	}
	return matched
}

// Split tokenizes a command string into its argv vector.
func Split(command string) ([]string, error) {
	cursor := parsly.NewCursor("", []byte(command), 0)
	var argv []string
	for cursor.Pos < cursor.InputSize {
		matched := cursor.MatchAfterOptional(whitespaceToken, wordToken)
		if matched.Code != wordToken.Code {
			if cursor.Pos >= cursor.InputSize { // trailing whitespace only
				break
			}
			return nil, fmt.Errorf("unterminated quote in command: %s", command)
		}
		argv = append(argv, strings.ReplaceAll(matched.Text(cursor), `"`, ""))
	}
	return argv, nil
}
