package script

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/viant/parsly"
	"github.com/viant/toolbox"
)

// Command is one monitor instruction.
type Command struct {
	Line int
	Name string
	Args []string
}

// Int returns argument i as a number.
func (c *Command) Int(i int) (int, error) {
	if i >= len(c.Args) {
		return 0, fmt.Errorf("%s: missing argument %d", c.Name, i+1)
	}
	value, err := toolbox.ToInt(c.Args[i])
	if err != nil {
		return 0, fmt.Errorf("%s: argument %d: %w", c.Name, i+1, err)
	}
	return value, nil
}

// IntOr returns argument i as a number, or fallback when it is absent.
func (c *Command) IntOr(i int, fallback int) (int, error) {
	if i >= len(c.Args) {
		return fallback, nil
	}
	return c.Int(i)
}

// Text joins the arguments from i on with single spaces.
func (c *Command) Text(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.Join(c.Args[i:], " ")
}

// Parse tokenizes a single line into a command. Blank and comment lines
// yield nil.
func Parse(line string) (*Command, error) {
	cursor := parsly.NewCursor("", []byte(line), 0)
	var words []string
	for {
		matched := cursor.MatchAfterOptional(whitespaceToken, commentToken, quotedToken, wordToken)
		switch matched.Code {
		case wordCode:
			words = append(words, matched.Text(cursor))
			continue
		case quotedCode:
			text, err := strconv.Unquote(matched.Text(cursor))
			if err != nil {
				return nil, fmt.Errorf("invalid quoted text %s: %w", matched.Text(cursor), err)
			}
			words = append(words, text)
			continue
		case commentCode, parsly.EOF:
		default:
			return nil, cursor.NewError(quotedToken, wordToken)
		}
		break
	}
	if len(words) == 0 {
		return nil, nil
	}
	return &Command{Name: strings.ToLower(words[0]), Args: words[1:]}, nil
}

// ParseScript parses every line of data.
func ParseScript(data []byte) ([]*Command, error) {
	var commands []*Command
	for i, line := range strings.Split(string(data), "\n") {
		command, err := Parse(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if command == nil {
			continue
		}
		command.Line = i + 1
		commands = append(commands, command)
	}
	return commands, nil
}
