package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		description string
		input       string
		expect      *Command
		expectErr   bool
	}{
		{description: "words", input: "spawn hello", expect: &Command{Name: "spawn", Args: []string{"hello"}}},
		{description: "case folded name", input: "TICK 5", expect: &Command{Name: "tick", Args: []string{"5"}}},
		{description: "quoted with comment", input: `  prints "hello world"  # greet`, expect: &Command{Name: "prints", Args: []string{"hello world"}}},
		{description: "escapes", input: `prints "tab\tend"`, expect: &Command{Name: "prints", Args: []string{"tab\tend"}}},
		{description: "hash inside word", input: "input a#b", expect: &Command{Name: "input", Args: []string{"a#b"}}},
		{description: "no args", input: "ps", expect: &Command{Name: "ps", Args: []string{}}},
		{description: "comment only", input: "# nothing"},
		{description: "blank", input: "   "},
		{description: "unterminated quote", input: `prints "open`, expectErr: true},
	}
	for _, testCase := range testCases {
		actual, err := Parse(testCase.input)
		if testCase.expectErr {
			assert.Error(t, err, testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, actual, testCase.description)
	}
}

func TestParseScript(t *testing.T) {
	commands, err := ParseScript([]byte("# boot\nboot init\n\ntick 3\n"))
	require.NoError(t, err)
	require.Len(t, commands, 2)
	assert.Equal(t, 2, commands[0].Line)
	assert.Equal(t, 4, commands[1].Line)

	_, err = ParseScript([]byte("ps\nprints \"x\n"))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "line 2")
	}
}

func TestCommand_Int(t *testing.T) {
	command := &Command{Name: "until", Args: []string{"2", "x"}}
	value, err := command.Int(0)
	require.NoError(t, err)
	assert.Equal(t, 2, value)
	_, err = command.Int(1)
	assert.Error(t, err)
	_, err = command.Int(2)
	assert.Error(t, err)
	value, err = command.IntOr(5, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, value)
	assert.Equal(t, "2 x", command.Text(0))
	assert.Equal(t, "", command.Text(3))
}
