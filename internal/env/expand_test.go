package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpand(t *testing.T) {
	t.Setenv("STACKOS_IMAGES", "mem://localhost/images")
	t.Setenv("STACKOS_SIZE", "8192")
	testCases := []struct {
		description string
		input       string
		expect      string
	}{
		{description: "no references", input: "size: 10", expect: "size: 10"},
		{description: "single", input: "baseURL: ${env.STACKOS_IMAGES}", expect: "baseURL: mem://localhost/images"},
		{description: "several", input: "${env.STACKOS_SIZE}/${env.STACKOS_SIZE}", expect: "8192/8192"},
		{description: "unset", input: "a${env.STACKOS_UNSET_VALUE}b", expect: "ab"},
		{description: "unterminated", input: "x ${env.STACKOS_SIZE", expect: "x ${env.STACKOS_SIZE"},
		{description: "invalid key keeps nested", input: "${env.a-${env.STACKOS_SIZE}}", expect: "${env.a-8192}"},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, Expand(testCase.input), testCase.description)
	}
}
