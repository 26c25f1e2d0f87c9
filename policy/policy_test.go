package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Admit(t *testing.T) {
	asked := 0
	testCases := []struct {
		description string
		policy      *Policy
		call        string
		expect      bool
	}{
		{description: "nil policy", policy: nil, call: "exec", expect: true},
		{description: "auto no lists", policy: &Policy{Mode: ModeAuto}, call: "exec", expect: true},
		{description: "blocked", policy: &Policy{BlockList: []string{"EXEC"}}, call: "exec", expect: false},
		{description: "allow list miss", policy: &Policy{AllowList: []string{"prints"}}, call: "halt", expect: false},
		{description: "allow list hit", policy: &Policy{AllowList: []string{"prints"}}, call: "PRINTS", expect: true},
		{description: "block wins", policy: &Policy{AllowList: []string{"halt"}, BlockList: []string{"halt"}}, call: "halt", expect: false},
		{description: "deny", policy: &Policy{Mode: ModeDeny}, call: "prints", expect: false},
		{description: "ask without func", policy: &Policy{Mode: ModeAsk}, call: "prints", expect: true},
		{
			description: "ask rejects",
			policy: &Policy{Mode: ModeAsk, Ask: func(ctx context.Context, call string, pid int, p *Policy) bool {
				asked++
				return call != "halt" || pid == 1
			}},
			call:   "HALT",
			expect: false,
		},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.expect, testCase.policy.Admit(context.Background(), testCase.call, 2), testCase.description)
	}
	assert.Equal(t, 1, asked)
}

func TestPolicy_Config(t *testing.T) {
	assert.Nil(t, FromConfig(&Config{}))
	assert.Nil(t, ToConfig(nil))
	p := FromConfig(&Config{Mode: ModeAuto, BlockList: []string{"halt"}})
	assert.False(t, p.Admit(context.Background(), "halt", 1))
	assert.Equal(t, &Config{Mode: ModeAuto, BlockList: []string{"halt"}}, ToConfig(p))

	ctx := WithPolicy(context.Background(), p)
	assert.Same(t, p, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
