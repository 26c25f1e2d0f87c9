package abi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/stackos/runtime/arena"
)

func TestArgs(t *testing.T) {
	mem := arena.New(64)
	require.NoError(t, WriteArgs(mem, 16, &Args{Call: CallSleep, Buffer: 0, Size: 100, Status: StatusResultPending}))
	require.NoError(t, WriteStatus(mem, 16, StatusOK))
	require.NoError(t, WriteValue(mem, 16, 7))

	args, err := ReadArgs(mem, 16)
	require.NoError(t, err)
	assert.Equal(t, &Args{Call: CallSleep, Size: 7, Status: StatusOK}, args)

	_, err = ReadArgs(mem, 60)
	assert.Error(t, err)
	assert.Error(t, WriteArgs(mem, -4, &Args{}))
}

func TestCall_String(t *testing.T) {
	assert.Equal(t, "get_ppid", CallGetPPID.String())
	assert.Equal(t, "call(99)", Call(99).String())
	assert.False(t, Call(-1).Known())
	assert.Equal(t, "BAD_POINTER", StatusBadPointer.String())
}
