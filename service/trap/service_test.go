package trap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/policy"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/abi"
	"github.com/viant/stackos/service/allocator"
	"github.com/viant/stackos/service/console"
	"github.com/viant/stackos/service/device"
	"github.com/viant/stackos/service/scheduler"
	"github.com/viant/stackos/stats"
)

const (
	imageSize = 64
	stackSize = 512
	// processSize is image, stack word and stack.
	processSize = imageSize + arena.WordSize + stackSize
	argPtr      = 16
)

// instantLoader completes every load on submission.
type instantLoader struct {
	mem *arena.Arena
}

func (l *instantLoader) Submit(_ context.Context, request *device.Request) error {
	if request.Name == "missing" {
		request.Fail(errors.New("no such image"))
		return nil
	}
	if err := l.mem.SetWord(request.Base+imageSize, stackSize); err != nil {
		return err
	}
	request.Complete(imageSize)
	return nil
}

type fixture struct {
	t       *testing.T
	mem     *arena.Arena
	sched   *scheduler.Service
	console *console.Service
	out     *bytes.Buffer
	clock   *clock.Counter
	stats   *stats.Stats
	trap    *Service
	regs    *scheduler.Registers
	ctx     context.Context
	pid     int
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()
	mem := arena.New(64 * 1024)
	alloc := allocator.New(mem)
	require.NoError(t, alloc.Init(1024, 32*1024))
	f := &fixture{t: t, mem: mem, out: &bytes.Buffer{}, clock: clock.New(100), stats: stats.New("test"), regs: &scheduler.Registers{}, ctx: context.Background()}
	f.sched = scheduler.New(alloc, &instantLoader{mem: mem}, f.clock, scheduler.WithConfig(scheduler.Config{MaxProcesses: 5, Quantum: 10}))
	f.sched.Init()
	f.console = console.New(console.Config{}, f.out, mem)
	options = append([]Option{WithConfig(Config{Quantum: 10, Tracing: true}), WithStats(f.stats)}, options...)
	f.trap = New(f.sched, mem, f.console, f.clock, options...)

	pid, err := f.sched.Spawn(context.Background(), "p")
	require.NoError(t, err)
	f.sched.Reschedule(f.regs)
	require.Equal(t, pid, f.sched.CurrentPid())
	require.Equal(t, processSize, f.regs.LP-f.regs.BP)
	f.pid = pid
	return f
}

// put writes raw bytes at a process relative address of the current process.
func (f *fixture) put(relative int, data string) {
	require.NoError(f.t, f.mem.Write(f.regs.BP+relative, []byte(data)))
}

// call issues a trap from the current process and returns the block as it
// is after the trap.
func (f *fixture) call(args abi.Args) (*abi.Args, error) {
	base := f.regs.BP
	args.Status = abi.Status(-1)
	require.NoError(f.t, abi.WriteArgs(f.mem, base+argPtr, &args))
	err := f.trap.Handle(f.ctx, f.regs, argPtr)
	result, rErr := abi.ReadArgs(f.mem, base+argPtr)
	require.NoError(f.t, rErr)
	return result, err
}

func TestService_Prints(t *testing.T) {
	testCases := []struct {
		description string
		data        string
		args        abi.Args
		expect      abi.Status
		output      string
	}{
		{description: "prints", data: "hello\x00", args: abi.Args{Call: abi.CallPrints, Buffer: 100, Size: 6}, expect: abi.StatusOK, output: "hello"},
		{description: "terminator before size", data: "hi\x00junk", args: abi.Args{Call: abi.CallPrints, Buffer: 100, Size: 7}, expect: abi.StatusOK, output: "hi"},
		{description: "no terminator", data: "abc", args: abi.Args{Call: abi.CallPrints, Buffer: 100, Size: 3}, expect: abi.StatusInvalidArgument},
		{description: "null buffer", args: abi.Args{Call: abi.CallPrints, Buffer: 0, Size: 3}, expect: abi.StatusBadPointer},
		{description: "zero size", data: "x\x00", args: abi.Args{Call: abi.CallPrints, Buffer: 100, Size: 0}, expect: abi.StatusBadPointer},
		{description: "crosses limit", data: "abc\x00", args: abi.Args{Call: abi.CallPrints, Buffer: processSize - 4, Size: 10}, expect: abi.StatusBadPointer},
		{description: "negative buffer", args: abi.Args{Call: abi.CallPrints, Buffer: -40, Size: 8}, expect: abi.StatusBadPointer},
	}
	for _, testCase := range testCases {
		f := newFixture(t)
		if testCase.data != "" {
			f.put(testCase.args.Buffer, testCase.data)
		}
		result, err := f.call(testCase.args)
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, result.Status, testCase.description)
		assert.Equal(t, testCase.output, f.out.String(), testCase.description)
		assert.Equal(t, f.pid, f.sched.CurrentPid(), testCase.description)
	}
}

func TestService_ArgumentBlock(t *testing.T) {
	f := newFixture(t)
	for _, ptr := range []int{abi.Null, -8, processSize - 8, processSize + 100} {
		before := f.mem.Load32(f.regs.BP + argPtr + abi.OffsetStatus)
		err := f.trap.Handle(context.Background(), f.regs, ptr)
		assert.True(t, errors.Is(err, ErrBadPointer), ptr)
		assert.Equal(t, before, f.mem.Load32(f.regs.BP+argPtr+abi.OffsetStatus))
	}
	assert.Equal(t, f.pid, f.sched.CurrentPid())
}

func TestService_UnknownCall(t *testing.T) {
	f := newFixture(t)
	result, err := f.call(abi.Args{Call: abi.Call(99), Buffer: 100, Size: 4})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusNoSuchCall, result.Status)
	assert.Equal(t, 4, result.Size)
	assert.Equal(t, f.pid, f.sched.CurrentPid())
	assert.Empty(t, f.out.String())
	assert.Equal(t, 1, f.stats.Snapshot().Traps)
}

func TestService_Queries(t *testing.T) {
	f := newFixture(t)
	testCases := []struct {
		description string
		call        abi.Call
		expect      int
	}{
		{description: "pid", call: abi.CallGetPID, expect: 1},
		{description: "parent pid", call: abi.CallGetPPID, expect: 0},
		{description: "time", call: abi.CallGetTime, expect: 100},
	}
	for _, testCase := range testCases {
		result, err := f.call(abi.Args{Call: testCase.call})
		require.NoError(t, err, testCase.description)
		assert.Equal(t, abi.StatusOK, result.Status, testCase.description)
		assert.Equal(t, testCase.expect, result.Size, testCase.description)
	}
}

func TestService_GetS(t *testing.T) {
	t.Run("scratch too small", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.call(abi.Args{Call: abi.CallGetS, Buffer: 200, Size: 100})
		require.NoError(t, err)
		assert.Equal(t, abi.StatusBadPointer, result.Status)
		assert.Equal(t, 0, f.console.Waiting())
		assert.Equal(t, f.pid, f.sched.CurrentPid())
	})
	t.Run("null buffer", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.call(abi.Args{Call: abi.CallGetS, Buffer: abi.Null, Size: abi.GetsScratch})
		require.NoError(t, err)
		assert.Equal(t, abi.StatusBadPointer, result.Status)
		assert.Equal(t, 0, f.console.Waiting())
	})
	t.Run("crosses limit", func(t *testing.T) {
		f := newFixture(t)
		result, err := f.call(abi.Args{Call: abi.CallGetS, Buffer: processSize - 200, Size: abi.GetsScratch})
		require.NoError(t, err)
		assert.Equal(t, abi.StatusBadPointer, result.Status)
		assert.Equal(t, 0, f.console.Waiting())
	})
	t.Run("blocks until input", func(t *testing.T) {
		f := newFixture(t)
		base := f.regs.BP
		result, err := f.call(abi.Args{Call: abi.CallGetS, Buffer: 200, Size: abi.GetsScratch})
		require.NoError(t, err)
		assert.Equal(t, abi.StatusResultPending, result.Status)
		assert.Equal(t, 0, f.sched.CurrentPid())
		p, _ := f.sched.Process(f.pid)
		assert.Equal(t, scheduler.StateDoingIO, p.State)

		f.console.Feed("hello world")
		require.NoError(t, f.trap.Timer(context.Background(), f.regs))
		assert.Equal(t, f.pid, f.sched.CurrentPid())
		block, err := abi.ReadArgs(f.mem, base+argPtr)
		require.NoError(t, err)
		assert.Equal(t, abi.StatusOK, block.Status)
		text, ok, err := f.mem.CString(base+200, abi.GetsScratch)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "hello world", text)
	})
}

func TestService_GetI(t *testing.T) {
	testCases := []struct {
		description string
		input       string
		size        int
		expect      abi.Status
		value       int32
	}{
		{description: "number", input: "42", size: 4, expect: abi.StatusOK, value: 42},
		{description: "not a number", input: "forty", size: 4, expect: abi.StatusGeneralError},
		{description: "short buffer", input: "1", size: 2, expect: abi.StatusBadPointer},
	}
	for _, testCase := range testCases {
		f := newFixture(t)
		base := f.regs.BP
		f.console.Feed(testCase.input)
		result, err := f.call(abi.Args{Call: abi.CallGetI, Buffer: 300, Size: testCase.size})
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, result.Status, testCase.description)
		assert.Equal(t, f.pid, f.sched.CurrentPid(), testCase.description)
		assert.Equal(t, testCase.value, f.mem.Load32(base+300), testCase.description)
	}
}

func TestService_Exec(t *testing.T) {
	testCases := []struct {
		description string
		name        string
		size        int
		expect      abi.Status
		child       int
	}{
		{description: "spawns", name: "child\x00", size: 6, expect: abi.StatusOK, child: 2},
		{description: "empty name", name: "\x00", size: 1, expect: abi.StatusInvalidArgument},
		{description: "unterminated", name: "child", size: 5, expect: abi.StatusInvalidArgument},
		{description: "past limit", name: "child\x00", size: processSize, expect: abi.StatusBadPointer},
	}
	for _, testCase := range testCases {
		f := newFixture(t)
		f.put(120, testCase.name)
		result, err := f.call(abi.Args{Call: abi.CallExec, Buffer: 120, Size: testCase.size})
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expect, result.Status, testCase.description)
		if testCase.child == 0 {
			continue
		}
		assert.Equal(t, testCase.child, result.Size, testCase.description)
		child, _ := f.sched.Process(testCase.child)
		assert.Equal(t, scheduler.StateLoading, child.State, testCase.description)
		assert.Equal(t, f.pid, child.ParentID, testCase.description)
	}
}

func TestService_ExecFails(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.put(120, "c\x00")
		result, err := f.call(abi.Args{Call: abi.CallExec, Buffer: 120, Size: 2})
		require.NoError(t, err)
		require.Equal(t, abi.StatusOK, result.Status)
		for j := 0; j < 4; j++ {
			if child, _ := f.sched.Process(result.Size); child.State != scheduler.StateLoading {
				break
			}
			require.NoError(t, f.trap.Timer(context.Background(), f.regs))
		}
	}
	// slots 1 to 4 are taken
	f.put(120, "c\x00")
	result, err := f.call(abi.Args{Call: abi.CallExec, Buffer: 120, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusGeneralError, result.Status)
}

func TestService_YieldAndWait(t *testing.T) {
	f := newFixture(t)
	parent := f.pid
	parentBase := f.regs.BP
	f.put(120, "child\x00")
	result, err := f.call(abi.Args{Call: abi.CallExec, Buffer: 120, Size: 6})
	require.NoError(t, err)
	child := result.Size

	result, err = f.call(abi.Args{Call: abi.CallYield})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusOK, result.Status)
	assert.Equal(t, child, f.sched.CurrentPid())

	require.NoError(t, f.trap.Timer(context.Background(), f.regs))
	require.Equal(t, parent, f.sched.CurrentPid())
	result, err = f.call(abi.Args{Call: abi.CallWait, Size: child})
	require.NoError(t, err)
	assert.Equal(t, child, f.sched.CurrentPid())
	p, _ := f.sched.Process(parent)
	assert.Equal(t, scheduler.StateWaiting, p.State)

	_, err = f.call(abi.Args{Call: abi.CallExit})
	require.NoError(t, err)
	assert.Equal(t, parent, f.sched.CurrentPid())
	block, err := abi.ReadArgs(f.mem, parentBase+argPtr)
	require.NoError(t, err)
	assert.Equal(t, abi.StatusOK, block.Status)
	c, _ := f.sched.Process(child)
	assert.Equal(t, scheduler.StateFree, c.State)
}

func TestService_WaitRejects(t *testing.T) {
	f := newFixture(t)
	for _, target := range []int{0, -1, 5, 3, f.pid} {
		result, err := f.call(abi.Args{Call: abi.CallWait, Size: target})
		require.NoError(t, err, target)
		assert.Equal(t, abi.StatusInvalidArgument, result.Status, target)
		assert.Equal(t, f.pid, f.sched.CurrentPid(), target)
	}
}

func TestService_Sleep(t *testing.T) {
	f := newFixture(t)
	result, err := f.call(abi.Args{Call: abi.CallSleep, Size: -1})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusInvalidArgument, result.Status)
	assert.Equal(t, f.pid, f.sched.CurrentPid())

	result, err = f.call(abi.Args{Call: abi.CallSleep, Size: 50})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusOK, result.Status)
	assert.Equal(t, 0, f.sched.CurrentPid())

	f.clock.Set(149)
	require.NoError(t, f.trap.Timer(context.Background(), f.regs))
	assert.Equal(t, 0, f.sched.CurrentPid())
	f.clock.Set(150)
	require.NoError(t, f.trap.Timer(context.Background(), f.regs))
	assert.Equal(t, f.pid, f.sched.CurrentPid())
}

func TestService_Halt(t *testing.T) {
	testCases := []struct {
		description string
		call        abi.Call
	}{
		{description: "halt", call: abi.CallHalt},
		{description: "last exit", call: abi.CallExit},
	}
	for _, testCase := range testCases {
		f := newFixture(t)
		_, err := f.call(abi.Args{Call: testCase.call})
		assert.True(t, errors.Is(err, scheduler.ErrHalted), testCase.description)
		assert.Equal(t, ShutdownMessage, f.out.String(), testCase.description)
		assert.True(t, f.sched.Halted(), testCase.description)
		assert.True(t, errors.Is(f.trap.Timer(context.Background(), f.regs), scheduler.ErrHalted), testCase.description)
		assert.True(t, errors.Is(f.trap.Handle(context.Background(), f.regs, argPtr), scheduler.ErrHalted), testCase.description)
	}
}

func TestService_Policy(t *testing.T) {
	f := newFixture(t, WithPolicy(&policy.Policy{BlockList: []string{"halt"}}))
	result, err := f.call(abi.Args{Call: abi.CallHalt})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusGeneralError, result.Status)
	assert.False(t, f.sched.Halted())
	assert.Equal(t, 1, f.stats.Snapshot().Rejected)

	result, err = f.call(abi.Args{Call: abi.CallGetPID})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusOK, result.Status)
}

func TestService_ContextPolicyAndStats(t *testing.T) {
	f := newFixture(t)
	f.trap = New(f.sched, f.mem, f.console, f.clock, WithConfig(Config{Quantum: 10}))
	tracker := stats.New("ctx")
	f.ctx = stats.WithStats(policy.WithPolicy(context.Background(), &policy.Policy{Mode: policy.ModeDeny}), tracker)

	result, err := f.call(abi.Args{Call: abi.CallGetPID})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusGeneralError, result.Status)

	// unknown calls are rejected before the policy is consulted
	result, err = f.call(abi.Args{Call: abi.Call(42)})
	require.NoError(t, err)
	assert.Equal(t, abi.StatusNoSuchCall, result.Status)

	require.NoError(t, f.trap.Timer(f.ctx, f.regs))
	snapshot := tracker.Snapshot()
	assert.Equal(t, 2, snapshot.Traps)
	assert.Equal(t, 1, snapshot.Rejected)
	assert.Equal(t, 1, snapshot.Timer)
	assert.Equal(t, 0, f.stats.Snapshot().Traps)
}

func TestService_Expired(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.trap.Expired())
	f.clock.Advance(9)
	assert.False(t, f.trap.Expired())
	f.clock.Advance(1)
	assert.True(t, f.trap.Expired())
	require.NoError(t, f.trap.Timer(context.Background(), f.regs))
	assert.False(t, f.trap.Expired())
	assert.Equal(t, 1, f.stats.Snapshot().Timer)

	f.clock.Advance(20)
	_, err := f.call(abi.Args{Call: abi.CallYield})
	require.NoError(t, err)
	assert.False(t, f.trap.Expired())
}

func TestService_IdleTrap(t *testing.T) {
	f := newFixture(t)
	_, err := f.call(abi.Args{Call: abi.CallSleep, Size: 1000})
	require.NoError(t, err)
	require.Equal(t, 0, f.sched.CurrentPid())
	assert.True(t, errors.Is(f.trap.Handle(context.Background(), f.regs, argPtr), ErrNotRunning))
}
