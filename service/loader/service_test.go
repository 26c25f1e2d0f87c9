package loader

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/stackos/internal/clock"
	"github.com/viant/stackos/runtime/arena"
	"github.com/viant/stackos/service/device"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "images")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tempDir) })
	return NewStore(afs.New(), tempDir)
}

func TestStore_Load(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "plain", []byte{1, 2, 3}, nil))
	require.NoError(t, store.Save(ctx, "tuned", []byte{4, 5}, &Manifest{Stack: 64, Entry: 12}))

	testCases := []struct {
		description    string
		name           string
		expectCode     []byte
		expectManifest Manifest
		expectErr      bool
	}{
		{description: "no manifest", name: "plain", expectCode: []byte{1, 2, 3}},
		{description: "with manifest", name: "tuned", expectCode: []byte{4, 5}, expectManifest: Manifest{Stack: 64, Entry: 12}},
		{description: "missing", name: "nothing", expectErr: true},
		{description: "escaping name", name: "../etc/passwd", expectErr: true},
	}
	for _, testCase := range testCases {
		image, err := store.Load(ctx, testCase.name)
		if testCase.expectErr {
			assert.True(t, errors.Is(err, ErrImageNotFound), testCase.description)
			continue
		}
		require.NoError(t, err, testCase.description)
		assert.Equal(t, testCase.expectCode, image.Code, testCase.description)
		assert.Equal(t, testCase.expectManifest, image.Manifest, testCase.description)
	}
}

func TestService_Load(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	code := []byte("IMAGEDATA")
	require.NoError(t, store.Save(ctx, "shell", code, &Manifest{Stack: 128}))
	require.NoError(t, store.Save(ctx, "huge", make([]byte, 400), nil))

	mem := arena.New(1024)
	clk := clock.New(10)
	config := DefaultConfig()
	config.Latency = 3
	srv := New(config, store, mem, clk)

	request := device.NewRequest(device.OpExec)
	request.Name = "shell"
	request.Base, request.Limit = 100, 600
	require.NoError(t, srv.Submit(ctx, request))

	srv.Tick(12)
	assert.True(t, request.Pending())
	assert.Equal(t, 1, srv.Pending())

	srv.Tick(13)
	require.False(t, request.Pending())
	require.False(t, request.Failed())
	assert.Equal(t, len(code), request.Result())
	assert.Equal(t, config.Entry, request.Entry)
	loaded, err := mem.Slice(100, len(code))
	require.NoError(t, err)
	assert.Equal(t, code, loaded)
	stack, err := mem.Word(100 + len(code))
	require.NoError(t, err)
	assert.EqualValues(t, 128, stack)

	testCases := []struct {
		description string
		name        string
		limit       int
		expectErr   error
	}{
		{description: "missing image", name: "missing", limit: 600, expectErr: ErrImageNotFound},
		{description: "image plus stack exceed region", name: "huge", limit: 600, expectErr: ErrImageTooLarge},
	}
	for _, testCase := range testCases {
		failing := device.NewRequest(device.OpExec)
		failing.Name = testCase.name
		failing.Base, failing.Limit = 100, testCase.limit
		require.NoError(t, srv.Submit(ctx, failing), testCase.description)
		clk.Advance(config.Latency)
		srv.Tick(clk.Now())
		assert.True(t, failing.Failed(), testCase.description)
		assert.True(t, errors.Is(failing.Err(), testCase.expectErr), testCase.description)
	}

	assert.Error(t, srv.Submit(ctx, device.NewRequest(device.OpGetS)))
}
