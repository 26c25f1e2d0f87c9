package fs

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

type TestPayload struct {
	PID  int    `json:"pid"`
	Kind string `json:"kind"`
}

func newTestQueue(t *testing.T, maxRetries int) (*Queue[TestPayload], afs.Service) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "spool-test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(tempDir) })
	fs := afs.New()
	queue, err := NewQueue[TestPayload](fs, Config{BasePath: tempDir, MaxRetries: maxRetries, KeepCompleted: true})
	require.NoError(t, err)
	return queue, fs
}

func TestQueue_Order(t *testing.T) {
	queue, fs := newTestQueue(t, 2)
	ctx := context.Background()
	for _, dir := range []string{queue.pendingDir, queue.processingDir, queue.completedDir, queue.dlqDir} {
		exists, err := fs.Exists(ctx, dir)
		require.NoError(t, err)
		assert.True(t, exists, dir)
	}

	kinds := []string{"spawned", "loaded", "exited"}
	for i, kind := range kinds {
		require.NoError(t, queue.Publish(ctx, &TestPayload{PID: i + 1, Kind: kind}))
	}
	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, pending)

	for i, kind := range kinds {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		require.NotNil(t, message)
		assert.Equal(t, TestPayload{PID: i + 1, Kind: kind}, *message.T())
		require.NoError(t, message.Ack())
	}
	completed, err := queue.names(ctx, queue.completedDir)
	require.NoError(t, err)
	assert.Len(t, completed, 3)
	processing, err := queue.names(ctx, queue.processingDir)
	require.NoError(t, err)
	assert.Empty(t, processing)

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.Nil(t, message)
}

func TestQueue_NackToDeadLetter(t *testing.T) {
	queue, _ := newTestQueue(t, 1)
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &TestPayload{PID: 7, Kind: "load_failed"}))

	for attempt := 0; attempt < 2; attempt++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		require.NotNil(t, message, "attempt %d", attempt)
		require.NoError(t, message.Nack(errors.New("handler failed")))
		assert.True(t, errors.Is(message.Ack(), ErrProcessed))
	}

	message, err := queue.Consume(ctx)
	assert.NoError(t, err)
	assert.Nil(t, message)
	dead, err := queue.Dead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, dead)
}

func TestQueue_Initialization(t *testing.T) {
	_, err := NewQueue[TestPayload](afs.New(), Config{})
	assert.Error(t, err)
}
