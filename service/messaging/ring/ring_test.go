package ring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_FIFO(t *testing.T) {
	queue := New[int](3)
	_, ok := queue.Dequeue()
	assert.False(t, ok)

	for round := 0; round < 4; round++ {
		for i := 1; i <= 3; i++ {
			require.NoError(t, queue.Enqueue(round*10+i))
		}
		assert.True(t, errors.Is(queue.Enqueue(99), ErrFull))
		assert.Equal(t, []int{round*10 + 1, round*10 + 2, round*10 + 3}, queue.Items())
		for i := 1; i <= 3; i++ {
			item, ok := queue.Dequeue()
			require.True(t, ok)
			assert.Equal(t, round*10+i, item)
		}
		assert.Equal(t, 0, queue.Count())
	}
}

func TestRing_Wraparound(t *testing.T) {
	queue := New[string](2)
	require.NoError(t, queue.Enqueue("a"))
	require.NoError(t, queue.Enqueue("b"))
	item, _ := queue.Dequeue()
	assert.Equal(t, "a", item)
	require.NoError(t, queue.Enqueue("c"))
	assert.Equal(t, []string{"b", "c"}, queue.Items())
	assert.Equal(t, 2, queue.Count())
	assert.Equal(t, 2, queue.Cap())

	queue.Reset()
	assert.Equal(t, 0, queue.Count())
	assert.Empty(t, queue.Items())
}
