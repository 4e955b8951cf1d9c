package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskQueue_FIFO(t *testing.T) {
	q := newTaskQueue()
	var got []int
	for i := 1; i <= 3; i++ {
		assert.True(t, q.Enqueue(func() { got = append(got, i) }))
	}
	assert.Equal(t, 3, q.Len())

	for {
		task, ok := q.TryDequeue()
		if !ok {
			break
		}
		task()
	}
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestTaskQueue_ClosedRejectsTasks(t *testing.T) {
	q := newTaskQueue()
	q.Close()
	q.Close()
	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(func() {}))

	_, open := <-q.Wait()
	assert.False(t, open)
}

func TestSequenceGenerator(t *testing.T) {
	g := NewSequenceGenerator("tx")
	assert.Equal(t, "tx-1", g.Generate())
	assert.Equal(t, "tx-2", g.Generate())
}

func TestClock_Monotonic(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
