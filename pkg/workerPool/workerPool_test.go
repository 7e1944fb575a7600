package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsAllTasks(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 4, GlobalBuffer: 16})

	var done atomic.Int64
	for i := 0; i < 100; i++ {
		require.NoError(t, wp.Submit(context.Background(), func() { done.Add(1) }))
	}
	wp.Close()

	assert.Equal(t, int64(100), done.Load())
}

func TestWorkerPool_TrySubmitReportsFullBuffer(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1, GlobalBuffer: 1})
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, wp.TrySubmit(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, wp.TrySubmit(func() {}))
	assert.ErrorIs(t, wp.TrySubmit(func() {}), ErrBufferFull)
	assert.Equal(t, 1, wp.Queued())
	assert.Equal(t, 1, wp.Running())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, wp.Submit(ctx, func() {}), context.DeadlineExceeded)

	close(release)
	wp.Close()
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 1})
	wp.Close()
	wp.Close()

	assert.ErrorIs(t, wp.Submit(context.Background(), func() {}), ErrClosed)
	assert.ErrorIs(t, wp.TrySubmit(func() {}), ErrClosed)
}

func TestWorkerPool_DefaultWorkerCount(t *testing.T) {
	wp := NewWorkerPool(Config{})
	defer wp.Close()
	assert.Greater(t, wp.WorkerCount(), 0)
}

func TestRoom_Collect(t *testing.T) {
	wp := NewWorkerPool(Config{WorkerCount: 3})
	defer wp.Close()

	room := wp.CreateRoom(10)
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, room.NewTaskWaitForFreeSlot(context.Background(), func() any { return i * i }))
	}

	results := room.Collect()
	require.Len(t, results, 10)

	sum := 0
	for _, r := range results {
		sum += r.(int)
	}
	assert.Equal(t, 285, sum)
}
