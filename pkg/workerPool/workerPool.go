package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrBufferFull = errors.New("workerpool: global buffer is full")
	ErrClosed     = errors.New("workerpool: pool closed")
)

type WorkerPool struct {
	config    Config
	taskQueue chan Task

	// mu is held for reading by senders and for writing by Close, so the queue
	// is never closed under a pending send.
	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
	running atomic.Int64
}

type Config struct {
	WorkerCount  int
	GlobalBuffer int
}

type Task func()

func NewWorkerPool(config Config) *WorkerPool {
	if config.WorkerCount < 1 {
		numberOfCPUs := runtime.NumCPU()
		numberOfWorkers := (numberOfCPUs * 3)
		config.WorkerCount = numberOfWorkers
	}

	if config.GlobalBuffer < 1 {
		config.GlobalBuffer = 10000
	}

	wp := &WorkerPool{
		config:    config,
		taskQueue: make(chan Task, config.GlobalBuffer),
	}

	wp.workers.Add(config.WorkerCount)
	for i := 0; i < config.WorkerCount; i++ {
		go wp.Worker()
	}

	return wp
}

func (wp *WorkerPool) Worker() {
	defer wp.workers.Done()
	for t := range wp.taskQueue {
		wp.running.Add(1)
		t()
		wp.running.Add(-1)
	}
}

// Submit queues task, waiting for a free slot until ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrClosed
	}
	select {
	case wp.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit queues task only if a slot is free right now.
func (wp *WorkerPool) TrySubmit(task Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrClosed
	}
	select {
	case wp.taskQueue <- task:
		return nil
	default:
		return ErrBufferFull
	}
}

// Queued is the number of tasks waiting for a worker.
func (wp *WorkerPool) Queued() int {
	return len(wp.taskQueue)
}

// Running is the number of tasks currently executing.
func (wp *WorkerPool) Running() int {
	return int(wp.running.Load())
}

func (wp *WorkerPool) WorkerCount() int {
	return wp.config.WorkerCount
}

// Close stops accepting tasks, lets the workers drain the queue and waits for them.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		wp.workers.Wait()
		return
	}
	wp.closed = true
	close(wp.taskQueue)
	wp.mu.Unlock()
	wp.workers.Wait()
}

// Room groups tasks whose results are collected together.
type Room struct {
	resultChan chan any
	wg         sync.WaitGroup
	wp         *WorkerPool
}

func (wp *WorkerPool) CreateRoom(size int) *Room {
	return &Room{
		resultChan: make(chan any, size),
		wp:         wp,
	}
}

// NewTaskWaitForFreeSlot queues job, blocking while the pool is full. Results
// are buffered in the room; Collect must run concurrently once more than the
// room size of results is pending.
func (ro *Room) NewTaskWaitForFreeSlot(ctx context.Context, job func() any) error {
	ro.wg.Add(1)
	err := ro.wp.Submit(ctx, func() {
		defer ro.wg.Done()
		ro.resultChan <- job()
	})
	if err != nil {
		ro.wg.Done()
	}
	return err
}

// Collect waits for every task of the room and returns the results in
// completion order. No tasks may be added after Collect was called.
func (ro *Room) Collect() []any {
	go func() {
		ro.wg.Wait()
		close(ro.resultChan)
	}()

	results := make([]any, 0)
	for result := range ro.resultChan {
		results = append(results, result)
	}
	return results
}
