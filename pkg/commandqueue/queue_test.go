package commandqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCommandQueue_BasicEnqueue(t *testing.T) {
	cq := New()
	defer cq.Close()

	executed := false
	task := func(ctx context.Context) (interface{}, error) {
		executed = true
		return "result", nil
	}

	result, err := cq.Enqueue(context.Background(), "test", task)

	assert.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.True(t, executed)
}

func TestCommandQueue_TaskError(t *testing.T) {
	cq := New()
	defer cq.Close()

	expectedErr := errors.New("task failed")
	task := func(ctx context.Context) (interface{}, error) {
		return nil, expectedErr
	}

	result, err := cq.Enqueue(context.Background(), "test", task)

	assert.Error(t, err)
	assert.Equal(t, expectedErr, err)
	assert.Nil(t, result)
}

func TestCommandQueue_SerialExecutionPerLane(t *testing.T) {
	cq := New()
	defer cq.Close()

	var running int
	var maxRunning int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task := func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				running++
				if running > maxRunning {
					maxRunning = running
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				running--
				mu.Unlock()
				return nil, nil
			}
			_, _ = cq.Enqueue(context.Background(), "session-abc", task)
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	// Same lane never runs two tasks at once.
	assert.Equal(t, 1, maxRunning)
}

func TestCommandQueue_ConcurrentLanes(t *testing.T) {
	cq := New()
	defer cq.Close()

	var count1, count2 int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = cq.Enqueue(context.Background(), "lane1", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				count1++
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				return nil, nil
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = cq.Enqueue(context.Background(), "lane2", func(ctx context.Context) (interface{}, error) {
				mu.Lock()
				count2++
				mu.Unlock()
				time.Sleep(20 * time.Millisecond)
				return nil, nil
			})
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, count1)
	assert.Equal(t, 3, count2)
}

func TestCommandQueue_Idempotency(t *testing.T) {
	cq := New()
	defer cq.Close()

	calls := 0
	task := func(ctx context.Context) (interface{}, error) {
		calls++
		return "first", nil
	}

	result, err := cq.EnqueueIdempotent(context.Background(), "test", "req-1", task)
	assert.NoError(t, err)
	assert.Equal(t, "first", result)

	// Same request id: cached result, task not re-run.
	result, err = cq.EnqueueIdempotent(context.Background(), "test", "req-1", func(ctx context.Context) (interface{}, error) {
		calls++
		return "second", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "first", result)
	assert.Equal(t, 1, calls)
}

func TestCommandQueue_QueueSize(t *testing.T) {
	cq := New()
	defer cq.Close()

	assert.Equal(t, 0, cq.QueueSize("missing"))
	assert.Equal(t, 0, cq.RunningCount("missing"))
}
