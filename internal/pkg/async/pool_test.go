package async

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCollectsAllResults(t *testing.T) {
	tasks := make([]Task, 10)
	for i := range tasks {
		n := i
		tasks[i] = Task{
			Name: fmt.Sprintf("task-%d", n),
			Execute: func() (interface{}, error) {
				if n%3 == 0 {
					return nil, errors.New("boom")
				}
				return n * 2, nil
			},
		}
	}

	results := NewPool(4).Execute(context.Background(), tasks)
	require.Len(t, results, 10)

	assert.Error(t, results["task-0"].Err)
	assert.NoError(t, results["task-1"].Err)
	assert.Equal(t, 2, results["task-1"].Data)
	assert.Error(t, results["task-9"].Err)
}

func TestExecuteBoundsConcurrency(t *testing.T) {
	var active, peak int32
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("task-%d", i),
			Execute: func() (interface{}, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil, nil
			},
		}
	}

	NewPool(2).Execute(context.Background(), tasks)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestExecuteReturnsEarlyOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("slow-%d", i),
			Execute: func() (interface{}, error) {
				time.Sleep(500 * time.Millisecond)
				return nil, nil
			},
		}
	}

	start := time.Now()
	results := NewPool(2).Execute(ctx, tasks)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Less(t, len(results), len(tasks))
}

func TestExecuteEmptyBatch(t *testing.T) {
	results := NewPool(3).Execute(context.Background(), nil)
	assert.Empty(t, results)
}
