// Package async runs a batch of named tasks over a fixed-size worker pool
// and collects the per-task outcomes. Used for fan-out against the content
// service where one slow call must not serialize the rest of the batch.
package async

import (
	"context"
	"sync"
)

// Task is one unit of work. Names must be unique within a batch; the result
// map is keyed by them.
type Task struct {
	Name    string
	Execute func() (interface{}, error)
}

// Result is the outcome of one task. A task the context cancelled before it
// ran has no Result at all.
type Result struct {
	Name string
	Data interface{}
	Err  error
}

// Pool bounds the concurrency of a batch. A Pool is single-use: build one
// per Execute call.
type Pool struct {
	workers int
	queue   chan Task
	done    chan Result
}

// NewPool creates a pool running at most workers tasks concurrently.
func NewPool(workers int) *Pool {
	return &Pool{
		workers: workers,
		queue:   make(chan Task),
		done:    make(chan Result),
	}
}

// Execute runs the batch and blocks until every task finished or the context
// was cancelled. The returned map holds one Result per completed task;
// cancelled-before-start tasks are simply absent.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.run(ctx)
		}()
	}

	go func() {
		defer close(p.queue)
		for _, task := range tasks {
			select {
			case p.queue <- task:
			case <-ctx.Done():
				return
			}
		}
	}()

	results := make(map[string]Result, len(tasks))
	for range tasks {
		select {
		case result := <-p.done:
			results[result.Name] = result
		case <-ctx.Done():
			return results
		}
	}

	wg.Wait()
	close(p.done)
	return results
}

func (p *Pool) run(ctx context.Context) {
	for {
		select {
		case task, ok := <-p.queue:
			if !ok {
				return
			}
			data, err := task.Execute()
			p.done <- Result{Name: task.Name, Data: data, Err: err}
		case <-ctx.Done():
			return
		}
	}
}
