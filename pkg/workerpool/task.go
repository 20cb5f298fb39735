package workerpool

import "context"

// Task is a unit of work a pool worker executes — in this driver, almost
// always "dequeue one queue.Entry, run its handler, push the Result to its
// response channel".
type Task interface {
	Execute(ctx context.Context) error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Execute(ctx context.Context) error {
	return f(ctx)
}
