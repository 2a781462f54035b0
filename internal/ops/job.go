// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package ops

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Error returned synchronously by Validate, before any work is dispatched
type ValidationError struct {
	Op  string
	Msg string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Creates a validation error for the given operator type
func Invalid(op string, format string, args ...interface{}) error {
	return &ValidationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Delivers a function call on the UI goroutine and returns once it has run
type Deliverer interface {
	Deliver(fn func())
}

// Deliverer running functions directly on the calling goroutine. For CLI and REST use
type SyncDeliverer struct {
	mutex sync.Mutex
}

func (d *SyncDeliverer) Deliver(fn func()) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	fn()
}

// A running operator invocation
type Job struct {
	Type string
	done chan struct{}
	err  error
}

// Channel closed when the job has terminated
func (j *Job) Done() <-chan struct{} { return j.done }

// Waits for the job to terminate and returns its terminal error, if any
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Validates the operator synchronously, then runs a copy of it on a worker goroutine.
// Each yielded result is handed to onResult via the deliverer, and the worker waits
// for the delivery before computing further results
func Dispatch(ctx context.Context, op Operator, in *Inputs, c *Context, d Deliverer, onResult func(*Result) error) (*Job, error) {
	if err := op.Validate(in); err != nil {
		return nil, err
	}
	opCopy, err := CloneOperator(op)
	if err != nil {
		return nil, err
	}
	if d == nil {
		d = &SyncDeliverer{}
	}
	job := &Job{Type: op.GetType(), done: make(chan struct{})}
	go func() {
		defer close(job.done)
		yield := func(r *Result) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var deliveryErr error
			d.Deliver(func() { deliveryErr = onResult(r) })
			return deliveryErr
		}
		job.err = runRecovered(ctx, opCopy, in, c, yield)
		if job.err != nil {
			c.Notify.WithField("op", job.Type).Error(job.err.Error())
		}
	}()
	return job, nil
}

// Runs the operator, converting a panic into an error
func runRecovered(ctx context.Context, op Operator, in *Inputs, c *Context, yield Yield) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: internal error: %v", op.GetType(), r)
		}
	}()
	return op.Run(ctx, in, c, yield)
}

// Validates and runs the operator on the calling goroutine, collecting all results
func RunSync(ctx context.Context, op Operator, in *Inputs, c *Context) ([]*Result, error) {
	var results []*Result
	job, err := Dispatch(ctx, op, in, c, &SyncDeliverer{}, func(r *Result) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = job.Wait()
	return results, err
}

// Runs fn(i) for i in [0,n), with at most maxThreads invocations active at any time.
// Returns the first error encountered
func ParallelFrames(n, maxThreads int, fn func(i int) error) error {
	if maxThreads < 1 {
		maxThreads = 1
	}
	limiter := make(chan bool, maxThreads)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		limiter <- true
		go func(i int) {
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("frame %d: internal error: %v", i, r)
				}
				<-limiter
			}()
			errs[i] = fn(i)
		}(i)
	}
	for i := 0; i < cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Logrus hook collecting the messages of status notifications, e.g. for REST responses
type StatusHook struct {
	mutex    sync.Mutex
	Messages []string
}

func (h *StatusHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *StatusHook) Fire(e *logrus.Entry) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.Messages = append(h.Messages, e.Message)
	return nil
}

// Returns a copy of the messages collected so far
func (h *StatusHook) Collected() []string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return append([]string(nil), h.Messages...)
}
