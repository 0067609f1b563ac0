// Package worker runs blocking jobs off the event loop.
//
// Submit never blocks: jobs wait in an unbounded queue until one of the
// pool's slots frees up. Each finished job is reported on the Results
// channel, which the event loop drains.
package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/muxstorm/internal/muxerr"
)

// DefaultSize is the number of concurrent jobs when none is configured.
const DefaultSize = 4

// Func is a job. It should return promptly once ctx is done.
type Func func(ctx context.Context) (any, error)

// Result is a finished job.
type Result struct {
	Name  string
	Value any
	Err   error
}

type job struct {
	name string
	fn   Func
}

// Pool is a bounded set of goroutines fed from a queue.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	mu     sync.Mutex
	queue  []job
	notify chan struct{}

	results  chan Result
	closed   atomic.Bool
	inflight atomic.Int64
	dispatch sync.WaitGroup
}

// New creates a pool running at most size jobs at once.
func New(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = DefaultSize
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:     ctx,
		cancel:  cancel,
		notify:  make(chan struct{}, 1),
		results: make(chan Result, 64),
	}
	p.group.SetLimit(size)
	p.dispatch.Add(1)
	go p.dispatchLoop()
	return p
}

// Results delivers one Result per submitted job that ran.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Pending returns the number of queued or running jobs.
func (p *Pool) Pending() int {
	return int(p.inflight.Load())
}

// Submit queues a job. It returns muxerr.ErrClosed after Close.
func (p *Pool) Submit(name string, fn Func) error {
	if p.closed.Load() {
		return muxerr.ErrClosed
	}
	p.inflight.Add(1)
	p.mu.Lock()
	p.queue = append(p.queue, job{name: name, fn: fn})
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
	return nil
}

func (p *Pool) dispatchLoop() {
	defer p.dispatch.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notify:
		}
		for {
			p.mu.Lock()
			if len(p.queue) == 0 {
				p.mu.Unlock()
				break
			}
			j := p.queue[0]
			p.queue[0] = job{}
			p.queue = p.queue[1:]
			p.mu.Unlock()

			// Blocks while every slot is busy.
			p.group.Go(func() error {
				p.run(j)
				return nil
			})
		}
	}
}

func (p *Pool) run(j job) {
	defer p.inflight.Add(-1)
	res := Result{Name: j.name}
	func() {
		defer func() {
			if r := recover(); r != nil {
				res.Err = fmt.Errorf("job %s panicked: %v", j.name, r)
			}
		}()
		res.Value, res.Err = j.fn(p.ctx)
	}()
	select {
	case p.results <- res:
	case <-p.ctx.Done():
	}
}

// Close cancels running jobs, drops queued ones and waits for the pool's
// goroutines to finish. The Results channel is not closed.
func (p *Pool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.dispatch.Wait()
	_ = p.group.Wait()
}
