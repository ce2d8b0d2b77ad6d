package patchbay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"
)

const defaultMailboxSize = 256

// Loop runs submitted functions one at a time on a single goroutine.
//
// Hosts that drive the Router from several goroutines (a clock ticker, a MIDI
// input, a UI thread) submit every emit and every structural change to one
// Loop, which gives them the single-threaded ordering of an event loop.
type Loop struct {
	log  logr.Logger
	size int

	tasks     chan task
	closed    chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	running   atomic.Bool
}

type task struct {
	fn   func()
	done chan error
}

func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		log:  logr.Discard(),
		size: defaultMailboxSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.tasks = make(chan task, l.size)
	l.closed = make(chan struct{})
	l.stopped = make(chan struct{})
	return l
}

// Run executes submitted functions until ctx is done or Close is called.
// Functions still queued at that point are not run; callers waiting in Do
// get ErrLoopClosed.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer close(l.stopped)
	defer l.Close()

	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case <-l.closed:
			l.drain()
			return nil
		case t := <-l.tasks:
			err := l.execute(t.fn)
			if t.done != nil {
				t.done <- err
			}
		}
	}
}

// Submit queues fn without waiting for it to run.
func (l *Loop) Submit(fn func()) error {
	return l.enqueue(task{fn: fn})
}

// Do queues fn and waits until it ran. A panic in fn is returned as an error.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	t := task{fn: fn, done: make(chan error, 1)}
	if err := l.enqueue(t); err != nil {
		return err
	}

	select {
	case err := <-t.done:
		return err
	case <-l.stopped:
		// The task may have completed just before the loop stopped.
		select {
		case err := <-t.done:
			return err
		default:
			return ErrLoopClosed
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the loop. It is safe to call more than once.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.closed)
	})
}

func (l *Loop) enqueue(t task) error {
	select {
	case <-l.closed:
		return ErrLoopClosed
	default:
	}

	select {
	case l.tasks <- t:
		return nil
	case <-l.closed:
		return ErrLoopClosed
	}
}

func (l *Loop) execute(fn func()) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("loop task panicked: %v", p)
			l.log.Error(err, "Recovered panic in loop task")
		}
	}()
	fn()
	return nil
}

func (l *Loop) drain() {
	for {
		select {
		case t := <-l.tasks:
			if t.done != nil {
				t.done <- ErrLoopClosed
			}
		default:
			return
		}
	}
}
