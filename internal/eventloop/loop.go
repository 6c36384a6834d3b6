// Package eventloop serializes all state mutations of the chat engine onto a
// single goroutine.
package eventloop

import (
	"context"
	"sync"
)

type Executor interface {
	// Post schedules f to run on the loop and returns immediately.
	Post(f func())
	// Do runs f on the loop and waits for it to finish.
	Do(f func())
}

// Loop runs callbacks on the goroutine calling Run. Once Run has returned,
// callbacks still queued and any posted later run on the posting goroutine,
// one at a time and in order, so teardown work is never lost.
type Loop struct {
	queue    chan func()
	stopping chan struct{}
	done     chan struct{}

	// mu guards stopped; posters hold it shared while handing f to the queue.
	mu      sync.RWMutex
	stopped bool

	backlogMu sync.Mutex
	backlog   []func()
	draining  bool
}

func New(size int) *Loop {
	if size <= 0 {
		size = 256
	}
	return &Loop{
		queue:    make(chan func(), size),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled. It must be called exactly once.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.stop()
			return
		case f := <-l.queue:
			f()
		}
	}
}

func (l *Loop) stop() {
	close(l.stopping)

	l.mu.Lock()
	l.stopped = true
	var left []func()
	for len(l.queue) > 0 {
		left = append(left, <-l.queue)
	}
	l.mu.Unlock()

	l.backlogMu.Lock()
	l.backlog = append(left, l.backlog...)
	l.backlogMu.Unlock()

	close(l.done)
	l.drain(nil)
}

func (l *Loop) Post(f func()) {
	l.mu.RLock()
	if !l.stopped {
		select {
		case l.queue <- f:
			l.mu.RUnlock()
			return
		case <-l.stopping:
		}
	}
	l.mu.RUnlock()

	<-l.done
	l.drain(f)
}

// Do waits for f even when the loop stops in between. Calling Do from a
// callback deadlocks.
func (l *Loop) Do(f func()) {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		f()
	})
	<-finished
}

// drain runs the backlog after Run has returned. Only one goroutine drains
// at a time; others append and leave.
func (l *Loop) drain(f func()) {
	l.backlogMu.Lock()
	if f != nil {
		l.backlog = append(l.backlog, f)
	}
	if l.draining {
		l.backlogMu.Unlock()
		return
	}
	l.draining = true

	for len(l.backlog) > 0 {
		next := l.backlog[0]
		l.backlog = l.backlog[1:]
		l.backlogMu.Unlock()
		next()
		l.backlogMu.Lock()
	}
	l.draining = false
	l.backlogMu.Unlock()
}

// Inline runs every callback on the caller's goroutine. Tests use it together
// with clocktest.Fake to drive the engine step by step.
type Inline struct{}

func (Inline) Post(f func()) { f() }

func (Inline) Do(f func()) { f() }
