package main

import "sync"

// uiQueue applies widget updates from background goroutines (link
// notifications, print completions) one at a time, in the order posted.
type uiQueue struct {
	updates chan func()
	done    chan struct{}
	once    sync.Once
}

func newUIQueue(size int) *uiQueue {
	return &uiQueue{
		updates: make(chan func(), size),
		done:    make(chan struct{}),
	}
}

// post queues fn. After stop it is dropped.
func (q *uiQueue) post(fn func()) {
	select {
	case <-q.done:
	case q.updates <- fn:
	}
}

func (q *uiQueue) run() {
	for {
		select {
		case <-q.done:
			return
		case fn := <-q.updates:
			fn()
		}
	}
}

func (q *uiQueue) stop() {
	q.once.Do(func() { close(q.done) })
}
