// Package chanutil holds small concurrency helpers shared by the actors.
package chanutil

import "container/list"

// UnboundedQueue relays values from In to Out without ever blocking the
// sender on a full Out, by spilling into an in-memory list the way the
// daemon's peer-to-peer write path aggressively drains a pending-message
// list into a bounded send queue. It is the ingestor's answer to "never
// block on a slow engine": the producer's send onto In always completes
// as soon as a goroutine is pumping the queue.
type UnboundedQueue[T any] struct {
	In  chan T
	Out chan T

	quit chan struct{}
	done chan struct{}
}

// NewUnboundedQueue starts the pump goroutine and returns the queue. Call
// Close to stop it.
func NewUnboundedQueue[T any]() *UnboundedQueue[T] {
	q := &UnboundedQueue[T]{
		In:   make(chan T),
		Out:  make(chan T),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go q.pump()
	return q
}

// pump mirrors queueHandler's two-phase loop: first aggressively drain the
// pending list into Out, then block until either a new value arrives on In
// or the reader takes the value at the front of the list.
func (q *UnboundedQueue[T]) pump() {
	defer close(q.done)

	pending := list.New()
	for {
		for {
			elem := pending.Front()
			if elem == nil {
				break
			}

			select {
			case q.Out <- elem.Value.(T):
				pending.Remove(elem)
				continue
			case <-q.quit:
				return
			default:
			}
			break
		}

		// out stays nil (never ready) while nothing is pending.
		var (
			out   chan T
			front T
		)
		if elem := pending.Front(); elem != nil {
			out = q.Out
			front = elem.Value.(T)
		}

		select {
		case <-q.quit:
			return
		case v := <-q.In:
			pending.PushBack(v)
		case out <- front:
			pending.Remove(pending.Front())
		}
	}
}

// Close stops the pump goroutine. Pending values not yet delivered to Out
// are discarded.
func (q *UnboundedQueue[T]) Close() {
	close(q.quit)
	<-q.done
}
