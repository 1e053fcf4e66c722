package module

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/simpleiot/assettracker/metrics"
)

// DefaultQueueSize is the capacity of a module queue
const DefaultQueueSize = 10

// Queue is a bounded FIFO that never blocks on enqueue. When a message
// arrives at a full queue, every queued message is discarded and the new
// one is inserted.
type Queue[T any] struct {
	name    string
	ch      chan T
	lock    sync.Mutex
	log     *logrus.Entry
	metrics *metrics.Metrics
}

// NewQueue creates a queue for the named module
func NewQueue[T any](name string, size int, log *logrus.Entry, m *metrics.Metrics) *Queue[T] {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Queue[T]{
		name:    name,
		ch:      make(chan T, size),
		log:     log,
		metrics: m,
	}
}

// Enqueue adds msg. It is safe to call from any goroutine.
func (q *Queue[T]) Enqueue(msg T) {
	q.lock.Lock()
	defer q.lock.Unlock()

	select {
	case q.ch <- msg:
		return
	default:
	}

	purged := q.purge()
	q.log.Warnf("Message queue full, %v messages purged", purged)
	q.metrics.Purged(q.name)

	// only Enqueue sends and it holds the lock, so there is room now
	q.ch <- msg
}

func (q *Queue[T]) purge() int {
	count := 0
	for {
		select {
		case <-q.ch:
			count++
		default:
			return count
		}
	}
}

// Dequeue blocks until a message is available or stop is closed. ok is
// false when stopped.
func (q *Queue[T]) Dequeue(stop <-chan struct{}) (msg T, ok bool) {
	select {
	case msg = <-q.ch:
		return msg, true
	case <-stop:
		return msg, false
	}
}

// C exposes the receive side for select loops that wait on more than the
// queue.
func (q *Queue[T]) C() <-chan T {
	return q.ch
}

// Len returns the number of queued messages
func (q *Queue[T]) Len() int {
	return len(q.ch)
}
