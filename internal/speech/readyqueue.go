package speech

import (
	"container/heap"
	"sync"

	"github.com/MrWong99/vocalis/pkg/audio"
)

// job is one synthesised (or failed) unit waiting for playback, or the end
// marker queued after the last unit.
type job struct {
	seq   int // position in the Speak call
	unit  Unit
	audio audio.Buffer
	err   error

	end      bool
	complete bool // end marker: every unit of the stream was queued
}

// jobHeap implements [container/heap.Interface] as a min-heap on seq.
type jobHeap []job

func (h jobHeap) Len() int           { return len(h) }
func (h jobHeap) Less(i, j int) bool { return h[i].seq < h[j].seq }
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *jobHeap) Push(x any) { *h = append(*h, x.(job)) }

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = job{}
	*h = old[:n-1]
	return j
}

// readyQueue collects completed jobs from synthesis workers and releases
// them strictly in order. Workers publish in any order; the sequencer asks
// for exactly the next position and waits until it is at the top of the heap.
//
// All methods are safe for concurrent use.
type readyQueue struct {
	mu     sync.Mutex
	h      jobHeap
	notify chan struct{} // buffered(1); signalled on every publish
}

func newReadyQueue(capacity int) *readyQueue {
	return &readyQueue{
		h:      make(jobHeap, 0, capacity),
		notify: make(chan struct{}, 1),
	}
}

// publish adds a completed job and wakes the sequencer.
func (q *readyQueue) publish(j job) {
	q.mu.Lock()
	heap.Push(&q.h, j)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// take removes and returns the job for seq if it is ready.
func (q *readyQueue) take(seq int) (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.h) == 0 || q.h[0].seq != seq {
		return job{}, false
	}
	return heap.Pop(&q.h).(job), true
}

// wait blocks until seq is ready or done is closed.
func (q *readyQueue) wait(seq int, done <-chan struct{}) (job, bool) {
	for {
		if j, ok := q.take(seq); ok {
			return j, true
		}
		select {
		case <-q.notify:
		case <-done:
			return job{}, false
		}
	}
}

// discard drops every pending job and returns how many were dropped.
func (q *readyQueue) discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.h)
	clear(q.h)
	q.h = q.h[:0]
	return n
}
