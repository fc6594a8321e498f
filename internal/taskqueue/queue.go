// Package taskqueue implements the bounded circular Task Queue (C2) that
// feeds the NFS worker pool. It is the producer/consumer backbone of the
// NFS manager: add enqueues per-file Tasks, and the fixed worker pool
// (internal/nfspool) dequeues and drives each one through the data-node
// protocol.
package taskqueue

import "sync"

// Task is a single-file unit of work: one source file, fully addressed,
// destined for one target. A Task is produced by the command dispatcher (on
// add) and consumed exactly once by a pool worker.
type Task struct {
	SourcePath string
	TargetPath string
	SourceHost string
	SourcePort int
	TargetHost string
	TargetPort int
	Filename   string
}

// Queue is a fixed-capacity circular buffer of Tasks guarded by two
// condition variables (not-full, not-empty) so producers and consumers
// never thundering-herd each other (spec.md §9). Progress counters
// (TotalTasks/CompletedTasks) live under a second, independent mutex since
// they are read by the shutdown path without touching the buffer itself.
type Queue struct {
	mu      sync.Mutex
	notFull *sync.Cond
	notEmpty *sync.Cond

	buf   []Task
	head  int
	tail  int
	count int

	shuttingDown bool

	progressMu sync.Mutex
	allDone    *sync.Cond
	total      uint64
	completed  uint64
}

// New creates a Queue with the given fixed capacity. capacity must be
// positive.
func New(capacity int) *Queue {
	if capacity <= 0 {
		panic("taskqueue: capacity must be positive")
	}
	q := &Queue{buf: make([]Task, capacity)}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	q.allDone = sync.NewCond(&q.progressMu)
	return q
}

// Enqueue blocks while the queue is full, then appends t and increments
// TotalTasks. It is safe to call concurrently from multiple producers;
// ordering between them is whichever order they acquire the queue mutex
// (spec.md §4.2).
func (q *Queue) Enqueue(t Task) {
	q.mu.Lock()
	for q.count >= len(q.buf) {
		q.notFull.Wait()
	}
	q.buf[q.tail] = t
	q.tail = (q.tail + 1) % len(q.buf)
	q.count++
	q.notEmpty.Signal()
	q.mu.Unlock()

	q.progressMu.Lock()
	q.total++
	q.progressMu.Unlock()
}

// Dequeue blocks while the queue is empty. It returns ok=false only once
// Shutdown has been called and the queue has drained, which is the signal
// for a worker to exit its loop.
func (q *Queue) Dequeue() (t Task, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.count <= 0 {
		if q.shuttingDown {
			return Task{}, false
		}
		q.notEmpty.Wait()
	}
	t = q.buf[q.head]
	q.buf[q.head] = Task{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.notFull.Signal()
	return t, true
}

// Shutdown flips the queue into drain-and-exit mode and wakes every waiting
// consumer so each observes the sentinel and exits. Further Dequeue calls
// on an empty queue return immediately with ok=false.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.shuttingDown = true
	q.notEmpty.Broadcast()
	q.mu.Unlock()
}

// Len returns the current number of queued tasks (0 <= Len() <= Cap()).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Cap returns the queue's fixed capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// MarkCompleted increments CompletedTasks and, once it catches up with
// TotalTasks, wakes every goroutine blocked in WaitAllDone. Workers call
// this exactly once per dequeued Task regardless of outcome (success,
// failure, or skipped because the pair was cancelled).
func (q *Queue) MarkCompleted() {
	q.progressMu.Lock()
	q.completed++
	if q.completed >= q.total {
		q.allDone.Broadcast()
	}
	q.progressMu.Unlock()
}

// TotalTasks returns the monotonically increasing count of tasks ever
// enqueued.
func (q *Queue) TotalTasks() uint64 {
	q.progressMu.Lock()
	defer q.progressMu.Unlock()
	return q.total
}

// CompletedTasks returns the monotonically increasing count of tasks
// dequeued and finished by a worker.
func (q *Queue) CompletedTasks() uint64 {
	q.progressMu.Lock()
	defer q.progressMu.Unlock()
	return q.completed
}

// WaitAllDone blocks until CompletedTasks equals TotalTasks. This is the
// Shutdown Coordinator's drain wait for the NFS engine (spec.md §4.8).
func (q *Queue) WaitAllDone() {
	q.progressMu.Lock()
	for q.completed < q.total {
		q.allDone.Wait()
	}
	q.progressMu.Unlock()
}
