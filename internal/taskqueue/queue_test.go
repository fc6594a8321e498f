package taskqueue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New(4)
	q.Enqueue(Task{Filename: "a"})
	q.Enqueue(Task{Filename: "b"})
	q.Enqueue(Task{Filename: "c"})

	task, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "a", task.Filename)

	task, ok = q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "b", task.Filename)

	assert.Equal(t, 1, q.Len())
}

func TestEnqueueBlocksWhenFull(t *testing.T) {
	q := New(1)
	q.Enqueue(Task{Filename: "first"})

	enqueued := make(chan struct{})
	go func() {
		q.Enqueue(Task{Filename: "second"})
		close(enqueued)
	}()

	select {
	case <-enqueued:
		t.Fatal("enqueue on a full queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	_, ok := q.Dequeue()
	require.True(t, ok)

	select {
	case <-enqueued:
	case <-time.After(time.Second):
		t.Fatal("enqueue should unblock after a slot frees up")
	}
	assert.Equal(t, 1, q.Len())
}

func TestDequeueBlocksUntilShutdown(t *testing.T) {
	q := New(2)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Dequeue()
		done <- ok
	}()

	select {
	case <-done:
		t.Fatal("dequeue on an empty queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	q.Shutdown()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("dequeue should return the shutdown sentinel")
	}
}

func TestProgressCountersAndAllDone(t *testing.T) {
	q := New(8)
	for i := 0; i < 5; i++ {
		q.Enqueue(Task{Filename: "f"})
	}
	assert.Equal(t, uint64(5), q.TotalTasks())
	assert.Equal(t, uint64(0), q.CompletedTasks())

	waitDone := make(chan struct{})
	go func() {
		q.WaitAllDone()
		close(waitDone)
	}()

	for i := 0; i < 4; i++ {
		_, _ = q.Dequeue()
		q.MarkCompleted()
	}
	select {
	case <-waitDone:
		t.Fatal("WaitAllDone returned before completed reached total")
	case <-time.After(50 * time.Millisecond):
	}

	_, _ = q.Dequeue()
	q.MarkCompleted()

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("WaitAllDone should return once completed == total")
	}
	assert.Equal(t, q.TotalTasks(), q.CompletedTasks())
}

func TestConcurrentProducersPreserveCount(t *testing.T) {
	q := New(64)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				q.Enqueue(Task{Filename: "x"})
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, uint64(40), q.TotalTasks())

	drained := 0
	for drained < 40 {
		if _, ok := q.Dequeue(); ok {
			drained++
		}
	}
	assert.Equal(t, 40, drained)
}
