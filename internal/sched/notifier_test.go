package sched

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_SignalCoalesces(t *testing.T) {
	n := newNotifier()
	n.signal()
	n.signal()
	n.signal()

	select {
	case <-n.chanOf():
	default:
		t.Fatal("expected a pending wakeup")
	}

	select {
	case <-n.chanOf():
		t.Fatal("expected only one coalesced wakeup")
	default:
	}
}

func TestCondNotifier_WaitBlocksUntilSignal(t *testing.T) {
	c := newCondNotifier()
	done := make(chan struct{})

	go func() {
		c.wait()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("wait returned before signal")
	case <-time.After(20 * time.Millisecond):
	}

	c.signal()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait did not return after signal")
	}
}

func TestCondNotifier_SignalCoalesces(t *testing.T) {
	c := newCondNotifier()
	c.signal()
	c.signal()

	// Both pending signals should be consumed by a single wait; a second
	// wait must block until a fresh signal arrives.
	c.wait()

	waited := make(chan struct{})
	go func() {
		c.wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("second wait should not return without a new signal")
	case <-time.After(20 * time.Millisecond):
	}
	c.signal()
	<-waited
}

func TestReadyQueue_FIFOOrder(t *testing.T) {
	q := newReadyQueue()
	q.push(3)
	q.push(1)
	q.push(2)

	first, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, 3, first)

	second, _ := q.pop()
	assert.Equal(t, 1, second)

	third, _ := q.pop()
	assert.Equal(t, 2, third)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestReadyQueue_DedupsPendingEntries(t *testing.T) {
	q := newReadyQueue()
	q.push(5)
	q.push(5)
	q.push(5)

	assert.Equal(t, 1, q.len())
}
