package msgfabric

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputPort_SingleEdgePreservesOrder(t *testing.T) {
	port := NewInputPort[int](8)
	edge := NewEdge[int](4)
	port.Attach(edge)
	defer port.Close()

	for i := 0; i < 5; i++ {
		edge <- i
	}

	for i := 0; i < 5; i++ {
		select {
		case got := <-port.Chan():
			assert.Equal(t, i, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestInputPort_FanInFromMultipleEdges(t *testing.T) {
	port := NewInputPort[string](16)
	a := NewEdge[string](4)
	b := NewEdge[string](4)
	port.Attach(a)
	port.Attach(b)
	defer port.Close()

	a <- "a1"
	a <- "a2"
	b <- "b1"

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case m := <-port.Chan():
			got[m] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for fan-in message")
		}
	}
	assert.True(t, got["a1"])
	assert.True(t, got["a2"])
	assert.True(t, got["b1"])
}

func TestInputPort_CloseStopsForwarding(t *testing.T) {
	port := NewInputPort[int](4)
	edge := NewEdge[int](4)
	port.Attach(edge)

	port.Close()

	// Sending after Close should not deliver, since the forwarder exited.
	select {
	case edge <- 1:
	default:
	}

	select {
	case <-port.Chan():
		t.Fatal("expected no delivery after Close")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCaller_CallReceivesMatchingReply(t *testing.T) {
	c := NewCaller[string]()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := c.Call(ctx, func(replyID uint64) error {
		go c.Reply(replyID, fmt.Sprintf("reply-%d", replyID))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "reply-1", got)
}

func TestCaller_CallTimesOutWithoutReply(t *testing.T) {
	c := NewCaller[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, func(replyID uint64) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCaller_ReplyAfterTimeoutReturnsFalse(t *testing.T) {
	c := NewCaller[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	var replyID uint64
	_, err := c.Call(ctx, func(id uint64) error {
		replyID = id
		return nil
	})
	cancel()
	require.Error(t, err)

	assert.False(t, c.Reply(replyID, "too late"))
}

func TestCaller_SendErrorShortCircuits(t *testing.T) {
	c := NewCaller[string]()
	wantErr := fmt.Errorf("send failed")

	_, err := c.Call(context.Background(), func(replyID uint64) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}
