package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlab_ReserveCommitFillsChunk(t *testing.T) {
	s := NewSlab[int](2, 4)

	buf := s.Reserve(4)
	require.Len(t, buf, 4)
	copy(buf, []int{1, 2, 3, 4})
	s.Commit(4)

	select {
	case <-s.Readable():
	default:
		t.Fatal("expected readable signal after chunk fill")
	}

	got := s.Peek()
	assert.Equal(t, []int{1, 2, 3, 4}, got)
}

func TestSlab_ReserveReturnsNilWhenNoFreeChunks(t *testing.T) {
	s := NewSlab[int](1, 2)

	buf := s.Reserve(2)
	require.NotNil(t, buf)
	s.Commit(2) // fills the only chunk, moved to full queue

	// no free chunk left until the reader drains one
	assert.Nil(t, s.Reserve(1))
}

func TestSlab_ConsumeReturnsChunkToFreePool(t *testing.T) {
	s := NewSlab[int](1, 2)

	buf := s.Reserve(2)
	copy(buf, []int{7, 8})
	s.Commit(2)

	got := s.Peek()
	require.Len(t, got, 2)
	s.Consume(2)

	select {
	case <-s.Writable():
	default:
		t.Fatal("expected writable signal after chunk drain")
	}

	// chunk should be back in the free pool now
	next := s.Reserve(2)
	assert.Len(t, next, 2)
}

func TestSlab_PartialReserveWhenChunkNearlyFull(t *testing.T) {
	s := NewSlab[int](1, 4)

	first := s.Reserve(3)
	require.Len(t, first, 3)
	s.Commit(3)

	second := s.Reserve(3)
	assert.Len(t, second, 1, "only one slot left in the chunk")
}

func TestSlab_CloseFlushesPartialChunk(t *testing.T) {
	s := NewSlab[int](1, 4)

	buf := s.Reserve(2)
	copy(buf, []int{9, 10})
	s.Commit(2)
	s.Close()

	got := s.Peek()
	assert.Equal(t, []int{9, 10}, got)
}

func TestSlab_PeekReturnsNilWhenNoChunkReady(t *testing.T) {
	s := NewSlab[int](1, 4)
	assert.Nil(t, s.Peek())
}

func TestSlab_RoundTripsMultipleChunks(t *testing.T) {
	s := NewSlab[int](2, 2)

	for i := 0; i < 3; i++ {
		buf := s.Reserve(2)
		require.Len(t, buf, 2)
		copy(buf, []int{i, i + 1})
		s.Commit(2)

		got := s.Peek()
		require.Len(t, got, 2)
		assert.Equal(t, []int{i, i + 1}, got)
		s.Consume(2)
	}
}
