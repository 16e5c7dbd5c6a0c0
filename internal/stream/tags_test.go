package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagQueue_InsertKeepsSortedOrder(t *testing.T) {
	q := NewTagQueue[string]()
	q.Insert(30, "c")
	q.Insert(10, "a")
	q.Insert(20, "b")

	all := q.Range(0, 1000)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{10, 20, 30}, []uint64{all[0].Index, all[1].Index, all[2].Index})
	assert.Equal(t, "a", all[0].Value)
	assert.Equal(t, "c", all[2].Value)
}

func TestTagQueue_RangeIsHalfOpen(t *testing.T) {
	q := NewTagQueue[int]()
	for _, idx := range []uint64{5, 10, 15, 20} {
		q.Insert(idx, int(idx))
	}

	got := q.Range(10, 20)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(10), got[0].Index)
	assert.Equal(t, uint64(15), got[1].Index)
}

func TestTagQueue_PruneDropsOlderEntries(t *testing.T) {
	q := NewTagQueue[int]()
	for _, idx := range []uint64{1, 2, 3, 4, 5} {
		q.Insert(idx, int(idx))
	}

	q.Prune(3)
	assert.Equal(t, 3, q.Len())

	remaining := q.Range(0, 100)
	assert.Equal(t, []uint64{3, 4, 5}, []uint64{remaining[0].Index, remaining[1].Index, remaining[2].Index})
}

func TestTagQueue_PruneAllWhenBeforeExceedsMax(t *testing.T) {
	q := NewTagQueue[int]()
	q.Insert(1, 1)
	q.Insert(2, 2)

	q.Prune(1000)
	assert.Equal(t, 0, q.Len())
}

func TestTagQueue_DuplicateIndicesPreserveInsertionOrder(t *testing.T) {
	q := NewTagQueue[string]()
	q.Insert(5, "first")
	q.Insert(5, "second")

	got := q.Range(0, 10)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Value)
	assert.Equal(t, "second", got[1].Value)
}
