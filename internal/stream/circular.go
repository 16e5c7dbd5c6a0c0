package stream

import (
	"sync"
	"unsafe"
)

// Circular is a generic stream buffer over the double-mapped byte ring,
// reinterpreting byte spans as []T slices. Capacity is rounded up to a
// whole number of items, itself rounded up to a page of bytes by the
// underlying ring.
//
// Circular is safe for one writer goroutine concurrent with one reader
// goroutine (SPSC); Close may be called from either side.
type Circular[T any] struct {
	r *ring

	mu     sync.Mutex
	closed bool
}

// NewCircular creates a Circular stream buffer able to hold at least
// minItems items of type T without blocking the writer.
func NewCircular[T any](minItems int) (*Circular[T], error) {
	var zero T
	itemSize := int(unsafe.Sizeof(zero))
	if itemSize == 0 {
		itemSize = 1
	}
	r, err := newRing(minItems * itemSize)
	if err != nil {
		return nil, err
	}
	return &Circular[T]{r: r}, nil
}

func bytesToItems[T any](b []byte) []T {
	var zero T
	itemSize := int(unsafe.Sizeof(zero))
	if itemSize == 0 || len(b) < itemSize {
		return nil
	}
	n := len(b) / itemSize
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}

// Reserve returns writable space for up to n items.
func (c *Circular[T]) Reserve(n int) []T {
	var zero T
	itemSize := int(unsafe.Sizeof(zero))
	if itemSize == 0 {
		itemSize = 1
	}
	span := c.r.writeSpan(n * itemSize)
	return bytesToItems[T](span)
}

// Commit publishes the first n items written into the slice returned by
// Reserve.
func (c *Circular[T]) Commit(n int) {
	var zero T
	itemSize := int(unsafe.Sizeof(zero))
	if itemSize == 0 {
		itemSize = 1
	}
	c.r.commitWrite(n * itemSize)
}

// Writable returns a channel signaled when writable space frees up.
func (c *Circular[T]) Writable() <-chan struct{} {
	return c.r.writable
}

// SetMinWritable gates Writable() so it only fires once at least k items'
// worth of space is free.
func (c *Circular[T]) SetMinWritable(k int) {
	c.r.setMinWritable(k * c.itemSize())
}

func (c *Circular[T]) itemSize() int {
	var zero T
	n := int(unsafe.Sizeof(zero))
	if n == 0 {
		n = 1
	}
	return n
}

// Close marks the buffer finished.
func (c *Circular[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Peek returns the currently readable items without consuming them.
func (c *Circular[T]) Peek() []T {
	var zero T
	itemSize := int(unsafe.Sizeof(zero))
	if itemSize == 0 {
		itemSize = 1
	}
	span := c.r.readSpan(c.r.readableLen() / itemSize * itemSize)
	return bytesToItems[T](span)
}

// Consume removes n items from the front of the buffer.
func (c *Circular[T]) Consume(n int) {
	var zero T
	itemSize := int(unsafe.Sizeof(zero))
	if itemSize == 0 {
		itemSize = 1
	}
	c.r.commitRead(n * itemSize)
}

// Readable returns a channel signaled when more items become available.
func (c *Circular[T]) Readable() <-chan struct{} {
	return c.r.readable
}

// SetMinReadable gates Readable() so it only fires once at least k items
// are available to read.
func (c *Circular[T]) SetMinReadable(k int) {
	c.r.setMinReadable(k * c.itemSize())
}

// Finished reports true once Close has been called and every previously
// produced item has been consumed (spec.md §4.2 reader-side finished()).
func (c *Circular[T]) Finished() bool {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	return closed && c.r.readableLen() == 0
}

// Capacity returns the number of items the buffer can hold.
func (c *Circular[T]) Capacity() int {
	var zero T
	itemSize := int(unsafe.Sizeof(zero))
	if itemSize == 0 {
		itemSize = 1
	}
	return c.r.capacity / itemSize
}

// release frees the underlying mapping. Only tests call it; a Flowgraph
// does not release its edges' mappings at block teardown.
func (c *Circular[T]) release() error {
	return c.r.close()
}
