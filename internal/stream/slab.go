// Package stream implements the host and device stream buffer variants
// blocks read and write samples through.
package stream

import (
	"sync"
	"sync/atomic"
)

// Slab is a stream buffer backed by a fixed pool of N fixed-size chunks.
// A writer fills one chunk at a time; once full, the chunk is handed to
// the reader and a free chunk taken from the pool. This trades the byte-
// granular backpressure of Circular for chunk-granular throughput: good
// for blocks that naturally produce or consume whole frames at once.
//
// Slab is safe for one writer goroutine concurrent with one reader
// goroutine (SPSC), matching Circular's concurrency contract.
type Slab[T any] struct {
	chunkItems int

	free chan []T // chunks available to be written into
	full chan []T // chunks filled and waiting to be read

	mu     sync.Mutex
	closed bool

	writeChunk []T
	writeLen   int

	readChunk []T
	readOff   int

	readable chan struct{}
	writable chan struct{}

	// minReadableChunks/minWritableChunks gate Commit/Consume's notify
	// calls at whole-chunk granularity: a Slab only ever hands off full
	// chunks, so an item-level minItems is rounded up to the chunk count
	// it spans. 0 (the default) notifies on every completed handoff.
	minReadableChunks atomic.Int32
	minWritableChunks atomic.Int32
}

// NewSlab creates a Slab with n chunks of chunkItems items each. All n
// chunks start in the free pool.
func NewSlab[T any](n, chunkItems int) *Slab[T] {
	if n <= 0 {
		n = 1
	}
	if chunkItems <= 0 {
		chunkItems = 1
	}
	s := &Slab[T]{
		chunkItems: chunkItems,
		free:       make(chan []T, n),
		full:       make(chan []T, n),
		readable:   make(chan struct{}, 1),
		writable:   make(chan struct{}, 1),
	}
	for i := 0; i < n; i++ {
		s.free <- make([]T, chunkItems)
	}
	return s
}

// Reserve returns writable space for up to n items in the current write
// chunk. The returned slice may be shorter than n, or empty if no chunk
// is currently free — the caller should wait on Writable() and retry.
func (s *Slab[T]) Reserve(n int) []T {
	if s.writeChunk == nil {
		select {
		case c := <-s.free:
			s.writeChunk = c
			s.writeLen = 0
		default:
			return nil
		}
	}
	avail := s.chunkItems - s.writeLen
	if n > avail {
		n = avail
	}
	return s.writeChunk[s.writeLen : s.writeLen+n]
}

// Commit publishes the first n items of the slice returned by the most
// recent Reserve call. When the current chunk fills, it is handed to the
// reader and Readable() is signaled.
func (s *Slab[T]) Commit(n int) {
	if s.writeChunk == nil || n <= 0 {
		return
	}
	s.writeLen += n
	if s.writeLen >= s.chunkItems {
		full := s.writeChunk
		s.writeChunk = nil
		s.writeLen = 0
		s.full <- full
		if min := int(s.minReadableChunks.Load()); min <= 1 || len(s.full) >= min {
			notify(s.readable)
		}
	}
}

// Writable returns a channel that is signaled (coalesced) when a chunk
// returns to the free pool.
func (s *Slab[T]) Writable() <-chan struct{} {
	return s.writable
}

// SetMinReadable gates Readable() so it only fires once at least k items
// (rounded up to whole chunks) are queued to read.
func (s *Slab[T]) SetMinReadable(k int) {
	s.minReadableChunks.Store(int32(chunksFor(k, s.chunkItems)))
}

// SetMinWritable gates Writable() so it only fires once at least k items'
// worth of free chunks (rounded up) are available.
func (s *Slab[T]) SetMinWritable(k int) {
	s.minWritableChunks.Store(int32(chunksFor(k, s.chunkItems)))
}

func chunksFor(items, chunkItems int) int {
	if items <= 0 {
		return 0
	}
	return (items + chunkItems - 1) / chunkItems
}

// Close marks the buffer finished. Any partially-filled write chunk is
// flushed to the reader as a short final chunk.
func (s *Slab[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.writeChunk != nil && s.writeLen > 0 {
		s.full <- s.writeChunk[:s.writeLen]
		s.writeChunk = nil
		s.writeLen = 0
	}
	notify(s.readable)
}

// Peek returns the currently readable items of the active read chunk,
// pulling a new full chunk from the queue if none is active. It returns
// an empty slice if no chunk is ready yet.
func (s *Slab[T]) Peek() []T {
	if s.readChunk == nil {
		select {
		case c := <-s.full:
			s.readChunk = c
			s.readOff = 0
		default:
			return nil
		}
	}
	return s.readChunk[s.readOff:]
}

// Consume removes n items from the front of the active read chunk. When
// the chunk is fully drained it returns to the free pool and Writable()
// is signaled.
func (s *Slab[T]) Consume(n int) {
	if s.readChunk == nil || n <= 0 {
		return
	}
	s.readOff += n
	if s.readOff >= len(s.readChunk) {
		drained := s.readChunk[:cap(s.readChunk)]
		s.readChunk = nil
		s.readOff = 0
		if len(drained) == s.chunkItems {
			select {
			case s.free <- drained[:s.chunkItems]:
				if min := int(s.minWritableChunks.Load()); min <= 1 || len(s.free) >= min {
					notify(s.writable)
				}
			default:
			}
		}
	}
}

// Readable returns a channel that is signaled (coalesced) when a new
// chunk becomes available to read.
func (s *Slab[T]) Readable() <-chan struct{} {
	return s.readable
}

// Finished reports true once Close has been called, no chunk is queued to
// be read, and the active read chunk (if any) is fully drained.
func (s *Slab[T]) Finished() bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		return false
	}
	if len(s.full) > 0 {
		return false
	}
	if s.readChunk != nil && s.readOff < len(s.readChunk) {
		return false
	}
	return true
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
