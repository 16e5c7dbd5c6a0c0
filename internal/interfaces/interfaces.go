// Package interfaces provides internal interface definitions for flowsdr.
// These are separate from the public API to avoid circular imports between
// the root package and the internal stream/sched/msgfabric packages.
package interfaces

import "context"

// CpuBufferReader is the read side of a host-memory stream buffer (Circular
// or Slab). Implementations must be safe for one reader goroutine
// concurrent with one writer goroutine (SPSC).
type CpuBufferReader[T any] interface {
	// Peek returns the currently readable items without consuming them.
	Peek() []T
	// Consume removes n items from the front of the buffer. n must not
	// exceed len(Peek()).
	Consume(n int)
	// Readable reports, and is coalesced on, wakeups when more items
	// become available.
	Readable() <-chan struct{}
	// Finished reports true once the writer has closed the buffer and
	// every previously-produced item has been consumed.
	Finished() bool
	// SetMinReadable gates Readable() so it only signals once at least k
	// items are available to read, coalescing wakeups for readers that
	// prefer fewer, larger batches.
	SetMinReadable(k int)
}

// CpuBufferWriter is the write side of a host-memory stream buffer.
type CpuBufferWriter[T any] interface {
	// Reserve returns writable space for up to n items; the returned
	// slice may be shorter than n if less space is free.
	Reserve(n int) []T
	// Commit publishes the first n items written into the slice returned
	// by Reserve.
	Commit(n int)
	// Writable reports, and is coalesced on, wakeups when more space
	// frees up.
	Writable() <-chan struct{}
	// Close marks the buffer finished: no further items will be written.
	Close()
	// SetMinWritable gates Writable() so it only signals once at least k
	// items' worth of space is free.
	SetMinWritable(k int)
}

// DeviceBufferReader is the read (device-to-host) side of a device-backed
// stream edge.
type DeviceBufferReader interface {
	// AcquireFull blocks (respecting ctx) until a transfer-complete
	// buffer is available, returning its host-visible bytes.
	AcquireFull(ctx context.Context) ([]byte, error)
	// ReleaseEmpty returns a drained buffer to the device for reuse.
	ReleaseEmpty(buf []byte)
}

// DeviceBufferWriter is the write (host-to-device) side of a device-backed
// stream edge.
type DeviceBufferWriter interface {
	// AcquireEmpty blocks (respecting ctx) until a buffer is free to
	// fill with host data.
	AcquireEmpty(ctx context.Context) ([]byte, error)
	// SubmitFull enqueues a filled buffer for async transfer to the
	// device.
	SubmitFull(buf []byte) error
}

// Logger is the minimal logging contract internal packages depend on,
// satisfied by *logging.Logger without importing it directly.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives metrics events from the scheduler and stream buffers.
// Implementations must be safe to call concurrently from every block's
// driver loop.
type Observer interface {
	ObserveWork(blockID int, itemsProduced, itemsConsumed uint64, latencyNs uint64)
	ObserveMessage(blockID int, port string)
	ObserveBufferWait(blockID int, waitNs uint64)
	ObserveQueueDepth(blockID int, depth uint32)
}
