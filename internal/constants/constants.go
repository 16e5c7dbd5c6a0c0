// Package constants holds tunable defaults shared across the runtime's
// internal packages.
package constants

import "time"

// Buffer sizing defaults
const (
	// DefaultCircularCapacity is the default capacity, in items, of a
	// Circular stream buffer; the double-mapped ring then rounds the
	// resulting byte size up to a page multiple.
	DefaultCircularCapacity = 64 * 1024

	// DefaultSlabChunks is the default number of fixed-size chunks in a
	// Slab stream buffer's pool.
	DefaultSlabChunks = 4

	// DefaultSlabChunkSize is the default size, in items, of one Slab chunk.
	DefaultSlabChunkSize = 8 * 1024

	// DefaultMessageQueueDepth is the default bounded capacity of a
	// point-to-point message edge.
	DefaultMessageQueueDepth = 32

	// DefaultDeviceBufferCount is the default number of in-flight device
	// buffers (H2D/D2H) a device edge keeps queued to the accelerator.
	DefaultDeviceBufferCount = 4
)

// Scheduler timing and retry constants
//
// The drivers in internal/sched do not poll: they wait on notifiers,
// BlockOn channels and the context. No code in this module reads the
// constants below; Terminate and Call are bounded only by the context
// their caller passes.
const (
	// DriverPollInterval is a driver re-check interval of 1ms.
	DriverPollInterval = 1 * time.Millisecond

	// BlockOnRetryBackoff is a BlockOn re-poll backoff of 5ms.
	BlockOnRetryBackoff = 5 * time.Millisecond

	// ShutdownDrainTimeout is a shutdown drain bound of 2s.
	ShutdownDrainTimeout = 2 * time.Second
)

// Message fabric constants
const (
	// CallTimeout is a synchronous Call() timeout of 5s.
	CallTimeout = 5 * time.Second
)
