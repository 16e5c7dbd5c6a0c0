package flowsdr

import "github.com/behrlich/flowsdr/internal/constants"

// Re-export tunable defaults for the public API.
const (
	DefaultCircularCapacity = constants.DefaultCircularCapacity
	DefaultSlabChunks       = constants.DefaultSlabChunks
	DefaultSlabChunkSize    = constants.DefaultSlabChunkSize
	DefaultMessageQueueDepth = constants.DefaultMessageQueueDepth
	DefaultDeviceBufferCount = constants.DefaultDeviceBufferCount
)
