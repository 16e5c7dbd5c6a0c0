package flowsdr

import (
	"fmt"
	"sync"

	"github.com/behrlich/flowsdr/internal/constants"
	"github.com/behrlich/flowsdr/internal/interfaces"
	"github.com/behrlich/flowsdr/internal/logging"
	"github.com/behrlich/flowsdr/internal/msgfabric"
	"github.com/behrlich/flowsdr/internal/sched"
	"github.com/behrlich/flowsdr/internal/stream"
)

// BlockId is a dense, monotonically assigned index into the flowgraph's
// block arena (spec.md §3, Design Notes "Cyclic structures": blocks live
// in a flat slice, never pointer-linked to each other).
type BlockId int

// PortSpec names one stream or message port a block declares at
// registration time, used for wiring validation and Describe().
type PortSpec struct {
	Name     string
	TypeName string
}

type blockState struct {
	id           BlockId
	typeName     string
	instanceName string
	kernel       Kernel
	blocking     bool

	streamInputs  []PortSpec
	streamOutputs []PortSpec
	messageInputs []string
	messageOutputs []string

	connectedInputs map[string]bool

	msgInputs map[string]*msgfabric.InputPort[message]

	driver    *sched.Driver
	dependsOn []BlockId
}

type streamEdgeDesc struct {
	srcID, dstID     BlockId
	srcPort, dstPort string

	// readable/writable, when non-nil, are the shared buffer's own
	// wakeup channels (spec.md line 23 driver-loop step (d), lines
	// 101-104 "notifiers attached to each stream buffer"): Start wires a
	// forwarding goroutine per edge that turns a buffer-local signal into
	// a Driver.Wake() on the appropriate side. nil for device edges,
	// whose Acquire* calls block synchronously inside a dedicated-thread
	// kernel instead of going through the notifier/wake path.
	readable, writable <-chan struct{}
}

// Flowgraph is the topology: a block registry plus stream and message edge
// sets, matching spec.md §4.1's operations exactly.
//
// observer receives one ObserveWork event per completed kernel Work call
// (spec.md §4.2's per-call latency, carried through to whatever Observer
// the caller installed via WithObserver); it defaults to a no-op so
// instrumentation is opt-in.
type Flowgraph struct {
	mu sync.Mutex

	blocks       []*blockState
	streamEdges  []streamEdgeDesc
	messageEdges []streamEdgeDesc

	log      *logging.Logger
	observer interfaces.Observer
}

// NewFlowgraph creates an empty flowgraph.
func NewFlowgraph() *Flowgraph {
	return &Flowgraph{log: logging.Default(), observer: NoOpObserver{}}
}

// AddBlock registers kernel as a new block and returns its dense id. The
// port name lists declare the block's interface for wiring validation;
// they need not all be connected before Start.
func (fg *Flowgraph) AddBlock(kernel Kernel, typeName, instanceName string, streamInputs, streamOutputs []PortSpec, messageInputs, messageOutputs []string) BlockId {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	blocking := false
	if b, ok := kernel.(Blocking); ok {
		blocking = b.Blocking()
	}

	id := BlockId(len(fg.blocks))
	bs := &blockState{
		id:              id,
		typeName:        typeName,
		instanceName:    instanceName,
		kernel:          kernel,
		blocking:        blocking,
		streamInputs:    streamInputs,
		streamOutputs:   streamOutputs,
		messageInputs:   messageInputs,
		messageOutputs:  messageOutputs,
		connectedInputs: make(map[string]bool),
		msgInputs:       make(map[string]*msgfabric.InputPort[message]),
	}
	fg.blocks = append(fg.blocks, bs)
	fg.log.WithBlock(int(id)).Debugf("add_block type=%s instance=%s", typeName, instanceName)
	return id
}

// WithObserver installs o to receive per-block Work metrics for the
// lifetime of this flowgraph (spec.md §4.2). Must be called before Start.
func (fg *Flowgraph) WithObserver(o interfaces.Observer) *Flowgraph {
	fg.mu.Lock()
	defer fg.mu.Unlock()
	fg.observer = o
	return fg
}

func (fg *Flowgraph) block(id BlockId) (*blockState, error) {
	if int(id) < 0 || int(id) >= len(fg.blocks) {
		return nil, newWiringError("lookup_block", ErrUnknownBlock, fmt.Sprintf("block id %d is out of range", id))
	}
	return fg.blocks[id], nil
}

func hasPort(specs []PortSpec, name string) bool {
	for _, s := range specs {
		if s.Name == name {
			return true
		}
	}
	return false
}

// validateStreamEndpoints checks that src/dst exist, the named ports were
// declared at AddBlock time, and the destination input is not already
// bound — the three wiring errors spec.md §4.1 names besides TypeMismatch
// (which Go's generic ConnectCircular/ConnectSlab signatures make a
// compile error instead of a runtime one).
func (fg *Flowgraph) validateStreamEndpoints(op string, srcID BlockId, srcPort string, dstID BlockId, dstPort string) (*blockState, *blockState, error) {
	src, err := fg.block(srcID)
	if err != nil {
		return nil, nil, err
	}
	dst, err := fg.block(dstID)
	if err != nil {
		return nil, nil, err
	}
	if !hasPort(src.streamOutputs, srcPort) {
		return nil, nil, &Error{Op: op, Code: ErrPortNotFound, BlockID: int(srcID), Port: srcPort, Msg: "no such stream output"}
	}
	if !hasPort(dst.streamInputs, dstPort) {
		return nil, nil, &Error{Op: op, Code: ErrPortNotFound, BlockID: int(dstID), Port: dstPort, Msg: "no such stream input"}
	}
	if dst.connectedInputs[dstPort] {
		return nil, nil, &Error{Op: op, Code: ErrInputAlreadyConnected, BlockID: int(dstID), Port: dstPort, Msg: "input already has an upstream edge"}
	}
	return src, dst, nil
}

func (fg *Flowgraph) recordStreamEdge(src, dst *blockState, srcPort, dstPort string, readable, writable <-chan struct{}) {
	dst.connectedInputs[dstPort] = true
	dst.dependsOn = append(dst.dependsOn, src.id)
	fg.streamEdges = append(fg.streamEdges, streamEdgeDesc{
		srcID: src.id, dstID: dst.id, srcPort: srcPort, dstPort: dstPort,
		readable: readable, writable: writable,
	})
	fg.log.WithEdge(int(src.id), int(dst.id)).Debugf("connect_stream %s -> %s", srcPort, dstPort)
}

// ConnectCircular wires srcPort on srcID to dstPort on dstID with a
// Circular host buffer of at least minItems capacity (spec.md §4.3,
// default buffer variant). T is enforced identical at both ends by Go's
// type system, which is this port's implementation of spec.md's
// "TypeMismatch" wiring check.
func ConnectCircular[T any](fg *Flowgraph, srcID BlockId, srcPort string, dstID BlockId, dstPort string, minItems int) (*OutputPort[T], *InputPort[T], error) {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	src, dst, err := fg.validateStreamEndpoints("connect_stream", srcID, srcPort, dstID, dstPort)
	if err != nil {
		return nil, nil, err
	}
	if minItems <= 0 {
		minItems = constants.DefaultCircularCapacity
	}
	buf, err := stream.NewCircular[T](minItems)
	if err != nil {
		return nil, nil, newKernelError("connect_stream", int(srcID), "failed to allocate circular buffer", err)
	}
	tags := stream.NewTagQueue[Tag]()
	fg.recordStreamEdge(src, dst, srcPort, dstPort, buf.Readable(), buf.Writable())
	out, in := NewOutputPort[T](buf, tags), NewInputPort[T](buf, tags)
	out.blockID, in.blockID = int(srcID), int(dstID)
	return out, in, nil
}

// ConnectSlab wires srcPort to dstPort with a Slab host buffer of n chunks
// of chunkItems items each (spec.md §4.3 Slab variant).
func ConnectSlab[T any](fg *Flowgraph, srcID BlockId, srcPort string, dstID BlockId, dstPort string, n, chunkItems int) (*OutputPort[T], *InputPort[T], error) {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	src, dst, err := fg.validateStreamEndpoints("connect_stream", srcID, srcPort, dstID, dstPort)
	if err != nil {
		return nil, nil, err
	}
	if n <= 0 {
		n = constants.DefaultSlabChunks
	}
	if chunkItems <= 0 {
		chunkItems = constants.DefaultSlabChunkSize
	}
	buf := stream.NewSlab[T](n, chunkItems)
	tags := stream.NewTagQueue[Tag]()
	fg.recordStreamEdge(src, dst, srcPort, dstPort, buf.Readable(), buf.Writable())
	out, in := NewOutputPort[T](buf, tags), NewInputPort[T](buf, tags)
	out.blockID, in.blockID = int(srcID), int(dstID)
	return out, in, nil
}

// ConnectDevice wires srcPort to dstPort with an H2D/D2H device-backed
// edge (spec.md §4.3 device buffer family): the writer side fills host
// buffers and submits them for transfer to fd, the reader side acquires
// transfer-complete buffers. broker owns the shared io_uring instance for
// this accelerator (spec.md §5 "device-context object shared-immutable
// across blocks that use the same accelerator").
func (fg *Flowgraph) ConnectDevice(srcID BlockId, srcPort string, dstID BlockId, dstPort string, broker *stream.Broker, fd int, bufCount, bufSize int) (*DeviceOutputPort, *DeviceInputPort, error) {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	src, dst, err := fg.validateStreamEndpoints("connect_stream", srcID, srcPort, dstID, dstPort)
	if err != nil {
		return nil, nil, err
	}
	if bufCount <= 0 {
		bufCount = constants.DefaultDeviceBufferCount
	}
	dev := stream.NewDeviceBuffer(broker, fd, bufCount, bufSize)
	// No readable/writable forwarding: Acquire{Empty,Full} block the
	// calling (dedicated) thread directly rather than going through the
	// Work/notifier re-entry loop.
	fg.recordStreamEdge(src, dst, srcPort, dstPort, nil, nil)
	return NewDeviceOutputPort(dev), NewDeviceInputPort(dev), nil
}

// ConnectMessage validates and records a message edge from src (an output
// port owned by srcID) to dstPort on dstID, attaching a new bounded edge
// to both ends. Fan-in (many sources to one destination port) and fan-out
// (one source attached to many destinations) are both permitted (spec.md
// §4.1).
func (fg *Flowgraph) ConnectMessage(srcID BlockId, src *MessageOutput, dstID BlockId, dstPort string, capacity int) error {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	srcBlock, err := fg.block(srcID)
	if err != nil {
		return err
	}
	dst, err := fg.block(dstID)
	if err != nil {
		return err
	}
	if !hasName(srcBlock.messageOutputs, src.Name) {
		return &Error{Op: "connect_message", Code: ErrPortNotFound, BlockID: int(srcID), Port: src.Name, Msg: "no such message output"}
	}
	if !hasName(dst.messageInputs, dstPort) {
		return &Error{Op: "connect_message", Code: ErrPortNotFound, BlockID: int(dstID), Port: dstPort, Msg: "no such message input"}
	}

	if capacity <= 0 {
		capacity = constants.DefaultMessageQueueDepth
	}
	edge := msgfabric.NewEdge[message](capacity)
	port, ok := dst.msgInputs[dstPort]
	if !ok {
		port = msgfabric.NewInputPort[message](constants.DefaultMessageQueueDepth)
		dst.msgInputs[dstPort] = port
	}
	port.Attach(edge)
	src.edges = append(src.edges, edge)

	fg.messageEdges = append(fg.messageEdges, streamEdgeDesc{srcID: srcID, dstID: dstID, srcPort: src.Name, dstPort: dstPort})
	fg.log.WithEdge(int(srcID), int(dstID)).Debugf("connect_message %s -> %s", src.Name, dstPort)
	return nil
}

func hasName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
