package flowsdr

import (
	"context"
	"time"

	"github.com/behrlich/flowsdr/internal/interfaces"
	"github.com/behrlich/flowsdr/internal/sched"
	"github.com/behrlich/flowsdr/internal/stream"
)

// WorkIO is the per-call control struct a kernel's Work method mutates
// (spec.md §3 "Work IO").
type WorkIO struct {
	// CallAgain requests immediate re-entry even without a wakeup.
	CallAgain bool
	// Finished terminates this block. The driver also forces this to true
	// on external cancellation, giving the kernel one more chance to run
	// before deinit (spec.md §4.4 "Cancellation").
	Finished bool
	// BlockOn, when non-nil, is a channel the driver also waits on before
	// re-entering Work. Under the smol and flow schedulers an ordinary
	// wakeup still re-enters Work; under thread-per-block it is the only
	// wakeup source until it fires.
	BlockOn <-chan struct{}
}

// Kernel is the mandatory part of the block contract (spec.md §4.2): every
// block has a Work method. Init, Deinit, and message handlers are optional
// and detected via the interfaces below (Initializer, Deinitializer,
// Blocking, MessageHandler).
type Kernel interface {
	Work(io *WorkIO) error
}

// Initializer is implemented by kernels that need setup before the first
// Work call.
type Initializer interface {
	Init() error
}

// Deinitializer is implemented by kernels that need teardown after the
// last Work call. Called at most once, best-effort, even on error/panic.
type Deinitializer interface {
	Deinit() error
}

// Blocking is implemented by kernels whose Work method may block
// synchronously (e.g. a blocking syscall or C call) and therefore needs a
// dedicated OS thread rather than sharing Go's scheduler cooperatively.
type Blocking interface {
	Blocking() bool
}

// MessageHandler is implemented by a kernel to bind a handler on a named
// message input port. The handler's return value is routed back to the
// caller if the message arrived via FlowgraphHandle.Call; otherwise it is
// discarded (spec.md §4.5).
type MessageHandler interface {
	OnMessage(port string, msg Pmt) (Pmt, error)
}

// StreamReader is the reader-side port API (spec.md §4.2), implemented by
// InputPort for both the Circular and Slab buffer variants.
type StreamReader[T any] interface {
	Slice() []T
	SliceWithTags() ([]T, []Tag)
	Consume(n int)
	Finished() bool
	SetMinItems(k int)
}

// StreamWriter is the writer-side port API (spec.md §4.2).
type StreamWriter[T any] interface {
	Slice() []T
	Produce(n int)
	AddTag(offset int, tag Tag)
	Finish()
	SetMinItems(k int)
}

// InputPort implements StreamReader over a generic CPU stream buffer, plus
// the tag side-queue and absolute-index bookkeeping spec.md §4.6 requires.
type InputPort[T any] struct {
	buf      interfaces.CpuBufferReader[T]
	tags     *stream.TagQueue[Tag]
	readHead uint64 // absolute index of the next unread item
	minItems int
	readable int // length of the slice returned by the most recent Slice()/SliceWithTags()
	blockID  int
}

// NewInputPort wraps buf (shared with the matching OutputPort) as a
// reader-side stream port.
func NewInputPort[T any](buf interfaces.CpuBufferReader[T], tags *stream.TagQueue[Tag]) *InputPort[T] {
	return &InputPort[T]{buf: buf, tags: tags}
}

// Slice returns the currently readable contiguous range.
func (p *InputPort[T]) Slice() []T {
	items := p.buf.Peek()
	p.readable = len(items)
	return items
}

// SliceWithTags returns Slice() plus every tag whose absolute index falls
// within it, rebased to the slice's own [0, len) coordinates.
func (p *InputPort[T]) SliceWithTags() ([]T, []Tag) {
	items := p.buf.Peek()
	p.readable = len(items)
	entries := p.tags.Range(p.readHead, p.readHead+uint64(len(items)))
	out := make([]Tag, len(entries))
	for i, e := range entries {
		out[i] = e.Value.withIndex(e.Index - p.readHead)
	}
	return items, out
}

// Consume marks n items processed, advances the absolute read head, and
// prunes tags that can no longer be observed by this or any future slice.
// Consuming more than the most recently returned readable slice is a
// contract violation (spec.md §7 "Invalid commit") and panics, which the
// driver turns into a terminal kernel error for this block.
func (p *InputPort[T]) Consume(n int) {
	if n == 0 {
		return
	}
	if n < 0 || n > p.readable {
		panic(newBufferError("consume", p.blockID, "", "consumed more items than the readable slice"))
	}
	p.buf.Consume(n)
	p.readHead += uint64(n)
	p.readable -= n
	p.tags.Prune(p.readHead)
}

// Finished reports true once the writer has closed the buffer and every
// previously produced item has been consumed.
func (p *InputPort[T]) Finished() bool {
	return p.buf.Finished()
}

// SetMinItems coalesces wakeups so Readable() only fires once at least k
// items are available, instead of on every single commit (spec.md §4.2
// "writer/reader wake up only when at least min_items_self is available").
func (p *InputPort[T]) SetMinItems(k int) {
	p.minItems = k
	p.buf.SetMinReadable(k)
}

// MinItems returns the last value passed to SetMinItems (0 if unset).
func (p *InputPort[T]) MinItems() int {
	return p.minItems
}

// Readable exposes the underlying buffer's wakeup channel to the driver.
func (p *InputPort[T]) Readable() <-chan struct{} {
	return p.buf.Readable()
}

// ReaderHeadIndex returns the absolute sample index of the head of this
// port's current slice (spec.md §4.6 convenience helper).
func (p *InputPort[T]) ReaderHeadIndex() uint64 {
	return p.readHead
}

// OutputPort implements StreamWriter over a generic CPU stream buffer.
type OutputPort[T any] struct {
	buf        interfaces.CpuBufferWriter[T]
	tags       *stream.TagQueue[Tag]
	writeHead  uint64 // absolute index of the next item this port will produce
	minItems   int
	finished   bool
	reserved   int // length of the slice returned by the most recent Slice()/Reserve()
	blockID    int
}

// NewOutputPort wraps buf as a writer-side stream port.
func NewOutputPort[T any](buf interfaces.CpuBufferWriter[T], tags *stream.TagQueue[Tag]) *OutputPort[T] {
	return &OutputPort[T]{buf: buf, tags: tags}
}

// Slice returns writable space for the kernel to fill.
func (p *OutputPort[T]) Slice() []T {
	return p.Reserve(1 << 20)
}

// Reserve returns writable space for up to n items, for callers that want
// an explicit cap rather than the generous default Slice() requests.
func (p *OutputPort[T]) Reserve(n int) []T {
	s := p.buf.Reserve(n)
	p.reserved = len(s)
	return s
}

// Produce publishes n items written into the most recent Slice()/Reserve()
// result and advances the absolute write head. Producing more than the
// writable space just returned is a contract violation (spec.md §7
// "Invalid commit"); it panics rather than silently corrupting the ring,
// and the driver turns that panic into a terminal kernel error for this
// block.
func (p *OutputPort[T]) Produce(n int) {
	if n < 0 || n > p.reserved {
		panic(newBufferError("produce", p.blockID, "", "produced more items than the reserved writable slice"))
	}
	p.buf.Commit(n)
	p.writeHead += uint64(n)
	p.reserved -= n
}

// AddTag attaches tag to the currently-writable region at offset, which
// must be less than the item count of the next Produce call. The tag's
// absolute index is computed from the port's write head.
func (p *OutputPort[T]) AddTag(offset int, tag Tag) {
	p.tags.Insert(p.writeHead+uint64(offset), tag)
}

// Finish flags the last write: no further Produce calls will occur.
func (p *OutputPort[T]) Finish() {
	p.finished = true
	p.buf.Close()
}

// SetMinItems coalesces wakeups so Writable() only fires once at least k
// items' worth of free space exist, instead of on every consume.
func (p *OutputPort[T]) SetMinItems(k int) {
	p.minItems = k
	p.buf.SetMinWritable(k)
}

// MinItems returns the last value passed to SetMinItems (0 if unset).
func (p *OutputPort[T]) MinItems() int {
	return p.minItems
}

// Writable exposes the underlying buffer's wakeup channel to the driver.
func (p *OutputPort[T]) Writable() <-chan struct{} {
	return p.buf.Writable()
}

// WriterHeadIndex returns the absolute sample index of the next item this
// port will produce (spec.md §4.6 convenience helper).
func (p *OutputPort[T]) WriterHeadIndex() uint64 {
	return p.writeHead
}

// DeviceInputPort is the reader side of an H2D/D2H device-backed edge
// (spec.md §4.2 "Device buffers").
type DeviceInputPort struct {
	dev interfaces.DeviceBufferReader
}

func NewDeviceInputPort(dev interfaces.DeviceBufferReader) *DeviceInputPort {
	return &DeviceInputPort{dev: dev}
}

// GetFullBuffer yields the next transfer-complete buffer, blocking
// (respecting ctx) until one is available.
func (p *DeviceInputPort) GetFullBuffer(ctx context.Context) ([]byte, error) {
	return p.dev.AcquireFull(ctx)
}

// PutEmptyBuffer returns a drained buffer to the device for reuse.
func (p *DeviceInputPort) PutEmptyBuffer(buf []byte) {
	p.dev.ReleaseEmpty(buf)
}

// DeviceOutputPort is the writer side of an H2D/D2H device-backed edge.
type DeviceOutputPort struct {
	dev interfaces.DeviceBufferWriter
}

func NewDeviceOutputPort(dev interfaces.DeviceBufferWriter) *DeviceOutputPort {
	return &DeviceOutputPort{dev: dev}
}

// GetEmptyBuffer yields an empty device buffer, blocking (respecting ctx)
// until one is available.
func (p *DeviceOutputPort) GetEmptyBuffer(ctx context.Context) ([]byte, error) {
	return p.dev.AcquireEmpty(ctx)
}

// PutFullBuffer publishes a filled buffer for async transfer to the
// device.
func (p *DeviceOutputPort) PutFullBuffer(buf []byte) error {
	return p.dev.SubmitFull(buf)
}

// MessageOutput is a block's outbound message port: new edges are
// attached at Flowgraph.ConnectMessage time.
type MessageOutput struct {
	Name  string
	edges []chan message
}

// NewMessageOutput creates a named, as-yet-unconnected message output. The
// name must match one declared for this block in AddBlock's
// messageOutputs list.
func NewMessageOutput(name string) *MessageOutput {
	return &MessageOutput{Name: name}
}

// Send delivers msg to every edge attached to this output, in order. On a
// full edge Send blocks the caller until the edge has room or ctx is
// done, returning ctx.Err() in the latter case; edges after that one are
// not sent to.
func (o *MessageOutput) Send(ctx context.Context, msg Pmt) error {
	env := message{Value: msg}
	for _, e := range o.edges {
		select {
		case e <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// runnableAdapter satisfies internal/sched.Runnable by translating between
// the public Kernel/WorkIO surface and the scheduler's minimal internal
// one, keeping internal/sched free of any import-cycle dependency on the
// root package.
type runnableAdapter struct {
	id       int
	kernel   Kernel
	deinit   func() error
	blocking bool
	observer interfaces.Observer
}

func (r *runnableAdapter) ID() int { return r.id }

func (r *runnableAdapter) Work(io *sched.WorkIO) error {
	pub := WorkIO{CallAgain: io.CallAgain, Finished: io.Finished, BlockOn: io.BlockOn}
	start := time.Now()
	err := r.kernel.Work(&pub)
	if r.observer != nil {
		r.observer.ObserveWork(r.id, 0, 0, uint64(time.Since(start).Nanoseconds()))
	}
	if err != nil {
		return err
	}
	io.CallAgain = pub.CallAgain
	io.Finished = pub.Finished
	io.BlockOn = pub.BlockOn
	return nil
}

func (r *runnableAdapter) Deinit() error {
	if r.deinit == nil {
		return nil
	}
	return r.deinit()
}

func (r *runnableAdapter) Blocking() bool { return r.blocking }

var _ sched.Runnable = (*runnableAdapter)(nil)
