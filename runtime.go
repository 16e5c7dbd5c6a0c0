package flowsdr

import (
	"context"

	"github.com/behrlich/flowsdr/internal/logging"
	"github.com/behrlich/flowsdr/internal/msgfabric"
	"github.com/behrlich/flowsdr/internal/sched"
)

// SchedulerKind selects one of the three interchangeable scheduler
// policies spec.md §4.4 describes.
type SchedulerKind int

const (
	// SchedulerSmol is the default: non-blocking blocks run as goroutines
	// multiplexed by Go's own work-stealing runtime; blocking blocks get a
	// dedicated OS thread.
	SchedulerSmol SchedulerKind = iota
	// SchedulerThreadPerBlock gives every block a dedicated OS thread.
	SchedulerThreadPerBlock
	// SchedulerFlow runs every block on a single goroutine in topological
	// order.
	SchedulerFlow
)

// message is the internal envelope carried on message edges: Value is
// what a kernel's OnMessage handler sees, replyID (0 if unset) lets the
// runtime route a handler's return value back to an in-flight
// FlowgraphHandle.Call.
type message struct {
	Value   Pmt
	replyID uint64
}

// Runtime builds and runs a Flowgraph under a chosen scheduler (spec.md
// §6 "Runtime: new(), with_scheduler(s), run(fg), run_async(fg), start(fg)").
type Runtime struct {
	kind SchedulerKind
	log  *logging.Logger
}

// NewRuntime creates a Runtime using the default (smol) scheduler.
func NewRuntime() *Runtime {
	return &Runtime{kind: SchedulerSmol, log: logging.Default()}
}

// WithScheduler returns a copy of r configured to use the given scheduler
// policy.
func (r *Runtime) WithScheduler(kind SchedulerKind) *Runtime {
	r2 := *r
	r2.kind = kind
	return &r2
}

func (r *Runtime) scheduler() sched.Scheduler {
	switch r.kind {
	case SchedulerThreadPerBlock:
		return sched.NewThreadPerBlockScheduler()
	case SchedulerFlow:
		return sched.NewFlowScheduler()
	default:
		return sched.NewSmolScheduler()
	}
}

// Start launches fg under this runtime's scheduler and returns a handle
// immediately; the flowgraph runs until every block terminates or the
// handle is used to Terminate it early (spec.md §6 "start(fg) ->
// (join_future, handle)").
func (r *Runtime) Start(ctx context.Context, fg *Flowgraph) (*FlowgraphHandle, error) {
	fg.mu.Lock()
	graph := &sched.Graph{}
	for _, bs := range fg.blocks {
		bs.driver = sched.NewDriver(&runnableAdapter{
			id:       int(bs.id),
			kernel:   bs.kernel,
			blocking: bs.blocking,
			deinit:   kernelDeinit(bs.kernel),
			observer: fg.observer,
		})
		dep := make([]int, len(bs.dependsOn))
		for i, d := range bs.dependsOn {
			dep[i] = int(d)
		}
		graph.Nodes = append(graph.Nodes, &sched.Node{Driver: bs.driver, DependsOn: dep})
	}
	fg.mu.Unlock()

	if err := runInit(fg); err != nil {
		return nil, err
	}

	calls := msgfabric.NewCaller[Pmt]()
	dispatchCtx, cancelDispatch := context.WithCancel(ctx)
	handle := &FlowgraphHandle{fg: fg, calls: calls, cancelDispatch: cancelDispatch}

	for _, bs := range fg.blocks {
		bs := bs
		for name, port := range bs.msgInputs {
			go dispatchMessages(dispatchCtx, bs, name, port, calls)
		}
	}

	for _, edge := range fg.streamEdges {
		if edge.readable == nil && edge.writable == nil {
			continue
		}
		src, dst := fg.blocks[edge.srcID], fg.blocks[edge.dstID]
		go forwardBufferWakes(dispatchCtx, src.driver, dst.driver, edge.readable, edge.writable)
	}

	join, err := r.scheduler().Start(ctx, graph)
	if err != nil {
		cancelDispatch()
		return nil, err
	}
	handle.join = join
	return handle, nil
}

// Run starts fg and blocks until every block terminates, returning the
// first kernel error observed, if any (spec.md §6 "run(fg)").
func (r *Runtime) Run(ctx context.Context, fg *Flowgraph) error {
	h, err := r.Start(ctx, fg)
	if err != nil {
		return err
	}
	return h.Wait()
}

// RunAsync starts fg and returns immediately with a channel that receives
// the terminal error exactly once (spec.md §6 "run_async(fg)").
func (r *Runtime) RunAsync(ctx context.Context, fg *Flowgraph) (*FlowgraphHandle, <-chan error) {
	done := make(chan error, 1)
	h, err := r.Start(ctx, fg)
	if err != nil {
		done <- err
		return nil, done
	}
	go func() {
		done <- h.Wait()
	}()
	return h, done
}

// runInit calls Init on every kernel that implements Initializer, in
// block-id order, before any driver starts (spec.md §4.2 "init ... once,
// before first work").
func runInit(fg *Flowgraph) error {
	for _, bs := range fg.blocks {
		if init, ok := bs.kernel.(Initializer); ok {
			if err := init.Init(); err != nil {
				return newKernelError("init", int(bs.id), "kernel init failed", err)
			}
		}
	}
	return nil
}

func kernelDeinit(k Kernel) func() error {
	d, ok := k.(Deinitializer)
	if !ok {
		return nil
	}
	return d.Deinit
}

// dispatchMessages serially delivers every message this block receives on
// the named port to its handler, holding the driver's mutex for the
// duration so Work and message handlers never overlap (spec.md §4.5,
// invariant 5). Sending Null to a port with no bound handler is a no-op
// (invariant 8); sending anything else to an unbound handler is
// discarded, never fatal.
func dispatchMessages(ctx context.Context, bs *blockState, port string, in *msgfabric.InputPort[message], calls *msgfabric.Caller[Pmt]) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in.Chan():
			if !ok {
				return
			}
			handler, isHandler := bs.kernel.(MessageHandler)
			var reply Pmt
			var err error
			if isHandler {
				bs.driver.Lock()
				reply, err = handler.OnMessage(port, m.Value)
				bs.driver.Unlock()
				bs.driver.Wake()
			} else if !m.Value.IsNull() {
				reply = PmtInvalidValue()
			}
			if m.replyID != 0 {
				if err != nil {
					reply = PmtInvalidValue()
				}
				calls.Reply(m.replyID, reply)
			}
		}
	}
}

// forwardBufferWakes turns a shared stream buffer's own readable/writable
// signals into the connected peer's Driver.Wake(), one goroutine per edge
// spawned alongside dispatchMessages (spec.md line 23 driver-loop step
// (d) "wakes peers on the opposite side of each affected buffer", lines
// 101-104 "notifiers attached to each stream buffer"). readable fires
// when the writer has committed new items, so it wakes the reader's
// driver; writable fires when the reader has freed space, so it wakes
// the writer's driver. Either channel may be nil if this edge doesn't
// use the notifier path (device edges block synchronously instead).
func forwardBufferWakes(ctx context.Context, src, dst *sched.Driver, readable, writable <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-readable:
			dst.Wake()
		case <-writable:
			src.Wake()
		}
	}
}
