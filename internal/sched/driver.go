package sched

import (
	"context"
	"fmt"
	"sync"
)

// WorkIO is the per-call control struct a kernel's Work method mutates.
// It crosses the internal/sched boundary rather than living in the root
// package so drivers have no import-cycle dependency on the public API;
// the root package's Kernel adapter translates its own WorkIO into this
// one and back.
type WorkIO struct {
	// CallAgain requests immediate re-entry even without a wakeup.
	CallAgain bool
	// Finished terminates this block. Set by the kernel normally; forced
	// true by the driver on external cancellation as a shutdown signal.
	Finished bool
	// BlockOn, if non-nil, is an extra wakeup source: Run and the flow
	// scheduler re-enter Work when it fires (or closes) or when the
	// block's notifier fires; RunWithCond waits for it alone.
	BlockOn <-chan struct{}
}

// Runnable is the minimal contract a driver needs to run one block's
// lifecycle: wait for a wakeup, dispatch one unit of work, resubmit.
type Runnable interface {
	// ID returns the block's arena index, used for logging and metrics.
	ID() int
	// Work performs one bounded unit of processing.
	Work(io *WorkIO) error
	// Deinit is called exactly once, after the last Work call,
	// best-effort even if Work returned an error or panicked.
	Deinit() error
	// Blocking reports whether this kernel may block synchronously and
	// needs a dedicated OS thread.
	Blocking() bool
}

// Driver runs one block's init/work/deinit state machine. Work and any
// concurrent message-handler dispatch for the same block are serialized
// through mu, giving the per-block-serialization invariant directly.
type Driver struct {
	block Runnable

	mu sync.Mutex

	wake notifier
	cond *condNotifier

	termOnce sync.Once
	termErr  error
	termCh   chan struct{}
}

// NewDriver wraps block in a Driver ready to Run. Both wakeup primitives
// are created up front: Run (smol/flow) waits on the channel notifier,
// RunWithCond (thread-per-block) waits on the sync.Cond-backed one; Wake
// signals whichever is in use.
func NewDriver(block Runnable) *Driver {
	return &Driver{
		block:  block,
		wake:   newNotifier(),
		cond:   newCondNotifier(),
		termCh: make(chan struct{}),
	}
}

// Wake schedules an immediate re-check of the block's readiness, e.g.
// when a stream edge or message inbox becomes non-empty.
func (d *Driver) Wake() {
	d.wake.signal()
	d.cond.signal()
}

// Lock/Unlock expose the driver's per-block mutex so a message-handler
// dispatcher can serialize against Work, per the concurrency model.
func (d *Driver) Lock()   { d.mu.Lock() }
func (d *Driver) Unlock() { d.mu.Unlock() }

// Done returns a channel closed once this driver has terminated.
func (d *Driver) Done() <-chan struct{} {
	return d.termCh
}

// Err returns the error that caused termination, if any, valid only
// after Done() is closed.
func (d *Driver) Err() error {
	return d.termErr
}

// Run drives the block until it finishes, errors, panics, or ctx is
// canceled. It returns the terminal error, if any (nil on clean finish
// or cancellation).
func (d *Driver) Run(ctx context.Context) error {
	for {
		io, err := d.callWork(false)
		if err != nil {
			return d.terminate(err)
		}
		if io.Finished {
			return d.terminate(nil)
		}
		if io.CallAgain {
			continue
		}

		var blockOn <-chan struct{}
		if io.BlockOn != nil {
			blockOn = io.BlockOn
		}
		select {
		case <-ctx.Done():
			d.callWork(true) // forced final call, result ignored per spec
			return d.terminate(nil)
		case <-d.wake.chanOf():
		case <-blockOn:
		}
	}
}

// RunWithCond drives the block like Run, but waits on a sync.Cond-backed
// notifier instead of a channel select, and waits only on BlockOn when a
// Work call sets it. Thread-per-block
// uses this variant: a block pinned to its own OS thread with
// runtime.LockOSThread may call into blocking code between Work
// invocations, and a plain Go channel select would require the calling
// goroutine to stay inside the Go scheduler's poller, defeating the
// point of a dedicated thread.
func (d *Driver) RunWithCond(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			d.cond.signal()
		case <-stop:
		}
	}()

	for {
		io, err := d.callWork(false)
		if err != nil {
			return d.terminate(err)
		}
		if io.Finished {
			return d.terminate(nil)
		}
		if io.CallAgain {
			continue
		}
		if ctx.Err() != nil {
			d.callWork(true)
			return d.terminate(nil)
		}
		if io.BlockOn != nil {
			select {
			case <-io.BlockOn:
			case <-ctx.Done():
			}
			continue
		}
		d.cond.wait()
	}
}

// callWork invokes the block's Work method under the per-block mutex,
// recovering a panic into a KernelError-shaped failure. When force is
// true, Finished is pre-set on the io struct passed to the kernel as the
// one-more-chance shutdown signal spec.md §4.4 describes for
// cancellation; the driver terminates regardless of what the kernel does
// with it.
func (d *Driver) callWork(force bool) (io WorkIO, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel panicked: %v", r)
		}
	}()

	io = WorkIO{Finished: force}
	if werr := d.block.Work(&io); werr != nil {
		err = werr
		return
	}
	if force {
		io.Finished = true
	}
	return
}

// terminate runs Deinit exactly once, best-effort, and closes termCh.
func (d *Driver) terminate(workErr error) error {
	d.termOnce.Do(func() {
		deinitErr := d.safeDeinit()
		d.termErr = workErr
		if d.termErr == nil {
			d.termErr = deinitErr
		}
		close(d.termCh)
	})
	return d.termErr
}

func (d *Driver) safeDeinit() (err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kernel panicked during deinit: %v", r)
		}
	}()
	return d.block.Deinit()
}
