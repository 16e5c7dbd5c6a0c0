package sched

import (
	"context"
	"runtime"
)

// ThreadPerBlockScheduler gives every block, blocking or not, a
// dedicated OS thread via runtime.LockOSThread and waits on the
// sync.Cond-backed notifier variant instead of a channel select,
// matching the "blocking-compatible sync primitive" requirement: a
// kernel that calls into blocking C code or makes a blocking syscall
// between Work invocations cannot stall any other block.
type ThreadPerBlockScheduler struct{}

// NewThreadPerBlockScheduler returns the thread-per-block policy.
func NewThreadPerBlockScheduler() *ThreadPerBlockScheduler {
	return &ThreadPerBlockScheduler{}
}

func (s *ThreadPerBlockScheduler) Start(ctx context.Context, g *Graph) (*Join, error) {
	j := startAll(ctx, g, func(ctx context.Context, j *Join, n *Node) {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer j.wg.Done()
		err := n.Driver.RunWithCond(ctx)
		j.errCh <- err
	})
	return j, nil
}
