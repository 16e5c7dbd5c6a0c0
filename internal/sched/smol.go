package sched

import (
	"context"
	"runtime"
)

// SmolScheduler is the default scheduler: non-blocking blocks run as
// plain goroutines, relying on Go's own work-stealing runtime to
// multiplex them across GOMAXPROCS OS threads — this already is the
// "work-stealing multi-threaded async runtime" the spec calls for, so no
// bespoke pool is built here. Blocks that declare themselves Blocking
// get a goroutine that pins an OS thread for its lifetime via
// runtime.LockOSThread, the Go idiom for a dedicated thread.
type SmolScheduler struct{}

// NewSmolScheduler returns the default scheduler policy.
func NewSmolScheduler() *SmolScheduler {
	return &SmolScheduler{}
}

func (s *SmolScheduler) Start(ctx context.Context, g *Graph) (*Join, error) {
	j := startAll(ctx, g, func(ctx context.Context, j *Join, n *Node) {
		if n.Driver.block.Blocking() {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
		}
		j.runDriver(ctx, n.Driver)
	})
	return j, nil
}
