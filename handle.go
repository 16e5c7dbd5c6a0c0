package flowsdr

import (
	"context"

	"github.com/behrlich/flowsdr/internal/msgfabric"
	"github.com/behrlich/flowsdr/internal/sched"
)

// FlowgraphHandle is returned by Runtime.Start: the live handle for
// calling into a running flowgraph, inspecting its topology, and
// terminating it early (spec.md §4.6, §6).
type FlowgraphHandle struct {
	fg             *Flowgraph
	join           *sched.Join
	calls          *msgfabric.Caller[Pmt]
	cancelDispatch context.CancelFunc
}

// Call sends pmt to the named message input on blockID and blocks until
// that block's handler replies or ctx is canceled (spec.md §4.6
// "call(block, port, pmt) -> Pmt"). It routes through the same fan-in
// queue and mutual-exclusion guarantee as an ordinary message edge, not
// around it.
func (h *FlowgraphHandle) Call(ctx context.Context, blockID BlockId, port string, pmt Pmt) (Pmt, error) {
	h.fg.mu.Lock()
	bs, err := h.fg.block(blockID)
	if err != nil {
		h.fg.mu.Unlock()
		return PmtNull(), err
	}
	in, ok := bs.msgInputs[port]
	h.fg.mu.Unlock()
	if !ok {
		return PmtNull(), &Error{Op: "call", Code: ErrPortNotFound, BlockID: int(blockID), Port: port, Msg: "no such message input"}
	}

	return h.calls.Call(ctx, func(replyID uint64) error {
		edge := msgfabric.NewEdge[message](1)
		edge <- message{Value: pmt, replyID: replyID}
		close(edge)
		in.Attach(edge)
		return nil
	})
}

// Describe returns a static snapshot of the flowgraph's topology (spec.md
// §4.1 describe(), §6 JSON shape).
func (h *FlowgraphHandle) Describe() FlowgraphDescription {
	return h.fg.Describe()
}

// Terminate triggers the termination cascade (spec.md §4.4 "Cancellation")
// and waits for every driver to finish deinit, then stops message
// dispatch.
func (h *FlowgraphHandle) Terminate(ctx context.Context) error {
	defer h.cancelDispatch()
	return h.join.Cancel(ctx)
}

// Wait blocks until every block has terminated naturally and returns the
// first error observed by wall-clock completion order (spec.md §9 Open
// Question resolution).
func (h *FlowgraphHandle) Wait() error {
	defer h.cancelDispatch()
	return h.join.Wait()
}

// Err returns the first error observed so far without blocking.
func (h *FlowgraphHandle) Err() error {
	return h.join.Err()
}
