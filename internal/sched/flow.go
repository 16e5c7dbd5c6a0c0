package sched

import (
	"context"
	"fmt"
	"reflect"
)

// FlowScheduler runs every block on a single goroutine, visiting blocks
// in topological order (computed once via Kahn's algorithm over the
// stream-edge DAG) and re-polling each in turn. Every unfinished block is
// called once per pass; only when a whole pass makes no progress does the
// loop sleep until some block's notifier or BlockOn channel fires.
type FlowScheduler struct{}

// NewFlowScheduler returns the single-threaded flow policy.
func NewFlowScheduler() *FlowScheduler {
	return &FlowScheduler{}
}

func (s *FlowScheduler) Start(ctx context.Context, g *Graph) (*Join, error) {
	order, err := topoSort(g)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	j := newJoin(cancel, len(g.Nodes))
	j.wg.Add(len(g.Nodes))
	go j.collectErrors(len(g.Nodes))
	go s.loop(ctx, g, order, j)
	return j, nil
}

func (s *FlowScheduler) loop(ctx context.Context, g *Graph, order []int, j *Join) {
	finished := make(map[int]bool, len(order))
	blockOn := make(map[int]<-chan struct{}, len(order))
	remaining := len(order)

	finish := func(idx int, err error) {
		g.Nodes[idx].Driver.terminate(err)
		finished[idx] = true
		remaining--
		j.wg.Done()
		j.errCh <- err
	}

	for remaining > 0 {
		if ctx.Err() != nil {
			for _, idx := range order {
				if finished[idx] {
					continue
				}
				g.Nodes[idx].Driver.callWork(true)
				finish(idx, nil)
			}
			return
		}

		progressed := false
		for _, idx := range order {
			if finished[idx] {
				continue
			}
			n := g.Nodes[idx]
			io, err := n.Driver.callWork(false)
			delete(blockOn, idx)
			switch {
			case err != nil:
				finish(idx, err)
				progressed = true
			case io.Finished:
				finish(idx, nil)
				progressed = true
			case io.CallAgain:
				progressed = true
			case io.BlockOn != nil:
				blockOn[idx] = io.BlockOn
			}
		}

		if !progressed && remaining > 0 {
			s.waitForAnyWake(ctx, g, order, finished, blockOn)
		}
	}
}

// waitForAnyWake blocks until the context is canceled or any
// not-yet-finished node's notifier or block_on future fires.
func (s *FlowScheduler) waitForAnyWake(ctx context.Context, g *Graph, order []int, finished map[int]bool, blockOn map[int]<-chan struct{}) {
	cases := []reflect.SelectCase{
		{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())},
	}
	for _, idx := range order {
		if finished[idx] {
			continue
		}
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(g.Nodes[idx].Driver.wake.chanOf()),
		})
		if ch, ok := blockOn[idx]; ok {
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
		}
	}
	if len(cases) == 1 {
		// Nothing left to wait on besides cancellation; avoid a select
		// with only one case spinning forever on a closed Done channel.
		<-ctx.Done()
		return
	}
	reflect.Select(cases)
}

// topoSort computes a visiting order for the flow scheduler via Kahn's
// algorithm over the DependsOn adjacency. Returns an error if the graph
// contains a stream-edge cycle, which the flowgraph layer should have
// already rejected at wiring time.
func topoSort(g *Graph) ([]int, error) {
	n := len(g.Nodes)
	indegree := make([]int, n)
	for i, node := range g.Nodes {
		indegree[i] = len(node.DependsOn)
	}

	// dependents[u] = nodes that depend on u
	dependents := make([][]int, n)
	for i, node := range g.Nodes {
		for _, up := range node.DependsOn {
			dependents[up] = append(dependents[up], i)
		}
	}

	queue := make([]int, 0, n)
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]int, 0, n)
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, v := range dependents[u] {
			indegree[v]--
			if indegree[v] == 0 {
				queue = append(queue, v)
			}
		}
	}

	if len(order) != n {
		return nil, fmt.Errorf("sched: stream-edge graph contains a cycle")
	}
	return order, nil
}
