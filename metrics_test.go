package flowsdr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_ObservesEveryWorkCall(t *testing.T) {
	fg := NewFlowgraph()
	src := &VectorSource[uint32]{Values: []uint32{1, 2, 3}}
	sink := &VectorSink[uint32]{}

	srcID := fg.AddBlock(src, "vector_source", "src", nil, streamPorts("out"), nil, nil)
	sinkID := fg.AddBlock(sink, "vector_sink", "sink", streamPorts("in"), nil, nil, nil)

	var err error
	src.Out, sink.In, err = ConnectCircular[uint32](fg, srcID, "out", sinkID, "in", 0)
	require.NoError(t, err)

	metrics := NewMetrics()
	fg.WithObserver(NewMetricsObserver(metrics))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, NewRuntime().Run(ctx, fg))

	snap := metrics.Snapshot()
	assert.Greater(t, snap.WorkCalls, uint64(0))
	assert.Equal(t, uint64(0), snap.WorkErrors)
}
