package flowsdr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// overProducer deliberately violates the writer contract by publishing
// more items than its most recent Slice() call returned.
type overProducer struct {
	Out *OutputPort[uint32]
}

func (s *overProducer) Work(io *WorkIO) error {
	buf := s.Out.Slice()
	s.Out.Produce(len(buf) + 1)
	return nil
}

// overConsumer deliberately violates the reader contract by consuming more
// items than its most recent Slice() call returned.
type overConsumer struct {
	In *InputPort[uint32]
}

func (s *overConsumer) Work(io *WorkIO) error {
	items := s.In.Slice()
	if len(items) == 0 {
		return nil
	}
	s.In.Consume(len(items) + 1)
	return nil
}

func TestInvariant_OverProduceIsInvalidCommit(t *testing.T) {
	fg := NewFlowgraph()
	src := &overProducer{}
	sink := &VectorSink[uint32]{}

	srcID := fg.AddBlock(src, "over_producer", "src", nil, streamPorts("out"), nil, nil)
	sinkID := fg.AddBlock(sink, "vector_sink", "sink", streamPorts("in"), nil, nil, nil)

	var err error
	src.Out, sink.In, err = ConnectCircular[uint32](fg, srcID, "out", sinkID, "in", 0)
	require.NoError(t, err)

	// The sink never observes a writer-finish once src panics mid-produce,
	// so it only terminates once the context forces a final call; keep
	// the deadline short since that's the only thing this test is
	// waiting on.
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	runErr := NewRuntime().WithScheduler(SchedulerFlow).Run(ctx, fg)
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "kernel panicked")
}

func TestInvariant_OverConsumeIsInvalidCommit(t *testing.T) {
	fg := NewFlowgraph()
	src := &VectorSource[uint32]{Values: []uint32{1, 2, 3}}
	sink := &overConsumer{}

	srcID := fg.AddBlock(src, "vector_source", "src", nil, streamPorts("out"), nil, nil)
	sinkID := fg.AddBlock(sink, "over_consumer", "sink", streamPorts("in"), nil, nil, nil)

	var err error
	src.Out, sink.In, err = ConnectCircular[uint32](fg, srcID, "out", sinkID, "in", 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	runErr := NewRuntime().WithScheduler(SchedulerFlow).Run(ctx, fg)
	require.Error(t, runErr)
	assert.Contains(t, runErr.Error(), "kernel panicked")
}
