package flowsdr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func streamPorts(names ...string) []PortSpec {
	specs := make([]PortSpec, len(names))
	for i, n := range names {
		specs[i] = PortSpec{Name: n, TypeName: "u32"}
	}
	return specs
}

func TestFlowgraph_ConnectUnknownBlockIsRejected(t *testing.T) {
	fg := NewFlowgraph()
	src := fg.AddBlock(&Copy[uint32]{}, "copy", "a", streamPorts("in"), streamPorts("out"), nil, nil)

	_, _, err := ConnectCircular[uint32](fg, src, "out", BlockId(99), "in", 0)
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrUnknownBlock, fe.Code)
}

func TestFlowgraph_ConnectUnknownPortIsRejected(t *testing.T) {
	fg := NewFlowgraph()
	src := fg.AddBlock(&Copy[uint32]{}, "copy", "a", streamPorts("in"), streamPorts("out"), nil, nil)
	dst := fg.AddBlock(&Copy[uint32]{}, "copy", "b", streamPorts("in"), streamPorts("out"), nil, nil)

	_, _, err := ConnectCircular[uint32](fg, src, "nope", dst, "in", 0)
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrPortNotFound, fe.Code)
}

func TestFlowgraph_DoubleConnectInputIsRejected(t *testing.T) {
	fg := NewFlowgraph()
	a := fg.AddBlock(&Copy[uint32]{}, "copy", "a", streamPorts("in"), streamPorts("out"), nil, nil)
	b := fg.AddBlock(&Copy[uint32]{}, "copy", "b", streamPorts("in"), streamPorts("out"), nil, nil)
	c := fg.AddBlock(&Copy[uint32]{}, "copy", "c", streamPorts("in"), streamPorts("out"), nil, nil)

	_, _, err := ConnectCircular[uint32](fg, a, "out", c, "in", 0)
	require.NoError(t, err)

	_, _, err = ConnectCircular[uint32](fg, b, "out", c, "in", 0)
	require.Error(t, err)
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrInputAlreadyConnected, fe.Code)
}

func TestFlowgraph_DescribeJSONRoundTrip(t *testing.T) {
	fg := NewFlowgraph()
	src := fg.AddBlock(&VectorSource[uint32]{Values: []uint32{1, 2, 3}}, "vector_source", "src", nil, streamPorts("out"), nil, []string{"ctrl"})
	sink := fg.AddBlock(&VectorSink[uint32]{}, "vector_sink", "sink", streamPorts("in"), nil, []string{"ctrl"}, nil)

	_, _, err := ConnectCircular[uint32](fg, src, "out", sink, "in", 0)
	require.NoError(t, err)
	require.NoError(t, fg.ConnectMessage(src, NewMessageOutput("ctrl"), sink, "ctrl", 0))

	want := fg.Describe()

	data, err := json.Marshal(want)
	require.NoError(t, err)

	var got FlowgraphDescription
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, want, got)
}
