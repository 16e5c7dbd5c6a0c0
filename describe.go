package flowsdr

// FlowgraphDescription is the stable JSON snapshot of a flowgraph's
// topology for external bridges (spec.md §6).
type FlowgraphDescription struct {
	Blocks       []BlockDescription `json:"blocks"`
	StreamEdges  [][4]int           `json:"stream_edges"`  // [src_id, src_port_idx, dst_id, dst_port_idx]
	MessageEdges [][4]int           `json:"message_edges"` // same shape
}

// BlockDescription describes one registered block.
type BlockDescription struct {
	ID             int      `json:"id"`
	TypeName       string   `json:"type_name"`
	InstanceName   string   `json:"instance_name"`
	StreamInputs   []string `json:"stream_inputs"`
	StreamOutputs  []string `json:"stream_outputs"`
	MessageInputs  []string `json:"message_inputs"`
	MessageOutputs []string `json:"message_outputs"`
	Blocking       bool     `json:"blocking"`
}

func portIndex(specs []PortSpec, name string) int {
	for i, s := range specs {
		if s.Name == name {
			return i
		}
	}
	return -1
}

func nameIndex(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// Describe returns a static snapshot of the flowgraph's blocks and edges
// (spec.md §4.1). It is safe to call at any time, before or after Start.
func (fg *Flowgraph) Describe() FlowgraphDescription {
	fg.mu.Lock()
	defer fg.mu.Unlock()

	desc := FlowgraphDescription{}
	for _, bs := range fg.blocks {
		d := BlockDescription{
			ID:           int(bs.id),
			TypeName:     bs.typeName,
			InstanceName: bs.instanceName,
			Blocking:     bs.blocking,
		}
		for _, s := range bs.streamInputs {
			d.StreamInputs = append(d.StreamInputs, s.Name)
		}
		for _, s := range bs.streamOutputs {
			d.StreamOutputs = append(d.StreamOutputs, s.Name)
		}
		d.MessageInputs = append(d.MessageInputs, bs.messageInputs...)
		d.MessageOutputs = append(d.MessageOutputs, bs.messageOutputs...)
		desc.Blocks = append(desc.Blocks, d)
	}
	for _, e := range fg.streamEdges {
		src := fg.blocks[e.srcID]
		dst := fg.blocks[e.dstID]
		desc.StreamEdges = append(desc.StreamEdges, [4]int{
			int(e.srcID), portIndex(src.streamOutputs, e.srcPort),
			int(e.dstID), portIndex(dst.streamInputs, e.dstPort),
		})
	}
	for _, e := range fg.messageEdges {
		src := fg.blocks[e.srcID]
		dst := fg.blocks[e.dstID]
		desc.MessageEdges = append(desc.MessageEdges, [4]int{
			int(e.srcID), nameIndex(src.messageOutputs, e.srcPort),
			int(e.dstID), nameIndex(dst.messageInputs, e.dstPort),
		})
	}
	return desc
}
