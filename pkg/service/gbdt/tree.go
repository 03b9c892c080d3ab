package gbdt

// Node is one node of a regression tree. Internal nodes route x to Left when
// x[Feature] < Threshold. Value is the shrunken weight the node would output as a leaf,
// which is also the expected output used for path attribution.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int     `json:"l,omitempty"`
	Right     int     `json:"r,omitempty"`
	Value     float64 `json:"v"`
	Cover     float64 `json:"c"`
	Gain      float64 `json:"g,omitempty"`
}

// IsLeaf reports whether the node has no children
func (n *Node) IsLeaf() bool {
	return n.Feature < 0
}

// Tree is a regression tree stored as a flat node list rooted at index 0
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) next(n *Node, x []float64) int {
	if x[n.Feature] < n.Threshold {
		return n.Left
	}
	return n.Right
}

// Predict returns the leaf value reached by x
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		i = t.next(&t.Nodes[i], x)
	}
	return t.Nodes[i].Value
}

// contribute adds the change of expected value at every split on x's path to the split
// feature (Saabas decomposition) and returns the root value. The root value plus the
// added contributions equals Predict(x).
func (t *Tree) contribute(x []float64, out []float64) float64 {
	i := 0
	for !t.Nodes[i].IsLeaf() {
		n := &t.Nodes[i]
		child := t.next(n, x)
		out[n.Feature] += t.Nodes[child].Value - n.Value
		i = child
	}
	return t.Nodes[0].Value
}
