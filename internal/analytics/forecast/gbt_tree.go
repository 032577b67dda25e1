package forecast

import "sort"

// gbtNode is one node of a regression tree. Children are indexes into the
// owning tree's node slice.
type gbtNode struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

type gbtTree struct {
	Nodes []gbtNode `json:"nodes"`
}

// predict walks the tree. Rows with x[feature] < threshold go left.
func (t *gbtTree) predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// treeBuilder grows one tree per boosting round on squared loss, where the
// gradient is pred - y and every hessian is 1.
type treeBuilder struct {
	x              [][]float64
	grad           []float64
	maxDepth       int
	lambda         float64
	minChildWeight float64
	eta            float64
}

func (b *treeBuilder) build() gbtTree {
	idx := make([]int, len(b.x))
	for i := range idx {
		idx[i] = i
	}
	var tree gbtTree
	b.grow(&tree, idx, 0)
	return tree
}

// grow appends the subtree for rows idx and returns its node index.
func (b *treeBuilder) grow(tree *gbtTree, idx []int, depth int) int {
	g := 0.0
	for _, i := range idx {
		g += b.grad[i]
	}
	h := float64(len(idx))

	pos := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, gbtNode{})

	var split treeSplit
	ok := false
	if depth < b.maxDepth {
		split, ok = b.bestSplit(idx, g, h)
	}
	if !ok {
		tree.Nodes[pos] = gbtNode{Leaf: true, Value: -g / (h + b.lambda) * b.eta}
		return pos
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][split.feature] < split.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(tree, left, depth+1)
	r := b.grow(tree, right, depth+1)
	tree.Nodes[pos] = gbtNode{
		Feature:   split.feature,
		Threshold: split.threshold,
		Left:      l,
		Right:     r,
	}
	return pos
}

type treeSplit struct {
	feature   int
	threshold float64
	gain      float64
}

// bestSplit runs the exact greedy search. Only strictly positive gains count
// and ties keep the first candidate found.
func (b *treeBuilder) bestSplit(idx []int, g, h float64) (treeSplit, bool) {
	if len(idx) < 2 || len(b.x) == 0 {
		return treeSplit{}, false
	}
	parent := g * g / (h + b.lambda)
	best := treeSplit{}
	found := false

	sorted := make([]int, len(idx))
	for f := 0; f < len(b.x[idx[0]]); f++ {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(a, c int) bool {
			return b.x[sorted[a]][f] < b.x[sorted[c]][f]
		})

		gl, hl := 0.0, 0.0
		for k := 0; k < len(sorted)-1; k++ {
			gl += b.grad[sorted[k]]
			hl++
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			gr, hr := g-gl, h-hl
			if hl < b.minChildWeight || hr < b.minChildWeight {
				continue
			}
			gain := 0.5 * (gl*gl/(hl+b.lambda) + gr*gr/(hr+b.lambda) - parent)
			if gain > 0 && (!found || gain > best.gain) {
				best = treeSplit{feature: f, threshold: (lo + hi) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
