package predictor

import (
	"math"
	"sort"
)

// treeNode is a node of a regression tree. Leaves carry the mean target
// of their training samples; internal nodes route on feature <= threshold.
type treeNode struct {
	feature   int
	threshold float64
	left      *treeNode
	right     *treeNode
	value     float64
	leaf      bool
}

// regressionTree is a variance-reduction regression tree.
type regressionTree struct {
	root     *treeNode
	maxDepth int
	minLeaf  int
}

func newRegressionTree(maxDepth, minLeaf int) *regressionTree {
	if maxDepth <= 0 {
		maxDepth = 32
	}
	if minLeaf <= 0 {
		minLeaf = 1
	}
	return &regressionTree{maxDepth: maxDepth, minLeaf: minLeaf}
}

// fit builds the tree from the samples selected by indices.
func (t *regressionTree) fit(x [][]float64, y []float64, indices []int) {
	t.root = t.build(x, y, indices, 0)
}

// predict routes a single vector to a leaf.
func (t *regressionTree) predict(vec []float64) float64 {
	node := t.root
	for !node.leaf {
		if vec[node.feature] <= node.threshold {
			node = node.left
		} else {
			node = node.right
		}
	}
	return node.value
}

func (t *regressionTree) build(x [][]float64, y []float64, indices []int, depth int) *treeNode {
	mean, sse := meanAndSSE(y, indices)
	if depth >= t.maxDepth || len(indices) < 2*t.minLeaf || sse <= 1e-12 {
		return &treeNode{leaf: true, value: mean}
	}

	feature, threshold, ok := t.bestSplit(x, y, indices, sse)
	if !ok {
		return &treeNode{leaf: true, value: mean}
	}

	var left, right []int
	for _, i := range indices {
		if x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &treeNode{
		feature:   feature,
		threshold: threshold,
		left:      t.build(x, y, left, depth+1),
		right:     t.build(x, y, right, depth+1),
	}
}

// bestSplit scans every feature with a single sorted pass, tracking the
// split that removes the most squared error. Returns ok=false when no
// split improves on the parent node.
func (t *regressionTree) bestSplit(x [][]float64, y []float64, indices []int, parentSSE float64) (int, float64, bool) {
	n := len(indices)
	features := len(x[indices[0]])

	bestGain := 1e-12
	bestFeature := -1
	bestThreshold := 0.0

	sorted := make([]int, n)
	for f := 0; f < features; f++ {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool { return x[sorted[a]][f] < x[sorted[b]][f] })

		var totalSum float64
		for _, i := range sorted {
			totalSum += y[i]
		}

		var leftSum, leftSq float64
		var totalSq float64
		for _, i := range sorted {
			totalSq += y[i] * y[i]
		}

		for pos := 0; pos < n-1; pos++ {
			yi := y[sorted[pos]]
			leftSum += yi
			leftSq += yi * yi

			cur, next := x[sorted[pos]][f], x[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			leftN := pos + 1
			rightN := n - leftN
			if leftN < t.minLeaf || rightN < t.minLeaf {
				continue
			}

			rightSum := totalSum - leftSum
			rightSq := totalSq - leftSq
			leftSSE := leftSq - leftSum*leftSum/float64(leftN)
			rightSSE := rightSq - rightSum*rightSum/float64(rightN)

			gain := parentSSE - leftSSE - rightSSE
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = (cur + next) / 2
			}
		}
	}

	if bestFeature < 0 {
		return 0, 0, false
	}
	return bestFeature, bestThreshold, true
}

func meanAndSSE(y []float64, indices []int) (float64, float64) {
	if len(indices) == 0 {
		return 0, 0
	}
	var sum float64
	for _, i := range indices {
		sum += y[i]
	}
	mean := sum / float64(len(indices))

	var sse float64
	for _, i := range indices {
		d := y[i] - mean
		sse += d * d
	}
	if math.IsNaN(sse) {
		sse = 0
	}
	return mean, sse
}
