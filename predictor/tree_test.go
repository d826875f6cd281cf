package predictor

import "testing"

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}

func TestTreeLearnsStepFunction(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 10; i++ {
		x = append(x, []float64{float64(i)})
		if i < 5 {
			y = append(y, 0)
		} else {
			y = append(y, 100)
		}
	}

	tree := newRegressionTree(0, 1)
	tree.fit(x, y, allIndices(len(x)))

	if got := tree.predict([]float64{2}); got != 0 {
		t.Errorf("predict(2) = %f, expected 0", got)
	}
	if got := tree.predict([]float64{7}); got != 100 {
		t.Errorf("predict(7) = %f, expected 100", got)
	}
}

func TestTreeConstantTargetIsSingleLeaf(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{5, 5, 5, 5}

	tree := newRegressionTree(0, 1)
	tree.fit(x, y, allIndices(len(x)))

	if !tree.root.leaf {
		t.Error("Expected root to be a leaf for constant targets")
	}
	if got := tree.predict([]float64{100}); got != 5 {
		t.Errorf("predict = %f, expected 5", got)
	}
}

func TestTreeSplitsOnInformativeFeature(t *testing.T) {
	// Feature 0 is noise, feature 1 decides the target.
	x := [][]float64{
		{3, 0}, {1, 0}, {4, 0}, {1, 0},
		{5, 10}, {9, 10}, {2, 10}, {6, 10},
	}
	y := []float64{1, 1, 1, 1, 9, 9, 9, 9}

	tree := newRegressionTree(0, 1)
	tree.fit(x, y, allIndices(len(x)))

	if tree.root.leaf {
		t.Fatal("Expected root to split")
	}
	if tree.root.feature != 1 {
		t.Errorf("Expected split on feature 1, got %d", tree.root.feature)
	}
	if got := tree.predict([]float64{7, 0}); got != 1 {
		t.Errorf("predict = %f, expected 1", got)
	}
	if got := tree.predict([]float64{0, 10}); got != 9 {
		t.Errorf("predict = %f, expected 9", got)
	}
}

func TestTreeRespectsMaxDepth(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 16; i++ {
		x = append(x, []float64{float64(i)})
		y = append(y, float64(i))
	}

	tree := newRegressionTree(1, 1)
	tree.fit(x, y, allIndices(len(x)))

	if tree.root.leaf {
		t.Fatal("Expected root to split at depth limit 1")
	}
	if !tree.root.left.leaf || !tree.root.right.leaf {
		t.Error("Expected children of root to be leaves at depth limit 1")
	}
}
