package predictor

import (
	"fmt"
	"math/rand/v2"
)

// ForestConfig controls ensemble training.
type ForestConfig struct {
	Trees    int    `json:"trees"`
	MaxDepth int    `json:"max_depth"`
	MinLeaf  int    `json:"min_leaf"`
	Seed     uint64 `json:"seed"`
}

// DefaultForestConfig returns the standard ensemble parameters.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		Trees:    100,
		MaxDepth: 32,
		MinLeaf:  1,
		Seed:     42,
	}
}

// Forest is a bagged ensemble of regression trees. Each tree is trained
// on a bootstrap resample of the training set and predictions are the
// plain average over all trees.
type Forest struct {
	trees []*regressionTree
}

// TrainForest trains the ensemble. Each tree gets its own deterministic
// random stream derived from the config seed, so training is reproducible
// regardless of tree count.
func TrainForest(x [][]float64, y []float64, cfg ForestConfig) (*Forest, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("no training samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("sample count mismatch: %d vectors, %d targets", len(x), len(y))
	}
	if cfg.Trees <= 0 {
		cfg.Trees = DefaultForestConfig().Trees
	}

	n := len(x)
	forest := &Forest{trees: make([]*regressionTree, cfg.Trees)}
	for t := 0; t < cfg.Trees; t++ {
		rng := rand.New(rand.NewPCG(cfg.Seed, uint64(t)))

		indices := make([]int, n)
		for i := range indices {
			indices[i] = rng.IntN(n)
		}

		tree := newRegressionTree(cfg.MaxDepth, cfg.MinLeaf)
		tree.fit(x, y, indices)
		forest.trees[t] = tree
	}

	return forest, nil
}

// Predict returns the ensemble average for a single feature vector.
func (f *Forest) Predict(vec []float64) float64 {
	var sum float64
	for _, tree := range f.trees {
		sum += tree.predict(vec)
	}
	return sum / float64(len(f.trees))
}

// PredictAll predicts every vector in the batch.
func (f *Forest) PredictAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, vec := range x {
		out[i] = f.Predict(vec)
	}
	return out
}
