package predictor

import (
	"math"
	"math/rand/v2"
)

// Metrics are holdout evaluation results for a trained model.
type Metrics struct {
	MAE       float64 `json:"mae"`
	RMSE      float64 `json:"rmse"`
	R2        float64 `json:"r2"`
	TrainSize int     `json:"train_size"`
	TestSize  int     `json:"test_size"`
}

// splitTrainTest shuffles the samples with a seeded stream and carves off
// testFraction of them as the holdout. The holdout holds at least one
// sample and never the whole set.
func splitTrainTest(x [][]float64, y []float64, testFraction float64, seed uint64) (trainX [][]float64, trainY []float64, testX [][]float64, testY []float64) {
	n := len(x)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	rng := rand.New(rand.NewPCG(seed, 0))
	rng.Shuffle(n, func(i, j int) { order[i], order[j] = order[j], order[i] })

	testN := int(float64(n) * testFraction)
	if testN < 1 {
		testN = 1
	}
	if testN >= n {
		testN = n - 1
	}

	for i, idx := range order {
		if i < testN {
			testX = append(testX, x[idx])
			testY = append(testY, y[idx])
		} else {
			trainX = append(trainX, x[idx])
			trainY = append(trainY, y[idx])
		}
	}
	return trainX, trainY, testX, testY
}

// evaluate computes MAE, RMSE and R2 of predictions against actuals.
func evaluate(predicted, actual []float64) Metrics {
	n := float64(len(actual))
	if n == 0 {
		return Metrics{}
	}

	var absSum, sqSum, actualSum float64
	for i := range actual {
		d := predicted[i] - actual[i]
		absSum += math.Abs(d)
		sqSum += d * d
		actualSum += actual[i]
	}
	mean := actualSum / n

	var ssTot float64
	for _, a := range actual {
		d := a - mean
		ssTot += d * d
	}

	m := Metrics{
		MAE:      absSum / n,
		RMSE:     math.Sqrt(sqSum / n),
		TestSize: len(actual),
	}
	if ssTot > 0 {
		m.R2 = 1 - sqSum/ssTot
	}
	return m
}
