package predictor

import (
	"errors"
	"log"
	"math"
	"os"
	"testing"
	"time"

	"github.com/pvplanner/pvplanner/store"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[TEST] ", 0)
}

// productionTrainingRows fabricates days of hourly rows where the target is
// proportional to irradiance, with zero irradiance over night hours.
func productionTrainingRows(days int) []store.FeatureRow {
	var rows []store.FeatureRow
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < days; d++ {
		date := base.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			gti := 0.0
			if h >= 6 && h <= 19 {
				peak := 1000.0 + float64(d*10)
				gti = peak * math.Sin(math.Pi*float64(h-6)/13.0)
			}
			target := 0.45 * gti
			rows = append(rows, store.FeatureRow{
				Date:       date,
				Hour:       h,
				Temp:       15 + float64(h)/2,
				Cloud:      float64((d * 7) % 100),
				Irradiance: gti,
				Target:     store.Float64Ptr(target),
				Type:       store.Real,
			})
		}
	}
	return rows
}

func TestEvaluateKnownValues(t *testing.T) {
	m := evaluate([]float64{2, 4}, []float64{1, 5})

	if m.MAE != 1 {
		t.Errorf("MAE = %f, expected 1", m.MAE)
	}
	if m.RMSE != 1 {
		t.Errorf("RMSE = %f, expected 1", m.RMSE)
	}
	if m.R2 != 0.75 {
		t.Errorf("R2 = %f, expected 0.75", m.R2)
	}
	if m.TestSize != 2 {
		t.Errorf("TestSize = %d, expected 2", m.TestSize)
	}
}

func TestSplitTrainTestDeterministic(t *testing.T) {
	var x [][]float64
	var y []float64
	for i := 0; i < 20; i++ {
		x = append(x, []float64{float64(i)})
		y = append(y, float64(i))
	}

	_, _, testX1, _ := splitTrainTest(x, y, 0.2, 42)
	trainX, trainY, testX2, testY := splitTrainTest(x, y, 0.2, 42)

	if len(testX2) != 4 {
		t.Errorf("Expected holdout of 4, got %d", len(testX2))
	}
	if len(trainX) != 16 || len(trainY) != 16 || len(testY) != 4 {
		t.Errorf("Unexpected split sizes: train=%d test=%d", len(trainX), len(testY))
	}
	for i := range testX1 {
		if testX1[i][0] != testX2[i][0] {
			t.Fatal("Same seed produced different holdouts")
		}
	}
}

func TestSplitTrainTestMinimumHoldout(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}}
	y := []float64{1, 2, 3}

	trainX, _, testX, _ := splitTrainTest(x, y, 0.2, 42)
	if len(testX) != 1 {
		t.Errorf("Expected holdout of 1 for 3 samples, got %d", len(testX))
	}
	if len(trainX) != 2 {
		t.Errorf("Expected 2 training samples, got %d", len(trainX))
	}
}

func TestTrainForestDeterministic(t *testing.T) {
	rows := productionTrainingRows(3)
	var x [][]float64
	var y []float64
	for _, r := range rows {
		x = append(x, []float64{r.Temp, r.Irradiance, r.Cloud, float64(r.Hour)})
		y = append(y, *r.Target)
	}

	cfg := ForestConfig{Trees: 10, Seed: 42}
	f1, err := TrainForest(x, y, cfg)
	if err != nil {
		t.Fatal(err)
	}
	f2, err := TrainForest(x, y, cfg)
	if err != nil {
		t.Fatal(err)
	}

	probe := []float64{20, 600, 30, 12}
	if f1.Predict(probe) != f2.Predict(probe) {
		t.Error("Same seed produced different models")
	}
}

func TestTrainForestRejectsEmptyInput(t *testing.T) {
	if _, err := TrainForest(nil, nil, DefaultForestConfig()); err == nil {
		t.Error("Expected error for empty training set")
	}
	if _, err := TrainForest([][]float64{{1}}, []float64{1, 2}, DefaultForestConfig()); err == nil {
		t.Error("Expected error for mismatched lengths")
	}
}

func TestPredictorTrainInsufficientData(t *testing.T) {
	p, err := New(store.Produced, nil, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	rows := productionTrainingRows(5)[:5]
	_, err = p.Train(rows)
	if err == nil {
		t.Fatal("Expected error for insufficient training data")
	}

	var insufficient *InsufficientDataError
	if !errors.As(err, &insufficient) {
		t.Fatalf("Expected InsufficientDataError, got %T: %v", err, err)
	}
	if insufficient.Rows != 5 || insufficient.Min != 10 {
		t.Errorf("Unexpected error details: %+v", insufficient)
	}
	if p.Trained() {
		t.Error("Predictor reports trained after failed training")
	}
}

func TestPredictorPredictBeforeTrain(t *testing.T) {
	p, err := New(store.Produced, nil, DefaultConfig(), testLogger())
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.PredictMissing(productionTrainingRows(1))
	if !errors.Is(err, ErrNotTrained) {
		t.Errorf("Expected ErrNotTrained, got %v", err)
	}
}

func TestPredictorTrainAndPredict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Forest.Trees = 25

	p, err := New(store.Produced, nil, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	metrics, err := p.Train(productionTrainingRows(10))
	if err != nil {
		t.Fatalf("Train returned error: %v", err)
	}
	if !p.Trained() {
		t.Fatal("Predictor does not report trained")
	}
	if metrics.TestSize == 0 || metrics.TrainSize == 0 {
		t.Errorf("Expected non-empty split, got %+v", metrics)
	}
	if metrics.RMSE < 0 {
		t.Errorf("Negative RMSE: %f", metrics.RMSE)
	}

	date := time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC)
	known := store.Float64Ptr(123.0)
	pending := []store.FeatureRow{
		{Date: date, Hour: 2, Temp: 14, Cloud: 20, Irradiance: 0, Type: store.Predicted},
		{Date: date, Hour: 12, Temp: 24, Cloud: 20, Irradiance: 850, Type: store.Predicted},
		{Date: date, Hour: 13, Temp: 25, Cloud: 20, Irradiance: 800, Type: store.Predicted, Target: known},
	}

	predicted, err := p.PredictMissing(pending)
	if err != nil {
		t.Fatalf("PredictMissing returned error: %v", err)
	}
	if len(predicted) != 2 {
		t.Fatalf("Expected 2 predictions (one row already has a value), got %d", len(predicted))
	}

	var night, noon *store.FeatureRow
	for i := range predicted {
		switch predicted[i].Hour {
		case 2:
			night = &predicted[i]
		case 12:
			noon = &predicted[i]
		}
	}
	if night == nil || noon == nil {
		t.Fatal("Missing expected prediction rows")
	}

	if *night.Target < 0 {
		t.Errorf("Night prediction is negative: %f", *night.Target)
	}
	if *night.Target > 50 {
		t.Errorf("Night prediction too high for zero irradiance: %f", *night.Target)
	}
	if *noon.Target < 100 {
		t.Errorf("Noon prediction too low for high irradiance: %f", *noon.Target)
	}
	if night.Type != store.Predicted || noon.Type != store.Predicted {
		t.Error("Predicted rows should carry the predicted type")
	}
}

func TestPredictorSalesSkipsMissingProduced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Forest.Trees = 10

	p, err := New(store.Sold, nil, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	var rows []store.FeatureRow
	for d := 0; d < 3; d++ {
		date := base.AddDate(0, 0, d)
		for h := 0; h < 24; h++ {
			produced := float64(h * 40)
			rows = append(rows, store.FeatureRow{
				Date:     date,
				Hour:     h,
				Produced: store.Float64Ptr(produced),
				Target:   store.Float64Ptr(produced * 0.9),
				Type:     store.Real,
			})
		}
	}
	if _, err := p.Train(rows); err != nil {
		t.Fatalf("Train returned error: %v", err)
	}

	date := base.AddDate(0, 0, 10)
	pending := []store.FeatureRow{
		{Date: date, Hour: 10, Produced: store.Float64Ptr(400), Type: store.Predicted},
		{Date: date, Hour: 11, Type: store.Predicted},
	}

	predicted, err := p.PredictMissing(pending)
	if err != nil {
		t.Fatalf("PredictMissing returned error: %v", err)
	}
	if len(predicted) != 1 {
		t.Fatalf("Expected 1 prediction with the other row missing its input, got %d", len(predicted))
	}
	if predicted[0].Hour != 10 {
		t.Errorf("Expected prediction for hour 10, got %d", predicted[0].Hour)
	}
}
