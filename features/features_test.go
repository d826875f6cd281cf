package features

import (
	"testing"
	"time"

	"github.com/pvplanner/pvplanner/store"
)

func TestNewBuilderRejectsUnknownSeries(t *testing.T) {
	if _, err := NewBuilder(store.Series("wind"), nil); err == nil {
		t.Fatal("Expected error for unknown series")
	}
}

func TestProductionVector(t *testing.T) {
	b, err := NewBuilder(store.Produced, nil)
	if err != nil {
		t.Fatal(err)
	}

	row := store.FeatureRow{
		Date:       time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC),
		Hour:       13,
		Temp:       24.5,
		Cloud:      40.0,
		Irradiance: 780.0,
	}

	vec, ok := b.Vector(row)
	if !ok {
		t.Fatal("Expected production vector to be built")
	}

	expected := []float64{24.5, 780.0, 40.0, 13, 6}
	if len(vec) != len(expected) {
		t.Fatalf("Expected %d features, got %d", len(expected), len(vec))
	}
	for i, want := range expected {
		if vec[i] != want {
			t.Errorf("Feature %q = %f, expected %f", b.Names()[i], vec[i], want)
		}
	}
}

func TestSalesVector(t *testing.T) {
	b, err := NewBuilder(store.Sold, nil)
	if err != nil {
		t.Fatal(err)
	}

	// 2024-05-01 is a public holiday in Poland and a Wednesday.
	row := store.FeatureRow{
		Date:     time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Hour:     10,
		Produced: store.Float64Ptr(312.0),
	}

	vec, ok := b.Vector(row)
	if !ok {
		t.Fatal("Expected sales vector to be built")
	}

	expected := []float64{312.0, 10, 1, 2, 5}
	for i, want := range expected {
		if vec[i] != want {
			t.Errorf("Feature %q = %f, expected %f", b.Names()[i], vec[i], want)
		}
	}
}

func TestSalesVectorRequiresProducedInput(t *testing.T) {
	b, err := NewBuilder(store.Sold, nil)
	if err != nil {
		t.Fatal(err)
	}

	row := store.FeatureRow{
		Date: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Hour: 10,
	}

	if _, ok := b.Vector(row); ok {
		t.Error("Expected vector build to fail without produced energy")
	}
}

func TestTrainingMatrixSkipsRowsWithoutTarget(t *testing.T) {
	b, err := NewBuilder(store.Produced, nil)
	if err != nil {
		t.Fatal(err)
	}

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []store.FeatureRow{
		{Date: date, Hour: 10, Temp: 20, Cloud: 10, Irradiance: 600, Target: store.Float64Ptr(450)},
		{Date: date, Hour: 11, Temp: 21, Cloud: 15, Irradiance: 650},
		{Date: date, Hour: 12, Temp: 22, Cloud: 20, Irradiance: 700, Target: store.Float64Ptr(520)},
	}

	x, y := b.TrainingMatrix(rows)
	if len(x) != 2 || len(y) != 2 {
		t.Fatalf("Expected 2 training rows, got %d vectors and %d targets", len(x), len(y))
	}
	if y[0] != 450 || y[1] != 520 {
		t.Errorf("Unexpected targets: %v", y)
	}
}

func TestPredictionMatrixKeepsAlignment(t *testing.T) {
	b, err := NewBuilder(store.Sold, nil)
	if err != nil {
		t.Fatal(err)
	}

	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := []store.FeatureRow{
		{Date: date, Hour: 10, Produced: store.Float64Ptr(300)},
		{Date: date, Hour: 11},
		{Date: date, Hour: 12, Produced: store.Float64Ptr(400)},
	}

	x, kept := b.PredictionMatrix(rows)
	if len(x) != 2 || len(kept) != 2 {
		t.Fatalf("Expected 2 prediction rows, got %d vectors and %d rows", len(x), len(kept))
	}
	if kept[0].Hour != 10 || kept[1].Hour != 12 {
		t.Errorf("Expected hours 10 and 12, got %d and %d", kept[0].Hour, kept[1].Hour)
	}
	if x[0][0] != 300 || x[1][0] != 400 {
		t.Errorf("Unexpected produced inputs: %f, %f", x[0][0], x[1][0])
	}
}
