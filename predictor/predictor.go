// Package predictor trains bagged regression-tree models for hourly energy
// series and fills in rows awaiting a prediction. Production is modelled
// from weather, sales from the produced energy and the calendar.
package predictor

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/pvplanner/pvplanner/calendar"
	"github.com/pvplanner/pvplanner/features"
	"github.com/pvplanner/pvplanner/store"
)

// ErrNotTrained is returned when predictions are requested before Train.
var ErrNotTrained = errors.New("model has not been trained")

// InsufficientDataError is returned when the training set is smaller than
// the configured minimum.
type InsufficientDataError struct {
	Series store.Series
	Rows   int
	Min    int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("not enough training data for %s: %d rows, need at least %d", e.Series, e.Rows, e.Min)
}

// Config controls training of a single series model.
type Config struct {
	Forest          ForestConfig `json:"forest"`
	TestFraction    float64      `json:"test_fraction"`
	MinTrainingRows int          `json:"min_training_rows"`
}

// DefaultConfig returns the standard training parameters: a 100-tree
// ensemble, a 20% holdout and a 10-row training minimum.
func DefaultConfig() Config {
	return Config{
		Forest:          DefaultForestConfig(),
		TestFraction:    0.2,
		MinTrainingRows: 10,
	}
}

// Predictor owns the model for one energy series.
type Predictor struct {
	series  store.Series
	builder *features.Builder
	cfg     Config
	logger  *log.Logger

	mu      sync.RWMutex
	forest  *Forest
	metrics Metrics
}

// New creates an untrained predictor for the series.
func New(series store.Series, cal *calendar.Calendar, cfg Config, logger *log.Logger) (*Predictor, error) {
	builder, err := features.NewBuilder(series, cal)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.Default()
	}
	if cfg.TestFraction <= 0 || cfg.TestFraction >= 1 {
		cfg.TestFraction = DefaultConfig().TestFraction
	}
	if cfg.MinTrainingRows <= 0 {
		cfg.MinTrainingRows = DefaultConfig().MinTrainingRows
	}
	return &Predictor{
		series:  series,
		builder: builder,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// Series returns the series this predictor models.
func (p *Predictor) Series() store.Series {
	return p.series
}

// Trained reports whether the predictor holds a trained model.
func (p *Predictor) Trained() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.forest != nil
}

// Metrics returns the holdout metrics of the last training run.
func (p *Predictor) Metrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}

// Train fits the ensemble on rows with a known target, evaluates it on a
// deterministic holdout and replaces any previously trained model.
func (p *Predictor) Train(rows []store.FeatureRow) (Metrics, error) {
	x, y := p.builder.TrainingMatrix(rows)
	if len(x) < p.cfg.MinTrainingRows {
		return Metrics{}, &InsufficientDataError{Series: p.series, Rows: len(x), Min: p.cfg.MinTrainingRows}
	}

	trainX, trainY, testX, testY := splitTrainTest(x, y, p.cfg.TestFraction, p.cfg.Forest.Seed)

	forest, err := TrainForest(trainX, trainY, p.cfg.Forest)
	if err != nil {
		return Metrics{}, fmt.Errorf("failed to train %s model: %w", p.series, err)
	}

	metrics := evaluate(forest.PredictAll(testX), testY)
	metrics.TrainSize = len(trainX)

	p.mu.Lock()
	p.forest = forest
	p.metrics = metrics
	p.mu.Unlock()

	p.logger.Printf("Predictor: trained %s model on %d rows (holdout %d): MAE=%.2f RMSE=%.2f R2=%.3f",
		p.series, len(trainX), metrics.TestSize, metrics.MAE, metrics.RMSE, metrics.R2)
	return metrics, nil
}

// PredictMissing fills the target of rows that are still awaiting a value.
// Rows with a known target keep it untouched; rows whose inputs cannot be
// vectorized yet are skipped. Predictions are clamped at zero since energy
// is never negative. Returns only the rows that received a value.
func (p *Predictor) PredictMissing(rows []store.FeatureRow) ([]store.FeatureRow, error) {
	p.mu.RLock()
	forest := p.forest
	p.mu.RUnlock()
	if forest == nil {
		return nil, ErrNotTrained
	}

	pending := make([]store.FeatureRow, 0, len(rows))
	for _, row := range rows {
		if row.Target == nil {
			pending = append(pending, row)
		}
	}

	x, kept := p.builder.PredictionMatrix(pending)
	predicted := make([]store.FeatureRow, 0, len(kept))
	for i, vec := range x {
		value := forest.Predict(vec)
		if value < 0 {
			value = 0
		}
		row := kept[i]
		row.Target = store.Float64Ptr(value)
		row.Type = store.Predicted
		predicted = append(predicted, row)
	}

	if len(predicted) < len(rows) {
		p.logger.Printf("Predictor: %s filled %d of %d rows (%d skipped)",
			p.series, len(predicted), len(rows), len(rows)-len(predicted))
	}
	return predicted, nil
}
