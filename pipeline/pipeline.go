// Package pipeline orchestrates the forecast run: weather ingestion,
// model training, prediction write-back and report generation, as a
// sequence of named stages over the store.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/pvplanner/pvplanner/calendar"
	"github.com/pvplanner/pvplanner/openmeteo"
	"github.com/pvplanner/pvplanner/predictor"
	"github.com/pvplanner/pvplanner/report"
	"github.com/pvplanner/pvplanner/store"
)

// Stage identifies a named step of the forecast run.
type Stage string

const (
	StageFetchWeather Stage = "fetch_weather"
	StageReconcile    Stage = "reconcile_store"
	StageTrain        Stage = "train"
	StageResetWindow  Stage = "reset_predicted_window"
	StagePredict      Stage = "predict"
	StageWriteBack    Stage = "write_back"
	StageReport       Stage = "report"
)

// defaultBackfillDays bounds the historical fetch when the store is empty.
const defaultBackfillDays = 60

// Progress is one status event emitted while a run advances.
type Progress struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Status is a snapshot of the pipeline state for the web views.
type Status struct {
	Running   bool                         `json:"running"`
	LastRun   time.Time                    `json:"last_run,omitempty"`
	LastStage Stage                        `json:"last_stage,omitempty"`
	LastError string                       `json:"last_error,omitempty"`
	Metrics   map[string]predictor.Metrics `json:"metrics,omitempty"`
}

// Pipeline wires the weather client, store, calendar and the two series
// models into a repeatable forecast run.
type Pipeline struct {
	cfg     *Config
	store   *store.Store
	weather *openmeteo.Client
	cal     *calendar.Calendar
	loc     *time.Location
	logger  *log.Logger

	mu        sync.RWMutex
	status    Status
	observers []func(Progress)

	// now is swapped in tests to pin the calendar date.
	now func() time.Time
}

// New creates a pipeline from its collaborators.
func New(cfg *Config, st *store.Store, weather *openmeteo.Client, logger *log.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		store:   st,
		weather: weather,
		cal:     calendar.New(),
		loc:     loc,
		logger:  logger,
		status:  Status{Metrics: make(map[string]predictor.Metrics)},
		now:     time.Now,
	}, nil
}

// OnProgress registers an observer for stage events. Observers are called
// synchronously from the run goroutine.
func (p *Pipeline) OnProgress(fn func(Progress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

// Status returns a snapshot of the pipeline state.
func (p *Pipeline) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot := p.status
	snapshot.Metrics = make(map[string]predictor.Metrics, len(p.status.Metrics))
	for k, v := range p.status.Metrics {
		snapshot.Metrics[k] = v
	}
	return snapshot
}

func (p *Pipeline) emit(stage Stage, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	p.logger.Printf("Pipeline: [%s] %s", stage, msg)

	p.mu.Lock()
	p.status.LastStage = stage
	observers := make([]func(Progress), len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	event := Progress{Stage: stage, Message: msg, Time: time.Now()}
	for _, fn := range observers {
		fn(event)
	}
}

// Run executes one full forecast cycle. A weather fetch failure or both
// models failing to train aborts the run; a single series failing leaves
// the sibling series to complete on its own.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.status.Running {
		p.mu.Unlock()
		return fmt.Errorf("a run is already in progress")
	}
	p.status.Running = true
	p.status.LastError = ""
	p.mu.Unlock()

	err := p.run(ctx)

	p.mu.Lock()
	p.status.Running = false
	p.status.LastRun = time.Now()
	if err != nil {
		p.status.LastError = err.Error()
	}
	p.mu.Unlock()
	return err
}

func (p *Pipeline) run(ctx context.Context) error {
	today := store.DateOnly(p.now().In(p.loc))

	// Fetch weather.
	real, predicted, err := p.fetchWeather(ctx, today)
	if err != nil {
		return fmt.Errorf("weather fetch failed: %w", err)
	}

	// Reconcile store.
	p.emit(StageReconcile, "upserting %d real and %d predicted weather rows", len(real), len(predicted))
	if err := p.store.UpsertWeather(ctx, real); err != nil {
		return fmt.Errorf("failed to store real weather: %w", err)
	}
	if err := p.store.UpsertWeather(ctx, predicted); err != nil {
		return fmt.Errorf("failed to store predicted weather: %w", err)
	}

	// Train both models. One series failing must not stop the other.
	models := make(map[store.Series]*predictor.Predictor)
	var trainErrs *multierror.Error
	for _, series := range []store.Series{store.Produced, store.Sold} {
		model, err := p.trainSeries(ctx, series)
		if err != nil {
			trainErrs = multierror.Append(trainErrs, err)
			p.emit(StageTrain, "%s training failed: %v", series, err)
			continue
		}
		models[series] = model
		p.setMetrics(series, model.Metrics())
	}
	if len(models) == 0 {
		return fmt.Errorf("training failed for both series: %w", trainErrs.ErrorOrNil())
	}

	// Clear and reseed the predicted window in one transaction.
	p.emit(StageResetWindow, "resetting predicted energy from %s", today.Format("2006-01-02"))
	if err := p.store.ResetPredictedWindow(ctx, today, p.cfg.ObjectID); err != nil {
		return fmt.Errorf("failed to reset predicted window: %w", err)
	}

	// Predict and write back. Production goes first: the sales model
	// reads its predictions back out of the store as a feature.
	var runErrs *multierror.Error
	if model, ok := models[store.Produced]; ok {
		if err := p.predictSeries(ctx, model); err != nil {
			runErrs = multierror.Append(runErrs, err)
		}
	}
	if model, ok := models[store.Sold]; ok {
		if err := p.predictSeries(ctx, model); err != nil {
			runErrs = multierror.Append(runErrs, err)
		}
	}

	if err := p.writeReport(ctx); err != nil {
		runErrs = multierror.Append(runErrs, err)
	}

	runErrs = multierror.Append(runErrs, trainErrs.ErrorOrNil())
	return runErrs.ErrorOrNil()
}

// fetchWeather pulls archived observations since the last stored real day
// and the forecast window, both filtered to complete days.
func (p *Pipeline) fetchWeather(ctx context.Context, today time.Time) (real, predicted []store.WeatherRecord, err error) {
	start := today.AddDate(0, 0, -defaultBackfillDays)
	if last, ok, err := p.store.LatestWeatherDate(ctx, store.Real); err != nil {
		return nil, nil, err
	} else if ok && last.After(start) {
		// Refetch the last stored day only when it is still partial.
		start = last
		if complete, err := p.store.IsWeatherDayComplete(ctx, last, store.Real); err != nil {
			return nil, nil, err
		} else if complete {
			start = last.AddDate(0, 0, 1)
		}
		if start.After(today) {
			start = today
		}
	}

	loc := p.cfg.WeatherLocation()

	p.emit(StageFetchWeather, "fetching archive %s..%s", start.Format("2006-01-02"), today.Format("2006-01-02"))
	archive, err := p.weather.FetchHistorical(ctx, loc, start, today)
	if err != nil {
		return nil, nil, err
	}
	real, err = openmeteo.Records(archive, p.loc, store.Real)
	if err != nil {
		return nil, nil, err
	}
	real, dropped := openmeteo.FilterCompleteDays(real)
	for _, d := range dropped {
		p.emit(StageFetchWeather, "dropping incomplete archive day %s", d.Format("2006-01-02"))
	}

	p.emit(StageFetchWeather, "fetching %d-day forecast", p.cfg.ForecastDays)
	forecast, err := p.weather.FetchForecast(ctx, loc, p.cfg.PastDays, p.cfg.ForecastDays)
	if err != nil {
		return nil, nil, err
	}
	predicted, err = openmeteo.Records(forecast, p.loc, store.Predicted)
	if err != nil {
		return nil, nil, err
	}
	predicted, dropped = openmeteo.FilterCompleteDays(predicted)
	for _, d := range dropped {
		p.emit(StageFetchWeather, "dropping incomplete forecast day %s", d.Format("2006-01-02"))
	}

	return real, predicted, nil
}

func (p *Pipeline) trainSeries(ctx context.Context, series store.Series) (*predictor.Predictor, error) {
	rows, err := p.store.TrainingData(ctx, series, p.cfg.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s training data: %w", series, err)
	}

	p.emit(StageTrain, "training %s model on %d rows", series, len(rows))
	model, err := predictor.New(series, p.cal, p.cfg.ModelConfig(), p.logger)
	if err != nil {
		return nil, err
	}
	metrics, err := model.Train(rows)
	if err != nil {
		return nil, err
	}
	p.emit(StageTrain, "%s model: MAE=%.2f RMSE=%.2f R2=%.3f on %d holdout rows",
		series, metrics.MAE, metrics.RMSE, metrics.R2, metrics.TestSize)
	return model, nil
}

func (p *Pipeline) predictSeries(ctx context.Context, model *predictor.Predictor) error {
	series := model.Series()

	rows, err := p.store.PredictionData(ctx, series, p.cfg.ObjectID)
	if err != nil {
		return fmt.Errorf("failed to load %s prediction data: %w", series, err)
	}

	p.emit(StagePredict, "predicting %d %s rows", len(rows), series)
	filled, err := model.PredictMissing(rows)
	if err != nil {
		return fmt.Errorf("failed to predict %s: %w", series, err)
	}

	if series == store.Produced {
		filled = ClampProduction(filled, p.cfg.Latitude, p.cfg.Longitude, p.loc)
	}

	written, err := p.store.WritePredictions(ctx, series, filled)
	if err != nil {
		return fmt.Errorf("failed to write %s predictions: %w", series, err)
	}
	p.emit(StageWriteBack, "wrote %d %s predictions", written, series)
	return nil
}

func (p *Pipeline) writeReport(ctx context.Context) error {
	sheets := make([]report.Sheet, 0, 2)
	for _, series := range []store.Series{store.Produced, store.Sold} {
		rows, err := p.store.PredictedEnergy(ctx, series, p.cfg.ObjectID)
		if err != nil {
			return fmt.Errorf("failed to load predicted %s for report: %w", series, err)
		}
		sheets = append(sheets, report.Sheet{Name: string(series), Table: report.Pivot(rows, report.MWhDivisor)})
	}

	empty := true
	for _, sheet := range sheets {
		if !sheet.Table.Empty() {
			empty = false
		}
	}
	if empty {
		p.emit(StageReport, "no predictions to report, skipping export")
		return nil
	}

	if err := report.WriteXLSX(p.cfg.ReportPath, sheets); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	p.emit(StageReport, "wrote report to %s", p.cfg.ReportPath)
	return nil
}

// ReportSheets builds the pivot sheets for on-demand export without
// touching the report file on disk.
func (p *Pipeline) ReportSheets(ctx context.Context) ([]report.Sheet, error) {
	sheets := make([]report.Sheet, 0, 2)
	for _, series := range []store.Series{store.Produced, store.Sold} {
		rows, err := p.store.PredictedEnergy(ctx, series, p.cfg.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to load predicted %s: %w", series, err)
		}
		sheets = append(sheets, report.Sheet{Name: string(series), Table: report.Pivot(rows, report.MWhDivisor)})
	}
	return sheets, nil
}

func (p *Pipeline) setMetrics(series store.Series, m predictor.Metrics) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.status.Metrics == nil {
		p.status.Metrics = make(map[string]predictor.Metrics)
	}
	p.status.Metrics[string(series)] = m
}

// Store exposes the underlying store for the web server handlers.
func (p *Pipeline) Store() *store.Store {
	return p.store
}

// Config returns the pipeline configuration.
func (p *Pipeline) Config() *Config {
	return p.cfg
}
