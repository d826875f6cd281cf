package store

import (
	"context"
	"log"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, log.New(os.Stderr, "[TEST] ", 0)), mock
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestUpsertWeather(t *testing.T) {
	s, mock := newMockStore(t)

	records := []WeatherRecord{
		{Date: day(2024, 6, 1), Hour: 10, Temp: 21.5, Cloud: 30, Irradiance: 650, Type: Real},
		{Date: day(2024, 6, 1), Hour: 11, Temp: 22.0, Cloud: 25, Irradiance: 700, Type: Real},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO weather")
	for _, r := range records {
		prep.ExpectExec().
			WithArgs(r.Date, r.Hour, r.Temp, r.Cloud, r.Irradiance, "real").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectCommit()

	err := s.UpsertWeather(context.Background(), records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertWeatherEmptyIsNoop(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.UpsertWeather(context.Background(), nil)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRealEnergySkipsDuplicates(t *testing.T) {
	s, mock := newMockStore(t)

	rows := []EnergyRecord{
		{Date: day(2024, 6, 1), Hour: 0, Value: Float64Ptr(12.5), ObjectID: 1},
		{Date: day(2024, 6, 1), Hour: 1, Value: Float64Ptr(13.0), ObjectID: 1},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO produced_energy")
	// First row inserts, second hits the conflict and is skipped.
	prep.ExpectExec().
		WithArgs(rows[0].Date, rows[0].Hour, rows[0].Value, "real", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().
		WithArgs(rows[1].Date, rows[1].Hour, rows[1].Value, "real", 1).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := s.ImportRealEnergy(context.Background(), Produced, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRealEnergyRejectsUnknownSeries(t *testing.T) {
	s, _ := newMockStore(t)

	_, err := s.ImportRealEnergy(context.Background(), Series("bogus"), []EnergyRecord{{}})
	assert.Error(t, err)
}

func TestIsWeatherDayComplete(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		expected bool
	}{
		{"all 24 hours present", 24, true},
		{"partial day", 18, false},
		{"no rows", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)

			mock.ExpectQuery("SELECT COUNT\\(DISTINCT hour\\) FROM weather").
				WithArgs(day(2024, 6, 1), "real").
				WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(tt.count))

			complete, err := s.IsWeatherDayComplete(context.Background(), day(2024, 6, 1), Real)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, complete)
		})
	}
}

func TestLatestWeatherDate(t *testing.T) {
	s, mock := newMockStore(t)

	latest := day(2024, 6, 10)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(date) FROM weather")).
		WithArgs("real").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(latest))

	got, ok, err := s.LatestWeatherDate(context.Background(), Real)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(latest))
}

func TestLatestWeatherDateEmptyTable(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT MAX(date) FROM weather")).
		WithArgs("predicted").
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))

	_, ok, err := s.LatestWeatherDate(context.Background(), Predicted)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetPredictedWindow(t *testing.T) {
	s, mock := newMockStore(t)

	from := day(2024, 6, 10)
	slotRows := sqlmock.NewRows([]string{"date", "hour"}).
		AddRow(day(2024, 6, 10), 0).
		AddRow(day(2024, 6, 10), 1)
	mock.ExpectQuery("SELECT DISTINCT date, hour FROM weather").
		WithArgs("predicted").
		WillReturnRows(slotRows)

	mock.ExpectBegin()
	// Produced series: clear then reseed.
	mock.ExpectExec("DELETE FROM produced_energy").
		WithArgs("predicted", from).
		WillReturnResult(sqlmock.NewResult(0, 5))
	prepProduced := mock.ExpectPrepare("INSERT INTO produced_energy")
	prepProduced.ExpectExec().WithArgs(day(2024, 6, 10), 0, "predicted", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	prepProduced.ExpectExec().WithArgs(day(2024, 6, 10), 1, "predicted", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	// Sold series: clear then reseed.
	mock.ExpectExec("DELETE FROM sold_energy").
		WithArgs("predicted", from).
		WillReturnResult(sqlmock.NewResult(0, 5))
	prepSold := mock.ExpectPrepare("INSERT INTO sold_energy")
	prepSold.ExpectExec().WithArgs(day(2024, 6, 10), 0, "predicted", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	prepSold.ExpectExec().WithArgs(day(2024, 6, 10), 1, "predicted", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.ResetPredictedWindow(context.Background(), from, 1)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetPredictedWindowRollsBackOnSeedFailure(t *testing.T) {
	s, mock := newMockStore(t)

	from := day(2024, 6, 10)
	mock.ExpectQuery("SELECT DISTINCT date, hour FROM weather").
		WithArgs("predicted").
		WillReturnRows(sqlmock.NewRows([]string{"date", "hour"}).AddRow(day(2024, 6, 10), 0))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM produced_energy").
		WithArgs("predicted", from).
		WillReturnResult(sqlmock.NewResult(0, 5))
	prep := mock.ExpectPrepare("INSERT INTO produced_energy")
	prep.ExpectExec().WithArgs(day(2024, 6, 10), 0, "predicted", 1).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.ResetPredictedWindow(context.Background(), from, 1)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWritePredictionsSkipsNilTargets(t *testing.T) {
	s, mock := newMockStore(t)

	rows := []FeatureRow{
		{Date: day(2024, 6, 10), Hour: 12, Target: Float64Ptr(450.5), Type: Predicted, ObjectID: 1},
		{Date: day(2024, 6, 10), Hour: 13, Target: nil, Type: Predicted, ObjectID: 1},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("UPDATE produced_energy SET produced_energy")
	prep.ExpectExec().
		WithArgs(450.5, rows[0].Date, 12, "predicted", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	written, err := s.WritePredictions(context.Background(), Produced, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, written)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTrainingDataProduced(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"date", "hour", "temp", "cloud", "gti", "produced_energy"}).
		AddRow(day(2024, 6, 1), 10, 21.5, 30.0, 650.0, 420.0).
		AddRow(day(2024, 6, 1), 11, 22.0, 25.0, 700.0, 480.0)
	mock.ExpectQuery("SELECT p.date, p.hour, w.temp, w.cloud, w.gti, p.produced_energy").
		WithArgs(1).
		WillReturnRows(rows)

	got, err := s.TrainingData(context.Background(), Produced, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Hour)
	require.NotNil(t, got[0].Target)
	assert.Equal(t, 420.0, *got[0].Target)
	assert.Equal(t, Real, got[0].Type)
}

func TestPredictionDataSoldCarriesProducedFeature(t *testing.T) {
	s, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"date", "hour", "produced_energy", "object_id"}).
		AddRow(day(2024, 6, 10), 12, 510.0, 1).
		AddRow(day(2024, 6, 10), 13, nil, 1)
	mock.ExpectQuery("SELECT s.date, s.hour, p.produced_energy, s.object_id").
		WithArgs(1).
		WillReturnRows(rows)

	got, err := s.PredictionData(context.Background(), Sold, 1)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Produced)
	assert.Equal(t, 510.0, *got[0].Produced)
	assert.Nil(t, got[0].Target)
	assert.Nil(t, got[1].Produced)
	assert.Equal(t, Predicted, got[0].Type)
}
