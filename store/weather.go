package store

import (
	"context"
	"fmt"
	"time"
)

const upsertWeatherSQL = `
INSERT INTO weather (date, hour, temp, cloud, gti, type)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (date, hour, type)
DO UPDATE SET
    temp = EXCLUDED.temp,
    cloud = EXCLUDED.cloud,
    gti = EXCLUDED.gti`

// UpsertWeather inserts the records, updating only the numeric fields when a
// row with the same (date, hour, type) key already exists.
func (s *Store) UpsertWeather(ctx context.Context, records []WeatherRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertWeatherSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Date, r.Hour, r.Temp, r.Cloud, r.Irradiance, string(r.Type)); err != nil {
			return fmt.Errorf("failed to upsert weather for %s hour %d: %w",
				r.Date.Format("2006-01-02"), r.Hour, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Printf("Store: upserted %d weather records", len(records))
	return nil
}

// LatestWeatherDate returns the most recent weather date stored for the
// given data type. The second return value is false when no rows exist.
func (s *Store) LatestWeatherDate(ctx context.Context, dataType DataType) (time.Time, bool, error) {
	var date *time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(date) FROM weather WHERE type = $1`, string(dataType),
	).Scan(&date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest weather date: %w", err)
	}
	if date == nil {
		return time.Time{}, false, nil
	}
	return *date, true, nil
}

// LatestEnergyDate returns the most recent date stored for a series and
// data type. The second return value is false when no rows exist.
func (s *Store) LatestEnergyDate(ctx context.Context, series Series, dataType DataType) (time.Time, bool, error) {
	if !series.Valid() {
		return time.Time{}, false, fmt.Errorf("unknown series: %s", series)
	}

	var date *time.Time
	query := fmt.Sprintf(`SELECT MAX(date) FROM %s WHERE type = $1`, series.Table())
	err := s.db.QueryRowContext(ctx, query, string(dataType)).Scan(&date)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query latest %s date: %w", series, err)
	}
	if date == nil {
		return time.Time{}, false, nil
	}
	return *date, true, nil
}

// IsWeatherDayComplete reports whether the date has readings for all 24
// distinct hours with no missing numeric fields.
func (s *Store) IsWeatherDayComplete(ctx context.Context, date time.Time, dataType DataType) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT hour) FROM weather
		 WHERE date = $1 AND type = $2
		   AND temp IS NOT NULL AND cloud IS NOT NULL AND gti IS NOT NULL`,
		date, string(dataType),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query day completeness: %w", err)
	}
	return count == 24, nil
}

// PredictedWeatherSlots returns the distinct (date, hour) pairs for which
// predicted weather exists, ordered by date and hour.
func (s *Store) PredictedWeatherSlots(ctx context.Context) ([]WeatherRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT date, hour FROM weather WHERE type = $1 ORDER BY date, hour`,
		string(Predicted),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query predicted weather slots: %w", err)
	}
	defer rows.Close()

	var slots []WeatherRecord
	for rows.Next() {
		var r WeatherRecord
		if err := rows.Scan(&r.Date, &r.Hour); err != nil {
			return nil, fmt.Errorf("failed to scan weather slot: %w", err)
		}
		r.Type = Predicted
		slots = append(slots, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate weather slots: %w", err)
	}
	return slots, nil
}
