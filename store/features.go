package store

import (
	"context"
	"fmt"
)

const producedTrainingSQL = `
SELECT p.date, p.hour, w.temp, w.cloud, w.gti, p.produced_energy
FROM produced_energy p
JOIN weather w
  ON p.date = w.date AND p.hour = w.hour AND w.type = 'real' AND p.type = 'real'
WHERE p.produced_energy IS NOT NULL
  AND p.object_id = $1
ORDER BY p.date, p.hour`

const soldTrainingSQL = `
SELECT s.date, s.hour, p.produced_energy, s.sold_energy
FROM sold_energy s
JOIN produced_energy p
  ON s.date = p.date AND s.hour = p.hour AND p.type = 'real' AND s.type = 'real'
  AND p.object_id = s.object_id
WHERE s.sold_energy IS NOT NULL
  AND s.object_id = $1
ORDER BY s.date, s.hour`

const producedPredictionSQL = `
SELECT p.date, p.hour, w.temp, w.cloud, w.gti, p.object_id
FROM produced_energy p
JOIN weather w
  ON p.date = w.date AND p.hour = w.hour AND w.type = 'predicted'
WHERE p.produced_energy IS NULL
  AND p.type = 'predicted'
  AND p.object_id = $1
ORDER BY p.date, p.hour`

const soldPredictionSQL = `
SELECT s.date, s.hour, p.produced_energy, s.object_id
FROM sold_energy s
JOIN produced_energy p
  ON s.date = p.date AND s.hour = p.hour AND s.type = 'predicted' AND p.type = 'predicted'
  AND p.object_id = s.object_id
WHERE s.sold_energy IS NULL
  AND s.object_id = $1
ORDER BY s.date, s.hour`

// TrainingData returns the joined rows with a known target for a series:
// production joined against real weather, sales joined against real
// production.
func (s *Store) TrainingData(ctx context.Context, series Series, objectID int) ([]FeatureRow, error) {
	switch series {
	case Produced:
		return s.queryProducedRows(ctx, producedTrainingSQL, objectID, true)
	case Sold:
		return s.querySoldRows(ctx, soldTrainingSQL, objectID, true)
	default:
		return nil, fmt.Errorf("unknown series: %s", series)
	}
}

// PredictionData returns the predicted-type rows whose target is still
// NULL, joined against predicted weather (production) or predicted
// production (sales).
func (s *Store) PredictionData(ctx context.Context, series Series, objectID int) ([]FeatureRow, error) {
	switch series {
	case Produced:
		return s.queryProducedRows(ctx, producedPredictionSQL, objectID, false)
	case Sold:
		return s.querySoldRows(ctx, soldPredictionSQL, objectID, false)
	default:
		return nil, fmt.Errorf("unknown series: %s", series)
	}
}

func (s *Store) queryProducedRows(ctx context.Context, query string, objectID int, training bool) ([]FeatureRow, error) {
	rows, err := s.db.QueryContext(ctx, query, objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query produced rows: %w", err)
	}
	defer rows.Close()

	var result []FeatureRow
	for rows.Next() {
		r := FeatureRow{ObjectID: objectID}
		if training {
			var target float64
			if err := rows.Scan(&r.Date, &r.Hour, &r.Temp, &r.Cloud, &r.Irradiance, &target); err != nil {
				return nil, fmt.Errorf("failed to scan produced training row: %w", err)
			}
			r.Target = &target
			r.Produced = &target
			r.Type = Real
		} else {
			if err := rows.Scan(&r.Date, &r.Hour, &r.Temp, &r.Cloud, &r.Irradiance, &r.ObjectID); err != nil {
				return nil, fmt.Errorf("failed to scan produced prediction row: %w", err)
			}
			r.Type = Predicted
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate produced rows: %w", err)
	}
	return result, nil
}

func (s *Store) querySoldRows(ctx context.Context, query string, objectID int, training bool) ([]FeatureRow, error) {
	rows, err := s.db.QueryContext(ctx, query, objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sold rows: %w", err)
	}
	defer rows.Close()

	var result []FeatureRow
	for rows.Next() {
		r := FeatureRow{ObjectID: objectID}
		if training {
			var produced, target float64
			if err := rows.Scan(&r.Date, &r.Hour, &produced, &target); err != nil {
				return nil, fmt.Errorf("failed to scan sold training row: %w", err)
			}
			r.Produced = &produced
			r.Target = &target
			r.Type = Real
		} else {
			var produced *float64
			if err := rows.Scan(&r.Date, &r.Hour, &produced, &r.ObjectID); err != nil {
				return nil, fmt.Errorf("failed to scan sold prediction row: %w", err)
			}
			r.Produced = produced
			r.Type = Predicted
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sold rows: %w", err)
	}
	return result, nil
}
