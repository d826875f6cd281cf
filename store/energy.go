package store

import (
	"context"
	"fmt"
	"time"
)

// ImportRealEnergy inserts real rows for a series, silently skipping any
// row whose (date, hour, type, object_id) key already exists. It returns
// the number of rows actually inserted, which makes repeated imports of
// the same file idempotent.
func (s *Store) ImportRealEnergy(ctx context.Context, series Series, rows []EnergyRecord) (int, error) {
	if !series.Valid() {
		return 0, fmt.Errorf("unknown series: %s", series)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (date, hour, %s, type, object_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (date, hour, type, object_id) DO NOTHING`,
		series.Table(), series.Column())

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, r := range rows {
		res, err := stmt.ExecContext(ctx, r.Date, r.Hour, r.Value, string(Real), r.ObjectID)
		if err != nil {
			return 0, fmt.Errorf("failed to insert %s row for %s hour %d: %w",
				series, r.Date.Format("2006-01-02"), r.Hour, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	skipped := len(rows) - inserted
	s.logger.Printf("Store: imported %d %s rows (%d duplicates skipped)", inserted, series, skipped)
	return inserted, nil
}

// ResetPredictedWindow clears all predicted produced and sold rows from the
// cutoff date forward and reseeds one empty predicted row per predicted
// weather slot, in a single transaction. If any step fails the window is
// rolled back untouched.
func (s *Store) ResetPredictedWindow(ctx context.Context, from time.Time, objectID int) error {
	slots, err := s.PredictedWeatherSlots(ctx)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, series := range []Series{Produced, Sold} {
		query := fmt.Sprintf(`DELETE FROM %s WHERE type = $1 AND date >= $2`, series.Table())
		if _, err := tx.ExecContext(ctx, query, string(Predicted), from); err != nil {
			return fmt.Errorf("failed to clear predicted %s rows: %w", series, err)
		}

		insert := fmt.Sprintf(`
			INSERT INTO %s (date, hour, %s, type, object_id)
			VALUES ($1, $2, NULL, $3, $4)
			ON CONFLICT (date, hour, type, object_id) DO NOTHING`,
			series.Table(), series.Column())

		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return fmt.Errorf("failed to prepare seed statement: %w", err)
		}

		for _, slot := range slots {
			if _, err := stmt.ExecContext(ctx, slot.Date, slot.Hour, string(Predicted), objectID); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to seed predicted %s row for %s hour %d: %w",
					series, slot.Date.Format("2006-01-02"), slot.Hour, err)
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Printf("Store: reset predicted window from %s (%d slots per series)",
		from.Format("2006-01-02"), len(slots))
	return nil
}

// WritePredictions updates the value of predicted rows by their natural
// key. Rows with a nil Target are skipped; stored non-null values are only
// ever touched through this explicit write-back.
func (s *Store) WritePredictions(ctx context.Context, series Series, rows []FeatureRow) (int, error) {
	if !series.Valid() {
		return 0, fmt.Errorf("unknown series: %s", series)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		UPDATE %s SET %s = $1
		WHERE date = $2 AND hour = $3 AND type = $4 AND object_id = $5 AND %s IS NULL`,
		series.Table(), series.Column(), series.Column())

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, r := range rows {
		if r.Target == nil {
			continue
		}
		res, err := stmt.ExecContext(ctx, *r.Target, r.Date, r.Hour, string(r.Type), r.ObjectID)
		if err != nil {
			return 0, fmt.Errorf("failed to write prediction for %s hour %d: %w",
				r.Date.Format("2006-01-02"), r.Hour, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			written += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Printf("Store: wrote %d %s predictions", written, series)
	return written, nil
}

// PredictedEnergy returns every predicted row of a series that already
// holds a value, ordered by date and hour. Feeds the report pivot.
func (s *Store) PredictedEnergy(ctx context.Context, series Series, objectID int) ([]EnergyRecord, error) {
	if !series.Valid() {
		return nil, fmt.Errorf("unknown series: %s", series)
	}

	query := fmt.Sprintf(`
		SELECT date, hour, %s FROM %s
		WHERE %s IS NOT NULL AND type = $1 AND object_id = $2
		ORDER BY date, hour`,
		series.Column(), series.Table(), series.Column())

	rows, err := s.db.QueryContext(ctx, query, string(Predicted), objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query predicted %s: %w", series, err)
	}
	defer rows.Close()

	var records []EnergyRecord
	for rows.Next() {
		r := EnergyRecord{Type: Predicted, ObjectID: objectID}
		if err := rows.Scan(&r.Date, &r.Hour, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", series, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", series, err)
	}
	return records, nil
}

// EnergyForDate returns the non-null hourly values of a series for one
// date, ordered by hour. Used by the comparison views.
func (s *Store) EnergyForDate(ctx context.Context, series Series, date time.Time, dataType DataType, objectID int) ([]EnergyRecord, error) {
	if !series.Valid() {
		return nil, fmt.Errorf("unknown series: %s", series)
	}

	query := fmt.Sprintf(`
		SELECT date, hour, %s FROM %s
		WHERE %s IS NOT NULL AND date = $1 AND type = $2 AND object_id = $3
		ORDER BY hour`,
		series.Column(), series.Table(), series.Column())

	rows, err := s.db.QueryContext(ctx, query, date, string(dataType), objectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s for date: %w", series, err)
	}
	defer rows.Close()

	var records []EnergyRecord
	for rows.Next() {
		r := EnergyRecord{Type: dataType, ObjectID: objectID}
		if err := rows.Scan(&r.Date, &r.Hour, &r.Value); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", series, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", series, err)
	}
	return records, nil
}
