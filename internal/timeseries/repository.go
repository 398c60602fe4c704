package timeseries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/homecore/internal/infrastructure/database"
)

// ErrSensorIDRequired is returned when a repository call has no sensor id.
var ErrSensorIDRequired = errors.New("timeseries: sensor id is required")

// Repository persists series snapshots.
type Repository interface {
	Save(ctx context.Context, sensorID string, samples []Sample, last map[string]float64) error
	Load(ctx context.Context, sensorID string) ([]Sample, map[string]float64, error)
}

// SQLiteRepository implements Repository using the sensor_samples and
// sensor_last_readings tables. Sensor ids are "Room.Device".
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite series repository.
//
// Parameters:
//   - db: Open SQLite connection with migrations applied
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save replaces everything stored for a sensor in one transaction.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - sensorID: Sensor identifier ("Room.Device")
//   - samples: Full series content, as returned by Series.Samples
//   - last: Last raw cumulative readings, as returned by Series.LastReadings
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteRepository) Save(ctx context.Context, sensorID string, samples []Sample, last map[string]float64) error {
	if sensorID == "" {
		return ErrSensorIDRequired
	}

	return database.InTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sensor_samples WHERE sensor = ?", sensorID); err != nil {
			return fmt.Errorf("clearing samples: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM sensor_last_readings WHERE sensor = ?", sensorID); err != nil {
			return fmt.Errorf("clearing last readings: %w", err)
		}

		insertSample, err := tx.PrepareContext(ctx,
			"INSERT INTO sensor_samples (sensor, ts, subname, value) VALUES (?, ?, ?, ?)")
		if err != nil {
			return fmt.Errorf("preparing sample insert: %w", err)
		}
		defer insertSample.Close()

		for _, s := range samples {
			if _, err := insertSample.ExecContext(ctx, sensorID, s.Time.UnixMilli(), s.SubName, s.Value); err != nil {
				return fmt.Errorf("inserting sample %s@%d: %w", s.SubName, s.Time.UnixMilli(), err)
			}
		}

		for subName, value := range last {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO sensor_last_readings (sensor, subname, value) VALUES (?, ?, ?)",
				sensorID, subName, value)
			if err != nil {
				return fmt.Errorf("inserting last reading %s: %w", subName, err)
			}
		}
		return nil
	})
}

// Load returns the stored samples (oldest first) and last readings of a sensor.
// An unknown sensor yields empty results, not an error.
func (r *SQLiteRepository) Load(ctx context.Context, sensorID string) ([]Sample, map[string]float64, error) {
	if sensorID == "" {
		return nil, nil, ErrSensorIDRequired
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT ts, subname, value FROM sensor_samples
		 WHERE sensor = ?
		 ORDER BY ts, subname`,
		sensorID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("querying samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var ts int64
		var s Sample
		if err := rows.Scan(&ts, &s.SubName, &s.Value); err != nil {
			return nil, nil, fmt.Errorf("scanning sample: %w", err)
		}
		s.Time = time.UnixMilli(ts)
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating samples: %w", err)
	}

	lastRows, err := r.db.QueryContext(ctx,
		"SELECT subname, value FROM sensor_last_readings WHERE sensor = ?", sensorID)
	if err != nil {
		return nil, nil, fmt.Errorf("querying last readings: %w", err)
	}
	defer lastRows.Close()

	last := make(map[string]float64)
	for lastRows.Next() {
		var subName string
		var value float64
		if err := lastRows.Scan(&subName, &value); err != nil {
			return nil, nil, fmt.Errorf("scanning last reading: %w", err)
		}
		last[subName] = value
	}
	if err := lastRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterating last readings: %w", err)
	}

	return samples, last, nil
}
