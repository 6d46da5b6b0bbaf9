package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"energywatch/internal/metrics"
	"energywatch/internal/models"
)

// Store archives fetched telemetry in MySQL. It records raw daily readings
// and flagged anomaly days for later inspection; nothing in the request
// path depends on it and all writes are best-effort.
type Store struct {
	conn *sql.DB
}

// New opens the archive database and initializes the schema.
// dsn format: "username:password@tcp(host:port)/dbname?parseTime=true"
func New(dsn string) (*Store, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// initSchema creates the necessary tables
func (s *Store) initSchema() error {
	// MySQL doesn't support multiple statements in one Exec, so we need to split them
	statements := []string{
		`CREATE TABLE IF NOT EXISTS readings (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			sensor_id VARCHAR(255) NOT NULL,
			day DATE NOT NULL,
			kwh DOUBLE NOT NULL,
			fetched_at DATETIME(6) NOT NULL,
			UNIQUE KEY uq_readings_sensor_day (sensor_id, day)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

		`CREATE TABLE IF NOT EXISTS anomaly_days (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			sensor_id VARCHAR(255) NOT NULL,
			day DATE NOT NULL,
			kwh DOUBLE NOT NULL,
			deviation DOUBLE NOT NULL,
			reason TEXT NOT NULL,
			detected_at DATETIME(6) NOT NULL,
			INDEX idx_anomaly_days_day (day),
			INDEX idx_anomaly_days_sensor (sensor_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}

	for _, stmt := range statements {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

// SaveReadings upserts a batch of normalized daily readings.
func (s *Store) SaveReadings(ctx context.Context, sensorID string, readings []models.DailyReading) error {
	if len(readings) == 0 {
		return nil
	}

	query := `INSERT INTO readings (sensor_id, day, kwh, fetched_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE kwh = VALUES(kwh), fetched_at = VALUES(fetched_at)`

	now := time.Now()
	for _, r := range readings {
		_, err := s.conn.ExecContext(ctx, query, sensorID, r.Date.Format(models.DateLayout), r.ConsumptionKwh, now)
		metrics.RecordDBQuery("INSERT", "readings", err)
		if err != nil {
			return fmt.Errorf("failed to store reading for %s: %w", models.DateKey(r.Date), err)
		}
	}

	return nil
}

// SaveAnomalies records the flagged days of an analytics run.
func (s *Store) SaveAnomalies(ctx context.Context, sensorID string, results []models.AnalyticsResult) error {
	query := `INSERT INTO anomaly_days (sensor_id, day, kwh, deviation, reason, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	now := time.Now()
	for _, r := range results {
		if !r.IsAnomaly {
			continue
		}
		deviation := 0.0
		if r.DeviationFromAverage != nil {
			deviation = *r.DeviationFromAverage
		}
		_, err := s.conn.ExecContext(ctx, query, sensorID, r.Date.Format(models.DateLayout),
			r.KwhConsumption, deviation, r.AnomalyReason, now)
		metrics.RecordDBQuery("INSERT", "anomaly_days", err)
		if err != nil {
			return fmt.Errorf("failed to store anomaly for %s: %w", models.DateKey(r.Date), err)
		}
	}

	return nil
}

// GetReadings returns archived readings for a sensor and range, oldest
// first.
func (s *Store) GetReadings(ctx context.Context, sensorID string, from, to time.Time) ([]models.DailyReading, error) {
	query := `SELECT day, kwh FROM readings WHERE sensor_id = ? AND day BETWEEN ? AND ? ORDER BY day ASC`

	rows, err := s.conn.QueryContext(ctx, query, sensorID,
		from.Format(models.DateLayout), to.Format(models.DateLayout))
	metrics.RecordDBQuery("SELECT", "readings", err)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []models.DailyReading
	for rows.Next() {
		var r models.DailyReading
		if err := rows.Scan(&r.Date, &r.ConsumptionKwh); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		readings = append(readings, r)
	}

	return readings, rows.Err()
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}
