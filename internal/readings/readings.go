// Package readings implements append-only persistence of sensor readings and
// node events. No foreign-key enforcement is required between
// SensorReading.sensor_id and Sensor.id: the ingestion pipeline intentionally
// persists readings from sensors not yet registered, since the registry is
// edited out-of-band from the radio stream.
package readings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/spillwave/sensorgateway/internal/frame"
	"github.com/spillwave/sensorgateway/internal/gwerr"
)

const schema = `
CREATE TABLE IF NOT EXISTS "Sensor Readings" (
	"ID" bigserial PRIMARY KEY,
	"Timestamp_UTC" timestamptz NOT NULL,
	"Sensor_ID" integer NOT NULL,
	"Reading" double precision NOT NULL
);

CREATE TABLE IF NOT EXISTS "Events" (
	"ID" bigserial PRIMARY KEY,
	"Timestamp_UTC" timestamptz NOT NULL,
	"Node_ID" integer NOT NULL REFERENCES "Nodes"("ID"),
	"Event_Code" integer NOT NULL
);
`

// Store owns the reading/event connection pool. It shares the same Postgres
// database as the registry but keeps its own *sql.DB.
type Store struct {
	db *sql.DB
}

// Open connects to dbURL and ensures the readings schema exists. The Nodes
// table referenced by Events' foreign key must already exist (created by
// registry.Open) before this runs against a fresh database.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("readings: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("readings: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("readings: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WriteReadings inserts one row per (sensor_id, value) pair in a single
// transaction. Slots with frame.PadSensorID must already be filtered by the
// caller; this function does not filter them itself so it can be reused for
// already-curated data.
func (s *Store) WriteReadings(ctx context.Context, ts time.Time, readings []frame.SensorSlot) error {
	if len(readings) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", gwerr.ErrStorageError, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO "Sensor Readings" ("Timestamp_UTC", "Sensor_ID", "Reading") VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", gwerr.ErrStorageError, err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, ts, r.ID, float64(r.Value)); err != nil {
			return fmt.Errorf("%w: insert reading: %v", gwerr.ErrStorageError, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", gwerr.ErrStorageError, err)
	}
	return nil
}

// WriteEvents inserts one row per event code in a single transaction.
func (s *Store) WriteEvents(ctx context.Context, ts time.Time, nodeID uint8, eventCodes []uint8) error {
	if len(eventCodes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", gwerr.ErrStorageError, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO "Events" ("Timestamp_UTC", "Node_ID", "Event_Code") VALUES ($1, $2, $3)`)
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", gwerr.ErrStorageError, err)
	}
	defer stmt.Close()

	for _, code := range eventCodes {
		if _, err := stmt.ExecContext(ctx, ts, nodeID, code); err != nil {
			return fmt.Errorf("%w: insert event: %v", gwerr.ErrStorageError, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", gwerr.ErrStorageError, err)
	}
	return nil
}
