// Package registry implements the persistent catalog of nodes and sensors,
// backed by Postgres via database/sql and lib/pq. Every write is validated in
// two phases: first the field shape (type, range, name-starts-with-letter) is
// checked and reported as gwerr.ErrInvalidField, only then is the row
// inserted, so a unique-constraint violation at that point can be reported
// unambiguously as gwerr.ErrConflict.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"unicode"

	"github.com/lib/pq"

	"github.com/spillwave/sensorgateway/internal/gwerr"
	"github.com/spillwave/sensorgateway/internal/units"
)

// Node is a field device record.
type Node struct {
	ID       uint8
	Name     string
	Location string
}

// Sensor is a sensor record owned by exactly one Node.
type Sensor struct {
	ID       uint8
	NodeID   uint8
	Name     string
	Quantity units.Quantity
}

const schema = `
CREATE TABLE IF NOT EXISTS "Nodes" (
	"ID" integer PRIMARY KEY CHECK ("ID" BETWEEN 0 AND 254),
	"Name" text UNIQUE NOT NULL,
	"Location" text
);

CREATE TABLE IF NOT EXISTS "Sensors" (
	"ID" integer PRIMARY KEY CHECK ("ID" BETWEEN 0 AND 254),
	"Node_ID" integer NOT NULL REFERENCES "Nodes"("ID"),
	"Name" text UNIQUE NOT NULL,
	"Quantity" text NOT NULL
);
`

// Store owns the registry's connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to dbURL and ensures the registry schema exists.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("registry: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func validIDAndName(id int, name string, recordType string) error {
	if id < 0 || id > 254 {
		return fmt.Errorf("%w: %s ID must be in range 0-254 (0x00-0xfe)", gwerr.ErrInvalidField, recordType)
	}
	if name == "" {
		return fmt.Errorf("%w: %s name must be a non-empty string beginning with a letter", gwerr.ErrInvalidField, recordType)
	}
	r := []rune(name)[0]
	if !unicode.IsLetter(r) {
		return fmt.Errorf("%w: %s name must begin with a letter", gwerr.ErrInvalidField, recordType)
	}
	return nil
}

// AddNode validates and inserts a new node.
func (s *Store) AddNode(ctx context.Context, id uint8, name, location string) error {
	if err := validIDAndName(int(id), name, "node"); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO "Nodes" ("ID", "Name", "Location") VALUES ($1, $2, $3)`,
		id, name, location)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: node ID and name must be unique", gwerr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("registry: add node: %w", err)
	}
	return nil
}

// AddSensor validates and inserts a new sensor. The owning node must already
// exist.
func (s *Store) AddSensor(ctx context.Context, id, nodeID uint8, name string, quantity string) error {
	if err := validIDAndName(int(id), name, "sensor"); err != nil {
		return err
	}
	q, err := units.Parse(quantity)
	if err != nil {
		return fmt.Errorf("%w: %v", gwerr.ErrInvalidField, err)
	}
	exists, err := s.nodeExists(ctx, nodeID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: node with id %d (0x%02x) must already exist", gwerr.ErrConflict, nodeID, nodeID)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO "Sensors" ("ID", "Node_ID", "Name", "Quantity") VALUES ($1, $2, $3, $4)`,
		id, nodeID, name, string(q))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: sensor ID and name must be unique", gwerr.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("registry: add sensor: %w", err)
	}
	return nil
}

func (s *Store) nodeExists(ctx context.Context, id uint8) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM "Nodes" WHERE "ID" = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("registry: node exists: %w", err)
	}
	return exists, nil
}

// ListNodeIDs returns all registered node ids.
func (s *Store) ListNodeIDs(ctx context.Context) ([]uint8, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT "ID" FROM "Nodes" ORDER BY "ID"`)
	if err != nil {
		return nil, fmt.Errorf("registry: list nodes: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// ListSensorIDs returns all registered sensor ids.
func (s *Store) ListSensorIDs(ctx context.Context) ([]uint8, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT "ID" FROM "Sensors" ORDER BY "ID"`)
	if err != nil {
		return nil, fmt.Errorf("registry: list sensors: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]uint8, error) {
	var ids []uint8
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("registry: scan id: %w", err)
		}
		ids = append(ids, uint8(id))
	}
	return ids, rows.Err()
}

// GetNode returns the node record for id, or gwerr.ErrNotFound.
func (s *Store) GetNode(ctx context.Context, id uint8) (*Node, error) {
	n := &Node{}
	var idInt int
	err := s.db.QueryRowContext(ctx,
		`SELECT "ID", "Name", "Location" FROM "Nodes" WHERE "ID" = $1`, id).
		Scan(&idInt, &n.Name, &n.Location)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: node id 0x%02x not found", gwerr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get node: %w", err)
	}
	n.ID = uint8(idInt)
	return n, nil
}

// GetSensor returns the sensor record for id, or gwerr.ErrNotFound.
func (s *Store) GetSensor(ctx context.Context, id uint8) (*Sensor, error) {
	sn := &Sensor{}
	var idInt, nodeIDInt int
	var quantity string
	err := s.db.QueryRowContext(ctx,
		`SELECT "ID", "Node_ID", "Name", "Quantity" FROM "Sensors" WHERE "ID" = $1`, id).
		Scan(&idInt, &nodeIDInt, &sn.Name, &quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sensor id 0x%02x not found", gwerr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get sensor: %w", err)
	}
	sn.ID = uint8(idInt)
	sn.NodeID = uint8(nodeIDInt)
	sn.Quantity = units.Quantity(quantity)
	return sn, nil
}

// SensorsOfNode returns the ids of all sensors owned by node id, or
// gwerr.ErrNotFound if the node does not exist.
func (s *Store) SensorsOfNode(ctx context.Context, id uint8) ([]uint8, error) {
	if _, err := s.GetNode(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT "ID" FROM "Sensors" WHERE "Node_ID" = $1 ORDER BY "ID"`, id)
	if err != nil {
		return nil, fmt.Errorf("registry: sensors of node: %w", err)
	}
	defer rows.Close()
	return scanIDs(rows)
}

// unique_violation, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const pqUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
