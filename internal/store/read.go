package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/attrflow/internal/ir"
)

// EventRecord is one journaled sensor event.
type EventRecord struct {
	JournalSeq int64     `json:"journal_seq"`
	ID         string    `json:"id"`
	EntityID   string    `json:"entity_id"`
	EntityName string    `json:"entity"`
	Sensor     ir.Sensor `json:"sensor"`
	Seq        int64     `json:"seq"`
	Value      ir.Value  `json:"value"`
}

// EntityRecord is a registered entity.
type EntityRecord struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id,omitempty"`
}

// Filter narrows ReadEvents. Zero fields match everything.
type Filter struct {
	// Entity matches either the entity ID or its registered name.
	Entity string

	// Sensor matches the sensor name.
	Sensor string

	// After skips events at or before this journal position.
	After int64

	// Limit caps the number of records; 0 means no limit.
	Limit int
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if f.Entity != "" {
		clauses = append(clauses, "(e.entity_id = ? OR n.name = ?)")
		args = append(args, f.Entity, f.Entity)
	}
	if f.Sensor != "" {
		clauses = append(clauses, "e.sensor = ?")
		args = append(args, f.Sensor)
	}
	if f.After > 0 {
		clauses = append(clauses, "e.journal_seq > ?")
		args = append(args, f.After)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// ReadEvents returns journaled events in append order.
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, f Filter) ([]EventRecord, error) {
	where, args := f.where()
	query := `
		SELECT e.journal_seq, e.id, e.entity_id, COALESCE(n.name, e.entity_id),
		       e.sensor, e.sensor_type, e.seq, e.value
		FROM sensor_events e
		LEFT JOIN entities n ON n.id = e.entity_id
		` + where + `
		ORDER BY e.journal_seq ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// CountEvents returns the number of journaled events matching f.
// Limit is ignored.
func (s *Store) CountEvents(ctx context.Context, f Filter) (int, error) {
	where, args := f.where()
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM sensor_events e
		LEFT JOIN entities n ON n.id = e.entity_id
		`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

// LatestValues returns the most recent event of every sensor of an entity
// (matched by ID or name), ordered by sensor name.
func (s *Store) LatestValues(ctx context.Context, entity string) ([]EventRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.journal_seq, e.id, e.entity_id, COALESCE(n.name, e.entity_id),
		       e.sensor, e.sensor_type, e.seq, e.value
		FROM sensor_events e
		LEFT JOIN entities n ON n.id = e.entity_id
		WHERE (e.entity_id = ? OR n.name = ?)
		  AND e.seq = (
			SELECT MAX(x.seq) FROM sensor_events x
			WHERE x.entity_id = e.entity_id
			  AND x.sensor = e.sensor
			  AND x.sensor_type = e.sensor_type
		  )
		ORDER BY e.sensor COLLATE BINARY ASC, e.sensor_type ASC
	`, entity, entity)
	if err != nil {
		return nil, fmt.Errorf("query latest values: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Entities returns all registered entities ordered by name.
func (s *Store) Entities(ctx context.Context) ([]EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(parent_id, '')
		FROM entities
		ORDER BY name COLLATE BINARY ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	out := []EntityRecord{}
	for rows.Next() {
		var r EntityRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.ParentID); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return out, nil
}

func scanEvents(rows *sql.Rows) ([]EventRecord, error) {
	out := []EventRecord{}
	for rows.Next() {
		var (
			r          EventRecord
			sensorType string
			valueJSON  string
		)
		if err := rows.Scan(&r.JournalSeq, &r.ID, &r.EntityID, &r.EntityName,
			&r.Sensor.Name, &sensorType, &r.Seq, &valueJSON); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		r.Sensor.Type = ir.Kind(sensorType)

		v, err := unmarshalValue(valueJSON)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", r.ID, err)
		}
		r.Value = v
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
