package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/ir"
)

// Record appends a published event to the journal.
// Uses ON CONFLICT DO NOTHING for idempotency - an event already recorded
// (same entity, sensor and seq) is silently ignored.
func (s *Store) Record(ctx context.Context, ev bus.Event) error {
	valueJSON, err := marshalValue(ev.Value)
	if err != nil {
		return fmt.Errorf("record %s/%s#%d: %w", ev.Producer, ev.Sensor.Name, ev.Seq, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sensor_events
		(id, entity_id, sensor, sensor_type, seq, value)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		ir.EventID(ev.Producer, ev.Sensor, ev.Seq),
		ev.Producer,
		ev.Sensor.Name,
		string(ev.Sensor.Type),
		ev.Seq,
		valueJSON,
	)
	if err != nil {
		return fmt.Errorf("record %s/%s#%d: %w", ev.Producer, ev.Sensor.Name, ev.Seq, err)
	}

	return nil
}

// RegisterEntity records an entity's display name and parent so traces can
// be queried by name. Re-registering an ID updates its name and parent.
func (s *Store) RegisterEntity(ctx context.Context, id, name, parentID string) error {
	parent := sql.NullString{String: parentID, Valid: parentID != ""}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (id, name, parent_id)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, parent_id = excluded.parent_id
	`, id, name, parent)
	if err != nil {
		return fmt.Errorf("register entity %s: %w", id, err)
	}

	return nil
}
