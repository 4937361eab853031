package entity

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/ir"
)

// slot holds one sensor's state.
// All fields are guarded by mu, which is also held while publishing.
type slot struct {
	mu      sync.Mutex
	value   ir.Value
	present bool
	seq     int64

	// lastBy caches, per subscriber, the last value that subscriber wrote
	// with duplicate suppression enabled.
	lastBy map[string]ir.Value
}

// AttributeStore is the typed key-value store owned by an entity.
//
// Thread-safety: all methods are safe for concurrent use. Writes to one
// (entity, sensor) pair are serialized; writes to different sensors proceed
// in parallel.
type AttributeStore struct {
	owner *Entity

	mu    sync.Mutex
	slots map[ir.Sensor]*slot
}

func newAttributeStore(owner *Entity) *AttributeStore {
	return &AttributeStore{
		owner: owner,
		slots: make(map[ir.Sensor]*slot),
	}
}

func (s *AttributeStore) slot(sensor ir.Sensor) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[sensor]
	if !ok {
		sl = &slot{}
		s.slots[sensor] = sl
	}
	return sl
}

// peek returns the slot without creating it.
func (s *AttributeStore) peek(sensor ir.Sensor) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[sensor]
}

// Get returns the current value of sensor. The boolean is false if the
// sensor has never been set.
func (s *AttributeStore) Get(sensor ir.Sensor) (ir.Value, bool) {
	sl := s.peek(sensor)
	if sl == nil {
		return nil, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.value, sl.present
}

// Seq returns the publish sequence number of the sensor's current value,
// or 0 if it has never been set.
func (s *AttributeStore) Seq(sensor ir.Sensor) int64 {
	sl := s.peek(sensor)
	if sl == nil {
		return 0
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.seq
}

// WriteOption configures SetWith.
type WriteOption func(*writeOptions)

type writeOptions struct {
	writer   string
	suppress bool
}

// WrittenBy records value as the last value subscriberID wrote to the
// sensor, without suppressing anything.
func WrittenBy(subscriberID string) WriteOption {
	return func(o *writeOptions) {
		o.writer = subscriberID
	}
}

// SuppressDuplicatesFor skips the write if value equals the last value
// recorded for subscriberID by SuppressDuplicatesFor or WrittenBy.
func SuppressDuplicatesFor(subscriberID string) WriteOption {
	return func(o *writeOptions) {
		o.writer = subscriberID
		o.suppress = true
	}
}

// WriteResult describes the outcome of SetWith.
type WriteResult struct {
	// Previous is the value before the write, nil if the sensor was unset.
	Previous ir.Value

	// Written is false when the write was suppressed as a duplicate.
	Written bool
}

// Set stores value and publishes it. It returns the previous value, or nil if
// the sensor had never been set. A nil value is stored as ir.Null.
func (s *AttributeStore) Set(sensor ir.Sensor, value ir.Value) (ir.Value, error) {
	res, err := s.SetWith(sensor, value)
	return res.Previous, err
}

// SetWith is Set with write options.
func (s *AttributeStore) SetWith(sensor ir.Sensor, value ir.Value, opts ...WriteOption) (WriteResult, error) {
	if sensor.IsComposite() {
		return WriteResult{}, ErrCompositeSensor
	}
	if value == nil {
		value = ir.Null{}
	}
	if !sensor.Accepts(value) {
		return WriteResult{}, &TypeMismatchError{Sensor: sensor, Got: ir.KindOf(value)}
	}

	var o writeOptions
	for _, opt := range opts {
		opt(&o)
	}

	sl := s.slot(sensor)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if s.owner.Destroyed() {
		return WriteResult{}, &EntityDestroyedError{EntityID: s.owner.id, Sensor: sensor}
	}

	prev := sl.value
	if o.writer != "" {
		if last, ok := sl.lastBy[o.writer]; o.suppress && ok && ir.Equal(last, value) {
			return WriteResult{Previous: prev}, nil
		}
		if sl.lastBy == nil {
			sl.lastBy = make(map[string]ir.Value)
		}
		sl.lastBy[o.writer] = value
	}

	s.commit(sensor, sl, value)
	return WriteResult{Previous: prev, Written: true}, nil
}

// UpdateFunc computes the next value of a sensor from its current value.
// present is false if the sensor has never been set. Returning write=false
// leaves the sensor untouched and publishes nothing.
//
// The function runs with the slot mutex held: it must be short and must not
// write to the same sensor.
type UpdateFunc func(current ir.Value, present bool) (next ir.Value, write bool)

// Update atomically applies fn to the sensor's current value.
// It is the only way to change a map sensor. It returns the sensor's value
// after the call, whether or not fn chose to write.
func (s *AttributeStore) Update(sensor ir.Sensor, fn UpdateFunc) (ir.Value, error) {
	sl := s.slot(sensor)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if s.owner.Destroyed() {
		return nil, &EntityDestroyedError{EntityID: s.owner.id, Sensor: sensor}
	}

	next, write := fn(sl.value, sl.present)
	if !write {
		return sl.value, nil
	}
	if next == nil {
		next = ir.Null{}
	}
	if !sensor.Accepts(next) {
		return sl.value, &TypeMismatchError{Sensor: sensor, Got: ir.KindOf(next)}
	}

	s.commit(sensor, sl, next)
	return next, nil
}

// commit stores value and publishes it. sl.mu must be held.
func (s *AttributeStore) commit(sensor ir.Sensor, sl *slot, value ir.Value) {
	sl.value = value
	sl.present = true
	sl.seq++

	e := s.owner
	e.metrics.SensorWrites.WithLabelValues(e.id, sensor.Name).Inc()
	e.bus.Publish(bus.Event{
		Producer: e.id,
		Sensor:   sensor,
		Value:    value,
		Seq:      sl.seq,
	})
}

// Observe runs fn with the sensor's current value while holding the slot
// mutex, so no write can slip in between the read and whatever fn does.
func (s *AttributeStore) Observe(sensor ir.Sensor, fn func(current ir.Value, seq int64, present bool)) {
	sl := s.slot(sensor)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fn(sl.value, sl.seq, sl.present)
}

// ForgetSubscriber drops the duplicate-suppression cache of subscriberID
// on every sensor.
func (s *AttributeStore) ForgetSubscriber(subscriberID string) {
	s.mu.Lock()
	all := slices.Collect(maps.Values(s.slots))
	s.mu.Unlock()

	for _, sl := range all {
		sl.mu.Lock()
		delete(sl.lastBy, subscriberID)
		sl.mu.Unlock()
	}
}

// Sensors returns every sensor that has been set, sorted by name.
func (s *AttributeStore) Sensors() []ir.Sensor {
	s.mu.Lock()
	candidates := make([]ir.Sensor, 0, len(s.slots))
	for sensor := range s.slots {
		candidates = append(candidates, sensor)
	}
	s.mu.Unlock()

	var out []ir.Sensor
	for _, sensor := range candidates {
		if _, ok := s.Get(sensor); ok {
			out = append(out, sensor)
		}
	}
	slices.SortFunc(out, func(a, b ir.Sensor) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(string(a.Type), string(b.Type))
	})
	return out
}

// Snapshot returns the current value of every set sensor, keyed by sensor
// name. Each value is read atomically; the snapshot as a whole is not.
func (s *AttributeStore) Snapshot() ir.Map {
	out := make(ir.Map)
	for _, sensor := range s.Sensors() {
		if v, ok := s.Get(sensor); ok {
			out[sensor.Name] = v
		}
	}
	return out
}
