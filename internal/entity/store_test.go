package entity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/attrflow/internal/bus"
	"github.com/roach88/attrflow/internal/ir"
)

var (
	cpu    = ir.NewSensor("cpu", ir.KindInt)
	label  = ir.NewSensor("label", ir.KindString)
	counts = ir.NewSensor("counts", ir.KindMap)
)

func newTestEntity(t *testing.T, opts ...Option) *Entity {
	t.Helper()
	b := bus.New(bus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(b.Close)
	return New(b, append([]Option{WithID("e1")}, opts...)...)
}

type collector struct {
	mu     sync.Mutex
	events []bus.Event
}

func (c *collector) OnEvent(_ context.Context, ev bus.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *collector) values() []ir.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ir.Value, 0, len(c.events))
	for _, ev := range c.events {
		out = append(out, ev.Value)
	}
	return out
}

func waitIdle(t *testing.T, e *Entity) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Bus().WaitIdle(ctx))
}

func TestStore_GetAbsent(t *testing.T) {
	e := newTestEntity(t)

	v, ok := e.Attributes().Get(cpu)
	assert.False(t, ok)
	assert.Nil(t, v)
	assert.Zero(t, e.Attributes().Seq(cpu))
}

func TestStore_SetReturnsPrevious(t *testing.T) {
	e := newTestEntity(t)
	s := e.Attributes()

	prev, err := s.Set(cpu, ir.Int(1))
	require.NoError(t, err)
	assert.Nil(t, prev, "first write has no previous value")

	prev, err = s.Set(cpu, ir.Int(2))
	require.NoError(t, err)
	assert.Equal(t, ir.Int(1), prev)

	v, ok := s.Get(cpu)
	require.True(t, ok)
	assert.Equal(t, ir.Int(2), v)
	assert.Equal(t, int64(2), s.Seq(cpu))
}

func TestStore_SetNilStoresNull(t *testing.T) {
	e := newTestEntity(t)

	_, err := e.Attributes().Set(cpu, nil)
	require.NoError(t, err)

	v, ok := e.Attributes().Get(cpu)
	assert.True(t, ok, "null is a value, not absence")
	assert.Equal(t, ir.Null{}, v)
}

func TestStore_SetPublishes(t *testing.T) {
	e := newTestEntity(t)
	rec := &collector{}
	_, err := e.Bus().Subscribe(e, cpu, rec)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := e.Attributes().Set(cpu, ir.Int(i))
		require.NoError(t, err)
	}
	waitIdle(t, e)

	assert.Equal(t, []ir.Value{ir.Int(1), ir.Int(2), ir.Int(3)}, rec.values())
	assert.Equal(t, 3.0, testutil.ToFloat64(e.Metrics().SensorWrites.WithLabelValues("e1", "cpu")))
}

func TestStore_SetRejections(t *testing.T) {
	e := newTestEntity(t)

	_, err := e.Attributes().Set(counts, ir.Map{"a": ir.Int(1)})
	assert.ErrorIs(t, err, ErrCompositeSensor)

	_, err = e.Attributes().Set(cpu, ir.String("high"))
	var tm *TypeMismatchError
	require.ErrorAs(t, err, &tm)
	assert.Equal(t, ir.KindString, tm.Got)

	_, ok := e.Attributes().Get(cpu)
	assert.False(t, ok, "rejected write leaves sensor unset")
}

func TestStore_SuppressDuplicatesFor(t *testing.T) {
	e := newTestEntity(t)
	s := e.Attributes()

	res, err := s.SetWith(label, ir.String("x"), SuppressDuplicatesFor("sub-1"))
	require.NoError(t, err)
	assert.True(t, res.Written)

	res, err = s.SetWith(label, ir.String("x"), SuppressDuplicatesFor("sub-1"))
	require.NoError(t, err)
	assert.False(t, res.Written, "same value from same subscriber is suppressed")
	assert.Equal(t, ir.String("x"), res.Previous)

	res, err = s.SetWith(label, ir.String("x"), SuppressDuplicatesFor("sub-2"))
	require.NoError(t, err)
	assert.True(t, res.Written, "cache is per subscriber")

	res, err = s.SetWith(label, ir.String("x"))
	require.NoError(t, err)
	assert.True(t, res.Written, "no option, no suppression")

	s.ForgetSubscriber("sub-1")
	res, err = s.SetWith(label, ir.String("x"), SuppressDuplicatesFor("sub-1"))
	require.NoError(t, err)
	assert.True(t, res.Written, "forgotten subscriber starts fresh")

	assert.Equal(t, int64(4), s.Seq(label))
}

func TestStore_WrittenByRecordsWithoutSuppressing(t *testing.T) {
	e := newTestEntity(t)
	s := e.Attributes()

	_, err := s.SetWith(label, ir.String("x"), SuppressDuplicatesFor("sub-1"))
	require.NoError(t, err)

	res, err := s.SetWith(label, ir.String("y"), WrittenBy("sub-1"))
	require.NoError(t, err)
	assert.True(t, res.Written)

	res, err = s.SetWith(label, ir.String("y"), WrittenBy("sub-1"))
	require.NoError(t, err)
	assert.True(t, res.Written, "WrittenBy never suppresses")

	res, err = s.SetWith(label, ir.String("x"), SuppressDuplicatesFor("sub-1"))
	require.NoError(t, err)
	assert.True(t, res.Written, "last value recorded for sub-1 is y")

	res, err = s.SetWith(label, ir.String("x"), SuppressDuplicatesFor("sub-1"))
	require.NoError(t, err)
	assert.False(t, res.Written)
}

func TestStore_UpdateNoWrite(t *testing.T) {
	e := newTestEntity(t)
	rec := &collector{}
	_, err := e.Bus().Subscribe(e, counts, rec)
	require.NoError(t, err)

	v, err := e.Attributes().Update(counts, func(current ir.Value, present bool) (ir.Value, bool) {
		assert.False(t, present)
		return nil, false
	})
	require.NoError(t, err)
	assert.Nil(t, v)
	waitIdle(t, e)

	assert.Empty(t, rec.values())
	_, ok := e.Attributes().Get(counts)
	assert.False(t, ok)
}

func TestStore_UpdateTypeMismatch(t *testing.T) {
	e := newTestEntity(t)

	_, err := e.Attributes().Update(counts, func(ir.Value, bool) (ir.Value, bool) {
		return ir.Int(1), true
	})
	var tm *TypeMismatchError
	assert.ErrorAs(t, err, &tm)
}

func TestStore_ConcurrentUpdatesOnDisjointKeys(t *testing.T) {
	e := newTestEntity(t)
	s := e.Attributes()

	const writers, n = 8, 200
	var g errgroup.Group
	for w := 0; w < writers; w++ {
		key := string(rune('a' + w))
		g.Go(func() error {
			for i := 1; i <= n; i++ {
				_, err := s.Update(counts, func(current ir.Value, _ bool) (ir.Value, bool) {
					m, _ := current.(ir.Map)
					return m.With(key, ir.Int(i)), true
				})
				if err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	v, ok := s.Get(counts)
	require.True(t, ok)
	m := v.(ir.Map)
	require.Len(t, m, writers)
	for key, got := range m {
		assert.Equal(t, ir.Int(n), got, "key %s lost an update", key)
	}
	assert.Equal(t, int64(writers*n), s.Seq(counts))
}

func TestStore_ObserveSeesConsistentSeq(t *testing.T) {
	e := newTestEntity(t)
	_, err := e.Attributes().Set(cpu, ir.Int(5))
	require.NoError(t, err)

	e.Observe(cpu, func(current ir.Value, seq int64, present bool) {
		assert.True(t, present)
		assert.Equal(t, ir.Int(5), current)
		assert.Equal(t, int64(1), seq)
	})
}

func TestStore_Snapshot(t *testing.T) {
	e := newTestEntity(t)
	s := e.Attributes()

	_, err := s.Set(cpu, ir.Int(3))
	require.NoError(t, err)
	_, err = s.Set(label, ir.String("web"))
	require.NoError(t, err)
	_, ok := s.Get(ir.NewSensor("never", ir.KindInt))
	require.False(t, ok)
	e.Observe(ir.NewSensor("observed", ir.KindInt), func(ir.Value, int64, bool) {})

	assert.Equal(t, ir.Map{"cpu": ir.Int(3), "label": ir.String("web")}, s.Snapshot())
	assert.Equal(t, []ir.Sensor{cpu, label}, s.Sensors())
}

func TestStore_WriteAfterDestroy(t *testing.T) {
	e := newTestEntity(t)
	_, err := e.Attributes().Set(cpu, ir.Int(1))
	require.NoError(t, err)

	e.Destroy()

	_, err = e.Attributes().Set(cpu, ir.Int(2))
	assert.True(t, IsEntityDestroyed(err))

	_, err = e.Attributes().Update(counts, func(ir.Value, bool) (ir.Value, bool) {
		return ir.Map{}, true
	})
	var de *EntityDestroyedError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "e1", de.EntityID)
	assert.Equal(t, counts, de.Sensor)

	v, _ := e.Attributes().Get(cpu)
	assert.Equal(t, ir.Int(1), v, "reads still work after destroy")
}
