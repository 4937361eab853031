package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/attrflow/internal/bus"
)

type fakeEnricher struct {
	id        string
	initErr   error
	inits     int
	destroys  int
	initOwner *Entity
}

func (f *fakeEnricher) ID() string { return f.id }

func (f *fakeEnricher) Init(e *Entity) error {
	f.inits++
	f.initOwner = e
	return f.initErr
}

func (f *fakeEnricher) Destroy() { f.destroys++ }

func TestEntity_IDFromGenerator(t *testing.T) {
	b := bus.New(bus.WithIDGenerator(bus.NewFixedGenerator("ent-1")))
	t.Cleanup(b.Close)

	e := New(b, WithName("web"))
	assert.Equal(t, "ent-1", e.ID())
	assert.Equal(t, "web", e.Name())
	assert.Same(t, b, e.Bus())
}

func TestEntity_NameDefaultsToID(t *testing.T) {
	e := newTestEntity(t)
	assert.Equal(t, "e1", e.Name())
}

func TestEntity_Ownership(t *testing.T) {
	app := newTestEntity(t)
	web := New(app.Bus(), WithID("web"), WithParent(app))
	db := New(app.Bus(), WithID("db"), WithParent(app))

	assert.Nil(t, app.Parent())
	assert.Same(t, app, web.Parent())
	assert.Equal(t, []*Entity{web, db}, app.Children())

	web.Destroy()
	assert.Equal(t, []*Entity{db}, app.Children())

	app.Destroy()
	assert.True(t, db.Destroyed(), "destroying a parent destroys its children")
}

func TestEntity_EnricherLifecycle(t *testing.T) {
	e := newTestEntity(t)
	en := &fakeEnricher{id: "en-1"}

	require.NoError(t, e.AddEnricher(en))
	assert.Equal(t, 1, en.inits)
	assert.Same(t, e, en.initOwner)
	assert.Len(t, e.Enrichers(), 1)

	assert.True(t, e.RemoveEnricher(en))
	assert.Equal(t, 1, en.destroys)
	assert.Empty(t, e.Enrichers())

	assert.False(t, e.RemoveEnricher(en), "second remove is a no-op")
	assert.Equal(t, 1, en.destroys)
}

func TestEntity_AddEnricherInitFailure(t *testing.T) {
	e := newTestEntity(t)
	en := &fakeEnricher{id: "bad", initErr: errors.New("missing source")}

	err := e.AddEnricher(en)
	assert.EqualError(t, err, "missing source")
	assert.Empty(t, e.Enrichers())
}

func TestEntity_DestroyTearsDownEnrichers(t *testing.T) {
	e := newTestEntity(t)
	a := &fakeEnricher{id: "a"}
	b := &fakeEnricher{id: "b"}
	require.NoError(t, e.AddEnricher(a))
	require.NoError(t, e.AddEnricher(b))

	e.Destroy()
	e.Destroy()

	assert.True(t, e.Destroyed())
	assert.Equal(t, 1, a.destroys)
	assert.Equal(t, 1, b.destroys)
	assert.Empty(t, e.Enrichers())

	err := e.AddEnricher(&fakeEnricher{id: "late"})
	assert.True(t, IsEntityDestroyed(err))
}
