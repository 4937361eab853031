package config

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
)

// Veto inspects a proposed change and returns an error to reject it.
// Vetoes see the raw value; a nil value means the option is being unset.
type Veto func(name string, value any) error

// Bag holds configuration values keyed by option name.
// Thread-safety: all methods are safe for concurrent use.
type Bag struct {
	mu     sync.RWMutex
	values map[string]any
	vetoes []Veto
}

// NewBag creates an empty bag.
func NewBag() *Bag {
	return &Bag{values: make(map[string]any)}
}

// AddVeto registers a veto consulted by every subsequent SetRaw.
func (b *Bag) AddVeto(v Veto) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vetoes = append(b.vetoes, v)
}

// SetRaw stores value under name after all vetoes accept it.
// On rejection the previous value is kept and the veto's error is returned.
func (b *Bag) SetRaw(name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, veto := range b.vetoes {
		if err := veto(name, value); err != nil {
			return err
		}
	}
	if isNil(value) {
		delete(b.values, name)
		return nil
	}
	b.values[name] = value
	return nil
}

// Unset removes name. Vetoes are not consulted.
func (b *Bag) Unset(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, name)
}

// Has reports whether name has an explicit value.
func (b *Bag) Has(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.values[name]
	return ok
}

// Raw returns the explicit value stored under name.
func (b *Bag) Raw(name string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[name]
	return v, ok
}

// Names returns the explicitly set option names in sorted order.
func (b *Bag) Names() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := make([]string, 0, len(b.values))
	for k := range b.values {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}

// Clone copies values and vetoes into a new bag.
func (b *Bag) Clone() *Bag {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := &Bag{
		values: make(map[string]any, len(b.values)),
		vetoes: slices.Clone(b.vetoes),
	}
	for k, v := range b.values {
		out.values[k] = v
	}
	return out
}

// Set stores a typed value for k.
func Set[T any](b *Bag, k Key[T], v T) error {
	return b.SetRaw(k.name, v)
}

// Lookup returns the explicit value for k, if any.
// A stored value of the wrong type is a configuration error.
func Lookup[T any](b *Bag, k Key[T]) (T, bool, error) {
	var zero T
	raw, ok := b.Raw(k.name)
	if !ok {
		return zero, false, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false, &Error{
			Key:     k.name,
			Message: fmt.Sprintf("expected %T, got %T", zero, raw),
		}
	}
	return v, true, nil
}

// Get returns the value for k, falling back to its default.
func Get[T any](b *Bag, k Key[T]) (T, error) {
	v, ok, err := Lookup(b, k)
	if err != nil {
		return v, err
	}
	if !ok {
		return k.def, nil
	}
	return v, nil
}

// Require returns the value for k or a configuration error if it is unset.
// Optional keys fall back to their default like Get.
func Require[T any](b *Bag, k Key[T]) (T, error) {
	v, ok, err := Lookup(b, k)
	if err != nil {
		return v, err
	}
	if !ok {
		if k.required {
			return v, &Error{Key: k.name, Message: "required option is not set"}
		}
		return k.def, nil
	}
	return v, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Chan, reflect.Func, reflect.Map, reflect.Pointer, reflect.Interface, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
