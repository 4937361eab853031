package config

// Key is a typed configuration option.
type Key[T any] struct {
	name        string
	description string
	def         T
	required    bool
}

// NewKey creates an optional key whose default is the zero value of T.
func NewKey[T any](name, description string) Key[T] {
	return Key[T]{name: name, description: description}
}

// NewKeyWithDefault creates an optional key with an explicit default.
func NewKeyWithDefault[T any](name, description string, def T) Key[T] {
	return Key[T]{name: name, description: description, def: def}
}

// NewRequiredKey creates a key that must be set before use.
func NewRequiredKey[T any](name, description string) Key[T] {
	return Key[T]{name: name, description: description, required: true}
}

func (k Key[T]) Name() string        { return k.name }
func (k Key[T]) Description() string { return k.description }
func (k Key[T]) Default() T          { return k.def }
func (k Key[T]) Required() bool      { return k.required }
