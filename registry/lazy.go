package registry

import (
	"sync"

	"github.com/corvus-rt/corvus/corvuserr"
)

var errNotAssignable = corvuserr.InvalidProperties("prototype service does not implement the requested type")

// Lazy wraps a typed reference that is resolved on first access and cached.
type Lazy[T any] struct {
	reg      *Registry
	consumer int64
	ref      Reference

	once  sync.Once
	value T
	err   error
}

// NewLazy creates a lazy accessor for ref on behalf of consumer.
func NewLazy[T any](reg *Registry, consumer int64, ref Reference) *Lazy[T] {
	return &Lazy[T]{reg: reg, consumer: consumer, ref: ref}
}

// Get resolves and caches the reference. Subsequent calls return the cached
// value or error.
func (l *Lazy[T]) Get() (T, error) {
	l.once.Do(func() {
		l.value, l.err = GetTyped[T](l.reg, l.consumer, l.ref)
	})
	return l.value, l.err
}

// MustGet resolves the reference, panicking on error.
func (l *Lazy[T]) MustGet() T {
	v, err := l.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// Provider produces a fresh prototype-factory instance on every call.
type Provider[T any] struct {
	reg      *Registry
	consumer int64
	ref      Reference
}

// NewProvider creates a provider of fresh T instances from a
// prototype-factory reference.
func NewProvider[T any](reg *Registry, consumer int64, ref Reference) *Provider[T] {
	return &Provider[T]{reg: reg, consumer: consumer, ref: ref}
}

// Provide produces a new handle whose Service is asserted to T. The caller
// is responsible for calling handle.Unget when done.
func (p *Provider[T]) Provide() (T, *PrototypeHandle, error) {
	var zero T
	h, err := p.reg.GetPrototype(p.consumer, p.ref)
	if err != nil {
		return zero, nil, err
	}
	v, ok := h.Service.(T)
	if !ok {
		h.Unget()
		return zero, nil, errNotAssignable
	}
	return v, h, nil
}
