package registry

import (
	"github.com/corvus-rt/corvus/corvuserr"
	"github.com/corvus-rt/corvus/filter"
)

// ServiceKey names an interface spec with the Go type a consumer expects
// back from it, so Get/Find call sites don't need a type assertion at every
// use.
type ServiceKey[T any] struct {
	spec string
}

// NewServiceKey creates a typed key for the interface named spec.
func NewServiceKey[T any](spec string) ServiceKey[T] {
	return ServiceKey[T]{spec: spec}
}

// Spec returns the interface name this key resolves against.
func (k ServiceKey[T]) Spec() string { return k.spec }

// GetTyped resolves ref on behalf of consumer and asserts the result to T.
func GetTyped[T any](r *Registry, consumer int64, ref Reference) (T, error) {
	var zero T
	svc, err := r.Get(consumer, ref)
	if err != nil {
		return zero, err
	}
	v, ok := svc.(T)
	if !ok {
		return zero, corvuserr.InvalidProperties("service does not implement the requested type")
	}
	return v, nil
}

// FindOneTyped locates the highest-ranked active reference for key's spec
// under an additional filter (nil for none) and resolves it to T.
func FindOneTyped[T any](r *Registry, consumer int64, key ServiceKey[T], f *filter.Filter) (T, Reference, error) {
	var zero T
	ref, ok := r.FindOne(key.spec, f)
	if !ok {
		return zero, Reference{}, corvuserr.InvalidReference(0)
	}
	v, err := GetTyped[T](r, consumer, ref)
	return v, ref, err
}
