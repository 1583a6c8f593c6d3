package keel

import (
	"fmt"
	"reflect"
)

// Get resolves a single service of type T.
//
// Example:
//
//	cache, err := keel.Get[*Cache](registry)
func Get[T any](r *Registry) (T, error) {
	var zero T

	value, err := r.Get(reflect.TypeOf((*(T))(nil)).Elem())
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, newError(CodeTypeMismatch,
			"service resolved to %T, want %s", value, typeName(reflect.TypeOf((*(T))(nil)).Elem()))
	}

	return typed, nil
}

// MustGet resolves a single service of type T or panics. Use only during
// startup wiring.
func MustGet[T any](r *Registry) T {
	value, err := Get[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to resolve %s: %v", typeName(reflect.TypeOf((*(T))(nil)).Elem()), err))
	}

	return value
}

// GetAll resolves every candidate matching T across this registry, its
// nested registries and its parents, in search order. An empty result is not
// an error.
func GetAll[T any](r *Registry) ([]T, error) {
	values, err := r.GetAll(reflect.TypeOf((*(T))(nil)).Elem())
	if err != nil {
		return nil, err
	}

	typed := make([]T, 0, len(values))

	for _, value := range values {
		t, ok := value.(T)
		if !ok {
			return nil, newError(CodeTypeMismatch,
				"service resolved to %T, want %s", value, typeName(reflect.TypeOf((*(T))(nil)).Elem()))
		}

		typed = append(typed, t)
	}

	return typed, nil
}

// GetFactory resolves a factory producing exactly T.
func GetFactory[T any](r *Registry) (Factory[T], error) {
	return factoryFor[T](r, VarianceExact)
}

// GetFactoryExtending resolves a factory producing T or any type assignable
// to it, adapted to Factory[T].
func GetFactoryExtending[T any](r *Registry) (Factory[T], error) {
	return factoryFor[T](r, VarianceCovariant)
}

func factoryFor[T any](r *Registry, variance Variance) (Factory[T], error) {
	instance, err := r.GetFactory(reflect.TypeOf((*(T))(nil)).Elem(), variance)
	if err != nil {
		return nil, err
	}

	if factory, ok := instance.(Factory[T]); ok {
		return factory, nil
	}

	return factoryAdapter[T]{instance: instance}, nil
}

// NewInstance resolves a factory producing exactly T and invokes it. Each
// call creates a fresh value; only the factory lookup itself is cached.
func NewInstance[T any](r *Registry) (T, error) {
	var zero T

	value, err := r.NewInstance(reflect.TypeOf((*(T))(nil)).Elem())
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, newError(CodeTypeMismatch,
			"factory produced %T, want %s", value, typeName(reflect.TypeOf((*(T))(nil)).Elem()))
	}

	return typed, nil
}

// MustNewInstance resolves and invokes a factory for T or panics.
func MustNewInstance[T any](r *Registry) T {
	value, err := NewInstance[T](r)
	if err != nil {
		panic(fmt.Sprintf("failed to create %s: %v", typeName(reflect.TypeOf((*(T))(nil)).Elem()), err))
	}

	return value
}

// Add registers an explicit instance under the declared type T rather than
// its concrete type, the typed counterpart of Registry.AddAs.
//
// Example:
//
//	err := keel.Add[io.Writer](registry, buf)
func Add[T any](r *Registry, value T) error {
	return r.AddAs(reflect.TypeOf((*(T))(nil)).Elem(), value)
}

// Has reports whether a request for T could find a candidate at any level.
func Has[T any](r *Registry) bool {
	return r.Has(reflect.TypeOf((*(T))(nil)).Elem())
}
