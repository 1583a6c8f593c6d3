package keel

import (
	"reflect"
)

// Factory is the create capability: a service producing new values of T on
// demand. Any registered service whose declared type carries a compatible
// Create method is retrievable through GetFactory and NewInstance instead of
// Get; implementing this interface is the usual way to do that.
type Factory[T any] interface {
	Create() (T, error)
}

// FactoryFunc adapts a function to the Factory capability.
type FactoryFunc[T any] func() (T, error)

// Create implements Factory.
func (f FactoryFunc[T]) Create() (T, error) {
	return f()
}

// factoryAdapter bridges a resolved create-capable instance to Factory[T]
// when the instance produces a subtype of T and therefore does not implement
// Factory[T] directly.
type factoryAdapter[T any] struct {
	instance any
}

// Create implements Factory.
func (a factoryAdapter[T]) Create() (T, error) {
	var zero T

	value, err := callCreate(a.instance)
	if err != nil {
		return zero, err
	}

	typed, ok := value.(T)
	if !ok {
		return zero, newError(CodeTypeMismatch,
			"factory %s produced %T, want %s",
			typeName(reflect.TypeOf(a.instance)), value, typeName(reflect.TypeOf((*(T))(nil)).Elem()))
	}

	return typed, nil
}

// callCreate invokes the create capability of a resolved factory instance.
// Products are returned as produced; they are never cached, and a factory
// error propagates unchanged.
func callCreate(factory any) (any, error) {
	m := reflect.ValueOf(factory).MethodByName("Create")
	out := m.Call(nil)

	if len(out) == 2 {
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, err
		}
	}

	return out[0].Interface(), nil
}
