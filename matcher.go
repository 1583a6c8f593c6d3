package keel

import (
	"reflect"
)

// Variance describes the bound a factory's produced type must satisfy for a
// factory request.
type Variance int

const (
	// VarianceExact requires the produced type to be identical to the
	// requested type.
	VarianceExact Variance = iota

	// VarianceCovariant accepts a factory producing the requested type or
	// any type assignable to it ("factory of something extending T").
	VarianceCovariant

	// VarianceContravariant accepts a factory producing the requested type
	// or any type it is assignable to ("factory of something T extends").
	VarianceContravariant
)

// String returns the string representation of a Variance.
func (v Variance) String() string {
	switch v {
	case VarianceExact:
		return "exact"
	case VarianceCovariant:
		return "covariant"
	case VarianceContravariant:
		return "contravariant"
	default:
		return "unknown"
	}
}

// request is the internal form of a service lookup: either a plain type
// request or a "factory producing typ" request with a variance bound.
type request struct {
	typ      reflect.Type
	factory  bool
	variance Variance
}

// validate rejects request shapes that can never be resolved, independent of
// registry contents.
func (q request) validate() error {
	if q.typ == nil {
		if q.factory {
			return errInvalidRequest("factory request without a produced type")
		}

		return errInvalidRequest("nil type")
	}

	if q.typ.Kind() == reflect.Array {
		return errInvalidRequest("array type " + q.typ.String())
	}

	return nil
}

// String renders the request for diagnostics.
func (q request) String() string {
	if q.factory {
		return "factory of " + typeName(q.typ)
	}

	return typeName(q.typ)
}

// matches reports whether a candidate's declared type satisfies this request.
// Plain requests match by assignability: the declared type itself, any
// interface it implements, and the empty interface all satisfy. Factory
// requests match only declared types with the create capability whose
// produced type satisfies the variance bound.
func (q request) matches(declared reflect.Type) bool {
	if q.factory {
		produced, ok := producedType(declared)
		if !ok {
			return false
		}

		switch q.variance {
		case VarianceExact:
			return produced == q.typ
		case VarianceCovariant:
			return produced.AssignableTo(q.typ)
		case VarianceContravariant:
			return q.typ.AssignableTo(produced)
		default:
			return false
		}
	}

	return declared.AssignableTo(q.typ)
}

// producedType reports whether t carries the single-method create capability
// and, if so, the type it produces. The capability is a Create method taking
// no arguments and returning either (X) or (X, error).
func producedType(t reflect.Type) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}

	m, ok := t.MethodByName("Create")
	if !ok {
		return nil, false
	}

	mt := m.Type

	// Methods looked up on concrete types carry the receiver as In(0);
	// interface method sets do not.
	in := mt.NumIn()
	if t.Kind() != reflect.Interface {
		in--
	}

	if in != 0 {
		return nil, false
	}

	switch mt.NumOut() {
	case 1:
		if mt.Out(0) == errorType {
			return nil, false
		}

		return mt.Out(0), true
	case 2:
		if mt.Out(1) != errorType || mt.Out(0) == errorType {
			return nil, false
		}

		return mt.Out(0), true
	default:
		return nil, false
	}
}

// factoryFuncType reports whether t is the functional form of the create
// capability, func() (X, error), and the type it produces. Provider method
// parameters of this shape that no registered service satisfies directly are
// injected by covariant factory lookup.
func factoryFuncType(t reflect.Type) (reflect.Type, bool) {
	if t == nil || t.Kind() != reflect.Func || t.IsVariadic() {
		return nil, false
	}

	if t.NumIn() != 0 || t.NumOut() != 2 {
		return nil, false
	}

	if t.Out(1) != errorType || t.Out(0) == errorType {
		return nil, false
	}

	return t.Out(0), true
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()
