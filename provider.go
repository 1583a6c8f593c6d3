package keel

import (
	"reflect"
	"strings"

	"go.uber.org/multierr"
)

// Provider method naming convention: exported methods prefixed Create are
// factory methods, exported methods prefixed Decorate are decorator methods.
// A Create method whose first parameter type equals its return type is also a
// decorator; the prefix only changes how strictly the shape is checked.
const (
	factoryPrefix   = "Create"
	decoratorPrefix = "Decorate"
)

// bindProvider scans a provider object's methods and produces one descriptor
// per eligible method. Scanning happens exactly once, at AddProvider time;
// parameters are resolved lazily at first lookup, so forward references and
// cross-provider composition work.
func (r *Registry) bindProvider(provider any) ([]*descriptor, error) {
	if provider == nil {
		return nil, errInvalidProvider("cannot bind nil provider to %s", r.name)
	}

	pv := reflect.ValueOf(provider)
	pt := pv.Type()

	var descs []*descriptor

	for i := 0; i < pt.NumMethod(); i++ {
		method := pt.Method(i)

		isFactory := strings.HasPrefix(method.Name, factoryPrefix)
		isDecorator := strings.HasPrefix(method.Name, decoratorPrefix)

		if !isFactory && !isDecorator {
			continue
		}

		d, err := r.bindMethod(pv, method, isDecorator)
		if err != nil {
			return nil, err
		}

		descs = append(descs, d)
	}

	if len(descs) == 0 {
		return nil, errInvalidProvider(
			"provider %s has no factory or decorator methods", pt.String())
	}

	return descs, nil
}

// bindMethod validates one eligible method and builds its descriptor.
// Decorator binding on a parentless registry is a configuration error raised
// here, not deferred to first use.
func (r *Registry) bindMethod(pv reflect.Value, method reflect.Method, decoratePrefixed bool) (*descriptor, error) {
	site := pv.Type().String() + "." + method.Name + "()"
	mt := method.Type

	if mt.IsVariadic() {
		return nil, errInvalidProvider("method %s cannot be variadic", site)
	}

	var (
		returned reflect.Type
		hasError bool
	)

	switch mt.NumOut() {
	case 1:
		returned = mt.Out(0)
	case 2:
		if mt.Out(1) != errorType {
			return nil, errInvalidProvider(
				"method %s must return (value) or (value, error)", site)
		}

		returned = mt.Out(0)
		hasError = true
	default:
		return nil, errInvalidProvider(
			"method %s must return (value) or (value, error)", site)
	}

	if returned == errorType {
		return nil, errInvalidProvider("method %s must return a service value", site)
	}

	// In(0) is the receiver; real parameters start at 1.
	params := make([]reflect.Type, 0, mt.NumIn()-1)
	for i := 1; i < mt.NumIn(); i++ {
		params = append(params, mt.In(i))
	}

	decorator := len(params) > 0 && params[0] == returned

	if decoratePrefixed && !decorator {
		return nil, errInvalidProvider(
			"decorator method %s must take the decorated %s as its first parameter",
			site, typeName(returned))
	}

	kind := kindFactoryMethod
	if decorator {
		if len(r.parents) == 0 {
			return nil, errDecoratorWithoutParent(site)
		}

		kind = kindDecoratorMethod
	}

	return &descriptor{
		owner:    r,
		declared: returned,
		kind:     kind,
		provider: pv,
		method:   method,
		params:   params,
		hasError: hasError,
	}, nil
}

// Registration is the declarative registration surface handed to Configure
// callbacks. It exposes the same primitives as the registry itself and
// collects failures instead of returning them one by one.
type Registration struct {
	registry *Registry
	err      error
}

// Add registers an explicit instance under its concrete type.
func (reg *Registration) Add(value any) {
	reg.err = multierr.Append(reg.err, reg.registry.Add(value))
}

// AddAs registers an explicit instance under the given declared type.
func (reg *Registration) AddAs(declared reflect.Type, value any) {
	reg.err = multierr.Append(reg.err, reg.registry.AddAs(declared, value))
}

// AddProvider binds a provider object's factory and decorator methods.
func (reg *Registration) AddProvider(provider any) {
	reg.err = multierr.Append(reg.err, reg.registry.AddProvider(provider))
}

// Configure runs a registration callback against this registry and reports
// every failure the callback's registrations produced.
func (r *Registry) Configure(fn func(*Registration)) error {
	reg := &Registration{registry: r}
	fn(reg)

	return reg.err
}
