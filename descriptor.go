package keel

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// descriptorKind identifies the creation strategy of a descriptor.
type descriptorKind int

const (
	kindInstance descriptorKind = iota
	kindFactoryMethod
	kindDecoratorMethod
)

// String returns the string representation of a descriptorKind.
func (k descriptorKind) String() string {
	switch k {
	case kindInstance:
		return "instance"
	case kindFactoryMethod:
		return "factory"
	case kindDecoratorMethod:
		return "decorator"
	default:
		return "unknown"
	}
}

// descriptorState is the lifecycle of a single resolvable unit.
type descriptorState int

const (
	stateUnresolved descriptorState = iota
	stateResolving
	stateResolved
	stateFailed
)

// String returns the string representation of a descriptorState.
func (s descriptorState) String() string {
	switch s {
	case stateUnresolved:
		return "unresolved"
	case stateResolving:
		return "resolving"
	case stateResolved:
		return "resolved"
	case stateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// descriptor is one resolvable unit: an explicit instance or a bound
// factory/decorator method with a single cached outcome. The mutex makes
// first creation exclusive across goroutines; cycle detection is handled by
// the resolution chain and the wait-for graph, not the lock, so legitimate
// re-entrant lookups during creation never self-deadlock and opposing
// concurrent resolutions of a genuine cycle fail instead of blocking forever.
type descriptor struct {
	owner    *Registry
	declared reflect.Type
	kind     descriptorKind

	// Method-backed descriptors only.
	provider reflect.Value
	method   reflect.Method
	params   []reflect.Type
	hasError bool

	mu    sync.Mutex
	state descriptorState
	value any
	err   error

	// Guarded by waitGraph, not mu.
	holder *resolution
}

// instanceDescriptor wraps an explicitly added value. It is born resolved.
func instanceDescriptor(owner *Registry, declared reflect.Type, value any) *descriptor {
	return &descriptor{
		owner:    owner,
		declared: declared,
		kind:     kindInstance,
		state:    stateResolved,
		value:    value,
	}
}

// site names the descriptor's origin for error messages.
func (d *descriptor) site() string {
	if d.kind == kindInstance {
		return fmt.Sprintf("instance of %s", typeName(d.declared))
	}

	return fmt.Sprintf("%s.%s()", typeName(d.provider.Type()), d.method.Name)
}

// snapshot returns the current state without blocking on an in-flight
// creation.
func (d *descriptor) snapshot() descriptorState {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.state
}

// resolve returns the descriptor's value, creating it on first use. A
// resolved descriptor always returns the identical cached value; a failed one
// re-reports the identical error. Concurrent first access serializes on the
// descriptor mutex, so the creation strategy runs at most once.
func (d *descriptor) resolve(res *resolution) (any, error) {
	// Revisiting a descriptor already on the current resolution chain is a
	// dependency cycle. Checked before taking the lock: the revisit happens
	// on the goroutine that already holds it.
	if res.contains(d) {
		return nil, errCycle(d.site())
	}

	// Cycles entered from opposite ends by concurrent resolutions never
	// revisit their own chain; they meet in the wait-for graph instead.
	if err := d.claim(res); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.acquired(res)

	defer d.mu.Unlock()
	defer d.release()

	switch d.state {
	case stateResolved:
		return d.value, nil
	case stateFailed:
		return nil, d.err
	}

	d.state = stateResolving
	res.push(d)
	defer res.pop()

	value, err := d.create(res)
	if err != nil {
		d.state = stateFailed
		d.err = err

		return nil, err
	}

	d.state = stateResolved
	d.value = value
	d.owner.trackCreated(value)

	return value, nil
}

// create runs the creation strategy: resolve each parameter, then invoke the
// bound method.
func (d *descriptor) create(res *resolution) (any, error) {
	args := make([]reflect.Value, 0, len(d.params)+1)
	args = append(args, d.provider)

	for i, param := range d.params {
		arg, err := d.resolveParam(i, param, res)
		if err != nil {
			return nil, err
		}

		args = append(args, arg)
	}

	return d.invoke(args)
}

// resolveParam produces the argument for one method parameter.
func (d *descriptor) resolveParam(i int, param reflect.Type, res *resolution) (reflect.Value, error) {
	// A registry-typed parameter receives the owning registry itself. The
	// registry is not a resolvable service of its own type.
	if param == registryType {
		return reflect.ValueOf(d.owner), nil
	}

	var (
		value any
		err   error
	)

	decorated := d.kind == kindDecoratorMethod && i == 0

	if decorated {
		// The decorated value comes from the parent chain, never from the
		// registry that owns the decorator.
		value, err = d.owner.lookupParents(request{typ: param}, res)
	} else {
		value, err = d.owner.lookup(request{typ: param}, res)
	}

	if err != nil {
		if errors.Is(err, ErrNotFound) {
			if produced, ok := factoryFuncType(param); ok && !decorated {
				return d.resolveFactoryParam(param, produced, res)
			}

			return reflect.Value{}, errMissingDependency(d.declared, d.site(), param)
		}

		return reflect.Value{}, err
	}

	rv := reflect.ValueOf(value)
	if !rv.IsValid() {
		rv = reflect.Zero(param)
	}

	return rv, nil
}

// resolveFactoryParam satisfies a func() (X, error) parameter with a
// covariant factory lookup: any factory-capable service producing X or a
// subtype of X serves. The factory lookup is resolved once; every call of the
// injected function creates a fresh value.
func (d *descriptor) resolveFactoryParam(param, produced reflect.Type, res *resolution) (reflect.Value, error) {
	instance, err := d.owner.lookup(request{typ: produced, factory: true, variance: VarianceCovariant}, res)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reflect.Value{}, errMissingDependency(d.declared, d.site(), param)
		}

		return reflect.Value{}, err
	}

	return reflect.MakeFunc(param, func([]reflect.Value) []reflect.Value {
		out := reflect.New(produced).Elem()
		errOut := reflect.Zero(errorType)

		value, err := callCreate(instance)
		if err != nil {
			errOut = reflect.ValueOf(err)
		} else {
			out.Set(reflect.ValueOf(value))
		}

		return []reflect.Value{out, errOut}
	}), nil
}

// invoke calls the bound method and applies the failure taxonomy: an error
// return or a panic becomes CreationFailed, and so does a nil result.
func (d *descriptor) invoke(args []reflect.Value) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = errCreationFailed(d.site(), fmt.Errorf("panic: %v", r))
		}
	}()

	out := d.method.Func.Call(args)

	if d.hasError {
		if ferr, _ := out[1].Interface().(error); ferr != nil {
			return nil, errCreationFailed(d.site(), ferr)
		}
	}

	result := out[0]
	if isNilValue(result) {
		return nil, errCreationReturnedNil(d.site())
	}

	return result.Interface(), nil
}

// isNilValue reports whether a method result is an absent value.
func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}

// waitGraph serializes the bookkeeping of which resolution holds which
// descriptor and which descriptor it is blocked on. Claims are serialized, so
// the resolution whose wait completes a loop always observes it.
var waitGraph sync.Mutex

// claim records that res is about to block on d. If d's holder is itself
// blocked, directly or transitively, on a descriptor held by res, the wait
// would deadlock; it surfaces as a cycle instead.
func (d *descriptor) claim(res *resolution) error {
	waitGraph.Lock()
	defer waitGraph.Unlock()

	var seen []*resolution

	for wd := d; wd != nil; {
		holder := wd.holder
		if holder == nil {
			break
		}

		if holder == res {
			return errCycle(d.site())
		}

		for _, s := range seen {
			if s == holder {
				// Blocking behind an already-deadlocked loop would never
				// return either.
				return errCycle(d.site())
			}
		}

		seen = append(seen, holder)
		wd = holder.waitingOn
	}

	res.waitingOn = d

	return nil
}

func (d *descriptor) acquired(res *resolution) {
	waitGraph.Lock()
	res.waitingOn = nil
	d.holder = res
	waitGraph.Unlock()
}

func (d *descriptor) release() {
	waitGraph.Lock()
	d.holder = nil
	waitGraph.Unlock()
}

// resolution tracks the chain of descriptors being created by one lookup.
// The chain may span registries: a child's factory parameter can escalate to
// a parent whose own factory loops back down.
type resolution struct {
	chain []*descriptor

	// Guarded by waitGraph: the descriptor this resolution is blocked on.
	waitingOn *descriptor
}

func (r *resolution) contains(d *descriptor) bool {
	for _, entry := range r.chain {
		if entry == d {
			return true
		}
	}

	return false
}

func (r *resolution) push(d *descriptor) {
	r.chain = append(r.chain, d)
}

func (r *resolution) pop() {
	r.chain = r.chain[:len(r.chain)-1]
}

var registryType = reflect.TypeOf((*Registry)(nil))
