package keel

import (
	"errors"
	"io"
	"reflect"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Stopper is the fallback teardown capability for services that do not
// implement io.Closer.
type Stopper interface {
	Stop() error
}

// Registry is a hierarchical service registry: a container resolving
// requested types to lazily created, cached instances. Services enter a
// registry as explicit instances (Add, AddAs) or through provider objects
// whose Create*/Decorate* methods are bound as factories (AddProvider).
//
// Lookup order is fixed: the registry's own descriptors first (at most one
// may match), then nested child registries in the order added, then parent
// registries in the order supplied at construction. A parent's "not found"
// is swallowed and the next parent tried; every other failure propagates.
//
// A Registry is safe for concurrent use. Each descriptor creates its value
// at most once; independent descriptors resolve without blocking each other.
type Registry struct {
	name         string
	parents      []*Registry
	log          *zap.Logger
	interceptors []Interceptor

	mu          sync.Mutex
	idle        sync.Cond
	closed      bool
	active      int
	descriptors []*descriptor
	children    []*Registry
	created     []any
}

// New creates a registry with the given display name. The name appears in
// every error the registry reports. Parents are supplied via WithParents and
// are consulted, in order, after local and nested candidates are exhausted;
// they are referenced, never owned, and Close never touches them.
func New(name string, opts ...Option) *Registry {
	if name == "" {
		name = "service registry"
	}

	r := &Registry{
		name: name,
		log:  zap.NewNop(),
	}
	r.idle.L = &r.mu

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Name returns the registry's display name.
func (r *Registry) Name() string {
	return r.name
}

// =============================================================================
// REGISTRATION
// =============================================================================

// Add registers an explicit instance under its concrete type. The value also
// satisfies requests for every interface it implements.
func (r *Registry) Add(value any) error {
	if value == nil {
		return errInvalidRegistration("cannot add nil service to %s", r.name)
	}

	return r.AddAs(reflect.TypeOf(value), value)
}

// AddAs registers an explicit instance under the given declared type.
func (r *Registry) AddAs(declared reflect.Type, value any) error {
	if declared == nil {
		return errInvalidRegistration("cannot add service without a type to %s", r.name)
	}

	if value == nil {
		return errInvalidRegistration("cannot add nil service to %s", r.name)
	}

	if !reflect.TypeOf(value).AssignableTo(declared) {
		return errInvalidRegistration(
			"cannot add service to %s: %T is not assignable to %s", r.name, value, declared)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errClosed(r.name)
	}

	r.descriptors = append(r.descriptors, instanceDescriptor(r, declared, value))
	// Explicit instances count as created by this node for teardown.
	r.created = append(r.created, value)

	r.log.Debug("service added",
		zap.String("registry", r.name),
		zap.String("type", declared.String()))

	return nil
}

// AddChild attaches a nested registry, searched after local bindings but
// before parents. Nested registries are closed transitively by Close, in the
// order they were added.
func (r *Registry) AddChild(child *Registry) error {
	if child == nil {
		return errInvalidRegistration("cannot nest nil registry in %s", r.name)
	}

	if child == r {
		return errInvalidRegistration("cannot nest %s inside itself", r.name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errClosed(r.name)
	}

	r.children = append(r.children, child)

	r.log.Debug("registry nested",
		zap.String("registry", r.name),
		zap.String("child", child.name))

	return nil
}

// AddProvider introspects the given object once and binds each eligible
// Create*/Decorate* method as a factory or decorator descriptor. The provider
// object has no further identity after binding.
func (r *Registry) AddProvider(provider any) error {
	descs, err := r.bindProvider(provider)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errClosed(r.name)
	}

	r.descriptors = append(r.descriptors, descs...)

	r.log.Debug("provider bound",
		zap.String("registry", r.name),
		zap.String("provider", reflect.TypeOf(provider).String()),
		zap.Int("methods", len(descs)))

	return nil
}

// trackCreated records a value produced by one of this node's descriptors so
// Close can tear it down. Only values that were actually created are tracked.
func (r *Registry) trackCreated(value any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.created = append(r.created, value)
}

// =============================================================================
// LOOKUP
// =============================================================================

// Get resolves a single service of the requested type. See the Registry
// documentation for the search order. Array types and nil types are rejected
// before any candidate is examined.
func (r *Registry) Get(t reflect.Type) (any, error) {
	return r.query(request{typ: t})
}

// GetFactory resolves a service exposing the create capability (a Create
// method with no arguments returning the produced value, optionally with an
// error) whose produced type satisfies the variance bound. The factory
// lookup itself is cached; its products are not.
func (r *Registry) GetFactory(t reflect.Type, variance Variance) (any, error) {
	return r.query(request{typ: t, factory: true, variance: variance})
}

// NewInstance resolves a factory producing exactly the requested type and
// invokes it once. Every call re-invokes the factory; products are never
// cached.
func (r *Registry) NewInstance(t reflect.Type) (any, error) {
	factory, err := r.GetFactory(t, VarianceExact)
	if err != nil {
		return nil, err
	}

	return callCreate(factory)
}

// GetAll resolves every matching candidate: own matches first, then each
// nested registry's, then each parent's, concatenated in that order with no
// de-duplication. It returns an empty slice, never an error, when nothing
// matches anywhere.
func (r *Registry) GetAll(t reflect.Type) ([]any, error) {
	q := request{typ: t}
	if err := q.validate(); err != nil {
		return nil, err
	}

	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()

	value, err := r.observe(q, func() (any, error) {
		res := &resolution{}
		all := []any{}

		if err := r.collectAll(q, res, &all); err != nil {
			return nil, err
		}

		return all, nil
	})
	if err != nil {
		return nil, err
	}

	return value.([]any), nil
}

// query validates the request shape and runs a guarded single-value lookup.
// Admission precedes observation: a closed registry rejects before the
// interceptor chain runs, so interceptors only ever see admitted lookups.
func (r *Registry) query(q request) (any, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()

	return r.observe(q, func() (any, error) {
		return r.lookup(q, &resolution{})
	})
}

// observe wraps an admitted lookup with the interceptor chain and debug
// logging.
func (r *Registry) observe(q request, fn func() (any, error)) (any, error) {
	for _, ic := range r.interceptors {
		if err := ic.BeforeResolve(r.name, q.typ); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	value, err := fn()
	elapsed := time.Since(start)

	for _, ic := range r.interceptors {
		ic.AfterResolve(r.name, q.typ, value, elapsed, err)
	}

	if err != nil {
		r.log.Debug("resolution failed",
			zap.String("registry", r.name),
			zap.Stringer("request", q),
			zap.Error(err))
	} else {
		r.log.Debug("service resolved",
			zap.String("registry", r.name),
			zap.Stringer("request", q),
			zap.Duration("elapsed", elapsed))
	}

	return value, err
}

// lookup implements the single-value search order over this node. Exactly one
// owned candidate may match; otherwise the query escalates to children, then
// parents.
func (r *Registry) lookup(q request, res *resolution) (any, error) {
	descs, children, err := r.contents()
	if err != nil {
		return nil, err
	}

	var matched []*descriptor

	for _, d := range descs {
		if q.matches(d.declared) {
			matched = append(matched, d)
		}
	}

	if len(matched) > 1 {
		sites := make([]string, len(matched))
		for i, d := range matched {
			sites[i] = d.site()
		}

		return nil, errAmbiguous(r.name, q.typ, sites)
	}

	if len(matched) == 1 {
		return matched[0].resolve(res)
	}

	for _, child := range children {
		value, err := child.guardedLookup(q, res)
		if err == nil {
			return value, nil
		}

		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return r.lookupParentList(q, res)
}

// lookupParents searches only the parent chain. Used by decorators, whose
// first argument must come from a parent, never from the decorator's own
// registry.
func (r *Registry) lookupParents(q request, res *resolution) (any, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	return r.lookupParentList(q, res)
}

func (r *Registry) lookupParentList(q request, res *resolution) (any, error) {
	for _, parent := range r.parents {
		value, err := parent.guardedLookup(q, res)
		if err == nil {
			return value, nil
		}

		// A parent that simply does not know the type is not a failure;
		// try the next one. Anything else propagates.
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if q.factory {
		return nil, errFactoryNotFound(r.name, q.typ)
	}

	return nil, errNotFound(r.name, q.typ)
}

// guardedLookup is the entry point for delegated lookups from another node:
// it applies this node's closed check and keeps it open for the duration.
func (r *Registry) guardedLookup(q request, res *resolution) (any, error) {
	if err := r.begin(); err != nil {
		return nil, err
	}
	defer r.end()

	return r.lookup(q, res)
}

// collectAll appends every match at this node, then delegates to children and
// parents in order.
func (r *Registry) collectAll(q request, res *resolution, out *[]any) error {
	descs, children, err := r.contents()
	if err != nil {
		return err
	}

	for _, d := range descs {
		if !q.matches(d.declared) {
			continue
		}

		value, err := d.resolve(res)
		if err != nil {
			return err
		}

		*out = append(*out, value)
	}

	for _, child := range children {
		if err := child.guardedCollectAll(q, res, out); err != nil {
			return err
		}
	}

	for _, parent := range r.parents {
		if err := parent.guardedCollectAll(q, res, out); err != nil {
			return err
		}
	}

	return nil
}

func (r *Registry) guardedCollectAll(q request, res *resolution, out *[]any) error {
	if err := r.begin(); err != nil {
		return err
	}
	defer r.end()

	return r.collectAll(q, res, out)
}

// contents snapshots the descriptor and child lists under the lock.
func (r *Registry) contents() ([]*descriptor, []*Registry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, nil, errClosed(r.name)
	}

	return r.descriptors, r.children, nil
}

// begin admits a lookup unless the registry is closed. Close waits for all
// admitted lookups to finish before tearing anything down.
func (r *Registry) begin() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errClosed(r.name)
	}

	r.active++

	return nil
}

func (r *Registry) end() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active--
	if r.active == 0 {
		r.idle.Broadcast()
	}
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// ServiceInfo describes one bound descriptor for diagnostics.
type ServiceInfo struct {
	Type  string
	Kind  string
	State string
	Site  string

	declared reflect.Type
}

// Services returns diagnostic information for every descriptor owned directly
// by this registry. Nested and parent registries are not included.
func (r *Registry) Services() []ServiceInfo {
	r.mu.Lock()
	descs := r.descriptors
	r.mu.Unlock()

	infos := make([]ServiceInfo, len(descs))
	for i, d := range descs {
		infos[i] = ServiceInfo{
			Type:     typeName(d.declared),
			Kind:     d.kind.String(),
			State:    d.snapshot().String(),
			Site:     d.site(),
			declared: d.declared,
		}
	}

	return infos
}

// Inspect returns diagnostic information for every descriptor owned directly
// by this registry whose declared type satisfies a request for t. Like
// Services, it never resolves anything.
func (r *Registry) Inspect(t reflect.Type) []ServiceInfo {
	q := request{typ: t}
	if err := q.validate(); err != nil {
		return nil
	}

	var infos []ServiceInfo

	for _, info := range r.Services() {
		if q.matches(info.declared) {
			infos = append(infos, info)
		}
	}

	return infos
}

// Has reports whether a request for the given type could find a candidate at
// any level, without resolving anything.
func (r *Registry) Has(t reflect.Type) bool {
	q := request{typ: t}
	if err := q.validate(); err != nil {
		return false
	}

	descs, children, err := r.contents()
	if err != nil {
		return false
	}

	for _, d := range descs {
		if q.matches(d.declared) {
			return true
		}
	}

	for _, child := range children {
		if child.Has(t) {
			return true
		}
	}

	for _, parent := range r.parents {
		if parent.Has(t) {
			return true
		}
	}

	return false
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Close tears the registry down: every instance this node actually created is
// stopped (io.Closer preferred, Stopper as fallback) in reverse creation
// order, then nested registries are closed in the order added, then the node
// becomes inert. Teardown is best-effort: individual failures are aggregated
// and do not suppress subsequent closes. Parents are never touched.
//
// Closing an already-closed registry is a no-op. After Close, every query and
// registration fails with a ClosedRegistry error naming this registry.
func (r *Registry) Close() error {
	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return nil
	}

	r.closed = true

	// Let in-flight lookups drain so a service is not stopped moments after
	// being handed out.
	for r.active > 0 {
		r.idle.Wait()
	}

	created := r.created
	children := r.children
	r.descriptors = nil
	r.created = nil
	r.children = nil
	r.mu.Unlock()

	var err error

	for i := len(created) - 1; i >= 0; i-- {
		err = multierr.Append(err, stopService(created[i]))
	}

	for _, child := range children {
		err = multierr.Append(err, child.Close())
	}

	r.log.Debug("registry closed",
		zap.String("registry", r.name),
		zap.Int("stopped", len(created)),
		zap.Int("children", len(children)),
		zap.Error(err))

	return err
}

// stopService invokes the teardown capability of a created value, if any.
func stopService(value any) error {
	switch v := value.(type) {
	case io.Closer:
		return v.Close()
	case Stopper:
		return v.Stop()
	default:
		return nil
	}
}
