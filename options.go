package keel

import "go.uber.org/zap"

// Option configures a registry at construction time.
type Option func(*Registry)

// WithParents supplies the parent registries consulted, in order, after local
// and nested candidates are exhausted. Parents are referenced, never owned:
// closing this registry never closes a parent.
func WithParents(parents ...*Registry) Option {
	return func(r *Registry) {
		r.parents = append(r.parents, parents...)
	}
}

// WithLogger attaches a logger for debug-level registration, resolution and
// lifecycle events. The default is a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(r *Registry) {
		if log != nil {
			r.log = log
		}
	}
}

// WithInterceptors installs interceptors consulted on every top-level lookup,
// in the order given.
func WithInterceptors(interceptors ...Interceptor) Option {
	return func(r *Registry) {
		r.interceptors = append(r.interceptors, interceptors...)
	}
}

// WithMetrics installs a metrics collector as an interceptor.
func WithMetrics(m *Metrics) Option {
	return WithInterceptors(m)
}
