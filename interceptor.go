package keel

import (
	"reflect"
	"time"
)

// Interceptor hooks into top-level lookups (Get, GetAll, GetFactory,
// NewInstance). Interceptors can be used for metrics, tracing, access policy
// or testing. They run in the order installed; delegated lookups triggered by
// dependency injection do not re-enter the chain, and lookups rejected by a
// closed registry or by request validation never reach it.
type Interceptor interface {
	// BeforeResolve is called before the lookup runs. Returning an error
	// aborts the lookup with that error.
	BeforeResolve(registry string, t reflect.Type) error

	// AfterResolve is called after the lookup, whether it succeeded or not.
	AfterResolve(registry string, t reflect.Type, value any, elapsed time.Duration, err error)
}

// InterceptorFuncs adapts plain functions to the Interceptor interface.
// Either field may be nil.
type InterceptorFuncs struct {
	OnBefore func(registry string, t reflect.Type) error
	OnAfter  func(registry string, t reflect.Type, value any, elapsed time.Duration, err error)
}

// BeforeResolve implements Interceptor.
func (f InterceptorFuncs) BeforeResolve(registry string, t reflect.Type) error {
	if f.OnBefore == nil {
		return nil
	}

	return f.OnBefore(registry, t)
}

// AfterResolve implements Interceptor.
func (f InterceptorFuncs) AfterResolve(registry string, t reflect.Type, value any, elapsed time.Duration, err error) {
	if f.OnAfter != nil {
		f.OnAfter(registry, t, value, elapsed, err)
	}
}
