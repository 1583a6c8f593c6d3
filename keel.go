// Package keel is a hierarchical, type-keyed service registry: the
// composition root of a larger tool, resolving requested capabilities to
// lazily created, cached instances without a hand-wired singleton graph.
//
// Services enter a registry two ways: as explicit instances, or through
// provider objects whose Create*/Decorate* methods are introspected once at
// bind time and become injected factories. A registered value satisfies
// requests for its concrete type and for every interface it implements.
//
//	registry := keel.New("build services")
//	_ = registry.Add(&Cache{})
//	_ = registry.AddProvider(&CompilerServices{})
//
//	compiler, err := keel.Get[*Compiler](registry)
//
// Registries compose into trees: nested registries (AddChild) are searched
// after local bindings, parents (WithParents) after that. Decorator methods
// wrap the value a parent would produce. Factories are first-class through
// the Factory[T] capability, GetFactory and NewInstance.
//
// Resolution is concurrency-safe with per-descriptor serialization: each
// service is created at most once, failures are cached and re-reported
// verbatim, and genuine dependency cycles surface as errors rather than
// deadlocks. Close tears down everything the registry actually created, in
// reverse creation order, then its nested registries, best-effort.
package keel
