package future

import "fmt"

// MappedFuture is a lazy index into a future whose resolved value
// supports lookup by a recorded key (a dict key or a list index). Its
// identity includes the base future's identity plus the key, so two
// MappedFutures over the same base but different keys never collide —
// see the "index futures" scenario in the spec's testable properties.
//
// Used as a Node through a pointer: resolveFn is a closure, and
// closures are never comparable, so a MappedFuture value could never
// be used as a map key once boxed into Node.
type MappedFuture[T any] struct {
	base      Node
	key       any
	resolveFn func(rc *ResolveContext) (T, error)
}

// newMappedFuture is a free function rather than a method because Go
// does not allow a method to introduce its own type parameters — Base
// is fixed by the caller's base future, T by the caller's element type.
func newMappedFuture[Base, T any](base Future[Base], key any, lookup func(Base, any) (T, bool)) *MappedFuture[T] {
	return &MappedFuture[T]{
		base: base,
		key:  key,
		resolveFn: func(rc *ResolveContext) (T, error) {
			var zero T
			bv, err := base.Resolve(rc)
			if err != nil {
				return zero, err
			}
			v, ok := lookup(bv, key)
			if !ok {
				return zero, fmt.Errorf("mapped future: key %v not present in resolved base", key)
			}
			return v, nil
		},
	}
}

func (m *MappedFuture[T]) Kind() Kind { return KindMapped }

func (m *MappedFuture[T]) Upstreams() []Node { return []Node{m.base} }

func (m *MappedFuture[T]) IdentityFragment() (any, error) {
	baseFrag, err := m.base.IdentityFragment()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"__future__": "mapped",
		"__id__": map[string]any{
			"base": baseFrag,
			"key":  m.key,
		},
	}, nil
}

func (m *MappedFuture[T]) Resolve(rc *ResolveContext) (T, error) {
	return m.resolveFn(rc)
}
