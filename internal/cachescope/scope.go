// Package cachescope implements the spec's §4.1 scoped cache binding
// as an explicit handle carried through a context.Context, rather than
// a process-global stack. The spec's Design Notes call this out
// directly: pass an explicit Cache handle through task constructors
// instead of a global — this package is that handle, and Open/From are
// the construction/lookup pair that still let task constructors read
// "the active scope" without a package-level variable.
//
// Nested scopes (Open called again on a context that already carries a
// scope) stack: the returned context carries the new scope, and the
// innermost one is what From resolves, matching the spec's "nested
// scopes stack (innermost wins)".
package cachescope

import "context"

type scopeKey struct{}

// Scope is the active cache binding: the filesystem root a CacheStore
// is rooted at, plus the store handle itself once one has been opened
// for it. Store is an interface (rather than a concrete *cachestore.Store)
// so this package does not need to import cachestore, avoiding a cycle
// with packages that construct tasks against a cachestore.Store.
type Scope struct {
	root  string
	store any
}

// Open installs a new scope wrapping store, rooted at root, and
// returns a context carrying it; a nested Open call layered on top of
// an existing scope's context shadows the outer one for the lifetime
// of the returned context (and everything derived from it) without
// mutating the outer scope.
func Open(parent context.Context, root string, store any) (context.Context, *Scope) {
	s := &Scope{root: root, store: store}
	return context.WithValue(parent, scopeKey{}, s), s
}

// From returns the innermost active scope, or a *UsageError if no
// scope has been opened on ctx — the spec's "failing to be inside a
// scope at construction is a usage error".
func From(ctx context.Context) (*Scope, error) {
	s, ok := ctx.Value(scopeKey{}).(*Scope)
	if !ok || s == nil {
		return nil, &UsageError{Msg: "no active cache scope in context; call cachescope.Open first"}
	}
	return s, nil
}

func (s *Scope) Root() string { return s.root }

// Store returns the scope's bound store, type-asserted to T by the
// caller (normally *cachestore.Store). Kept as `any` at this layer to
// avoid importing cachestore from cachescope.
func (s *Scope) Store() any { return s.store }
