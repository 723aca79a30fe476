package future

// FutureList is an ordered, non-cached aggregate of futures of the
// same element type. It never executes; it merely gathers its
// children's resolved values into a slice once they have all resolved.
//
// Used as a Node through a pointer (NewFutureList returns
// *FutureList[T]) because the struct holds a slice field and so is
// never comparable by value — see the comment on Const for why that
// matters.
type FutureList[T any] struct {
	items []Future[T]
}

// NewFutureList builds an aggregate future over items, preserving
// order.
func NewFutureList[T any](items ...Future[T]) *FutureList[T] {
	return &FutureList[T]{items: items}
}

func (l *FutureList[T]) Kind() Kind { return KindList }

func (l *FutureList[T]) Upstreams() []Node {
	ups := make([]Node, len(l.items))
	for i, it := range l.items {
		ups[i] = it
	}
	return ups
}

func (l *FutureList[T]) IdentityFragment() (any, error) {
	frag := make([]any, len(l.items))
	for i, it := range l.items {
		f, err := it.IdentityFragment()
		if err != nil {
			return nil, err
		}
		frag[i] = f
	}
	return frag, nil
}

func (l *FutureList[T]) Resolve(rc *ResolveContext) ([]T, error) {
	out := make([]T, len(l.items))
	for i, it := range l.items {
		v, err := it.Resolve(rc)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// At returns a MappedFuture that lazily indexes this list by position.
func (l *FutureList[T]) At(index int) *MappedFuture[T] {
	return newMappedFuture[[]T, T](l, index, func(s []T, k any) (T, bool) {
		idx := k.(int)
		if idx < 0 || idx >= len(s) {
			var zero T
			return zero, false
		}
		return s[idx], true
	})
}
