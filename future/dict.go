package future

import "sort"

// FutureDict is a key-to-future aggregate, keyed by string, mirroring
// FutureList but resolving to a map instead of a slice. Used as a Node
// through a pointer for the same comparability reason as FutureList.
type FutureDict[T any] struct {
	items map[string]Future[T]
}

// NewFutureDict builds an aggregate future over a string-keyed map of
// futures.
func NewFutureDict[T any](items map[string]Future[T]) *FutureDict[T] {
	cp := make(map[string]Future[T], len(items))
	for k, v := range items {
		cp[k] = v
	}
	return &FutureDict[T]{items: cp}
}

func (d *FutureDict[T]) Kind() Kind { return KindDict }

func (d *FutureDict[T]) sortedKeys() []string {
	keys := make([]string, 0, len(d.items))
	for k := range d.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d *FutureDict[T]) Upstreams() []Node {
	keys := d.sortedKeys()
	ups := make([]Node, len(keys))
	for i, k := range keys {
		ups[i] = d.items[k]
	}
	return ups
}

func (d *FutureDict[T]) IdentityFragment() (any, error) {
	frag := make(map[string]any, len(d.items))
	for k, it := range d.items {
		f, err := it.IdentityFragment()
		if err != nil {
			return nil, err
		}
		frag[k] = f
	}
	return frag, nil
}

func (d *FutureDict[T]) Resolve(rc *ResolveContext) (map[string]T, error) {
	out := make(map[string]T, len(d.items))
	for k, it := range d.items {
		v, err := it.Resolve(rc)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// Get returns a MappedFuture that lazily indexes this dict by key.
func (d *FutureDict[T]) Get(key string) *MappedFuture[T] {
	return newMappedFuture[map[string]T, T](d, key, func(m map[string]T, k any) (T, bool) {
		v, ok := m[k.(string)]
		return v, ok
	})
}
