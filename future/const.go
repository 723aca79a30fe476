package future

// Const wraps a literal value that is available immediately. It is
// never cached and contributes its raw value to any downstream's
// identity — by design this collapses with passing the literal value
// directly as an argument, so Const(v) and v share an identity
// fragment.
//
// Const is used as a Node through a pointer (NewConst returns
// *Const[T]) purely so that every Node's dynamic type is comparable:
// T itself may be a slice or map, which would make the struct value
// unusable as a map key the moment it is boxed into the Node
// interface — a pointer is always comparable regardless of what it
// points to.
type Const[T any] struct {
	value T
}

// NewConst returns a Future that resolves to v without ever being
// scheduled or cached.
func NewConst[T any](v T) *Const[T] {
	return &Const[T]{value: v}
}

func (c *Const[T]) Kind() Kind { return KindConst }

func (c *Const[T]) Upstreams() []Node { return nil }

func (c *Const[T]) IdentityFragment() (any, error) {
	return any(c.value), nil
}

func (c *Const[T]) Resolve(rc *ResolveContext) (T, error) {
	return c.value, nil
}
