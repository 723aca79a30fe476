package future

import (
	"fmt"
	"sort"
	"strings"
)

// ArgumentError is returned when a task's declared argument record
// cannot be canonicalised: an unrepresentable leaf value, or a
// reserved "task_" attribute name collision.
type ArgumentError struct {
	Field string
	Msg   string
}

func (e *ArgumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("argument error on %q: %s", e.Field, e.Msg)
	}
	return fmt.Sprintf("argument error: %s", e.Msg)
}

// Args is a task's argument record: the set of named values a task
// declares at construction time. Values reachable as a Node (any
// Future) are recorded as upstream edges; everything else must be a
// JSON-representable leaf (or a slice/map composed of such). Args
// replaces the attribute-walk the Python original performs via
// runtime introspection — see SPEC_FULL.md §C.1.
type Args struct {
	kv  map[string]any
	err *ArgumentError
}

// NewArgs returns an empty argument record ready for Set calls.
func NewArgs() *Args {
	return &Args{kv: make(map[string]any)}
}

// Set records a named argument value. Names beginning with "task_" are
// reserved for class-level task metadata and are rejected the first
// time Err is consulted (by taskgraph.NewTask or the identity encoder).
func (a *Args) Set(name string, v any) *Args {
	if a.err == nil && strings.HasPrefix(name, "task_") {
		a.err = &ArgumentError{Field: name, Msg: "reserved attribute name (task_ prefix)"}
	}
	a.kv[name] = v
	return a
}

// Err returns the first construction-time error recorded by Set, if
// any.
func (a *Args) Err() error {
	if a.err == nil {
		return nil
	}
	return a.err
}

func (a *Args) sortedKeys() []string {
	keys := make([]string, 0, len(a.kv))
	for k := range a.kv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Upstreams returns every distinct Future reachable from this argument
// record, in canonical (sorted-key, then depth-first) order.
func (a *Args) Upstreams() []Node {
	var ups []Node
	seen := make(map[Node]bool)
	for _, k := range a.sortedKeys() {
		collectUpstreams(a.kv[k], &ups, seen)
	}
	return ups
}

func collectUpstreams(v any, out *[]Node, seen map[Node]bool) {
	switch x := v.(type) {
	case Node:
		if !seen[x] {
			seen[x] = true
			*out = append(*out, x)
		}
	case []any:
		for _, e := range x {
			collectUpstreams(e, out, seen)
		}
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			collectUpstreams(x[k], out, seen)
		}
	}
}

// Fragment renders the full argument record as a canonical tree: every
// Future leaf replaced by its IdentityFragment, keyed by sorted field
// name. Call Err first; Fragment does not re-check reserved names.
func (a *Args) Fragment() (map[string]any, error) {
	out := make(map[string]any, len(a.kv))
	for _, k := range a.sortedKeys() {
		f, err := Fragment(a.kv[k])
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", k, err)
		}
		out[k] = f
	}
	return out, nil
}

// Fragment substitutes every Future leaf reachable from v with its
// IdentityFragment, recursing through []any and map[string]any.
// Remaining leaves must be one of {nil, bool, integer, float, string,
// byte string}; anything else is an ArgumentError.
func Fragment(v any) (any, error) {
	switch x := v.(type) {
	case Node:
		return x.IdentityFragment()
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			f, err := Fragment(e)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			f, err := Fragment(e)
			if err != nil {
				return nil, err
			}
			out[k] = f
		}
		return out, nil
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	default:
		return nil, &ArgumentError{Msg: fmt.Sprintf("unrepresentable leaf of type %T", v)}
	}
}
