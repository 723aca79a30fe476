package identity

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/taskgraph/engine/future"
)

func TestTaskIDStableAcrossKeyInsertionOrder(t *testing.T) {
	a := future.NewArgs().Set("alpha", 1).Set("beta", 2).Set("gamma", "x")
	b := future.NewArgs().Set("gamma", "x").Set("alpha", 1).Set("beta", 2)

	idA, err := TaskID(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idB, err := TaskID(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idA != idB {
		t.Fatalf("task ids differ by key insertion order: %s vs %s", idA, idB)
	}
}

func TestTaskIDDistinguishesValueChange(t *testing.T) {
	a := future.NewArgs().Set("n", 1)
	b := future.NewArgs().Set("n", 2)

	idA, err := TaskID(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idB, err := TaskID(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idA == idB {
		t.Fatalf("expected different task ids for different argument values")
	}
}

// TestTaskIDDistinguishesListFromMap covers the tuple/list collision
// closed by explicit tag-framing: a list [1,2] and a map with keys "0"
// and "1" must never hash to the same task_id.
func TestTaskIDDistinguishesListFromMap(t *testing.T) {
	list := future.NewArgs().Set("v", []any{1, 2})
	mapping := future.NewArgs().Set("v", map[string]any{"0": 1, "1": 2})

	idList, err := TaskID(list)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	idMap, err := TaskID(mapping)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idList == idMap {
		t.Fatalf("expected list and map encodings to produce distinct task ids")
	}
}

func TestTaskIDRejectsUnrepresentableLeaf(t *testing.T) {
	type weird struct{ X int }
	args := future.NewArgs().Set("v", weird{X: 1})
	if _, err := TaskID(args); err == nil {
		t.Fatalf("expected error for unrepresentable argument leaf")
	}
}

func TestArgsJSONIsValidIndentedJSON(t *testing.T) {
	args := future.NewArgs().Set("n", 3).Set("label", "choose")
	out, err := ArgsJSON(args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty JSON output")
	}
	if !json.Valid(out) {
		t.Fatalf("expected valid JSON, got %s", out)
	}
	if !bytes.Contains(out, []byte("\n  \"")) {
		t.Fatalf("expected two-space indented JSON, got %s", out)
	}
}
