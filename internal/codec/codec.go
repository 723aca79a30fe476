// Package codec defines the ValueCodec contract the core requires from
// its collaborator (§1: "a codec that can round-trip arbitrary
// in-memory values to bytes") and ships one concrete implementation,
// a JSON codec, so the engine is runnable out of the box. Callers are
// free to register any other ValueCodec — the core never assumes JSON.
package codec

import "encoding/json"

// ValueCodec encodes a task's resolved output to bytes for storage and
// decodes it back. Tag identifies the codec in cache metadata
// (meta.json's codec_tag, §6); a mismatched tag at load time is the
// collaborator's signal to the cache layer that the entry is
// CacheCorrupt.
type ValueCodec interface {
	Tag() string
	Encode(v any) ([]byte, error)
	Decode(data []byte, out any) error
}

// JSON is the default ValueCodec: encoding/json, tagged "json".
// Adequate for any task output that is itself JSON-representable;
// tasks whose outputs are not should supply their own ValueCodec.
type JSON struct{}

func (JSON) Tag() string { return "json" }

func (JSON) Encode(v any) ([]byte, error) { return json.Marshal(v) }

func (JSON) Decode(data []byte, out any) error { return json.Unmarshal(data, out) }
