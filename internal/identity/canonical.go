// Package identity derives a task's stable task_id from its canonical
// argument record, and renders the same record as human-readable JSON
// (the task_args view). This is the statically-typed replacement for
// the original's runtime attribute walk: callers hand us an already
// built *future.Args, we never inspect Go struct fields.
package identity

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Tag bytes distinguish sequences from mappings in the canonical byte
// stream so that, e.g., [1,2] and {"0":1,"1":2} never collide — the
// "tuple/list collision" ambiguity the spec requires the encoder to
// close by mandate (§4.3).
const (
	tagNull   byte = 0x00
	tagFalse  byte = 0x01
	tagTrue   byte = 0x02
	tagInt    byte = 0x03
	tagFloat  byte = 0x04
	tagString byte = 0x05
	tagBytes  byte = 0x06
	tagList   byte = 0x07
	tagMap    byte = 0x08
)

// canonicalEncode appends the canonical byte encoding of v to buf and
// returns the extended buffer. v must already have had every Future
// leaf substituted by future.Fragment (i.e. it is a tree of
// nil/bool/integer/float/string/[]byte/[]any/map[string]any).
func canonicalEncode(buf []byte, v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return append(buf, tagNull), nil
	case bool:
		if x {
			return append(buf, tagTrue), nil
		}
		return append(buf, tagFalse), nil
	case string:
		return encodeLengthPrefixed(buf, tagString, []byte(x)), nil
	case []byte:
		return encodeLengthPrefixed(buf, tagBytes, x), nil
	case int:
		return encodeInt(buf, int64(x)), nil
	case int8:
		return encodeInt(buf, int64(x)), nil
	case int16:
		return encodeInt(buf, int64(x)), nil
	case int32:
		return encodeInt(buf, int64(x)), nil
	case int64:
		return encodeInt(buf, x), nil
	case uint:
		return encodeInt(buf, int64(x)), nil
	case uint8:
		return encodeInt(buf, int64(x)), nil
	case uint16:
		return encodeInt(buf, int64(x)), nil
	case uint32:
		return encodeInt(buf, int64(x)), nil
	case uint64:
		return encodeInt(buf, int64(x)), nil
	case float32:
		return encodeFloat(buf, float64(x)), nil
	case float64:
		return encodeFloat(buf, x), nil
	case []any:
		buf = append(buf, tagList)
		buf = appendUvarint(buf, uint64(len(x)))
		var err error
		for _, e := range x {
			buf, err = canonicalEncode(buf, e)
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, tagMap)
		buf = appendUvarint(buf, uint64(len(keys)))
		var err error
		for _, k := range keys {
			buf = encodeLengthPrefixed(buf, tagString, []byte(k))
			buf, err = canonicalEncode(buf, x[k])
			if err != nil {
				return nil, err
			}
		}
		return buf, nil
	default:
		return nil, fmt.Errorf("identity: unrepresentable canonical leaf of type %T", v)
	}
}

func encodeLengthPrefixed(buf []byte, tag byte, data []byte) []byte {
	buf = append(buf, tag)
	buf = appendUvarint(buf, uint64(len(data)))
	return append(buf, data...)
}

func encodeInt(buf []byte, v int64) []byte {
	buf = append(buf, tagInt)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func encodeFloat(buf []byte, v float64) []byte {
	buf = append(buf, tagFloat)
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], floatBits(v))
	return append(buf, tmp[:]...)
}

func appendUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}
