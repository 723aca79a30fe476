package identity

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/taskgraph/engine/future"
)

func floatBits(v float64) uint64 { return math.Float64bits(v) }

// digestSize is the truncation length the spec calls out explicitly:
// a BLAKE2/SHA-256 digest cut to 16 bytes, rendered as hex.
const digestSize = 16

// TaskID computes the deterministic task_id for a task's argument
// record: canonicalise, tag-frame, and hash with BLAKE2b truncated to
// 16 bytes. Equal canonical bytes always produce equal IDs; dict-key
// order and Go map iteration order never affect the result.
func TaskID(args *future.Args) (string, error) {
	if err := args.Err(); err != nil {
		return "", err
	}
	frag, err := args.Fragment()
	if err != nil {
		return "", err
	}
	buf, err := canonicalEncode(nil, frag)
	if err != nil {
		return "", err
	}
	h, err := blake2b.New(digestSize, nil)
	if err != nil {
		return "", fmt.Errorf("identity: init blake2b: %w", err)
	}
	if _, err := h.Write(buf); err != nil {
		return "", fmt.Errorf("identity: hash argument record: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ArgsJSON renders a task's canonical argument record as indented JSON
// for human inspection (the task_args view, §6). Framing information
// (sequence vs. mapping) is implicit in standard JSON array/object
// syntax, which is sufficient once Future leaves have already been
// substituted by Fragment — JSON itself never collides [1,2] with an
// object, only the *canonical byte* encoding needs the explicit tag,
// which TaskID applies separately.
func ArgsJSON(args *future.Args) ([]byte, error) {
	if err := args.Err(); err != nil {
		return nil, err
	}
	frag, err := args.Fragment()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(frag, "", "  ")
}
