// Package compress is the core's other external collaborator (§1):
// an optional byte-level compressor applied to a task's encoded output
// before it is written to value.bin, keyed by the task's
// task_compress_level. Grounded on klauspost/compress/zstd, already a
// dependency of the teacher's event pipeline for the same purpose.
package compress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// Compressor compresses and decompresses bytes at a given level. Level
// 0 means "no compression"; callers with level 0 should bypass this
// package entirely rather than construct one, since zstd has no
// meaningful notion of "level zero".
type Compressor interface {
	Compress(level int, data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Zstd is the default Compressor.
type Zstd struct{}

func (Zstd) Compress(level int, data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstdLevel(level)))
	if err != nil {
		return nil, fmt.Errorf("compress: new encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (Zstd) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompress: new decoder: %w", err)
	}
	defer dec.Close()
	out, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("decompress: read: %w", err)
	}
	return out, nil
}

// zstdLevel maps the task's 1-9 compress_level (the spec leaves the
// scale to the collaborator) onto zstd's coarser four-level scheme;
// levels above 9 select the best-compression level.
func zstdLevel(level int) zstd.EncoderLevel {
	switch {
	case level <= 0:
		return zstd.SpeedDefault
	case level <= 3:
		return zstd.SpeedFastest
	case level <= 6:
		return zstd.SpeedDefault
	case level <= 9:
		return zstd.SpeedBetterCompression
	default:
		return zstd.SpeedBestCompression
	}
}
