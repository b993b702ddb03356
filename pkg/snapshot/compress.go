package snapshot

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// ErrCorruptContent is returned when stored content cannot be restored.
var ErrCorruptContent = errors.New("corrupt snapshot content")

// compress returns data as an LZ4 block. Incompressible input is returned
// unchanged with ok set to false.
func compress(data []byte) (out []byte, ok bool) {
	if len(data) == 0 {
		return data, false
	}

	compressed := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil || written == 0 || written >= len(data) {
		return data, false
	}

	return compressed[:written], true
}

// decompress restores content stored by compress. rawSize is the length of
// the original data.
func decompress(data []byte, rawSize int, compressed bool) ([]byte, error) {
	if !compressed {
		return data, nil
	}

	out := make([]byte, rawSize)

	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptContent, err)
	}

	if n != rawSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrCorruptContent, n, rawSize)
	}

	return out, nil
}
