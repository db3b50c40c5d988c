// Package compression provides block compression for packed-list nodes.
//
// A compressed node is framed as a 1-byte codec tag, a varint holding the
// uncompressed length, and the codec's output. The raw length is framed
// explicitly so decoders can size their destination buffer up front.
package compression

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/cinnabarkv/cinnabarkv/internal/encoding"
)

// Type represents a compression algorithm.
type Type uint8

const (
	// None indicates no compression.
	None Type = 0x0

	// Snappy uses Google Snappy block compression.
	Snappy Type = 0x1

	// LZ4 uses LZ4 block compression.
	LZ4 Type = 0x2

	// Zstd uses Zstandard compression.
	Zstd Type = 0x3
)

// String returns the human-readable name of the compression type.
func (t Type) String() string {
	switch t {
	case None:
		return "None"
	case Snappy:
		return "Snappy"
	case LZ4:
		return "LZ4"
	case Zstd:
		return "ZSTD"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
}

// IsSupported returns true if the compression type is supported.
func (t Type) IsSupported() bool {
	switch t {
	case None, Snappy, LZ4, Zstd:
		return true
	default:
		return false
	}
}

// zstd coders are stateless for the EncodeAll/DecodeAll block API and can
// be shared.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeBlock compresses data with the given codec and frames the result
// as <type:u8><varint rawLen><payload>.
//
// If the codec does not shrink the input (or t is None), the block is
// framed with type None and the payload is stored verbatim. The second
// return value reports whether compression was applied.
func EncodeBlock(t Type, data []byte) ([]byte, bool, error) {
	var compressed []byte
	switch t {
	case None:
		// fall through to the stored frame

	case Snappy:
		compressed = snappy.Encode(nil, data)

	case LZ4:
		var c lz4.Compressor
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := c.CompressBlock(data, dst)
		if err != nil {
			return nil, false, fmt.Errorf("lz4 compress: %w", err)
		}
		if n > 0 {
			compressed = dst[:n]
		}

	case Zstd:
		compressed = zstdEncoder.EncodeAll(data, nil)

	default:
		return nil, false, fmt.Errorf("unsupported compression type: %s", t)
	}

	if compressed == nil || len(compressed) >= len(data) {
		// Incompressible. Store verbatim.
		frame := make([]byte, 0, 1+encoding.MaxVarint32Length+len(data))
		frame = append(frame, byte(None))
		frame = encoding.AppendVarint32(frame, uint32(len(data)))
		return append(frame, data...), false, nil
	}

	frame := make([]byte, 0, 1+encoding.MaxVarint32Length+len(compressed))
	frame = append(frame, byte(t))
	frame = encoding.AppendVarint32(frame, uint32(len(data)))
	return append(frame, compressed...), true, nil
}

// DecodeBlock reverses EncodeBlock and returns the uncompressed payload.
func DecodeBlock(block []byte) ([]byte, error) {
	if len(block) < 2 {
		return nil, fmt.Errorf("compression: block too short (%d bytes)", len(block))
	}
	t := Type(block[0])
	rawLen, n, err := encoding.DecodeVarint32(block[1:])
	if err != nil {
		return nil, fmt.Errorf("compression: bad raw length: %w", err)
	}
	payload := block[1+n:]

	switch t {
	case None:
		if uint32(len(payload)) != rawLen {
			return nil, fmt.Errorf("compression: stored block length %d, frame says %d", len(payload), rawLen)
		}
		out := make([]byte, rawLen)
		copy(out, payload)
		return out, nil

	case Snappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, fmt.Errorf("snappy decode: %w", err)
		}
		if uint32(len(out)) != rawLen {
			return nil, fmt.Errorf("snappy decode: length %d, frame says %d", len(out), rawLen)
		}
		return out, nil

	case LZ4:
		out := make([]byte, rawLen)
		m, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decode: %w", err)
		}
		if uint32(m) != rawLen {
			return nil, fmt.Errorf("lz4 decode: length %d, frame says %d", m, rawLen)
		}
		return out, nil

	case Zstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		if uint32(len(out)) != rawLen {
			return nil, fmt.Errorf("zstd decode: length %d, frame says %d", len(out), rawLen)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}
