// Package codec implements the four block compression variants: None, LZ4,
// Zstd, and Snappy, each bounded by a decompression-bomb ceiling.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/lz4"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

// Kind identifies a codec variant.
type Kind int

const (
	None Kind = iota
	LZ4
	Zstd
	Snappy
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	case Snappy:
		return "snappy"
	default:
		return "unknown"
	}
}

// DefaultMaxDecodedSize is the anti-decompression-bomb ceiling: neither the
// caller's hint nor the actual decoded output may exceed this many bytes.
const DefaultMaxDecodedSize = 100 * 1024 * 1024

// Codec compresses and decompresses byte runs under a configured ceiling.
type Codec interface {
	Kind() Kind
	Compress(data []byte) ([]byte, error)
	// Decompress expects hint to be the exact decoded length the caller
	// believes the payload will produce. Both hint and the actual decoded
	// size are checked against the ceiling before any output buffer beyond
	// the ceiling is allocated.
	Decompress(data []byte, hint int) ([]byte, error)
}

// New returns the Codec for kind, bounded by maxDecoded (DefaultMaxDecodedSize
// if 0).
func New(kind Kind, maxDecoded int) Codec {
	if maxDecoded <= 0 {
		maxDecoded = DefaultMaxDecodedSize
	}
	switch kind {
	case LZ4:
		return &lz4Codec{max: maxDecoded}
	case Zstd:
		return &zstdCodec{max: maxDecoded}
	case Snappy:
		return &snappyCodec{max: maxDecoded}
	default:
		return &noneCodec{max: maxDecoded}
	}
}

func checkCeiling(n, max int) error {
	if n < 0 || n > max {
		return cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("decoded size %d exceeds ceiling %d", n, max))
	}
	return nil
}

// --- None ---

type noneCodec struct{ max int }

func (c *noneCodec) Kind() Kind { return None }

func (c *noneCodec) Compress(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (c *noneCodec) Decompress(data []byte, hint int) ([]byte, error) {
	if err := checkCeiling(hint, c.max); err != nil {
		return nil, err
	}
	if err := checkCeiling(len(data), c.max); err != nil {
		return nil, err
	}
	if hint != len(data) {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("decoded length %d does not match hint %d", len(data), hint))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// --- LZ4 ---
//
// Canonical framing (SPEC_FULL open question #1): an explicit 8-byte
// little-endian uncompressed-length prefix precedes the raw LZ4 block
// stream. Decompress always checks this prefix against the caller's hint
// before trusting either, rather than relying on LZ4 frame auto-detection.

type lz4Codec struct{ max int }

func (c *lz4Codec) Kind() Kind { return LZ4 }

func (c *lz4Codec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	var lenPrefix [8]byte
	binary.LittleEndian.PutUint64(lenPrefix[:], uint64(len(data)))
	buf.Write(lenPrefix[:])

	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, cdberr.Wrap(cdberr.Serialization, "lz4 compress", err)
	}
	if err := w.Close(); err != nil {
		return nil, cdberr.Wrap(cdberr.Serialization, "lz4 compress", err)
	}
	return buf.Bytes(), nil
}

func (c *lz4Codec) Decompress(data []byte, hint int) ([]byte, error) {
	if err := checkCeiling(hint, c.max); err != nil {
		return nil, err
	}
	if len(data) < 8 {
		return nil, cdberr.New(cdberr.Deserialization, "lz4 payload too short for length prefix")
	}
	declared := int(binary.LittleEndian.Uint64(data[:8]))
	if declared != hint {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("lz4 declared length %d does not match hint %d", declared, hint))
	}
	if err := checkCeiling(declared, c.max); err != nil {
		return nil, err
	}

	r := lz4.NewReader(bytes.NewReader(data[8:]))
	out, err := io.ReadAll(io.LimitReader(r, int64(c.max)+1))
	if err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "lz4 decompress", err)
	}
	if err := checkCeiling(len(out), c.max); err != nil {
		return nil, err
	}
	if len(out) != declared {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("lz4 decoded length %d does not match declared length %d", len(out), declared))
	}
	return out, nil
}

// --- Zstd ---

type zstdCodec struct{ max int }

func (c *zstdCodec) Kind() Kind { return Zstd }

func (c *zstdCodec) Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, cdberr.Wrap(cdberr.Serialization, "zstd encoder init", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (c *zstdCodec) Decompress(data []byte, hint int) ([]byte, error) {
	if err := checkCeiling(hint, c.max); err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(c.max)))
	if err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "zstd decoder init", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, make([]byte, 0, hint))
	if err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "zstd decompress", err)
	}
	if err := checkCeiling(len(out), c.max); err != nil {
		return nil, err
	}
	if len(out) != hint {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("zstd decoded length %d does not match hint %d", len(out), hint))
	}
	return out, nil
}

// --- Snappy-compatible (s2 in snappy mode) ---

type snappyCodec struct{ max int }

func (c *snappyCodec) Kind() Kind { return Snappy }

func (c *snappyCodec) Compress(data []byte) ([]byte, error) {
	return s2.EncodeSnappy(nil, data), nil
}

func (c *snappyCodec) Decompress(data []byte, hint int) ([]byte, error) {
	if err := checkCeiling(hint, c.max); err != nil {
		return nil, err
	}
	declared, err := s2.DecodedLen(data)
	if err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "snappy decode header", err)
	}
	if err := checkCeiling(declared, c.max); err != nil {
		return nil, err
	}
	if declared != hint {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("snappy declared length %d does not match hint %d", declared, hint))
	}

	out, err := s2.Decode(nil, data)
	if err != nil {
		return nil, cdberr.Wrap(cdberr.Deserialization, "snappy decompress", err)
	}
	if err := checkCeiling(len(out), c.max); err != nil {
		return nil, err
	}
	if len(out) != hint {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("snappy decoded length %d does not match hint %d", len(out), hint))
	}
	return out, nil
}
