// Package block packs column chunks into immutable, compressed, checksummed
// blocks and rehydrates them back into typed columns.
package block

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"github.com/cespare/xxhash/v2"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/codec"
	"github.com/denizumutdereli/cognidb/pkg/column"
)

// MaxStringElemSize bounds any single String/Binary element decoded from a
// length-prefixed payload, defeating a corrupted length prefix that would
// otherwise request an enormous allocation.
const MaxStringElemSize = 64 * 1024 * 1024

// Block is a sealed, compressed fragment of one column's rows. Immutable
// once returned by Writer.WriteColumn.
type Block struct {
	ColumnID         int
	DataType         column.DataType
	Compression      codec.Kind
	RowStart         int
	RowCount         int
	UncompressedSize int
	CompressedSize   int
	Bytes            []byte
	Checksum         uint64
	Min              any
	Max              any
	NullCount        int
}

// Writer splits columns into row-bounded chunks and compresses each into a
// Block.
type Writer struct {
	BlockSize   int
	Compression codec.Kind
	MaxDecoded  int
}

func NewWriter(blockSize int, compression codec.Kind) *Writer {
	return &Writer{BlockSize: blockSize, Compression: compression, MaxDecoded: codec.DefaultMaxDecodedSize}
}

// WriteColumn splits col into chunks of at most BlockSize rows and returns
// one Block per chunk, in row order.
func (w *Writer) WriteColumn(col column.Column, columnID int) ([]*Block, error) {
	n := col.Len()
	blockSize := w.BlockSize
	if blockSize <= 0 {
		blockSize = n
		if blockSize == 0 {
			blockSize = 1
		}
	}

	var blocks []*Block
	for start := 0; start < n; start += blockSize {
		count := blockSize
		if start+count > n {
			count = n - start
		}
		chunk, err := col.Slice(start, count)
		if err != nil {
			return nil, err
		}
		blk, err := w.encodeChunk(chunk, columnID, start, count)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, blk)
	}
	return blocks, nil
}

func (w *Writer) encodeChunk(chunk column.Column, columnID, rowStart, rowCount int) (*Block, error) {
	payload, uncompressedSize, err := encodePayload(chunk)
	if err != nil {
		return nil, err
	}

	c := codec.New(w.Compression, w.MaxDecoded)
	compressed, err := c.Compress(payload)
	if err != nil {
		return nil, cdberr.Wrap(cdberr.Serialization, "block compress", err)
	}

	return &Block{
		ColumnID:         columnID,
		DataType:         chunk.DataType(),
		Compression:      w.Compression,
		RowStart:         rowStart,
		RowCount:         rowCount,
		UncompressedSize: uncompressedSize,
		CompressedSize:   len(compressed),
		Bytes:            compressed,
		Checksum:         xxhash.Sum64(payload),
	}, nil
}

// encodePayload produces the uncompressed byte run for a chunk: raw
// host-little-endian element bytes for fixed-width primitives, one byte per
// logical value for Bool, and a length-prefixed sequence for String/Binary.
func encodePayload(col column.Column) ([]byte, int, error) {
	switch c := col.(type) {
	case *column.FixedColumn[int8]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[int16]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[int32]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[int64]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[uint8]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[uint16]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[uint32]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[uint64]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[float32]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[float64]:
		b := bytesOfSlice(c.Data)
		return b, len(b), nil
	case *column.FixedColumn[bool]:
		out := make([]byte, len(c.Data))
		for i, v := range c.Data {
			if v {
				out[i] = 1
			}
		}
		return out, len(out), nil
	case *column.StringColumn:
		return encodeLengthPrefixed(stringsAsBytes(c.Data))
	case *column.BinaryColumn:
		return encodeLengthPrefixed(c.Data)
	default:
		return nil, 0, cdberr.New(cdberr.Serialization, fmt.Sprintf("unsupported column type %T for block encoding", col))
	}
}

func stringsAsBytes(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}

func encodeLengthPrefixed(elems [][]byte) ([]byte, int, error) {
	var buf []byte
	var lenBuf [4]byte
	for _, e := range elems {
		if len(e) > MaxStringElemSize {
			return nil, 0, cdberr.New(cdberr.Serialization, "element exceeds per-element size ceiling")
		}
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, e...)
	}
	return buf, len(buf), nil
}

// bytesOfSlice reinterprets a fixed-width element slice as its raw backing
// bytes in host little-endian layout, with no copy.
func bytesOfSlice[T column.Element](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	sz := int(unsafe.Sizeof(zero))
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*sz)
}

// Reader rehydrates columns from blocks.
type Reader struct {
	MaxDecoded int
}

func NewReader() *Reader {
	return &Reader{MaxDecoded: codec.DefaultMaxDecodedSize}
}

// ReadColumn decodes blk into a Column of the requested type. Any mismatch
// (type, length, alignment) fails with Deserialization; on failure the
// caller receives no partially-populated column.
func (r *Reader) ReadColumn(blk *Block, requestedType column.DataType) (column.Column, error) {
	if blk.DataType != requestedType {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("block data type %s does not match requested type %s", blk.DataType, requestedType))
	}
	if len(blk.Bytes) != blk.CompressedSize {
		return nil, cdberr.New(cdberr.Deserialization, "block byte length does not match compressed_size")
	}

	maxDecoded := r.MaxDecoded
	if maxDecoded <= 0 {
		maxDecoded = codec.DefaultMaxDecodedSize
	}
	c := codec.New(blk.Compression, maxDecoded)
	payload, err := c.Decompress(blk.Bytes, blk.UncompressedSize)
	if err != nil {
		return nil, err
	}
	if xxhash.Sum64(payload) != blk.Checksum && blk.Checksum != 0 {
		return nil, cdberr.New(cdberr.Deserialization, "block checksum mismatch")
	}

	switch requestedType {
	case column.Int8:
		return decodeFixed[int8](payload, blk.RowCount, column.Int8)
	case column.Int16:
		return decodeFixed[int16](payload, blk.RowCount, column.Int16)
	case column.Int32:
		return decodeFixed[int32](payload, blk.RowCount, column.Int32)
	case column.Int64:
		return decodeFixed[int64](payload, blk.RowCount, column.Int64)
	case column.Uint8:
		return decodeFixed[uint8](payload, blk.RowCount, column.Uint8)
	case column.Uint16:
		return decodeFixed[uint16](payload, blk.RowCount, column.Uint16)
	case column.Uint32:
		return decodeFixed[uint32](payload, blk.RowCount, column.Uint32)
	case column.Uint64:
		return decodeFixed[uint64](payload, blk.RowCount, column.Uint64)
	case column.Float32:
		return decodeFixed[float32](payload, blk.RowCount, column.Float32)
	case column.Float64:
		return decodeFixed[float64](payload, blk.RowCount, column.Float64)
	case column.Timestamp:
		return decodeFixed[int64](payload, blk.RowCount, column.Timestamp)
	case column.Date:
		return decodeFixed[int32](payload, blk.RowCount, column.Date)
	case column.Bool:
		return decodeBool(payload, blk.RowCount)
	case column.String:
		return decodeStrings(payload, blk.RowCount)
	case column.Binary:
		return decodeBinaries(payload, blk.RowCount)
	default:
		return nil, cdberr.New(cdberr.Deserialization, fmt.Sprintf("unsupported data type %s for block decoding", requestedType))
	}
}

func decodeFixed[T column.Element](payload []byte, rowCount int, dtype column.DataType) (column.Column, error) {
	var zero T
	sz := int(unsafe.Sizeof(zero))
	if sz == 0 {
		return nil, cdberr.New(cdberr.Deserialization, "zero-sized element type")
	}
	if len(payload)%sz != 0 {
		return nil, cdberr.New(cdberr.Deserialization, "payload length is not a multiple of element size")
	}
	n := len(payload) / sz
	if n != rowCount {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("decoded row count %d does not match declared row_count %d", n, rowCount))
	}
	if n == 0 {
		return column.NewFixed[T](dtype, nil), nil
	}
	if uintptr(unsafe.Pointer(&payload[0]))%uintptr(sz) != 0 {
		return nil, cdberr.New(cdberr.Deserialization, "misaligned buffer for zero-copy decode")
	}
	data := unsafe.Slice((*T)(unsafe.Pointer(&payload[0])), n)
	return column.NewFixed[T](dtype, data), nil
}

func decodeBool(payload []byte, rowCount int) (column.Column, error) {
	if len(payload) != rowCount {
		return nil, cdberr.New(cdberr.Deserialization,
			fmt.Sprintf("bool payload length %d does not match row_count %d", len(payload), rowCount))
	}
	out := make([]bool, rowCount)
	for i, b := range payload {
		if b != 0 && b != 1 {
			return nil, cdberr.New(cdberr.Deserialization, "bool payload byte is neither 0 nor 1")
		}
		out[i] = b == 1
	}
	return column.NewBoolColumn(out), nil
}

func decodeLengthPrefixed(payload []byte, rowCount int) ([][]byte, error) {
	out := make([][]byte, 0, rowCount)
	pos := 0
	for i := 0; i < rowCount; i++ {
		if pos+4 > len(payload) {
			return nil, cdberr.New(cdberr.Deserialization, "truncated length prefix")
		}
		n := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
		pos += 4
		if n < 0 || n > MaxStringElemSize {
			return nil, cdberr.New(cdberr.Deserialization, "element length exceeds per-element ceiling")
		}
		if pos+n > len(payload) {
			return nil, cdberr.New(cdberr.Deserialization, "truncated element payload")
		}
		elem := make([]byte, n)
		copy(elem, payload[pos:pos+n])
		out = append(out, elem)
		pos += n
	}
	if pos != len(payload) {
		return nil, cdberr.New(cdberr.Deserialization, "trailing bytes after decoding all declared elements")
	}
	return out, nil
}

func decodeStrings(payload []byte, rowCount int) (column.Column, error) {
	elems, err := decodeLengthPrefixed(payload, rowCount)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(elems))
	for i, e := range elems {
		out[i] = string(e)
	}
	return column.NewStringColumn(out), nil
}

func decodeBinaries(payload []byte, rowCount int) (column.Column, error) {
	elems, err := decodeLengthPrefixed(payload, rowCount)
	if err != nil {
		return nil, err
	}
	return column.NewBinaryColumn(elems), nil
}
