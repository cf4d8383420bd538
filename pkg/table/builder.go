package table

import (
	"fmt"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
	"github.com/denizumutdereli/cognidb/pkg/column"
)

// builder accumulates a fixed-length column of dtype so readColumnRangeLocked
// can place decoded block slices at arbitrary offsets and fuse overlay
// values by index, independent of the concrete element type.
type builder struct {
	dtype column.DataType
	n     int
	col   column.Column
}

func newBuilder(dtype column.DataType, n int) *builder {
	if n < 0 {
		n = 0
	}
	var col column.Column
	switch dtype {
	case column.Int8:
		col = column.NewInt8Column(make([]int8, n))
	case column.Int16:
		col = column.NewInt16Column(make([]int16, n))
	case column.Int32:
		col = column.NewInt32Column(make([]int32, n))
	case column.Int64:
		col = column.NewInt64Column(make([]int64, n))
	case column.Uint8:
		col = column.NewUint8Column(make([]uint8, n))
	case column.Uint16:
		col = column.NewUint16Column(make([]uint16, n))
	case column.Uint32:
		col = column.NewUint32Column(make([]uint32, n))
	case column.Uint64:
		col = column.NewUint64Column(make([]uint64, n))
	case column.Float32:
		col = column.NewFloat32Column(make([]float32, n))
	case column.Float64:
		col = column.NewFloat64Column(make([]float64, n))
	case column.Bool:
		col = column.NewBoolColumn(make([]bool, n))
	case column.Timestamp:
		col = column.NewTimestampColumn(make([]int64, n))
	case column.Date:
		col = column.NewDateColumn(make([]int32, n))
	case column.String:
		col = column.NewStringColumn(make([]string, n))
	case column.Binary:
		col = column.NewBinaryColumn(make([][]byte, n))
	}
	return &builder{dtype: dtype, n: n, col: col}
}

func newBuilderFromColumn(c column.Column) *builder {
	return &builder{dtype: c.DataType(), n: c.Len(), col: c}
}

func (b *builder) build() *builder { return b }

func unsupported(dtype column.DataType) error {
	return cdberr.New(cdberr.Storage, fmt.Sprintf("data type %s is not supported by the storage engine glue layer", dtype))
}

// place copies src's elements into b.col starting at destOffset. src must
// share b's data type and fit within b's length.
func (b *builder) place(destOffset int, src column.Column) error {
	if b.col == nil {
		return unsupported(b.dtype)
	}
	switch dst := b.col.(type) {
	case *column.FixedColumn[int8]:
		s := src.(*column.FixedColumn[int8])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[int16]:
		s := src.(*column.FixedColumn[int16])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[int32]:
		s := src.(*column.FixedColumn[int32])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[int64]:
		s := src.(*column.FixedColumn[int64])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[uint8]:
		s := src.(*column.FixedColumn[uint8])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[uint16]:
		s := src.(*column.FixedColumn[uint16])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[uint32]:
		s := src.(*column.FixedColumn[uint32])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[uint64]:
		s := src.(*column.FixedColumn[uint64])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[float32]:
		s := src.(*column.FixedColumn[float32])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[float64]:
		s := src.(*column.FixedColumn[float64])
		copy(dst.Data[destOffset:], s.Data)
	case *column.FixedColumn[bool]:
		s := src.(*column.FixedColumn[bool])
		copy(dst.Data[destOffset:], s.Data)
	case *column.StringColumn:
		s := src.(*column.StringColumn)
		copy(dst.Data[destOffset:], s.Data)
	case *column.BinaryColumn:
		s := src.(*column.BinaryColumn)
		copy(dst.Data[destOffset:], s.Data)
	default:
		return unsupported(b.dtype)
	}
	return nil
}

// setAny assigns value, an overlay-held dynamically typed value, to
// element idx, failing with Query if value's Go type does not match the
// column's element type.
func (b *builder) setAny(idx int, value any) error {
	if b.col == nil {
		return unsupported(b.dtype)
	}
	mismatch := func() error {
		return cdberr.New(cdberr.Query, fmt.Sprintf("overlay value type does not match column type %s", b.dtype))
	}
	switch dst := b.col.(type) {
	case *column.FixedColumn[int8]:
		v, ok := value.(int8)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[int16]:
		v, ok := value.(int16)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[int32]:
		v, ok := value.(int32)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[int64]:
		v, ok := value.(int64)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[uint8]:
		v, ok := value.(uint8)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[uint16]:
		v, ok := value.(uint16)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[uint32]:
		v, ok := value.(uint32)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[uint64]:
		v, ok := value.(uint64)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[float32]:
		v, ok := value.(float32)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[float64]:
		v, ok := value.(float64)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.FixedColumn[bool]:
		v, ok := value.(bool)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.StringColumn:
		v, ok := value.(string)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	case *column.BinaryColumn:
		v, ok := value.([]byte)
		if !ok {
			return mismatch()
		}
		dst.Data[idx] = v
	default:
		return unsupported(b.dtype)
	}
	return nil
}
