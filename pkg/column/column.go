// Package column implements the typed column primitive: a tagged union over
// fixed-width numeric types plus Bool, Timestamp, Date, String, Binary, and
// the nested Nullable/Array/Map descriptors.
package column

import (
	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

// DataType tags the concrete representation backing a Column.
type DataType int

const (
	Int8 DataType = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Bool
	Timestamp // i64 epoch units
	Date      // i32
	String
	Binary
	Nullable
	Array
	Map
)

func (dt DataType) String() string {
	switch dt {
	case Int8:
		return "i8"
	case Int16:
		return "i16"
	case Int32:
		return "i32"
	case Int64:
		return "i64"
	case Uint8:
		return "u8"
	case Uint16:
		return "u16"
	case Uint32:
		return "u32"
	case Uint64:
		return "u64"
	case Float32:
		return "f32"
	case Float64:
		return "f64"
	case Bool:
		return "bool"
	case Timestamp:
		return "timestamp"
	case Date:
		return "date"
	case String:
		return "string"
	case Binary:
		return "binary"
	case Nullable:
		return "nullable"
	case Array:
		return "array"
	case Map:
		return "map"
	default:
		return "unknown"
	}
}

// FixedWidth reports whether dt supports O(1) index and zero-copy slice.
func (dt DataType) FixedWidth() bool {
	switch dt {
	case String, Binary, Nullable, Array, Map:
		return false
	default:
		return true
	}
}

// ElemSize returns sizeof(T) in bytes for fixed-width primitive types, or 0
// for non fixed-width types.
func (dt DataType) ElemSize() int {
	switch dt {
	case Int8, Uint8, Bool:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32, Date:
		return 4
	case Int64, Uint64, Float64, Timestamp:
		return 8
	default:
		return 0
	}
}

// Column is the common capability every variant implements: a row count, a
// data type tag, and bounds-checked slicing. Concrete types additionally
// expose typed Append/Value accessors.
type Column interface {
	Len() int
	DataType() DataType
	// Slice returns a new Column covering [start, start+count). It fails
	// with cdberr.Storage "Slice out of bounds" if start+count exceeds Len.
	Slice(start, count int) (Column, error)
}

func errMismatch() error {
	return cdberr.New(cdberr.Storage, "Column type mismatch")
}

func errBounds() error {
	return cdberr.New(cdberr.Storage, "Slice out of bounds")
}

func checkBounds(length, start, count int) error {
	if start < 0 || count < 0 || start+count > length {
		return errBounds()
	}
	return nil
}

// Element is the set of Go types a FixedColumn may be instantiated over.
type Element interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 | ~bool
}

// FixedColumn is a fixed-width primitive column backed by a contiguous Go
// slice. Slicing copies out the requested range (documented zero-copy
// semantics live at the block-decode layer, which aliases the decompressed
// buffer directly rather than going through this copy path).
type FixedColumn[T Element] struct {
	dtype DataType
	Data  []T
}

// NewFixed creates a FixedColumn of the given declared type over data. dtype
// must be the correct tag for T; callers use the typed constructors below in
// practice (NewInt64Column, etc.) which set it correctly.
func NewFixed[T Element](dtype DataType, data []T) *FixedColumn[T] {
	return &FixedColumn[T]{dtype: dtype, Data: data}
}

func (c *FixedColumn[T]) Len() int          { return len(c.Data) }
func (c *FixedColumn[T]) DataType() DataType { return c.dtype }

func (c *FixedColumn[T]) Slice(start, count int) (Column, error) {
	if err := checkBounds(len(c.Data), start, count); err != nil {
		return nil, err
	}
	out := make([]T, count)
	copy(out, c.Data[start:start+count])
	return &FixedColumn[T]{dtype: c.dtype, Data: out}, nil
}

// Append appends a value of the matching Go type. Use AppendAny for a
// dynamically typed caller (e.g. a query executor) that must surface a
// Column-type-mismatch error rather than fail to compile.
func (c *FixedColumn[T]) Append(v T) {
	c.Data = append(c.Data, v)
}

// AppendAny appends a dynamically typed value, failing with the
// "Column type mismatch" error the narayana column primitive documents when
// the concrete type does not match T.
func (c *FixedColumn[T]) AppendAny(v any) error {
	tv, ok := v.(T)
	if !ok {
		return errMismatch()
	}
	c.Data = append(c.Data, tv)
	return nil
}

func (c *FixedColumn[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= len(c.Data) {
		return zero, errBounds()
	}
	return c.Data[i], nil
}

// Typed constructors, one per primitive tag.
func NewInt8Column(d []int8) *FixedColumn[int8]       { return NewFixed(Int8, d) }
func NewInt16Column(d []int16) *FixedColumn[int16]    { return NewFixed(Int16, d) }
func NewInt32Column(d []int32) *FixedColumn[int32]    { return NewFixed(Int32, d) }
func NewInt64Column(d []int64) *FixedColumn[int64]    { return NewFixed(Int64, d) }
func NewUint8Column(d []uint8) *FixedColumn[uint8]    { return NewFixed(Uint8, d) }
func NewUint16Column(d []uint16) *FixedColumn[uint16] { return NewFixed(Uint16, d) }
func NewUint32Column(d []uint32) *FixedColumn[uint32] { return NewFixed(Uint32, d) }
func NewUint64Column(d []uint64) *FixedColumn[uint64] { return NewFixed(Uint64, d) }
func NewFloat32Column(d []float32) *FixedColumn[float32] { return NewFixed(Float32, d) }
func NewFloat64Column(d []float64) *FixedColumn[float64] { return NewFixed(Float64, d) }
func NewBoolColumn(d []bool) *FixedColumn[bool]       { return NewFixed(Bool, d) }
func NewTimestampColumn(d []int64) *FixedColumn[int64] { return NewFixed(Timestamp, d) }
func NewDateColumn(d []int32) *FixedColumn[int32]     { return NewFixed(Date, d) }

// StringColumn is a variable-width length-prefixed column of UTF-8 strings.
type StringColumn struct {
	Data []string
}

func NewStringColumn(d []string) *StringColumn { return &StringColumn{Data: d} }

func (c *StringColumn) Len() int           { return len(c.Data) }
func (c *StringColumn) DataType() DataType { return String }

func (c *StringColumn) Slice(start, count int) (Column, error) {
	if err := checkBounds(len(c.Data), start, count); err != nil {
		return nil, err
	}
	out := make([]string, count)
	copy(out, c.Data[start:start+count])
	return &StringColumn{Data: out}, nil
}

func (c *StringColumn) Append(v string) { c.Data = append(c.Data, v) }

func (c *StringColumn) AppendAny(v any) error {
	sv, ok := v.(string)
	if !ok {
		return errMismatch()
	}
	c.Data = append(c.Data, sv)
	return nil
}

// BinaryColumn is a variable-width length-prefixed column of byte strings.
type BinaryColumn struct {
	Data [][]byte
}

func NewBinaryColumn(d [][]byte) *BinaryColumn { return &BinaryColumn{Data: d} }

func (c *BinaryColumn) Len() int           { return len(c.Data) }
func (c *BinaryColumn) DataType() DataType { return Binary }

func (c *BinaryColumn) Slice(start, count int) (Column, error) {
	if err := checkBounds(len(c.Data), start, count); err != nil {
		return nil, err
	}
	out := make([][]byte, count)
	copy(out, c.Data[start:start+count])
	return &BinaryColumn{Data: out}, nil
}

func (c *BinaryColumn) Append(v []byte) { c.Data = append(c.Data, v) }

func (c *BinaryColumn) AppendAny(v any) error {
	bv, ok := v.([]byte)
	if !ok {
		return errMismatch()
	}
	c.Data = append(c.Data, bv)
	return nil
}

// NullableColumn wraps another column with a per-row validity bitmap.
type NullableColumn struct {
	Inner Column
	Valid []bool
}

func NewNullableColumn(inner Column, valid []bool) *NullableColumn {
	return &NullableColumn{Inner: inner, Valid: valid}
}

func (c *NullableColumn) Len() int           { return len(c.Valid) }
func (c *NullableColumn) DataType() DataType { return Nullable }

func (c *NullableColumn) Slice(start, count int) (Column, error) {
	if err := checkBounds(len(c.Valid), start, count); err != nil {
		return nil, err
	}
	inner, err := c.Inner.Slice(start, count)
	if err != nil {
		return nil, err
	}
	valid := make([]bool, count)
	copy(valid, c.Valid[start:start+count])
	return &NullableColumn{Inner: inner, Valid: valid}, nil
}

// ArrayColumn is a nested column: Offsets has Len()+1 entries, row i spans
// Elem[Offsets[i]:Offsets[i+1]].
type ArrayColumn struct {
	Elem    Column
	Offsets []int
}

func NewArrayColumn(elem Column, offsets []int) *ArrayColumn {
	return &ArrayColumn{Elem: elem, Offsets: offsets}
}

func (c *ArrayColumn) Len() int {
	if len(c.Offsets) == 0 {
		return 0
	}
	return len(c.Offsets) - 1
}

func (c *ArrayColumn) DataType() DataType { return Array }

func (c *ArrayColumn) Slice(start, count int) (Column, error) {
	if err := checkBounds(c.Len(), start, count); err != nil {
		return nil, err
	}
	lo, hi := c.Offsets[start], c.Offsets[start+count]
	elem, err := c.Elem.Slice(lo, hi-lo)
	if err != nil {
		return nil, err
	}
	offsets := make([]int, count+1)
	for i := 0; i <= count; i++ {
		offsets[i] = c.Offsets[start+i] - lo
	}
	return &ArrayColumn{Elem: elem, Offsets: offsets}, nil
}

// MapColumn pairs parallel Keys/Values columns under the same Offsets
// layout as ArrayColumn.
type MapColumn struct {
	Keys    Column
	Values  Column
	Offsets []int
}

func NewMapColumn(keys, values Column, offsets []int) *MapColumn {
	return &MapColumn{Keys: keys, Values: values, Offsets: offsets}
}

func (c *MapColumn) Len() int {
	if len(c.Offsets) == 0 {
		return 0
	}
	return len(c.Offsets) - 1
}

func (c *MapColumn) DataType() DataType { return Map }

func (c *MapColumn) Slice(start, count int) (Column, error) {
	if err := checkBounds(c.Len(), start, count); err != nil {
		return nil, err
	}
	lo, hi := c.Offsets[start], c.Offsets[start+count]
	keys, err := c.Keys.Slice(lo, hi-lo)
	if err != nil {
		return nil, err
	}
	values, err := c.Values.Slice(lo, hi-lo)
	if err != nil {
		return nil, err
	}
	offsets := make([]int, count+1)
	for i := 0; i <= count; i++ {
		offsets[i] = c.Offsets[start+i] - lo
	}
	return &MapColumn{Keys: keys, Values: values, Offsets: offsets}, nil
}
